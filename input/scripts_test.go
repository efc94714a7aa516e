package input_test

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnchan/input"
)

func privFromSeed(t *testing.T, seed string) *btcec.PrivateKey {
	t.Helper()
	h := sha256.Sum256([]byte(seed))
	priv, _ := btcec.PrivKeyFromBytes(h[:])
	return priv
}

// TestFundingWitnessScriptKeyOrderIndependent confirms the multisig
// script is identical regardless of which order the two keys are
// passed in, since BOLT-03 fixes the order by byte comparison rather
// than call order.
func TestFundingWitnessScriptKeyOrderIndependent(t *testing.T) {
	t.Parallel()

	keyA := privFromSeed(t, "funding-a").PubKey()
	keyB := privFromSeed(t, "funding-b").PubKey()

	scriptAB, err := input.FundingWitnessScript(keyA, keyB)
	require.NoError(t, err)
	scriptBA, err := input.FundingWitnessScript(keyB, keyA)
	require.NoError(t, err)

	require.Equal(t, scriptAB, scriptBA)
}

// TestFundingWitnessSigOrderMatchesScriptOrder confirms the signature
// occupying the first witness slot always belongs to whichever key
// sorts first in the multisig script, regardless of the order the
// caller passed (key, sig) pairs in.
func TestFundingWitnessSigOrderMatchesScriptOrder(t *testing.T) {
	t.Parallel()

	keyA := privFromSeed(t, "funding-sig-a").PubKey()
	keyB := privFromSeed(t, "funding-sig-b").PubKey()
	sigA := []byte("sig-a")
	sigB := []byte("sig-b")

	witAB, err := input.FundingWitness(nil, keyA, sigA, keyB, sigB)
	require.NoError(t, err)
	witBA, err := input.FundingWitness(nil, keyB, sigB, keyA, sigA)
	require.NoError(t, err)

	require.Equal(t, witAB, witBA)
	require.Len(t, witAB, 4)
	require.Nil(t, witAB[0])
}

// TestCommitScriptToLocalDependsOnAllInputs confirms changing any one
// of csvDelay, delayedKey, or revocationKey changes the resulting
// script, guarding against accidentally dropped template parameters.
func TestCommitScriptToLocalDependsOnAllInputs(t *testing.T) {
	t.Parallel()

	delayedKey := privFromSeed(t, "delayed").PubKey()
	revocationKey := privFromSeed(t, "revocation").PubKey()

	base, err := input.CommitScriptToLocal(144, delayedKey, revocationKey)
	require.NoError(t, err)

	otherDelay, err := input.CommitScriptToLocal(288, delayedKey, revocationKey)
	require.NoError(t, err)
	require.NotEqual(t, base, otherDelay)

	otherDelayedKey, err := input.CommitScriptToLocal(144, privFromSeed(t, "other-delayed").PubKey(), revocationKey)
	require.NoError(t, err)
	require.NotEqual(t, base, otherDelayedKey)

	otherRevKey, err := input.CommitScriptToLocal(144, delayedKey, privFromSeed(t, "other-revocation").PubKey())
	require.NoError(t, err)
	require.NotEqual(t, base, otherRevKey)
}

// TestOfferedAndReceivedHTLCScriptsDiffer confirms the offered and
// received HTLC witness scripts for the same keys and payment hash
// are not the same script, since their CLTV/multisig branches are
// swapped per BOLT-03.
func TestOfferedAndReceivedHTLCScriptsDiffer(t *testing.T) {
	t.Parallel()

	localKey := privFromSeed(t, "local-htlc").PubKey()
	remoteKey := privFromSeed(t, "remote-htlc").PubKey()
	revocationKey := privFromSeed(t, "htlc-revocation").PubKey()
	paymentHash := sha256.Sum256([]byte("preimage"))

	offered, err := input.OfferedHTLCScript(localKey, remoteKey, revocationKey, paymentHash)
	require.NoError(t, err)

	received, err := input.ReceivedHTLCScript(500_000, localKey, remoteKey, revocationKey, paymentHash)
	require.NoError(t, err)

	require.NotEqual(t, offered, received)
	require.NotEmpty(t, offered)
	require.NotEmpty(t, received)
}

// TestWitnessScriptHashIsP2WSH confirms the output script is a 34-byte
// v0 witness program: OP_0 followed by a 32-byte push of the script's
// SHA-256.
func TestWitnessScriptHashIsP2WSH(t *testing.T) {
	t.Parallel()

	revocationKey := privFromSeed(t, "wsh-revocation").PubKey()
	delayedKey := privFromSeed(t, "wsh-delayed").PubKey()

	witnessScript, err := input.CommitScriptToLocal(144, delayedKey, revocationKey)
	require.NoError(t, err)

	pkScript, err := input.WitnessScriptHash(witnessScript)
	require.NoError(t, err)

	require.Len(t, pkScript, 34)
	require.Equal(t, byte(0x00), pkScript[0])
	require.Equal(t, byte(0x20), pkScript[1])

	want := sha256.Sum256(witnessScript)
	require.Equal(t, want[:], pkScript[2:])
}

// TestSecondStageTxLockTimeReflectsKind confirms only the HTLC-timeout
// form sets the CLTV locktime; HTLC-success spends immediately (gated
// only by the preimage) per BOLT-03.
func TestSecondStageTxLockTimeReflectsKind(t *testing.T) {
	t.Parallel()

	delayedKey := privFromSeed(t, "ss-delayed").PubKey()
	revocationKey := privFromSeed(t, "ss-revocation").PubKey()
	outpoint := wire.OutPoint{Index: 0}

	timeoutTx, _, err := input.SecondStageTx(outpoint, 100_000, 600_000, 144, delayedKey, revocationKey, true)
	require.NoError(t, err)
	require.Equal(t, uint32(600_000), timeoutTx.LockTime)
	require.Equal(t, uint32(0), timeoutTx.TxIn[0].Sequence)

	successTx, _, err := input.SecondStageTx(outpoint, 100_000, 600_000, 144, delayedKey, revocationKey, false)
	require.NoError(t, err)
	require.Equal(t, uint32(0), successTx.LockTime)
}

// TestHTLCSuccessWitnessShapeByKind confirms the timeout form carries
// an extra empty preimage-slot element that the success form omits,
// matching the offered/received scripts' OP_NOTIF/OP_IF branches.
func TestHTLCSuccessWitnessShapeByKind(t *testing.T) {
	t.Parallel()

	witnessScript := []byte("script")
	ourSig := []byte("our-sig")
	theirSig := []byte("their-sig")

	timeout := input.HTLCSuccessWitness(witnessScript, ourSig, theirSig, true)
	require.Len(t, timeout, 5)
	require.Nil(t, timeout[0])
	require.Equal(t, theirSig, []byte(timeout[1]))
	require.Equal(t, ourSig, []byte(timeout[2]))
	require.Nil(t, timeout[3])
	require.Equal(t, witnessScript, []byte(timeout[4]))

	success := input.HTLCSuccessWitness(witnessScript, ourSig, theirSig, false)
	require.Len(t, success, 4)
	require.Equal(t, witnessScript, []byte(success[3]))
}
