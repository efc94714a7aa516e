package lnchan_test

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	lnchan "github.com/lightningnetwork/lnchan"
	"github.com/lightningnetwork/lnchan/htlc"
	"github.com/lightningnetwork/lnchan/lnwire"
	"github.com/lightningnetwork/lnchan/revocation"
)

// party bundles one side's deterministic keys, used to build both that
// side's own Channel (as Local) and the counterparty's view of it (as
// Remote).
type party struct {
	multisig   *btcec.PrivateKey
	revocation *btcec.PrivateKey
	payment    *btcec.PrivateKey
	delayed    *btcec.PrivateKey
	htlcKey    *btcec.PrivateKey
	seed       [32]byte
}

func newParty(t *testing.T, tag string) party {
	t.Helper()
	priv := func(s string) *btcec.PrivateKey {
		h := sha256.Sum256([]byte(tag + s))
		p, _ := btcec.PrivKeyFromBytes(h[:])
		return p
	}
	return party{
		multisig:   priv("multisig"),
		revocation: priv("revocation"),
		payment:    priv("payment"),
		delayed:    priv("delayed"),
		htlcKey:    priv("htlc"),
		seed:       sha256.Sum256([]byte(tag + "per-commitment-seed")),
	}
}

// pointAt returns p's own per-commitment point for commitment number ctn.
func pointAt(p party, ctn uint64) *btcec.PublicKey {
	index := revocation.StartIndex - ctn
	secret := revocationSecretAt(p.seed, index)
	_, pub := btcec.PrivKeyFromBytes(secret[:])
	return pub
}

// revocationSecretAt mirrors keychain.DeriveSecretFromSeed locally so
// this test file doesn't need an extra import solely for point
// derivation.
func revocationSecretAt(seed [32]byte, index uint64) [32]byte {
	secret := seed
	for b := 47; b >= 0; b-- {
		if index&(1<<uint(b)) == 0 {
			continue
		}
		secret[b/8] ^= 1 << uint(7-b%8)
		secret = sha256.Sum256(secret[:])
	}
	return secret
}

type channelPair struct {
	alice, bob *lnchan.Channel
}

// hashOf returns the payment_hash for a given preimage, the pairing
// every test in this file uses in place of a real invoice subsystem.
func hashOf(preimage [32]byte) [32]byte {
	return sha256.Sum256(preimage[:])
}

// newChannelPair builds two Channel instances, alice and bob, whose
// configs mirror each other exactly as two ends of a funded channel
// would: each side's LocalChannelConfig supplies the private keys and
// becomes the other's RemoteChannelConfig public view. alice is the
// channel initiator.
func newChannelPair(t *testing.T) channelPair {
	t.Helper()

	alice := newParty(t, "alice-")
	bob := newParty(t, "bob-")

	const aliceInitialMsat = 4_000_000_000
	const bobInitialMsat = 1_000_000_000
	const capacitySat = 5_000_000
	const reserveSat = 10_000
	const dustLimitSat = 354
	const toSelfDelay = 144
	const feeratePerKw = 10_000

	var channelID lnwire.ChannelID
	channelID[0] = 0x42
	fundingOutpoint := lnchan.Outpoint{Txid: [32]byte{0x01}, OutputIndex: 0}

	buildLocal := func(p party, initialMsat uint64) lnchan.LocalChannelConfig {
		var cfg lnchan.LocalChannelConfig
		cfg.MultisigKey = p.multisig.PubKey()
		cfg.RevocationBasepoint = p.revocation.PubKey()
		cfg.PaymentBasepoint = p.payment.PubKey()
		cfg.DelayedBasepoint = p.delayed.PubKey()
		cfg.HtlcBasepoint = p.htlcKey.PubKey()
		cfg.ToSelfDelay = toSelfDelay
		cfg.DustLimitSat = dustLimitSat
		cfg.MaxHTLCValueInFlight = 10_000_000_000
		cfg.MaxAcceptedHTLCs = 483
		cfg.InitialMsat = initialMsat
		cfg.ReserveSat = reserveSat
		cfg.CurrentPerCommitmentPoint = pointAt(p, 0)
		cfg.NextPerCommitmentPoint = pointAt(p, 1)

		cfg.MultisigPriv = p.multisig
		cfg.RevocationPriv = p.revocation
		cfg.PaymentPriv = p.payment
		cfg.DelayedPriv = p.delayed
		cfg.HtlcPriv = p.htlcKey
		cfg.PerCommitmentSecretSeed = p.seed
		return cfg
	}
	buildRemote := func(p party, initialMsat uint64) lnchan.RemoteChannelConfig {
		var cfg lnchan.RemoteChannelConfig
		cfg.MultisigKey = p.multisig.PubKey()
		cfg.RevocationBasepoint = p.revocation.PubKey()
		cfg.PaymentBasepoint = p.payment.PubKey()
		cfg.DelayedBasepoint = p.delayed.PubKey()
		cfg.HtlcBasepoint = p.htlcKey.PubKey()
		cfg.ToSelfDelay = toSelfDelay
		cfg.DustLimitSat = dustLimitSat
		cfg.MaxHTLCValueInFlight = 10_000_000_000
		cfg.MaxAcceptedHTLCs = 483
		cfg.InitialMsat = initialMsat
		cfg.ReserveSat = reserveSat
		cfg.CurrentPerCommitmentPoint = pointAt(p, 0)
		cfg.NextPerCommitmentPoint = pointAt(p, 1)
		return cfg
	}

	constraintsFor := func(isInitiator bool) lnchan.Constraints {
		return lnchan.Constraints{
			CapacitySat:            capacitySat,
			IsInitiator:            isInitiator,
			FundingTxnMinimumDepth: 3,
			FeeratePerKw:           feeratePerKw,
		}
	}

	aliceLocal := buildLocal(alice, aliceInitialMsat)
	bobLocalAsRemote := buildRemote(bob, bobInitialMsat)
	bobLocal := buildLocal(bob, bobInitialMsat)
	aliceLocalAsRemote := buildRemote(alice, aliceInitialMsat)

	aliceChan := lnchan.New(channelID, fundingOutpoint, bob.multisig.PubKey(),
		aliceLocal, bobLocalAsRemote, constraintsFor(true), nil, nil)
	bobChan := lnchan.New(channelID, fundingOutpoint, alice.multisig.PubKey(),
		bobLocal, aliceLocalAsRemote, constraintsFor(false), nil, nil)

	aliceChan.MarkFunded()
	aliceChan.MarkOpen()
	bobChan.MarkFunded()
	bobChan.MarkOpen()

	return channelPair{alice: aliceChan, bob: bobChan}
}

// commitmentDance drives one full commitment_signed/revoke_and_ack
// round: signer signs receiver's next commitment, receiver verifies and
// immediately revokes its superseded commitment, and signer consumes
// that revocation. This is the unit every HTLC state change needs on
// both sides before it is considered locked in.
func commitmentDance(t *testing.T, signer, receiver *lnchan.Channel) *lnchan.HTLCSettlementReport {
	t.Helper()

	sig, htlcSigs, err := signer.SignNextCommitment()
	require.NoError(t, err)

	err = receiver.ReceiveNewCommitment(sig, htlcSigs)
	require.NoError(t, err)

	revMsg, report, err := receiver.RevokeCurrentCommitment()
	require.NoError(t, err)

	err = signer.ReceiveRevocation(revMsg)
	require.NoError(t, err)

	return report
}

// fullRound runs the commitment dance in both directions, the full
// exchange needed for a change proposed by either side to lock in on
// both parties' commitments.
func fullRound(t *testing.T, pair channelPair) {
	t.Helper()
	commitmentDance(t, pair.alice, pair.bob)
	commitmentDance(t, pair.bob, pair.alice)
}

// TestAddSignRevokeLocksInOnBothSides walks a single HTLC from offer
// through to visibility in both parties' pending views, confirming the
// commitment dance is what makes an add "real" rather than the Add
// call itself.
func TestAddSignRevokeLocksInOnBothSides(t *testing.T) {
	t.Parallel()

	pair := newChannelPair(t)
	paymentHash := hashOf([32]byte{0x77})

	id, err := pair.alice.AddHTLC(paymentHash, 100_000_000, 500_000)
	require.NoError(t, err)

	require.NoError(t, pair.bob.ReceiveHTLC(id, paymentHash, 100_000_000, 500_000))

	fullRound(t, pair)

	require.Len(t, pair.alice.PendingHTLCs(htlc.Local), 1)
	require.Len(t, pair.bob.PendingHTLCs(htlc.Remote), 1)
}

// TestSettleRoundTripMovesBalance confirms that once both sides fully
// lock in a settle, the settled amount has moved from the offering
// side's balance to the receiving side's, and from neither side's
// pending total.
func TestSettleRoundTripMovesBalance(t *testing.T) {
	t.Parallel()

	pair := newChannelPair(t)
	var preimage [32]byte
	preimage[0] = 0x99
	paymentHash := hashOf(preimage)

	const amt = uint64(250_000_000)
	id, err := pair.alice.AddHTLC(paymentHash, amt, 500_000)
	require.NoError(t, err)
	require.NoError(t, pair.bob.ReceiveHTLC(id, paymentHash, amt, 500_000))
	fullRound(t, pair)

	aliceBalanceBefore := pair.alice.Balance(htlc.Local)
	bobBalanceBefore := pair.bob.Balance(htlc.Local)

	require.NoError(t, pair.bob.SettleHTLC(id, preimage))
	require.NoError(t, pair.alice.ReceiveHTLCSettle(id, preimage))
	fullRound(t, pair)

	require.Equal(t, aliceBalanceBefore-amt, pair.alice.Balance(htlc.Local))
	require.Equal(t, bobBalanceBefore+amt, pair.bob.Balance(htlc.Local))
	require.Empty(t, pair.alice.PendingHTLCs(htlc.Local))
	require.Empty(t, pair.bob.PendingHTLCs(htlc.Remote))
}

// TestFailRoundTripLeavesBalanceUnchanged confirms a failed HTLC
// disappears from both pending views without moving any balance,
// distinguishing it from a settle.
func TestFailRoundTripLeavesBalanceUnchanged(t *testing.T) {
	t.Parallel()

	pair := newChannelPair(t)
	paymentHash := hashOf([32]byte{0x55})

	id, err := pair.alice.AddHTLC(paymentHash, 50_000_000, 500_000)
	require.NoError(t, err)
	require.NoError(t, pair.bob.ReceiveHTLC(id, paymentHash, 50_000_000, 500_000))
	fullRound(t, pair)

	aliceBalanceBefore := pair.alice.Balance(htlc.Local)

	require.NoError(t, pair.bob.FailHTLC(id, []byte("unknown_next_peer")))
	require.NoError(t, pair.alice.ReceiveFailHTLC(id, []byte("unknown_next_peer")))
	fullRound(t, pair)

	require.Equal(t, aliceBalanceBefore, pair.alice.Balance(htlc.Local))
	require.Empty(t, pair.alice.PendingHTLCs(htlc.Local))
}

// TestSettleRejectsWrongPreimage confirms a preimage that doesn't hash
// to the HTLC's payment_hash is refused rather than silently accepted.
func TestSettleRejectsWrongPreimage(t *testing.T) {
	t.Parallel()

	pair := newChannelPair(t)
	paymentHash := hashOf([32]byte{0x11})

	id, err := pair.alice.AddHTLC(paymentHash, 10_000_000, 500_000)
	require.NoError(t, err)
	require.NoError(t, pair.bob.ReceiveHTLC(id, paymentHash, 10_000_000, 500_000))
	fullRound(t, pair)

	require.Error(t, pair.bob.SettleHTLC(id, [32]byte{0xde, 0xad}))
}

// TestFeeUpdateOnlyFromInitiator confirms the non-initiator is refused
// when it attempts to propose a feerate change locally, and that the
// channel treats such an attempt arriving from the peer as misbehavior.
func TestFeeUpdateOnlyFromInitiator(t *testing.T) {
	t.Parallel()

	pair := newChannelPair(t)

	require.NoError(t, pair.alice.UpdateFee(15_000, true))

	err := pair.bob.UpdateFee(15_000, true)
	require.Error(t, err)

	err = pair.alice.UpdateFee(15_000, false)
	require.Error(t, err)
}

// TestForceCloseTxSpendsFundingOutpoint confirms ForceCloseTx, once a
// commitment has actually been signed and locked in, produces a
// transaction spending the channel's funding outpoint with a populated
// witness.
func TestForceCloseTxSpendsFundingOutpoint(t *testing.T) {
	t.Parallel()

	pair := newChannelPair(t)
	paymentHash := hashOf([32]byte{0x33})

	id, err := pair.alice.AddHTLC(paymentHash, 75_000_000, 500_000)
	require.NoError(t, err)
	require.NoError(t, pair.bob.ReceiveHTLC(id, paymentHash, 75_000_000, 500_000))
	fullRound(t, pair)

	tx, err := pair.alice.ForceCloseTx()
	require.NoError(t, err)
	require.Len(t, tx.TxIn, 1)
	require.NotEmpty(t, tx.TxIn[0].Witness)

	summary, err := pair.alice.ForceClose()
	require.NoError(t, err)
	require.NotNil(t, summary.CommitTx)
	require.Len(t, summary.HTLCResolutions, 1)
}
