package keychain_test

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnchan/keychain"
)

func privFromSeed(seed string) *btcec.PrivateKey {
	h := sha256.Sum256([]byte(seed))
	priv, _ := btcec.PrivKeyFromBytes(h[:])
	return priv
}

// TestDeriveKeyPairConsistency confirms DerivePrivKey and DerivePubKey
// produce matching keypairs for the same basepoint and per-commitment
// point.
func TestDeriveKeyPairConsistency(t *testing.T) {
	t.Parallel()

	basepointSecret := privFromSeed("basepoint")
	perCommitmentSecret := privFromSeed("per-commitment")
	perCommitmentPoint := perCommitmentSecret.PubKey()

	derivedPriv := keychain.DerivePrivKey(basepointSecret, perCommitmentPoint)
	derivedPub := keychain.DerivePubKey(basepointSecret.PubKey(), perCommitmentPoint)

	require.True(t, derivedPriv.PubKey().IsEqual(derivedPub))
}

// TestDeriveRevocationKeyPairConsistency confirms DeriveRevocationPubKey
// and DeriveRevocationPrivKey agree once both the revocation basepoint
// secret and the per-commitment secret are known, matching BOLT-03's
// two-term combination.
func TestDeriveRevocationKeyPairConsistency(t *testing.T) {
	t.Parallel()

	revocationBasepointSecret := privFromSeed("revocation-basepoint")
	perCommitmentSecret := privFromSeed("per-commitment-secret")

	pub := keychain.DeriveRevocationPubKey(
		revocationBasepointSecret.PubKey(), perCommitmentSecret.PubKey(),
	)
	priv := keychain.DeriveRevocationPrivKey(revocationBasepointSecret, perCommitmentSecret)

	require.True(t, priv.PubKey().IsEqual(pub))
}

// TestDeriveSecretFromSeedDeterministic confirms the same (seed, index)
// pair always derives the same secret, and that different indices
// derive different secrets.
func TestDeriveSecretFromSeedDeterministic(t *testing.T) {
	t.Parallel()

	seed := sha256.Sum256([]byte("shachain seed"))

	a := keychain.DeriveSecretFromSeed(seed, 12345)
	b := keychain.DeriveSecretFromSeed(seed, 12345)
	require.Equal(t, a, b)

	c := keychain.DeriveSecretFromSeed(seed, 12346)
	require.NotEqual(t, a, c)
}

// TestDeriveSecretFromSeedZeroIndex confirms index 0 (all 48 bits clear)
// returns the seed untouched, per BOLT-03's generate_from_seed loop
// never flipping any bit for that index.
func TestDeriveSecretFromSeedZeroIndex(t *testing.T) {
	t.Parallel()

	seed := sha256.Sum256([]byte("zero index"))
	require.Equal(t, seed, keychain.DeriveSecretFromSeed(seed, 0))
}
