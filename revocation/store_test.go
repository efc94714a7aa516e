package revocation_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnchan/keychain"
	"github.com/lightningnetwork/lnchan/revocation"
)

// deriveFromSeed mirrors keychain.DeriveSecretFromSeed without importing
// it, to keep this package's tests independent of keychain.
func deriveFromSeed(seed [32]byte, index uint64) [32]byte {
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

// TestStoreRoundTrip inserts secrets for a run of strictly descending
// indices derived from a known seed, then confirms every inserted index
// retrieves its exact secret (S6).
func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	seed := sha256.Sum256([]byte("revocation store round trip"))
	store := revocation.New()

	const count = 1024
	for i := uint64(0); i < count; i++ {
		index := revocation.StartIndex - i
		secret := deriveFromSeed(seed, index)
		require.NoError(t, store.Insert(index, secret))
	}

	for i := uint64(0); i < count; i++ {
		index := revocation.StartIndex - i
		want := deriveFromSeed(seed, index)
		got, err := store.Retrieve(index)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

// TestStoreRetrieveUnrevealed confirms an index that has never been
// covered by an inserted secret fails to retrieve.
func TestStoreRetrieveUnrevealed(t *testing.T) {
	t.Parallel()

	store := revocation.New()
	_, err := store.Retrieve(revocation.StartIndex - 5)
	require.ErrorIs(t, err, revocation.ErrNotRevealed)
}

// TestStoreRejectsNonDescendingIndex is P4: inserting secrets with
// non-descending indices must fail.
func TestStoreRejectsNonDescendingIndex(t *testing.T) {
	t.Parallel()

	seed := sha256.Sum256([]byte("non-descending"))
	store := revocation.New()

	first := revocation.StartIndex - 10
	require.NoError(t, store.Insert(first, deriveFromSeed(seed, first)))

	// Same index again.
	require.Error(t, store.Insert(first, deriveFromSeed(seed, first)))

	// A larger (less-recent) index.
	higher := first + 1
	require.Error(t, store.Insert(higher, deriveFromSeed(seed, higher)))
}

// TestStoreDumpRestore confirms a Dump/Restore round trip preserves
// retrievability of everything inserted before the dump.
func TestStoreDumpRestore(t *testing.T) {
	t.Parallel()

	seed := sha256.Sum256([]byte("dump restore"))
	store := revocation.New()

	indices := []uint64{
		revocation.StartIndex,
		revocation.StartIndex - 1,
		revocation.StartIndex - 2,
		revocation.StartIndex - 100,
	}
	for _, index := range indices {
		require.NoError(t, store.Insert(index, deriveFromSeed(seed, index)))
	}

	restored := revocation.Restore(store.Dump())
	for _, index := range indices {
		want, err := store.Retrieve(index)
		require.NoError(t, err)
		got, err := restored.Retrieve(index)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	// The restored store must still enforce strict descent going
	// forward from the last dumped index.
	require.Error(t, restored.Insert(indices[len(indices)-1], [32]byte{}))
}

// TestStoreAgreesWithKeychainDerivation confirms the store's own
// derivation produces exactly the secret keychain.DeriveSecretFromSeed
// computes directly from the seed — the two are independent
// implementations of the same BOLT-03 generate_from_seed algorithm. A
// single later-revealed index (more trailing zero bits) must let the
// store reconstruct every higher, earlier-revealed index within its
// span, without those ever being inserted directly — this is the
// compression property the whole structure exists for.
func TestStoreAgreesWithKeychainDerivation(t *testing.T) {
	t.Parallel()

	seed := sha256.Sum256([]byte("cross-package agreement"))

	const later = uint64(0xFFFFFFFFFFF0) // trailing 4 zero bits
	store := revocation.New()
	require.NoError(t, store.Insert(later, keychain.DeriveSecretFromSeed(seed, later)))

	for offset := uint64(0); offset < 16; offset++ {
		earlier := later + offset
		want := keychain.DeriveSecretFromSeed(seed, earlier)
		got, err := store.Retrieve(earlier)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}
