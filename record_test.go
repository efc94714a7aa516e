package lnchan_test

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"

	lnchan "github.com/lightningnetwork/lnchan"
	"github.com/lightningnetwork/lnchan/chanrecord"
	"github.com/lightningnetwork/lnchan/htlc"
	"github.com/lightningnetwork/lnchan/lnwire"
)

// openTestDB opens a fresh bdb-backed walletdb in a temp directory,
// closed automatically when the test finishes.
func openTestDB(t *testing.T) (walletdb.DB, error) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "chanrecord.db")
	db, err := walletdb.Create("bdb", dbPath)
	if err != nil {
		return nil, err
	}
	t.Cleanup(func() { db.Close() })
	return db, nil
}

// requireRecordEqual fails with a spew.Sdump dump of both sides on
// mismatch rather than relying on a terse diff when comparing
// record-shaped data.
func requireRecordEqual(t *testing.T, want, got *chanrecord.Record) {
	t.Helper()
	if !require.ObjectsAreEqual(want, got) {
		t.Fatalf("records differ:\nwant: %s\ngot: %s", spew.Sdump(want), spew.Sdump(got))
	}
}

// TestChannelRecordRoundTrip builds a channel pair, drives it through an
// add and one full commitment round so the record has real log and revocation-store
// content, then confirms ToRecord -> Marshal -> Unmarshal -> FromRecord
// reproduces a byte-identical record and an equivalent Channel.
func TestChannelRecordRoundTrip(t *testing.T) {
	t.Parallel()

	pair := newChannelPair(t)
	paymentHash := hashOf([32]byte{0x42})

	id, err := pair.alice.AddHTLC(paymentHash, 100_000_000, 500_000)
	require.NoError(t, err)
	require.NoError(t, pair.bob.ReceiveHTLC(id, paymentHash, 100_000_000, 500_000))
	fullRound(t, pair)

	scid := lnwire.ShortChannelID(1234)
	pair.alice.ShortChannelID = &scid
	pair.alice.OnionKeys[id] = pair.alice.Local.MultisigKey

	record := pair.alice.ToRecord()

	data, err := record.Marshal()
	require.NoError(t, err)

	decoded, err := chanrecord.Unmarshal(data)
	require.NoError(t, err)
	requireRecordEqual(t, record, decoded)

	restored, err := lnchan.FromRecord(decoded, nil, nil)
	require.NoError(t, err)

	requireRecordEqual(t, record, restored.ToRecord())

	require.Equal(t, pair.alice.State(), restored.State())
	require.Len(t, restored.PendingHTLCs(htlc.Local), 1)
	require.True(t, restored.Local.MultisigKey.IsEqual(pair.alice.Local.MultisigKey))
	require.NotNil(t, restored.ShortChannelID)
	require.Equal(t, scid, *restored.ShortChannelID)
}

// TestChannelRecordRoundTripThroughRecordStore confirms the same
// round-trip survives an actual walletdb-backed store, not just
// Marshal/Unmarshal in memory.
func TestChannelRecordRoundTripThroughRecordStore(t *testing.T) {
	t.Parallel()

	pair := newChannelPair(t)
	paymentHash := hashOf([32]byte{0x24})

	id, err := pair.alice.AddHTLC(paymentHash, 50_000_000, 500_000)
	require.NoError(t, err)
	require.NoError(t, pair.bob.ReceiveHTLC(id, paymentHash, 50_000_000, 500_000))
	fullRound(t, pair)

	db, err := openTestDB(t)
	require.NoError(t, err)

	store := chanrecord.NewRecordStore(db)

	want := pair.alice.ToRecord()
	require.NoError(t, store.Put(want))

	got, err := store.Get(want.ChannelID)
	require.NoError(t, err)
	require.NotNil(t, got)
	requireRecordEqual(t, want, got)
}
