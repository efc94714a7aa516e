// Package chanrecord defines the schema-versioned structured record a
// Channel serializes to and the storage interface it is persisted
// through. It is grounded on lnd's channeldb/db.go: the
// version/migration list (kept here as a single current schema, since
// there is only one version to migrate from so far) and the
// bucket-keyed access pattern, adapted from channeldb's whole-node
// bbolt database down to a single opaque per-channel record behind
// walletdb.ReadWriteBucket rather than a concrete engine.
package chanrecord

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcwallet/walletdb"
)

// SchemaVersion is bumped whenever Record's JSON shape changes in a way
// that isn't purely additive.
const SchemaVersion = 0

// Outpoint is the persisted shape of a funding outpoint.
type Outpoint struct {
	Txid        string `json:"txid"`
	OutputIndex uint32 `json:"output_index"`
}

// ConfigCommon is the persisted shape of channelConfigCommon: basepoints
// as 33-byte compressed hex pubkeys.
type ConfigCommon struct {
	MultisigKey          string `json:"multisig_key"`
	RevocationBasepoint  string `json:"revocation_basepoint"`
	PaymentBasepoint     string `json:"payment_basepoint"`
	DelayedBasepoint     string `json:"delayed_basepoint"`
	HtlcBasepoint        string `json:"htlc_basepoint"`
	ToSelfDelay          uint16 `json:"to_self_delay"`
	DustLimitSat         uint64 `json:"dust_limit_sat"`
	MaxHTLCValueInFlight uint64 `json:"max_htlc_value_in_flight_msat"`
	MaxAcceptedHTLCs     uint16 `json:"max_accepted_htlcs"`
	InitialMsat          uint64 `json:"initial_msat"`
	ReserveSat           uint64 `json:"reserve_sat"`

	CTN        int64  `json:"ctn"`
	NextHTLCID uint64 `json:"next_htlc_id"`

	CurrentPerCommitmentPoint string `json:"current_per_commitment_point,omitempty"`
	NextPerCommitmentPoint    string `json:"next_per_commitment_point,omitempty"`
}

// LocalConfig is the persisted shape of LocalChannelConfig: everything
// ConfigCommon has, plus the 32-byte scalars only the local side
// carries, and the signer-only bookkeeping.
type LocalConfig struct {
	ConfigCommon

	MultisigPriv   string `json:"multisig_priv"`
	RevocationPriv string `json:"revocation_priv"`
	PaymentPriv    string `json:"payment_priv"`
	DelayedPriv    string `json:"delayed_priv"`
	HtlcPriv       string `json:"htlc_priv"`

	PerCommitmentSecretSeed string `json:"per_commitment_secret_seed"`

	CurrentCommitmentSignature string   `json:"current_commitment_signature"`
	CurrentHtlcSignatures      []string `json:"current_htlc_signatures"`
	GotSigForNext              bool     `json:"got_sig_for_next"`
	FundingLockedReceived      bool     `json:"funding_locked_received"`
}

// RemoteConfig is the persisted shape of RemoteChannelConfig: public
// material only.
type RemoteConfig struct {
	ConfigCommon
}

// Constraints is the persisted shape of the channel-wide parameters.
type Constraints struct {
	CapacitySat            uint64 `json:"capacity"`
	IsInitiator            bool   `json:"is_initiator"`
	FundingTxnMinimumDepth uint32 `json:"funding_txn_minimum_depth"`
	FeeratePerKw           uint64 `json:"feerate"`
}

// RevocationBucket is the persisted shape of one occupied bucket of the
// remote side's RevocationStore.
type RevocationBucket struct {
	Bucket int    `json:"bucket"`
	Index  uint64 `json:"index"`
	Secret string `json:"secret"`
}

// HTLCLog is the persisted shape of one side's HTLCManager log.
type HTLCLog struct {
	Ctn     uint64            `json:"ctn"`
	Adds    map[string]Add    `json:"adds"`
	AddedAt map[string]uint64 `json:"added_at"`
	Settles []Settle          `json:"settles"`
	Fails   []Fail            `json:"fails"`
}

// Add is the persisted shape of an HTLC offer.
type Add struct {
	PaymentHash string `json:"payment_hash"`
	AmountMsat  uint64 `json:"amount_msat"`
	CltvExpiry  uint32 `json:"cltv_expiry"`
	ID          uint64 `json:"id"`
	Timestamp   int64  `json:"timestamp"`
}

// Settle is the persisted shape of a settle resolution.
type Settle struct {
	ID         uint64 `json:"id"`
	Preimage   string `json:"preimage"`
	ResolvedAt uint64 `json:"resolved_at"`
}

// Fail is the persisted shape of a fail resolution.
type Fail struct {
	ID         uint64 `json:"id"`
	Reason     string `json:"reason"`
	ResolvedAt uint64 `json:"resolved_at"`
}

// Record is the top-level structured record persisted for a channel:
// schema_version, channel_id, short_channel_id, funding_outpoint,
// node_id, local_config, remote_config, constraints,
// remote_commitment_to_be_revoked, remote_revocation_store, onion_keys,
// local_log, remote_log, state. The HTLC log is stored as the two keys
// local_log and remote_log; there is no single log key.
type Record struct {
	SchemaVersion int `json:"schema_version"`

	ChannelID      string  `json:"channel_id"`
	ShortChannelID *string `json:"short_channel_id"`

	FundingOutpoint Outpoint `json:"funding_outpoint"`
	NodeID          string   `json:"node_id"`

	LocalConfig  LocalConfig  `json:"local_config"`
	RemoteConfig RemoteConfig `json:"remote_config"`
	Constraints  Constraints  `json:"constraints"`

	RemoteCommitmentToBeRevoked *string `json:"remote_commitment_to_be_revoked"`

	RemoteRevocationStore []RevocationBucket `json:"remote_revocation_store"`

	OnionKeys map[string]string `json:"onion_keys"`

	LocalLog  HTLCLog `json:"local_log"`
	RemoteLog HTLCLog `json:"remote_log"`

	State string `json:"state"`
}

// Marshal hex-encodes nothing further (fields are already hex strings)
// and produces the JSON bytes a RecordStore writes.
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal parses JSON bytes produced by Marshal.
func Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("chanrecord: unmarshal: %w", err)
	}
	return &r, nil
}

// HexEncode is the boundary hex encoder used for every byte field
// (basepoints, scalars, signatures, txids, preimages).
func HexEncode(b []byte) string { return hex.EncodeToString(b) }

// HexDecode is HexEncode's inverse.
func HexDecode(s string) ([]byte, error) { return hex.DecodeString(s) }

// chanBucketName is the single top-level bucket every channel record
// lives under, keyed by channel_id.
var chanBucketName = []byte("open-channels")

// RecordStore persists Records in one top-level bucket of a walletdb.DB
// the orchestrator supplies, so the storage engine is whichever walletdb
// driver opened it (the tests use bdb) and this package imports no
// concrete engine.
type RecordStore struct {
	db walletdb.DB
}

// NewRecordStore wraps an already-open walletdb.DB.
func NewRecordStore(db walletdb.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Put writes r under its own channel_id, inside a single read-write
// transaction: either the whole record lands, or none of it does.
func (s *RecordStore) Put(r *Record) error {
	data, err := r.Marshal()
	if err != nil {
		return err
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket, err := tx.CreateTopLevelBucket(chanBucketName)
		if err != nil {
			return err
		}
		key, err := hex.DecodeString(r.ChannelID)
		if err != nil {
			return fmt.Errorf("chanrecord: channel_id %q is not hex: %w", r.ChannelID, err)
		}
		return bucket.Put(key, data)
	})
}

// Get reads back the record stored under channelIDHex, or (nil, nil) if
// none exists yet.
func (s *RecordStore) Get(channelIDHex string) (*Record, error) {
	key, err := hex.DecodeString(channelIDHex)
	if err != nil {
		return nil, fmt.Errorf("chanrecord: channel_id %q is not hex: %w", channelIDHex, err)
	}

	var r *Record
	err = walletdb.View(s.db, func(tx walletdb.ReadTx) error {
		bucket := tx.ReadBucket(chanBucketName)
		if bucket == nil {
			return nil
		}
		data := bucket.Get(key)
		if data == nil {
			return nil
		}
		parsed, err := Unmarshal(data)
		if err != nil {
			return err
		}
		r = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Delete removes the record stored under channelIDHex, if any.
func (s *RecordStore) Delete(channelIDHex string) error {
	key, err := hex.DecodeString(channelIDHex)
	if err != nil {
		return fmt.Errorf("chanrecord: channel_id %q is not hex: %w", channelIDHex, err)
	}

	return walletdb.Update(s.db, func(tx walletdb.ReadWriteTx) error {
		bucket := tx.ReadWriteBucket(chanBucketName)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(key)
	})
}
