package lnchan

import "github.com/btcsuite/btcd/btcec/v2"

// MaxAcceptedHTLCs is BOLT-02's hard cap on the number of HTLCs any one
// commitment may carry, independent of whatever lower cap either side's
// ChannelConfig advertises (I3).
const MaxAcceptedHTLCs = 483

// channelConfigCommon holds the basepoints and limits shared by both
// sides' configs. Following the "named-tuple configs" design: plain structured
// records with explicit fields, not a dynamic config[LOCAL]/config[REMOTE]
// map — LocalChannelConfig and RemoteChannelConfig below are the two
// named fields on Channel this produces.
type channelConfigCommon struct {
	MultisigKey          *btcec.PublicKey
	RevocationBasepoint  *btcec.PublicKey
	PaymentBasepoint     *btcec.PublicKey
	DelayedBasepoint     *btcec.PublicKey
	HtlcBasepoint        *btcec.PublicKey
	ToSelfDelay          uint16
	DustLimitSat         uint64
	MaxHTLCValueInFlight uint64 // msat
	MaxAcceptedHTLCs     uint16
	InitialMsat          uint64
	ReserveSat           uint64

	// CTN is carried as configured and persisted in the record; the
	// state machine does not update it. The live commitment numbers are
	// the HTLC manager's per-log ctn (htlc.Manager.Ctn), persisted under
	// local_log and remote_log.
	CTN int64

	NextHTLCID uint64

	CurrentPerCommitmentPoint *btcec.PublicKey
	NextPerCommitmentPoint    *btcec.PublicKey
}

// LocalChannelConfig is our own side's configuration: we hold private
// material for every basepoint, plus bookkeeping only the signer needs.
type LocalChannelConfig struct {
	channelConfigCommon

	MultisigPriv    *btcec.PrivateKey
	RevocationPriv  *btcec.PrivateKey
	PaymentPriv     *btcec.PrivateKey
	DelayedPriv     *btcec.PrivateKey
	HtlcPriv        *btcec.PrivateKey

	// PerCommitmentSecretSeed is the 32-byte seed our per-commitment
	// secrets at every index are derived from (keychain.DeriveSecretFromSeed).
	PerCommitmentSecretSeed [32]byte

	CurrentCommitmentSignature [64]byte
	CurrentHtlcSignatures      [][64]byte
	GotSigForNext              bool
	FundingLockedReceived      bool
}

// RemoteChannelConfig is the peer's configuration: we hold only public
// material.
type RemoteChannelConfig struct {
	channelConfigCommon
}

// Constraints are the channel-wide parameters that aren't per-side.
type Constraints struct {
	CapacitySat            uint64
	IsInitiator            bool
	FundingTxnMinimumDepth uint32
	FeeratePerKw           uint64
}
