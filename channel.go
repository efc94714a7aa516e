// Package lnchan implements the Lightning Network bilateral payment
// channel state machine: two parties' commitment transactions, the
// in-flight HTLC log, balance/reserve/dust invariants, and the five
// commitment-update messages (update_add_htlc, update_fulfill_htlc,
// update_fail_htlc, commitment_signed, revoke_and_ack) with BOLT-02/BOLT-03
// semantics.
//
// It is grounded on lnd's lnwallet.LightningChannel: the embedded
// per-channel sync.RWMutex and the state-machine method names
// (SignNextCommitment, ReceiveNewCommitment, RevokeCurrentCommitment,
// ReceiveRevocation) are carried over and generalized to BOLT-03
// commitment construction; its error sentinels are replaced by the typed
// errors in errors.go.
package lnchan

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/lightningnetwork/lnchan/htlc"
	"github.com/lightningnetwork/lnchan/lnwire"
	"github.com/lightningnetwork/lnchan/revocation"
)

// PreimageLookup is an injected capability for settling HTLCs we
// originated: given a payment hash, return the preimage if known. This
// replaces the source's cyclic back-pointer from the channel to the
// invoice subsystem (see SPEC_FULL.md "Design Notes").
type PreimageLookup interface {
	LookupPreimage(paymentHash [32]byte) (preimage [32]byte, ok bool)
}

// WatcherSink is an injected capability for handing a broadcastable
// force-close transaction to the on-chain watcher. Replaces the source's
// back-pointer from the channel to its watcher.
type WatcherSink interface {
	NotifyForceClose(channelID lnwire.ChannelID, commitTx []byte)
}

// Channel is the two-party replicated channel state machine described in
// this package. It embeds a sync.RWMutex, but its methods do not acquire
// it: a Channel does not serialize concurrent calls on itself.
type Channel struct {
	sync.RWMutex

	ChannelID        lnwire.ChannelID
	ShortChannelID   *lnwire.ShortChannelID
	FundingOutpoint  Outpoint
	NodeID           *btcec.PublicKey

	Local  LocalChannelConfig
	Remote RemoteChannelConfig

	Constraints Constraints

	htlcs *htlc.Manager

	// remoteRevocationStore holds the REMOTE side's revealed
	// per-commitment secrets, letting us build penalty transactions
	// against any commitment it has since revoked.
	remoteRevocationStore *revocation.Store

	// RemoteCommitmentToBeRevoked is the previous remote commitment
	// transaction, retained until the matching revoke_and_ack confirms
	// the peer has actually given up the ability to broadcast it.
	RemoteCommitmentToBeRevoked []byte

	// OnionKeys are the ephemeral ECDH keys for in-flight HTLCs we
	// originated, indexed by htlc_id.
	OnionKeys map[uint64]*btcec.PublicKey

	state ChannelState

	// pendingFeeratePerKw is a feerate change proposed by UpdateFee but
	// not yet locked in on both sides' commitments.
	pendingFeeratePerKw     *uint64
	pendingFeerateAckLocal  bool
	pendingFeerateAckRemote bool

	preimageLookup PreimageLookup
	watcherSink    WatcherSink
}

// New constructs a Channel in the PREOPENING state. The orchestrator
// advances it to FUNDED/OPEN via MarkFunded/MarkOpen once the funding
// transaction confirms and funding_locked is exchanged.
func New(channelID lnwire.ChannelID, fundingOutpoint Outpoint, nodeID *btcec.PublicKey,
	local LocalChannelConfig, remote RemoteChannelConfig, constraints Constraints,
	preimageLookup PreimageLookup, watcherSink WatcherSink) *Channel {

	return &Channel{
		ChannelID:             channelID,
		FundingOutpoint:       fundingOutpoint,
		NodeID:                nodeID,
		Local:                 local,
		Remote:                remote,
		Constraints:           constraints,
		htlcs:                 htlc.New(),
		remoteRevocationStore: revocation.New(),
		OnionKeys:             make(map[uint64]*btcec.PublicKey),
		state:                 PreOpening,
		preimageLookup:        preimageLookup,
		watcherSink:           watcherSink,
	}
}
