package lnchan

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnchan/chanfee"
	"github.com/lightningnetwork/lnchan/htlc"
)

// pendingView pairs a pending HTLC with whether it is offered by the
// commitment owner it's being evaluated against.
type pendingView struct {
	add     htlc.Add
	offered bool
}

// pendingViewsFor collects every HTLC visible in owner's commitment at ctn,
// plus extra (a hypothetical addition not yet recorded in the log, used to
// validate a new HTLC before committing it).
func (c *Channel) pendingViewsFor(owner htlc.Side, ctn uint64, extra *pendingView) []pendingView {
	var out []pendingView
	for _, a := range c.htlcs.HTLCsByDirection(owner, htlc.Sent, ctn) {
		out = append(out, pendingView{add: a, offered: true})
	}
	for _, a := range c.htlcs.HTLCsByDirection(owner, htlc.Received, ctn) {
		out = append(out, pendingView{add: a, offered: false})
	}
	if extra != nil {
		out = append(out, *extra)
	}
	return out
}

// checkCommitmentInvariants verifies the accepted-HTLC cap and in-flight
// value cap on owner's projected next commitment (which includes extra,
// if given), and the reserve requirement on both sides. It returns a
// bare *InvariantViolation; callers translate it to PaymentFailure or
// RemoteMisbehaving depending on who initiated the change.
func (c *Channel) checkCommitmentInvariants(owner htlc.Side, extra *pendingView) error {
	ctn := c.htlcs.Ctn(owner) + 1
	views := c.pendingViewsFor(owner, ctn, extra)

	dustLimit := btcutil.Amount(c.commonFor(owner).DustLimitSat)
	feerate := btcutil.Amount(c.Constraints.FeeratePerKw)

	var nonDust int
	var inFlight uint64
	for _, v := range views {
		inFlight += v.add.AmountMsat
		if !chanfee.IsDustHTLC(btcutil.Amount(v.add.AmountMsat/1000), dustLimit, feerate, v.offered) {
			nonDust++
		}
	}

	maxAccepted := c.Local.MaxAcceptedHTLCs
	if c.Remote.MaxAcceptedHTLCs < maxAccepted {
		maxAccepted = c.Remote.MaxAcceptedHTLCs
	}
	if maxAccepted > MaxAcceptedHTLCs {
		maxAccepted = MaxAcceptedHTLCs
	}
	if nonDust > int(maxAccepted) {
		iv := newInvariantViolation("max-accepted-htlcs", fmt.Sprintf(
			"%d non-dust HTLCs would exceed the %d cap", nonDust, maxAccepted))
		return iv
	}

	maxInFlight := c.Local.MaxHTLCValueInFlight
	if c.Remote.MaxHTLCValueInFlight < maxInFlight {
		maxInFlight = c.Remote.MaxHTLCValueInFlight
	}
	if inFlight > maxInFlight {
		return newInvariantViolation("max-htlc-value-in-flight", fmt.Sprintf(
			"in-flight total %d msat would exceed max %d msat", inFlight, maxInFlight))
	}

	return c.checkReserve(owner, nonDust, extra)
}

// checkReserve enforces the reserve requirement for both sides: after the
// hypothetical change, each side must retain its channel reserve once its
// own pending outgoing HTLCs and (if it is the fee-paying initiator) the
// commitment fee are set aside.
func (c *Channel) checkReserve(owner htlc.Side, nonDustCount int, extra *pendingView) error {
	feerate := btcutil.Amount(c.Constraints.FeeratePerKw)
	fee := chanfee.CommitFee(feerate, nonDustCount)
	feeMsat := int64(fee) * 1000

	for _, side := range [2]htlc.Side{htlc.Local, htlc.Remote} {
		balance := int64(c.BalanceMinusOutgoingHTLCs(side))

		if extra != nil {
			sender := owner
			if !extra.offered {
				sender = otherSide(owner)
			}
			if sender == side {
				balance -= int64(extra.add.AmountMsat)
			}
		}

		isInitiator := (side == htlc.Local && c.Constraints.IsInitiator) ||
			(side == htlc.Remote && !c.Constraints.IsInitiator)
		if isInitiator {
			balance -= feeMsat
		}

		reserveMsat := int64(c.commonFor(side).ReserveSat) * 1000
		if balance < reserveMsat {
			return newInvariantViolation("reserve", fmt.Sprintf(
				"%s balance %d msat after change would be below reserve %d msat",
				side, balance, reserveMsat))
		}
	}
	return nil
}

// PendingHTLCs returns the HTLCs offered by side that are in side's
// commitment at its current ctn, for orchestrator bookkeeping (invoice
// tracking, channel balance UIs). An add not yet locked into that
// commitment is not included, and a settled or failed HTLC stays listed
// until its resolution locks in.
func (c *Channel) PendingHTLCs(offeredBy htlc.Side) []htlc.Add {
	return c.htlcs.PendingHTLCs(offeredBy)
}

// AddHTLC offers a new HTLC on our own side: it allocates the next
// htlc_id, appends it to our log, and validates the HTLC shape and
// commitment invariants projected onto our own next commitment before
// committing the change.
func (c *Channel) AddHTLC(paymentHash [32]byte, amountMsat uint64, cltvExpiry uint32) (uint64, error) {
	if err := checkHTLCShape(amountMsat, cltvExpiry); err != nil {
		return 0, err
	}

	id := c.Local.NextHTLCID
	add := htlc.Add{
		PaymentHash: paymentHash,
		AmountMsat:  amountMsat,
		CltvExpiry:  cltvExpiry,
		ID:          id,
	}

	if err := c.checkCommitmentInvariants(htlc.Local, &pendingView{add: add, offered: true}); err != nil {
		if iv, ok := err.(*InvariantViolation); ok {
			return 0, &PaymentFailure{iv}
		}
		return 0, err
	}

	c.Local.NextHTLCID++
	c.htlcs.Add(htlc.Local, add)
	return id, nil
}

// ReceiveHTLC mirrors a peer-offered HTLC into our remote log, using the
// htlc_id the peer supplied. Violations are RemoteMisbehaving: the peer
// sent us something that breaks the protocol.
func (c *Channel) ReceiveHTLC(htlcID uint64, paymentHash [32]byte, amountMsat uint64, cltvExpiry uint32) error {
	if err := checkHTLCShape(amountMsat, cltvExpiry); err != nil {
		return newRemoteMisbehaving("invalid htlc: %v", err)
	}

	if _, exists := c.htlcs.Lookup(htlc.Remote, htlcID); exists {
		return newRemoteMisbehaving("duplicate htlc_id %d", htlcID)
	}

	add := htlc.Add{
		PaymentHash: paymentHash,
		AmountMsat:  amountMsat,
		CltvExpiry:  cltvExpiry,
		ID:          htlcID,
	}

	if err := c.checkCommitmentInvariants(htlc.Remote, &pendingView{add: add, offered: true}); err != nil {
		if iv, ok := err.(*InvariantViolation); ok {
			return newRemoteMisbehaving("%s: %s", iv.Invariant, iv.Reason)
		}
		return err
	}

	c.htlcs.Add(htlc.Remote, add)
	return nil
}

func checkHTLCShape(amountMsat uint64, cltvExpiry uint32) error {
	if amountMsat == 0 {
		return newInvariantViolation("htlc-shape", "amount_msat must be > 0")
	}
	if cltvExpiry == 0 {
		return newInvariantViolation("htlc-shape", "cltv_expiry must be > 0")
	}
	return nil
}

// SettleHTLC reveals the preimage for an HTLC the peer offered us
// (offered_by REMOTE), recording our side of the settlement.
func (c *Channel) SettleHTLC(htlcID uint64, preimage [32]byte) error {
	return c.settle(htlc.Remote, htlcID, preimage)
}

// ReceiveHTLCSettle mirrors the peer's settlement of an HTLC we offered
// (offered_by LOCAL).
func (c *Channel) ReceiveHTLCSettle(htlcID uint64, preimage [32]byte) error {
	return c.settle(htlc.Local, htlcID, preimage)
}

func (c *Channel) settle(offeredBy htlc.Side, htlcID uint64, preimage [32]byte) error {
	add, ok := c.htlcs.Lookup(offeredBy, htlcID)
	if !ok {
		return newRemoteMisbehaving("settle for unknown htlc_id %d", htlcID)
	}
	hash := sha256.Sum256(preimage[:])
	if hash != add.PaymentHash {
		return fmt.Errorf("settle_htlc: preimage does not match payment_hash for htlc %d", htlcID)
	}
	c.htlcs.Settle(offeredBy, htlcID, preimage)
	return nil
}

// FailHTLC records that an HTLC the peer offered us (offered_by REMOTE)
// could not be fulfilled.
func (c *Channel) FailHTLC(htlcID uint64, reason []byte) error {
	return c.fail(htlc.Remote, htlcID, reason)
}

// ReceiveFailHTLC mirrors the peer's failure of an HTLC we offered
// (offered_by LOCAL).
func (c *Channel) ReceiveFailHTLC(htlcID uint64, reason []byte) error {
	return c.fail(htlc.Local, htlcID, reason)
}

func (c *Channel) fail(offeredBy htlc.Side, htlcID uint64, reason []byte) error {
	if _, ok := c.htlcs.Lookup(offeredBy, htlcID); !ok {
		return newRemoteMisbehaving("fail for unknown htlc_id %d", htlcID)
	}
	c.htlcs.Fail(offeredBy, htlcID, reason)
	return nil
}

// UpdateFee queues a feerate change. ours reports whether we are the one
// proposing it: per BOLT-02, only the channel initiator may ever do so.
// The new rate takes effect only once both sides have completed a full
// commitment round after the proposal (see commitment.go).
func (c *Channel) UpdateFee(feeratePerKw uint32, ours bool) error {
	weAreInitiator := c.Constraints.IsInitiator
	if ours && !weAreInitiator {
		return newInvariantViolation("fee-initiator", "only the channel initiator may update the feerate")
	}
	if !ours && weAreInitiator {
		return newRemoteMisbehaving("peer attempted a feerate update but we are the initiator")
	}

	rate := uint64(feeratePerKw)
	c.pendingFeeratePerKw = &rate
	c.pendingFeerateAckLocal = false
	c.pendingFeerateAckRemote = false
	return nil
}

// maybeApplyPendingFee commits a queued feerate update once both sides
// have revoked past the commitment round it was proposed in.
func (c *Channel) maybeApplyPendingFee() {
	if c.pendingFeeratePerKw == nil {
		return
	}
	if c.pendingFeerateAckLocal && c.pendingFeerateAckRemote {
		c.Constraints.FeeratePerKw = *c.pendingFeeratePerKw
		c.pendingFeeratePerKw = nil
		c.pendingFeerateAckLocal = false
		c.pendingFeerateAckRemote = false
	}
}
