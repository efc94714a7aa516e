package lnchan

import "github.com/lightningnetwork/lnchan/htlc"

// otherSide returns the opposite party to s.
func otherSide(s htlc.Side) htlc.Side {
	if s == htlc.Local {
		return htlc.Remote
	}
	return htlc.Local
}

// commonFor returns the shared ChannelConfig fields for side, regardless of
// whether side is LOCAL or REMOTE.
func (c *Channel) commonFor(side htlc.Side) *channelConfigCommon {
	if side == htlc.Local {
		return &c.Local.channelConfigCommon
	}
	return &c.Remote.channelConfigCommon
}

// Balance returns side's settled balance in millisatoshis: its initial
// balance, plus every HTLC it has received and settled, minus every HTLC
// it originated and settled. Pending (unresolved) HTLCs are not reflected
// here — use BalanceMinusOutgoingHTLCs for the reserve-relevant figure.
func (c *Channel) Balance(side htlc.Side) uint64 {
	initial := c.commonFor(side).InitialMsat

	sentAway := c.htlcs.TotalSettledMsat(side)
	received := c.htlcs.TotalSettledMsat(otherSide(side))

	return initial - sentAway + received
}

// pendingOutgoingMsat sums the amounts of side's own pending (unresolved)
// HTLCs: the funds currently locked up in HTLC outputs that side would
// lose if every one of them eventually settles.
func (c *Channel) pendingOutgoingMsat(side htlc.Side) uint64 {
	var total uint64
	for _, a := range c.htlcs.PendingHTLCs(side) {
		total += a.AmountMsat
	}
	return total
}

// BalanceMinusOutgoingHTLCs is the reserve-relevant balance: Balance minus
// the amounts of this side's own still-pending HTLCs, which are already
// committed to the counterparty and can no longer be spent freely.
func (c *Channel) BalanceMinusOutgoingHTLCs(side htlc.Side) uint64 {
	return c.Balance(side) - c.pendingOutgoingMsat(side)
}

// TotalMsat reports the running lifetime total, in millisatoshis, that
// this channel has sent (dir == htlc.Sent, from LOCAL's perspective) or
// received (dir == htlc.Received), regardless of lock-in height. Carried
// from Electrum's lnworker total_msat query (see SPEC_FULL.md).
func (c *Channel) TotalMsat(dir htlc.Direction) uint64 {
	offeredBy := htlc.Local
	if dir == htlc.Received {
		offeredBy = htlc.Remote
	}
	return c.htlcs.TotalSettledMsat(offeredBy)
}
