package lnchan

// ChannelState is the channel's coarse lifecycle stage.
type ChannelState uint8

const (
	PreOpening ChannelState = iota
	Opening
	Funded
	Open
	Closing
	ForceClosing
	Closed
)

func (s ChannelState) String() string {
	switch s {
	case PreOpening:
		return "PREOPENING"
	case Opening:
		return "OPENING"
	case Funded:
		return "FUNDED"
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	case ForceClosing:
		return "FORCE_CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// MarkFunded transitions PREOPENING/OPENING -> FUNDED once the funding
// transaction has reached sufficient depth. Idempotent: calling it again
// once FUNDED or later is a no-op: state transitions caused by external
// events are idempotent.
func (c *Channel) MarkFunded() {
	if c.state == PreOpening || c.state == Opening {
		c.state = Funded
		log.Debugf("ChannelPoint(%v): funding reached minimum depth, "+
			"state -> FUNDED", c.FundingOutpoint)
	}
}

// MarkOpen transitions FUNDED -> OPEN once both sides have exchanged
// funding_locked.
func (c *Channel) MarkOpen() {
	if c.state == Funded {
		c.state = Open
		log.Debugf("ChannelPoint(%v): funding_locked exchanged, "+
			"state -> OPEN", c.FundingOutpoint)
	}
}

// MarkClosing transitions OPEN -> CLOSING on a cooperative close message.
func (c *Channel) MarkClosing() {
	if c.state == Open {
		c.state = Closing
		log.Debugf("ChannelPoint(%v): cooperative close initiated, "+
			"state -> CLOSING", c.FundingOutpoint)
	}
}

// MarkForceClosing transitions to FORCE_CLOSING. Within the core only
// ForceClose calls it; returning a RemoteMisbehaving or CryptoFailure
// error leaves the state unchanged, and the caller moves the channel to
// FORCE_CLOSING.
func (c *Channel) MarkForceClosing() {
	if c.state != Closed {
		c.state = ForceClosing
		log.Warnf("ChannelPoint(%v): state -> FORCE_CLOSING", c.FundingOutpoint)
	}
}

// MarkClosed transitions to CLOSED once the watcher confirms the closing
// transaction.
func (c *Channel) MarkClosed() {
	c.state = Closed
	log.Debugf("ChannelPoint(%v): state -> CLOSED", c.FundingOutpoint)
}

// State returns the channel's current lifecycle state.
func (c *Channel) State() ChannelState {
	return c.state
}
