package lnwire

import "io"

// UpdateFulfillHTLC is sent by the receiver of an HTLC to settle it with
// the payment_preimage, once it has been confirmed as valid against the
// HTLC's payment_hash. A subsequent CommitSig "locks in" the removal.
type UpdateFulfillHTLC struct {
	// ChanID references an active channel which holds the HTLC to be
	// settled.
	ChanID ChannelID

	// ID denotes the exact HTLC stage within the receiving node's
	// commitment transaction to be removed.
	ID uint64

	// PaymentPreimage is the preimage required to fully settle an HTLC.
	PaymentPreimage [32]byte
}

// NewUpdateFulfillHTLC returns a new UpdateFulfillHTLC.
func NewUpdateFulfillHTLC(chanID ChannelID, id uint64,
	preimage [32]byte) *UpdateFulfillHTLC {

	return &UpdateFulfillHTLC{
		ChanID:          chanID,
		ID:              id,
		PaymentPreimage: preimage,
	}
}

var _ Message = (*UpdateFulfillHTLC)(nil)

func (c *UpdateFulfillHTLC) Decode(r io.Reader) error {
	return readElements(r, &c.ChanID, &c.ID, &c.PaymentPreimage)
}

func (c *UpdateFulfillHTLC) Encode(w io.Writer) error {
	return writeElements(w, c.ChanID, c.ID, c.PaymentPreimage)
}

func (c *UpdateFulfillHTLC) MsgType() MessageType {
	return MsgUpdateFulfillHTLC
}
