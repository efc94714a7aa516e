package lnwire

import "io"

// UpdateAddHTLC is sent by a party wishing to offer a new HTLC to the
// other side. The opaque OnionBlob routes the payment further; this core
// stores it verbatim without interpreting it (onion construction and
// routing are out of scope).
type UpdateAddHTLC struct {
	ChanID      ChannelID
	ID          uint64
	Amount      MilliSatoshi
	PaymentHash [32]byte
	Expiry      uint32
	OnionBlob   [1366]byte
}

// NewUpdateAddHTLC returns a new UpdateAddHTLC.
func NewUpdateAddHTLC(chanID ChannelID, id uint64, amt MilliSatoshi,
	paymentHash [32]byte, expiry uint32, onionBlob [1366]byte) *UpdateAddHTLC {

	return &UpdateAddHTLC{
		ChanID:      chanID,
		ID:          id,
		Amount:      amt,
		PaymentHash: paymentHash,
		Expiry:      expiry,
		OnionBlob:   onionBlob,
	}
}

var _ Message = (*UpdateAddHTLC)(nil)

func (c *UpdateAddHTLC) Decode(r io.Reader) error {
	return readElements(r,
		&c.ChanID, &c.ID, &c.Amount, &c.PaymentHash, &c.Expiry,
		c.OnionBlob[:],
	)
}

func (c *UpdateAddHTLC) Encode(w io.Writer) error {
	return writeElements(w,
		c.ChanID, c.ID, c.Amount, c.PaymentHash, c.Expiry,
		c.OnionBlob[:],
	)
}

func (c *UpdateAddHTLC) MsgType() MessageType {
	return MsgUpdateAddHTLC
}
