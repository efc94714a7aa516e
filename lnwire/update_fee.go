package lnwire

import "io"

// UpdateFee is sent by the channel initiator to propose a new commitment
// feerate. BOLT-02 and this core both reject it from a non-initiator
// (see Channel.UpdateFee).
type UpdateFee struct {
	ChanID   ChannelID
	FeePerKw uint32
}

// NewUpdateFee returns a new UpdateFee.
func NewUpdateFee(chanID ChannelID, feePerKw uint32) *UpdateFee {
	return &UpdateFee{ChanID: chanID, FeePerKw: feePerKw}
}

var _ Message = (*UpdateFee)(nil)

func (c *UpdateFee) Decode(r io.Reader) error {
	return readElements(r, &c.ChanID, &c.FeePerKw)
}

func (c *UpdateFee) Encode(w io.Writer) error {
	return writeElements(w, c.ChanID, c.FeePerKw)
}

func (c *UpdateFee) MsgType() MessageType {
	return MsgUpdateFee
}
