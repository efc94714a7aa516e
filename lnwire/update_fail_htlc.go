package lnwire

import (
	"encoding/binary"
	"io"
)

// UpdateFailHTLC is sent by the receiver of an HTLC to fail it back,
// carrying an opaque, onion-encrypted reason this core does not interpret.
type UpdateFailHTLC struct {
	ChanID ChannelID
	ID     uint64
	Reason []byte
}

// NewUpdateFailHTLC returns a new UpdateFailHTLC.
func NewUpdateFailHTLC(chanID ChannelID, id uint64, reason []byte) *UpdateFailHTLC {
	return &UpdateFailHTLC{ChanID: chanID, ID: id, Reason: reason}
}

var _ Message = (*UpdateFailHTLC)(nil)

func (c *UpdateFailHTLC) Decode(r io.Reader) error {
	if err := readElements(r, &c.ChanID, &c.ID); err != nil {
		return err
	}
	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	c.Reason = make([]byte, length)
	return readElement(r, c.Reason)
}

func (c *UpdateFailHTLC) Encode(w io.Writer) error {
	if err := writeElements(w, c.ChanID, c.ID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(c.Reason))); err != nil {
		return err
	}
	return writeElement(w, c.Reason)
}

func (c *UpdateFailHTLC) MsgType() MessageType {
	return MsgUpdateFailHTLC
}
