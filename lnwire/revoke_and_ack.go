package lnwire

import (
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// RevokeAndAck is sent in response to a CommitSig, revealing the
// per-commitment secret for the commitment just superseded and the point
// to be used for the commitment after next.
type RevokeAndAck struct {
	ChanID                 ChannelID
	Revocation             [32]byte
	NextPerCommitmentPoint *btcec.PublicKey
}

// NewRevokeAndAck returns a new RevokeAndAck.
func NewRevokeAndAck(chanID ChannelID, revocation [32]byte,
	nextPoint *btcec.PublicKey) *RevokeAndAck {

	return &RevokeAndAck{
		ChanID:                 chanID,
		Revocation:             revocation,
		NextPerCommitmentPoint: nextPoint,
	}
}

var _ Message = (*RevokeAndAck)(nil)

func (c *RevokeAndAck) Decode(r io.Reader) error {
	return readElements(r, &c.ChanID, &c.Revocation, &c.NextPerCommitmentPoint)
}

func (c *RevokeAndAck) Encode(w io.Writer) error {
	return writeElements(w, c.ChanID, c.Revocation, c.NextPerCommitmentPoint)
}

func (c *RevokeAndAck) MsgType() MessageType {
	return MsgRevokeAndAck
}
