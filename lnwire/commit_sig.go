package lnwire

import (
	"encoding/binary"
	"io"
)

// signatureSize is the fixed size of a compact (r, s) Schnorr/ECDSA
// signature as carried on the wire (no DER encoding, no sighash byte).
const signatureSize = 64

// CommitSig carries the sender's signature for the recipient's next
// commitment transaction, plus one signature per HTLC output in BIP69
// canonical order.
type CommitSig struct {
	ChanID    ChannelID
	CommitSig [signatureSize]byte
	HtlcSigs  [][signatureSize]byte
}

// NewCommitSig returns a new CommitSig.
func NewCommitSig(chanID ChannelID, sig [signatureSize]byte,
	htlcSigs [][signatureSize]byte) *CommitSig {

	return &CommitSig{ChanID: chanID, CommitSig: sig, HtlcSigs: htlcSigs}
}

var _ Message = (*CommitSig)(nil)

func (c *CommitSig) Decode(r io.Reader) error {
	if err := readElements(r, &c.ChanID, &c.CommitSig); err != nil {
		return err
	}
	var numSigs uint16
	if err := binary.Read(r, binary.BigEndian, &numSigs); err != nil {
		return err
	}
	if numSigs > 0 {
		c.HtlcSigs = make([][signatureSize]byte, numSigs)
	}
	for i := range c.HtlcSigs {
		if err := readElement(r, &c.HtlcSigs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (c *CommitSig) Encode(w io.Writer) error {
	if err := writeElements(w, c.ChanID, c.CommitSig); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(c.HtlcSigs))); err != nil {
		return err
	}
	for _, sig := range c.HtlcSigs {
		if err := writeElement(w, sig); err != nil {
			return err
		}
	}
	return nil
}

func (c *CommitSig) MsgType() MessageType {
	return MsgCommitSig
}
