// Package lnwire implements the small slice of the BOLT-02 commitment
// update wire protocol this core produces and consumes:
// update_add_htlc, update_fulfill_htlc, update_fail_htlc,
// commitment_signed, revoke_and_ack, and update_fee. It is trimmed from
// lnd's (much larger) lnwire package down to the six
// message types the Channel state machine's method table names, carrying
// over that package's Message interface and raw big-endian/no-TLV wire
// codec style unchanged.
package lnwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// MaxMessagePayload is the maximum bytes a message can be regardless of
// other individual limits imposed by messages themselves.
const MaxMessagePayload = 65535

// MessageType is the unique 2-byte big-endian integer that indicates the
// type of message on the wire. Lightning messages carry no length field or
// checksum: they're assumed to run inside an already-authenticated,
// already-framed transport (out of scope for this core).
type MessageType uint16

const (
	MsgUpdateAddHTLC     MessageType = 128
	MsgUpdateFulfillHTLC MessageType = 130
	MsgUpdateFailHTLC    MessageType = 131
	MsgCommitSig         MessageType = 132
	MsgRevokeAndAck      MessageType = 133
	MsgUpdateFee         MessageType = 134
)

// ChannelID uniquely identifies a channel, derived by the orchestrator
// from the funding outpoint. Kept as an opaque 32-byte value here, since
// its derivation (funding txid XOR output index) belongs to the channel
// opening flow, out of this core's scope.
type ChannelID [32]byte

// MilliSatoshi is a thousandth of a satoshi; the unit all HTLC and balance
// amounts within the channel are expressed in.
type MilliSatoshi uint64

// ShortChannelID is the compact 8-byte (blockheight,txindex,outputindex)
// channel identifier assigned once a channel is confirmed and announced.
type ShortChannelID uint64

// Message is the interface every wire message on this core's surface
// implements.
type Message interface {
	Decode(io.Reader) error
	Encode(io.Writer) error
	MsgType() MessageType
}

// UnknownMessage is returned by ReadMessage for a message type this
// package does not implement.
type UnknownMessage struct {
	Type MessageType
}

func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("lnwire: unknown message type %d", u.Type)
}

func makeEmptyMessage(msgType MessageType) (Message, error) {
	switch msgType {
	case MsgUpdateAddHTLC:
		return &UpdateAddHTLC{}, nil
	case MsgUpdateFulfillHTLC:
		return &UpdateFulfillHTLC{}, nil
	case MsgUpdateFailHTLC:
		return &UpdateFailHTLC{}, nil
	case MsgCommitSig:
		return &CommitSig{}, nil
	case MsgRevokeAndAck:
		return &RevokeAndAck{}, nil
	case MsgUpdateFee:
		return &UpdateFee{}, nil
	default:
		return nil, &UnknownMessage{Type: msgType}
	}
}

// WriteMessage serializes msg with its 2-byte type header.
func WriteMessage(w io.Writer, msg Message) (int, error) {
	var bw bytes.Buffer
	if err := msg.Encode(&bw); err != nil {
		return 0, err
	}
	payload := bw.Bytes()
	if len(payload) > MaxMessagePayload {
		return 0, fmt.Errorf("lnwire: payload of %d bytes exceeds max %d",
			len(payload), MaxMessagePayload)
	}

	var mType [2]byte
	binary.BigEndian.PutUint16(mType[:], uint16(msg.MsgType()))

	total := 0
	n, err := w.Write(mType[:])
	total += n
	if err != nil {
		return total, err
	}
	n, err = w.Write(payload)
	total += n
	return total, err
}

// ReadMessage reads, type-switches, and decodes the next message from r.
func ReadMessage(r io.Reader) (Message, error) {
	var mType [2]byte
	if _, err := io.ReadFull(r, mType[:]); err != nil {
		return nil, err
	}
	msg, err := makeEmptyMessage(MessageType(binary.BigEndian.Uint16(mType[:])))
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(r); err != nil {
		return nil, err
	}
	return msg, nil
}

// --- shared element codec, in the style of this package's historical
// readElements/writeElements helpers ---

func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case ChannelID:
		_, err := w.Write(e[:])
		return err
	case uint64:
		return binary.Write(w, binary.BigEndian, e)
	case MilliSatoshi:
		return binary.Write(w, binary.BigEndian, uint64(e))
	case uint32:
		return binary.Write(w, binary.BigEndian, e)
	case ShortChannelID:
		return binary.Write(w, binary.BigEndian, uint64(e))
	case [32]byte:
		_, err := w.Write(e[:])
		return err
	case [64]byte:
		_, err := w.Write(e[:])
		return err
	case []byte:
		_, err := w.Write(e)
		return err
	case *btcec.PublicKey:
		_, err := w.Write(e.SerializeCompressed())
		return err
	case chainhash.Hash:
		_, err := w.Write(e[:])
		return err
	default:
		return fmt.Errorf("lnwire: unknown type %T in writeElement", e)
	}
}

func writeElements(w io.Writer, elements ...interface{}) error {
	for _, e := range elements {
		if err := writeElement(w, e); err != nil {
			return err
		}
	}
	return nil
}

func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *ChannelID:
		_, err := io.ReadFull(r, e[:])
		return err
	case *uint64:
		return binary.Read(r, binary.BigEndian, e)
	case *MilliSatoshi:
		return binary.Read(r, binary.BigEndian, (*uint64)(e))
	case *uint32:
		return binary.Read(r, binary.BigEndian, e)
	case *ShortChannelID:
		return binary.Read(r, binary.BigEndian, (*uint64)(e))
	case *[32]byte:
		_, err := io.ReadFull(r, e[:])
		return err
	case *[64]byte:
		_, err := io.ReadFull(r, e[:])
		return err
	case []byte:
		_, err := io.ReadFull(r, e)
		return err
	case **btcec.PublicKey:
		var buf [33]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		pub, err := btcec.ParsePubKey(buf[:])
		if err != nil {
			return err
		}
		*e = pub
		return nil
	case *chainhash.Hash:
		_, err := io.ReadFull(r, e[:])
		return err
	default:
		return fmt.Errorf("lnwire: unknown type %T in readElement", e)
	}
}

func readElements(r io.Reader, elements ...interface{}) error {
	for _, e := range elements {
		if err := readElement(r, e); err != nil {
			return err
		}
	}
	return nil
}
