package lnwire_test

import (
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lightningnetwork/lnchan/lnwire"
)

func testChanID() lnwire.ChannelID {
	var id lnwire.ChannelID
	id[0] = 0xaa
	id[31] = 0xbb
	return id
}

func testPubKey(t *testing.T, seed byte) *btcec.PublicKey {
	t.Helper()
	var buf [32]byte
	buf[0] = seed
	buf[31] = 1
	priv, _ := btcec.PrivKeyFromBytes(buf[:])
	return priv.PubKey()
}

// TestMessageRoundTrip runs every message type this package implements
// through WriteMessage/ReadMessage and confirms the decoded value
// equals the original.
func TestMessageRoundTrip(t *testing.T) {
	t.Parallel()

	var onion [1366]byte
	onion[0] = 0x5

	tests := []struct {
		name string
		msg  lnwire.Message
	}{
		{
			name: "update_add_htlc",
			msg: lnwire.NewUpdateAddHTLC(
				testChanID(), 42, 100_000, [32]byte{0x01, 0x02}, 500_000, onion,
			),
		},
		{
			name: "update_fulfill_htlc",
			msg:  lnwire.NewUpdateFulfillHTLC(testChanID(), 42, [32]byte{0xaa}),
		},
		{
			name: "update_fail_htlc",
			msg:  lnwire.NewUpdateFailHTLC(testChanID(), 42, []byte("insufficient_fee")),
		},
		{
			name: "update_fail_htlc_empty_reason",
			msg:  lnwire.NewUpdateFailHTLC(testChanID(), 42, nil),
		},
		{
			name: "commit_sig_no_htlcs",
			msg:  lnwire.NewCommitSig(testChanID(), [64]byte{0x01}, nil),
		},
		{
			name: "commit_sig_with_htlcs",
			msg: lnwire.NewCommitSig(testChanID(), [64]byte{0x01}, [][64]byte{
				{0x02}, {0x03}, {0x04},
			}),
		},
		{
			name: "revoke_and_ack",
			msg:  lnwire.NewRevokeAndAck(testChanID(), [32]byte{0xcc}, testPubKey(t, 0x09)),
		},
		{
			name: "update_fee",
			msg:  lnwire.NewUpdateFee(testChanID(), 2_500),
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			_, err := lnwire.WriteMessage(&buf, tc.msg)
			require.NoError(t, err)

			decoded, err := lnwire.ReadMessage(&buf)
			require.NoError(t, err)
			require.Equal(t, tc.msg, decoded)
			require.Equal(t, tc.msg.MsgType(), decoded.MsgType())
		})
	}
}

// TestReadMessageUnknownType confirms a message type this package does
// not implement surfaces as UnknownMessage rather than a generic
// decode error.
func TestReadMessageUnknownType(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xff})

	_, err := lnwire.ReadMessage(&buf)
	require.Error(t, err)

	var unknown *lnwire.UnknownMessage
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, lnwire.MessageType(0xffff), unknown.Type)
}

// TestWriteMessagePrependsTypeHeader confirms the 2-byte big-endian
// type header precedes the payload on the wire, with no length or
// checksum framing (this core assumes an already-framed transport).
func TestWriteMessagePrependsTypeHeader(t *testing.T) {
	t.Parallel()

	msg := lnwire.NewUpdateFee(testChanID(), 1_000)

	var buf bytes.Buffer
	n, err := lnwire.WriteMessage(&buf, msg)
	require.NoError(t, err)
	require.Equal(t, n, buf.Len())

	require.Equal(t, byte(0), buf.Bytes()[0])
	require.Equal(t, byte(lnwire.MsgUpdateFee), buf.Bytes()[1])
}
