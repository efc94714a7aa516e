package main

import (
	"bytes"

	"github.com/lightningnetwork/lnchan/lnwire"
)

// fuzzDecodeMessage is a go-fuzz-style harness: it feeds data straight
// into lnwire.ReadMessage and returns 1 whenever the decode succeeds, so
// a corpus of interesting inputs accumulates on decode success the way
// go-fuzz expects. It never panics on malformed input; ReadMessage is
// the only thing under test here, not the rest of the channel core.
func fuzzDecodeMessage(data []byte) int {
	msg, err := lnwire.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return 0
	}

	var buf bytes.Buffer
	if _, err := lnwire.WriteMessage(&buf, msg); err != nil {
		panic(err)
	}

	reDecoded, err := lnwire.ReadMessage(bytes.NewReader(buf.Bytes()))
	if err != nil {
		panic(err)
	}
	if reDecoded.MsgType() != msg.MsgType() {
		panic("message type changed across re-encode")
	}

	return 1
}
