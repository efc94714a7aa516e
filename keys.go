package lnchan

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Outpoint is an immutable 32-byte txid plus output index.
type Outpoint struct {
	Txid        [32]byte
	OutputIndex uint32
}

// Wire converts Outpoint to the wire format used when building transactions.
func (o Outpoint) Wire() wire.OutPoint {
	return wire.OutPoint{Hash: chainhash.Hash(o.Txid), Index: o.OutputIndex}
}
