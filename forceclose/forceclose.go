// Package forceclose builds the unsigned sweep and penalty transaction
// templates a force-closing channel needs once its own commitment has
// confirmed: the CSV-delayed sweep of to_local/second-stage outputs back
// to the owner's wallet, and the immediate penalty claim of every output
// on a counterparty commitment whose revocation secret the owner holds.
// It is grounded on lnd's contractcourt/htlc_timeout_resolver.go
// and breacharbiter-style penalty construction, reduced here to pure
// transaction templates: broadcast, fee-bumping, and confirmation
// tracking remain the orchestrator's job (see spec.md's out-of-scope
// on-chain watcher).
package forceclose

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"
)

// DelayedSweep is a single CSV-gated output (a to_local output, or a
// second-stage HTLC-success/timeout output) ready to be swept once its
// relative timelock matures.
type DelayedSweep struct {
	Outpoint      wire.OutPoint
	Amount        int64
	WitnessScript []byte
	CSVDelay      uint32
}

// BuildSweepTx spends sweep to destPkScript at feerate-adjusted amount,
// setting the input's sequence to the output's own CSV delay so the
// transaction is invalid until that delay matures.
func BuildSweepTx(sweep DelayedSweep, destPkScript []byte, feeSat int64) (*wire.MsgTx, error) {
	if feeSat >= sweep.Amount {
		return nil, fmt.Errorf("forceclose: fee %d sat exceeds sweep output value %d sat", feeSat, sweep.Amount)
	}

	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(&sweep.Outpoint, nil, nil)
	txIn.Sequence = sweep.CSVDelay
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(sweep.Amount-feeSat, destPkScript))

	return tx, nil
}

// RevokedOutput is a single output on a counterparty commitment that was
// later revoked, along with the script material needed to spend it via
// the penalty path (the revocation branch of a to_local or HTLC script).
type RevokedOutput struct {
	Outpoint      wire.OutPoint
	Amount        int64
	WitnessScript []byte
}

// BuildPenaltyTx sweeps every output of a single revoked commitment to
// destPkScript in one transaction, with no timelock: the penalty path is
// spendable the instant the revoked commitment confirms.
func BuildPenaltyTx(outputs []RevokedOutput, destPkScript []byte, feeSat int64) (*wire.MsgTx, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("forceclose: no revoked outputs to claim")
	}

	tx := wire.NewMsgTx(2)
	var total int64
	for _, o := range outputs {
		tx.AddTxIn(wire.NewTxIn(&o.Outpoint, nil, nil))
		total += o.Amount
	}
	if feeSat >= total {
		return nil, fmt.Errorf("forceclose: fee %d sat exceeds total penalty value %d sat", feeSat, total)
	}
	tx.AddTxOut(wire.NewTxOut(total-feeSat, destPkScript))

	return tx, nil
}

// RevocationWitness builds the witness stack for the revocation branch of
// a to_local-style script: a signature made with the derived revocation
// private key, then OP_TRUE (to take the OP_IF branch), then the witness
// script.
func RevocationWitness(witnessScript []byte, sig []byte, revocationPubKey *btcec.PublicKey) wire.TxWitness {
	witnessStack := wire.TxWitness(make([][]byte, 3))
	witnessStack[0] = sig
	witnessStack[1] = []byte{1} // forces execution into the revocationkey OP_IF branch.
	witnessStack[2] = witnessScript
	return witnessStack
}
