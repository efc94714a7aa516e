// Package chanfee computes commitment transaction weight and fee, and
// classifies HTLCs as dust, following BOLT-03's fixed weight constants.
// The named-constant style is carried from lnd's
// lnwallet/size.go weight-estimator.
package chanfee

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/lightningnetwork/lnchan/input"
)

const (
	// BaseCommitmentWeight is the weight of a commitment transaction
	// with no HTLC outputs: version, locktime, inputs, to_local and
	// to_remote outputs, and the witness for the 2-of-2 funding input.
	BaseCommitmentWeight = 724

	// HTLCWeight is the per-HTLC weight added to a commitment
	// transaction for each non-dust HTLC output it carries.
	HTLCWeight = 172
)

// CommitWeight returns the weight of a commitment transaction carrying
// numHTLCs non-dust HTLC outputs.
func CommitWeight(numHTLCs int) int64 {
	return BaseCommitmentWeight + HTLCWeight*int64(numHTLCs)
}

// CommitFee returns the fee, in satoshis, for a commitment transaction at
// feeratePerKw (sat/kw) carrying numHTLCs non-dust HTLCs.
func CommitFee(feeratePerKw btcutil.Amount, numHTLCs int) btcutil.Amount {
	weight := CommitWeight(numHTLCs)
	return feeratePerKw * btcutil.Amount(weight) / 1000
}

// IsDustHTLC reports whether an HTLC of the given amount, appearing in a
// commitment owned by a party with the given dust limit, is dust: its
// value doesn't clear the relevant second-stage transaction's own fee at
// the current feerate.
//
//	dust iff amt_sat < dust_limit + weight(timeout_or_success) * feerate / 1000
func IsDustHTLC(amt btcutil.Amount, dustLimit btcutil.Amount, feeratePerKw btcutil.Amount, offered bool) bool {
	weight := input.HTLCSuccessWeight
	if offered {
		weight = input.HTLCTimeoutWeight
	}
	htlcFee := feeratePerKw * btcutil.Amount(weight) / 1000
	return amt < dustLimit+htlcFee
}
