package lnchan

import (
	"bytes"

	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/lightningnetwork/lnchan/chanfee"
	"github.com/lightningnetwork/lnchan/forceclose"
	"github.com/lightningnetwork/lnchan/htlc"
	"github.com/lightningnetwork/lnchan/input"
	"github.com/lightningnetwork/lnchan/keychain"
)

// ForceCloseSummary is everything a force-close produces: the
// broadcastable local commitment, a second-stage transaction per non-dust
// HTLC it carries, and a CSV-delayed sweep per second-stage/to_local
// output. It holds no penalty transaction; PenaltyTx builds one
// separately from revoked outputs the caller supplies.
type ForceCloseSummary struct {
	CommitTx        *wire.MsgTx
	HTLCResolutions []HTLCResolution
	DelayedSweeps   []forceclose.DelayedSweep
}

// HTLCResolution is the signed second-stage transaction for one HTLC
// output on our own force-closed commitment.
type HTLCResolution struct {
	HTLC      htlc.Add
	IsTimeout bool
	SignedTx  *wire.MsgTx
	CSVDelay  uint32
}

// ForceCloseTx builds and fully signs our own current commitment
// transaction: our live signature plus the remote signature we stored the
// last time we received and locked in this exact commitment. The result
// is deterministic given the channel's current state.
func (c *Channel) ForceCloseTx() (*wire.MsgTx, error) {
	if c.Local.CurrentPerCommitmentPoint == nil {
		return nil, newStateError("ForceCloseTx", c.state)
	}

	view, err := c.buildCommitment(htlc.Local, c.htlcs.Ctn(htlc.Local), c.Local.CurrentPerCommitmentPoint)
	if err != nil {
		return nil, err
	}

	sigHash, err := c.commitSigHash(view)
	if err != nil {
		return nil, err
	}
	ourSig := btcecdsa.Sign(c.Local.MultisigPriv, sigHash)
	var ourFixed [64]byte
	copy(ourFixed[:], fixedSize64(ourSig))

	witness, err := input.FundingWitness(
		view.fundingWitnessScript,
		c.Local.MultisigKey, derWithSigHashAll(ourFixed),
		c.Remote.MultisigKey, derWithSigHashAll(c.Local.CurrentCommitmentSignature),
	)
	if err != nil {
		return nil, err
	}
	view.tx.TxIn[0].Witness = witness

	return view.tx, nil
}

// ForceClose assembles the full force-close bundle:
// the signed commitment, every non-dust HTLC's second-stage transaction
// (signed with our own stored + derived signatures), and the CSV-delayed
// sweep template for every output that returns to us eventually.
func (c *Channel) ForceClose() (*ForceCloseSummary, error) {
	commitTx, err := c.ForceCloseTx()
	if err != nil {
		return nil, err
	}
	c.MarkForceClosing()

	ctn := c.htlcs.Ctn(htlc.Local)
	perCommitmentPoint := c.Local.CurrentPerCommitmentPoint
	view, err := c.buildCommitment(htlc.Local, ctn, perCommitmentPoint)
	if err != nil {
		return nil, err
	}

	if c.watcherSink != nil {
		var buf bytes.Buffer
		if err := commitTx.Serialize(&buf); err != nil {
			return nil, err
		}
		c.watcherSink.NotifyForceClose(c.ChannelID, buf.Bytes())
	}

	summary := &ForceCloseSummary{CommitTx: commitTx}

	toSelfDelay := uint32(c.Local.ToSelfDelay)
	if view.toLocalIndex >= 0 {
		summary.DelayedSweeps = append(summary.DelayedSweeps, forceclose.DelayedSweep{
			Outpoint:      wire.OutPoint{Hash: commitTx.TxHash(), Index: uint32(view.toLocalIndex)},
			Amount:        commitTx.TxOut[view.toLocalIndex].Value,
			WitnessScript: view.toLocalScript,
			CSVDelay:      toSelfDelay,
		})
	}

	htlcPriv := keychain.DerivePrivKey(c.Local.HtlcPriv, perCommitmentPoint)
	for i := range view.htlcs {
		h := &view.htlcs[i]
		isTimeout := h.offeredByOwner

		secondStageTx, toLocalScript, err := input.SecondStageTx(
			wire.OutPoint{Hash: commitTx.TxHash(), Index: uint32(h.outputIndex)},
			int64(h.amount), h.CltvExpiry, toSelfDelay,
			view.delayedKey, view.revocationKey, isTimeout,
		)
		if err != nil {
			return nil, err
		}

		hashCache := txscript.NewTxSigHashes(secondStageTx)
		sigHash, err := txscript.CalcWitnessSigHash(
			h.witnessScript, hashCache, txscript.SigHashAll, secondStageTx, 0, int64(h.amount),
		)
		if err != nil {
			return nil, err
		}
		ourHtlcSig := btcecdsa.Sign(htlcPriv, sigHash)
		var ourFixed [64]byte
		copy(ourFixed[:], fixedSize64(ourHtlcSig))

		var remoteSig [64]byte
		if i < len(c.Local.CurrentHtlcSignatures) {
			remoteSig = c.Local.CurrentHtlcSignatures[i]
		}

		witness := input.HTLCSuccessWitness(h.witnessScript, derWithSigHashAll(ourFixed),
			derWithSigHashAll(remoteSig), isTimeout)
		secondStageTx.TxIn[0].Witness = witness

		summary.HTLCResolutions = append(summary.HTLCResolutions, HTLCResolution{
			HTLC:      h.Add,
			IsTimeout: isTimeout,
			SignedTx:  secondStageTx,
			CSVDelay:  toSelfDelay,
		})
		summary.DelayedSweeps = append(summary.DelayedSweeps, forceclose.DelayedSweep{
			Outpoint:      wire.OutPoint{Hash: secondStageTx.TxHash(), Index: 0},
			Amount:        secondStageTx.TxOut[0].Value,
			WitnessScript: toLocalScript,
			CSVDelay:      toSelfDelay,
		})
	}

	return summary, nil
}

// PenaltyTx builds an unsigned transaction claiming the given revoked
// outputs to destPkScript, less feeSat, by delegating to
// forceclose.BuildPenaltyTx. It does not read RemoteCommitmentToBeRevoked
// or consult the remote revocation store; the outputs claimed are exactly
// revokedOutputs. destPkScript is the orchestrator-supplied wallet
// address to sweep to.
func (c *Channel) PenaltyTx(revokedOutputs []forceclose.RevokedOutput, destPkScript []byte, feeSat int64) (*wire.MsgTx, error) {
	return forceclose.BuildPenaltyTx(revokedOutputs, destPkScript, feeSat)
}

// CommitmentFee reports the fee (sat) owner's current commitment pays at
// the committed feerate, for orchestrator fee-bumping decisions.
func (c *Channel) CommitmentFee(owner htlc.Side) int64 {
	ctn := c.htlcs.Ctn(owner)
	dustLimit := btcutil.Amount(c.commonFor(owner).DustLimitSat)
	feerate := btcutil.Amount(c.Constraints.FeeratePerKw)

	nonDust := 0
	for _, v := range c.pendingViewsFor(owner, ctn, nil) {
		if !chanfee.IsDustHTLC(btcutil.Amount(v.add.AmountMsat/1000), dustLimit, feerate, v.offered) {
			nonDust++
		}
	}
	return int64(chanfee.CommitFee(feerate, nonDust))
}
