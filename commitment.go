package lnchan

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcutil/txsort"

	"github.com/lightningnetwork/lnchan/chanfee"
	"github.com/lightningnetwork/lnchan/htlc"
	"github.com/lightningnetwork/lnchan/input"
	"github.com/lightningnetwork/lnchan/keychain"
	"github.com/lightningnetwork/lnchan/revocation"
)

// includedHTLC is an HTLC that survived dust-filtering and made it into a
// commitment transaction, along with everything needed to sign or verify
// its second-stage transaction.
type includedHTLC struct {
	htlc.Add
	offeredByOwner bool
	witnessScript  []byte
	amount         btcutil.Amount
	outputIndex    int
}

// commitmentView is the output of buildCommitment: the unsigned
// transaction plus the context needed to sign or verify it and its
// second-stage HTLC transactions.
type commitmentView struct {
	owner               htlc.Side
	ctn                 uint64
	perCommitmentPoint  *btcec.PublicKey
	tx                  *wire.MsgTx
	fundingWitnessScript []byte
	htlcs               []includedHTLC
	toLocalScript       []byte
	toLocalIndex        int
	revocationKey       *btcec.PublicKey
	delayedKey          *btcec.PublicKey
	localHtlcKey        *btcec.PublicKey
	remoteHtlcKey       *btcec.PublicKey
}

// obscuredCommitNumber XORs ctn with the first 48 bits (the first six
// bytes, read big-endian) of
// SHA256(open_payment_basepoint || accept_payment_basepoint), the
// commitment-number obfuscation scheme.
func (c *Channel) obscuredCommitNumber(ctn uint64) uint64 {
	openBP, acceptBP := c.Remote.PaymentBasepoint, c.Local.PaymentBasepoint
	if c.Constraints.IsInitiator {
		openBP, acceptBP = c.Local.PaymentBasepoint, c.Remote.PaymentBasepoint
	}

	h := sha256.New()
	h.Write(openBP.SerializeCompressed())
	h.Write(acceptBP.SerializeCompressed())
	digest := h.Sum(nil)

	var buf [8]byte
	copy(buf[2:], digest[0:6])
	obscure48 := binary.BigEndian.Uint64(buf[:])

	return ctn ^ obscure48
}

// buildCommitment constructs the unsigned commitment transaction belonging
// to owner at commitment number ctn, using perCommitmentPoint as owner's
// per-commitment point for this ctn. This implements the seven-step
// commitment-construction algorithm; it is invoked identically by
// SignNextCommitment (owner == REMOTE) and ReceiveNewCommitment's
// verification path (owner == LOCAL).
func (c *Channel) buildCommitment(owner htlc.Side, ctn uint64, perCommitmentPoint *btcec.PublicKey) (*commitmentView, error) {
	self := c.commonFor(owner)
	other := c.commonFor(otherSide(owner))

	revocationKey := keychain.DeriveRevocationPubKey(other.RevocationBasepoint, perCommitmentPoint)
	delayedKey := keychain.DerivePubKey(self.DelayedBasepoint, perCommitmentPoint)
	remoteKey := keychain.DerivePubKey(other.PaymentBasepoint, perCommitmentPoint)
	localHtlcKey := keychain.DerivePubKey(self.HtlcBasepoint, perCommitmentPoint)
	remoteHtlcKey := keychain.DerivePubKey(other.HtlcBasepoint, perCommitmentPoint)

	dustLimit := btcutil.Amount(self.DustLimitSat)
	feerate := btcutil.Amount(c.Constraints.FeeratePerKw)

	// Step 4: enumerate the HTLCs this commitment carries, dropping dust.
	views := c.pendingViewsFor(owner, ctn, nil)

	var included []includedHTLC
	for _, v := range views {
		if chanfee.IsDustHTLC(btcutil.Amount(v.add.AmountMsat/1000), dustLimit, feerate, v.offered) {
			continue
		}

		var script []byte
		var err error
		if v.offered {
			script, err = input.OfferedHTLCScript(localHtlcKey, remoteHtlcKey, revocationKey, v.add.PaymentHash)
		} else {
			script, err = input.ReceivedHTLCScript(v.add.CltvExpiry, localHtlcKey, remoteHtlcKey, revocationKey, v.add.PaymentHash)
		}
		if err != nil {
			return nil, fmt.Errorf("building htlc script: %w", err)
		}

		included = append(included, includedHTLC{
			Add:            v.add,
			offeredByOwner: v.offered,
			witnessScript:  script,
			amount:         btcutil.Amount(v.add.AmountMsat / 1000),
		})
	}

	// Step 2-3: balances, net of settled flows and pending HTLCs, less
	// the commitment fee from the initiator's own balance.
	toLocalMsat := int64(c.Balance(owner)) - int64(sumPendingOwner(views, true))
	toRemoteMsat := int64(c.Balance(otherSide(owner))) - int64(sumPendingOwner(views, false))

	fee := chanfee.CommitFee(feerate, len(included))
	initiatorIsOwner := (owner == htlc.Local && c.Constraints.IsInitiator) ||
		(owner == htlc.Remote && !c.Constraints.IsInitiator)
	if initiatorIsOwner {
		toLocalMsat -= int64(fee) * 1000
	} else {
		toRemoteMsat -= int64(fee) * 1000
	}

	tx := wire.NewMsgTx(2)
	fundingOutpoint := c.FundingOutpoint.Wire()
	tx.AddTxIn(wire.NewTxIn(&fundingOutpoint, nil, nil))

	type pendingOutput struct {
		txOut *wire.TxOut
		cltv  uint32
		htlc  *includedHTLC
	}
	var outputs []pendingOutput

	toLocalScript, err := input.CommitScriptToLocal(uint32(self.ToSelfDelay), delayedKey, revocationKey)
	if err != nil {
		return nil, fmt.Errorf("to_local script: %w", err)
	}
	toLocalPkScript, err := input.WitnessScriptHash(toLocalScript)
	if err != nil {
		return nil, err
	}
	toLocalAmt := toLocalMsat / 1000
	if toLocalAmt >= int64(dustLimit) {
		outputs = append(outputs, pendingOutput{
			txOut: wire.NewTxOut(toLocalAmt, toLocalPkScript),
		})
	}

	toRemotePkScript, err := input.CommitScriptToRemote(remoteKey)
	if err != nil {
		return nil, fmt.Errorf("to_remote script: %w", err)
	}
	toRemoteAmt := toRemoteMsat / 1000
	if toRemoteAmt >= int64(dustLimit) {
		outputs = append(outputs, pendingOutput{
			txOut: wire.NewTxOut(toRemoteAmt, toRemotePkScript),
		})
	}

	for i := range included {
		h := &included[i]
		pkScript, err := input.WitnessScriptHash(h.witnessScript)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, pendingOutput{
			txOut: wire.NewTxOut(int64(h.amount), pkScript),
			cltv:  h.CltvExpiry,
			htlc:  h,
		})
	}

	// Step 6: BIP69 output ordering (amount asc, then scriptPubKey
	// lexicographic). We let txsort do the canonical sort itself — our
	// single funding input is untouched by it — then walk the result back
	// to our pendingOutput metadata, breaking any true tie (identical
	// amount and scriptPubKey, only possible between two HTLC outputs) by
	// CLTV ascending, which txsort's comparator doesn't know about.
	for _, o := range outputs {
		tx.AddTxOut(o.txOut)
	}
	txsort.InPlaceSort(tx)

	byKey := make(map[string][]*pendingOutput)
	for i := range outputs {
		key := fmt.Sprintf("%d:%x", outputs[i].txOut.Value, outputs[i].txOut.PkScript)
		byKey[key] = append(byKey[key], &outputs[i])
	}
	for _, bucket := range byKey {
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].cltv < bucket[j].cltv })
	}

	toLocalIndex := -1
	for idx, txOut := range tx.TxOut {
		key := fmt.Sprintf("%d:%x", txOut.Value, txOut.PkScript)
		bucket := byKey[key]
		o := bucket[0]
		byKey[key] = bucket[1:]

		if o.htlc != nil {
			o.htlc.outputIndex = idx
		} else if bytes.Equal(txOut.PkScript, toLocalPkScript) {
			toLocalIndex = idx
		}
	}

	// included was built by walking pendingViewsFor, which in turn walks
	// HTLCManager's maps in nondeterministic order. Re-sort it by the
	// BIP69 output index just assigned above so every caller that indexes
	// parallel slices by position (htlc_sig order in SignNextCommitment/
	// ReceiveNewCommitment, CurrentHtlcSignatures lookup in ForceClose)
	// agrees on the same order.
	sort.Slice(included, func(i, j int) bool {
		return included[i].outputIndex < included[j].outputIndex
	})

	// Step 7: locktime/sequence obfuscation.
	obscured := c.obscuredCommitNumber(ctn)
	tx.LockTime = uint32((obscured & 0xFFFFFF) | 0x20000000)
	tx.TxIn[0].Sequence = uint32(((obscured >> 24) & 0xFFFFFF) | 0x80000000)

	fundingScript, err := input.FundingWitnessScript(c.Local.MultisigKey, c.Remote.MultisigKey)
	if err != nil {
		return nil, fmt.Errorf("funding script: %w", err)
	}

	return &commitmentView{
		owner:                owner,
		ctn:                  ctn,
		perCommitmentPoint:   perCommitmentPoint,
		tx:                   tx,
		fundingWitnessScript: fundingScript,
		htlcs:                included,
		toLocalScript:        toLocalScript,
		toLocalIndex:         toLocalIndex,
		revocationKey:        revocationKey,
		delayedKey:           delayedKey,
		localHtlcKey:         localHtlcKey,
		remoteHtlcKey:        remoteHtlcKey,
	}, nil
}

// sumPendingOwner sums the amounts of pending HTLCs offered by the
// commitment owner (forOwner == true) or by the counterparty (false).
func sumPendingOwner(views []pendingView, forOwner bool) uint64 {
	var total uint64
	for _, v := range views {
		if v.offered == forOwner {
			total += v.add.AmountMsat
		}
	}
	return total
}

// commitSigHash computes the BIP143 witness signature hash for a
// commitment transaction spending the 2-of-2 funding output.
func (c *Channel) commitSigHash(view *commitmentView) ([]byte, error) {
	hashCache := txscript.NewTxSigHashes(view.tx)
	return txscript.CalcWitnessSigHash(
		view.fundingWitnessScript, hashCache, txscript.SigHashAll, view.tx, 0,
		int64(c.Constraints.CapacitySat),
	)
}

// htlcSigHash computes the BIP143 witness signature hash for the
// second-stage transaction spending h's commitment output.
func (c *Channel) htlcSigHash(view *commitmentView, h *includedHTLC) ([]byte, error) {
	isTimeout := h.offeredByOwner
	secondStageTx, _, err := input.SecondStageTx(
		wire.OutPoint{Hash: view.tx.TxHash(), Index: uint32(h.outputIndex)},
		int64(h.amount), h.CltvExpiry, uint32(c.commonFor(view.owner).ToSelfDelay),
		view.delayedKey, view.revocationKey, isTimeout,
	)
	if err != nil {
		return nil, err
	}

	hashCache := txscript.NewTxSigHashes(secondStageTx)
	return txscript.CalcWitnessSigHash(
		h.witnessScript, hashCache, txscript.SigHashAll, secondStageTx, 0,
		int64(h.amount),
	)
}

// SignNextCommitment builds the REMOTE's next commitment transaction
// (ctn = REMOTE.ctn+1) and signs it, along with every HTLC output it
// carries, using our own static multisig key and per-commitment-tweaked
// HTLC key. It mutates no persistent state.
func (c *Channel) SignNextCommitment() (commitSig [64]byte, htlcSigs [][64]byte, err error) {
	if c.Remote.NextPerCommitmentPoint == nil {
		return commitSig, nil, newStateError("SignNextCommitment", c.state)
	}

	ctn := c.htlcs.Ctn(htlc.Remote) + 1
	view, err := c.buildCommitment(htlc.Remote, ctn, c.Remote.NextPerCommitmentPoint)
	if err != nil {
		return commitSig, nil, err
	}

	sigHash, err := c.commitSigHash(view)
	if err != nil {
		return commitSig, nil, err
	}
	sig := btcecdsa.Sign(c.Local.MultisigPriv, sigHash)
	copy(commitSig[:], fixedSize64(sig))

	htlcPriv := keychain.DerivePrivKey(c.Local.HtlcPriv, c.Remote.NextPerCommitmentPoint)
	for i := range view.htlcs {
		h := &view.htlcs[i]
		sigHash, err := c.htlcSigHash(view, h)
		if err != nil {
			return commitSig, nil, err
		}
		s := btcecdsa.Sign(htlcPriv, sigHash)
		var fixed [64]byte
		copy(fixed[:], fixedSize64(s))
		htlcSigs = append(htlcSigs, fixed)
	}

	return commitSig, htlcSigs, nil
}

// ReceiveNewCommitment verifies the peer's signature over our own next
// commitment (ctn = LOCAL.ctn+1) and every HTLC second-stage signature, in
// the order dictated by this commitment's BIP69 output ordering. On
// success it stores the signatures and marks got_sig_for_next=true.
func (c *Channel) ReceiveNewCommitment(sig [64]byte, htlcSigs [][64]byte) error {
	if c.Local.NextPerCommitmentPoint == nil {
		return newStateError("ReceiveNewCommitment", c.state)
	}

	ctn := c.htlcs.Ctn(htlc.Local) + 1
	view, err := c.buildCommitment(htlc.Local, ctn, c.Local.NextPerCommitmentPoint)
	if err != nil {
		return err
	}

	if len(htlcSigs) != len(view.htlcs) {
		return newRemoteMisbehaving("expected %d htlc signatures, got %d", len(view.htlcs), len(htlcSigs))
	}

	sigHash, err := c.commitSigHash(view)
	if err != nil {
		return err
	}
	if !verifySig(sig, sigHash, c.Remote.MultisigKey) {
		return newCryptoFailure("commit_sig does not verify against our next commitment")
	}

	for i := range view.htlcs {
		h := &view.htlcs[i]
		sigHash, err := c.htlcSigHash(view, h)
		if err != nil {
			return err
		}
		if !verifySig(htlcSigs[i], sigHash, view.remoteHtlcKey) {
			return newCryptoFailure("htlc_sig for htlc %d does not verify", h.ID)
		}
	}

	c.Local.CurrentCommitmentSignature = sig
	c.Local.CurrentHtlcSignatures = htlcSigs
	c.Local.GotSigForNext = true
	return nil
}

// RevocationMessage mirrors lnwire.RevokeAndAck for the pure core, so
// callers don't need to depend on lnwire to drive the state machine.
type RevocationMessage struct {
	OldSecret               [32]byte
	NextPerCommitmentPoint  *btcec.PublicKey
}

// HTLCSettlementReport summarizes which HTLCs newly locked in (on both
// sides) as a result of a revocation, expressed as (received_msat,
// sent_msat) from LOCAL's perspective.
type HTLCSettlementReport struct {
	ReceivedMsat uint64
	SentMsat     uint64
}

// RevokeCurrentCommitment reveals our per-commitment secret for our
// current ctn, advances our own ctn, and returns the RevokeAndAck to send
// plus a settlement report of HTLCs that locked in during this step.
// Requires Local.GotSigForNext (peer already signed our next commitment).
func (c *Channel) RevokeCurrentCommitment() (*RevocationMessage, *HTLCSettlementReport, error) {
	if !c.Local.GotSigForNext {
		return nil, nil, newStateError("RevokeCurrentCommitment", c.state)
	}

	index := revocation.StartIndex - c.htlcs.Ctn(htlc.Local)
	secret := keychain.DeriveSecretFromSeed(c.Local.PerCommitmentSecretSeed, index)

	report := c.settlementReport()

	c.htlcs.AdvanceCtn(htlc.Local)
	c.Local.CurrentPerCommitmentPoint = c.Local.NextPerCommitmentPoint

	// Derive our new next_per_commitment_point (for ctn+1 beyond the one
	// we just rotated into current) so the peer always has a point to
	// tweak our future keys against, one commitment round ahead.
	nextIndex := revocation.StartIndex - (c.htlcs.Ctn(htlc.Local) + 1)
	nextSecret := keychain.DeriveSecretFromSeed(c.Local.PerCommitmentSecretSeed, nextIndex)
	_, nextPoint := btcec.PrivKeyFromBytes(nextSecret[:])
	c.Local.NextPerCommitmentPoint = nextPoint

	c.Local.GotSigForNext = false
	c.pendingFeerateAckLocal = true
	c.maybeApplyPendingFee()

	msg := &RevocationMessage{
		OldSecret:              secret,
		NextPerCommitmentPoint: c.Local.NextPerCommitmentPoint,
	}
	return msg, report, nil
}

// ReceiveRevocation processes the peer's RevokeAndAck: verifies the
// revealed secret against REMOTE's current per-commitment point, inserts
// it into the remote revocation store, rotates REMOTE's per-commitment
// points, and advances REMOTE's ctn.
func (c *Channel) ReceiveRevocation(rev *RevocationMessage) error {
	if c.Remote.CurrentPerCommitmentPoint == nil {
		return newStateError("ReceiveRevocation", c.state)
	}

	_, pub := btcec.PrivKeyFromBytes(rev.OldSecret[:])
	if !pub.IsEqual(c.Remote.CurrentPerCommitmentPoint) {
		return newCryptoFailure("revealed secret does not match REMOTE's current per-commitment point")
	}

	index := revocation.StartIndex - c.htlcs.Ctn(htlc.Remote)
	if err := c.remoteRevocationStore.Insert(index, rev.OldSecret); err != nil {
		return newRemoteMisbehaving("revocation store insert failed: %v", err)
	}

	c.htlcs.AdvanceCtn(htlc.Remote)
	c.Remote.CurrentPerCommitmentPoint = c.Remote.NextPerCommitmentPoint
	c.Remote.NextPerCommitmentPoint = rev.NextPerCommitmentPoint
	c.pendingFeerateAckRemote = true
	c.maybeApplyPendingFee()

	return nil
}

// settlementReport computes which HTLCs are about to fully lock in (both
// sides will, after this revocation, have them committed) and sums their
// amounts by direction. It must be called before AdvanceCtn.
func (c *Channel) settlementReport() *HTLCSettlementReport {
	curCtn := c.htlcs.Ctn(htlc.Local)
	nextCtn := curCtn + 1
	newlyIn := func(dir htlc.Direction) uint64 {
		already := make(map[uint64]bool)
		for _, a := range c.htlcs.HTLCsByDirection(htlc.Local, dir, curCtn) {
			already[a.ID] = true
		}
		var total uint64
		for _, a := range c.htlcs.HTLCsByDirection(htlc.Local, dir, nextCtn) {
			if !already[a.ID] {
				total += a.AmountMsat
			}
		}
		return total
	}
	return &HTLCSettlementReport{
		ReceivedMsat: newlyIn(htlc.Received),
		SentMsat:     newlyIn(htlc.Sent),
	}
}

// fixedSize64 left-pads a DER-free raw (r,s) signature out to 64 bytes.
// btcec/v2/ecdsa.Signature doesn't expose raw r||s directly, so we go
// through its Serialize (DER) form and re-derive fixed-width r/s.
func fixedSize64(sig *btcecdsa.Signature) []byte {
	der := sig.Serialize()
	return derTo64(der)
}

func derTo64(der []byte) []byte {
	// DER: 0x30 len 0x02 rlen r 0x02 slen s
	if len(der) < 6 || der[0] != 0x30 {
		out := make([]byte, 64)
		copy(out, der)
		return out
	}
	rlen := int(der[3])
	r := der[4 : 4+rlen]
	sOff := 4 + rlen + 2
	slen := int(der[4+rlen+1])
	s := der[sOff : sOff+slen]

	out := make([]byte, 64)
	copy(out[32-len(trimLeadingZero(r)):32], trimLeadingZero(r))
	copy(out[64-len(trimLeadingZero(s)):64], trimLeadingZero(s))
	return out
}

func trimLeadingZero(b []byte) []byte {
	for len(b) > 1 && b[0] == 0 {
		b = b[1:]
	}
	return b
}

// derEncode reconstructs a minimal DER encoding from a fixed 64-byte r||s
// signature, the inverse of derTo64, so stored/wire fixed-width signatures
// can be parsed back with btcec/v2/ecdsa.ParseDERSignature.
func derEncode(sig [64]byte) []byte {
	r := canonicalInt(sig[:32])
	s := canonicalInt(sig[32:])

	body := append([]byte{0x02, byte(len(r))}, r...)
	body = append(body, 0x02, byte(len(s)))
	body = append(body, s...)

	return append([]byte{0x30, byte(len(body))}, body...)
}

func canonicalInt(b []byte) []byte {
	b = trimLeadingZero(b)
	if len(b) > 0 && b[0]&0x80 != 0 {
		b = append([]byte{0x00}, b...)
	}
	if len(b) == 0 {
		b = []byte{0x00}
	}
	return b
}

// derWithSigHashAll is the wire form a witness stack actually carries: a
// DER signature with the sighash-type byte appended.
func derWithSigHashAll(sig [64]byte) []byte {
	return append(derEncode(sig), byte(txscript.SigHashAll))
}

// verifySig verifies a fixed 64-byte r||s signature against sigHash/key.
func verifySig(sig [64]byte, sigHash []byte, key *btcec.PublicKey) bool {
	parsed, err := btcecdsa.ParseDERSignature(derEncode(sig))
	if err != nil {
		return false
	}
	return parsed.Verify(sigHash, key)
}
