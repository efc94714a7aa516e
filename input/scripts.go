// Package input builds the witness scripts and second-stage transaction
// templates used by commitment transactions, per BOLT-03. It is the direct
// descendant of lnd's lnwallet/script_utils.go, renamed from
// that file's pre-BOLT-03 sender/receiver vocabulary to BOLT-03's
// offered/received HTLC terminology and extended to the full set of
// witness scripts BOLT-03 defines.
package input

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // BOLT-03 mandates RIPEMD160 for these hashes.
)

// HTLCTimeoutWeight and HTLCSuccessWeight are the weights of the
// HTLC-timeout and HTLC-success second-stage transactions, used by the
// dust calculation in chanfee.
const (
	HTLCTimeoutWeight = 663
	HTLCSuccessWeight = 703
)

// FundingWitnessScript builds the 2-of-2 multisig witness script that
// locks a channel's funding output, with the two funding keys in BIP69
// lexicographic order (the canonical ordering used throughout the
// protocol, not just for transaction outputs).
func FundingWitnessScript(a, b *btcec.PublicKey) ([]byte, error) {
	aBytes, bBytes := a.SerializeCompressed(), b.SerializeCompressed()
	first, second := aBytes, bBytes
	if bytesLess(bBytes, aBytes) {
		first, second = bBytes, aBytes
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_2)
	builder.AddData(first)
	builder.AddData(second)
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)

	return builder.Script()
}

// FundingWitness assembles the witness stack for a funding transaction's
// 2-of-2 input: the mandatory empty element CHECKMULTISIG consumes for its
// off-by-one bug, the two signatures in the same key order FundingWitnessScript
// used, and the witness script itself.
func FundingWitness(fundingScript []byte, keyA *btcec.PublicKey, sigA []byte,
	keyB *btcec.PublicKey, sigB []byte) (wire.TxWitness, error) {

	aBytes, bBytes := keyA.SerializeCompressed(), keyB.SerializeCompressed()
	firstSig, secondSig := sigA, sigB
	if bytesLess(bBytes, aBytes) {
		firstSig, secondSig = sigB, sigA
	}

	return wire.TxWitness{
		nil,
		firstSig,
		secondSig,
		fundingScript,
	}, nil
}

func bytesLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// WitnessScriptHash builds a P2WSH output script paying to witnessScript.
func WitnessScriptHash(witnessScript []byte) ([]byte, error) {
	bldr := txscript.NewScriptBuilder()
	bldr.AddOp(txscript.OP_0)
	hash := chainhashSum(witnessScript)
	bldr.AddData(hash[:])
	return bldr.Script()
}

// CommitScriptToRemote builds the to_remote output script: a simple
// P2WPKH paying directly to remotekey.
func CommitScriptToRemote(remoteKey *btcec.PublicKey) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(btcec.Hash160(remoteKey.SerializeCompressed())).
		Script()
}

// CommitScriptToLocal builds the to_local witness script:
//
//	OP_IF
//	    <revocationkey>
//	OP_ELSE
//	    <to_self_delay>
//	    OP_CSV
//	    OP_DROP
//	    <local_delayedkey>
//	OP_ENDIF
//	OP_CHECKSIG
func CommitScriptToLocal(csvDelay uint32, delayedKey, revocationKey *btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_IF)
	builder.AddData(revocationKey.SerializeCompressed())
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(int64(csvDelay))
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(delayedKey.SerializeCompressed())
	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// OfferedHTLCScript builds the witness script for an HTLC offered by the
// local party (the BOLT-03 "offered HTLC" output):
//
//	OP_DUP OP_HASH160 <RIPEMD160(SHA256(revocationkey))> OP_EQUAL
//	OP_IF
//	    OP_CHECKSIG
//	OP_ELSE
//	    <remote_htlckey> OP_SWAP OP_SIZE 32 OP_EQUAL
//	    OP_NOTIF
//	        OP_DROP 2 OP_SWAP <local_htlckey> 2 OP_CHECKMULTISIG
//	    OP_ELSE
//	        OP_HASH160 <RIPEMD160(payment_hash)> OP_EQUALVERIFY
//	        OP_CHECKSIG
//	    OP_ENDIF
//	OP_ENDIF
func OfferedHTLCScript(localHtlcKey, remoteHtlcKey, revocationKey *btcec.PublicKey,
	paymentHash [32]byte) ([]byte, error) {

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(btcec.Hash160(revocationKey.SerializeCompressed()))
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)

	builder.AddData(remoteHtlcKey.SerializeCompressed())
	builder.AddOp(txscript.OP_SWAP)
	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(32)
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_NOTIF)
	builder.AddOp(txscript.OP_DROP)
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_SWAP)
	builder.AddData(localHtlcKey.SerializeCompressed())
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(ripemd160H(paymentHash))
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// ReceivedHTLCScript builds the witness script for an HTLC the local party
// is receiving (the BOLT-03 "received HTLC" output), additionally gated by
// cltvExpiry.
func ReceivedHTLCScript(cltvExpiry uint32, localHtlcKey, remoteHtlcKey,
	revocationKey *btcec.PublicKey, paymentHash [32]byte) ([]byte, error) {

	builder := txscript.NewScriptBuilder()

	builder.AddOp(txscript.OP_DUP)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(btcec.Hash160(revocationKey.SerializeCompressed()))
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)

	builder.AddData(remoteHtlcKey.SerializeCompressed())
	builder.AddOp(txscript.OP_SWAP)
	builder.AddOp(txscript.OP_SIZE)
	builder.AddInt64(32)
	builder.AddOp(txscript.OP_EQUAL)
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(ripemd160H(paymentHash))
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_SWAP)
	builder.AddData(localHtlcKey.SerializeCompressed())
	builder.AddInt64(2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddOp(txscript.OP_DROP)
	builder.AddInt64(int64(cltvExpiry))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// SecondStageTx builds the HTLC-timeout (isTimeout) or HTLC-success
// (!isTimeout) second-stage transaction template: a single input
// spending the HTLC output, and a single to_local-style output controlled
// by revocationKey/delayedKey/csvDelay carrying the full htlcAmt (no
// second-stage fee is deducted).
func SecondStageTx(htlcOutpoint wire.OutPoint, htlcAmt int64, cltvExpiry uint32,
	csvDelay uint32, delayedKey, revocationKey *btcec.PublicKey, isTimeout bool) (*wire.MsgTx, []byte, error) {

	toLocalScript, err := CommitScriptToLocal(csvDelay, delayedKey, revocationKey)
	if err != nil {
		return nil, nil, fmt.Errorf("second-stage to_local script: %w", err)
	}
	pkScript, err := WitnessScriptHash(toLocalScript)
	if err != nil {
		return nil, nil, err
	}

	tx := wire.NewMsgTx(2)
	txIn := wire.NewTxIn(&htlcOutpoint, nil, nil)
	txIn.Sequence = 0
	tx.AddTxIn(txIn)
	tx.AddTxOut(wire.NewTxOut(htlcAmt, pkScript))

	if isTimeout {
		tx.LockTime = cltvExpiry
	} else {
		tx.LockTime = 0
	}

	return tx, toLocalScript, nil
}

// HTLCSuccessWitness builds the witness stack spending an offered/received
// HTLC output along the non-revocation path: HTLC-success supplies the
// preimage (isTimeout == false, counterpartySig carries the preimage slot
// via the caller pre-pending it to preimage before calling, since the
// preimage itself — not a third signature — occupies that witness
// element); HTLC-timeout omits it. Both forms spend with two signatures
// (ours and the counterparty's, in BOLT-03's fixed order) ahead of the
// witness script.
func HTLCSuccessWitness(witnessScript, ourSig, theirSig []byte, isTimeout bool) wire.TxWitness {
	if isTimeout {
		return wire.TxWitness{
			nil,
			theirSig,
			ourSig,
			nil,
			witnessScript,
		}
	}
	return wire.TxWitness{
		nil,
		theirSig,
		ourSig,
		witnessScript,
	}
}

// ripemd160H applies RIPEMD160 directly to a payment hash, per BOLT-03 (the
// payment_hash is already a SHA-256 digest; this is not Hash160).
func ripemd160H(paymentHash [32]byte) []byte {
	h := ripemd160.New()
	h.Write(paymentHash[:])
	return h.Sum(nil)
}

// chainhashSum is the plain SHA-256 used for the P2WSH witness-program
// hash of a redeem/witness script.
func chainhashSum(b []byte) [32]byte {
	return sha256.Sum256(b)
}
