// Package keychain contains the pure key-derivation functions used to turn
// a party's static basepoints and a single per-commitment point into the
// actual keys used in a commitment transaction, plus the BOLT-03
// per-commitment secret chain. None of it touches network or disk; it is
// grounded on lnd's lnwallet/script_utils.go revocation-key
// math, generalized from the elkrem preimage scheme to BOLT-03's two-term
// revocation key and per-commitment-point tweak.
package keychain

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
)

// DerivePrivKey computes localkey/remotekey/htlckey/delayedkey for a given
// basepoint private key and the per-commitment point:
//
//	privkey = basepoint_secret + SHA256(per_commitment_point || basepoint)
func DerivePrivKey(basepointSecret *btcec.PrivateKey, perCommitmentPoint *btcec.PublicKey) *btcec.PrivateKey {
	tweak := tweakScalar(perCommitmentPoint, basepointSecret.PubKey())

	var tweakedScalar, resultScalar btcec.ModNScalar
	tweakedScalar.SetByteSlice(tweak[:])
	resultScalar.Set(&basepointSecret.Key)
	resultScalar.Add(&tweakedScalar)

	priv, _ := btcec.PrivKeyFromBytes(resultScalar.Bytes()[:])
	return priv
}

// DerivePubKey computes the public counterpart of DerivePrivKey given only
// the basepoint's public key:
//
//	pubkey = basepoint + SHA256(per_commitment_point || basepoint)*G
func DerivePubKey(basepoint *btcec.PublicKey, perCommitmentPoint *btcec.PublicKey) *btcec.PublicKey {
	tweak := tweakScalar(perCommitmentPoint, basepoint)

	var tweakedScalar btcec.ModNScalar
	tweakedScalar.SetByteSlice(tweak[:])

	var tweakPoint, result btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&tweakedScalar, &tweakPoint)

	var basepointJ btcec.JacobianPoint
	basepoint.AsJacobian(&basepointJ)

	btcec.AddNonConst(&basepointJ, &tweakPoint, &result)
	result.ToAffine()
	return btcec.NewPublicKey(&result.X, &result.Y)
}

// tweakScalar computes SHA256(point || base), the shared tweak used by
// every per-commitment key derivation in BOLT-03.
func tweakScalar(point, base *btcec.PublicKey) [32]byte {
	h := sha256.New()
	h.Write(point.SerializeCompressed())
	h.Write(base.SerializeCompressed())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveRevocationPubKey computes the revocation key for a commitment,
// combining the revoked party's revocation_basepoint with the revoking
// party's per-commitment point:
//
//	revocationkey = revocation_basepoint*SHA256(revocation_basepoint || per_commitment_point)
//	              + per_commitment_point*SHA256(per_commitment_point || revocation_basepoint)
func DeriveRevocationPubKey(revocationBasepoint, perCommitmentPoint *btcec.PublicKey) *btcec.PublicKey {
	revocationTweak := tweakScalar(revocationBasepoint, perCommitmentPoint)
	pointTweak := tweakScalar(perCommitmentPoint, revocationBasepoint)

	var revocationScalar, pointScalar btcec.ModNScalar
	revocationScalar.SetByteSlice(revocationTweak[:])
	pointScalar.SetByteSlice(pointTweak[:])

	var revocationJ, pointJ, revocationTerm, pointTerm, result btcec.JacobianPoint
	revocationBasepoint.AsJacobian(&revocationJ)
	perCommitmentPoint.AsJacobian(&pointJ)

	btcec.ScalarMultNonConst(&revocationScalar, &revocationJ, &revocationTerm)
	btcec.ScalarMultNonConst(&pointScalar, &pointJ, &pointTerm)
	btcec.AddNonConst(&revocationTerm, &pointTerm, &result)
	result.ToAffine()

	return btcec.NewPublicKey(&result.X, &result.Y)
}

// DeriveRevocationPrivKey computes the private revocation key once both
// the revoked party's revocation_basepoint secret and the per-commitment
// secret revealed at revocation time are known:
//
//	revocationpriv = revocation_basepoint_secret*SHA256(revocation_basepoint || per_commitment_point)
//	               + per_commitment_secret*SHA256(per_commitment_point || revocation_basepoint)
func DeriveRevocationPrivKey(revocationBasepointSecret, perCommitmentSecret *btcec.PrivateKey) *btcec.PrivateKey {
	revocationBasepoint := revocationBasepointSecret.PubKey()
	perCommitmentPoint := perCommitmentSecret.PubKey()

	revocationTweak := tweakScalar(revocationBasepoint, perCommitmentPoint)
	pointTweak := tweakScalar(perCommitmentPoint, revocationBasepoint)

	var revocationTweakScalar, pointTweakScalar btcec.ModNScalar
	revocationTweakScalar.SetByteSlice(revocationTweak[:])
	pointTweakScalar.SetByteSlice(pointTweak[:])

	var revocationTerm, pointTerm, sum btcec.ModNScalar
	revocationTerm.Mul2(&revocationBasepointSecret.Key, &revocationTweakScalar)
	pointTerm.Mul2(&perCommitmentSecret.Key, &pointTweakScalar)
	sum.Add2(&revocationTerm, &pointTerm)

	priv, _ := btcec.PrivKeyFromBytes(sum.Bytes()[:])
	return priv
}

// DeriveSecretFromSeed implements BOLT-03's generate_from_seed: the
// per-commitment secret at index, derived from a single 32-byte seed by
// repeated bit-flip-then-hash starting from the most significant of the
// 48 index bits.
func DeriveSecretFromSeed(seed [32]byte, index uint64) [32]byte {
	secret := seed
	for b := 47; b >= 0; b-- {
		if index&(1<<uint(b)) == 0 {
			continue
		}
		secret[b/8] ^= 1 << uint(7-b%8)
		secret = sha256.Sum256(secret[:])
	}
	return secret
}
