package crypto

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// ErrNonCanonicalSignature is returned by EcdsaSignDigest when a
// caller-supplied isCanonic predicate rejects every signing attempt up to
// the retry bound.
var ErrNonCanonicalSignature = errors.New("crypto: exhausted retries producing a canonical signature")

// maxCanonicalRetries bounds the retry loop in EcdsaSignDigest to a
// small, fixed number of attempts rather than looping unbounded.
const maxCanonicalRetries = 16

// EcdsaSignDigest produces a low-S secp256k1 ECDSA signature over digest
// using RFC6979 deterministic nonces (as btcec/v2/ecdsa.SignCompact does
// internally), returning the 64-byte R||S signature and its recovery id.
//
// isCanonic, if non-nil, is consulted after each signing attempt; a true
// return accepts the signature. The Ethereum signer passes a predicate
// that rejects recovery ids with bit 1 set. Each retry re-runs
// SignCompact with the same key and digest, and SignCompact is fully
// deterministic, so every attempt yields the same signature: a signature
// the predicate rejects is rejected on every attempt, and the loop ends
// with ErrNonCanonicalSignature after maxCanonicalRetries attempts.
func EcdsaSignDigest(priv *btcec.PrivateKey, digest []byte, isCanonic func(recoveryID byte) bool) (sig [64]byte, recoveryID byte, err error) {
	for attempt := 0; attempt < maxCanonicalRetries; attempt++ {
		compact := ecdsa.SignCompact(priv, digest, false)
		// compact[0] = 27 + recoveryID (+4 if compressed, which we did not request)
		recID := compact[0] - 27
		var out [64]byte
		copy(out[:], compact[1:])
		if isCanonic == nil || isCanonic(recID) {
			return out, recID, nil
		}
	}
	var zero [64]byte
	return zero, 0, ErrNonCanonicalSignature
}

// EcdsaVerifyDigest verifies a 64-byte R||S signature against digest and
// pub in constant time (as provided by btcec's Signature.Verify).
func EcdsaVerifyDigest(pub *btcec.PublicKey, sig [64]byte, digest []byte) bool {
	r := new(btcec.ModNScalar)
	s := new(btcec.ModNScalar)
	if overflow := r.SetByteSlice(sig[:32]); overflow {
		return false
	}
	if overflow := s.SetByteSlice(sig[32:]); overflow {
		return false
	}
	signature := ecdsa.NewSignature(r, s)
	return signature.Verify(digest, pub)
}

// EcdsaRecoverFromSig recovers the public key implied by a 64-byte R||S
// signature, a 0/1 recovery id, and the digest it signed. Nothing in
// this module calls it outside this package's tests; the SLIP-19
// ownership-proof verifier checks against the public key carried in the
// proof's witness with EcdsaVerifyDigest instead.
func EcdsaRecoverFromSig(sig [64]byte, recoveryID byte, digest []byte) (*btcec.PublicKey, error) {
	compact := make([]byte, 65)
	compact[0] = 27 + recoveryID
	copy(compact[1:], sig[:])
	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// SchnorrSign produces a BIP340 Schnorr signature over digest using the
// tweaked taproot output key.
func SchnorrSign(priv *btcec.PrivateKey, digest []byte) ([64]byte, error) {
	var out [64]byte
	sig, err := schnorr.Sign(priv, digest)
	if err != nil {
		return out, err
	}
	copy(out[:], sig.Serialize())
	return out, nil
}

// SchnorrVerify verifies a BIP340 Schnorr signature against an x-only
// public key.
func SchnorrVerify(sig [64]byte, pub *btcec.PublicKey, digest []byte) bool {
	parsed, err := schnorr.ParseSignature(sig[:])
	if err != nil {
		return false
	}
	xOnly, err := schnorr.ParsePubKey(pub.SerializeCompressed()[1:])
	if err != nil {
		return false
	}
	return parsed.Verify(digest, xOnly)
}
