package crypto

import (
	"crypto/ed25519"
	"errors"
)

// Ed25519 signing is carried in the crypto façade alongside the ECDSA
// primitives even though the two signing engines in scope
// (C5 UTXO, C6 Ethereum) only ever sign with secp256k1/Schnorr — the
// façade's contract is curve-agnostic, and bip32.Node carries a curve
// identifier precisely so a future signer can request ed25519 without a
// facade change. crypto/ed25519 is the canonical implementation of the
// primitive (the same curve math filippo.io/edwards25519 exposes at a
// lower level); no wrapping library adds anything over it for detached
// sign/verify, so this is one of the two deliberate standard-library
// choices in this package (base32.go is the other) — see DESIGN.md.

// Ed25519Sign produces a detached signature over msg with an expanded
// 64-byte private key.
func Ed25519Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Ed25519SignOpen verifies a detached ed25519 signature.
func Ed25519SignOpen(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// ErrInvalidEd25519Seed is returned when a seed is not exactly 32 bytes.
var ErrInvalidEd25519Seed = errors.New("crypto: ed25519 seed must be 32 bytes")

// Ed25519KeyFromSeed expands a 32-byte seed into an ed25519 keypair, the
// shape SLIP-10 ed25519 derivation (internal/bip32) produces at each node.
func Ed25519KeyFromSeed(seed []byte) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, nil, ErrInvalidEd25519Seed
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return priv, pub, nil
}
