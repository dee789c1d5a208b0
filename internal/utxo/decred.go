package utxo

import "github.com/arcsign/signcore/internal/crypto"

// Decred collapses the phase-2 tail into a single REQ_DECRED_WITNESS
// loop instead of the segwit/non-segwit split other coins use. This file
// holds the witness-tail strategy gated on coin.CapDecred.

// DecredWitnessScript builds a Decred P2PKH signature script: identical
// to P2PKHScriptSig but without the bug-byte/OP_0 prefix multisig uses
// elsewhere, since Decred inputs are split into a separate witness
// transaction layer from the prefix transaction.
func DecredWitnessScript(sig [64]byte, sighashType byte, pubkey []byte) []byte {
	return P2PKHScriptSig(sig, sighashType, pubkey)
}

// DecredSighash hashes a Decred prefix+witness preimage. Decred reuses
// the BIP143-style 5-hash accumulator shape but with Blake256 instead of
// SHA-256 and without a segwit/legacy split; the preimage is hashed with
// double BLAKE-256.
func DecredSighash(preimage []byte) [32]byte {
	return crypto.Blake256d(preimage)
}
