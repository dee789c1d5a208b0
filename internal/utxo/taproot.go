package utxo

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/crypto"
)

// taggedHash implements BIP340's tagged hash construction,
// SHA256(SHA256(tag) || SHA256(tag) || msg), used by the BIP341
// sighash algorithm below.
func taggedHash(tag string, msg ...[]byte) [32]byte {
	tagHash := crypto.Sha256Sum([]byte(tag))
	h := crypto.Sha256()
	h.Write(tagHash[:])
	h.Write(tagHash[:])
	for _, m := range msg {
		h.Write(m)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// TaprootKeyPathDigest computes the BIP341 key-path-spend sighash for
// SIGHASH_DEFAULT (equivalent to SIGHASH_ALL with no explicit byte) over
// a transaction's full prevout set. annex and script-path spends are out
// of scope for this core.
func TaprootKeyPathDigest(version uint32, lockTime uint32, hashPrevouts, hashAmounts, hashScriptPubkeys, hashSequences, hashOutputs [32]byte, inputIndex uint32) [32]byte {
	var msg []byte
	msg = append(msg, 0x00)                           // epoch
	msg = append(msg, 0x00)                           // hash_type (SIGHASH_DEFAULT)
	msg = append(msg, crypto.PutUint32LE(version)...) // nVersion
	msg = append(msg, crypto.PutUint32LE(lockTime)...)
	msg = append(msg, hashPrevouts[:]...)
	msg = append(msg, hashAmounts[:]...)
	msg = append(msg, hashScriptPubkeys[:]...)
	msg = append(msg, hashSequences[:]...)
	msg = append(msg, hashOutputs[:]...)
	msg = append(msg, 0x00) // spend_type: key path, no annex
	msg = append(msg, crypto.PutUint32LE(inputIndex)...)
	return taggedHash("TapSighash", msg)
}

// SignTaproot signs digest with the BIP341-tweaked output key derived
// from internalNode, using txscript's tweak helper (already part of the
// btcsuite/btcd module this core depends on for every other secp256k1
// primitive) rather than re-deriving the point-addition tweak by hand.
func SignTaproot(internalNode *bip32.Node, digest []byte) ([64]byte, error) {
	priv, err := internalNode.ECPrivateKey()
	if err != nil {
		return [64]byte{}, err
	}
	tweaked := txscript.TweakTaprootPrivKey(*priv, nil)
	return crypto.SchnorrSign(tweaked, digest)
}

// TaprootOutputKey computes the tweaked x-only output key for a node's
// public key, the same computation address.go's SpendTaproot case uses.
func TaprootOutputKey(pub *btcec.PublicKey) []byte {
	tweaked := txscript.ComputeTaprootOutputKey(pub, nil)
	return tweaked.SerializeCompressed()[1:]
}
