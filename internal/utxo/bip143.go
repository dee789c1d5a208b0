package utxo

import (
	"github.com/arcsign/signcore/internal/coin"
	"github.com/arcsign/signcore/internal/crypto"
)

// AccumulateInput folds one input's outpoint and sequence into the
// running hash_prevouts/hash_sequence accumulators. For Zcash-family
// coins the accumulators are BLAKE2b with personalised headers rather
// than a SHA-256 stream, so the raw bytes are buffered instead
// (crypto.Blake2bPersonal takes the whole buffer).
func (c *SigningContext) AccumulateInput(prevHash [32]byte, prevIndex uint32, sequence uint32) {
	outpoint := append(append([]byte(nil), reversed(prevHash[:])...), crypto.PutUint32LE(prevIndex)...)
	seq := crypto.PutUint32LE(sequence)

	if c.Descriptor.HasCapability(coin.CapOverwintered) {
		c.zcashPrevouts = append(c.zcashPrevouts, outpoint)
		c.zcashSequence = append(c.zcashSequence, seq)
		return
	}
	c.HasherPrevouts.Write(outpoint)
	c.HasherSequence.Write(seq)
}

// AccumulateOutput folds one serialized output into hash_outputs.
func (c *SigningContext) AccumulateOutput(serialized []byte) {
	if c.Descriptor.HasCapability(coin.CapOverwintered) {
		c.zcashOutputs = append(c.zcashOutputs, serialized)
		return
	}
	c.HasherOutputs.Write(serialized)
}

// FinishAccumulators returns the three BIP143 digests once every input
// and output has been folded in.
func (c *SigningContext) FinishAccumulators() (hashPrevouts, hashSequence, hashOutputs [32]byte, err error) {
	if c.Descriptor.HasCapability(coin.CapOverwintered) {
		hashPrevouts, err = crypto.Blake2bPersonal("ZcashPrevoutHash", c.zcashPrevouts...)
		if err != nil {
			return
		}
		hashSequence, err = crypto.Blake2bPersonal("ZcashSequencHash", c.zcashSequence...)
		if err != nil {
			return
		}
		hashOutputs, err = crypto.Blake2bPersonal("ZcashOutputsHash", c.zcashOutputs...)
		return
	}
	hashPrevouts = doubleSum(c.HasherPrevouts)
	hashSequence = doubleSum(c.HasherSequence)
	hashOutputs = doubleSum(c.HasherOutputs)
	return
}

// doubleSum finalises a running SHA-256 accumulator and hashes the
// result a second time, the BIP143 convention for hash_prevouts/
// hash_sequence/hash_outputs.
func doubleSum(h interface{ Sum([]byte) []byte }) [32]byte {
	first := h.Sum(nil)
	return crypto.Sha256Sum(first)
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

// BIP143Preimage builds the per-input SegWit v0 sighash preimage:
//
//	version || hash_prevouts || hash_sequence || outpoint || scriptCode ||
//	amount(LE 8) || sequence || hash_outputs || lock_time || sighash_type
func BIP143Preimage(version uint32, hashPrevouts, hashSequence [32]byte, outpoint []byte, scriptCode []byte, amount uint64, sequence uint32, hashOutputs [32]byte, lockTime uint32, sighashType uint32) []byte {
	var buf []byte
	buf = append(buf, crypto.PutUint32LE(version)...)
	buf = append(buf, hashPrevouts[:]...)
	buf = append(buf, hashSequence[:]...)
	buf = append(buf, outpoint...)
	buf = crypto.WriteVarInt(buf, uint64(len(scriptCode)))
	buf = append(buf, scriptCode...)
	buf = append(buf, crypto.PutUint64LE(amount)...)
	buf = append(buf, crypto.PutUint32LE(sequence)...)
	buf = append(buf, hashOutputs[:]...)
	buf = append(buf, crypto.PutUint32LE(lockTime)...)
	buf = append(buf, crypto.PutUint32LE(sighashType)...)
	return buf
}

// SighashDigest hashes a finished preimage according to the coin's
// hashing scheme: double-SHA256 for Bitcoin-family coins, personalised
// BLAKE2b ("ZcashSigHash" + branch id) for Zcash.
func SighashDigest(d coin.Descriptor, preimage []byte) ([32]byte, error) {
	if d.HasCapability(coin.CapOverwintered) {
		personal := append([]byte("ZcashSigHash"), crypto.PutUint32LE(d.BranchID)...)
		return crypto.Blake2bPersonal(string(personal), preimage)
	}
	return crypto.Sha256d(preimage), nil
}
