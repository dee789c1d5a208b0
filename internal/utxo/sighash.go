package utxo

import "github.com/arcsign/signcore/internal/crypto"

const (
	SighashAll    = 0x01
	SighashForkID = 0x40
)

// SighashType builds the 4-byte little-endian hash_type field. For
// forkid chains (Bitcoin Cash et al.) this is
// (fork_id << 8) | SIGHASH_FORKID | SIGHASH_ALL.
func SighashType(forkID uint32, forkIDCapable bool) uint32 {
	if forkIDCapable {
		return (forkID << 8) | SighashForkID | SighashAll
	}
	return SighashAll
}

// TxInputWire is the minimal per-input wire shape the legacy sighash
// builder needs.
type TxInputWire struct {
	PrevHash  [32]byte
	PrevIndex uint32
	Sequence  uint32
}

// TxOutputWire is the minimal per-output wire shape both sighash
// builders need.
type TxOutputWire struct {
	Amount       uint64
	ScriptPubKey []byte
}

// LegacySighash builds the auxiliary serialised-transaction hash `ti`:
// the same layout as the final transaction, but
// with every input's scriptSig emptied except the one being signed,
// which carries scriptCodeForSigning; the sighash type is appended and
// the whole thing is SHA-256'd twice.
func LegacySighash(version uint32, inputs []TxInputWire, signingIndex int, scriptCodeForSigning []byte, outputs []TxOutputWire, lockTime uint32, sighashType uint32) [32]byte {
	var buf []byte
	buf = append(buf, crypto.PutUint32LE(version)...)
	buf = crypto.WriteVarInt(buf, uint64(len(inputs)))
	for i, in := range inputs {
		buf = append(buf, reversed(in.PrevHash[:])...)
		buf = append(buf, crypto.PutUint32LE(in.PrevIndex)...)
		if i == signingIndex {
			buf = crypto.WriteVarInt(buf, uint64(len(scriptCodeForSigning)))
			buf = append(buf, scriptCodeForSigning...)
		} else {
			buf = crypto.WriteVarInt(buf, 0)
		}
		buf = append(buf, crypto.PutUint32LE(in.Sequence)...)
	}
	buf = crypto.WriteVarInt(buf, uint64(len(outputs)))
	for _, out := range outputs {
		buf = append(buf, crypto.PutUint64LE(out.Amount)...)
		buf = crypto.WriteVarInt(buf, uint64(len(out.ScriptPubKey)))
		buf = append(buf, out.ScriptPubKey...)
	}
	buf = append(buf, crypto.PutUint32LE(lockTime)...)
	buf = append(buf, crypto.PutUint32LE(sighashType)...)
	return crypto.Sha256d(buf)
}

// ScriptCodeP2PKH builds the scriptCode a BIP143 preimage or legacy
// sighash commits to for P2WPKH and classic P2PKH inputs: the standard
// "OP_DUP OP_HASH160 <hash> OP_EQUALVERIFY OP_CHECKSIG" form. Multisig/
// P2WSH inputs commit to the redeem script itself, which signOneInput
// passes directly.
func ScriptCodeP2PKH(pubkeyHash []byte) []byte {
	s := make([]byte, 0, 25)
	s = append(s, 0x76, 0xa9, 0x14) // OP_DUP OP_HASH160 push20
	s = append(s, pubkeyHash...)
	s = append(s, 0x88, 0xac) // OP_EQUALVERIFY OP_CHECKSIG
	return s
}
