package utxo

import "github.com/arcsign/signcore/internal/crypto"

// derSignature DER-encodes a raw 64-byte R||S signature with the
// sighash type appended, the form every legacy/P2WPKH/multisig scriptSig
// push expects.
func derSignature(sig [64]byte, sighashType byte) []byte {
	r := trimLeadingZeros(sig[:32])
	s := trimLeadingZeros(sig[32:])
	r = padIfHighBit(r)
	s = padIfHighBit(s)

	body := make([]byte, 0, 6+len(r)+len(s))
	body = append(body, 0x02, byte(len(r)))
	body = append(body, r...)
	body = append(body, 0x02, byte(len(s)))
	body = append(body, s...)

	out := make([]byte, 0, 2+len(body)+1)
	out = append(out, 0x30, byte(len(body)))
	out = append(out, body...)
	out = append(out, sighashType)
	return out
}

func trimLeadingZeros(b []byte) []byte {
	i := 0
	for i < len(b)-1 && b[i] == 0 {
		i++
	}
	return b[i:]
}

func padIfHighBit(b []byte) []byte {
	if len(b) > 0 && b[0]&0x80 != 0 {
		return append([]byte{0x00}, b...)
	}
	return b
}

func pushData(b []byte) []byte {
	out := crypto.WriteVarInt(nil, uint64(len(b)))
	return append(out, b...)
}

// P2PKHScriptSig builds "push(DER(sig)||sighash) push(pubkey)".
func P2PKHScriptSig(sig [64]byte, sighashType byte, pubkey []byte) []byte {
	der := derSignature(sig, sighashType)
	out := pushData(der)
	out = append(out, pushData(pubkey)...)
	return out
}

// MultisigScriptSig builds the classic multisig scriptSig: a leading
// OP_0 "bug byte" (omitted on Decred), each DER signature in pubkey
// order, then a push of the redeem script.
func MultisigScriptSig(sigs [][64]byte, sighashType byte, redeemScript []byte, decred bool) []byte {
	var out []byte
	if !decred {
		out = append(out, 0x00) // OP_0 bug byte
	}
	for _, sig := range sigs {
		out = append(out, pushData(derSignature(sig, sighashType))...)
	}
	out = append(out, pushData(redeemScript)...)
	return out
}

// WitnessStackP2WPKH builds the two-item witness stack for single-sig
// SegWit v0: (sig||sighash, pubkey).
func WitnessStackP2WPKH(sig [64]byte, sighashType byte, pubkey []byte) [][]byte {
	return [][]byte{derSignature(sig, sighashType), append([]byte(nil), pubkey...)}
}

// WitnessStackP2WSH builds the multisig SegWit v0 witness stack: an
// empty dummy item (the classic OP_CHECKMULTISIG off-by-one bug byte),
// each signature, then the witness (redeem) script.
func WitnessStackP2WSH(sigs [][64]byte, sighashType byte, witnessScript []byte) [][]byte {
	stack := [][]byte{{}}
	for _, sig := range sigs {
		stack = append(stack, derSignature(sig, sighashType))
	}
	stack = append(stack, witnessScript)
	return stack
}

// MultisigRedeemScript builds the classic bare-multisig redeem/witness
// script: OP_m <pubkey>... OP_n OP_CHECKMULTISIG.
func MultisigRedeemScript(pubkeys [][]byte, m int) []byte {
	out := []byte{opN(m)}
	for _, pub := range pubkeys {
		out = append(out, pushData(pub)...)
	}
	out = append(out, opN(len(pubkeys)))
	out = append(out, 0xae) // OP_CHECKMULTISIG
	return out
}

func opN(n int) byte {
	return byte(0x50 + n)
}

// WitnessStackTaproot builds the one-item P2TR witness stack: the bare
// 64-byte signature for SighashAll, or the signature with the sighash
// byte appended (65 bytes) for any other sighash type.
func WitnessStackTaproot(sig [64]byte, sighashType byte) [][]byte {
	if sighashType == SighashAll {
		return [][]byte{append([]byte(nil), sig[:]...)}
	}
	out := append([]byte(nil), sig[:]...)
	out = append(out, sighashType)
	return [][]byte{out}
}
