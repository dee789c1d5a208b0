package ethereum

import (
	"errors"
	"hash"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/crypto"
)

// ErrDataLengthMismatch is returned when the host streams more or
// fewer data bytes than it declared in the opening SignEthereumTx
// message.
var ErrDataLengthMismatch = errors.New("ethereum: streamed data length does not match declaration")

// ErrInvalidAddress is returned by ParseAddress for a malformed wire
// address (wrong length once the optional "0x" prefix is stripped, or a
// non-hex character).
var ErrInvalidAddress = errors.New("ethereum: malformed address")

// ParseAddress decodes a host-supplied hex address, with or without its
// "0x" prefix, rejecting anything that is not exactly 20 bytes of valid
// hex. An empty string decodes to the zero address, the wire
// representation of a contract-creation transaction.
func ParseAddress(hex string) ([20]byte, error) {
	var out [20]byte
	if len(hex) >= 2 && hex[0] == '0' && (hex[1] == 'x' || hex[1] == 'X') {
		hex = hex[2:]
	}
	if hex == "" {
		return out, nil
	}
	if len(hex) != 40 {
		return out, ErrInvalidAddress
	}
	for i := 0; i < 20; i++ {
		hi, hiOK := validHexNibble(hex[i*2])
		lo, loOK := validHexNibble(hex[i*2+1])
		if !hiOK || !loOK {
			return out, ErrInvalidAddress
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

// validHexNibble is ParseAddress's validating counterpart to
// hexNibble, which assumes its caller already knows the input is valid
// hex (true of the compiled-in token table, not of wire input).
func validHexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// OpenSigningContextParams is the wire-level shape an open SignEthereumTx
// request carries, already stripped of its protocol framing.
type OpenSigningContextParams struct {
	AddressN    []uint32
	ChainID     uint64
	EIP1559     bool
	Nonce       []byte
	GasPrice    []byte
	GasLimit    []byte
	MaxGasFee   []byte
	MaxPriority []byte
	To          [20]byte
	Value       []byte
	DataLength  uint32
	AccessList  []AccessListItem
}

// OpenSigningContext builds a streamed SigningContext from a decoded
// SignEthereumTx request, translating the wire's raw byte fields into
// the package's internal txFields shape.
func OpenSigningContext(p OpenSigningContextParams) *SigningContext {
	f := txFields{
		Nonce:       p.Nonce,
		GasPrice:    p.GasPrice,
		GasLimit:    p.GasLimit,
		MaxGasFee:   p.MaxGasFee,
		MaxPriority: p.MaxPriority,
		To:          p.To[:],
		Value:       p.Value,
		DataLength:  p.DataLength,
		AccessList:  p.AccessList,
	}
	if p.To == ([20]byte{}) {
		f.To = nil
	}
	return NewSigningContext(p.AddressN, p.ChainID, p.EIP1559, f)
}

// dynamicFeeTxType is the type byte of EIP-2718's "0x02 || rlp(...)"
// envelope for EIP-1559; legacy preimages are plain RLP (optionally
// EIP-155'd) with no type byte.
const dynamicFeeTxType = 0x02

// SigningContext holds the running Keccak256 state and bookkeeping for
// one Ethereum signing flow, from SignEthereumTx through the final
// EthereumTxRequest carrying the signature.
type SigningContext struct {
	AddressN []uint32
	ChainID  uint64
	EIP1559  bool

	hasher          hash.Hash
	dataLength      uint32
	dataReceived    uint32
	finished        bool
	accessListBytes []byte
}

// txFields are the trimmed big-endian byte strings the wire payload
// carries; the caller is expected to have already stripped protobuf
// varint framing, leaving canonical-minimal big-endian integers.
type txFields struct {
	Nonce       []byte
	GasPrice    []byte
	GasLimit    []byte
	MaxGasFee   []byte
	MaxPriority []byte
	To          []byte // 0 or 20 bytes; empty means contract creation
	Value       []byte
	DataLength  uint32
	AccessList  []AccessListItem // EIP-1559 only; nil/empty for legacy
}

// NewSigningContext opens a streamed signing flow: it computes the
// RLP list's total payload length up front from the fixed fields plus
// the declared data length, writes the type byte (EIP-1559 only), the
// list header, and every fixed field into the running Keccak256 state,
// then positions the hasher at the start of the data field so Feed can
// stream the remaining bytes as they arrive.
func NewSigningContext(addressN []uint32, chainID uint64, eip1559 bool, f txFields) *SigningContext {
	c := &SigningContext{
		AddressN:   addressN,
		ChainID:    chainID,
		EIP1559:    eip1559,
		hasher:     crypto.Keccak256Streaming(),
		dataLength: f.DataLength,
	}

	nonce := trimLeadingZeroBytes(f.Nonce)
	gasLimit := trimLeadingZeroBytes(f.GasLimit)
	to := f.To
	value := trimLeadingZeroBytes(f.Value)

	var items [][]byte
	if eip1559 {
		c.hasher.Write([]byte{dynamicFeeTxType})
		items = append(items,
			rlpEncodeUint64(chainID),
			rlpEncodeBytes(nonce),
			rlpEncodeBytes(trimLeadingZeroBytes(f.MaxPriority)),
			rlpEncodeBytes(trimLeadingZeroBytes(f.MaxGasFee)),
			rlpEncodeBytes(gasLimit),
			rlpEncodeBytes(to),
			rlpEncodeBytes(value),
		)
	} else {
		items = append(items,
			rlpEncodeBytes(nonce),
			rlpEncodeBytes(trimLeadingZeroBytes(f.GasPrice)),
			rlpEncodeBytes(gasLimit),
			rlpEncodeBytes(to),
			rlpEncodeBytes(value),
		)
	}

	payloadLen := 0
	for _, it := range items {
		payloadLen += len(it)
	}
	payloadLen += rlpStringHeaderLen(int(f.DataLength)) + int(f.DataLength)

	if eip1559 {
		c.accessListBytes = rlpEncodeAccessList(f.AccessList)
		payloadLen += len(c.accessListBytes)
	} else if chainID != 0 {
		payloadLen += len(rlpEncodeUint64(chainID)) + 2 // + 0x80 + 0x80 for the two zero fields
	}

	c.hasher.Write(rlpListHeader(payloadLen))
	for _, it := range items {
		c.hasher.Write(it)
	}
	c.hasher.Write(rlpStringHeader(int(f.DataLength)))

	return c
}

// Feed streams the next chunk of transaction data directly into the
// running Keccak256 state (the data field's RLP header was already
// written by NewSigningContext, so the raw bytes are the field's
// complete RLP-encoded payload).
func (c *SigningContext) Feed(chunk []byte) error {
	if c.dataReceived+uint32(len(chunk)) > c.dataLength {
		return ErrDataLengthMismatch
	}
	c.hasher.Write(chunk)
	c.dataReceived += uint32(len(chunk))
	return nil
}

// DataRemaining reports how many more data bytes the host owes before
// Finish can run.
func (c *SigningContext) DataRemaining() uint32 {
	return c.dataLength - c.dataReceived
}

// Finish closes out the RLP list (the access_list for EIP-1559, encoded
// up front but hashed only now that the data field is complete, or the
// EIP-155 chainId/0/0 trailer for a post-155 legacy tx) and returns the
// final signing digest.
func (c *SigningContext) Finish() ([32]byte, error) {
	var zero [32]byte
	if c.dataReceived != c.dataLength {
		return zero, ErrDataLengthMismatch
	}
	if c.finished {
		return zero, errors.New("ethereum: signing context already finished")
	}
	c.finished = true

	if c.EIP1559 {
		c.hasher.Write(c.accessListBytes)
	} else if c.ChainID != 0 {
		c.hasher.Write(rlpEncodeUint64(c.ChainID))
		c.hasher.Write([]byte{0x80})
		c.hasher.Write([]byte{0x80})
	}

	var digest [32]byte
	copy(digest[:], c.hasher.Sum(nil))
	return digest, nil
}

// SignatureV computes the wire-level V value for a finished signature:
// EIP-155's chainId-folded value for legacy transactions (or the bare
// 27/28 form pre-EIP-155), and EIP-2718's 0/1 y-parity for EIP-1559.
func (c *SigningContext) SignatureV(recoveryID byte) uint64 {
	if c.EIP1559 {
		return uint64(recoveryID)
	}
	if c.ChainID == 0 {
		return uint64(recoveryID) + 27
	}
	return uint64(recoveryID) + c.ChainID*2 + 35
}

// Curve is always secp256k1 for Ethereum; kept as a
// function rather than a constant so callers can pass it straight into
// bip32's curve-parameterised derivation API.
func Curve() bip32.Curve { return bip32.CurveSecp256k1 }
