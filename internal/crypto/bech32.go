package crypto

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// ErrBadWitnessProgram is returned when a decoded segwit program has an
// invalid length for its witness version.
var ErrBadWitnessProgram = errors.New("crypto: invalid witness program length")

// bech32Charset is BIP173's base32 alphabet, used for our own encoding
// and checksum verification below; ConvertBits/the 5-bit packing still
// comes from btcutil/bech32.
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// bech32Const and bech32mConst are the BIP173/BIP350 checksum constants.
// btcutil's Encode/Decode are not used in this module: both the bech32
// checksum (witness v0) and the BIP350 bech32m checksum (v1+, taproot)
// are implemented directly here against the polymod algorithm both BIPs
// share.
const (
	bech32Const  = 1
	bech32mConst = 0x2bc830a3
)

// SegwitEncode encodes a witness version + program as a bech32 (version 0)
// or bech32m (version 1+, BIP350) address with the given human-readable
// part.
func SegwitEncode(hrp string, witnessVersion byte, program []byte) (string, error) {
	converted, err := bech32.ConvertBits(program, 8, 5, true)
	if err != nil {
		return "", err
	}
	data := make([]byte, 0, len(converted)+1)
	data = append(data, witnessVersion)
	data = append(data, converted...)

	constant := bech32Const
	if witnessVersion != 0 {
		constant = bech32mConst
	}
	return encodeBech32(hrp, data, constant), nil
}

// SegwitDecode reverses SegwitEncode, validating the hrp and returning the
// witness version and program bytes. Segwit v0 programs must be 20 or 32
// bytes; v1 (taproot) programs must be exactly 32 bytes.
func SegwitDecode(expectedHRP, address string) (witnessVersion byte, program []byte, err error) {
	hrp, data, constant, err := decodeBech32(address)
	if err != nil {
		return 0, nil, err
	}
	if !strings.EqualFold(hrp, expectedHRP) {
		return 0, nil, errors.New("crypto: unexpected bech32 human-readable part")
	}
	if len(data) == 0 {
		return 0, nil, ErrBadWitnessProgram
	}
	witnessVersion = data[0]
	program, err = bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return 0, nil, err
	}
	if witnessVersion == 0 {
		if constant != bech32Const {
			return 0, nil, errors.New("crypto: segwit v0 address must use bech32, not bech32m")
		}
		if len(program) != 20 && len(program) != 32 {
			return 0, nil, ErrBadWitnessProgram
		}
	} else {
		if constant != bech32mConst {
			return 0, nil, errors.New("crypto: segwit v1+ address must use bech32m")
		}
		if witnessVersion == 1 && len(program) != 32 {
			return 0, nil, ErrBadWitnessProgram
		}
	}
	return witnessVersion, program, nil
}

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 != 0 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}

func bech32HrpExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for _, c := range hrp {
		out = append(out, byte(c)>>5)
	}
	out = append(out, 0)
	for _, c := range hrp {
		out = append(out, byte(c)&31)
	}
	return out
}

func bech32CreateChecksum(hrp string, data []byte, constant int) []byte {
	values := append(bech32HrpExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	mod := bech32Polymod(values) ^ uint32(constant)
	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((mod >> uint(5*(5-i))) & 31)
	}
	return checksum
}

func encodeBech32(hrp string, data []byte, constant int) string {
	checksum := bech32CreateChecksum(hrp, data, constant)
	combined := append(append([]byte{}, data...), checksum...)
	var sb strings.Builder
	sb.WriteString(hrp)
	sb.WriteByte('1')
	for _, b := range combined {
		sb.WriteByte(bech32Charset[b])
	}
	return sb.String()
}

func decodeBech32(address string) (hrp string, data []byte, constant int, err error) {
	lower := strings.ToLower(address)
	if lower != address && strings.ToUpper(address) != address {
		return "", nil, 0, errors.New("crypto: mixed-case bech32 string")
	}
	address = lower
	sep := strings.LastIndexByte(address, '1')
	if sep < 1 || sep+7 > len(address) {
		return "", nil, 0, errors.New("crypto: invalid bech32 separator position")
	}
	hrp = address[:sep]
	dataPart := address[sep+1:]
	decoded := make([]byte, len(dataPart))
	for i, c := range dataPart {
		idx := strings.IndexRune(bech32Charset, c)
		if idx < 0 {
			return "", nil, 0, errors.New("crypto: invalid bech32 character")
		}
		decoded[i] = byte(idx)
	}
	if len(decoded) < 6 {
		return "", nil, 0, errors.New("crypto: bech32 string too short")
	}
	values := append(bech32HrpExpand(hrp), decoded...)
	mod := bech32Polymod(values)
	switch uint32(mod) {
	case bech32Const:
		constant = bech32Const
	case bech32mConst:
		constant = bech32mConst
	default:
		return "", nil, 0, errors.New("crypto: bech32 checksum mismatch")
	}
	return hrp, decoded[:len(decoded)-6], constant, nil
}
