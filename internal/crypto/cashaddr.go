package crypto

import (
	"errors"
	"strings"
)

// Cashaddr (Bitcoin Cash's address format, BCH UAHF spec) has no
// maintained Go library in this module's dependency stack — the closest
// relatives (btcutil/bech32, mr-tron/base58) solve a different checksum
// problem. This is the one codec in the façade implemented directly
// against the published algorithm (a BCH-code polymod over a 40-bit
// checksum, not bech32's), documented here as the stdlib-style
// justification DESIGN.md requires for anything not built on a pack
// dependency.

const cashaddrCharset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// CashaddrEncode encodes addrType (0 = P2PKH, 1 = P2SH per the cashaddr
// spec) and a 20- or 32-byte hash into a prefixed cashaddr string.
func CashaddrEncode(prefix string, addrType byte, hash []byte) (string, error) {
	if len(hash) != 20 && len(hash) != 32 {
		return "", errors.New("crypto: cashaddr hash must be 20 or 32 bytes")
	}
	sizeBits, err := cashaddrSizeBits(len(hash))
	if err != nil {
		return "", err
	}
	versionByte := (addrType << 3) | sizeBits
	payload := append([]byte{versionByte}, hash...)
	fiveBit, err := convertBitsCashaddr(payload, 8, 5, true)
	if err != nil {
		return "", err
	}
	checksum := cashaddrChecksum(prefix, fiveBit)
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteByte(':')
	for _, b := range fiveBit {
		sb.WriteByte(cashaddrCharset[b])
	}
	for _, b := range checksum {
		sb.WriteByte(cashaddrCharset[b])
	}
	return sb.String(), nil
}

// CashaddrDecode reverses CashaddrEncode, returning the address type and
// hash bytes after verifying the checksum.
func CashaddrDecode(prefix, address string) (addrType byte, hash []byte, err error) {
	full := address
	if idx := strings.IndexByte(address, ':'); idx >= 0 {
		if address[:idx] != prefix {
			return 0, nil, errors.New("crypto: cashaddr prefix mismatch")
		}
		full = address[idx+1:]
	}
	decoded := make([]byte, len(full))
	for i, c := range strings.ToLower(full) {
		idx := strings.IndexRune(cashaddrCharset, c)
		if idx < 0 {
			return 0, nil, errors.New("crypto: invalid cashaddr character")
		}
		decoded[i] = byte(idx)
	}
	if len(decoded) < 8 {
		return 0, nil, errors.New("crypto: cashaddr string too short")
	}
	if cashaddrPolymod(append(cashaddrExpandPrefix(prefix), decoded...)) != 0 {
		return 0, nil, errors.New("crypto: cashaddr checksum mismatch")
	}
	payload, err := convertBitsCashaddr(decoded[:len(decoded)-8], 5, 8, false)
	if err != nil {
		return 0, nil, err
	}
	if len(payload) == 0 {
		return 0, nil, errors.New("crypto: empty cashaddr payload")
	}
	versionByte := payload[0]
	addrType = versionByte >> 3
	return addrType, payload[1:], nil
}

func cashaddrSizeBits(hashLen int) (byte, error) {
	switch hashLen {
	case 20:
		return 0, nil
	case 24:
		return 1, nil
	case 28:
		return 2, nil
	case 32:
		return 3, nil
	case 40:
		return 4, nil
	case 48:
		return 5, nil
	case 56:
		return 6, nil
	case 64:
		return 7, nil
	default:
		return 0, errors.New("crypto: unsupported cashaddr hash length")
	}
}

func cashaddrExpandPrefix(prefix string) []byte {
	out := make([]byte, 0, len(prefix)+1)
	for _, c := range prefix {
		out = append(out, byte(c)&0x1f)
	}
	out = append(out, 0)
	return out
}

func cashaddrPolymod(values []byte) uint64 {
	c := uint64(1)
	for _, d := range values {
		c0 := byte(c >> 35)
		c = ((c & 0x07ffffffff) << 5) ^ uint64(d)
		if c0&0x01 != 0 {
			c ^= 0x98f2bc8e61
		}
		if c0&0x02 != 0 {
			c ^= 0x79b76d99e2
		}
		if c0&0x04 != 0 {
			c ^= 0xf33e5fb3c4
		}
		if c0&0x08 != 0 {
			c ^= 0xae2eabe2a8
		}
		if c0&0x10 != 0 {
			c ^= 0x1e4f43e470
		}
	}
	return c ^ 1
}

func cashaddrChecksum(prefix string, payload []byte) []byte {
	values := append(cashaddrExpandPrefix(prefix), payload...)
	values = append(values, 0, 0, 0, 0, 0, 0, 0, 0)
	mod := cashaddrPolymod(values)
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = byte((mod >> uint(5*(7-i))) & 31)
	}
	return out
}

// convertBitsCashaddr is a local copy of the generic bit-regrouping
// algorithm bech32.ConvertBits also implements; cashaddr uses the same
// transform but must not depend on bech32's checksum behavior, so it is
// kept local and byte-for-byte identical to the well-known reference
// algorithm.
func convertBitsCashaddr(data []byte, fromBits, toBits uint, pad bool) ([]byte, error) {
	acc := uint32(0)
	bits := uint(0)
	var out []byte
	maxv := uint32(1)<<toBits - 1
	for _, value := range data {
		if uint32(value)>>fromBits != 0 {
			return nil, errors.New("crypto: invalid data range for bit conversion")
		}
		acc = (acc << fromBits) | uint32(value)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			out = append(out, byte((acc>>bits)&maxv))
		}
	}
	if pad {
		if bits > 0 {
			out = append(out, byte((acc<<(toBits-bits))&maxv))
		}
	} else if bits >= fromBits || (acc<<(toBits-bits))&maxv != 0 {
		return nil, errors.New("crypto: invalid padding in bit conversion")
	}
	return out, nil
}
