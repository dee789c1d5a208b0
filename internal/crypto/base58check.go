package crypto

import (
	"errors"

	"github.com/mr-tron/base58"
)

// ErrBadChecksum is returned by Base58CheckDecode when the trailing
// 4-byte checksum does not match the recomputed one.
var ErrBadChecksum = errors.New("crypto: base58check checksum mismatch")

// ErrTooShort is returned by Base58CheckDecode when the decoded payload is
// shorter than the checksum itself.
var ErrTooShort = errors.New("crypto: base58check payload too short")

// Hasher is a pluggable checksum function for Base58Check: Bitcoin-family
// coins use Sha256d, Decred uses Blake256d. mr-tron/base58 supplies the
// alphabet/encoding step; this package wraps it with our own checksum
// step instead of a fixed-hasher Base58Check implementation, since
// btcutil's base58.CheckEncode hardcodes double-SHA256 and cannot serve
// Decred's blake256d checksum.
type Hasher func([]byte) [32]byte

// Base58CheckEncode encodes version||payload with a 4-byte checksum
// produced by hasher(hasher(version||payload)) truncated to 4 bytes.
func Base58CheckEncode(version []byte, payload []byte, hasher Hasher) string {
	body := make([]byte, 0, len(version)+len(payload)+4)
	body = append(body, version...)
	body = append(body, payload...)
	sum := hasher(body)
	body = append(body, sum[:4]...)
	return base58.Encode(body)
}

// Base58CheckDecode reverses Base58CheckEncode, returning the
// version-prefixed payload (without the checksum) after verifying it.
func Base58CheckDecode(s string, versionLen int, hasher Hasher) (version, payload []byte, err error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return nil, nil, err
	}
	if len(decoded) < versionLen+4 {
		return nil, nil, ErrTooShort
	}
	body := decoded[:len(decoded)-4]
	checksum := decoded[len(decoded)-4:]
	sum := hasher(body)
	for i := 0; i < 4; i++ {
		if sum[i] != checksum[i] {
			return nil, nil, ErrBadChecksum
		}
	}
	return body[:versionLen], body[versionLen:], nil
}
