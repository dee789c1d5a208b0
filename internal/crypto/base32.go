package crypto

import "encoding/base32"

// Base32 shortcut identifiers use plain RFC 4648 base32 with no bech32-style checksum —
// encoding/base32 is the idiomatic choice here since none of the pack's
// base32 users (e.g. TOTP-adjacent code) add anything beyond what the
// standard library already does correctly; this is the second deliberate
// stdlib choice in this package, alongside ed25519.go.

var base32Encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Base32Encode encodes data using unpadded RFC4648 base32.
func Base32Encode(data []byte) string {
	return base32Encoding.EncodeToString(data)
}

// Base32Decode decodes an unpadded RFC4648 base32 string.
func Base32Decode(s string) ([]byte, error) {
	return base32Encoding.DecodeString(s)
}
