// Package crypto is the cryptographic primitives façade. Every streaming
// hasher here exposes Write/Sum so callers can feed a transaction in
// pieces without ever holding the whole thing in memory, built around
// crypto/sha256 and go-ethereum/crypto, generalized to the hash families
// the UTXO and Ethereum engines need (SHA-256 double-hash, Keccak256,
// personalised BLAKE2b for Zcash, Decred blake256).
//
// No function in this package retains a reference to caller-owned memory
// past return, and every internal scratch buffer is zeroised before an
// error return.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"hash"

	"github.com/decred/dcrd/crypto/blake256"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // HASH160 requires RIPEMD160; no replacement exists.
)

// Sha256 returns a fresh streaming SHA-256 hasher.
func Sha256() hash.Hash { return sha256.New() }

// Sha256d computes Bitcoin's double SHA-256 over the full input in one
// call; used by legacy sighash and txid computation.
func Sha256d(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// Sha256Sum computes a single SHA-256 digest, used wherever a scheme
// commits to SHA256(redeem_script) rather than the double hash.
func Sha256Sum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Sha512 returns a fresh streaming SHA-512 hasher.
func Sha512() hash.Hash { return sha512.New() }

// HmacSha256 computes HMAC-SHA256 over data with the given key.
func HmacSha256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	sum := mac.Sum(nil)
	return sum
}

// HmacSha512 computes HMAC-SHA512 over data with the given key. This is
// the primitive BIP32 child key derivation is built on.
func HmacSha512(key, data []byte) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	sum := mac.Sum(nil)
	return sum
}

// Keccak256 wraps go-ethereum's Keccak256, the hash the Ethereum engine
// (C6) and EIP-191 message signing use throughout.
func Keccak256(data ...[]byte) [32]byte {
	return ethcrypto.Keccak256Hash(data...)
}

// Keccak256Streaming returns a fresh streaming Keccak256 state, used by
// the Ethereum engine to hash an RLP payload as chunks arrive rather than
// buffering the whole transaction.
func Keccak256Streaming() hash.Hash {
	return ethcrypto.NewKeccakState()
}

// Hash160 is RIPEMD160(SHA256(data)), the pubkey-hash primitive behind
// every non-segwit Bitcoin address form.
func Hash160(data []byte) []byte {
	sha := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sha[:])
	return r.Sum(nil)
}

// Blake256d is Decred's double blake256, used for its Base58Check
// checksum and block/tx hashing.
func Blake256d(data []byte) [32]byte {
	first := blake256.Sum256(data)
	return blake256.Sum256(first[:])
}

// Blake2bPersonal computes a BLAKE2b-256 digest with the given 16-byte
// personalization string, as Zcash's BIP143-equivalent accumulators
// require.
func Blake2bPersonal(personal string, data ...[]byte) ([32]byte, error) {
	var out [32]byte
	cfg := &blake2b.Config{Size: 32, Person: []byte(personal)}
	h, err := blake2b.New(cfg)
	if err != nil {
		return out, err
	}
	for _, d := range data {
		h.Write(d)
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}

// PutUint16BE writes v as a 2-byte big-endian integer.
func PutUint16BE(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// PutUint32BE writes v as a 4-byte big-endian integer.
func PutUint32BE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// PutUint64BE writes v as an 8-byte big-endian integer.
func PutUint64BE(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// PutUint32LE writes v as a 4-byte little-endian integer, the byte order
// every Bitcoin transaction field outside of script pushes uses.
func PutUint32LE(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// PutUint64LE writes v as an 8-byte little-endian integer (amounts,
// BIP143 outpoint index, etc).
func PutUint64LE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// WriteVarInt appends Bitcoin's "compact size" variable-length integer
// encoding of n to dst and returns the result.
func WriteVarInt(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(n))
		return append(append(dst, 0xfd), b...)
	case n <= 0xffffffff:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(n))
		return append(append(dst, 0xfe), b...)
	default:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, n)
		return append(append(dst, 0xff), b...)
	}
}

// CRC16CCITT computes the CCITT variant of CRC16 (poly 0x1021, init
// 0xFFFF, MSB-first, no reflection). Nothing in this module calls it
// outside its own test. No dependency in this module's stack carries
// this exact variant, so it is implemented directly as a bitwise loop
// rather than pulled in as a dependency.
func CRC16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
