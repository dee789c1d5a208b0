package bip32

import (
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"

	"github.com/arcsign/signcore/internal/crypto"
)

// ScriptType enumerates the address/scriptPubKey forms the encoder table
// covers.
type ScriptType int

const (
	SpendAddress ScriptType = iota
	SpendP2SHWitnessSingle
	SpendP2SHWitnessMulti
	SpendWitnessSingle
	SpendWitnessMulti
	SpendTaproot
	SpendCashaddr
)

// AddressParams carries the per-coin bytes an address encoder needs:
// version bytes for legacy/P2SH forms, the bech32 HRP, and the cashaddr
// prefix. A coin.Descriptor embeds one of these.
//
// AddressVersion/P2SHVersion are the raw version-byte prefix, big-endian:
// one byte for Bitcoin-family coins, two bytes for Decred's wider prefix
// space.
type AddressParams struct {
	AddressVersion   []byte
	P2SHVersion      []byte
	Bech32HRP        string
	CashaddrPrefix   string
	Base58ChecksumFn crypto.Hasher
	CashaddrFamily   bool
}

var ErrUnsupportedScriptType = errors.New("bip32: unsupported script type for address encoding")

// EncodeAddress implements the address-encoder table.
//
//   - SpendAddress:             Base58Check(addressVersion || Hash160(pubkey))
//   - SpendP2SHWitnessSingle:   Base58Check(p2shVersion || Hash160(0x00 0x14 || Hash160(pubkey)))
//   - SpendP2SHWitnessMulti:    Base58Check(p2shVersion || Hash160(0x00 0x20 || SHA256(redeem)))
//   - SpendWitnessSingle:       bech32 v0 over Hash160(pubkey)
//   - SpendWitnessMulti:        bech32 v0 over SHA256(redeem)
//   - SpendTaproot:             bech32m v1 over the BIP341-tweaked x-only key
//   - SpendCashaddr:            cashaddr over typeByte || Hash160(pubkey or redeem)
func EncodeAddress(scriptType ScriptType, params AddressParams, pubkey, redeemScript []byte) (string, error) {
	hasher := params.Base58ChecksumFn
	if hasher == nil {
		hasher = crypto.Sha256d
	}
	switch scriptType {
	case SpendAddress:
		return crypto.Base58CheckEncode(params.AddressVersion, crypto.Hash160(pubkey), hasher), nil

	case SpendP2SHWitnessSingle:
		program := append([]byte{0x00, 0x14}, crypto.Hash160(pubkey)...)
		return crypto.Base58CheckEncode(params.P2SHVersion, crypto.Hash160(program), hasher), nil

	case SpendP2SHWitnessMulti:
		sum := crypto.Sha256Sum(redeemScript)
		program := append([]byte{0x00, 0x20}, sum[:]...)
		return crypto.Base58CheckEncode(params.P2SHVersion, crypto.Hash160(program), hasher), nil

	case SpendWitnessSingle:
		return crypto.SegwitEncode(params.Bech32HRP, 0, crypto.Hash160(pubkey))

	case SpendWitnessMulti:
		sum := crypto.Sha256Sum(redeemScript)
		return crypto.SegwitEncode(params.Bech32HRP, 0, sum[:])

	case SpendTaproot:
		internal, err := btcec.ParsePubKey(pubkey)
		if err != nil {
			return "", err
		}
		tweaked := txscript.ComputeTaprootOutputKey(internal, nil)
		xOnly := tweaked.SerializeCompressed()[1:]
		return crypto.SegwitEncode(params.Bech32HRP, 1, xOnly)

	case SpendCashaddr:
		var addrType byte
		var hash []byte
		if redeemScript != nil {
			addrType = 1
			hash = crypto.Hash160(redeemScript)
		} else {
			addrType = 0
			hash = crypto.Hash160(pubkey)
		}
		return crypto.CashaddrEncode(params.CashaddrPrefix, addrType, hash)

	default:
		return "", ErrUnsupportedScriptType
	}
}

// DecodedScript is the result of parsing an address or a raw
// scriptPubKey back into its recognised form.
type DecodedScript struct {
	Type     ScriptType
	Hash     []byte // 20 bytes for P2PKH/P2SH/witness-v0-pubkey, 32 for witness-v0-script
	XOnlyKey []byte // 32 bytes, SpendTaproot only
}

var (
	ErrInvalidProgram = errors.New("bip32: program is not a valid x-only BIP340 public key")
)

// ParseSegwitAddress recognises SegWit v0 (20 or 32 byte program) and
// SegWit v1 (32-byte, must parse as a valid x-only BIP340 key) address
// forms. Any other witness version or length is rejected.
func ParseSegwitAddress(hrp, address string) (DecodedScript, error) {
	version, program, err := crypto.SegwitDecode(hrp, address)
	if err != nil {
		return DecodedScript{}, err
	}
	switch version {
	case 0:
		if len(program) == 20 {
			return DecodedScript{Type: SpendWitnessSingle, Hash: program}, nil
		}
		return DecodedScript{Type: SpendWitnessMulti, Hash: program}, nil
	case 1:
		if len(program) != 32 {
			return DecodedScript{}, ErrInvalidProgram
		}
		if _, err := btcec.ParsePubKey(append([]byte{0x02}, program...)); err != nil {
			return DecodedScript{}, ErrInvalidProgram
		}
		return DecodedScript{Type: SpendTaproot, XOnlyKey: program}, nil
	default:
		return DecodedScript{}, ErrInvalidProgram
	}
}
