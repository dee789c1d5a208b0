package coin

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/crypto"
)

// registry is the compiled-in coin table. Coins are never added at
// runtime.
var registry = map[string]Descriptor{
	"Bitcoin": {
		Name: "Bitcoin", ShortcutSymbol: "BTC", SLIP44: 0,
		Curve: bip32.CurveSecp256k1,
		Addr: bip32.AddressParams{
			AddressVersion: []byte{chaincfg.MainNetParams.PubKeyHashAddrID},
			P2SHVersion:    []byte{chaincfg.MainNetParams.ScriptHashAddrID},
			Bech32HRP:      chaincfg.MainNetParams.Bech32HRPSegwit,
		},
		Caps:     CapSegwit | CapTaproot,
		Hasher:   crypto.Sha256d,
		MaxFeeKB: 100_000_000, // 1 BTC/kB, a deliberately generous compiled ceiling
	},
	"Testnet": {
		Name: "Testnet", ShortcutSymbol: "TEST", SLIP44: 1,
		Curve: bip32.CurveSecp256k1,
		Addr: bip32.AddressParams{
			AddressVersion: []byte{chaincfg.TestNet3Params.PubKeyHashAddrID},
			P2SHVersion:    []byte{chaincfg.TestNet3Params.ScriptHashAddrID},
			Bech32HRP:      chaincfg.TestNet3Params.Bech32HRPSegwit,
		},
		Caps:     CapSegwit | CapTaproot,
		Hasher:   crypto.Sha256d,
		MaxFeeKB: 100_000_000,
	},
	"Bcash": {
		Name: "Bcash", ShortcutSymbol: "BCH", SLIP44: 145,
		Curve: bip32.CurveSecp256k1,
		Addr: bip32.AddressParams{
			AddressVersion: []byte{0x00},
			P2SHVersion:    []byte{0x05},
			CashaddrPrefix: "bitcoincash",
			CashaddrFamily: true,
		},
		Caps:     CapForkID | CapCashaddr,
		Hasher:   crypto.Sha256d,
		MaxFeeKB: 100_000_000,
		ForkID:   0x00,
	},
	"Decred": {
		Name: "Decred", ShortcutSymbol: "DCR", SLIP44: 42,
		Curve: bip32.CurveSecp256k1,
		Addr: bip32.AddressParams{
			AddressVersion: []byte{0x07, 0x3f},
			P2SHVersion:    []byte{0x07, 0x1a},
		},
		Caps:     CapDecred,
		Hasher:   crypto.Blake256d,
		MaxFeeKB: 100_000_000,
	},
	"Zcash": {
		Name: "Zcash", ShortcutSymbol: "ZEC", SLIP44: 133,
		Curve: bip32.CurveSecp256k1,
		Addr: bip32.AddressParams{
			AddressVersion: []byte{0x1C, 0xB8},
			P2SHVersion:    []byte{0x1C, 0xBD},
		},
		Caps:           CapOverwintered,
		Hasher:         crypto.Sha256d,
		MaxFeeKB:       100_000_000,
		BranchID:       0x76b809bb, // Sapling
		VersionGroupID: 0x892f2085, // v4 overwintered
	},
}

// ErrUnknownCoin is returned when a SignTx or GetAddress message names a
// coin not present in the compiled-in registry.
var ErrUnknownCoin = fmt.Errorf("coin: unknown coin")

// ByName looks up a compiled-in coin descriptor by its wire name. The
// transport layer maps ErrUnknownCoin to DataError.
func ByName(name string) (Descriptor, error) {
	d, ok := registry[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownCoin, name)
	}
	return d, nil
}
