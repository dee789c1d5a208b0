// Package coin holds the compiled-in coin descriptors the UTXO engine
// signs against. Descriptors are static configuration, never supplied
// by the host.
package coin

import (
	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/crypto"
)

// Capability is a bitmask of per-coin format variants: segwit, taproot,
// forkid, Decred, overwintered, negative-fee. A coin descriptor's flag
// set selects the format strategy instead of compile-time switches.
type Capability uint16

const (
	CapSegwit Capability = 1 << iota
	CapTaproot
	CapForkID
	CapDecred
	CapOverwintered
	CapNegativeFee
	CapCashaddr
)

func (c Capability) Has(flag Capability) bool { return c&flag != 0 }

// Descriptor is the full static configuration for one coin. SLIP44 is the BIP44 coin_type used to validate derivation paths
// against the "unusual path" safety check.
type Descriptor struct {
	Name           string
	ShortcutSymbol string
	SLIP44         uint32
	Curve          bip32.Curve
	Addr           bip32.AddressParams
	Caps           Capability
	Hasher         crypto.Hasher
	MaxFeeKB       uint64
	ForkID         uint32
	// BranchID / VersionGroupID are Zcash-specific consensus constants
	// carried for the overwintered sighash.
	BranchID       uint32
	VersionGroupID uint32
}

func (d Descriptor) HasCapability(c Capability) bool { return d.Caps.Has(c) }
