package bip32

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePath parses a BIP32 path string like "m/44'/0'/0'/0/0" into a
// slice of CKD indices, with the hardened bit already folded in for
// components ending in "'" or "h", split out so callers can inspect the
// parsed indices (for change-address and unusual-path checks) instead
// of only deriving through them.
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimPrefix(path, "m/")
	path = strings.TrimPrefix(path, "M/")
	if path == "" || path == "m" || path == "M" {
		return nil, nil
	}
	components := strings.Split(path, "/")
	out := make([]uint32, 0, len(components))
	for i, component := range components {
		if component == "" {
			continue
		}
		hardened := false
		if strings.HasSuffix(component, "'") || strings.HasSuffix(component, "h") || strings.HasSuffix(component, "H") {
			hardened = true
			component = component[:len(component)-1]
		}
		index, err := strconv.ParseUint(component, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bip32: invalid path component at position %d: %s", i, component)
		}
		if index >= HardenedKeyStart {
			return nil, fmt.Errorf("bip32: path component at position %d out of range", i)
		}
		if hardened {
			out = append(out, HardenedKeyStart+uint32(index))
		} else {
			out = append(out, uint32(index))
		}
	}
	return out, nil
}

// IsHardened reports whether index requests hardened derivation.
func IsHardened(index uint32) bool {
	return index >= HardenedKeyStart
}

// CommonPrefixLen returns the length of the shared prefix of a and b,
// used by the UTXO engine to track the "common input BIP32 prefix"
// across an input set.
func CommonPrefixLen(a, b []uint32) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// IsChangePath reports whether candidate is eligible to be treated as a
// change path relative to commonPrefix: candidate must extend
// commonPrefix by exactly two components, with the first of those
// ("change chain") at most maxChangeChain and the second ("address
// index") at most maxLastElement.
func IsChangePath(commonPrefix, candidate []uint32, maxChangeChain, maxLastElement uint32) bool {
	if len(candidate) != len(commonPrefix)+2 {
		return false
	}
	for i, v := range commonPrefix {
		if candidate[i] != v {
			return false
		}
	}
	changeChain := candidate[len(commonPrefix)]
	lastElement := candidate[len(commonPrefix)+1]
	return changeChain <= maxChangeChain && lastElement <= maxLastElement
}
