package utxo

import "github.com/arcsign/signcore/internal/bip32"

const (
	// BIP32NoChangeAllowed disables change detection entirely once the
	// common input prefix cannot be established.
	BIP32NoChangeAllowed = 1
	// BIP32ChangeChain bounds the last-but-one path component eligible
	// for silent change detection.
	BIP32ChangeChain = 1
	// BIP32MaxLastElement bounds the final path component.
	BIP32MaxLastElement = 1_000_000
)

// ObserveInputPath folds one phase-1 input's derivation path into the
// running common-prefix tracker. Divergence degrades change detection to "no change
// allowed" rather than failing the signing flow outright.
func (c *SigningContext) ObserveInputPath(path []uint32) {
	if len(path) < 2 {
		c.ChangeDetectionOK = false
		return
	}
	ancestry := path[:len(path)-2]
	if !c.commonPrefixSet {
		c.CommonBip32Prefix = append([]uint32(nil), ancestry...)
		c.commonPrefixSet = true
		return
	}
	if bip32.CommonPrefixLen(c.CommonBip32Prefix, ancestry) != len(c.CommonBip32Prefix) || len(ancestry) != len(c.CommonBip32Prefix) {
		c.ChangeDetectionOK = false
	}
}

// ObserveInputFingerprint folds one phase-1 input's multisig
// fingerprint (hash of sorted pubkey set + m) into the running
// tracker. A mismatch across inputs disables change detection for
// multisig outputs rather than aborting.
func (c *SigningContext) ObserveInputFingerprint(fingerprint []byte) {
	if !c.multisigFingerprintSet {
		c.MultisigFingerprint = append([]byte(nil), fingerprint...)
		c.multisigFingerprintSet = true
		return
	}
	if !bytesEqual(c.MultisigFingerprint, fingerprint) {
		c.MultisigFingerprintMismatch = true
	}
}

// changeEligibility tracks whether the single silently-accepted
// change output has already been granted for this transaction.
type changeEligibility struct {
	alreadyGranted bool
}

// IsChangeOutput decides whether out is eligible to be silently treated
// as change: same script type and BIP32 change-chain as the inputs,
// within the common prefix, with no multisig fingerprint mismatch.
// fundedBySegwit is the maximum amount segwit inputs funded, used for
// the "segwit-change rule" bound. already is mutated in place by the
// phase loop to track the "first match only" rule across the output
// loop.
func (c *SigningContext) IsChangeOutput(out OutputRecord, inputScriptType bip32.ScriptType, fundedBySegwit uint64, already *bool) bool {
	if *already {
		return false
	}
	if !c.ChangeDetectionOK || c.MultisigFingerprintMismatch {
		return false
	}
	if out.AddressN == nil {
		return false
	}
	if !bip32.IsChangePath(c.CommonBip32Prefix, out.AddressN, BIP32ChangeChain, BIP32MaxLastElement) {
		return false
	}
	if out.ScriptType != inputScriptType {
		return false
	}
	if out.ScriptType == bip32.SpendWitnessSingle || out.ScriptType == bip32.SpendWitnessMulti || out.ScriptType == bip32.SpendP2SHWitnessSingle || out.ScriptType == bip32.SpendP2SHWitnessMulti {
		if out.Amount > fundedBySegwit {
			return false
		}
	}
	*already = true
	return true
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
