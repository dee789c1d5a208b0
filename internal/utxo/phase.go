package utxo

import (
	"errors"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/coin"
	"github.com/arcsign/signcore/internal/crypto"
)

// ErrTransactionChanged is returned when phase 2's hasher_check replay
// diverges from phase 1's, meaning the host reordered or mutated inputs
// between phases.
var ErrTransactionChanged = errors.New("utxo: transaction has changed during signing")

// hasherCheckEntry builds (prev_outpoint || script_type_tag) for one
// input, the value hasher_check accumulates across both phases.
func hasherCheckEntry(prevHash [32]byte, prevIndex uint32, scriptType bip32.ScriptType) []byte {
	out := append([]byte(nil), reversed(prevHash[:])...)
	out = append(out, crypto.PutUint32LE(prevIndex)...)
	out = append(out, byte(scriptType))
	return out
}

// Phase1ObserveInput feeds one phase-1 input into every running
// accumulator: BIP143 prevouts/sequence, hasher_check, the common-prefix
// tracker, and (for multisig inputs) the fingerprint tracker. Call this
// once per input while looping through REQ_1_INPUT.
func (c *SigningContext) Phase1ObserveInput(in InputRecord) {
	c.AccumulateInput(in.PrevHash, in.PrevIndex, in.Sequence)
	c.HasherCheck.Write(hasherCheckEntry(in.PrevHash, in.PrevIndex, in.ScriptType))
	c.ObserveInputPath(in.AddressN)
	if len(in.MultisigPubkeys) > 0 {
		c.ObserveInputFingerprint(multisigFingerprint(in.MultisigPubkeys, in.MultisigM))
	}
	if in.AmountKnown {
		c.ToSpend += in.Amount
	}
	c.Inputs = append(c.Inputs, in)
	c.Idx1++
}

// multisigFingerprint hashes the sorted pubkey set plus m, the identity
// used to detect "every phase-1 input shares the same fingerprint".
func multisigFingerprint(pubkeys [][]byte, m int) []byte {
	sorted := append([][]byte(nil), pubkeys...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && lessBytes(sorted[j], sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	var buf []byte
	buf = append(buf, byte(m))
	for _, pk := range sorted {
		buf = append(buf, pk...)
	}
	sum := crypto.Sha256Sum(buf)
	return sum[:]
}

func lessBytes(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Phase1FinishInputs closes out the REQ_1_INPUT loop: captures
// hasher_check's running digest for phase-2 comparison and finalises
// the BIP143 accumulators.
func (c *SigningContext) Phase1FinishInputs() error {
	c.hasherCheckSum = c.HasherCheck.Sum(nil)
	if _, _, _, err := c.FinishAccumulators(); err != nil {
		return err
	}
	c.Stage = StageRequest3Output
	return nil
}

// Phase1ObserveOutput feeds one phase-1 output through the change-
// detection rules and the running totals, returning whether it is
// eligible for silent change handling.
func (c *SigningContext) Phase1ObserveOutput(out OutputRecord, inputScriptType bip32.ScriptType, fundedBySegwit uint64, alreadyGranted *bool) bool {
	c.Spending += out.Amount
	isChange := c.IsChangeOutput(out, inputScriptType, fundedBySegwit, alreadyGranted)
	if isChange {
		c.ChangeSpend += out.Amount
	} else {
		c.AuthorizedAmount += out.Amount
	}
	c.AccumulateOutput(serializeOutput(out))
	c.Idx2++
	c.Outputs = append(c.Outputs, out)
	return isChange
}

func serializeOutput(out OutputRecord) []byte {
	var buf []byte
	buf = append(buf, crypto.PutUint64LE(out.Amount)...)
	// ScriptPubKey bytes are attached by the caller via coin/address
	// encoding before this is called in a full wire implementation; this
	// core's test harness constructs the bytes directly.
	return buf
}

// Phase2ReplayCheck re-feeds one phase-2 input into the hasher_check
// accumulator; it compares nothing itself. Phase2FinishCheck compares
// the final digest against the one captured at the end of phase 1,
// detecting any reorder or mutation.
// Call once per input during phase 2, then call Phase2FinishCheck after
// the last one.
func (c *SigningContext) Phase2ReplayCheck(checker interface{ Write([]byte) (int, error) }, in InputRecord) {
	checker.Write(hasherCheckEntry(in.PrevHash, in.PrevIndex, in.ScriptType))
}

// Phase2FinishCheck compares a freshly accumulated hasher_check digest
// against the one captured during phase 1.
func (c *SigningContext) Phase2FinishCheck(recomputed []byte) error {
	if !bytesEqual(c.hasherCheckSum, recomputed) {
		return ErrTransactionChanged
	}
	return nil
}

// NextInputStage decides, for one phase-2 input, whether it is routed
// through the segwit or legacy signing path.
func NextInputStage(d coin.Descriptor, in InputRecord) Stage {
	if d.HasCapability(coin.CapDecred) {
		return StageRequestDecredWitness
	}
	isSegwit := in.ScriptType == bip32.SpendWitnessSingle || in.ScriptType == bip32.SpendWitnessMulti ||
		in.ScriptType == bip32.SpendP2SHWitnessSingle || in.ScriptType == bip32.SpendP2SHWitnessMulti ||
		in.ScriptType == bip32.SpendTaproot
	if isSegwit {
		return StageRequestSegwitInput
	}
	return StageRequest4Input
}

// Finish transitions to the terminal stage and scrubs the root node.
func (c *SigningContext) Finish() {
	c.Stage = StageFinished
	c.Scrub()
}
