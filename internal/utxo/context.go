// Package utxo implements the UTXO signing engine (C5): the streamed,
// multi-phase transaction signer for Bitcoin-family coins, covering
// legacy, BIP143 SegWit v0, taproot, Decred's witness-tail variant, and
// Zcash's overwintered sighash.
package utxo

import (
	"hash"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/coin"
	"github.com/arcsign/signcore/internal/crypto"
)

// Stage names the next message the device will emit.
type Stage int

const (
	StageInit Stage = iota
	StageRequest1Input
	StageRequest2PrevMeta
	StageRequest2PrevInput
	StageRequest2PrevOutput
	StageRequest2PrevExtradata
	StageRequest3Output
	StageRequest4Input
	StageRequest4Output
	StageRequestSegwitInput
	StageRequest5Output
	StageRequestSegwitWitness
	StageRequestDecredWitness
	StageFinished
)

// InputRecord is the subset of an input's wire fields the engine needs
// across both phases.
type InputRecord struct {
	PrevHash        [32]byte
	PrevIndex       uint32
	Sequence        uint32
	AddressN        []uint32 // BIP32 path
	ScriptType      bip32.ScriptType
	Amount          uint64 // required for segwit, optional for legacy (verified via prev-tx streaming otherwise)
	AmountKnown     bool
	External        bool
	ScriptPubKey    []byte // external inputs only
	OwnershipProof  []byte // external inputs only
	MultisigPubkeys [][]byte
	MultisigM       int
}

// OutputRecord is the subset of an output's wire fields the engine
// needs.
type OutputRecord struct {
	Amount     uint64
	Address    string          // set for external outputs
	AddressN   []uint32        // set for change candidates
	ScriptType bip32.ScriptType
}

// SigningContext is bound to one transaction from start to finish. It
// owns every piece of running state the phase machine in phase.go
// mutates.
type SigningContext struct {
	Descriptor coin.Descriptor
	Root       *bip32.Node

	InputsCount  int
	OutputsCount int

	LockTime       uint32
	Expiry         uint32
	Version        uint32
	VersionGroupID uint32
	BranchID       uint32
	Timestamp      uint32

	ToSpend          uint64
	AuthorizedAmount uint64
	Spending         uint64
	ChangeSpend      uint64

	HasherPrevouts hash.Hash
	HasherSequence hash.Hash
	HasherOutputs  hash.Hash
	HasherCheck    hash.Hash
	hasherCheckSum []byte // captured at the end of phase 1 for phase-2 comparison

	// zcashPrevouts/zcashSequence/zcashOutputs accumulate raw bytes
	// instead of streaming through hash.Hash, since Zcash's BLAKE2b
	// accumulators need the whole buffer for their personalization
	// config rather than exposing a streaming Write (crypto.Blake2bPersonal
	// takes data ...[]byte).
	zcashPrevouts [][]byte
	zcashSequence [][]byte
	zcashOutputs  [][]byte

	Stage Stage
	Idx1  int
	Idx2  int

	NextNonSegwitInput int

	MultisigFingerprint         []byte
	multisigFingerprintSet      bool
	MultisigFingerprintMismatch bool

	CommonBip32Prefix []uint32
	commonPrefixSet   bool
	ChangeDetectionOK bool

	Inputs  []InputRecord
	Outputs []OutputRecord
}

// NewSigningContext starts a fresh SignTx flow.
func NewSigningContext(d coin.Descriptor, root *bip32.Node, inputsCount, outputsCount int, lockTime uint32) *SigningContext {
	ctx := &SigningContext{
		Descriptor:        d,
		Root:              root,
		InputsCount:       inputsCount,
		OutputsCount:      outputsCount,
		LockTime:          lockTime,
		Stage:             StageRequest1Input,
		ChangeDetectionOK: true,
	}
	if !d.HasCapability(coin.CapOverwintered) {
		ctx.HasherPrevouts = crypto.Sha256()
		ctx.HasherSequence = crypto.Sha256()
		ctx.HasherOutputs = crypto.Sha256()
	}
	ctx.HasherCheck = crypto.Sha256()
	return ctx
}

// Progress returns a 0-1000 permil completion estimate, weighted across
// phase 1 and phase 2 by input/output counts.
func (c *SigningContext) Progress() int {
	total := 2 * (c.InputsCount + c.OutputsCount)
	if total == 0 {
		return 1000
	}
	done := c.Idx1 + c.Idx2
	permil := (done * 1000) / total
	if permil > 1000 {
		permil = 1000
	}
	return permil
}

// Scrub zeroises the root node; handleTxAck calls it on TX_FINISHED and
// when a step of the flow fails, including a user decline or a host
// cancellation.
func (c *SigningContext) Scrub() {
	if c.Root != nil {
		c.Root.Scrub()
	}
}
