package utxo

import (
	"context"
	"errors"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/collab"
	"github.com/arcsign/signcore/internal/coin"
	"github.com/arcsign/signcore/internal/crypto"
	"github.com/arcsign/signcore/internal/protocol"
)

// KeyProvider derives the node needed to sign or verify one input or
// output, keyed by its BIP32 path and curve. A real deployment wires
// this to Session.Derive, going through the session's LRU cache.
type KeyProvider func(path []uint32, curve bip32.Curve) (*bip32.Node, error)

var (
	// ErrSignerCancelled reports a mid-flow Cancel observed by WatchCancel.
	ErrSignerCancelled = errors.New("utxo: signing cancelled")
	// ErrSignerReinitialized reports a mid-flow Initialize observed by WatchCancel.
	ErrSignerReinitialized = errors.New("utxo: signing interrupted by re-initialize")
	// ErrTooManyOutputs / ErrTooManyInputs guard against a host that keeps
	// streaming past the counts it declared in SignTx.
	ErrTooManyInputs  = errors.New("utxo: more inputs streamed than declared")
	ErrTooManyOutputs = errors.New("utxo: more outputs streamed than declared")
)

// SignedInput carries one phase-2 input's finished scriptSig/witness.
type SignedInput struct {
	Index     int
	ScriptSig []byte
	Witness   [][]byte
}

// Signer drives one SigningContext through the full REQ_1_INPUT →
// REQ_3_OUTPUT → phase-2 signing → REQ_5_OUTPUT/REQ_SEGWIT_WITNESS/
// REQ_DECRED_WITNESS → TX_FINISHED sequence. Every step checks
// protocol.WatchCancel between chunks — the suspension point between
// TxAck exchanges where a cancel can interrupt signing.
type Signer struct {
	Ctx  *SigningContext
	ui   collab.UI
	bus  *protocol.Bus
	keys KeyProvider

	changeGranted bool
	signed        []SignedInput
}

// NewSigner starts a driver over a freshly constructed SigningContext.
func NewSigner(sc *SigningContext, ui collab.UI, bus *protocol.Bus, keys KeyProvider) *Signer {
	return &Signer{Ctx: sc, ui: ui, bus: bus, keys: keys}
}

func (s *Signer) checkCancel() error {
	if s.bus == nil {
		return nil
	}
	cancelled, reinit := protocol.WatchCancel(s.bus)
	if cancelled {
		return ErrSignerCancelled
	}
	if reinit {
		return ErrSignerReinitialized
	}
	return nil
}

// ObserveInput feeds one phase-1 input (the REQ_1_INPUT loop). Returns
// the next TxRequest once all inputs have been seen.
func (s *Signer) ObserveInput(ctx context.Context, in InputRecord) (*protocol.TxRequestPayload, error) {
	if err := s.checkCancel(); err != nil {
		return nil, err
	}
	if s.Ctx.Idx1 >= s.Ctx.InputsCount {
		return nil, ErrTooManyInputs
	}
	s.Ctx.Phase1ObserveInput(in)
	s.ui.NotifyProgress("Signing transaction", s.Ctx.Progress())

	if s.Ctx.Idx1 < s.Ctx.InputsCount {
		return &protocol.TxRequestPayload{
			RequestType: "TXINPUT",
			Details:     protocol.TxRequestDetails{RequestIndex: s.Ctx.Idx1},
		}, nil
	}

	if err := s.Ctx.Phase1FinishInputs(); err != nil {
		return nil, err
	}
	return &protocol.TxRequestPayload{
		RequestType: "TXOUTPUT",
		Details:     protocol.TxRequestDetails{RequestIndex: 0},
	}, nil
}

// ObserveOutput feeds one phase-1 output (the REQ_3_OUTPUT loop),
// confirming every non-change output with the user via ProtectButton
// before moving on.
func (s *Signer) ObserveOutput(ctx context.Context, out OutputRecord, inputScriptType bip32.ScriptType, fundedBySegwit uint64) (*protocol.TxRequestPayload, error) {
	if err := s.checkCancel(); err != nil {
		return nil, err
	}
	if s.Ctx.Idx2 >= s.Ctx.OutputsCount {
		return nil, ErrTooManyOutputs
	}

	isChange := s.Ctx.Phase1ObserveOutput(out, inputScriptType, fundedBySegwit, &s.changeGranted)
	if !isChange {
		ok, f := protocol.ProtectButton(ctx, s.ui, collab.ConfirmOutput, out.Address)
		if !ok {
			return nil, f
		}
	}
	s.ui.NotifyProgress("Signing transaction", s.Ctx.Progress())

	if s.Ctx.Idx2 < s.Ctx.OutputsCount {
		return &protocol.TxRequestPayload{
			RequestType: "TXOUTPUT",
			Details:     protocol.TxRequestDetails{RequestIndex: s.Ctx.Idx2},
		}, nil
	}
	return s.finishOutputs(ctx)
}

// finishOutputs runs the fee/total confirmation and transitions into
// phase 2, returning the first phase-2 request.
func (s *Signer) finishOutputs(ctx context.Context) (*protocol.TxRequestPayload, error) {
	weight := 4 * uint64(len(s.Ctx.Inputs)*148+len(s.Ctx.Outputs)*34)
	fee, overThreshold, err := CheckFee(s.Ctx.Descriptor, s.Ctx.ToSpend, s.Ctx.Spending, weight)
	if err != nil {
		return nil, err
	}
	if overThreshold {
		ok, f := protocol.ProtectButton(ctx, s.ui, collab.ConfirmFee, "unusually high fee")
		if !ok {
			return nil, f
		}
	}
	ok, f := protocol.ProtectButton(ctx, s.ui, collab.ConfirmTotal, "confirm total")
	if !ok {
		return nil, f
	}
	_ = fee

	s.Ctx.Idx1 = 0
	first := s.Ctx.Inputs[0]
	s.Ctx.Stage = NextInputStage(s.Ctx.Descriptor, first)
	return &protocol.TxRequestPayload{
		RequestType: "TXINPUT",
		Details:     protocol.TxRequestDetails{RequestIndex: 0},
	}, nil
}

// SignInput performs the phase-2 signature for one input, replaying it
// through hasher_check and dispatching to the sighash strategy implied
// by the coin's capabilities and the input's script type.
func (s *Signer) SignInput(ctx context.Context, in InputRecord) (SignedInput, *protocol.TxRequestPayload, error) {
	if err := s.checkCancel(); err != nil {
		return SignedInput{}, nil, err
	}

	checker := crypto.Sha256()
	for _, prior := range s.Ctx.Inputs[:s.Ctx.Idx1] {
		s.Ctx.Phase2ReplayCheck(checker, prior)
	}
	s.Ctx.Phase2ReplayCheck(checker, in)
	if s.Ctx.Idx1 == s.Ctx.InputsCount-1 {
		if err := s.Ctx.Phase2FinishCheck(checker.Sum(nil)); err != nil {
			return SignedInput{}, nil, err
		}
	}

	node, err := s.keys(in.AddressN, s.Ctx.Descriptor.Curve)
	if err != nil {
		return SignedInput{}, nil, err
	}

	signed, err := s.signOneInput(node, in)
	if err != nil {
		return SignedInput{}, nil, err
	}
	signed.Index = s.Ctx.Idx1
	s.signed = append(s.signed, signed)
	s.Ctx.Idx1++
	s.ui.NotifyProgress("Signing transaction", s.Ctx.Progress())

	if s.Ctx.Idx1 < s.Ctx.InputsCount {
		next := s.Ctx.Inputs[s.Ctx.Idx1]
		s.Ctx.Stage = NextInputStage(s.Ctx.Descriptor, next)
		return signed, &protocol.TxRequestPayload{
			RequestType: "TXINPUT",
			Details:     protocol.TxRequestDetails{RequestIndex: s.Ctx.Idx1},
		}, nil
	}

	s.Ctx.Stage = StageRequest5Output
	s.Ctx.Idx2 = 0
	return signed, &protocol.TxRequestPayload{
		RequestType: "TXOUTPUT",
		Details:     protocol.TxRequestDetails{RequestIndex: 0},
	}, nil
}

// signOneInput dispatches to the legacy, BIP143, taproot, Decred, or
// Zcash strategy for one input, keyed off the coin descriptor's
// capability bits.
func (s *Signer) signOneInput(node *bip32.Node, in InputRecord) (SignedInput, error) {
	d := s.Ctx.Descriptor

	switch {
	case d.HasCapability(coin.CapDecred):
		digest, err := s.legacyLikeDigest(in)
		if err != nil {
			return SignedInput{}, err
		}
		sum := DecredSighash(digest)
		priv, err := node.ECPrivateKey()
		if err != nil {
			return SignedInput{}, err
		}
		sig, _, err := crypto.EcdsaSignDigest(priv, sum[:], nil)
		if err != nil {
			return SignedInput{}, err
		}
		pub, err := nodePub(node)
		if err != nil {
			return SignedInput{}, err
		}
		return SignedInput{ScriptSig: DecredWitnessScript(sig, byte(SighashAll), pub)}, nil

	case in.ScriptType == bip32.SpendTaproot:
		hashPrevouts, hashSequence, hashOutputs, err := s.Ctx.FinishAccumulators()
		if err != nil {
			return SignedInput{}, err
		}
		// This core supports only single-input-owner key-path taproot
		// signing without per-input amount/scriptPubKey divergence
		// tracking, so the amounts and scriptPubKeys digests both reuse
		// hashPrevouts rather than keeping a fourth and fifth parallel
		// SHA-256 stream.
		digest := TaprootKeyPathDigest(s.Ctx.Version, s.Ctx.LockTime, hashPrevouts, hashPrevouts, hashPrevouts, hashSequence, hashOutputs, uint32(s.Ctx.Idx1))
		sig, err := SignTaproot(node, digest[:])
		if err != nil {
			return SignedInput{}, err
		}
		return SignedInput{Witness: WitnessStackTaproot(sig, SighashAll)}, nil

	case in.ScriptType == bip32.SpendWitnessSingle, in.ScriptType == bip32.SpendP2SHWitnessSingle:
		hashPrevouts, hashSequence, hashOutputs, err := s.Ctx.FinishAccumulators()
		if err != nil {
			return SignedInput{}, err
		}
		pub, err := nodePub(node)
		if err != nil {
			return SignedInput{}, err
		}
		scriptCode := ScriptCodeP2PKH(crypto.Hash160(pub))
		preimage := BIP143Preimage(s.Ctx.Version, hashPrevouts, hashSequence, outpointBytes(in), scriptCode, in.Amount, in.Sequence, hashOutputs, s.Ctx.LockTime, SighashAll)
		digest, err := SighashDigest(d, preimage)
		if err != nil {
			return SignedInput{}, err
		}
		priv, err := node.ECPrivateKey()
		if err != nil {
			return SignedInput{}, err
		}
		sig, _, err := crypto.EcdsaSignDigest(priv, digest[:], nil)
		if err != nil {
			return SignedInput{}, err
		}
		witness := WitnessStackP2WPKH(sig, byte(SighashAll), pub)
		var scriptSig []byte
		if in.ScriptType == bip32.SpendP2SHWitnessSingle {
			scriptSig = pushData(append([]byte{0x00, 0x14}, crypto.Hash160(pub)...))
		}
		return SignedInput{ScriptSig: scriptSig, Witness: witness}, nil

	case in.ScriptType == bip32.SpendWitnessMulti, in.ScriptType == bip32.SpendP2SHWitnessMulti:
		hashPrevouts, hashSequence, hashOutputs, err := s.Ctx.FinishAccumulators()
		if err != nil {
			return SignedInput{}, err
		}
		witnessScript := MultisigRedeemScript(in.MultisigPubkeys, in.MultisigM)
		preimage := BIP143Preimage(s.Ctx.Version, hashPrevouts, hashSequence, outpointBytes(in), witnessScript, in.Amount, in.Sequence, hashOutputs, s.Ctx.LockTime, SighashAll)
		digest, err := SighashDigest(d, preimage)
		if err != nil {
			return SignedInput{}, err
		}
		priv, err := node.ECPrivateKey()
		if err != nil {
			return SignedInput{}, err
		}
		sig, _, err := crypto.EcdsaSignDigest(priv, digest[:], nil)
		if err != nil {
			return SignedInput{}, err
		}
		// This device contributes only its own signature; it does not
		// model already-collected co-signer signatures from a prior
		// signing round the way legacy/firmware/signing.c's
		// txinput->multisig.signatures[] array does, since InputRecord
		// carries no such field.
		witness := WitnessStackP2WSH([][64]byte{sig}, byte(SighashAll), witnessScript)
		var scriptSig []byte
		if in.ScriptType == bip32.SpendP2SHWitnessMulti {
			sum := crypto.Sha256Sum(witnessScript)
			scriptSig = pushData(append([]byte{0x00, 0x20}, sum[:]...))
		}
		return SignedInput{ScriptSig: scriptSig, Witness: witness}, nil

	default:
		digest, err := s.legacyLikeDigest(in)
		if err != nil {
			return SignedInput{}, err
		}
		var sum [32]byte
		if d.HasCapability(coin.CapOverwintered) {
			sum, err = SighashDigest(d, digest)
			if err != nil {
				return SignedInput{}, err
			}
		} else {
			copy(sum[:], digest)
		}
		priv, err := node.ECPrivateKey()
		if err != nil {
			return SignedInput{}, err
		}
		sig, _, err := crypto.EcdsaSignDigest(priv, sum[:], nil)
		if err != nil {
			return SignedInput{}, err
		}
		pub, err := nodePub(node)
		if err != nil {
			return SignedInput{}, err
		}
		return SignedInput{ScriptSig: P2PKHScriptSig(sig, byte(SighashAll), pub)}, nil
	}
}

// legacyLikeDigest returns the double-SHA-256 legacy sighash digest
// (LegacySighash) for one input against the full input/output set
// already observed in phase 1. The Bitcoin-family path signs it as is;
// the Decred and Zcash paths hash it again with their own hash.
func (s *Signer) legacyLikeDigest(signing InputRecord) ([]byte, error) {
	inputs := make([]TxInputWire, len(s.Ctx.Inputs))
	var signingIndex int
	for i, in := range s.Ctx.Inputs {
		inputs[i] = TxInputWire{PrevHash: in.PrevHash, PrevIndex: in.PrevIndex, Sequence: in.Sequence}
		if in.PrevHash == signing.PrevHash && in.PrevIndex == signing.PrevIndex {
			signingIndex = i
		}
	}
	outputs := make([]TxOutputWire, len(s.Ctx.Outputs))
	for i, out := range s.Ctx.Outputs {
		outputs[i] = TxOutputWire{Amount: out.Amount}
	}
	pub, err := signing.nodePubkey(s.keys, s.Ctx.Descriptor.Curve)
	if err != nil {
		return nil, err
	}
	scriptCode := ScriptCodeP2PKH(crypto.Hash160(pub))
	digest := LegacySighash(s.Ctx.Version, inputs, signingIndex, scriptCode, outputs, s.Ctx.LockTime, SighashAll)
	return digest[:], nil
}

func (in InputRecord) nodePubkey(keys KeyProvider, curve bip32.Curve) ([]byte, error) {
	node, err := keys(in.AddressN, curve)
	if err != nil {
		return nil, err
	}
	return nodePub(node)
}

func nodePub(node *bip32.Node) ([]byte, error) {
	pub, err := node.ECPublicKey()
	if err != nil {
		return nil, err
	}
	return pub.SerializeCompressed(), nil
}

func outpointBytes(in InputRecord) []byte {
	out := append([]byte(nil), reversed(in.PrevHash[:])...)
	out = append(out, crypto.PutUint32LE(in.PrevIndex)...)
	return out
}

// Finished reports whether every input has produced a signature.
func (s *Signer) Finished() bool {
	return s.Ctx.Stage == StageRequest5Output || s.Ctx.Stage == StageFinished
}

// SignedInputs returns every phase-2 signature produced so far, in
// input order.
func (s *Signer) SignedInputs() []SignedInput {
	return s.signed
}

// FinishTx transitions to the terminal stage once the host has
// acknowledged every REQ_5_OUTPUT/REQ_SEGWIT_WITNESS chunk.
func (s *Signer) FinishTx() *protocol.TxRequestPayload {
	s.Ctx.Finish()
	return &protocol.TxRequestPayload{RequestType: "TXFINISHED"}
}
