// Package handlers wires the protocol Dispatcher's message catalogue to
// the session, UTXO, and Ethereum engines: it is the glue between C4's
// typed Handler slots and the signing flows C5/C6 actually drive.
package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/coin"
	"github.com/arcsign/signcore/internal/collab"
	"github.com/arcsign/signcore/internal/ethereum"
	"github.com/arcsign/signcore/internal/protocol"
	"github.com/arcsign/signcore/internal/session"
	"github.com/arcsign/signcore/internal/utxo"
)

// Handlers holds every piece of state one signing flow needs across the
// request/ack exchanges a single MsgSignTx or MsgSignEthereumTx opens.
// There is exactly one of these per device, mirroring Session.
type Handlers struct {
	Session *session.Session
	Bus     *protocol.Bus
	UI      collab.UI

	d *protocol.Dispatcher

	utxoSigner          *utxo.Signer
	utxoInputScriptType bip32.ScriptType
	utxoFundedBySegwit  uint64

	ethSigner     *ethereum.Signer
	ethTo         [20]byte
	ethValue      []byte
	ethDataPrefix []byte
}

// New builds a Handlers bound to sess/bus/ui. Register still needs to be
// called once the Dispatcher exists, since BindSigner/ReleaseSigner live
// on the Dispatcher rather than here.
func New(sess *session.Session, bus *protocol.Bus, ui collab.UI) *Handlers {
	return &Handlers{Session: sess, Bus: bus, UI: ui}
}

// Register binds every handler this package implements onto d and keeps
// a reference to d for the signer-slot bookkeeping SignTx/SignEthereumTx
// need.
func (h *Handlers) Register(d *protocol.Dispatcher) {
	h.d = d
	d.Register(protocol.MsgInitialize, h.handleInitialize)
	d.Register(protocol.MsgGetAddress, h.handleGetAddress)
	d.Register(protocol.MsgSignTx, h.bindUtxoSigner(h.handleSignTx))
	d.Register(protocol.MsgTxAck, h.handleTxAck)
	d.Register(protocol.MsgSignEthereumTx, h.bindEthSigner(h.handleSignEthereumTx))
	d.Register(protocol.MsgEthereumTxAck, h.handleEthereumTxAck)
}

func (h *Handlers) bindUtxoSigner(next protocol.Handler) protocol.Handler {
	return func(ctx context.Context, env protocol.Envelope) (protocol.MessageID, []byte, error) {
		if f := h.d.BindSigner(protocol.SignerUtxo); f != nil {
			return 0, nil, f
		}
		return next(ctx, env)
	}
}

func (h *Handlers) bindEthSigner(next protocol.Handler) protocol.Handler {
	return func(ctx context.Context, env protocol.Envelope) (protocol.MessageID, []byte, error) {
		if f := h.d.BindSigner(protocol.SignerEthereum); f != nil {
			return 0, nil, f
		}
		return next(ctx, env)
	}
}

func (h *Handlers) releaseUtxoSigner() {
	h.utxoSigner = nil
	h.d.ReleaseSigner()
}

func (h *Handlers) releaseEthSigner() {
	h.ethSigner = nil
	h.d.ReleaseSigner()
}

// encodeReply marshals v as the wire payload for reply id; every
// payload this package answers with is one of the typed structs in
// protocol/messages.go, so the only failure mode is a caller bug.
func encodeReply(id protocol.MessageID, v interface{}) (protocol.MessageID, []byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, nil, err
	}
	return id, b, nil
}

// handleInitialize answers Initialize with the device's current feature
// set. Dispatch already releases any in-flight signer before calling
// this handler; clear this package's own signer state to match.
func (h *Handlers) handleInitialize(ctx context.Context, env protocol.Envelope) (protocol.MessageID, []byte, error) {
	h.utxoSigner = nil
	h.ethSigner = nil

	cfg := h.Session.Config()
	f := &protocol.Features{
		Initialized:          h.Session.Initialized(),
		PinProtection:        h.Session.PinProtection(),
		PassphraseProtection: h.Session.PassphraseProtection(),
		SafetyChecks:         cfg.SafetyChecks.String(),
		AutoLockDelayMs:      uint32(cfg.AutoLockDelay.Milliseconds()),
	}
	return encodeReply(protocol.MsgFeatures, f)
}

// handleGetAddress derives and encodes the address for one coin/path/
// script type, optionally confirming it on-device first.
func (h *Handlers) handleGetAddress(ctx context.Context, env protocol.Envelope) (protocol.MessageID, []byte, error) {
	if err := h.Session.RequireUnlocked(); err != nil {
		return 0, nil, err
	}
	var p protocol.GetAddressPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return 0, nil, err
	}
	d, err := coin.ByName(p.Coin)
	if err != nil {
		return 0, nil, err
	}
	node, err := h.Session.Derive(p.Path, d.Curve)
	if err != nil {
		return 0, nil, err
	}
	addr, err := bip32.EncodeAddress(bip32.ScriptType(p.ScriptType), d.Addr, node.PublicKey(), nil)
	if err != nil {
		return 0, nil, err
	}
	if p.ShowOnUI {
		ok, f := protocol.ProtectButton(ctx, h.UI, collab.ConfirmAddress, addr)
		if !ok {
			return 0, nil, f
		}
	}
	return encodeReply(protocol.MsgAddress, &protocol.AddressPayload{Address: addr})
}

// handleSignTx opens a UTXO signing flow and emits the first TXINPUT
// request.
func (h *Handlers) handleSignTx(ctx context.Context, env protocol.Envelope) (protocol.MessageID, []byte, error) {
	if err := h.Session.RequireUnlocked(); err != nil {
		return 0, nil, err
	}
	var p protocol.SignTxPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return 0, nil, err
	}
	d, err := coin.ByName(p.Coin)
	if err != nil {
		return 0, nil, err
	}
	root, err := h.Session.RootNode(d.Curve)
	if err != nil {
		return 0, nil, err
	}

	sc := utxo.NewSigningContext(d, root, int(p.InputsCount), int(p.OutputsCount), p.LockTime)
	sc.Version = p.Version
	sc.Expiry = p.Expiry
	sc.BranchID = p.BranchID

	h.utxoSigner = utxo.NewSigner(sc, h.UI, h.Bus, h.Session.Derive)
	h.utxoFundedBySegwit = 0

	req := &protocol.TxRequestPayload{
		RequestType: "TXINPUT",
		Details:     protocol.TxRequestDetails{RequestIndex: 0},
	}
	return encodeReply(protocol.MsgTxRequest, req)
}

// handleTxAck drives one step of the in-flight UTXO signer, dispatching
// on the stage its last TxRequest left behind.
func (h *Handlers) handleTxAck(ctx context.Context, env protocol.Envelope) (id protocol.MessageID, payload []byte, err error) {
	defer func() {
		if err != nil && h.utxoSigner != nil {
			h.utxoSigner.Ctx.Scrub()
			h.releaseUtxoSigner()
		}
	}()

	if h.utxoSigner == nil {
		return 0, nil, protocol.NewFailure(protocol.FailureUnexpectedMessage, "no UTXO signing flow in progress")
	}
	var ack protocol.TxAckPayload
	if unmarshalErr := json.Unmarshal(env.Payload, &ack); unmarshalErr != nil {
		return 0, nil, unmarshalErr
	}
	sc := h.utxoSigner.Ctx

	switch sc.Stage {
	case utxo.StageRequest1Input:
		if ack.Input == nil {
			return 0, nil, errors.New("handlers: TXINPUT request answered without input data")
		}
		in := inputFromWire(*ack.Input)
		if isSegwitScriptType(in.ScriptType) {
			h.utxoFundedBySegwit += in.Amount
		}
		req, observeErr := h.utxoSigner.ObserveInput(ctx, in)
		if observeErr != nil {
			return 0, nil, observeErr
		}
		if sc.Stage == utxo.StageRequest3Output {
			h.utxoInputScriptType = sc.Inputs[0].ScriptType
		}
		return encodeReply(protocol.MsgTxRequest, req)

	case utxo.StageRequest3Output:
		if ack.Output == nil {
			return 0, nil, errors.New("handlers: TXOUTPUT request answered without output data")
		}
		out := outputFromWire(*ack.Output)
		req, observeErr := h.utxoSigner.ObserveOutput(ctx, out, h.utxoInputScriptType, h.utxoFundedBySegwit)
		if observeErr != nil {
			return 0, nil, observeErr
		}
		return encodeReply(protocol.MsgTxRequest, req)

	case utxo.StageRequest4Input, utxo.StageRequestSegwitInput, utxo.StageRequestDecredWitness:
		if ack.Input == nil {
			return 0, nil, errors.New("handlers: phase-2 TXINPUT request answered without input data")
		}
		in := inputFromWire(*ack.Input)
		_, req, signErr := h.utxoSigner.SignInput(ctx, in)
		if signErr != nil {
			return 0, nil, signErr
		}
		return encodeReply(protocol.MsgTxRequest, req)

	case utxo.StageRequest5Output:
		finishReq := h.utxoSigner.FinishTx()
		h.utxoSigner.Ctx.Scrub()
		h.releaseUtxoSigner()
		return encodeReply(protocol.MsgTxRequest, finishReq)

	default:
		return 0, nil, errors.New("handlers: UTXO signer left in an unexpected stage")
	}
}

// isSegwitScriptType reports whether a script type's input funds count
// toward the segwit-change rule's funding bound.
func isSegwitScriptType(st bip32.ScriptType) bool {
	switch st {
	case bip32.SpendWitnessSingle, bip32.SpendWitnessMulti,
		bip32.SpendP2SHWitnessSingle, bip32.SpendP2SHWitnessMulti,
		bip32.SpendTaproot:
		return true
	}
	return false
}

func inputFromWire(w protocol.TxAckInputPayload) utxo.InputRecord {
	return utxo.InputRecord{
		PrevHash:        w.PrevHash,
		PrevIndex:       w.PrevIndex,
		Sequence:        w.Sequence,
		AddressN:        w.AddressN,
		ScriptType:      bip32.ScriptType(w.ScriptType),
		Amount:          w.Amount,
		AmountKnown:     w.AmountKnown,
		External:        w.External,
		ScriptPubKey:    w.ScriptPubKey,
		OwnershipProof:  w.OwnershipProof,
		MultisigPubkeys: w.MultisigPubkeys,
		MultisigM:       w.MultisigM,
	}
}

func outputFromWire(w protocol.TxAckOutputPayload) utxo.OutputRecord {
	return utxo.OutputRecord{
		Amount:     w.Amount,
		Address:    w.Address,
		AddressN:   w.AddressN,
		ScriptType: bip32.ScriptType(w.ScriptType),
	}
}

// handleSignEthereumTx opens an Ethereum signing flow, feeding whatever
// initial data chunk the request already carries.
func (h *Handlers) handleSignEthereumTx(ctx context.Context, env protocol.Envelope) (protocol.MessageID, []byte, error) {
	if err := h.Session.RequireUnlocked(); err != nil {
		return 0, nil, err
	}
	var p protocol.SignEthereumTxPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return 0, nil, err
	}
	to, err := ethereum.ParseAddress(p.To)
	if err != nil {
		return 0, nil, err
	}

	accessList := make([]ethereum.AccessListItem, len(p.AccessList))
	for i, item := range p.AccessList {
		accessList[i] = ethereum.AccessListItem{Address: item.Address, StorageKeys: item.StorageKeys}
	}

	sc := ethereum.OpenSigningContext(ethereum.OpenSigningContextParams{
		AddressN:    p.AddressN,
		ChainID:     p.ChainID,
		EIP1559:     p.EIP1559,
		Nonce:       p.Nonce,
		GasPrice:    p.GasPrice,
		GasLimit:    p.GasLimit,
		MaxGasFee:   p.MaxGasFee,
		MaxPriority: p.MaxPriority,
		To:          to,
		Value:       p.Value,
		DataLength:  p.DataLength,
		AccessList:  accessList,
	})

	keys := func(path []uint32) (*bip32.Node, error) { return h.Session.Derive(path, ethereum.Curve()) }
	h.ethSigner = ethereum.NewSigner(sc, h.UI, h.Bus, keys)
	h.ethTo = to
	h.ethValue = p.Value
	h.ethDataPrefix = append([]byte(nil), p.DataInitial...)

	remaining, err := h.ethSigner.FeedData(p.DataInitial)
	if err != nil {
		h.releaseEthSigner()
		return 0, nil, err
	}
	if remaining == 0 {
		return h.finishEthereum(ctx)
	}
	return encodeReply(protocol.MsgEthereumTxRequest, &protocol.EthereumTxRequestPayload{DataLength: remaining})
}

// handleEthereumTxAck feeds the next streamed data chunk into the
// in-flight Ethereum signer, finishing once the declared length is met.
func (h *Handlers) handleEthereumTxAck(ctx context.Context, env protocol.Envelope) (id protocol.MessageID, payload []byte, err error) {
	defer func() {
		if err != nil && h.ethSigner != nil {
			h.releaseEthSigner()
		}
	}()

	if h.ethSigner == nil {
		return 0, nil, protocol.NewFailure(protocol.FailureUnexpectedMessage, "no Ethereum signing flow in progress")
	}
	var ack protocol.EthereumTxAckPayload
	if unmarshalErr := json.Unmarshal(env.Payload, &ack); unmarshalErr != nil {
		return 0, nil, unmarshalErr
	}

	// ethDataPrefix only needs enough of the leading data bytes to let
	// ERC-20 transfer detection run in Finish; cap it well past the
	// 4-byte selector plus two 32-byte arguments it actually inspects.
	if len(h.ethDataPrefix) < 4+32+32 {
		h.ethDataPrefix = append(h.ethDataPrefix, ack.DataChunk...)
	}

	remaining, feedErr := h.ethSigner.FeedData(ack.DataChunk)
	if feedErr != nil {
		return 0, nil, feedErr
	}
	if remaining == 0 {
		return h.finishEthereum(ctx)
	}
	return encodeReply(protocol.MsgEthereumTxRequest, &protocol.EthereumTxRequestPayload{DataLength: remaining})
}

func (h *Handlers) finishEthereum(ctx context.Context) (protocol.MessageID, []byte, error) {
	sig, err := h.ethSigner.Finish(ctx, h.ethTo, h.ethValue, h.ethDataPrefix, "confirm transaction")
	h.releaseEthSigner()
	if err != nil {
		return 0, nil, err
	}
	return encodeReply(protocol.MsgEthereumTxRequest, &protocol.EthereumTxRequestPayload{Signature: sig})
}
