package protocol

import (
	"context"
	"time"

	"github.com/arcsign/signcore/internal/collab"
)

// Handler processes one decoded Envelope and returns either a reply
// payload (to be fragmented and sent) or an error, which the dispatcher
// converts to a Failure.
type Handler func(ctx context.Context, env Envelope) (replyID MessageID, replyPayload []byte, err error)

// ActiveSigner names the signer bound to the single signer slot. The
// Dispatcher holds one of these, and BindSigner refuses a second
// SignTx/SignEthereumTx at run time while one is already bound.
type ActiveSigner int

const (
	SignerIdle ActiveSigner = iota
	SignerUtxo
	SignerEthereum
)

// Dispatcher wires together the bus, the UI collaborator, and the
// registered handlers, enforcing auto-lock checks and converting every
// handler error into a Failure with a UI reset.
type Dispatcher struct {
	bus      *Bus
	ui       collab.UI
	handlers map[MessageID]Handler
	active   ActiveSigner

	// AutoLockCheck is called before every dispatch; a real deployment
	// wires this to Session.CheckAutoLock.
	AutoLockCheck func(now time.Time)
}

// NewDispatcher builds a Dispatcher over bus and ui.
func NewDispatcher(bus *Bus, ui collab.UI) *Dispatcher {
	return &Dispatcher{bus: bus, ui: ui, handlers: make(map[MessageID]Handler)}
}

// Register binds a handler to a message id.
func (d *Dispatcher) Register(id MessageID, h Handler) {
	d.handlers[id] = h
}

// Active reports which signer, if any, is currently bound.
func (d *Dispatcher) Active() ActiveSigner { return d.active }

// BindSigner claims the single signer slot, returning UnexpectedMessage
// if one is already bound.
func (d *Dispatcher) BindSigner(which ActiveSigner) *Failure {
	if d.active != SignerIdle {
		return NewFailure(FailureUnexpectedMessage, "a signer is already in flight")
	}
	d.active = which
	return nil
}

// ReleaseSigner frees the signer slot. Dispatch calls it on Initialize
// and when a handler fails with ProcessError; the handlers call it when
// a signing flow finishes and when a TxAck or EthereumTxAck step fails,
// including a user decline or host cancellation.
func (d *Dispatcher) ReleaseSigner() { d.active = SignerIdle }

// Dispatch runs one full-parser cycle: checks auto-lock, looks up a
// handler for env.ID, runs it, and on error converts the result to a
// Failure reply while resetting the UI to home.
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope, now time.Time) (replyID MessageID, replyPayload []byte) {
	if d.AutoLockCheck != nil {
		d.AutoLockCheck(now)
	}

	if env.ID == MsgInitialize {
		d.ReleaseSigner()
	}

	h, ok := d.handlers[env.ID]
	if !ok {
		f := NewFailure(FailureUnexpectedMessage, "no handler registered for this message")
		d.ui.ShowHome()
		return MsgFailure, encodeFailure(f)
	}

	id, payload, err := h(ctx, env)
	if err != nil {
		f := AsFailure(err)
		if f.Kind == FailureProcessError {
			d.ReleaseSigner()
		}
		d.ui.ShowHome()
		return MsgFailure, encodeFailure(f)
	}
	return id, payload
}

// encodeFailure renders a Failure's kind and message as a minimal wire
// payload: a kind byte followed by the raw message bytes. The full wire
// codec shared with the rest of the catalogue is out of scope here, so
// Failure gets this one hand-rolled two-field encoding instead.
func encodeFailure(f *Failure) []byte {
	kind := byte(f.Kind)
	msg := []byte(f.Message)
	out := make([]byte, 0, 1+len(msg))
	out = append(out, kind)
	out = append(out, msg...)
	return out
}
