package protocol

import (
	"context"

	"github.com/arcsign/signcore/internal/collab"
)

// ProtectButton is the firmware's protectButton suspension point,
// re-expressed as a cooperative single-threaded wait: it returns
// ActionCancelled if ctx is already done, otherwise asks ui to render a
// confirmation, passes ctx to AskConfirm, and returns the user's answer.
// It does not read the bus, so a Cancel or Initialize that arrives on
// the bus during the wait does not end it; only the UI's answer (or
// whatever the UI does with ctx) does.
func ProtectButton(ctx context.Context, ui collab.UI, kind collab.ConfirmKind, text string) (bool, *Failure) {
	if ctx.Err() != nil {
		return false, NewFailure(FailureActionCancelled, "aborted before confirmation")
	}
	ok := ui.AskConfirm(ctx, kind, text)
	if !ok {
		return false, NewFailure(FailureActionCancelled, "user declined")
	}
	return true, nil
}

// ProtectPin is the protectPin suspension point: it asks the UI
// collaborator for the PIN via PromptPIN. It generates no PinMatrix,
// sends no PinMatrixRequest and does not wait for a PinMatrixAck.
// Returns ActionCancelled if ctx is already done, and PinCancelled if
// the user backs out from the device itself.
func ProtectPin(ctx context.Context, ui collab.UI) (collab.PinEntry, *Failure) {
	if ctx.Err() != nil {
		return collab.PinEntry{}, NewFailure(FailureActionCancelled, "aborted before pin entry")
	}
	entry, ok := ui.PromptPIN(ctx)
	if !ok {
		return collab.PinEntry{}, NewFailure(FailurePinCancelled, "pin entry cancelled")
	}
	return entry, nil
}

// WatchCancel is the bus-side half of a suspension point: a handler
// that is otherwise blocked in a signer loop calls this non-blockingly
// between chunks to notice a Cancel or Initialize queued by the tiny
// parser.
func WatchCancel(bus *Bus) (cancelled, reinitialized bool) {
	env, pending := bus.drainNonBlocking()
	if !pending {
		return false, false
	}
	switch env.ID {
	case MsgCancel:
		return true, false
	case MsgInitialize:
		return false, true
	default:
		return false, false
	}
}

// drainNonBlocking returns the next pending message without blocking,
// or (zero, false) if the bus is empty right now.
func (b *Bus) drainNonBlocking() (Envelope, bool) {
	select {
	case env := <-b.messages:
		return env, true
	default:
		return Envelope{}, false
	}
}
