package protocol

import "context"

// A naive implementation shares one decode buffer between a "full"
// parser (used when idle) and a "tiny" interrupt parser (used while a
// handler is suspended waiting on user input or the next TxAck),
// switching between them with raw pointer/flag juggling. This is
// re-expressed here as one channel fed by one decode loop: every fully
// reassembled Envelope is published to a single
// channel, and a suspension point selectively drains only the
// interrupt subset from it rather than running a second decoder.

// Bus is the channel the transport publishes every decoded message to.
// The main loop (full parser) drains every message; a handler suspended
// at a protectButton/protectPin/protectTxAck point instead calls
// WaitInterrupt, which only returns messages in the tiny parser's
// enumerated set and silently drops anything else. An oversize message
// never reaches the Bus: Reassembler.Feed rejects it with
// ErrMessageTooLarge, and nothing here turns that into a DataError
// reply.
type Bus struct {
	messages chan Envelope
}

// NewBus creates a Bus with the given buffer depth.
func NewBus(depth int) *Bus {
	return &Bus{messages: make(chan Envelope, depth)}
}

// Publish delivers a fully reassembled message onto the bus. Called by
// the transport's main decode loop.
func (b *Bus) Publish(env Envelope) {
	b.messages <- env
}

// Next blocks for the next message, with no filtering — the "full
// parser" path used when the main loop is idle.
func (b *Bus) Next(ctx context.Context) (Envelope, error) {
	select {
	case env := <-b.messages:
		return env, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

// SuspendResult is what a suspension point receives from the tiny
// parser: either the interrupt message that ended the suspension, or an
// indication that cancellation was observed.
type SuspendResult struct {
	Message         Envelope
	AbortedByCancel bool
	AbortedByInit   bool
}

// WaitInterrupt blocks until a message in the tiny parser's enumerated
// interrupt set arrives, silently discarding anything else. Cancel and Initialize are reported distinctly so a suspension
// point can decide whether to emit ActionCancelled or fully reset.
func (b *Bus) WaitInterrupt(ctx context.Context) (SuspendResult, error) {
	for {
		select {
		case env := <-b.messages:
			if !IsInterrupt(env.ID) {
				continue
			}
			switch env.ID {
			case MsgCancel:
				return SuspendResult{Message: env, AbortedByCancel: true}, nil
			case MsgInitialize:
				return SuspendResult{Message: env, AbortedByInit: true}, nil
			default:
				return SuspendResult{Message: env}, nil
			}
		case <-ctx.Done():
			return SuspendResult{}, ctx.Err()
		}
	}
}
