package protocol

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/signcore/internal/collab"
)

func TestReassemblerSinglePacketMessage(t *testing.T) {
	r := NewReassembler(64, 1024)
	packets := Fragment(MsgGetAddress, []byte("short payload"), 64)
	require.Len(t, packets, 1)

	env, done, err := r.Feed(packets[0])
	require.NoError(t, err)
	require.True(t, done)
	require.Equal(t, MsgGetAddress, env.ID)
	require.Equal(t, []byte("short payload"), env.Payload)
}

func TestReassemblerMultiPacketMessage(t *testing.T) {
	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = byte(i)
	}
	packets := Fragment(MsgSignTx, payload, 64)
	require.Greater(t, len(packets), 1)

	r := NewReassembler(64, 1024)
	var env Envelope
	var done bool
	var err error
	for _, p := range packets {
		env, done, err = r.Feed(p)
		require.NoError(t, err)
	}
	require.True(t, done)
	require.Equal(t, MsgSignTx, env.ID)
	require.Equal(t, payload, env.Payload)
}

func TestReassemblerRejectsBadFirstPacketMagic(t *testing.T) {
	r := NewReassembler(64, 1024)
	bad := make([]byte, 64)
	bad[0] = 'x'
	_, _, err := r.Feed(bad)
	require.ErrorIs(t, err, ErrBadFirstPacket)
}

func TestReassemblerRejectsOversizeMessage(t *testing.T) {
	r := NewReassembler(64, 16)
	packets := Fragment(MsgSignTx, make([]byte, 100), 64)
	_, _, err := r.Feed(packets[0])
	require.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestReassemblerResetDiscardsPartialMessage(t *testing.T) {
	r := NewReassembler(64, 1024)
	packets := Fragment(MsgSignTx, make([]byte, 200), 64)
	_, done, err := r.Feed(packets[0])
	require.NoError(t, err)
	require.False(t, done)

	r.Reset()
	_, _, err = r.Feed(packets[1])
	require.ErrorIs(t, err, ErrBadFirstPacket, "after Reset, a continuation packet is no longer valid as the next input")
}

func TestBusNextDeliversPublishedMessage(t *testing.T) {
	bus := NewBus(1)
	bus.Publish(Envelope{ID: MsgButtonAck})

	env, err := bus.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, MsgButtonAck, env.ID)
}

func TestBusNextRespectsContextCancellation(t *testing.T) {
	bus := NewBus(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bus.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBusWaitInterruptFiltersNonInterruptMessages(t *testing.T) {
	bus := NewBus(4)
	bus.Publish(Envelope{ID: MsgButtonRequest}) // not in the interrupt set
	bus.Publish(Envelope{ID: MsgButtonAck})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := bus.WaitInterrupt(ctx)
	require.NoError(t, err)
	require.Equal(t, MsgButtonAck, res.Message.ID)
	require.False(t, res.AbortedByCancel)
	require.False(t, res.AbortedByInit)
}

func TestBusWaitInterruptReportsCancelAndInit(t *testing.T) {
	bus := NewBus(2)
	bus.Publish(Envelope{ID: MsgCancel})
	ctx := context.Background()
	res, err := bus.WaitInterrupt(ctx)
	require.NoError(t, err)
	require.True(t, res.AbortedByCancel)

	bus.Publish(Envelope{ID: MsgInitialize})
	res, err = bus.WaitInterrupt(ctx)
	require.NoError(t, err)
	require.True(t, res.AbortedByInit)
}

func TestWatchCancelNonBlocking(t *testing.T) {
	bus := NewBus(1)
	cancelled, reinit := WatchCancel(bus)
	require.False(t, cancelled)
	require.False(t, reinit)

	bus.Publish(Envelope{ID: MsgCancel})
	cancelled, reinit = WatchCancel(bus)
	require.True(t, cancelled)
	require.False(t, reinit)
}

func TestProtectButtonConfirmAndDecline(t *testing.T) {
	ok, f := ProtectButton(context.Background(), collab.NewScriptedUI(true), collab.ConfirmOutput, "pay 1 BTC")
	require.True(t, ok)
	require.Nil(t, f)

	ok, f = ProtectButton(context.Background(), collab.NewScriptedUI(false), collab.ConfirmOutput, "pay 1 BTC")
	require.False(t, ok)
	require.Equal(t, FailureActionCancelled, f.Kind)
}

func TestProtectButtonAbortsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, f := ProtectButton(ctx, collab.NewScriptedUI(true), collab.ConfirmOutput, "text")
	require.False(t, ok)
	require.Equal(t, FailureActionCancelled, f.Kind)
}

func TestProtectPinReturnsEntryOrCancellation(t *testing.T) {
	ui := collab.NewScriptedUI()
	ui.QueuePIN("4321")
	entry, f := ProtectPin(context.Background(), ui)
	require.Nil(t, f)
	require.Equal(t, "4321", entry.Digits)

	ui2 := collab.NewScriptedUI()
	ui2.QueuePINCancel()
	_, f = ProtectPin(context.Background(), ui2)
	require.Equal(t, FailurePinCancelled, f.Kind)
}

func TestFailureErrorAndUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	f := Wrap(FailureProcessError, cause)
	require.ErrorIs(t, f, cause)
	require.Contains(t, f.Error(), "ProcessError")
}

func TestAsFailurePassesThroughExistingFailure(t *testing.T) {
	original := NewFailure(FailureNotEnoughFunds, "short by 500 sats")
	require.Same(t, original, AsFailure(original))
}

func TestAsFailureWrapsUnknownError(t *testing.T) {
	f := AsFailure(errors.New("boom"))
	require.Equal(t, FailureProcessError, f.Kind)
}

func TestIsInterruptSet(t *testing.T) {
	require.True(t, IsInterrupt(MsgCancel))
	require.True(t, IsInterrupt(MsgTxAck))
	require.False(t, IsInterrupt(MsgButtonRequest))
}

func TestPinMatrixTranslateRoundTrip(t *testing.T) {
	pm, err := NewPinMatrix()
	require.NoError(t, err)

	var matrixDigits string
	for i := byte('1'); i <= '9'; i++ {
		real, err := pm.Translate(i)
		require.NoError(t, err)
		require.True(t, real >= '1' && real <= '9')
		matrixDigits += string(rune(i))
	}

	pm2, err := NewPinMatrix()
	require.NoError(t, err)
	out, err := pm2.TranslateAll(matrixDigits)
	require.NoError(t, err)
	require.Len(t, out, 9)
}

func TestPinMatrixTranslateRejectsOutOfRangeDigit(t *testing.T) {
	pm, err := NewPinMatrix()
	require.NoError(t, err)
	_, err = pm.Translate('0')
	require.ErrorIs(t, err, ErrInvalidMatrixDigit)
}

func TestDispatcherRoutesToRegisteredHandler(t *testing.T) {
	bus := NewBus(1)
	ui := collab.NewScriptedUI()
	d := NewDispatcher(bus, ui)

	d.Register(MsgGetAddress, func(ctx context.Context, env Envelope) (MessageID, []byte, error) {
		return MsgAddress, []byte("1BitcoinAddress"), nil
	})

	id, payload := d.Dispatch(context.Background(), Envelope{ID: MsgGetAddress}, time.Now())
	require.Equal(t, MsgAddress, id)
	require.Equal(t, []byte("1BitcoinAddress"), payload)
}

func TestDispatcherUnregisteredMessageReturnsFailure(t *testing.T) {
	bus := NewBus(1)
	ui := collab.NewScriptedUI()
	d := NewDispatcher(bus, ui)

	id, _ := d.Dispatch(context.Background(), Envelope{ID: MsgGetAddress}, time.Now())
	require.Equal(t, MsgFailure, id)
}

func TestDispatcherBindAndReleaseSigner(t *testing.T) {
	bus := NewBus(1)
	d := NewDispatcher(bus, collab.NewScriptedUI())

	require.Nil(t, d.BindSigner(SignerUtxo))
	require.Equal(t, SignerUtxo, d.Active())

	f := d.BindSigner(SignerEthereum)
	require.Equal(t, FailureUnexpectedMessage, f.Kind)

	d.ReleaseSigner()
	require.Equal(t, SignerIdle, d.Active())
}

func TestDispatcherInitializeReleasesSignerAndHandlerErrorConvertsToFailure(t *testing.T) {
	bus := NewBus(1)
	d := NewDispatcher(bus, collab.NewScriptedUI())
	require.Nil(t, d.BindSigner(SignerUtxo))

	d.Register(MsgSignTx, func(ctx context.Context, env Envelope) (MessageID, []byte, error) {
		return 0, nil, NewFailure(FailureProcessError, "boom")
	})
	d.Register(MsgInitialize, func(ctx context.Context, env Envelope) (MessageID, []byte, error) {
		return MsgFeatures, nil, nil
	})

	id, _ := d.Dispatch(context.Background(), Envelope{ID: MsgInitialize}, time.Now())
	require.Equal(t, MsgFeatures, id)
	require.Equal(t, SignerIdle, d.Active(), "Initialize must release any bound signer before dispatch")

	require.Nil(t, d.BindSigner(SignerUtxo))
	id, _ = d.Dispatch(context.Background(), Envelope{ID: MsgSignTx}, time.Now())
	require.Equal(t, MsgFailure, id)
	require.Equal(t, SignerIdle, d.Active(), "a ProcessError must release the signer slot")
}
