package collab

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemKVGetPutDeleteWipe(t *testing.T) {
	kv := NewMemKV()

	_, ok := kv.Get(KeyPinHash)
	require.False(t, ok)

	require.NoError(t, kv.Put(KeyPinHash, []byte("hash")))
	got, ok := kv.Get(KeyPinHash)
	require.True(t, ok)
	require.Equal(t, []byte("hash"), got)

	require.NoError(t, kv.Delete(KeyPinHash))
	_, ok = kv.Get(KeyPinHash)
	require.False(t, ok)

	require.NoError(t, kv.Put(KeyLabel, []byte("device")))
	require.NoError(t, kv.Wipe())
	_, ok = kv.Get(KeyLabel)
	require.False(t, ok)
}

func TestMemKVGetReturnsIndependentCopy(t *testing.T) {
	kv := NewMemKV()
	require.NoError(t, kv.Put(KeyMnemonic, []byte("secret")))

	got, _ := kv.Get(KeyMnemonic)
	got[0] = 'X'

	again, _ := kv.Get(KeyMnemonic)
	require.Equal(t, []byte("secret"), again, "mutating a returned copy must not affect the store")
}

func TestSessionCacheKeyNamespacesBySessionID(t *testing.T) {
	require.Equal(t, KVKey("session_cache_abc"), SessionCacheKey("abc"))
	require.NotEqual(t, SessionCacheKey("abc"), SessionCacheKey("def"))
}

func TestScriptedUIPinSequenceAndCancel(t *testing.T) {
	ui := NewScriptedUI()
	ui.QueuePIN("1234")

	entry, ok := ui.PromptPIN(context.Background())
	require.True(t, ok)
	require.Equal(t, "1234", entry.Digits)

	ui.QueuePINCancel()
	_, ok = ui.PromptPIN(context.Background())
	require.False(t, ok)
}

func TestScriptedUIConfirmSequenceDefaultsTrue(t *testing.T) {
	ui := NewScriptedUI(true, false)
	require.True(t, ui.AskConfirm(context.Background(), ConfirmOutput, "first"))
	require.False(t, ui.AskConfirm(context.Background(), ConfirmFee, "second"))
	require.True(t, ui.AskConfirm(context.Background(), ConfirmTotal, "exhausted queue defaults true"))
}

func TestScriptedUIRecordsProgress(t *testing.T) {
	ui := NewScriptedUI()
	ui.NotifyProgress("signing", 0)
	ui.NotifyProgress("signing", 500)
	ui.NotifyProgress("signing", 1000)
	require.Equal(t, []int{0, 500, 1000}, ui.Progress())
}
