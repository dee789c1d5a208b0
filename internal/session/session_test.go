package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/collab"
	"github.com/arcsign/signcore/internal/config"
	"github.com/arcsign/signcore/internal/crypto"
)

func noopSleeper(context.Context, time.Duration) {}

func enrolledKV(t *testing.T, pin string) *collab.MemKV {
	t.Helper()
	kv := collab.NewMemKV()
	require.NoError(t, kv.Put(collab.KeyMnemonic, make([]byte, 32)))
	sum := crypto.Sha256d([]byte(pin))
	require.NoError(t, kv.Put(collab.KeyPinHash, sum[:]))
	return kv
}

func TestNewSessionStartsLocked(t *testing.T) {
	s := New(collab.NewMemKV(), config.Default())
	require.Equal(t, StateLocked, s.State())
	require.ErrorIs(t, s.RequireUnlocked(), ErrPinExpected)
}

func TestUnlockWithCorrectPinTransitionsToUnlocked(t *testing.T) {
	kv := enrolledKV(t, "1234")
	s := New(kv, config.Default())
	s.Sleeper = noopSleeper
	ui := collab.NewScriptedUI()
	ui.QueuePIN("1234")

	err := s.Unlock(context.Background(), ui, time.Now())
	require.NoError(t, err)
	require.Equal(t, StateUnlocked, s.State())
	require.NoError(t, s.RequireUnlocked())
}

func TestUnlockWithWrongPinIncrementsCounterAndReturnsInvalid(t *testing.T) {
	kv := enrolledKV(t, "1234")
	s := New(kv, config.Default())
	s.Sleeper = noopSleeper
	ui := collab.NewScriptedUI()
	ui.QueuePIN("0000")

	err := s.Unlock(context.Background(), ui, time.Now())
	require.ErrorIs(t, err, ErrPinInvalid)
	require.Equal(t, StateLocked, s.State())

	counter, ok := kv.Get(collab.KeyPinFailCounter)
	require.True(t, ok)
	require.Equal(t, uint32(1), parseCounter(counter))
}

func TestUnlockWipesAfterMaxAttempts(t *testing.T) {
	kv := enrolledKV(t, "1234")
	cfg := config.Default()
	cfg.MaxPinAttempts = 1
	s := New(kv, cfg)
	s.Sleeper = noopSleeper
	ui := collab.NewScriptedUI()
	ui.QueuePIN("wrong")

	err := s.Unlock(context.Background(), ui, time.Now())
	require.Error(t, err)
	require.Equal(t, StateWiped, s.State())

	_, ok := kv.Get(collab.KeyMnemonic)
	require.False(t, ok, "a wipe must erase the enrolled mnemonic")
}

func TestUnlockWipeCodeErasesStore(t *testing.T) {
	kv := enrolledKV(t, "1234")
	wipeSum := crypto.Sha256d([]byte("9999"))
	require.NoError(t, kv.Put(collab.KeyWipeCodeHash, wipeSum[:]))
	s := New(kv, config.Default())
	s.Sleeper = noopSleeper
	ui := collab.NewScriptedUI()
	ui.QueuePIN("9999")

	err := s.Unlock(context.Background(), ui, time.Now())
	require.Error(t, err)
	require.Equal(t, StateWiped, s.State())

	_, ok := kv.Get(collab.KeyMnemonic)
	require.False(t, ok, "a wipe-code match must erase the store")
}

func TestUnlockOnUninitializedDevice(t *testing.T) {
	s := New(collab.NewMemKV(), config.Default())
	s.Sleeper = noopSleeper
	ui := collab.NewScriptedUI()
	ui.QueuePIN("1234")

	err := s.Unlock(context.Background(), ui, time.Now())
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestUnlockPinCancelled(t *testing.T) {
	kv := enrolledKV(t, "1234")
	s := New(kv, config.Default())
	s.Sleeper = noopSleeper
	ui := collab.NewScriptedUI()
	ui.QueuePINCancel()

	err := s.Unlock(context.Background(), ui, time.Now())
	require.ErrorIs(t, err, ErrPinCancelled)
}

func TestBackoffDelayDoublesUntilCap(t *testing.T) {
	require.Equal(t, time.Duration(0), backoffDelay(0))
	require.Equal(t, 2*time.Second, backoffDelay(1))
	require.Equal(t, 4*time.Second, backoffDelay(2))
	require.Equal(t, 24*time.Hour, backoffDelay(100))
}

func TestUnlockInvokesSleeperWithBackoffDelay(t *testing.T) {
	kv := enrolledKV(t, "1234")
	// Pre-seed one prior failure so the next unlock attempt owes a delay.
	require.NoError(t, kv.Put(collab.KeyPinFailCounter, counterBytes(1)))
	s := New(kv, config.Default())

	var sawDelay time.Duration
	s.Sleeper = func(_ context.Context, d time.Duration) { sawDelay = d }

	ui := collab.NewScriptedUI()
	ui.QueuePIN("1234")
	require.NoError(t, s.Unlock(context.Background(), ui, time.Now()))
	require.Equal(t, backoffDelay(1), sawDelay)
}

func TestLockScrubsSeedAndInvalidatesCache(t *testing.T) {
	kv := enrolledKV(t, "1234")
	s := New(kv, config.Default())
	s.Sleeper = noopSleeper
	ui := collab.NewScriptedUI()
	ui.QueuePIN("1234")
	require.NoError(t, s.Unlock(context.Background(), ui, time.Now()))

	path := []uint32{bip32.HardenedKeyStart + 44, bip32.HardenedKeyStart, bip32.HardenedKeyStart, 0, 0}
	_, err := s.Derive(path, bip32.CurveSecp256k1)
	require.NoError(t, err)

	s.SetPassphrase("extra word")
	s.SetCoinjoinAuthorization(true)
	s.Lock()

	require.Equal(t, StateLocked, s.State())
	require.False(t, s.UnlockPathAuthorized())
	require.ErrorIs(t, s.RequireUnlocked(), ErrPinExpected)
	require.Nil(t, s.seed)
	_, ok := s.Cache().Get(bip32.CurveSecp256k1, path)
	require.False(t, ok)
}

func TestCheckAutoLockExpiresSession(t *testing.T) {
	kv := enrolledKV(t, "1234")
	cfg := config.Default()
	cfg.AutoLockDelay = time.Millisecond
	s := New(kv, cfg)
	s.Sleeper = noopSleeper
	ui := collab.NewScriptedUI()
	ui.QueuePIN("1234")
	now := time.Now()
	require.NoError(t, s.Unlock(context.Background(), ui, now))

	s.CheckAutoLock(now.Add(time.Hour))
	require.Equal(t, StateLocked, s.State())
}

func TestRootNodeRequiresUnlockedSession(t *testing.T) {
	s := New(collab.NewMemKV(), config.Default())
	_, err := s.RootNode(bip32.CurveSecp256k1)
	require.ErrorIs(t, err, ErrPinExpected)
}

func TestPassphraseChangesDerivedSeed(t *testing.T) {
	kv := enrolledKV(t, "1234")
	s := New(kv, config.Default())
	s.Sleeper = noopSleeper
	ui := collab.NewScriptedUI()
	ui.QueuePIN("1234")
	require.NoError(t, s.Unlock(context.Background(), ui, time.Now()))

	plain, err := s.RootNode(bip32.CurveSecp256k1)
	require.NoError(t, err)

	s.SetPassphrase("25th word")
	withPassphrase, err := s.RootNode(bip32.CurveSecp256k1)
	require.NoError(t, err)

	require.NotEqual(t, plain.PublicKey(), withPassphrase.PublicKey())
}

func TestDeriveUsesCache(t *testing.T) {
	kv := enrolledKV(t, "1234")
	s := New(kv, config.Default())
	s.Sleeper = noopSleeper
	ui := collab.NewScriptedUI()
	ui.QueuePIN("1234")
	require.NoError(t, s.Unlock(context.Background(), ui, time.Now()))

	path := []uint32{bip32.HardenedKeyStart + 44, bip32.HardenedKeyStart, bip32.HardenedKeyStart, 0, 0}
	first, err := s.Derive(path, bip32.CurveSecp256k1)
	require.NoError(t, err)

	cached, ok := s.Cache().Get(bip32.CurveSecp256k1, path)
	require.True(t, ok)
	require.Equal(t, first.PublicKey(), cached.PublicKey())

	second, err := s.Derive(path, bip32.CurveSecp256k1)
	require.NoError(t, err)
	require.Equal(t, first.PublicKey(), second.PublicKey())
}

func TestFeatureQueriesReflectEnrollment(t *testing.T) {
	s := New(collab.NewMemKV(), config.Default())
	require.False(t, s.Initialized())
	require.False(t, s.PinProtection())

	kv := enrolledKV(t, "1234")
	s2 := New(kv, config.Default())
	require.True(t, s2.Initialized())
	require.True(t, s2.PinProtection())
	require.False(t, s2.PassphraseProtection())
}

func TestUnlockPathAuthorizedByMACOrCoinjoin(t *testing.T) {
	s := New(collab.NewMemKV(), config.Default())
	require.False(t, s.UnlockPathAuthorized())

	s.SetUnlockPathMAC([]byte("mac"))
	require.True(t, s.UnlockPathAuthorized())

	s.Lock()
	require.False(t, s.UnlockPathAuthorized())

	s.SetCoinjoinAuthorization(true)
	require.True(t, s.UnlockPathAuthorized())
}
