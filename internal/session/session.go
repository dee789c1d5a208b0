// Package session implements the secure session component (C3): PIN
// gating, wipe-code handling, auto-lock, passphrase-derived seed
// caching, and the "safety check" / "unlock path" policy hooks the
// signing engines consult.
package session

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/arcsign/signcore/internal/bip32"
	"github.com/arcsign/signcore/internal/collab"
	"github.com/arcsign/signcore/internal/config"
	"github.com/arcsign/signcore/internal/crypto"
)

// State is the session state machine:
//
//	LOCKED --unlock(pin ok)--> UNLOCKED --autolock or explicit lock--> LOCKED
//	LOCKED --unlock(pin bad, attempts exhausted)--> WIPED
type State int

const (
	StateLocked State = iota
	StateUnlocked
	StateWiped
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	case StateWiped:
		return "wiped"
	default:
		return "unknown"
	}
}

var (
	// ErrPinExpected is returned by RequireUnlocked when the session is
	// not currently unlocked.
	ErrPinExpected = errors.New("session: PIN required")
	// ErrPinCancelled is returned when the UI collaborator reports the
	// user cancelled PIN entry.
	ErrPinCancelled = errors.New("session: PIN entry cancelled")
	// ErrPinInvalid is returned when an entered PIN does not match.
	ErrPinInvalid = errors.New("session: PIN invalid")
	// ErrWiped is returned once the device has wiped itself.
	ErrWiped = errors.New("session: device wiped")
	// ErrNotInitialized is returned when no seed has been enrolled yet.
	ErrNotInitialized = errors.New("session: device not initialized")
)

// Session is the single, per-device (not per-connection) secure session.
// There is exactly one at a time.
type Session struct {
	kv  collab.KVStore
	cfg *config.Config

	state State

	id              [32]byte
	seed            *Seed
	passphrase      string
	autoLockAt      time.Time
	unlockPathMAC   []byte
	coinjoinAuth    bool
	derivationCache *bip32.Cache

	// Sleeper enforces the exponential PIN back-off before the prompt is
	// shown. Defaults to a context-aware time.Sleep; tests substitute a
	// no-op so a back-off delay never actually blocks a test run.
	Sleeper func(ctx context.Context, d time.Duration)
}

// New constructs a locked session bound to kv and cfg.
func New(kv collab.KVStore, cfg *config.Config) *Session {
	return &Session{
		kv:              kv,
		cfg:             cfg,
		state:           StateLocked,
		derivationCache: bip32.NewCache(16),
		Sleeper:         contextSleep,
	}
}

// contextSleep blocks for d or until ctx is cancelled, whichever comes
// first.
func contextSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// State reports the current session state.
func (s *Session) State() State { return s.state }

// RequireUnlocked returns ErrPinExpected unless the session is unlocked.
// Every handler that touches secret key material calls this first.
func (s *Session) RequireUnlocked() error {
	if s.state != StateUnlocked {
		return ErrPinExpected
	}
	return nil
}

// Lock transitions to LOCKED, scrubs the cached seed, and invalidates
// the derivation cache. Called on auto-lock expiry or explicit lock
// request.
func (s *Session) Lock() {
	if s.seed != nil {
		s.seed.Scrub()
		s.seed = nil
	}
	s.passphrase = ""
	s.unlockPathMAC = nil
	s.coinjoinAuth = false
	s.derivationCache.Invalidate()
	s.state = StateLocked
}

// CheckAutoLock transitions to LOCKED if now is past the auto-lock
// deadline. Called before every handler dispatch.
func (s *Session) CheckAutoLock(now time.Time) {
	if s.state == StateUnlocked && now.After(s.autoLockAt) {
		s.Lock()
	}
}

// touch resets the auto-lock deadline relative to now; called when the
// session unlocks. Handler dispatches do not call it, so the deadline
// counts from the unlock.
func (s *Session) touch(now time.Time) {
	s.autoLockAt = now.Add(s.cfg.AutoLockDelay)
}

// RootNode returns the root node for curve, deriving it afresh from the
// cached seed and passphrase on every call. The session keeps no
// reference to the returned node, so Lock does not scrub it; the caller
// owns it.
func (s *Session) RootNode(curve bip32.Curve) (*bip32.Node, error) {
	if err := s.RequireUnlocked(); err != nil {
		return nil, err
	}
	return bip32.NewMasterNode(s.seed.EffectiveSeed(s.passphrase), curve)
}

// Cache exposes the session's derivation cache to C2 callers.
func (s *Session) Cache() *bip32.Cache { return s.derivationCache }

// Derive returns the node at path on curve, consulting (and populating)
// the session's LRU derivation cache rather than re-walking the chain
// from the root every time. Signing engines wire this in as their
// KeyProvider.
func (s *Session) Derive(path []uint32, curve bip32.Curve) (*bip32.Node, error) {
	if node, ok := s.derivationCache.Get(curve, path); ok {
		return node, nil
	}
	root, err := s.RootNode(curve)
	if err != nil {
		return nil, err
	}
	node, err := root.DerivePath(path)
	if err != nil {
		return nil, err
	}
	s.derivationCache.Put(curve, path, node)
	return node, nil
}

// SetPassphrase installs the (optional) 25th-word passphrase used to
// mutate the seed on every derivation. When passphrase protection is
// enabled, a mismatched passphrase silently produces a structurally
// valid but different seed; the device never detects this.
func (s *Session) SetPassphrase(p string) { s.passphrase = p }

// UnlockPathAuthorized reports whether SLIP-25 paths are currently
// accessible: either an UnlockPath MAC was supplied and verified, or an
// active coinjoin authorization covers the request.
func (s *Session) UnlockPathAuthorized() bool {
	return s.unlockPathMAC != nil || s.coinjoinAuth
}

// SetCoinjoinAuthorization toggles the coinjoin authorization flag.
func (s *Session) SetCoinjoinAuthorization(on bool) { s.coinjoinAuth = on }

// SetUnlockPathMAC installs a verified UnlockPath MAC, granting SLIP-25
// access for the remainder of the session.
func (s *Session) SetUnlockPathMAC(mac []byte) { s.unlockPathMAC = mac }

// ID returns the opaque 32-byte session token the host uses to resume
// this session.
func (s *Session) ID() [32]byte { return s.id }

// Initialized reports whether a seed has been enrolled.
func (s *Session) Initialized() bool {
	v, ok := s.kv.Get(collab.KeyMnemonic)
	return ok && len(v) > 0
}

// PinProtection reports whether a PIN hash is enrolled.
func (s *Session) PinProtection() bool {
	v, ok := s.kv.Get(collab.KeyPinHash)
	return ok && len(v) > 0
}

// PassphraseProtection reports the persisted passphrase-protection flag.
func (s *Session) PassphraseProtection() bool {
	v, ok := s.kv.Get(collab.KeyPassphraseProtection)
	return ok && len(v) == 1 && v[0] != 0
}

// Config exposes the device's compiled-in configuration to C2 callers
// answering Initialize.
func (s *Session) Config() *config.Config { return s.cfg }

// counterBytes/parseCounter convert the persisted PIN-fail counter to
// and from its KV representation.
func counterBytes(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func parseCounter(b []byte) uint32 {
	if len(b) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// Unlock runs the PIN-entry protocol against ui, consulting kv for the
// stored PIN hash, wipe-code hash, and fail counter. See pin.go for the
// implementation; this method exists on Session so callers never touch
// the KV keys directly.
func (s *Session) Unlock(ctx context.Context, ui collab.UI, now time.Time) error {
	return s.unlock(ctx, ui, now)
}
