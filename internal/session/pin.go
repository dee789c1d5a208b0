package session

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/arcsign/signcore/internal/collab"
	"github.com/arcsign/signcore/internal/crypto"
)

// backoffDelay implements the exponential back-off schedule: each
// additional failed attempt doubles the enforced delay, capped at a day.
func backoffDelay(failCount uint32) time.Duration {
	const maxDelay = 24 * time.Hour
	if failCount == 0 {
		return 0
	}
	delay := time.Second
	for i := uint32(0); i < failCount && delay < maxDelay; i++ {
		delay *= 2
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

func hashPIN(digits string) []byte {
	sum := crypto.Sha256d([]byte(digits))
	return sum[:]
}

// unlock runs one PIN-entry round: prompt, persist-before-verify the
// fail counter, compare against both the stored PIN hash and the
// wipe-code hash, and either unlock, increment the counter, or wipe.
//
// Contracts enforced here:
//   - every attempt is persisted (KeyPinFailCounter incremented) before
//     the comparison happens, so a power-cycle between increment and
//     compare still finds the incremented counter on reboot;
//   - a wipe-code match erases the KV store unconditionally, even if
//     the value also happens to equal the real PIN (it never will in
//     practice since the two are provisioned to differ, but the check
//     order does not special-case that);
//   - a successful match clears the persisted counter only after the
//     comparison succeeds.
func (s *Session) unlock(ctx context.Context, ui collab.UI, now time.Time) error {
	if s.state == StateWiped {
		return ErrWiped
	}
	mnemonicHash, ok := s.kv.Get(collab.KeyMnemonic)
	if !ok || len(mnemonicHash) == 0 {
		return ErrNotInitialized
	}

	failCount := parseCounter(s.getCounter())
	if delay := backoffDelay(failCount); delay > 0 {
		s.Sleeper(ctx, delay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	entry, entered := ui.PromptPIN(ctx)
	if !entered {
		return ErrPinCancelled
	}

	// Persist the incremented counter before any comparison.
	failCount++
	if err := s.kv.Put(collab.KeyPinFailCounter, counterBytes(failCount)); err != nil {
		return err
	}

	if wipeHash, ok := s.kv.Get(collab.KeyWipeCodeHash); ok && len(wipeHash) > 0 {
		if subtle.ConstantTimeCompare(hashPIN(entry.Digits), wipeHash) == 1 {
			s.state = StateWiped
			if err := s.kv.Wipe(); err != nil {
				return err
			}
			return ErrWiped
		}
	}

	storedHash, _ := s.kv.Get(collab.KeyPinHash)
	if subtle.ConstantTimeCompare(hashPIN(entry.Digits), storedHash) != 1 {
		if failCount >= uint32(s.cfg.MaxPinAttempts) {
			s.state = StateWiped
			if err := s.kv.Wipe(); err != nil {
				return err
			}
			return ErrWiped
		}
		return ErrPinInvalid
	}

	if err := s.kv.Put(collab.KeyPinFailCounter, counterBytes(0)); err != nil {
		return err
	}

	seedBytes, ok := s.kv.Get(collab.KeyMnemonic)
	if !ok {
		return ErrNotInitialized
	}
	s.seed = NewSeed(seedBytes)
	s.state = StateUnlocked
	s.touch(now)
	return nil
}

func (s *Session) getCounter() []byte {
	v, ok := s.kv.Get(collab.KeyPinFailCounter)
	if !ok {
		return counterBytes(0)
	}
	return v
}
