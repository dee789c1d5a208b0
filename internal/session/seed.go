package session

import "github.com/arcsign/signcore/internal/crypto"

// Seed wraps the raw BIP39-derived secret seed. It is produced once
// during onboarding and persisted only through the KV store, encrypted
// at rest under a PIN-derived key by the collaborator; in RAM it lives
// only inside an unlocked Session and is scrubbed when the session locks
// (Session.Lock); cancellation and handler exit do not scrub it.
type Seed struct {
	raw []byte
}

// NewSeed copies raw into a Seed the session owns.
func NewSeed(raw []byte) *Seed {
	return &Seed{raw: append([]byte(nil), raw...)}
}

// EffectiveSeed returns the seed actually used for derivation: when
// passphrase is non-empty, SLIP-39/BIP39-style passphrase mixing folds
// it in via HMAC-SHA512 with the raw seed as key, matching the way an
// optional 25th word perturbs the master seed without the device ever
// validating the result.
func (s *Seed) EffectiveSeed(passphrase string) []byte {
	if passphrase == "" {
		return append([]byte(nil), s.raw...)
	}
	mixed := crypto.HmacSha512(s.raw, []byte(passphrase))
	return mixed
}

// Scrub zeroises the raw seed bytes.
func (s *Seed) Scrub() {
	crypto.Scrub(s.raw)
}
