// Package config holds the signing core's compiled-in device configuration.
// There is no on-disk config file: the firmware core receives the handful
// of mutable options (autolock delay, safety-check level) over the wire as
// ApplySettings-style messages and persists them through the KV contract in
// internal/collab, via a plain Go struct with a Default constructor rather
// than a file-based config loader the device doesn't have.
package config

import "time"

// SafetyCheckLevel controls whether unusual derivation paths or signing
// requests are refused outright or merely surfaced to the user for
// confirmation.
type SafetyCheckLevel int

const (
	// SafetyCheckStrict refuses unusual paths/requests outright.
	SafetyCheckStrict SafetyCheckLevel = iota
	// SafetyCheckPromptTemporarily allows the user to confirm past a
	// safety check for the remainder of the session.
	SafetyCheckPromptTemporarily
)

func (l SafetyCheckLevel) String() string {
	switch l {
	case SafetyCheckStrict:
		return "strict"
	case SafetyCheckPromptTemporarily:
		return "prompt_temporarily"
	default:
		return "unknown"
	}
}

// Config is the compiled-in device configuration. Values here are
// overridable only through wire messages the host sends after unlock;
// there is no config file on a hardware signing device.
type Config struct {
	// AutoLockDelay is the duration after unlock after which the
	// session transitions back to LOCKED.
	AutoLockDelay time.Duration

	// MaxPinAttempts is the wipe threshold: the MaxPinAttempts-th
	// consecutive failed PIN attempt erases the KV store.
	MaxPinAttempts int

	// SafetyChecks is the current safety-check policy.
	SafetyChecks SafetyCheckLevel

	// MsgInEncodedSize is the maximum number of assembled bytes the
	// transport will buffer for one incoming message.
	MsgInEncodedSize int

	// PacketSize is the fixed size of one transport packet, including
	// the framing header.
	PacketSize int
}

// Default returns the configuration a freshly wiped device boots with.
func Default() *Config {
	return &Config{
		AutoLockDelay:    10 * time.Minute,
		MaxPinAttempts:   15,
		SafetyChecks:     SafetyCheckStrict,
		MsgInEncodedSize: 1024 * 7,
		PacketSize:       64,
	}
}
