// Package collab defines the external collaborators the signing core talks
// to: the OLED/TUI renderer and button input (UI), and the encrypted
// key-value store standing in for persistent storage (KVStore). Both are
// out of scope — this package carries only the contracts
// the core consumes, plus in-memory fakes used by tests across the other
// packages.
package collab

import "context"

// ConfirmKind distinguishes the several flavors of user confirmation the
// core requests, so a UI collaborator can render the right prompt.
type ConfirmKind string

const (
	ConfirmOutput      ConfirmKind = "output"
	ConfirmTotal       ConfirmKind = "total"
	ConfirmFee         ConfirmKind = "fee"
	ConfirmUnusualPath ConfirmKind = "unusual_path"
	ConfirmToken       ConfirmKind = "token"
	ConfirmAddress     ConfirmKind = "address"
	ConfirmSignMessage ConfirmKind = "sign_message"
)

// PinEntry is the digit sequence the user entered, as returned by the UI
// collaborator's PromptPIN.
type PinEntry struct {
	Digits string
}

// UI abstracts the OLED/TUI renderer and physical buttons. The signing core
// never receives the derived key or a signature through this interface —
// only prompts and confirmations flow across it.
type UI interface {
	// PromptPIN asks the user to enter a PIN and returns it, or ok=false
	// if the user cancelled from the device itself.
	PromptPIN(ctx context.Context) (entry PinEntry, ok bool)

	// AskConfirm renders a confirmation prompt for the given kind and
	// text and blocks for a physical button press. true means confirm,
	// false means cancel.
	AskConfirm(ctx context.Context, kind ConfirmKind, text string) bool

	// NotifyProgress renders a progress bar. permil is 0-1000.
	NotifyProgress(title string, permil int)

	// ShowHome resets the display to the idle/home screen. Called by the
	// dispatcher when a handler fails or no handler is registered for a
	// message.
	ShowHome()
}

// KVKey is the closed enumeration of keys the KV store understands.
type KVKey string

const (
	KeyMnemonic              KVKey = "mnemonic"
	KeyPinHash               KVKey = "pin_hash"
	KeyWipeCodeHash          KVKey = "wipe_code_hash"
	KeyPinFailCounter        KVKey = "pin_fail_counter"
	KeyPassphraseProtection  KVKey = "passphrase_protection"
	KeyU2FCounter            KVKey = "u2f_counter"
	KeyLabel                 KVKey = "label"
	KeyLanguage              KVKey = "language"
	KeyHomescreen            KVKey = "homescreen"
	KeySafetyChecks          KVKey = "safety_checks"
	KeyAutolockDelayMs       KVKey = "autolock_delay_ms"
	KeyFlags                 KVKey = "flags"
	KeyCoinjoinAuthorization KVKey = "coinjoin_authorization"
)

// SessionCacheKey builds the "session_cache_*" family of keys,
// keyed by the opaque session id so a resumed session can find its cached
// passphrase-derived state without re-deriving it.
func SessionCacheKey(sessionID string) KVKey {
	return KVKey("session_cache_" + sessionID)
}

// KVStore is the encrypted, PIN-gated key-value store standing in for the
// device's persistent storage layer. Values for secret keys are encrypted
// at rest under a key derived from the PIN by the collaborator itself —
// the core never sees that encryption.
//
// Power-fail contract: Put for KeyPinFailCounter MUST be durable before the
// caller proceeds to compare the entered PIN, so a crash between the two
// still finds the incremented counter on reboot.
type KVStore interface {
	Get(key KVKey) ([]byte, bool)
	Put(key KVKey, value []byte) error
	Delete(key KVKey) error
	Wipe() error
}
