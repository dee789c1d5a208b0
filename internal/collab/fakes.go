package collab

import (
	"context"
	"sync"
)

// MemKV is an in-memory KVStore used by tests throughout this module. It
// is not a production storage-encryption layer — it exists so
// session/utxo/ethereum tests can exercise the PIN-gating and wipe-code
// contracts without a real persistence backend.
type MemKV struct {
	mu   sync.Mutex
	data map[KVKey][]byte
}

// NewMemKV returns an empty store.
func NewMemKV() *MemKV {
	return &MemKV{data: make(map[KVKey][]byte)}
}

func (m *MemKV) Get(key KVKey) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

func (m *MemKV) Put(key KVKey, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func (m *MemKV) Delete(key KVKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemKV) Wipe() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[KVKey][]byte)
	return nil
}

// ScriptedUI is a deterministic UI collaborator for tests: PIN entries and
// confirm decisions are queued up front and consumed in order.
type ScriptedUI struct {
	mu        sync.Mutex
	pins      []PinEntry
	pinCancel bool
	confirms  []bool
	progress  []int
}

// NewScriptedUI returns a UI collaborator that will answer confirmations
// with confirmAnswers (consumed in order; defaults to true if exhausted).
func NewScriptedUI(confirmAnswers ...bool) *ScriptedUI {
	return &ScriptedUI{confirms: confirmAnswers}
}

func (s *ScriptedUI) QueuePIN(digits string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins = append(s.pins, PinEntry{Digits: digits})
}

func (s *ScriptedUI) QueuePINCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinCancel = true
}

func (s *ScriptedUI) PromptPIN(ctx context.Context) (PinEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pins) == 0 {
		return PinEntry{}, !s.pinCancel
	}
	next := s.pins[0]
	s.pins = s.pins[1:]
	return next, true
}

func (s *ScriptedUI) AskConfirm(ctx context.Context, kind ConfirmKind, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.confirms) == 0 {
		return true
	}
	next := s.confirms[0]
	s.confirms = s.confirms[1:]
	return next
}

func (s *ScriptedUI) NotifyProgress(title string, permil int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = append(s.progress, permil)
}

func (s *ScriptedUI) Progress() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.progress))
	copy(out, s.progress)
	return out
}

func (s *ScriptedUI) ShowHome() {}
