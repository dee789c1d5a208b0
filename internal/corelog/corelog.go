// Package corelog provides the structured logger shared by the signing
// core. It never logs secret material: callers pass only message kinds,
// phase names, and error codes as fields.
package corelog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	global *zap.SugaredLogger
)

// Get returns the process-wide sugared logger, building it lazily with a
// production encoder config on first use. Tests may call SetForTest to
// install an observable logger instead.
func Get() *zap.SugaredLogger {
	once.Do(func() {
		logger, err := zap.NewProduction(zap.AddCallerSkip(1))
		if err != nil {
			logger = zap.NewNop()
		}
		global = logger.Sugar().Named("signcore")
	})
	return global
}

// SetForTest overrides the global logger; it exists only for tests that
// want to assert on emitted fields and must be called before Get().
func SetForTest(l *zap.SugaredLogger) {
	once.Do(func() {})
	global = l
}

// Component returns a child logger tagged with the owning component, e.g.
// corelog.Component("session") or corelog.Component("utxo.signer").
func Component(name string) *zap.SugaredLogger {
	return Get().With("component", name)
}
