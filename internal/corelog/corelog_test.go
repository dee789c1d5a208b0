package corelog

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestComponentTagsLoggerWithName(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetForTest(zap.New(core).Sugar())

	Component("session").Infow("unlocked")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "session", entries[0].ContextMap()["component"])
}

func TestGetReturnsNonNilLogger(t *testing.T) {
	require.NotNil(t, Get())
}
