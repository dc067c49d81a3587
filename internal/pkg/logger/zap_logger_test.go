package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogsFiltersByModuleAndSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l := NewIsolatedLogger(path)

	l.Info("stage.safety_gate", "screened", map[string]interface{}{"session_id": "a"})
	l.Warn("stage.legal_elements", "fallback used", map[string]interface{}{"session_id": "a"})
	l.Info("stage.safety_gate", "screened", map[string]interface{}{"session_id": "b"})
	l.Debug("stage.safety_gate", "debug lines are not written to the file", nil)
	require.NoError(t, l.Sync())

	all, err := l.GetLogs(LogFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "b", all[0].Details["session_id"], "newest first")

	gate, err := l.GetLogs(LogFilter{Module: "stage.safety_gate", SessionID: "a"})
	require.NoError(t, err)
	require.Len(t, gate, 1)
	assert.Equal(t, "screened", gate[0].Message)

	warn, err := l.GetLogs(LogFilter{Level: "WARN"})
	require.NoError(t, err)
	require.Len(t, warn, 1)

	found, err := l.GetLogById(warn[0].Id)
	require.NoError(t, err)
	assert.Equal(t, "fallback used", found.Message)
}

func TestNopLoggerHasNoLogs(t *testing.T) {
	l := NewNopLogger()
	l.Error("x", "y", map[string]interface{}{"error": "boom"})
	logs, err := l.GetLogs(LogFilter{})
	require.NoError(t, err)
	assert.Empty(t, logs)
}
