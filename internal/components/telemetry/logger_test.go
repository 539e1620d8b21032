package telemetry

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromCount(t *testing.T) {
	table := []struct {
		count    int
		expected slog.Level
	}{
		{count: 0, expected: slog.LevelError},
		{count: 1, expected: slog.LevelWarn},
		{count: 2, expected: slog.LevelInfo},
		{count: 3, expected: slog.LevelDebug},
		{count: 7, expected: slog.LevelDebug},
	}
	for _, row := range table {
		require.Equal(t, row.expected, LevelFromCount(row.count), "count %d", row.count)
	}
}

func TestNewLoggerSinksFilterIndependently(t *testing.T) {
	console := &bytes.Buffer{}
	logfile := filepath.Join(t.TempDir(), "stgpx.log")

	logger, closeLog, err := NewLogger(LogOptions{
		Console:      console,
		ConsoleLevel: slog.LevelWarn,
		File:         logfile,
		FileLevel:    slog.LevelDebug,
		NoColor:      true,
	})
	require.NoError(t, err)

	tel := NewScopedAPI("client", NewSlogAPI(logger))
	tel.ReportDebug("clicking on the login button")
	tel.ReportWarning("login.attempt", "timed out")
	require.NoError(t, closeLog())

	require.NotContains(t, console.String(), "clicking on the login button")
	require.Contains(t, console.String(), "client: login.attempt")

	contents, err := os.ReadFile(logfile)
	require.NoError(t, err)
	require.Contains(t, string(contents), "client: clicking on the login button")
	require.Contains(t, string(contents), "client: login.attempt")
}

func TestRecorderFilter(t *testing.T) {
	rec := NewRecorder()
	tel := NewScopedAPI("client", rec)
	tel.ReportWarning("login.attempt", 1)
	tel.ReportWarning("login.attempt", 2)
	tel.ReportBroken("login")

	require.Len(t, rec.Filter(LevelWarning, "login.attempt"), 2)
	require.Len(t, rec.Filter(LevelBroken, "client: login"), 1)
	require.Empty(t, rec.Filter(LevelDebug, "login"))
}
