package configutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	BaseUrl     string  `json:"base_url"`
	MaxAttempts int     `json:"max_attempts"`
	Timeout     float64 `json:"timeout"`
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
}

func TestReadConfigMergesLocalOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stgpx.json5"), `{
		// comments are allowed
		base_url: "https://www.sports-tracker.com",
		max_attempts: 5,
	}`)
	writeFile(t, filepath.Join(dir, "stgpx.local.json5"), `{max_attempts: 2, timeout: 1.5}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "stgpx.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{
		BaseUrl:     "https://www.sports-tracker.com",
		MaxAttempts: 2,
		Timeout:     1.5,
	}, cfg)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "stgpx.json5"))
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestReadWithDefaults(t *testing.T) {
	defaults := testConfig{BaseUrl: "https://example.com", MaxAttempts: 5, Timeout: 10}

	missing, err := ReadWithDefaults(filepath.Join(t.TempDir(), "stgpx.json5"), defaults)
	require.NoError(t, err)
	require.Equal(t, defaults, missing)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stgpx.json5"), `{max_attempts: 3}`)
	partial, err := ReadWithDefaults(filepath.Join(dir, "stgpx.json5"), defaults)
	require.NoError(t, err)
	require.Equal(t, testConfig{BaseUrl: "https://example.com", MaxAttempts: 3, Timeout: 10}, partial)
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, "stgpx.local.json5", LocalPath("stgpx.json5"))
	require.Equal(t, filepath.Join("a", "b", "telemetry.local.json5"), LocalPath(filepath.Join("a", "b", "telemetry.json5")))
	require.Equal(t, "config.local", LocalPath("config"))
}

func TestReadConfigLocalOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stgpx.local.json5"), `{timeout: 2}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "stgpx.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{Timeout: 2}, cfg)
}

func TestReadConfigEmptyFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stgpx.json5"), "")

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "stgpx.json5"))
	require.NoError(t, err)
	require.Zero(t, cfg)
}
