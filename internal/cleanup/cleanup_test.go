package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"stgpx/internal/components/telemetry"

	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		err := os.WriteFile(filepath.Join(dir, name), []byte("<gpx/>"), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCleanIsPrecise(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.gpx", "a(1).gpx", "b(2).gpx", "c.txt")

	cleaner := NewCleaner(OSFileSystem{}, Options{}, telemetry.NewRecorder())
	report, err := cleaner.Clean(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, []string{"a(1).gpx", "b(2).gpx"}, report.Removed)
	require.Empty(t, report.Failed)
	require.ElementsMatch(t, []string{"a.gpx", "c.txt"}, listDir(t, dir))
}

func TestDuplicatePattern(t *testing.T) {
	cleaner := NewCleaner(OSFileSystem{}, Options{}, telemetry.NewRecorder())

	cases := map[string]bool{
		"a(1).gpx":               true,
		"a (1).gpx":              true,
		"Morning Run (12).gpx":   true,
		"a(1)(2).gpx":            true,
		"a.gpx":                  false,
		"a(0).gpx":               false,
		"a(01).gpx":              false,
		"(1).gpx":                false,
		"a(1).txt":               false,
		"a(1).gpx.crdownload":    false,
		"a(x).gpx":               false,
		"a(1)gpx":                false,
		"a  (1).gpx":             true,
		"workout-2024-05(3).gpx": true,
	}
	for name, want := range cases {
		require.Equal(t, want, cleaner.IsDuplicate(name), name)
	}
}

func TestCleanOtherExtension(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a(1).gpx", "a(1).fit")

	cleaner := NewCleaner(OSFileSystem{}, Options{Extension: ".fit"}, telemetry.NewRecorder())
	report, err := cleaner.Clean(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, []string{"a(1).fit"}, report.Removed)
	require.Equal(t, []string{"a(1).gpx"}, listDir(t, dir))
}

func TestCleanIsNotRecursive(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "old(1).gpx")
	require.NoError(t, os.Mkdir(sub, 0755))
	touch(t, sub, "x(1).gpx")

	cleaner := NewCleaner(OSFileSystem{}, Options{}, telemetry.NewRecorder())
	report, err := cleaner.Clean(context.Background(), dir)
	require.NoError(t, err)
	require.Empty(t, report.Removed)
	require.Equal(t, []string{"x(1).gpx"}, listDir(t, sub))
}

type flakyFS struct {
	OSFileSystem
	fail map[string]bool
}

var errDenied = errors.New("permission denied")

func (f flakyFS) Remove(name string) error {
	if f.fail[filepath.Base(name)] {
		return &fs.PathError{Op: "remove", Path: name, Err: errDenied}
	}
	return f.OSFileSystem.Remove(name)
}

func TestCleanContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a(1).gpx", "b(1).gpx", "c(1).gpx")

	tel := telemetry.NewRecorder()
	cleaner := NewCleaner(flakyFS{fail: map[string]bool{"b(1).gpx": true}}, Options{}, tel)
	report, err := cleaner.Clean(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, []string{"a(1).gpx", "c(1).gpx"}, report.Removed)
	require.Len(t, report.Failed, 1)
	require.Equal(t, "b(1).gpx", report.Failed[0].Name)
	require.ErrorIs(t, report.Failed[0], errDenied)
	require.Len(t, tel.Filter(telemetry.LevelWarning, report_cleaner_remove), 1)
	require.Equal(t, []string{"b(1).gpx"}, listDir(t, dir))
}

func TestCleanMissingDirectory(t *testing.T) {
	cleaner := NewCleaner(OSFileSystem{}, Options{}, telemetry.NewRecorder())
	_, err := cleaner.Clean(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, fs.ErrNotExist)
}
