package testutil

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

type SqliteParams struct {
	// if unspecified, no schema is applied
	Schema string
	// if unspecified, a fresh file in the test's temp dir is used
	Path string
}

// SetupSqlite opens a sqlite database that is closed when the test ends.
func SetupSqlite(t testing.TB, params SqliteParams) *sql.DB {
	t.Helper()

	dbpath := params.Path
	if dbpath == "" {
		dbpath = filepath.Join(t.TempDir(), "test.db")
	}
	sqlite, err := sql.Open("sqlite", dbpath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		sqlite.Close()
	})

	if params.Schema != "" {
		_, err = sqlite.Exec(params.Schema)
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			t.Fatal(err)
		}
	}
	return sqlite
}
