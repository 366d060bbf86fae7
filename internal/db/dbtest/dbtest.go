// Package dbtest opens an in-memory SQLite database carrying the production
// schema, for tests of code that talks to the repository.
package dbtest

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/zawnaing-2024/vmaster/internal/db"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open returns a fresh schema-loaded database closed at test cleanup.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()

	conn, err := sqlx.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// A single connection keeps the in-memory database alive and serialises writers.
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	if err := ApplySchema(conn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return conn
}

// Repository wraps Open in a repository.
func Repository(t testing.TB) *db.Repository {
	return db.NewRepository(Open(t))
}

// ApplySchema executes every up migration in version order.
func ApplySchema(conn *sqlx.DB) error {
	files, err := fs.Glob(db.Migrations, "migrations/*.up.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, f := range files {
		body, err := fs.ReadFile(db.Migrations, f)
		if err != nil {
			return err
		}
		if err := Exec(conn, string(body)); err != nil {
			return err
		}
	}
	return nil
}

// Exec runs a multi-statement script one statement at a time.
func Exec(conn *sqlx.DB, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := conn.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
