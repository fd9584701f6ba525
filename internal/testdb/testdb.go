// Package testdb provides a shared test database helper backed by a
// temporary SQLite file.
package testdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/helixml/branchscope/infrastructure/persistence"
	"github.com/helixml/branchscope/internal/database"
)

// New creates a SQLite database with all migrations applied.
// The database is automatically closed when the test finishes.
func New(t *testing.T) database.Database {
	t.Helper()
	db := NewPlain(t)
	if err := persistence.AutoMigrate(db); err != nil {
		t.Fatalf("testdb.New: auto migrate: %v", err)
	}
	return db
}

// NewPlain creates a SQLite database without running migrations.
func NewPlain(t *testing.T) database.Database {
	t.Helper()
	url := "sqlite:///" + filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDatabase(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("testdb.NewPlain: open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
