package db

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// TestBootstrap is the seeded account used by test databases. It hashes
// with the minimum bcrypt cost.
func TestBootstrap() Bootstrap {
	b := DefaultBootstrap()
	b.BcryptCost = bcrypt.MinCost
	return b
}

// NewTestDB creates a migrated in-memory database for testing.
// The database is closed when the test completes.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    d := db.NewTestDB(t)
//	    // use d...
//	}
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	d := NewTestDBUnmigrated(t)
	if _, err := d.Migrate(context.Background(), TestBootstrap()); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return d
}

// NewTestDBUnmigrated creates an empty in-memory database for testing.
func NewTestDBUnmigrated(t testing.TB) *DB {
	t.Helper()

	d, err := OpenInMemory(context.Background(), DriverModernc, DiscardLogger())
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
