package testutil

import (
	"testing"

	"lapse-go/internal/database"
	"lapse-go/internal/lapse"
	"lapse-go/internal/store"
)

// NewTestDatabase creates a new in-memory SQLite database with schema applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) lapse.Database {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// NewTestStore creates a capture store over a fresh in-memory database.
func NewTestStore(t *testing.T, clock lapse.Clock) *store.CaptureStore {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	s := store.New(db, clock)
	t.Cleanup(func() {
		s.Close()
	})
	return s
}
