package identity

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestSQLite(t *testing.T) Store {
	t.Helper()

	s, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "identities.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_Contract(t *testing.T) {
	t.Parallel()
	runStoreContract(t, openTestSQLite)
}

func TestSQLiteStore_ReopenKeepsRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "identities.db")
	ctx := context.Background()

	s, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	created := mustCreate(t, s, "gina", "gina@example.com", nil)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()

	got, err := s.FindBy(ctx, FieldUsername, "GINA")
	if err != nil {
		t.Fatalf("FindBy after reopen: %v", err)
	}
	if got.ID != created.ID || !got.CreatedAt.Equal(created.CreatedAt) {
		t.Fatalf("row changed across reopen: %+v vs %+v", got, created)
	}
}

func TestOpenSQLiteStore_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQLiteStore(context.Background(), "  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
