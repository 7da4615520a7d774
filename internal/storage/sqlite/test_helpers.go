package sqlite

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
)

// NewSQLiteTest returns an in-memory Store that is closed with the test.
func NewSQLiteTest(t *testing.T) *Store {
	t.Helper()
	st, err := NewInMemory(WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// NewSQLiteFileTest returns a WAL-mode Store backed by a file under t.TempDir.
func NewSQLiteFileTest(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "tasks.db"), WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
