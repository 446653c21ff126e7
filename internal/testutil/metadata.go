package testutil

import (
	"testing"

	"crepo/internal/metadata"
	"crepo/internal/repo"
)

// NewTestMetadata creates an in-memory SQLite metadata store with the
// schema applied. The store is automatically closed when the test completes.
func NewTestMetadata(t *testing.T) repo.MetadataStore {
	t.Helper()

	store, err := metadata.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open metadata store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
