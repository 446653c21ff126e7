// Package teststore provides test object stores. It lives apart from
// testutil so that objectstore's own tests can use testutil without an
// import cycle.
package teststore

import (
	"crepo/internal/objectstore"
	"crepo/internal/repo"
)

// NewTestStore creates an in-memory object store for testing.
func NewTestStore() repo.ObjectStore {
	return objectstore.NewMemoryStore()
}
