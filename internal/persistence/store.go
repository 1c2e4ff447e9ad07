// Package persistence holds the narrow storage interfaces shared across the
// relational+vector store abstraction (§6.1) that the rest of Thoth depends
// on without pulling in a concrete driver.
package persistence

import "context"

// KV is a minimal namespaced key-value capability. No package in this module
// implements or consumes it; the tracker ledger and the coordination block
// are kept in local files.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
