// Package blob stores compiled artifact payloads keyed by artifact id.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no payload is stored under a key.
var ErrNotFound = errors.New("blob not found")

// Store is a keyed binary store. Get must return exactly the bytes given to Put.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
