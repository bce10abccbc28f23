// Package blob stores the raw binary payload of each image revision.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no payload exists for the key.
var ErrNotFound = errors.New("blob not found")

// Store is a content-addressable-by-name binary store.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
