package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrKeyConflict is returned by Put when key already holds different bytes.
	ErrKeyConflict = errors.New("blob key already holds different content")
	// ErrNotFound is returned by Open when key does not exist.
	ErrNotFound = errors.New("blob not found")
)

// BlobStore is the byte-storage abstraction used by the intake pipeline.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Exists(ctx context.Context, key string) (bool, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URLFor(key string) string
}

// BlobInfo describes one stored object.
type BlobInfo struct {
	Key        string
	SizeBytes  int64
	ModifiedAt time.Time
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}
