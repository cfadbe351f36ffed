package blobs

import (
	"context"
	"errors"
	"io"
	"time"
)

// Entry describes one stored blob. Identity is the content digest, never a
// caller-supplied name.
type Entry struct {
	Digest    Digest    `json:"sha1"`
	Length    uint64    `json:"length"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

var (
	// ErrBlobNotFound - no entry exists for the requested digest
	ErrBlobNotFound = errors.New("blob not found")
	// ErrBlobTooLarge - blob exceeds the configured maximum size
	ErrBlobTooLarge = errors.New("blob exceeds maximum size")
	// ErrBlobCorrupted - stored bytes no longer hash to their digest
	ErrBlobCorrupted = errors.New("blob content does not match digest")
	// ErrEmptyBlob - store was called with no content
	ErrEmptyBlob = errors.New("blob is empty")
)

// Store is an abstraction for content-addressed blob persistence.
// Blobs are pure byte payloads with no semantics; the digest of the content is
// the only key. Storing the same content twice is a no-op that yields the same
// entry, and implementations must never expose a partially written blob to
// readers.
type Store interface {
	// Store reads content to completion, persists it under its digest and
	// returns the entry. An entry that already exists is left untouched.
	Store(ctx context.Context, content io.Reader) (*Entry, error)

	// Read returns a reader over the exact bytes stored under digest, or
	// ErrBlobNotFound.
	Read(ctx context.Context, digest Digest) (io.ReadCloser, error)

	// Exists reports whether an entry for digest is currently present.
	Exists(ctx context.Context, digest Digest) (bool, error)

	// Delete removes the entry for digest and reports whether an entry was
	// actually removed. Deleting an absent digest is not an error.
	Delete(ctx context.Context, digest Digest) (bool, error)

	// List returns stored entries in insertion order, for paging UIs.
	List(ctx context.Context, offset int, limit int) ([]*Entry, error)

	// Close releases any resources held by the store.
	Close() error
}
