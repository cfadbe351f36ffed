package blobs

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

type inMemBlobStore struct {
	mu      sync.Mutex
	blobs   map[Digest][]byte
	entries []*Entry
	maxSize int64
}

// NewInMemBlobStore creates an in-mem blob store - use this _only_ for testing - it will eat ur RAMz
func NewInMemBlobStore(maxSize int64) Store {
	return &inMemBlobStore{blobs: make(map[Digest][]byte), maxSize: maxSize}
}

// Store implements Store
func (s *inMemBlobStore) Store(ctx context.Context, content io.Reader) (*Entry, error) {
	buf := bytes.Buffer{}
	if _, err := buf.ReadFrom(LimitReader(content, s.maxSize)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	if len(data) == 0 {
		return nil, ErrEmptyBlob
	}
	digest := DigestOf(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[digest]; !ok {
		s.blobs[digest] = data
		s.entries = append(s.entries, &Entry{Digest: digest, Length: uint64(len(data)), CreatedAt: time.Now()})
	}
	return s.entry(digest), nil
}

// Read implements Store
func (s *inMemBlobStore) Read(ctx context.Context, digest Digest) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[digest]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(blob)), nil
}

// Exists implements Store
func (s *inMemBlobStore) Exists(ctx context.Context, digest Digest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[digest]
	return ok, nil
}

// Delete implements Store
func (s *inMemBlobStore) Delete(ctx context.Context, digest Digest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[digest]; !ok {
		return false, nil
	}
	delete(s.blobs, digest)
	for i, e := range s.entries {
		if e.Digest == digest {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			break
		}
	}
	return true, nil
}

// List implements Store
func (s *inMemBlobStore) List(ctx context.Context, offset int, limit int) ([]*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if offset >= len(s.entries) {
		return nil, nil
	}
	end := len(s.entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*Entry, end-offset)
	copy(out, s.entries[offset:end])
	return out, nil
}

func (s *inMemBlobStore) Close() error {
	return nil
}

func (s *inMemBlobStore) entry(digest Digest) *Entry {
	for _, e := range s.entries {
		if e.Digest == digest {
			return e
		}
	}
	return nil
}
