package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/opentracing/opentracing-go"

	"github.com/zots0127/io/blobs"
	"github.com/zots0127/io/sharding"
)

// fsBlobStore keeps blob bytes as plain files under a sharded directory tree
// and tracks entries in the blob_index table. Content is streamed to a
// temporary file while being hashed, then published with an atomic rename, so
// readers never observe a partially written blob and concurrent stores of the
// same content cannot corrupt each other.
type fsBlobStore struct {
	db      *sqlx.DB
	root    string
	shards  sharding.ShardExtractor
	maxSize int64

	// Striped per-digest locks. Publish (rename then index insert) and delete
	// (index delete then file remove) each touch the file and the index as two
	// steps; interleaving them for the same digest could leave an index row
	// pointing at a removed file.
	locks [64]sync.Mutex
}

func (s *fsBlobStore) lock(digest blobs.Digest) *sync.Mutex {
	h := uint32(0)
	for i := 0; i < len(digest); i++ {
		h = h*31 + uint32(digest[i])
	}
	return &s.locks[h%uint32(len(s.locks))]
}

// NewFSBlobStore creates a filesystem-backed blob store rooted at root.
func NewFSBlobStore(db *sqlx.DB, root string, shards sharding.ShardExtractor, maxSize int64) (blobs.Store, error) {
	if root == "" {
		return nil, fmt.Errorf("blob store root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "tmp"), 0755); err != nil {
		return nil, err
	}
	log.WithField("root", abs).Info("Creating filesystem blob store")
	return &fsBlobStore{db: db, root: abs, shards: shards, maxSize: maxSize}, nil
}

func (s *fsBlobStore) Store(ctx context.Context, content io.Reader) (*blobs.Entry, error) {
	span := opentracing.StartSpan("fs_store_blob")
	defer span.Finish()

	uploadID, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	tmpPath := filepath.Join(s.root, "tmp", "upload-"+uploadID.String())
	tmp, err := os.Create(tmpPath)
	if err != nil {
		log.WithError(err).Error("Error creating upload temp file")
		return nil, err
	}
	defer func() {
		tmp.Close()
		// no-op once the rename has happened
		os.Remove(tmpPath)
	}()

	hasher := blobs.NewHasher()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), blobs.LimitReader(content, s.maxSize)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if hasher.Length() == 0 {
		return nil, blobs.ErrEmptyBlob
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}

	digest := hasher.Digest()
	target, err := s.blobPath(digest)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, err
	}

	mu := s.lock(digest)
	mu.Lock()
	defer mu.Unlock()

	// Rename before indexing: identical content renamed twice lands on the
	// same bytes, so racing stores are harmless, and the index never points
	// at a file that is not fully published.
	if err := os.Rename(tmpPath, target); err != nil {
		log.WithField("digest", digest).WithError(err).Error("Error publishing blob file")
		return nil, err
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		insertIgnore(s.db)+" INTO blob_index(digest, blob_length, created_at) VALUES (?, ?, ?)",
		string(digest), hasher.Length(), now)
	if err != nil {
		log.WithField("digest", digest).WithError(err).Error("Error indexing blob")
		return nil, err
	}

	return s.entry(ctx, digest)
}

func (s *fsBlobStore) Read(ctx context.Context, digest blobs.Digest) (io.ReadCloser, error) {
	span := opentracing.StartSpan("fs_read_blob")
	defer span.Finish()

	present, err := s.Exists(ctx, digest)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, blobs.ErrBlobNotFound
	}

	path, err := s.blobPath(digest)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, blobs.ErrBlobNotFound
	}
	if err != nil {
		log.WithField("digest", digest).WithError(err).Error("Error opening blob file")
		return nil, err
	}
	return blobs.VerifyingReader(f, digest), nil
}

func (s *fsBlobStore) Exists(ctx context.Context, digest blobs.Digest) (bool, error) {
	var exists bool
	err := s.db.QueryRowxContext(ctx, "SELECT EXISTS(SELECT 1 FROM blob_index WHERE digest = ?)", string(digest)).Scan(&exists)
	if err != nil {
		log.WithField("digest", digest).WithError(err).Error("Error querying blob index")
		return false, err
	}
	return exists, nil
}

func (s *fsBlobStore) Delete(ctx context.Context, digest blobs.Digest) (bool, error) {
	span := opentracing.StartSpan("fs_delete_blob")
	defer span.Finish()

	mu := s.lock(digest)
	mu.Lock()
	defer mu.Unlock()

	// Index row goes first so Exists flips to false before the file does.
	res, err := s.db.ExecContext(ctx, "DELETE FROM blob_index WHERE digest = ?", string(digest))
	if err != nil {
		log.WithField("digest", digest).WithError(err).Error("Error removing blob from index")
		return false, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	path, err := s.blobPath(digest)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.WithField("digest", digest).WithError(err).Error("Error removing blob file")
		return false, err
	}
	return removed > 0, nil
}

func (s *fsBlobStore) List(ctx context.Context, offset int, limit int) ([]*blobs.Entry, error) {
	span := opentracing.StartSpan("fs_list_blobs")
	defer span.Finish()

	return listEntries(ctx, s.db, "blob_index", offset, limit)
}

func (s *fsBlobStore) Close() error {
	return s.db.Close()
}

func (s *fsBlobStore) entry(ctx context.Context, digest blobs.Digest) (*blobs.Entry, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT blob_length, created_at FROM blob_index WHERE digest = ?", string(digest))
	var length uint64
	var createdAt time.Time
	err := row.Scan(&length, &createdAt)
	if err == sql.ErrNoRows {
		return nil, blobs.ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &blobs.Entry{Digest: digest, Length: length, CreatedAt: createdAt}, nil
}

func (s *fsBlobStore) blobPath(digest blobs.Digest) (string, error) {
	shard, err := s.shards.ShardID(digest)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, fmt.Sprintf("%03d", shard), string(digest)), nil
}
