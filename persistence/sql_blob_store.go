package persistence

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"

	"github.com/zots0127/io/blobs"
)

var log = logrus.WithField("logger", "persistence")

type sqlBlobStore struct {
	db      *sqlx.DB
	maxSize int64
}

// NewSQLBlobStore creates a blob store that keeps blob bytes in the blobs
// table, keyed by content digest. maxSize <= 0 disables the size cap.
func NewSQLBlobStore(db *sqlx.DB, maxSize int64) (blobs.Store, error) {
	log.Info("Creating SQL blob store")
	return &sqlBlobStore{db: db, maxSize: maxSize}, nil
}

func (s *sqlBlobStore) Store(ctx context.Context, content io.Reader) (*blobs.Entry, error) {
	buf := bytes.Buffer{}
	if _, err := buf.ReadFrom(blobs.LimitReader(content, s.maxSize)); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := buf.Bytes()
	if len(data) == 0 {
		return nil, blobs.ErrEmptyBlob
	}
	digest := blobs.DigestOf(data)

	span := opentracing.StartSpan("sql_store_blob")
	defer span.Finish()

	_, err := s.db.ExecContext(ctx,
		insertIgnore(s.db)+" INTO blobs(digest, blob_length, created_at, blob_data) VALUES (?, ?, ?, ?)",
		string(digest), len(data), time.Now().UTC(), data)
	if err != nil {
		log.WithField("digest", digest).WithField("blob_length", len(data)).WithError(err).Error("Error inserting blob into db")
		return nil, err
	}

	return s.entry(ctx, digest)
}

func (s *sqlBlobStore) Read(ctx context.Context, digest blobs.Digest) (io.ReadCloser, error) {
	span := opentracing.StartSpan("sql_read_blob")
	defer span.Finish()

	row := s.db.QueryRowxContext(ctx, "SELECT blob_data FROM blobs WHERE digest = ?", string(digest))

	var blobData []byte
	err := row.Scan(&blobData)
	if err == sql.ErrNoRows {
		return nil, blobs.ErrBlobNotFound
	}
	if err != nil {
		log.WithField("digest", digest).WithError(err).Error("Error reading blob from db")
		return nil, err
	}
	if blobs.DigestOf(blobData) != digest {
		log.WithField("digest", digest).Error("Stored blob failed digest verification")
		return nil, blobs.ErrBlobCorrupted
	}
	return io.NopCloser(bytes.NewReader(blobData)), nil
}

func (s *sqlBlobStore) Exists(ctx context.Context, digest blobs.Digest) (bool, error) {
	span := opentracing.StartSpan("sql_exists_blob")
	defer span.Finish()

	var exists bool
	err := s.db.QueryRowxContext(ctx, "SELECT EXISTS(SELECT 1 FROM blobs WHERE digest = ?)", string(digest)).Scan(&exists)
	if err != nil {
		log.WithField("digest", digest).WithError(err).Error("Error querying blob existence")
		return false, err
	}
	return exists, nil
}

func (s *sqlBlobStore) Delete(ctx context.Context, digest blobs.Digest) (bool, error) {
	span := opentracing.StartSpan("sql_delete_blob")
	defer span.Finish()

	res, err := s.db.ExecContext(ctx, "DELETE FROM blobs WHERE digest = ?", string(digest))
	if err != nil {
		log.WithField("digest", digest).WithError(err).Error("Error deleting blob from db")
		return false, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

func (s *sqlBlobStore) List(ctx context.Context, offset int, limit int) ([]*blobs.Entry, error) {
	span := opentracing.StartSpan("sql_list_blobs")
	defer span.Finish()

	return listEntries(ctx, s.db, "blobs", offset, limit)
}

func (s *sqlBlobStore) Close() error {
	return s.db.Close()
}

func (s *sqlBlobStore) entry(ctx context.Context, digest blobs.Digest) (*blobs.Entry, error) {
	row := s.db.QueryRowxContext(ctx, "SELECT blob_length, created_at FROM blobs WHERE digest = ?", string(digest))
	var length uint64
	var createdAt time.Time
	if err := row.Scan(&length, &createdAt); err != nil {
		log.WithField("digest", digest).WithError(err).Error("Error reading blob entry from db")
		return nil, err
	}
	return &blobs.Entry{Digest: digest, Length: length, CreatedAt: createdAt}, nil
}

func listEntries(ctx context.Context, db *sqlx.DB, table string, offset int, limit int) ([]*blobs.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryxContext(ctx,
		"SELECT digest, blob_length, created_at FROM "+table+" ORDER BY created_at, digest LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		log.WithError(err).Error("Error listing blobs")
		return nil, err
	}
	defer rows.Close()

	var entries []*blobs.Entry
	for rows.Next() {
		var digest string
		var length uint64
		var createdAt time.Time
		if err := rows.Scan(&digest, &length, &createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, &blobs.Entry{Digest: blobs.Digest(digest), Length: length, CreatedAt: createdAt})
	}
	return entries, rows.Err()
}
