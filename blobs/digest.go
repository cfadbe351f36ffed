package blobs

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"regexp"
)

// Digest is the lowercase hex SHA-1 of a blob's content. The wire contract
// fixes SHA-1, so it is preserved here rather than upgraded to a stronger
// hash.
type Digest string

// DigestLength is the length of an encoded digest in hex characters.
const DigestLength = sha1.Size * 2

var digestRegex = regexp.MustCompile("^[a-f0-9]{40}$")

// ParseDigest validates an externally supplied digest string.
func ParseDigest(s string) (Digest, error) {
	if !digestRegex.MatchString(s) {
		return "", fmt.Errorf("invalid digest %q: want %d lowercase hex characters", s, DigestLength)
	}
	return Digest(s), nil
}

// DigestOf computes the digest of an in-memory payload.
func DigestOf(data []byte) Digest {
	sum := sha1.Sum(data)
	return Digest(hex.EncodeToString(sum[:]))
}

func (d Digest) String() string {
	return string(d)
}

// Hasher accumulates content and yields its digest, for implementations that
// hash while streaming.
type Hasher struct {
	h hash.Hash
	n uint64
}

// NewHasher creates an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha1.New()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	n, err := h.h.Write(p)
	h.n += uint64(n)
	return n, err
}

// Digest returns the digest of everything written so far.
func (h *Hasher) Digest() Digest {
	return Digest(hex.EncodeToString(h.h.Sum(nil)))
}

// Length returns the number of bytes written so far.
func (h *Hasher) Length() uint64 {
	return h.n
}

// LimitReader wraps r so that reading more than max bytes fails with
// ErrBlobTooLarge instead of silently truncating. max <= 0 means unlimited.
func LimitReader(r io.Reader, max int64) io.Reader {
	if max <= 0 {
		return r
	}
	return &limitReader{r: r, remaining: max}
}

type limitReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, ErrBlobTooLarge
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrBlobTooLarge
	}
	return n, err
}

// VerifyingReader re-hashes content as it is read and fails the final read
// with ErrBlobCorrupted if the stream does not match want. The check fires on
// EOF, so callers that read to completion always see it.
func VerifyingReader(r io.ReadCloser, want Digest) io.ReadCloser {
	return &verifyingReader{r: r, want: want, h: NewHasher()}
}

type verifyingReader struct {
	r    io.ReadCloser
	h    *Hasher
	want Digest
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	if n > 0 {
		v.h.Write(p[:n])
	}
	if err == io.EOF && v.h.Digest() != v.want {
		return n, ErrBlobCorrupted
	}
	return n, err
}

func (v *verifyingReader) Close() error {
	return v.r.Close()
}
