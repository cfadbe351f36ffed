package blobs

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldComputeKnownDigest(t *testing.T) {
	digest := DigestOf([]byte("Hello, IO Storage!"))

	assert.Equal(t, Digest("9bb4dced33ebd2ab9b829686df3ad5923b08846b"), digest)
	assert.Len(t, string(digest), DigestLength)
}

func TestShouldParseValidDigest(t *testing.T) {
	digest, err := ParseDigest("9bb4dced33ebd2ab9b829686df3ad5923b08846b")

	assert.NoError(t, err)
	assert.Equal(t, Digest("9bb4dced33ebd2ab9b829686df3ad5923b08846b"), digest)
}

func TestShouldRejectMalformedDigests(t *testing.T) {
	cases := []string{
		"",
		"9bb4",
		"9BB4DCED33EBD2AB9B829686DF3AD5923B08846B",
		"9bb4dced33ebd2ab9b829686df3ad5923b08846b1",
		"zbb4dced33ebd2ab9b829686df3ad5923b08846b",
	}

	for _, c := range cases {
		_, err := ParseDigest(c)
		assert.Error(t, err, "digest %q should not parse", c)
	}
}

func TestHasherShouldMatchDigestOf(t *testing.T) {
	h := NewHasher()
	_, err := io.Copy(h, strings.NewReader("Hello, IO Storage!"))
	require.NoError(t, err)

	assert.Equal(t, DigestOf([]byte("Hello, IO Storage!")), h.Digest())
	assert.Equal(t, uint64(18), h.Length())
}

func TestLimitReaderShouldPassSmallPayloads(t *testing.T) {
	data, err := io.ReadAll(LimitReader(strings.NewReader("small"), 10))

	assert.NoError(t, err)
	assert.Equal(t, []byte("small"), data)
}

func TestLimitReaderShouldFailOversizedPayloads(t *testing.T) {
	_, err := io.ReadAll(LimitReader(bytes.NewReader(make([]byte, 100)), 10))

	assert.Equal(t, ErrBlobTooLarge, err)
}

func TestVerifyingReaderShouldPassIntactContent(t *testing.T) {
	data := []byte("Some data")
	r := VerifyingReader(io.NopCloser(bytes.NewReader(data)), DigestOf(data))

	out, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, data, out)
	assert.NoError(t, r.Close())
}

func TestVerifyingReaderShouldDetectTamperedContent(t *testing.T) {
	data := []byte("Some data")
	r := VerifyingReader(io.NopCloser(bytes.NewReader([]byte("SOME DATA"))), DigestOf(data))

	_, err := io.ReadAll(r)
	assert.ErrorIs(t, err, ErrBlobCorrupted)
}
