package sharding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/io/blobs"
)

func TestShardIDShouldBeStableAndInRange(t *testing.T) {
	extractor := NewFixedSizeExtractor(16)

	payloads := []string{"one", "two", "three", "Hello, IO Storage!"}
	for _, p := range payloads {
		digest := blobs.DigestOf([]byte(p))

		first, err := extractor.ShardID(digest)
		require.NoError(t, err)
		second, err := extractor.ShardID(digest)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, extractor.ShardCount())
	}
}

func TestShardIDShouldRejectBadDigests(t *testing.T) {
	extractor := NewFixedSizeExtractor(16)

	_, err := extractor.ShardID("ab")
	assert.Error(t, err)

	_, err = extractor.ShardID("zzzz1234")
	assert.Error(t, err)
}

func TestSingleShardMapsEverythingToZero(t *testing.T) {
	extractor := NewFixedSizeExtractor(1)

	shard, err := extractor.ShardID(blobs.DigestOf([]byte("anything")))
	require.NoError(t, err)
	assert.Equal(t, 0, shard)
}

func TestNonPositiveShardCountCollapsesToOneShard(t *testing.T) {
	for _, count := range []int{0, -4} {
		extractor := NewFixedSizeExtractor(count)
		assert.Equal(t, 1, extractor.ShardCount())

		shard, err := extractor.ShardID(blobs.DigestOf([]byte("anything")))
		require.NoError(t, err)
		assert.Equal(t, 0, shard)
	}
}
