package sharding

import (
	"encoding/hex"
	"fmt"

	"github.com/zots0127/io/blobs"
)

// ShardExtractor assigns each digest to one of a fixed set of shards. The
// filesystem store uses it to spread entries across directories so no single
// directory grows unbounded.
type ShardExtractor interface {
	ShardID(digest blobs.Digest) (int, error)
	ShardCount() int
}

type moduloShardExtractor struct {
	shardCount int
}

// NewFixedSizeExtractor creates a ShardExtractor with a fixed shard count.
// A count below one collapses to a single shard.
func NewFixedSizeExtractor(shardCount int) ShardExtractor {
	if shardCount < 1 {
		shardCount = 1
	}
	return &moduloShardExtractor{shardCount: shardCount}
}

func (m *moduloShardExtractor) ShardID(digest blobs.Digest) (int, error) {
	if len(digest) < 4 {
		return 0, fmt.Errorf("digest %q too short to shard", digest)
	}
	prefix, err := hex.DecodeString(string(digest[:4]))
	if err != nil {
		return 0, fmt.Errorf("digest %q is not hex: %v", digest, err)
	}
	hilo := uint64(prefix[0])<<8 | uint64(prefix[1])
	shard := hilo % uint64(m.shardCount)
	return int(shard), nil
}

func (m *moduloShardExtractor) ShardCount() int {
	return m.shardCount
}
