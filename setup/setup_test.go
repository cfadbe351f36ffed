package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonKeyNormalisesSeparatorsAndCase(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"API_KEY", "api_key"},
		{"api-key", "api_key"},
		{"api.key", "api_key"},
		{"Max-Blob.Size", "max_blob_size"},
	}

	for _, c := range cases {
		assert.Equal(t, c.out, canonKey(c.in), "case %s", c.in)
	}
}

func TestDefaultsRoundTrip(t *testing.T) {
	SetDefault("some.test-key", "value")
	assert.Equal(t, "value", GetString("SOME_TEST_KEY"))
}

func TestConfigFileValuesBecomeDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
storage:
  path: /var/lib/io/blobs
  database: sqlite3:///var/lib/io/io.db
  shard_count: 64
api:
  listen: ":9090"
  key: file-key
  max_blob_size: 1048576
zipkin_url: http://zipkin:9411/api/v2/spans
`), 0644))

	require.NoError(t, loadConfigFile(configPath))

	assert.Equal(t, "/var/lib/io/blobs", GetString(EnvStoragePath))
	assert.Equal(t, "sqlite3:///var/lib/io/io.db", GetString(EnvDBURL))
	assert.Equal(t, 64, GetInteger(EnvShardCount))
	assert.Equal(t, ":9090", GetString(EnvListen))
	assert.Equal(t, "file-key", GetString(EnvAPIKey))
	assert.Equal(t, int64(1048576), GetInt64(EnvMaxBlobSize))
	assert.Equal(t, "http://zipkin:9411/api/v2/spans", GetString(EnvZipkinURL))
}

func TestConfigFileRejectsBadYaml(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("storage: [not: a map"), 0644))

	assert.Error(t, loadConfigFile(configPath))
}

func TestMissingConfigFileIsAnError(t *testing.T) {
	assert.Error(t, loadConfigFile(filepath.Join(t.TempDir(), "nope.yaml")))
}
