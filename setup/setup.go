package setup

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/zots0127/io/blobs"
	"github.com/zots0127/io/persistence"
	"github.com/zots0127/io/server"
	"github.com/zots0127/io/sharding"
)

const (
	EnvListen      = "listen"
	EnvDBURL       = "db_url"
	EnvStoragePath = "storage_path"
	EnvAPIKey      = "api_key"
	EnvMaxBlobSize = "max_blob_size"
	EnvShardCount  = "shard_count"
	EnvLogLevel    = "log_level"
	EnvZipkinURL   = "zipkin_url"
	EnvConfigFile  = "config_file"
)

var defaults = make(map[string]string)
var log = logrus.New().WithField("logger", "setup")

func canonKey(key string) string {
	return strings.Replace(strings.Replace(strings.ToLower(key), "-", "_", -1), ".", "_", -1)
}

func SetDefault(key string, value string) {
	defaults[canonKey(key)] = value
}

func GetString(key string) string {
	key = canonKey(key)
	return defaults[key]
}

func GetInteger(key string) int {
	if valueStr := GetString(key); len(valueStr) > 0 {
		val, err := strconv.Atoi(valueStr)
		if err != nil {
			panic(fmt.Sprintf("Value of key %s is not a number", key))
		}
		return val
	}
	panic(fmt.Sprintf("Missing required key %s", key))
}

func GetInt64(key string) int64 {
	if valueStr := GetString(key); len(valueStr) > 0 {
		val, err := strconv.ParseInt(valueStr, 10, 64)
		if err != nil {
			panic(fmt.Sprintf("Value of key %s is not a number", key))
		}
		return val
	}
	panic(fmt.Sprintf("Missing required key %s", key))
}

// fileConfig is the optional YAML config file shape. Values present in the
// file become defaults that environment variables still override.
type fileConfig struct {
	Storage struct {
		Path       string `yaml:"path"`
		Database   string `yaml:"database"`
		ShardCount int    `yaml:"shard_count"`
	} `yaml:"storage"`
	API struct {
		Listen      string `yaml:"listen"`
		Key         string `yaml:"key"`
		MaxBlobSize int64  `yaml:"max_blob_size"`
	} `yaml:"api"`
	ZipkinURL string `yaml:"zipkin_url"`
}

func loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var config fileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("invalid config file %s: %v", path, err)
	}
	if config.Storage.Path != "" {
		SetDefault(EnvStoragePath, config.Storage.Path)
	}
	if config.Storage.Database != "" {
		SetDefault(EnvDBURL, config.Storage.Database)
	}
	if config.Storage.ShardCount != 0 {
		SetDefault(EnvShardCount, strconv.Itoa(config.Storage.ShardCount))
	}
	if config.API.Listen != "" {
		SetDefault(EnvListen, config.API.Listen)
	}
	if config.API.Key != "" {
		SetDefault(EnvAPIKey, config.API.Key)
	}
	if config.API.MaxBlobSize != 0 {
		SetDefault(EnvMaxBlobSize, strconv.FormatInt(config.API.MaxBlobSize, 10))
	}
	if config.ZipkinURL != "" {
		SetDefault(EnvZipkinURL, config.ZipkinURL)
	}
	return nil
}

// InitFromEnv wires config, storage and the HTTP server together.
func InitFromEnv() (*server.Server, error) {

	cwd, err := os.Getwd()
	if err != nil {
		logrus.WithError(err).Fatalln("")
	}
	// Replace forward slashes in case this is windows, URL parser errors
	cwd = strings.Replace(cwd, "\\", "/", -1)
	SetDefault(EnvLogLevel, "info")
	SetDefault(EnvDBURL, fmt.Sprintf("sqlite3://%s/data/io.db", cwd))
	SetDefault(EnvStoragePath, fmt.Sprintf("%s/data/blobs", cwd))
	SetDefault(EnvListen, ":8080")
	SetDefault(EnvMaxBlobSize, strconv.Itoa(32*1024*1024))
	SetDefault(EnvShardCount, "256")

	if configFile := os.Getenv(strings.ToUpper(EnvConfigFile)); configFile != "" {
		if err := loadConfigFile(configFile); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("config.yaml"); err == nil {
		if err := loadConfigFile("config.yaml"); err != nil {
			return nil, err
		}
	}

	for _, v := range os.Environ() {
		vals := strings.Split(v, "=")
		defaults[canonKey(vals[0])] = strings.Join(vals[1:], "=")
	}

	logLevel, err := logrus.ParseLevel(GetString(EnvLogLevel))
	if err != nil {
		logrus.WithError(err).Fatalln("Invalid log level.")
	}
	logrus.SetLevel(logLevel)

	gin.SetMode(gin.ReleaseMode)
	if logLevel == logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	}

	apiKey := GetString(EnvAPIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("API key must be set via the %s environment variable or the config file", strings.ToUpper(EnvAPIKey))
	}

	store, err := InitStorageFromEnv()
	if err != nil {
		return nil, err
	}

	events := blobs.NewEventStream()

	srv, err := server.New(store, events, GetString(EnvListen), apiKey, GetString(EnvZipkinURL))
	if err != nil {
		return nil, err
	}

	return srv, nil
}

// InitStorageFromEnv builds the blob store selected by db_url and
// storage_path. A storage path keeps blob bytes on the filesystem with a SQL
// index; an empty storage path keeps the bytes in the database itself.
func InitStorageFromEnv() (blobs.Store, error) {
	dbURLString := GetString(EnvDBURL)
	dbURL, err := url.Parse(dbURLString)
	if err != nil {
		return nil, fmt.Errorf("invalid db URL in %s : %s", EnvDBURL, dbURLString)
	}

	maxBlobSize := GetInt64(EnvMaxBlobSize)

	if dbURL.Scheme == "inmem" {
		log.Info("Using in-memory blob store")
		return blobs.NewInMemBlobStore(maxBlobSize), nil
	}

	dbConn, err := persistence.CreateDBConnection(dbURL)
	if err != nil {
		return nil, err
	}

	storagePath := GetString(EnvStoragePath)
	if storagePath == "" {
		return persistence.NewSQLBlobStore(dbConn, maxBlobSize)
	}

	shards := sharding.NewFixedSizeExtractor(GetInteger(EnvShardCount))
	return persistence.NewFSBlobStore(dbConn, storagePath, shards, maxBlobSize)
}
