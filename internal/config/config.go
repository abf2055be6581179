// Package config loads process configuration for the near command.
//
// Values come from, in increasing precedence: built-in defaults, a YAML file,
// a .env file in the working directory and NEAR_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/codec"
)

// Storage kinds.
const (
	StorageMemory   = "memory"
	StorageBolt     = "bolt"
	StorageBadger   = "badger"
	StorageSQLite   = "sqlite"
	StorageBlob     = "blob"
	StorageDynamoDB = "dynamodb"
)

// Blob store kinds.
const (
	BlobLocal  = "local"
	BlobMemory = "memory"
	BlobS3     = "s3"
	BlobMinIO  = "minio"
)

// Config is the top-level configuration.
type Config struct {
	Dimension int           `yaml:"dimension"`
	Metric    string        `yaml:"metric"`
	Index     string        `yaml:"index"`
	HNSW      HNSWConfig    `yaml:"hnsw"`
	Storage   StorageConfig `yaml:"storage"`
	Log       LogConfig     `yaml:"log"`
}

// HNSWConfig tunes the hnsw index. Zero values keep the index defaults.
type HNSWConfig struct {
	M              int     `yaml:"m"`
	EfConstruction int     `yaml:"ef_construction"`
	EfSearch       int     `yaml:"ef_search"`
	Seed           int64   `yaml:"seed"`
	RecallTarget   float64 `yaml:"recall_target"`
}

// StorageConfig selects and configures the record backend.
type StorageConfig struct {
	Kind string `yaml:"kind"`
	// Path is the bolt file, badger directory or sqlite DSN.
	Path     string         `yaml:"path"`
	Codec    string         `yaml:"codec"`
	InMemory bool           `yaml:"in_memory"`
	Blob     BlobConfig     `yaml:"blob"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// BlobConfig configures the blob backend and its object store.
type BlobConfig struct {
	Store      string  `yaml:"store"`
	Root       string  `yaml:"root"`
	Bucket     string  `yaml:"bucket"`
	Prefix     string  `yaml:"prefix"`
	Region     string  `yaml:"region"`
	Endpoint   string  `yaml:"endpoint"`
	AccessKey  string  `yaml:"access_key"`
	SecretKey  string  `yaml:"secret_key"`
	Secure     bool    `yaml:"secure"`
	RateLimit  float64 `yaml:"rate_limit"`
	Burst      int     `yaml:"burst"`
	CacheBytes int64   `yaml:"cache_bytes"`
}

// DynamoDBConfig configures the DynamoDB backend.
type DynamoDBConfig struct {
	Table          string `yaml:"table"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	ConsistentRead bool   `yaml:"consistent_read"`
	CreateTable    bool   `yaml:"create_table"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration: a 128-dimensional euclidean
// hnsw index over volatile memory storage.
func Default() Config {
	return Config{
		Dimension: 128,
		Metric:    "euclidean",
		Index:     "hnsw",
		Storage: StorageConfig{
			Kind:  StorageMemory,
			Codec: codec.Default.Name(),
			Blob:  BlobConfig{Store: BlobLocal, Burst: 1},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (optional), then .env and NEAR_* overrides, and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		defer f.Close()
		if err := Decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode merges YAML from r into cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Parse is Decode over a byte slice.
func Parse(data []byte, cfg *Config) error {
	return Decode(bytes.NewReader(data), cfg)
}

// ApplyEnv overrides cfg from NEAR_* variables returned by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"NEAR_METRIC":            &cfg.Metric,
		"NEAR_INDEX":             &cfg.Index,
		"NEAR_STORAGE_KIND":      &cfg.Storage.Kind,
		"NEAR_STORAGE_PATH":      &cfg.Storage.Path,
		"NEAR_STORAGE_CODEC":     &cfg.Storage.Codec,
		"NEAR_BLOB_STORE":        &cfg.Storage.Blob.Store,
		"NEAR_BLOB_ROOT":         &cfg.Storage.Blob.Root,
		"NEAR_BLOB_BUCKET":       &cfg.Storage.Blob.Bucket,
		"NEAR_BLOB_PREFIX":       &cfg.Storage.Blob.Prefix,
		"NEAR_BLOB_REGION":       &cfg.Storage.Blob.Region,
		"NEAR_BLOB_ENDPOINT":     &cfg.Storage.Blob.Endpoint,
		"NEAR_BLOB_ACCESS_KEY":   &cfg.Storage.Blob.AccessKey,
		"NEAR_BLOB_SECRET_KEY":   &cfg.Storage.Blob.SecretKey,
		"NEAR_DYNAMODB_TABLE":    &cfg.Storage.DynamoDB.Table,
		"NEAR_DYNAMODB_REGION":   &cfg.Storage.DynamoDB.Region,
		"NEAR_DYNAMODB_ENDPOINT": &cfg.Storage.DynamoDB.Endpoint,
		"NEAR_LOG_LEVEL":         &cfg.Log.Level,
		"NEAR_LOG_FORMAT":        &cfg.Log.Format,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"NEAR_DIMENSION":            &cfg.Dimension,
		"NEAR_HNSW_M":               &cfg.HNSW.M,
		"NEAR_HNSW_EF_CONSTRUCTION": &cfg.HNSW.EfConstruction,
		"NEAR_HNSW_EF_SEARCH":       &cfg.HNSW.EfSearch,
	}
	for key, dst := range ints {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
	}

	if v, ok := lookup("NEAR_HNSW_SEED"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("config: NEAR_HNSW_SEED: %w", err)
		}
		cfg.HNSW.Seed = n
	}
	if v, ok := lookup("NEAR_BLOB_RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("config: NEAR_BLOB_RATE_LIMIT: %w", err)
		}
		cfg.Storage.Blob.RateLimit = f
	}
	if v, ok := lookup("NEAR_BADGER_IN_MEMORY"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: NEAR_BADGER_IN_MEMORY: %w", err)
		}
		cfg.Storage.InMemory = b
	}
	return nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if _, err := c.Space(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Index {
	case "flat", "hnsw":
	default:
		return fmt.Errorf("config: %w: %q", near.ErrUnknownIndex, c.Index)
	}
	if _, ok := codec.ByName(c.Storage.Codec); !ok {
		return fmt.Errorf("config: unknown codec %q", c.Storage.Codec)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}

	s := c.Storage
	switch s.Kind {
	case StorageMemory:
	case StorageBolt, StorageSQLite:
		if s.Path == "" {
			return fmt.Errorf("config: storage %s requires path", s.Kind)
		}
	case StorageBadger:
		if s.Path == "" && !s.InMemory {
			return fmt.Errorf("config: storage badger requires path or in_memory")
		}
	case StorageBlob:
		switch s.Blob.Store {
		case BlobMemory:
		case BlobLocal:
			if s.Blob.Root == "" {
				return errors.New("config: blob store local requires root")
			}
		case BlobS3, BlobMinIO:
			if s.Blob.Bucket == "" {
				return fmt.Errorf("config: blob store %s requires bucket", s.Blob.Store)
			}
			if s.Blob.Store == BlobMinIO && s.Blob.Endpoint == "" {
				return errors.New("config: blob store minio requires endpoint")
			}
		default:
			return fmt.Errorf("config: unknown blob store %q", s.Blob.Store)
		}
		if s.Blob.RateLimit < 0 {
			return errors.New("config: blob rate_limit must not be negative")
		}
	case StorageDynamoDB:
		if s.DynamoDB.Table == "" {
			return errors.New("config: storage dynamodb requires table")
		}
	default:
		return fmt.Errorf("config: unknown storage kind %q", s.Kind)
	}
	return nil
}

// Space returns the configured vector space.
func (c Config) Space() (near.Space, error) {
	m, err := near.ParseMetric(c.Metric)
	if err != nil {
		return near.Space{}, err
	}
	return near.NewSpace(c.Dimension, m)
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return lvl, nil
}

// Logger builds the process logger. verbose forces debug level.
func (c Config) Logger(verbose bool) *near.Logger {
	lvl, err := c.Log.level()
	if err != nil || verbose {
		lvl = slog.LevelDebug
	}
	if c.Log.Format == "json" {
		return near.NewJSONLogger(lvl)
	}
	return near.NewTextLogger(lvl)
}
