package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/near"
	"github.com/hupe1980/near/blobstore"
	"github.com/hupe1980/near/index/hnsw"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	space, err := cfg.Space()
	require.NoError(t, err)
	assert.Equal(t, "euclidean/128", space.String())
}

func TestParse(t *testing.T) {
	cfg := Default()
	err := Parse([]byte(`
dimension: 3
metric: cosine
index: flat
hnsw:
  m: 8
  ef_search: 64
storage:
  kind: bolt
  path: /tmp/near.db
  codec: msgpack+zstd
log:
  level: debug
  format: json
`), &cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Dimension)
	assert.Equal(t, "cosine", cfg.Metric)
	assert.Equal(t, "flat", cfg.Index)
	assert.Equal(t, 8, cfg.HNSW.M)
	assert.Equal(t, 64, cfg.HNSW.EfSearch)
	assert.Equal(t, StorageBolt, cfg.Storage.Kind)
	assert.Equal(t, "msgpack+zstd", cfg.Storage.Codec)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestParseUnknownField(t *testing.T) {
	cfg := Default()
	assert.Error(t, Parse([]byte("dimensions: 3\n"), &cfg))
}

func TestParseEmpty(t *testing.T) {
	cfg := Default()
	require.NoError(t, Parse(nil, &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, env(map[string]string{
		"NEAR_DIMENSION":        "7",
		"NEAR_METRIC":           "dot",
		"NEAR_HNSW_SEED":        "99",
		"NEAR_STORAGE_KIND":     "badger",
		"NEAR_BADGER_IN_MEMORY": "true",
		"NEAR_BLOB_RATE_LIMIT":  "2.5",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 7, cfg.Dimension)
	assert.Equal(t, "dot", cfg.Metric)
	assert.Equal(t, int64(99), cfg.HNSW.Seed)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, 2.5, cfg.Storage.Blob.RateLimit)

	for _, key := range []string{"NEAR_DIMENSION", "NEAR_HNSW_SEED", "NEAR_BADGER_IN_MEMORY", "NEAR_BLOB_RATE_LIMIT"} {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			assert.Error(t, ApplyEnv(&cfg, env(map[string]string{key: "x"})))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"Dimension":   func(c *Config) { c.Dimension = 0 },
		"Metric":      func(c *Config) { c.Metric = "manhattan" },
		"Index":       func(c *Config) { c.Index = "ivf" },
		"Codec":       func(c *Config) { c.Storage.Codec = "gob" },
		"LogLevel":    func(c *Config) { c.Log.Level = "loud" },
		"Kind":        func(c *Config) { c.Storage.Kind = "redis" },
		"BoltPath":    func(c *Config) { c.Storage.Kind = StorageBolt },
		"SQLitePath":  func(c *Config) { c.Storage.Kind = StorageSQLite },
		"BadgerPath":  func(c *Config) { c.Storage.Kind = StorageBadger },
		"DynamoTable": func(c *Config) { c.Storage.Kind = StorageDynamoDB },
		"BlobRoot":    func(c *Config) { c.Storage.Kind = StorageBlob },
		"BlobBucket": func(c *Config) {
			c.Storage.Kind = StorageBlob
			c.Storage.Blob.Store = BlobS3
		},
		"MinIOEndpoint": func(c *Config) {
			c.Storage.Kind = StorageBlob
			c.Storage.Blob.Store = BlobMinIO
			c.Storage.Blob.Bucket = "b"
		},
		"BlobStore": func(c *Config) {
			c.Storage.Kind = StorageBlob
			c.Storage.Blob.Store = "gcs"
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "near.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dimension: 4\nindex: flat\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NEAR_METRIC=cosine\n"), 0o600))
	t.Setenv("NEAR_DIMENSION", "5")
	t.Setenv("NEAR_METRIC", "")
	os.Unsetenv("NEAR_METRIC")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Dimension)
	assert.Equal(t, "cosine", cfg.Metric)
	assert.Equal(t, "flat", cfg.Index)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.Logger(false).Enabled(context.Background(), -4))
	assert.True(t, cfg.Logger(true).Enabled(context.Background(), -4))
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	kinds := map[string]StorageConfig{
		StorageMemory: {Kind: StorageMemory},
		StorageBolt:   {Kind: StorageBolt, Path: filepath.Join(dir, "near.db")},
		StorageBadger: {Kind: StorageBadger, InMemory: true},
		StorageSQLite: {Kind: StorageSQLite, Path: filepath.Join(dir, "near.sqlite")},
		StorageBlob:   {Kind: StorageBlob, Blob: BlobConfig{Store: BlobLocal, Root: filepath.Join(dir, "blobs"), CacheBytes: 1 << 20}},
	}
	for name, sc := range kinds {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Dimension = 2
			cfg.Storage = sc
			cfg.Storage.Codec = "binary+lz4"
			require.NoError(t, cfg.Validate())

			b, err := OpenBackend(ctx, cfg, nil)
			require.NoError(t, err)
			defer func() { assert.NoError(t, b.Close()) }()

			metrics := &near.BasicMetricsCollector{}
			idx, err := cfg.OpenIndex(ctx, b, near.NoopLogger(), metrics)
			require.NoError(t, err)
			defer idx.Close()

			require.NoError(t, idx.Insert(ctx, 1, []float32{0, 0}, []byte("a")))
			require.NoError(t, idx.Insert(ctx, 2, []float32{1, 1}, nil))

			res, err := idx.Search(ctx, []float32{0.9, 0.9}, 1)
			require.NoError(t, err)
			require.Len(t, res, 1)
			assert.Equal(t, near.ID(2), res[0].ID)

			rec, ok, err := b.Get(ctx, 1)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("a"), rec.Metadata)

			assert.EqualValues(t, 2, metrics.GetStats().InsertCount)
		})
	}
}

func TestOpenBlobStoreMemory(t *testing.T) {
	s, err := OpenBlobStore(context.Background(), BlobConfig{Store: BlobMemory})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.MemoryStore{}, s)

	s, err = OpenBlobStore(context.Background(), BlobConfig{Store: BlobMemory, CacheBytes: 10})
	require.NoError(t, err)
	assert.IsType(t, &blobstore.CachingStore{}, s)
}

func TestRegistry(t *testing.T) {
	cfg := Default()
	cfg.HNSW = HNSWConfig{M: 4, EfSearch: 16, RecallTarget: 0.8}

	r := cfg.Registry(nil)
	assert.Equal(t, []string{"flat", "hnsw"}, r.Names())

	idx, err := r.Open(context.Background(), "hnsw", near.MustSpace(2, near.MetricEuclidean), nil)
	assert.Error(t, err)
	assert.Nil(t, idx)

	b, err := OpenBackend(context.Background(), cfg, nil)
	require.NoError(t, err)
	idx, err = r.Open(context.Background(), "hnsw", near.MustSpace(2, near.MetricEuclidean), b)
	require.NoError(t, err)
	h := idx.(*hnsw.Index)
	assert.Equal(t, 0.8, h.RecallTarget())
}
