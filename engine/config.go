package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fedquery/fq/executor"
	"github.com/fedquery/fq/storage"
	"github.com/fedquery/fq/util/log"
	"github.com/goccy/go-json"
)

/*
The engine can be configured from a JSON file. Every field is optional;
omitted fields keep their defaults. For example:

	{
	  "batchSize": 500,
	  "workers": 8,
	  "logLevel": "debug",
	  "buffer": {"pageRows": 256, "pageCacheSize": 64, "memoryLimitRows": 100000},
	  "spill": {"type": "directory", "path": "/var/tmp/fq"},
	  "retry": {"backoff": "1ms", "maxBackoff": "50ms", "budget": "30s"}
	}

The spill store type is one of memory, directory, sqlite or s3.
*/

////////////////////////////////////////////////////////////////////////////////

// Duration is a time.Duration that decodes from strings like "250ms".
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config is the file form of the engine options.
type Config struct {
	BatchSize int    `json:"batchSize"`
	Workers   int    `json:"workers"`
	LogLevel  string `json:"logLevel"`

	Buffer BufferConfig `json:"buffer"`
	Spill  SpillConfig  `json:"spill"`
	Retry  RetryConfig  `json:"retry"`
}

// BufferConfig sizes tuple buffer pages and the memory limit.
type BufferConfig struct {
	PageRows        int `json:"pageRows"`
	PageCacheSize   int `json:"pageCacheSize"`
	MemoryLimitRows int `json:"memoryLimitRows"`
}

// RetryConfig is the file form of executor.RetryPolicy.
type RetryConfig struct {
	Backoff        Duration `json:"backoff"`
	MaxBackoff     Duration `json:"maxBackoff"`
	MaxIdleRetries int      `json:"maxIdleRetries"`
	Budget         Duration `json:"budget"`
}

// SpillConfig selects the storage spilled buffer pages are written to.
type SpillConfig struct {
	Type string `json:"type"`
	Path string `json:"path"`

	Endpoint  string `json:"endpoint"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	AccessKey string `json:"accessKey"`
	SecretKey string `json:"secretKey"`
	UseSSL    bool   `json:"useSSL"`
}

// LoadConfig reads a JSON config file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()
	config := &Config{}
	if err := json.NewDecoder(f).Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return config, nil
}

// Options converts the config to engine options. Options for fields left
// unset are omitted.
func (c *Config) Options(ctx context.Context) ([]Option, error) {
	opts := []Option{}
	if c.BatchSize > 0 {
		opts = append(opts, WithBatchSize(c.BatchSize))
	}
	if c.Workers > 0 {
		opts = append(opts, WithWorkers(c.Workers))
	}
	if c.LogLevel != "" {
		level, err := log.ParseLevel(c.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLogLevel(level))
	}
	if c.Buffer.PageRows > 0 {
		opts = append(opts, WithPageRows(c.Buffer.PageRows))
	}
	if c.Buffer.PageCacheSize > 0 {
		opts = append(opts, WithPageCacheSize(c.Buffer.PageCacheSize))
	}
	if c.Buffer.MemoryLimitRows > 0 {
		opts = append(opts, WithMemoryLimitRows(c.Buffer.MemoryLimitRows))
	}
	if c.Spill.Type != "" {
		store, err := c.Spill.Open(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithSpillStore(store))
	}
	if c.Retry != (RetryConfig{}) {
		opts = append(opts, WithRetryPolicy(executor.RetryPolicy{
			Backoff:        time.Duration(c.Retry.Backoff),
			MaxBackoff:     time.Duration(c.Retry.MaxBackoff),
			MaxIdleRetries: c.Retry.MaxIdleRetries,
			Budget:         time.Duration(c.Retry.Budget),
		}))
	}
	return opts, nil
}

// Open constructs the configured store.
func (s SpillConfig) Open(ctx context.Context) (storage.Provider, error) {
	switch s.Type {
	case "memory":
		return storage.NewMemStore(), nil
	case "directory":
		if s.Path == "" {
			return nil, fmt.Errorf("directory spill store requires a path")
		}
		store, err := storage.NewDirectoryStore(s.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open directory store: %w", err)
		}
		return store, nil
	case "sqlite":
		if s.Path == "" {
			return nil, fmt.Errorf("sqlite spill store requires a path")
		}
		store, err := storage.OpenSQLiteStore(ctx, s.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return store, nil
	case "s3":
		if s.Endpoint == "" || s.Bucket == "" {
			return nil, fmt.Errorf("s3 spill store requires an endpoint and a bucket")
		}
		mc, err := storage.NewMinioClient(s.Endpoint, s.AccessKey, s.SecretKey, s.UseSSL)
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
		return storage.NewS3Store(mc, s.Bucket, s.Prefix), nil
	default:
		return nil, fmt.Errorf("unrecognized spill store type %q", s.Type)
	}
}
