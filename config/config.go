// Package config loads enumerator configuration from a JSON file with
// VFSINDEX_* environment overrides.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/data/errors"
	"github.com/mwantia/vfsindex/filetype"
	"github.com/mwantia/vfsindex/log"
	"github.com/mwantia/vfsindex/store"
	"github.com/mwantia/vfsindex/store/postgres"
	"github.com/mwantia/vfsindex/store/s3"
	"github.com/mwantia/vfsindex/store/sqlite"
)

const DefaultCommitInterval = 33 * time.Millisecond

type Config struct {
	Mounts         []Mount          `json:"mounts"`
	LogLevel       string           `json:"log_level"`
	LogFile        string           `json:"log_file"`
	CommitInterval Duration         `json:"commit_interval"`
	FileTypes      []*filetype.Type `json:"file_types"`
	Store          StoreConfig      `json:"store"`
	Consul         ConsulConfig     `json:"consul"`
	MetricsAddr    string           `json:"metrics_addr"`
}

type Mount struct {
	EnginePath   string `json:"engine_path"`
	AbsolutePath string `json:"absolute_path"`
}

// StoreConfig selects the snapshot store. Type is one of "memory", "sqlite",
// "postgres" or "s3"; an empty Type disables persistence.
type StoreConfig struct {
	Type string `json:"type"`
	// Path of the sqlite database.
	Path string `json:"path,omitempty"`
	// URL of the postgres database.
	URL string `json:"url,omitempty"`

	Endpoint  string `json:"endpoint,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	Object    string `json:"object,omitempty"`
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
	UseSSL    bool   `json:"use_ssl,omitempty"`
}

// ConsulConfig enables loading mounts from a Consul KV prefix when Prefix is set.
type ConsulConfig struct {
	Address    string `json:"address,omitempty"`
	Token      string `json:"token,omitempty"`
	Datacenter string `json:"datacenter,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
}

// Duration reads either a Go duration string ("33ms") or nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

func Default() *Config {
	return &Config{
		LogLevel:       "info",
		CommitInterval: Duration(DefaultCommitInterval),
	}
}

// Load reads path, applies environment overrides and validates the result.
// An empty path loads the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	source := "environment"

	if path != "" {
		source = path
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.ConfigInvalid(err, source)
		}
		if err := json.Unmarshal(content, cfg); err != nil {
			return nil, errors.ConfigInvalid(err, source)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, errors.ConfigInvalid(err, source)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigInvalid(err, source)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = envOr("VFSINDEX_LOG_LEVEL", c.LogLevel)
	c.LogFile = envOr("VFSINDEX_LOG_FILE", c.LogFile)
	c.MetricsAddr = envOr("VFSINDEX_METRICS_ADDR", c.MetricsAddr)

	if v := os.Getenv("VFSINDEX_COMMIT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("VFSINDEX_COMMIT_INTERVAL: %w", err)
		}
		c.CommitInterval = Duration(d)
	}

	// VFSINDEX_MOUNTS holds "engine=absolute" pairs separated by ';'.
	if v := os.Getenv("VFSINDEX_MOUNTS"); v != "" {
		mounts, err := ParseMounts(v)
		if err != nil {
			return fmt.Errorf("VFSINDEX_MOUNTS: %w", err)
		}
		c.Mounts = append(c.Mounts, mounts...)
	}

	c.Store.Type = envOr("VFSINDEX_STORE", c.Store.Type)
	c.Store.Path = envOr("VFSINDEX_STORE_PATH", c.Store.Path)
	c.Store.URL = envOr("VFSINDEX_STORE_URL", c.Store.URL)
	c.Store.Endpoint = envOr("VFSINDEX_S3_ENDPOINT", c.Store.Endpoint)
	c.Store.Bucket = envOr("VFSINDEX_S3_BUCKET", c.Store.Bucket)
	c.Store.Object = envOr("VFSINDEX_S3_OBJECT", c.Store.Object)
	c.Store.AccessKey = envOr("VFSINDEX_S3_ACCESS_KEY", c.Store.AccessKey)
	c.Store.SecretKey = envOr("VFSINDEX_S3_SECRET_KEY", c.Store.SecretKey)
	c.Store.UseSSL = envBool("VFSINDEX_S3_USE_SSL", c.Store.UseSSL)

	c.Consul.Address = envOr("VFSINDEX_CONSUL_ADDRESS", c.Consul.Address)
	c.Consul.Token = envOr("VFSINDEX_CONSUL_TOKEN", c.Consul.Token)
	c.Consul.Datacenter = envOr("VFSINDEX_CONSUL_DATACENTER", c.Consul.Datacenter)
	c.Consul.Prefix = envOr("VFSINDEX_CONSUL_PREFIX", c.Consul.Prefix)
	return nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs data.Errors

	if _, err := log.Parse(c.LogLevel); err != nil {
		errs.Add(err)
	}
	if c.CommitInterval <= 0 {
		errs.Add(fmt.Errorf("commit_interval must be positive, got %s", time.Duration(c.CommitInterval)))
	}
	for i, m := range c.Mounts {
		if m.AbsolutePath == "" {
			errs.Add(fmt.Errorf("mounts[%d]: absolute_path is required", i))
		}
	}
	for i, t := range c.FileTypes {
		if t == nil || t.Name == "" || t.PrimaryExtension == "" {
			errs.Add(fmt.Errorf("file_types[%d]: name and primary_extension are required", i))
		}
	}

	switch c.Store.Type {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			errs.Add(fmt.Errorf("store: sqlite requires path"))
		}
	case "postgres":
		if c.Store.URL == "" {
			errs.Add(fmt.Errorf("store: postgres requires url"))
		}
	case "s3":
		if c.Store.Endpoint == "" || c.Store.Bucket == "" {
			errs.Add(fmt.Errorf("store: s3 requires endpoint and bucket"))
		}
	default:
		errs.Add(fmt.Errorf("store: unknown type '%s'", c.Store.Type))
	}

	return errs.Errors()
}

// Level returns the parsed log level. Validate has checked it already.
func (c *Config) Level() log.LogLevel {
	level, _ := log.Parse(c.LogLevel)
	return level
}

// Open connects the configured store. It returns nil for an empty Type.
func (sc StoreConfig) Open(ctx context.Context) (store.Store, error) {
	var (
		s   store.Store
		err error
	)

	switch sc.Type {
	case "":
		return nil, nil
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		s, err = sqlite.New(sc.Path)
	case "postgres":
		s, err = postgres.New(ctx, sc.URL)
	case "s3":
		s, err = s3.New(ctx, s3.S3Options{
			Endpoint:   sc.Endpoint,
			BucketName: sc.Bucket,
			ObjectName: sc.Object,
			AccessKey:  sc.AccessKey,
			SecretKey:  sc.SecretKey,
			UseSSL:     sc.UseSSL,
		})
	default:
		return nil, fmt.Errorf("unknown store type '%s': %w", sc.Type, data.ErrInvalid)
	}

	if err != nil {
		return nil, errors.StoreUnavailable(err, sc.Type)
	}
	return s, nil
}

// ParseMounts reads "engine=absolute" pairs separated by ';'.
func ParseMounts(value string) ([]Mount, error) {
	var out []Mount
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		engine, absolute, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(absolute) == "" {
			return nil, fmt.Errorf("invalid mount '%s'", part)
		}
		out = append(out, Mount{
			EnginePath:   strings.TrimSpace(engine),
			AbsolutePath: strings.TrimSpace(absolute),
		})
	}
	return out, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
