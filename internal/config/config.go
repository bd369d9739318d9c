// Package config loads the chunksync configuration from a config file, the
// environment and a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/openmined/chunksync/internal/blob"
	"github.com/openmined/chunksync/internal/chunker"
	"github.com/openmined/chunksync/internal/errs"
	"github.com/openmined/chunksync/internal/gateway"
	"github.com/openmined/chunksync/internal/ignore"
	"github.com/openmined/chunksync/internal/journal"
	"github.com/openmined/chunksync/internal/manifest"
	"github.com/openmined/chunksync/internal/ordinals"
	"github.com/openmined/chunksync/internal/retry"
	"github.com/openmined/chunksync/internal/router"
	"github.com/openmined/chunksync/internal/syncer"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "CHUNKSYNC"
	ConfigName     = "chunksync"
	DefaultLogFile = "deploy/chunksync.log"

	RemoteHTTP   = "http"
	RemoteSQLite = "sqlite"

	DefaultRemoteDBPath  = "deploy/chunks.db"
	DefaultRemoteTimeout = 30 * time.Second
	DefaultBlobURL       = "https://ipfs.io/ipfs/" + blob.CIDPlaceholder
)

type RoutingConfig struct {
	Mode               string   `mapstructure:"mode"`
	InlineExtensions   []string `mapstructure:"inline_extensions"`
	ExternalExtensions []string `mapstructure:"external_extensions"`
	SizeThreshold      int64    `mapstructure:"size_threshold"`
}

type BlobConfig struct {
	Backend     string            `mapstructure:"backend"`
	URLTemplate string            `mapstructure:"url_template"`
	Pinata      blob.PinataConfig `mapstructure:"pinata"`
	S3          blob.S3Config     `mapstructure:"s3"`
}

type RemoteConfig struct {
	Backend string        `mapstructure:"backend"`
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	// DBPath is the database of the sqlite backend.
	DBPath string `mapstructure:"db_path"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type Config struct {
	// Path is the config file that was read, if any.
	Path string `mapstructure:"-"`

	BuildFolder  string `mapstructure:"build_folder"`
	ManifestPath string `mapstructure:"manifest_path"`
	IgnoreFile   string `mapstructure:"ignore_file"`
	JournalPath  string `mapstructure:"journal_path"`
	OrdinalsPath string `mapstructure:"ordinals_path"`
	LogFile      string `mapstructure:"log_file"`
	MaxChunkSize int    `mapstructure:"max_chunk_size"`

	Routing RoutingConfig  `mapstructure:"routing"`
	Blob    BlobConfig     `mapstructure:"blob"`
	Remote  RemoteConfig   `mapstructure:"remote"`
	Retry   RetryConfig    `mapstructure:"retry"`
	Gateway gateway.Config `mapstructure:"gateway"`

	Workers             int    `mapstructure:"workers"`
	StaleTail           string `mapstructure:"stale_tail"`
	BlobIdempotence     string `mapstructure:"blob_idempotence"`
	WriteRedirects      bool   `mapstructure:"write_redirects"`
	RedirectCode        int    `mapstructure:"redirect_code"`
	IncrementalManifest bool   `mapstructure:"incremental_manifest"`
}

// SetDefaults registers every key, which also lets AutomaticEnv reach keys
// absent from the config file.
func SetDefaults(v *viper.Viper) {
	retryDefaults := retry.DefaultPolicy()

	v.SetDefault("build_folder", "build")
	v.SetDefault("manifest_path", manifest.DefaultPath)
	v.SetDefault("ignore_file", ignore.DefaultIgnoreFile)
	v.SetDefault("journal_path", journal.DefaultPath)
	v.SetDefault("ordinals_path", ordinals.DefaultPath)
	v.SetDefault("log_file", DefaultLogFile)
	v.SetDefault("max_chunk_size", chunker.DefaultMaxChunkSize)

	v.SetDefault("routing.mode", string(router.ModeInlineAllowList))
	v.SetDefault("routing.inline_extensions", router.DefaultInlineExtensions)
	v.SetDefault("routing.external_extensions", []string{})
	v.SetDefault("routing.size_threshold", router.DefaultSizeThreshold)

	v.SetDefault("blob.backend", blob.BackendPinata)
	v.SetDefault("blob.url_template", DefaultBlobURL)
	v.SetDefault("blob.pinata.api_key", "")
	v.SetDefault("blob.pinata.api_secret", "")
	v.SetDefault("blob.pinata.endpoint", blob.DefaultPinataEndpoint)
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "")
	v.SetDefault("blob.s3.access_key", "")
	v.SetDefault("blob.s3.secret_key", "")
	v.SetDefault("blob.s3.endpoint", "")

	v.SetDefault("remote.backend", RemoteHTTP)
	v.SetDefault("remote.url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", DefaultRemoteTimeout)
	v.SetDefault("remote.db_path", DefaultRemoteDBPath)

	v.SetDefault("retry.max_attempts", retryDefaults.MaxAttempts)
	v.SetDefault("retry.backoff", retryDefaults.Backoff)
	v.SetDefault("retry.max_backoff", retryDefaults.MaxBackoff)
	v.SetDefault("retry.call_timeout", retryDefaults.CallTimeout)

	v.SetDefault("gateway.addr", gateway.DefaultAddr)
	v.SetDefault("gateway.db_path", gateway.DefaultDBPath)
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.jwt_secret", "")
	v.SetDefault("gateway.max_chunk_size", chunker.DefaultMaxChunkSize)
	v.SetDefault("gateway.rate_limit", gateway.DefaultRateLimit)
	v.SetDefault("gateway.cache_size", 0)
	v.SetDefault("gateway.cache_ttl", gateway.DefaultCacheTTL)

	v.SetDefault("workers", 1)
	v.SetDefault("stale_tail", string(syncer.StaleTailLeave))
	v.SetDefault("blob_idempotence", string(syncer.BlobByPresence))
	v.SetDefault("write_redirects", false)
	v.SetDefault("redirect_code", syncer.DefaultRedirectCode)
	v.SetDefault("incremental_manifest", false)
}

// BindEnv sets up CHUNKSYNC_* variables (CHUNKSYNC_REMOTE_URL for
// remote.url) and the bare PINATA_* names used by older deploy scripts.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("blob.pinata.api_key", EnvPrefix+"_BLOB_PINATA_API_KEY", "PINATA_API_KEY")
	_ = v.BindEnv("blob.pinata.api_secret", EnvPrefix+"_BLOB_PINATA_API_SECRET", "PINATA_API_SECRET")
}

// LoadDotEnv loads variables from the given .env files (".env" when none)
// without overriding the environment. Missing files are fine.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ReadConfigFile reads path, or looks for chunksync.{yaml,json,toml} in the
// working directory when path is empty. Only an explicit path must exist.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(ConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("%w: config read '%s': %w", errs.ErrInvalidConfiguration, v.ConfigFileUsed(), err)
	}
	slog.Debug("config loaded", "path", v.ConfigFileUsed())
	return nil
}

// Load reads the whole configuration into a fresh viper instance.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	if err := ReadConfigFile(v, path); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Defaults is the configuration made of defaults only.
func Defaults() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: decode config: %w", errs.ErrInvalidConfiguration, err)
	}
	cfg.Path = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks everything a sync pass needs. Backend credentials are
// checked when the backend is opened.
func (c *Config) Validate() error {
	if c.BuildFolder == "" {
		return fmt.Errorf("%w: build_folder missing", errs.ErrInvalidConfiguration)
	}
	if c.MaxChunkSize <= 0 {
		return fmt.Errorf("%w: max_chunk_size must be positive, got %d", errs.ErrInvalidConfiguration, c.MaxChunkSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", errs.ErrInvalidConfiguration, c.Workers)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return err
	}
	if _, err := syncer.ParseStaleTailPolicy(c.StaleTail); err != nil {
		return err
	}
	if _, err := syncer.ParseBlobIdempotence(c.BlobIdempotence); err != nil {
		return err
	}

	switch c.Blob.Backend {
	case blob.BackendMemory, blob.BackendS3, blob.BackendPinata:
	default:
		return fmt.Errorf("%w: unknown blob backend %q", errs.ErrInvalidConfiguration, c.Blob.Backend)
	}
	switch c.Remote.Backend {
	case RemoteHTTP, RemoteSQLite:
	default:
		return fmt.Errorf("%w: unknown remote backend %q", errs.ErrInvalidConfiguration, c.Remote.Backend)
	}
	if c.WriteRedirects && c.Blob.URLTemplate == "" {
		return fmt.Errorf("%w: write_redirects needs blob.url_template", errs.ErrInvalidConfiguration)
	}
	return nil
}

func (c *Config) Policy() (router.Policy, error) {
	p := router.Policy{
		Mode:                 router.Mode(strings.ToLower(c.Routing.Mode)),
		InlineExtensions:     router.NewExtensionSet(c.Routing.InlineExtensions...),
		ExternalExtensions:   router.NewExtensionSet(c.Routing.ExternalExtensions...),
		ExternalIfLargerThan: c.Routing.SizeThreshold,
	}
	if err := p.Validate(); err != nil {
		return router.Policy{}, err
	}
	return p, nil
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		Backoff:     c.Retry.Backoff,
		MaxBackoff:  c.Retry.MaxBackoff,
		CallTimeout: c.Retry.CallTimeout,
	}
}

// BlobURL renders the public URL of a blob.
func (c *Config) BlobURL(blobID string) string {
	return blob.URL(c.Blob.URLTemplate, blobID)
}

func (c *Config) SyncOptions() (syncer.Options, error) {
	staleTail, err := syncer.ParseStaleTailPolicy(c.StaleTail)
	if err != nil {
		return syncer.Options{}, err
	}
	idempotence, err := syncer.ParseBlobIdempotence(c.BlobIdempotence)
	if err != nil {
		return syncer.Options{}, err
	}
	return syncer.Options{
		BuildFolder:         c.BuildFolder,
		ManifestPath:        c.ManifestPath,
		Workers:             c.Workers,
		StaleTail:           staleTail,
		BlobIdempotence:     idempotence,
		WriteRedirects:      c.WriteRedirects,
		RedirectCode:        c.RedirectCode,
		BlobURLTemplate:     c.Blob.URLTemplate,
		IncrementalManifest: c.IncrementalManifest,
	}, nil
}
