package linesearch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. LINESEARCH_SERVER_ADDR.
const EnvPrefix = "LINESEARCH"

// Config is the full daemon configuration.
type Config struct {
	Corpus  CorpusConfig  `mapstructure:"corpus"`
	Search  SearchConfig  `mapstructure:"search"`
	Server  ServerSection `mapstructure:"server"`
	TLS     TLSConfig     `mapstructure:"tls"`
	Store   StoreConfig   `mapstructure:"store"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// CorpusConfig locates the corpus file.
type CorpusConfig struct {
	Path          string `mapstructure:"path"`
	RereadOnQuery bool   `mapstructure:"reread_on_query"`
}

// SearchConfig selects the default search mode.
type SearchConfig struct {
	Mode string `mapstructure:"mode"`
}

// ServerSection holds listener settings.
type ServerSection struct {
	Addr           string        `mapstructure:"addr"`
	MaxPayloadSize int           `mapstructure:"max_payload_size"`
	MaxConnections int           `mapstructure:"max_connections"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// TLSConfig names the PEM certificate and key.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// StoreConfig selects the log store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// BatchConfig sizes the batch worker pool.
type BatchConfig struct {
	Workers int `mapstructure:"workers"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("corpus.path", "")
	v.SetDefault("corpus.reread_on_query", false)
	v.SetDefault("search.mode", string(ModeTrie))
	v.SetDefault("server.addr", "127.0.0.1:44445")
	v.SetDefault("server.max_payload_size", DefaultMaxPayloadSize)
	v.SetDefault("server.max_connections", 0)
	v.SetDefault("server.read_timeout", 5*time.Minute)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "logs/query_logs.jsonl")
	v.SetDefault("batch.workers", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.addr", "")
}

// LoadConfig reads path (YAML, TOML or JSON by extension; skipped when
// empty), applies LINESEARCH_* environment overrides on top of the
// defaults and validates the result.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if errors.As(err, &nf) || errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("%w: config %s", ErrNotFound, path)
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values a server needs. The corpus path and TLS files
// are only required to be set here; their existence is checked when used.
func (c Config) Validate() error {
	var errs []error
	if c.Corpus.Path != "" && !filepath.IsAbs(c.Corpus.Path) {
		errs = append(errs, fmt.Errorf("corpus.path %q is not absolute", c.Corpus.Path))
	}
	if _, err := ParseMode(c.Search.Mode); err != nil {
		errs = append(errs, fmt.Errorf("search.mode: %w", err))
	}
	if c.Server.MaxPayloadSize < 0 {
		errs = append(errs, errors.New("server.max_payload_size must not be negative"))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, errors.New("server.max_connections must not be negative"))
	}
	switch c.Store.Backend {
	case BackendFile, BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("store.path is required for backend %q", c.Store.Backend))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}

// ServiceConfig derives the Service settings.
func (c Config) ServiceConfig() ServiceConfig {
	mode, _ := ParseMode(c.Search.Mode)
	return ServiceConfig{
		CorpusPath:    c.Corpus.Path,
		RereadOnQuery: c.Corpus.RereadOnQuery,
		DefaultMode:   mode,
		BatchWorkers:  c.Batch.Workers,
	}
}

// ServerConfig derives the Server settings.
func (c Config) ServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           c.Server.Addr,
		CertFile:       c.TLS.CertFile,
		KeyFile:        c.TLS.KeyFile,
		MaxPayloadSize: c.Server.MaxPayloadSize,
		MaxConnections: c.Server.MaxConnections,
		ReadTimeout:    c.Server.ReadTimeout,
		WriteTimeout:   c.Server.WriteTimeout,
	}
}
