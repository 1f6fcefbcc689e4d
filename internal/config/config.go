// Package config loads runtime settings from defaults, an optional YAML file,
// TIERMEM_* environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// TIERMEM_RETRIEVAL_MIN_SIMILARITY.
const EnvPrefix = "TIERMEM"

// Config contains all runtime settings for the memory store.
type Config struct {
	Embedding   Embedding   `mapstructure:"embedding"`
	Retrieval   Retrieval   `mapstructure:"retrieval"`
	Tiers       Tiers       `mapstructure:"tiers"`
	Decay       Decay       `mapstructure:"decay"`
	Compression Compression `mapstructure:"compression"`
	Persistence Persistence `mapstructure:"persistence"`
	Stats       Stats       `mapstructure:"stats"`
	Server      Server      `mapstructure:"server"`
	Log         Log         `mapstructure:"log"`
}

// Embedding selects the provider. Dims of zero lets the provider pick the
// size its model produces.
type Embedding struct {
	Provider      string        `mapstructure:"provider"`
	Model         string        `mapstructure:"model"`
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Dims          int           `mapstructure:"dims"`
	Timeout       time.Duration `mapstructure:"timeout"`
	CacheSize     int64         `mapstructure:"cache_size"`
	MaxInputChars int           `mapstructure:"max_input_chars"`
}

type Retrieval struct {
	MinSimilarity float64 `mapstructure:"min_similarity"`
	Limit         int     `mapstructure:"limit"`
}

type Tiers struct {
	WorkingWindow time.Duration `mapstructure:"working_window"`
	// LongTermImportance is the importance above which an untyped memory is long-term.
	LongTermImportance float64 `mapstructure:"long_term_importance"`
}

type Decay struct {
	Interval         time.Duration `mapstructure:"interval"`
	StaleAfter       time.Duration `mapstructure:"stale_after"`
	ImportanceCutoff float64       `mapstructure:"importance_cutoff"`
}

type Compression struct {
	Interval     time.Duration `mapstructure:"interval"`
	TriggerCount int           `mapstructure:"trigger_count"`
	Similarity   float64       `mapstructure:"similarity"`
}

type Persistence struct {
	Driver           string        `mapstructure:"driver"`
	Path             string        `mapstructure:"path"`
	DSN              string        `mapstructure:"dsn"`
	AutosaveInterval time.Duration `mapstructure:"autosave_interval"`
}

type Stats struct {
	Interval  time.Duration `mapstructure:"interval"`
	Namespace string        `mapstructure:"namespace"`
}

type Server struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Log struct {
	Level string `mapstructure:"level"`
}

// New returns a viper instance with every default registered and environment
// overrides enabled. Callers may bind flags or set a config file before Load.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dims", 0)
	v.SetDefault("embedding.timeout", 10*time.Second)
	v.SetDefault("embedding.cache_size", 1<<26)
	v.SetDefault("embedding.max_input_chars", 8000)

	v.SetDefault("retrieval.min_similarity", 0.8)
	v.SetDefault("retrieval.limit", 10)

	v.SetDefault("tiers.working_window", time.Hour)
	v.SetDefault("tiers.long_term_importance", 0.7)

	v.SetDefault("decay.interval", 10*time.Minute)
	v.SetDefault("decay.stale_after", 24*time.Hour)
	v.SetDefault("decay.importance_cutoff", 0.3)

	v.SetDefault("compression.interval", time.Hour)
	v.SetDefault("compression.trigger_count", 1000)
	v.SetDefault("compression.similarity", 0.95)

	v.SetDefault("persistence.driver", "sqlite")
	v.SetDefault("persistence.path", defaultDataPath())
	v.SetDefault("persistence.dsn", "")
	v.SetDefault("persistence.autosave_interval", 5*time.Minute)

	v.SetDefault("stats.interval", time.Minute)
	v.SetDefault("stats.namespace", "tiermem")

	v.SetDefault("server.addr", ":9464")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", "info")
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	if file := v.ConfigFileUsed(); file != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration with nothing but defaults applied.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Validate rejects values that would break store invariants.
func (c Config) Validate() error {
	var errs []error
	unit := func(name string, f float64) {
		if f < 0 || f > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, f))
		}
	}
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if c.Embedding.Dims < 0 {
		errs = append(errs, fmt.Errorf("embedding.dims must not be negative, got %d", c.Embedding.Dims))
	}
	positive("embedding.timeout", c.Embedding.Timeout)
	unit("retrieval.min_similarity", c.Retrieval.MinSimilarity)
	unit("tiers.long_term_importance", c.Tiers.LongTermImportance)
	unit("decay.importance_cutoff", c.Decay.ImportanceCutoff)
	unit("compression.similarity", c.Compression.Similarity)
	positive("tiers.working_window", c.Tiers.WorkingWindow)
	positive("decay.interval", c.Decay.Interval)
	positive("decay.stale_after", c.Decay.StaleAfter)
	positive("compression.interval", c.Compression.Interval)
	positive("persistence.autosave_interval", c.Persistence.AutosaveInterval)
	positive("stats.interval", c.Stats.Interval)
	if c.Compression.TriggerCount < 0 {
		errs = append(errs, fmt.Errorf("compression.trigger_count must not be negative"))
	}
	switch c.Persistence.Driver {
	case "sqlite", "file", "postgres":
	default:
		errs = append(errs, fmt.Errorf("persistence.driver %q not one of sqlite, file, postgres", c.Persistence.Driver))
	}
	if c.Persistence.Driver == "postgres" && strings.TrimSpace(c.Persistence.DSN) == "" {
		errs = append(errs, fmt.Errorf("persistence.dsn is required for the postgres driver"))
	}
	return errors.Join(errs...)
}

func defaultDataPath() string {
	if env := os.Getenv("TIERMEM_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tiermem", "memory.db")
}
