// Package config loads blogchain settings from an optional YAML file and
// BLOGCHAIN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. BLOGCHAIN_STORE_PATH.
const EnvPrefix = "BLOGCHAIN"

// Config is the full configuration.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Resolve ResolveConfig `mapstructure:"resolve"`
	Log     LogConfig     `mapstructure:"log"`
}

// StoreConfig selects and opens the backend.
type StoreConfig struct {
	Driver        string `mapstructure:"driver" validate:"oneof=sqlite memory postgres"`
	Path          string `mapstructure:"path" validate:"required_if=Driver sqlite"`
	DSN           string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
	HashAlgorithm string `mapstructure:"hash_algorithm" validate:"omitempty,oneof=sha256 blake3"`
	Agent         string `mapstructure:"agent"`
}

// CacheConfig selects the read-through record cache.
type CacheConfig struct {
	Kind      string        `mapstructure:"kind" validate:"oneof=none lru redis"`
	Size      int           `mapstructure:"size" validate:"min=1"`
	RedisAddr string        `mapstructure:"redis_addr" validate:"required_if=Kind redis"`
	TTL       time.Duration `mapstructure:"ttl" validate:"min=0"`
}

// ResolveConfig bounds resolver walks.
type ResolveConfig struct {
	MaxHops int `mapstructure:"max_hops" validate:"min=1"`
}

// LogConfig sets up the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// SlogLevel maps Level onto slog.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "blogchain.db")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.hash_algorithm", "")
	v.SetDefault("store.agent", "")
	v.SetDefault("cache.kind", "none")
	v.SetDefault("cache.size", 4096)
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.ttl", "0s")
	v.SetDefault("resolve.max_hops", 1024)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
}

// Load reads defaults, then the file at path if path is non-empty, then
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports all violations.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %q (value %v)", configKey(fe.Namespace()), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// configKey turns "Config.Store.HashAlgorithm" into "store.hashalgorithm"
// style keys users can search for.
func configKey(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	return strings.ToLower(ns)
}
