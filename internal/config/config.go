// Package config loads croprot settings from an optional YAML file, the
// environment (CROPROT_ prefix) and command-line flags, in rising priority.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CROPROT_REDIS_ADDR.
const EnvPrefix = "CROPROT"

// Config is the full croprot configuration.
type Config struct {
	// Database is the SQLite file holding checkpoints and the event log.
	Database string      `mapstructure:"database"`
	Redis    RedisConfig `mapstructure:"redis"`
	HTTP     HTTPConfig  `mapstructure:"http"`
	Log      LogConfig   `mapstructure:"log"`
}

// RedisConfig selects the Redis checkpoint backend. An empty Addr keeps
// checkpoints in SQLite.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// flagKeys maps flag names to the configuration keys they override.
var flagKeys = map[string]string{
	"db":         "database",
	"redis":      "redis.addr",
	"addr":       "http.addr",
	"log-level":  "log.level",
	"redis-db":   "redis.db",
	"redis-pass": "redis.password",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database", "croprot.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "croprot:field:")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
}

// Load reads the configuration. path may be empty to skip the file. flags
// may be nil; only flags the user actually set override other sources.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.ErrorUnused = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that decoding cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.Database == "" {
		errs = append(errs, errors.New("database must not be empty"))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("redis.db must be >= 0, got %d", c.Redis.DB))
	}
	if c.Redis.Addr != "" && c.Redis.Prefix == "" {
		errs = append(errs, errors.New("redis.prefix must not be empty when redis.addr is set"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// UseRedis reports whether checkpoints go to Redis instead of SQLite.
func (c *Config) UseRedis() bool {
	return c.Redis.Addr != ""
}

// SlogLevel returns the configured log level. Validate has already rejected
// unknown names, so an invalid level falls back to info.
func (c *Config) SlogLevel() slog.Level {
	lvl, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level %q: want debug, info, warn or error", s)
	}
	return lvl, nil
}
