// Package config loads the csrfguard server configuration from an optional
// YAML file, .env files and CSRFGUARD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// CSRFGUARD_STORAGE_BACKEND=redis.
const EnvPrefix = "CSRFGUARD"

type Config struct {
	Env string `mapstructure:"env" validate:"oneof=dev staging prod"`

	HTTP struct {
		Addr            string        `mapstructure:"addr" validate:"required"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	} `mapstructure:"http"`

	Log struct {
		Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	} `mapstructure:"log"`

	CSRF struct {
		CookieName          string        `mapstructure:"cookie_name" validate:"required"`
		CookieDomain        string        `mapstructure:"cookie_domain"`
		CookieSecure        bool          `mapstructure:"cookie_secure"`
		CookieSameSite      string        `mapstructure:"cookie_same_site" validate:"oneof=lax strict none"`
		CookieSessionOnly   bool          `mapstructure:"cookie_session_only"`
		KeyLookup           string        `mapstructure:"key_lookup" validate:"required,contains=:"`
		IdleTimeout         time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`
		SingleUseToken      bool          `mapstructure:"single_use_token"`
		TrustedOrigins      []string      `mapstructure:"trusted_origins" validate:"dive,url"`
		TrustForwardedProto bool          `mapstructure:"trust_forwarded_proto"`
		// Sessions switches the guard to the synchronizer token pattern.
		Sessions bool `mapstructure:"sessions"`
	} `mapstructure:"csrf"`

	Storage struct {
		Backend string `mapstructure:"backend" validate:"oneof=memory redis nats postgres"`

		Memory struct {
			MaxEntries int64 `mapstructure:"max_entries" validate:"gte=0"`
		} `mapstructure:"memory"`

		Redis struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db" validate:"gte=0"`
			PoolSize int    `mapstructure:"pool_size" validate:"gte=0"`
			Prefix   string `mapstructure:"prefix"`
		} `mapstructure:"redis"`

		NATS struct {
			URL    string `mapstructure:"url"`
			Bucket string `mapstructure:"bucket"`
		} `mapstructure:"nats"`

		Postgres struct {
			DSN   string `mapstructure:"dsn"`
			Table string `mapstructure:"table"`
		} `mapstructure:"postgres"`
	} `mapstructure:"storage"`
}

// SameSite maps the configured string onto http.SameSite.
func (c *Config) SameSite() http.SameSite {
	switch c.CSRF.CookieSameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("log.level", "info")

	v.SetDefault("csrf.cookie_name", "csrf_token")
	v.SetDefault("csrf.cookie_domain", "")
	v.SetDefault("csrf.cookie_secure", false)
	v.SetDefault("csrf.cookie_same_site", "lax")
	v.SetDefault("csrf.cookie_session_only", false)
	v.SetDefault("csrf.key_lookup", "header:X-CSRF-Token")
	v.SetDefault("csrf.idle_timeout", time.Hour)
	v.SetDefault("csrf.single_use_token", false)
	v.SetDefault("csrf.trusted_origins", []string{})
	v.SetDefault("csrf.trust_forwarded_proto", false)
	v.SetDefault("csrf.sessions", false)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.memory.max_entries", 0)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 10)
	v.SetDefault("storage.redis.prefix", "csrf:")
	v.SetDefault("storage.nats.url", "nats://localhost:4222")
	v.SetDefault("storage.nats.bucket", "CSRF_TOKENS")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "csrf_tokens")
}

// loadDotEnv loads .env and .env.local when present. Variables already set
// in the process environment win.
func loadDotEnv() {
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", f, err)
		}
	}
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	loadDotEnv()

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

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Storage.Backend {
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return errors.New("invalid config: storage.redis.addr is required for the redis backend")
		}
	case "nats":
		if c.Storage.NATS.URL == "" {
			return errors.New("invalid config: storage.nats.url is required for the nats backend")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return errors.New("invalid config: storage.postgres.dsn is required for the postgres backend")
		}
	}
	if c.CSRF.CookieSameSite == "none" && !c.CSRF.CookieSecure {
		return errors.New("invalid config: csrf.cookie_same_site=none requires csrf.cookie_secure")
	}
	return nil
}
