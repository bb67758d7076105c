package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "csrf_token", cfg.CSRF.CookieName)
	assert.Equal(t, "header:X-CSRF-Token", cfg.CSRF.KeyLookup)
	assert.Equal(t, time.Hour, cfg.CSRF.IdleTimeout)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, http.SameSiteLaxMode, cfg.SameSite())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CSRFGUARD_STORAGE_BACKEND", "redis")
	t.Setenv("CSRFGUARD_STORAGE_REDIS_ADDR", "cache:6379")
	t.Setenv("CSRFGUARD_CSRF_IDLE_TIMEOUT", "15m")
	t.Setenv("CSRFGUARD_CSRF_TRUSTED_ORIGINS", "https://a.example.com,https://*.example.org")
	t.Setenv("CSRFGUARD_CSRF_SINGLE_USE_TOKEN", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "cache:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, 15*time.Minute, cfg.CSRF.IdleTimeout)
	assert.Equal(t, []string{"https://a.example.com", "https://*.example.org"}, cfg.CSRF.TrustedOrigins)
	assert.True(t, cfg.CSRF.SingleUseToken)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csrfguard.yaml")
	content := `
env: prod
http:
  addr: ":9000"
csrf:
  cookie_secure: true
  cookie_same_site: strict
  sessions: true
storage:
  backend: postgres
  postgres:
    dsn: postgres://localhost/csrf
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.True(t, cfg.CSRF.CookieSecure)
	assert.True(t, cfg.CSRF.Sessions)
	assert.Equal(t, http.SameSiteStrictMode, cfg.SameSite())
	assert.Equal(t, "postgres://localhost/csrf", cfg.Storage.Postgres.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"CSRFGUARD_STORAGE_BACKEND": "etcd"}},
		{"postgres without dsn", map[string]string{"CSRFGUARD_STORAGE_BACKEND": "postgres"}},
		{"bad same site", map[string]string{"CSRFGUARD_CSRF_COOKIE_SAME_SITE": "loose"}},
		{"same site none needs secure", map[string]string{"CSRFGUARD_CSRF_COOKIE_SAME_SITE": "none"}},
		{"bad key lookup", map[string]string{"CSRFGUARD_CSRF_KEY_LOOKUP": "header"}},
		{"bad log level", map[string]string{"CSRFGUARD_LOG_LEVEL": "verbose"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
