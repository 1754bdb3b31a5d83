package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "authgate", cfg.App.Name)
	assert.True(t, cfg.App.IsDevelopment())
	assert.Equal(t, 14*24*time.Hour, cfg.Auth.AuthTokenTTL)
	assert.Equal(t, time.Hour, cfg.Auth.TransferTokenTTL)
	assert.Equal(t, time.Hour, cfg.Auth.ResetTokenTTL)
	assert.Equal(t, "join", cfg.Postgres.NestedTx)
	assert.False(t, cfg.Postgres.BulkMode)
	assert.Equal(t, "featuregate", cfg.FeatureGate.CacheKey)
	assert.True(t, cfg.FeatureGate.RecheckOnFlush)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_TOKEN_SECRET", "s3cr3t")
	t.Setenv("AUTH_TOKEN_TTL", "2h")
	t.Setenv("POSTGRES_BULK_MODE", "true")
	t.Setenv("POSTGRES_NESTED_TX", "SAVEPOINT")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.App.IsDevelopment())
	assert.Equal(t, "s3cr3t", cfg.Auth.TokenSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.AuthTokenTTL)
	assert.True(t, cfg.Postgres.BulkMode)
	assert.Equal(t, "savepoint", cfg.Postgres.NestedTx)
	assert.Equal(t, 3, cfg.Redis.DB)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "redis db", key: "REDIS_DB", val: "abc"},
		{name: "nested tx", key: "POSTGRES_NESTED_TX", val: "sometimes"},
		{name: "argon threads", key: "AUTH_ARGON2_THREADS", val: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("APP_ENV", "development")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_RequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("AUTH_TOKEN_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestAppConfig_RequestTimeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), AppConfig{RequestTimeoutSeconds: 0}.RequestTimeout())
	assert.Equal(t, 5*time.Second, AppConfig{RequestTimeoutSeconds: 5}.RequestTimeout())
	assert.Equal(t, "127.0.0.1:9000", AppConfig{Host: "127.0.0.1", Port: "9000"}.Addr())
}
