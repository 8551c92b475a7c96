package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "tallyline-backend", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "memory", cfg.Cache.Backend)
		assert.Equal(t, 10*time.Minute, cfg.Cache.DedupTTL)
		assert.Equal(t, 15*time.Minute, cfg.Cache.SessionTTL)
		assert.Equal(t, "234", cfg.Channel.DefaultCountryCode)
		assert.Equal(t, "log", cfg.Channel.Sender)
		assert.Equal(t, 8*time.Second, cfg.Classifier.Timeout)
		assert.Equal(t, 0.35, cfg.Classifier.MinConfidence)
		assert.Equal(t, 10, cfg.Classifier.MaxContext)
		assert.Equal(t, "X-Paystack-Signature", cfg.Payments.SignatureHeader)
		assert.Equal(t, 256, cfg.Notification.QueueSize)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("TALLY_APP_PORT", "9090")
		t.Setenv("TALLY_DATABASE_DRIVER", "sqlite")
		t.Setenv("TALLY_CACHE_BACKEND", "redis")
		t.Setenv("TALLY_CACHE_SESSION_TTL", "5m")
		t.Setenv("TALLY_CLASSIFIER_TIMEOUT", "3s")
		t.Setenv("TALLY_PAYMENTS_WEBHOOK_SECRET", "sk_test")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "9090", cfg.App.Port)
		assert.Equal(t, "sqlite", cfg.Database.Driver)
		assert.Equal(t, "redis", cfg.Cache.Backend)
		assert.Equal(t, 5*time.Minute, cfg.Cache.SessionTTL)
		assert.Equal(t, 3*time.Second, cfg.Classifier.Timeout)
		assert.Equal(t, "sk_test", cfg.Payments.WebhookSecret)
	})

	t.Run("rejects unknown cache backend", func(t *testing.T) {
		t.Setenv("TALLY_CACHE_BACKEND", "memcached")
		_, err := Load()
		assert.ErrorContains(t, err, "cache.backend")
	})

	t.Run("cloud sender needs credentials", func(t *testing.T) {
		t.Setenv("TALLY_CHANNEL_SENDER", "cloud")
		_, err := Load()
		assert.ErrorContains(t, err, "channel.access_token")
	})

	t.Run("production requires secrets", func(t *testing.T) {
		t.Setenv("TALLY_APP_ENV", "production")
		t.Setenv("TALLY_DATABASE_PASSWORD", "pw")
		t.Setenv("TALLY_DATABASE_SSLMODE", "require")
		_, err := Load()
		assert.ErrorContains(t, err, "payments.webhook_secret")

		t.Setenv("TALLY_PAYMENTS_WEBHOOK_SECRET", "sk_live")
		t.Setenv("TALLY_CHANNEL_APP_SECRET", "app")
		_, err = Load()
		assert.NoError(t, err)
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss word", DBName: "tally", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss%20word@db:5432/tally?sslmode=disable", d.DSN())
}

func TestRedisConfig_Addr(t *testing.T) {
	r := RedisConfig{Host: "cache", Port: 6380}
	assert.Equal(t, "cache:6380", r.Addr())
}
