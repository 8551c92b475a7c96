package cache

import (
	"time"

	"github.com/tallyline/backend/internal/infrastructure/config"
)

func configForBackend(backend string) config.CacheConfig {
	return config.CacheConfig{
		Backend:    backend,
		DedupTTL:   10 * time.Minute,
		SessionTTL: 15 * time.Minute,
		NotifyTTL:  24 * time.Hour,
	}
}

// port 1 is never a redis server
func redisConfigUnreachable() config.RedisConfig {
	return config.RedisConfig{Host: "127.0.0.1", Port: 1}
}
