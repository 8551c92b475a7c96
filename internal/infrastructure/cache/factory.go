package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

const (
	// BackendMemory keeps everything in process memory
	BackendMemory = "memory"
	// BackendRedis shares dedup records and sessions through redis
	BackendRedis = "redis"
)

// Stores bundles the short-lived state the conversation and notification
// layers depend on.
type Stores struct {
	// Inbound dedups channel message ids
	Inbound shared.IdempotencyStore
	// Notified dedups event ids handed to notifiers
	Notified shared.IdempotencyStore
	// Sessions holds one conversation session per address
	Sessions conversation.SessionStore
	// Compactors are the stores that need a periodic sweep
	Compactors []shared.Compactor

	client redis.UniversalClient
}

// Close releases the redis client if one was opened
func (s *Stores) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// StoreFactory creates stores based on configuration
type StoreFactory struct {
	cacheConfig           config.CacheConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
	pingTimeout           time.Duration
}

// StoreFactoryOption is a functional option for configuring the factory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to in-memory stores when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewStoreFactory creates a new factory
func NewStoreFactory(cacheCfg config.CacheConfig, redisCfg config.RedisConfig, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		cacheConfig:           cacheCfg,
		redisConfig:           redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
		pingTimeout:           5 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateInMemoryStores creates process-local stores.
// In-memory stores do not share state across instances, so a message
// delivered to two replicas may be handled twice.
func (f *StoreFactory) CreateInMemoryStores() *Stores {
	inbound := NewInMemoryIdempotencyStore()
	notified := NewInMemoryIdempotencyStore()
	sessions := NewInMemorySessionStore()
	return &Stores{
		Inbound:    inbound,
		Notified:   notified,
		Sessions:   sessions,
		Compactors: []shared.Compactor{inbound, notified, sessions},
	}
}

// CreateRedisStores connects to redis and creates shared stores
func (f *StoreFactory) CreateRedisStores(ctx context.Context) (*Stores, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, f.pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStores(client), nil
}

// NewRedisStores builds stores on an existing client. Closing the bundle closes the client.
func NewRedisStores(client redis.UniversalClient) *Stores {
	return &Stores{
		Inbound:  NewRedisIdempotencyStore(client, "tally:inbound:"),
		Notified: NewRedisIdempotencyStore(client, "tally:notify:"),
		Sessions: NewRedisSessionStore(client, DefaultSessionKeyPrefix),
		client:   client,
	}
}

// CreateStores creates stores for the configured backend. For the redis
// backend it falls back to memory when redis is unreachable and fallback is allowed.
func (f *StoreFactory) CreateStores(ctx context.Context) (*Stores, error) {
	switch f.cacheConfig.Backend {
	case "", BackendMemory:
		f.logger.Info("using in-memory dedup and session stores")
		return f.CreateInMemoryStores(), nil
	case BackendRedis:
	default:
		return nil, fmt.Errorf("unknown cache backend %q", f.cacheConfig.Backend)
	}

	stores, err := f.CreateRedisStores(ctx)
	if err == nil {
		f.logger.Info("using Redis dedup and session stores", zap.String("addr", f.redisConfig.Addr()))
		return stores, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("Redis required for dedup but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory stores. "+
		"Duplicate deliveries across instances will not be detected.",
		zap.Error(err),
	)
	return f.CreateInMemoryStores(), nil
}
