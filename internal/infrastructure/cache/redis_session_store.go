package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tallyline/backend/internal/domain/conversation"
)

// DefaultSessionKeyPrefix namespaces session keys in redis
const DefaultSessionKeyPrefix = "tally:session:"

// RedisSessionStore keeps sessions in redis with a key TTL. The stored
// expiry is still checked on read so a lagging key eviction is harmless.
type RedisSessionStore struct {
	client    redis.UniversalClient
	keyPrefix string
	now       Clock
}

// NewRedisSessionStore creates a store on an existing client
func NewRedisSessionStore(client redis.UniversalClient, keyPrefix string) *RedisSessionStore {
	if keyPrefix == "" {
		keyPrefix = DefaultSessionKeyPrefix
	}
	return &RedisSessionStore{client: client, keyPrefix: keyPrefix, now: time.Now}
}

// Get returns the live session for addr, or nil
func (s *RedisSessionStore) Get(ctx context.Context, addr conversation.Address) (*conversation.Session, error) {
	data, err := s.client.Get(ctx, s.key(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess, err := conversation.UnmarshalSession(data)
	if err != nil {
		// an unreadable session is as good as none; drop it so the user can start over
		_ = s.client.Del(ctx, s.key(addr)).Err()
		return nil, nil
	}
	if sess.IsExpired(s.now()) {
		return nil, nil
	}
	return sess, nil
}

// Put replaces the session for the address
func (s *RedisSessionStore) Put(ctx context.Context, sess *conversation.Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, sess.Address)
	}
	data, err := conversation.MarshalSession(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sess.Address), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Delete drops the session for addr
func (s *RedisSessionStore) Delete(ctx context.Context, addr conversation.Address) error {
	if err := s.client.Del(ctx, s.key(addr)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) key(addr conversation.Address) string {
	return s.keyPrefix + string(addr)
}

var _ conversation.SessionStore = (*RedisSessionStore)(nil)
