//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallyline/backend/internal/domain/conversation"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	store := NewRedisIdempotencyStore(newRedisClient(t), "test:idem:")

	marked, err := store.MarkProcessed(ctx, "wamid.1", time.Minute)
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = store.MarkProcessed(ctx, "wamid.1", time.Minute)
	require.NoError(t, err)
	assert.False(t, marked)

	processed, err := store.IsProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, processed)

	require.NoError(t, store.Forget(ctx, "wamid.1"))
	processed, err = store.IsProcessed(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewRedisSessionStore(newRedisClient(t), "test:session:")
	addr := conversation.Address("2348012345678")
	total := conversation.InvoiceDraft{CustomerName: "Tunde"}

	sess := conversation.NewSession(addr, conversation.CollectingInfo{
		Draft:   total,
		Missing: conversation.MissingTotal,
	}, time.Minute, time.Now())
	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, got)
	state, ok := got.State.(conversation.CollectingInfo)
	require.True(t, ok)
	assert.Equal(t, "Tunde", state.Draft.CustomerName)

	require.NoError(t, store.Delete(ctx, addr))
	got, err = store.Get(ctx, addr)
	require.NoError(t, err)
	assert.Nil(t, got)

	expired := conversation.NewSession(addr, conversation.ActiveContext{LastInvoiceID: uuid.New()}, -time.Second, time.Now())
	require.NoError(t, store.Put(ctx, expired))
	got, err = store.Get(ctx, addr)
	require.NoError(t, err)
	assert.Nil(t, got)
}
