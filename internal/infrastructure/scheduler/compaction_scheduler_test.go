package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/cache"
	"go.uber.org/zap"
)

type countingCompactor struct {
	calls   atomic.Int32
	removed int
	err     error
}

func (c *countingCompactor) Compact(_ context.Context) (int, error) {
	c.calls.Add(1)
	return c.removed, c.err
}

func TestCompactionScheduler_RunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	store := cache.NewInMemoryIdempotencyStoreWithClock(clock)
	_, err := store.MarkProcessed(ctx, "inbound:a", time.Minute)
	require.NoError(t, err)
	_, err = store.MarkProcessed(ctx, "inbound:b", time.Hour)
	require.NoError(t, err)

	failing := &countingCompactor{err: errors.New("boom")}
	other := &countingCompactor{removed: 3}

	s := NewCompactionScheduler([]shared.Compactor{failing, store, other}, zap.NewNop(), CompactionSchedulerConfig{})
	now = now.Add(2 * time.Minute)

	assert.Equal(t, 4, s.RunOnce(ctx))
	assert.Equal(t, 1, store.Size())
	assert.Equal(t, int32(1), failing.calls.Load())
}

func TestCompactionScheduler_StartStop(t *testing.T) {
	c := &countingCompactor{}
	s := NewCompactionScheduler([]shared.Compactor{c}, zap.NewNop(), CompactionSchedulerConfig{
		Interval: 5 * time.Millisecond,
	})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return c.calls.Load() >= 2 }, time.Second, time.Millisecond)

	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())
	stopped := c.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, c.calls.Load())

	require.NoError(t, s.Stop(context.Background()))
}

func TestCompactionScheduler_NothingToCompact(t *testing.T) {
	s := NewCompactionScheduler(nil, nil, DefaultCompactionSchedulerConfig())
	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.IsRunning())
}
