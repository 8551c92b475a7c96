package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/tallyline/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// CompactionScheduler periodically sweeps expired entries out of the
// in-memory dedup and session stores. Reads already ignore expired entries,
// so a sweep only bounds memory.
type CompactionScheduler struct {
	compactors []shared.Compactor
	logger     *zap.Logger
	config     CompactionSchedulerConfig
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	isRunning  bool
}

// CompactionSchedulerConfig holds configuration for the compaction scheduler
type CompactionSchedulerConfig struct {
	// Interval between sweeps
	Interval time.Duration

	// Timeout bounds a single sweep across all stores
	Timeout time.Duration
}

// DefaultCompactionSchedulerConfig returns default configuration
func DefaultCompactionSchedulerConfig() CompactionSchedulerConfig {
	return CompactionSchedulerConfig{
		Interval: 5 * time.Minute,
		Timeout:  30 * time.Second,
	}
}

// NewCompactionScheduler creates a new compaction scheduler
func NewCompactionScheduler(
	compactors []shared.Compactor,
	logger *zap.Logger,
	config CompactionSchedulerConfig,
) *CompactionScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultCompactionSchedulerConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &CompactionScheduler{
		compactors: compactors,
		logger:     logger,
		config:     config,
	}
}

// Start starts the sweep loop. With nothing to compact (redis expires keys
// itself) it does nothing.
func (s *CompactionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if len(s.compactors) == 0 {
		s.mu.Unlock()
		s.logger.Info("No stores need compaction, scheduler not started")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Compaction scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("stores", len(s.compactors)),
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *CompactionScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Compaction scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Compaction scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the sweep loop is active
func (s *CompactionScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *CompactionScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps every store once and returns the number of entries removed
func (s *CompactionScheduler) RunOnce(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := time.Now()
	total := 0
	for _, c := range s.compactors {
		n, err := c.Compact(ctx)
		if err != nil {
			s.logger.Warn("Store compaction failed", zap.Error(err))
			continue
		}
		total += n
	}

	if total > 0 {
		s.logger.Debug("Compacted expired entries",
			zap.Int("removed", total),
			zap.Duration("duration", time.Since(start)),
		)
	}
	return total
}
