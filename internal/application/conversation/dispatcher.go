package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tallyline/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// DefaultHandleTimeout bounds the processing of one inbound message
const DefaultHandleTimeout = 30 * time.Second

// ErrDispatcherClosed is returned by Submit after Shutdown
var ErrDispatcherClosed = errors.New("dispatcher is shut down")

// InboundHandler processes one inbound message
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg InboundMessage) error
}

// Dispatcher runs each inbound message on its own goroutine, detached from
// the request that delivered it, and tracks them for graceful shutdown.
type Dispatcher struct {
	handler InboundHandler
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(handler InboundHandler, logger *zap.Logger, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultHandleTimeout
	}
	return &Dispatcher{
		handler: handler,
		logger:  logger,
		timeout: timeout,
	}
}

// Submit starts processing msg and returns immediately. ctx only carries
// values (trace, request id); its cancellation does not stop the work.
func (d *Dispatcher) Submit(ctx context.Context, msg InboundMessage) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	d.mu.Unlock()

	log := logger.Enrich(ctx, d.logger)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("Panic while handling inbound message",
					zap.String("message_id", msg.ID),
					zap.Any("panic", r),
				)
			}
		}()

		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.handler.HandleInbound(runCtx, msg); err != nil {
			log.Error("Failed to handle inbound message",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Shutdown stops accepting messages and waits for in-flight ones, or for
// ctx to end.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Inbound dispatcher drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
