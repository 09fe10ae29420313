package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/isdmx/runbox/config"
)

// ErrAdmissionTimeout is returned when no slot becomes free within the
// queue-wait timeout.
var ErrAdmissionTimeout = errors.New("admission timeout")

// Controller bounds the number of concurrently running sandboxes.
// Waiters are served in FIFO order by the weighted semaphore, so a
// burst cannot starve earlier arrivals.
type Controller struct {
	logger    *zap.Logger
	sem       *semaphore.Weighted
	capacity  int
	queueWait time.Duration
}

// New creates a controller with the given capacity and queue-wait timeout
func New(logger *zap.Logger, capacity int, queueWait time.Duration) (*Controller, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("admission capacity must be positive, got: %d", capacity)
	}
	if queueWait <= 0 {
		return nil, fmt.Errorf("queue wait must be positive, got: %s", queueWait)
	}

	return &Controller{
		logger:    logger,
		sem:       semaphore.NewWeighted(int64(capacity)),
		capacity:  capacity,
		queueWait: queueWait,
	}, nil
}

// NewFromConfig creates a controller from the loaded configuration
func NewFromConfig(logger *zap.Logger, cfg *config.Config) (*Controller, error) {
	return New(logger, cfg.Sandbox.MaxConcurrentExecutions, cfg.GetQueueWait())
}

// Capacity returns the configured concurrency bound.
func (c *Controller) Capacity() int {
	return c.capacity
}

// Acquire blocks until a slot is free, the queue-wait timeout elapses
// (ErrAdmissionTimeout), or ctx is canceled. The returned slot must be
// released; Release is idempotent so deferred release is safe on every
// exit path.
func (c *Controller) Acquire(ctx context.Context) (*Slot, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.queueWait)
	defer cancel()

	if err := c.sem.Acquire(waitCtx, 1); err != nil {
		if waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			c.logger.Warn("admission queue wait timed out", zap.Duration("queue_wait", c.queueWait))
			return nil, ErrAdmissionTimeout
		}
		return nil, fmt.Errorf("admission wait canceled: %w", err)
	}

	return &Slot{release: func() { c.sem.Release(1) }}, nil
}

// Slot is one unit of admission capacity. Holding it permits one
// sandbox to run.
type Slot struct {
	once    sync.Once
	release func()
}

// Release returns the slot to the controller. Safe to call more than once.
func (s *Slot) Release() {
	s.once.Do(s.release)
}
