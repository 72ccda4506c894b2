package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits for the data core.
type Config struct {
	// MemoryLimitBytes bounds the memory held by ingest chunk buffers and
	// the in-memory cache tier combined. If 0, usage is tracked but not
	// enforced.
	MemoryLimitBytes int64

	// MaxConcurrentWrites bounds concurrent disk-tier payload writes.
	// If 0, defaults to 8.
	MaxConcurrentWrites int64

	// IOLimitBytesPerSec throttles disk-tier write throughput.
	// If 0, unlimited.
	IOLimitBytesPerSec int64
}

// Controller tracks and limits memory and disk IO shared by the ingestor
// and the cache store.
type Controller struct {
	memSem   *semaphore.Weighted // nil if unlimited
	memUsed  atomic.Int64
	writeSem *semaphore.Weighted
	ioLim    *rate.Limiter
}

// NewController creates a resource controller from cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxConcurrentWrites <= 0 {
		cfg.MaxConcurrentWrites = 8
	}

	c := &Controller{
		writeSem: semaphore.NewWeighted(cfg.MaxConcurrentWrites),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLim = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// AcquireMemory reserves bytes, blocking until available or ctx is done.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// TryAcquireMemory reserves bytes without blocking.
// Returns false if the limit would be exceeded.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return false
	}
	c.memUsed.Add(bytes)
	return true
}

// ReleaseMemory returns previously reserved bytes.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns currently reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireWriteSlot reserves a disk-write slot, blocking until one frees up.
func (c *Controller) AcquireWriteSlot(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.writeSem.Acquire(ctx, 1)
}

// ReleaseWriteSlot returns a disk-write slot.
func (c *Controller) ReleaseWriteSlot() {
	if c == nil {
		return
	}
	c.writeSem.Release(1)
}

// AcquireIO waits until the IO limiter allows writing n bytes.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || c.ioLim == nil || n <= 0 {
		return nil
	}
	// WaitN caps n at the limiter burst; split large writes.
	burst := c.ioLim.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := c.ioLim.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
