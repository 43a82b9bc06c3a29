package session

import (
	"context"
	"sync"
)

// CancellationSource scopes the outstanding work of one state. Cancel is
// idempotent; only the first call has an effect.
type CancellationSource struct {
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled bool
	count     int
}

// NewCancellationSource returns a live source.
func NewCancellationSource() *CancellationSource {
	ctx, cancel := context.WithCancel(context.Background())
	return &CancellationSource{ctx: ctx, cancel: cancel}
}

// Context is done once the source is cancelled.
func (c *CancellationSource) Context() context.Context {
	return c.ctx
}

// Cancel cancels the source and reports whether this call did it.
func (c *CancellationSource) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return false
	}
	c.cancelled = true
	c.count++
	c.cancel()
	return true
}

// IsCancelled reports whether Cancel has been called.
func (c *CancellationSource) IsCancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *CancellationSource) cancellations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// bind derives a context from parent that is also done when src is
// cancelled. The returned stop func must be called.
func bind(parent context.Context, src *CancellationSource) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(src.Context(), cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
