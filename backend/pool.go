package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/spindleworks/spindle"
)

// PoolConfig bounds the pool.
type PoolConfig struct {
	// MaxConnections is the hard upper bound on simultaneously checked-out
	// connections. Required.
	MaxConnections int64
	// AcquireTimeout bounds how long Connect may suspend waiting for a free
	// slot. Zero means wait as long as the caller's context allows.
	AcquireTimeout time.Duration
}

// Pool wraps a Backend with a bounded checkout count. Acquisition suspends
// when the pool is saturated; a connection's slot is returned when its single
// Resolve call finishes.
type Pool struct {
	backend Backend
	sem     *semaphore.Weighted
	timeout time.Duration

	mu    sync.Mutex
	inUse int
	peak  int
}

// PoolStats reports checkout counts, mainly for observability and tests.
type PoolStats struct {
	InUse int
	Peak  int
}

// NewPool builds a Pool. A non-positive bound is a configuration error and
// fails setup.
func NewPool(b Backend, cfg PoolConfig) (*Pool, error) {
	if b == nil {
		return nil, spindle.Errorf(spindle.KindBackend, "pool requires a backend")
	}
	if cfg.MaxConnections <= 0 {
		return nil, spindle.Errorf(spindle.KindBackend, "pool bound must be positive, got %d", cfg.MaxConnections)
	}
	return &Pool{
		backend: b,
		sem:     semaphore.NewWeighted(cfg.MaxConnections),
		timeout: cfg.AcquireTimeout,
	}, nil
}

// Connect acquires a slot, then a connection from the underlying backend.
// A saturated pool suspends the caller; if the acquisition timeout elapses
// first, Connect fails with a timeout-kind error.
func (p *Pool) Connect(ctx context.Context) (Connection, error) {
	acquireCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, spindle.Errorf(spindle.KindTimeout, "pool acquisition timed out after %s", p.timeout)
		}
		return nil, spindle.Errorf(spindle.KindBackend, "pool acquisition: %w", err)
	}

	conn, err := p.backend.Connect(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, spindle.Errorf(spindle.KindBackend, "backend connect: %w", err)
	}

	p.checkout()
	return &pooledConn{inner: conn, release: p.checkin}, nil
}

func (p *Pool) checkout() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inUse++
	if p.inUse > p.peak {
		p.peak = p.inUse
	}
}

func (p *Pool) checkin() {
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()
	p.sem.Release(1)
}

// Stats returns current and peak checkout counts.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{InUse: p.inUse, Peak: p.peak}
}

// pooledConn returns its slot to the pool when its Resolve finishes, whether
// or not the resolution succeeded. A connection is consumed by one Resolve.
type pooledConn struct {
	inner   Connection
	once    sync.Once
	release func()
}

func (c *pooledConn) Resolve(ctx context.Context, req *spindle.Request) (*spindle.Response, error) {
	defer c.once.Do(c.release)
	resp, err := c.inner.Resolve(ctx, req)
	if err != nil {
		var classified *spindle.Error
		if errors.As(err, &classified) {
			return nil, err
		}
		return nil, spindle.Errorf(spindle.KindHTTP, "resolve %s: %w", req.URL, err)
	}
	return resp, nil
}
