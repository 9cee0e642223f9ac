package router

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spindleworks/spindle"
)

// Timeout bounds each handler invocation. A handler that overruns returns a
// timeout-kind error, which normalizes to a deferral.
func Timeout(d time.Duration) Middleware {
	return func(next spindle.Handler) spindle.Handler {
		return spindle.HandlerFunc(func(ctx context.Context, cx *spindle.Context) (spindle.Signal, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			sig, err := next.Serve(ctx, cx)
			if err != nil && errors.Is(err, context.DeadlineExceeded) {
				return sig, spindle.Errorf(spindle.KindTimeout, "handler timed out after %s: %w", d, err)
			}
			return sig, err
		})
	}
}

// Recover converts a handler panic into a worker-kind error so one bad
// handler cannot take down the run loop.
func Recover() Middleware {
	return func(next spindle.Handler) spindle.Handler {
		return spindle.HandlerFunc(func(ctx context.Context, cx *spindle.Context) (sig spindle.Signal, err error) {
			defer func() {
				if v := recover(); v != nil {
					err = spindle.Errorf(spindle.KindWorker, "handler panic: %v", v)
				}
			}()
			return next.Serve(ctx, cx)
		})
	}
}

// Logging records each dispatch with its tag, URL, duration, and outcome.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next spindle.Handler) spindle.Handler {
		return spindle.HandlerFunc(func(ctx context.Context, cx *spindle.Context) (spindle.Signal, error) {
			start := time.Now()
			sig, err := next.Serve(ctx, cx)
			norm := spindle.Normalize(sig, err)
			logger.Debug("dispatch handled",
				zap.String("tag", string(cx.Request().Tag)),
				zap.String("url", cx.Request().URL),
				zap.Duration("duration", time.Since(start)),
				zap.Stringer("signal", norm.Kind()),
				zap.Error(err),
			)
			return sig, err
		})
	}
}

// RateLimit throttles dispatches with a per-host token bucket. Hosts not yet
// seen get a fresh limiter with the configured rate and burst.
func RateLimit(rps float64, burst int) Middleware {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	l := &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     limit,
		burst:    burst,
	}
	return func(next spindle.Handler) spindle.Handler {
		return spindle.HandlerFunc(func(ctx context.Context, cx *spindle.Context) (spindle.Signal, error) {
			if err := l.wait(ctx, cx.Request().URL); err != nil {
				return spindle.Signal{}, err
			}
			return next.Serve(ctx, cx)
		})
	}
}

type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func (l *hostLimiter) wait(ctx context.Context, rawURL string) error {
	host := "unknown"
	if u, err := url.Parse(rawURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return spindle.Errorf(spindle.KindWorker, "rate limit wait: %w", err)
	}
	return nil
}
