// Package engine implements the run loop at the heart of the crawl client:
// it pulls requests from the frontier, resolves them through a pooled
// backend, dispatches them to handler chains by tag, and interprets the
// resulting signal to continue, defer, or abandon each request.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spindleworks/spindle"
	"github.com/spindleworks/spindle/backend"
	"github.com/spindleworks/spindle/dataset"
	"github.com/spindleworks/spindle/metrics"
)

// Connector acquires connections for request resolution. *backend.Pool is
// the usual implementation.
type Connector interface {
	Connect(ctx context.Context) (backend.Connection, error)
}

// Dispatcher routes a built context to its handler chain. *router.Router is
// the usual implementation.
type Dispatcher interface {
	// Build validates the routing configuration; errors are fatal at setup.
	Build() error
	// Dispatch invokes the chain matched by the context's tag.
	Dispatch(ctx context.Context, cx *spindle.Context) (spindle.Signal, error)
}

// Config is the engine's configuration surface.
type Config struct {
	// MaxInFlight bounds concurrently executing request state machines.
	MaxInFlight int
	// RetryCeiling is the number of deferrals allowed per request before a
	// Defer is escalated to Abort, so a request is attempted at most
	// RetryCeiling+1 times. Unbounded retry is a defect; zero means the
	// default of 3.
	RetryCeiling int
	// BackoffBase and BackoffMax shape the exponential backoff applied to
	// deferred requests that carry no explicit hint.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// IdleTick is how often the loop re-checks an empty frontier while
	// tasks are still in flight.
	IdleTick time.Duration
	// KeepAlive, when positive, keeps the loop alive for that long after
	// the frontier drains, in case an external producer seeds more work.
	KeepAlive time.Duration
	// State is shared immutable application state exposed to handlers.
	State any
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

func (c *Config) withDefaults() {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 8
	}
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 250 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Second
	}
	if c.IdleTick <= 0 {
		c.IdleTick = 10 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Stats summarizes one run.
type Stats struct {
	// Processed counts dispatch attempts, retries included.
	Processed uint64
	// Completed counts requests that finished with Continue.
	Completed uint64
	// Deferred counts requeues.
	Deferred uint64
	// Aborted counts permanently dropped requests.
	Aborted uint64
}

// Engine coordinates the frontier, the backend pool, and the router.
type Engine struct {
	cfg       Config
	frontier  dataset.Dataset[*spindle.Request]
	connector Connector
	router    Dispatcher
	sink      dataset.Sink[any]
	logger    *zap.Logger
	backoff   backoffPolicy

	inflight atomic.Int64
	wake     chan struct{}
	retries  sync.WaitGroup

	processed atomic.Uint64
	completed atomic.Uint64
	deferred  atomic.Uint64
	aborted   atomic.Uint64
}

// New validates the configuration and builds an Engine. Router configuration
// errors (duplicate tags) surface here and abort startup.
func New(
	cfg Config,
	frontier dataset.Dataset[*spindle.Request],
	connector Connector,
	dispatcher Dispatcher,
	sink dataset.Sink[any],
) (*Engine, error) {
	if frontier == nil {
		return nil, spindle.Errorf(spindle.KindDataset, "engine requires a frontier store")
	}
	if connector == nil {
		return nil, spindle.Errorf(spindle.KindBackend, "engine requires a connector")
	}
	if dispatcher == nil {
		return nil, spindle.Errorf(spindle.KindContext, "engine requires a dispatcher")
	}
	if err := dispatcher.Build(); err != nil {
		return nil, err
	}
	cfg.withDefaults()
	metrics.Init()

	return &Engine{
		cfg:       cfg,
		frontier:  frontier,
		connector: connector,
		router:    dispatcher,
		sink:      sink,
		logger:    cfg.Logger,
		backoff: backoffPolicy{
			base: cfg.BackoffBase,
			max:  cfg.BackoffMax,
		},
		wake: make(chan struct{}, 1),
	}, nil
}

// Seed pushes the initial requests onto the frontier.
func (e *Engine) Seed(ctx context.Context, reqs ...*spindle.Request) error {
	if err := dataset.PushAll(ctx, dataset.Sink[*spindle.Request](e.frontier), reqs...); err != nil {
		return spindle.Errorf(spindle.KindDataset, "seed frontier: %w", err)
	}
	for range reqs {
		metrics.ObserveFrontierPush()
	}
	return nil
}

// Run executes the dispatch loop until the frontier is empty with no tasks in
// flight, or until ctx is cancelled. Shutdown is graceful: no new dequeues
// happen after cancellation, in-flight tasks reach a terminal state, and
// deferred requests are pushed back so the frontier survives a restart.
//
// Individual request failures never fail the run; only an unusable frontier
// does.
func (e *Engine) Run(ctx context.Context) (Stats, error) {
	slots := make(chan struct{}, e.cfg.MaxInFlight)
	var wg sync.WaitGroup
	var fatal error
	var idleSince time.Time

loop:
	for {
		if ctx.Err() != nil {
			break
		}
		req, ok, err := e.frontier.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fatal = spindle.Errorf(spindle.KindDataset, "frontier pop: %w", err)
			break
		}
		if !ok {
			if e.inflight.Load() > 0 {
				// In-flight tasks may still requeue or follow up.
				select {
				case <-ctx.Done():
				case <-e.wake:
				case <-time.After(e.cfg.IdleTick):
				}
				continue
			}
			// Every task requeues before it is counted finished, so with
			// zero in flight one more pop settles whether we are done.
			req, ok, err = e.frontier.Pop(ctx)
			if err != nil {
				if ctx.Err() != nil {
					break
				}
				fatal = spindle.Errorf(spindle.KindDataset, "frontier pop: %w", err)
				break
			}
			if !ok {
				if e.cfg.KeepAlive > 0 {
					if idleSince.IsZero() {
						idleSince = time.Now()
					}
					if time.Since(idleSince) < e.cfg.KeepAlive {
						select {
						case <-ctx.Done():
						case <-time.After(e.cfg.IdleTick):
						}
						continue
					}
				}
				break
			}
		}
		idleSince = time.Time{}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			// Preserve the request we already popped.
			if err := e.frontier.Push(context.WithoutCancel(ctx), req); err != nil {
				e.logger.Error("requeue on shutdown failed", zap.String("url", req.URL), zap.Error(err))
			}
			break loop
		}

		e.inflight.Add(1)
		metrics.IncInFlight()
		wg.Add(1)
		go func(req *spindle.Request) {
			defer wg.Done()
			e.process(ctx, req)
			// A deferred retry was counted as in flight inside process
			// before this decrement, so the main loop never observes zero
			// in-flight with a requeue still pending.
			e.inflight.Add(-1)
			metrics.DecInFlight()
			select {
			case e.wake <- struct{}{}:
			default:
			}
			<-slots
		}(req)
	}

	wg.Wait()
	e.retries.Wait()
	return e.stats(), fatal
}

// process drives one request through Dispatching, Resolving, Routing, and
// SignalHandling.
func (e *Engine) process(ctx context.Context, req *spindle.Request) {
	start := time.Now()
	e.processed.Add(1)

	conn, err := e.connector.Connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			e.preserve(ctx, req)
			return
		}
		// Acquisition failure counts against the retry ceiling like any
		// other deferral.
		e.handleSignal(ctx, req, e.severity(err), time.Since(start))
		return
	}

	resp, err := conn.Resolve(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			e.preserve(ctx, req)
			return
		}
		e.handleSignal(ctx, req, e.severity(err), time.Since(start))
		return
	}

	cx := spindle.NewContext(req, resp, e.cfg.State, e.frontier, e.sink)
	sig, err := e.router.Dispatch(ctx, cx)
	e.handleSignal(ctx, req, spindle.Normalize(sig, err), time.Since(start))
}

// severity maps a resolution-phase error to its implicit signal: HTTP,
// timeout, and backend failures defer; anything else aborts.
func (e *Engine) severity(err error) spindle.Signal {
	if spindle.Retryable(err) {
		return spindle.Defer(err)
	}
	return spindle.Abort(err)
}

func (e *Engine) handleSignal(ctx context.Context, req *spindle.Request, sig spindle.Signal, elapsed time.Duration) {
	tag := string(req.Tag)

	if sig.Kind() == spindle.SignalDefer && req.Attempt >= e.cfg.RetryCeiling {
		e.logger.Warn("retry ceiling reached, dropping request",
			zap.String("tag", tag),
			zap.String("url", req.URL),
			zap.Int("attempts", req.Attempt+1),
			zap.Error(sig.Reason()),
		)
		sig = spindle.Abort(sig.Reason())
	}

	metrics.ObserveDispatch(tag, sig.Kind().String(), elapsed)

	switch sig.Kind() {
	case spindle.SignalContinue:
		e.completed.Add(1)

	case spindle.SignalDefer:
		e.deferred.Add(1)
		metrics.ObserveRetry(tag)
		delay := sig.Backoff()
		if delay <= 0 {
			delay = e.backoff.delay(req.Attempt)
		}
		e.logger.Debug("request deferred",
			zap.String("tag", tag),
			zap.String("url", req.URL),
			zap.Int("attempt", req.Attempt),
			zap.Duration("backoff", delay),
			zap.Error(sig.Reason()),
		)
		// The backoff wait must not hold an execution slot. The pending
		// retry counts as in flight until it lands on the frontier, so the
		// run loop cannot terminate underneath it.
		e.inflight.Add(1)
		e.retries.Add(1)
		go func(next *spindle.Request) {
			defer e.retries.Done()
			e.requeueAfter(ctx, next, delay)
			e.inflight.Add(-1)
			select {
			case e.wake <- struct{}{}:
			default:
			}
		}(req.NextAttempt())

	case spindle.SignalAbort:
		e.aborted.Add(1)
		metrics.ObserveFailure(tag)
		e.logger.Warn("request aborted",
			zap.String("tag", tag),
			zap.String("url", req.URL),
			zap.Int("attempt", req.Attempt),
			zap.Error(sig.Reason()),
		)
	}
}

// requeueAfter waits out the backoff, then pushes the retry. Cancellation
// skips the remaining wait but still pushes, so the request is not lost.
func (e *Engine) requeueAfter(ctx context.Context, req *spindle.Request, delay time.Duration) {
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	if err := e.frontier.Push(context.WithoutCancel(ctx), req); err != nil {
		e.logger.Error("requeue failed",
			zap.String("tag", string(req.Tag)),
			zap.String("url", req.URL),
			zap.Error(err),
		)
		return
	}
	metrics.ObserveFrontierPush()
}

// preserve pushes a request back unchanged during shutdown: the attempt was
// interrupted, not failed.
func (e *Engine) preserve(ctx context.Context, req *spindle.Request) {
	e.processed.Add(^uint64(0)) // interrupted attempts do not count
	if err := e.frontier.Push(context.WithoutCancel(ctx), req); err != nil {
		e.logger.Error("preserve on shutdown failed", zap.String("url", req.URL), zap.Error(err))
	}
}

func (e *Engine) stats() Stats {
	return Stats{
		Processed: e.processed.Load(),
		Completed: e.completed.Load(),
		Deferred:  e.deferred.Load(),
		Aborted:   e.aborted.Load(),
	}
}
