package spindle

import "time"

// SignalKind is the tri-state outcome of one handler invocation.
type SignalKind int

const (
	// SignalContinue means the crawl proceeds normally.
	SignalContinue SignalKind = iota
	// SignalDefer means the request re-enters the frontier for a later attempt.
	SignalDefer
	// SignalAbort means the request is permanently dropped and counted as a failure.
	SignalAbort
)

// String returns the label used in logs and metrics.
func (k SignalKind) String() string {
	switch k {
	case SignalDefer:
		return "defer"
	case SignalAbort:
		return "abort"
	default:
		return "continue"
	}
}

// Signal controls what the engine does with a request after its handler
// returns. The zero value is Continue.
type Signal struct {
	kind    SignalKind
	reason  error
	backoff time.Duration
}

// Continue signals that the request completed and the crawl proceeds.
func Continue() Signal {
	return Signal{kind: SignalContinue}
}

// Defer signals that the request should be re-queued for a later attempt.
func Defer(reason error) Signal {
	return Signal{kind: SignalDefer, reason: reason}
}

// DeferFor is Defer with an explicit backoff hint. Without a hint the engine
// applies its exponential policy keyed on the attempt counter.
func DeferFor(reason error, backoff time.Duration) Signal {
	return Signal{kind: SignalDefer, reason: reason, backoff: backoff}
}

// Abort signals that the request is permanently abandoned.
func Abort(reason error) Signal {
	return Signal{kind: SignalAbort, reason: reason}
}

// Kind returns the signal's tri-state kind.
func (s Signal) Kind() SignalKind { return s.kind }

// Reason returns the error attached to a Defer or Abort, nil otherwise.
func (s Signal) Reason() error { return s.reason }

// Backoff returns the explicit backoff hint, zero if none was given.
func (s Signal) Backoff() time.Duration { return s.backoff }

// Normalize folds a handler's (Signal, error) return into a single Signal.
// A nil error passes the signal through (plain success is Continue, the zero
// value). A non-nil error becomes Defer, or Abort when the error is
// explicitly classified as fatal.
func Normalize(sig Signal, err error) Signal {
	if err == nil {
		return sig
	}
	if IsFatal(err) {
		return Abort(err)
	}
	return Defer(err)
}
