package spindle

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind categorizes a failure by the component boundary it crossed.
type ErrorKind int

// Error kinds, in rough order of how often they show up in a crawl.
const (
	// KindOther is the zero value for unclassified failures.
	KindOther ErrorKind = iota
	// KindHTTP covers transport-level resolution failures.
	KindHTTP
	// KindDataset covers frontier and sink I/O failures.
	KindDataset
	// KindWorker covers handler and task-management failures.
	KindWorker
	// KindBackend covers connection establishment failures.
	KindBackend
	// KindContext covers dispatch and routing failures, e.g. an unmatched tag.
	KindContext
	// KindIO covers file-system and other local I/O failures.
	KindIO
	// KindTimeout covers deadline and acquisition-timeout failures.
	KindTimeout
)

// String returns the lowercase label used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindDataset:
		return "dataset"
	case KindWorker:
		return "worker"
	case KindBackend:
		return "backend"
	case KindContext:
		return "context"
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// Error is the structured failure type returned at every component boundary.
// It wraps an optional source error so errors.Is and errors.As keep working
// through the taxonomy.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Cause error
	fatal bool
}

// Errorf builds an *Error with a formatted message. A %w verb wraps the
// source error as usual.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{
		Kind:  kind,
		Msg:   wrapped.Error(),
		Cause: errors.Unwrap(wrapped),
	}
}

// AsFatal marks the error as non-retryable: the engine escalates it straight
// to an abort instead of deferring the request.
func (e *Error) AsFatal() *Error {
	e.fatal = true
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Msg)
}

// Unwrap exposes the source error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf reports the ErrorKind of err. Deadline errors classify as
// KindTimeout even when they were never wrapped into an *Error.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindOther
}

// Retryable reports whether a resolution-phase failure should be converted
// to a deferral. HTTP, timeout, and backend failures are retryable; anything
// else aborts the request.
func Retryable(err error) bool {
	if IsFatal(err) {
		return false
	}
	switch KindOf(err) {
	case KindHTTP, KindTimeout, KindBackend:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err was explicitly classified as fatal.
func IsFatal(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.fatal
}
