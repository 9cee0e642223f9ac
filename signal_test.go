package spindle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalize_PlainSuccessIsContinue(t *testing.T) {
	t.Parallel()

	sig := Normalize(Signal{}, nil)
	require.Equal(t, SignalContinue, sig.Kind())
	require.NoError(t, sig.Reason())
}

func TestNormalize_ErrorBecomesDefer(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	sig := Normalize(Signal{}, cause)
	require.Equal(t, SignalDefer, sig.Kind())
	require.ErrorIs(t, sig.Reason(), cause)
}

func TestNormalize_FatalErrorBecomesAbort(t *testing.T) {
	t.Parallel()

	err := Errorf(KindWorker, "unparseable payload").AsFatal()
	sig := Normalize(Signal{}, err)
	require.Equal(t, SignalAbort, sig.Kind())
	require.ErrorIs(t, sig.Reason(), err)
}

func TestNormalize_ExplicitSignalPassesThrough(t *testing.T) {
	t.Parallel()

	reason := errors.New("slow down")
	sig := Normalize(DeferFor(reason, 2*time.Second), nil)
	require.Equal(t, SignalDefer, sig.Kind())
	require.Equal(t, 2*time.Second, sig.Backoff())
	require.ErrorIs(t, sig.Reason(), reason)

	sig = Normalize(Abort(reason), nil)
	require.Equal(t, SignalAbort, sig.Kind())
}

func TestSignalKindString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "continue", Continue().Kind().String())
	require.Equal(t, "defer", Defer(nil).Kind().String())
	require.Equal(t, "abort", Abort(nil).Kind().String())
}
