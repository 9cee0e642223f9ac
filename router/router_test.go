package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spindleworks/spindle"
	"github.com/spindleworks/spindle/dataset"
)

func newTestContext(tag spindle.Tag) *spindle.Context {
	req := spindle.NewRequest("https://example.com", tag)
	return spindle.NewContext(req, &spindle.Response{Status: 200}, nil, dataset.NewQueue[*spindle.Request](), nil)
}

func recordingHandler(name string, into *[]string) spindle.HandlerFunc {
	return func(context.Context, *spindle.Context) (spindle.Signal, error) {
		*into = append(*into, name)
		return spindle.Continue(), nil
	}
}

func TestDispatch_RoutesByTag(t *testing.T) {
	t.Parallel()

	var calls []string
	r := New().
		RouteFunc("a", recordingHandler("a", &calls)).
		RouteFunc("b", recordingHandler("b", &calls))
	require.NoError(t, r.Build())

	sig, err := r.Dispatch(context.Background(), newTestContext("b"))
	require.NoError(t, err)
	require.Equal(t, spindle.SignalContinue, sig.Kind())
	require.Equal(t, []string{"b"}, calls)

	_, err = r.Dispatch(context.Background(), newTestContext("a"))
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, calls)
}

func TestDispatch_UnmatchedTag(t *testing.T) {
	t.Parallel()

	var calls []string
	r := New().RouteFunc("a", recordingHandler("a", &calls))
	require.NoError(t, r.Build())

	_, err := r.Dispatch(context.Background(), newTestContext("missing"))
	require.Error(t, err)
	require.Equal(t, spindle.KindContext, spindle.KindOf(err))
	require.Empty(t, calls)
}

func TestDispatch_FallbackCatchesUnmatched(t *testing.T) {
	t.Parallel()

	var calls []string
	r := New().
		RouteFunc("a", recordingHandler("a", &calls)).
		Fallback(recordingHandler("fallback", &calls))
	require.NoError(t, r.Build())

	_, err := r.Dispatch(context.Background(), newTestContext("missing"))
	require.NoError(t, err)
	require.Equal(t, []string{"fallback"}, calls)
}

func TestBuild_RejectsDuplicateTag(t *testing.T) {
	t.Parallel()

	var calls []string
	r := New().
		RouteFunc("a", recordingHandler("first", &calls)).
		RouteFunc("a", recordingHandler("second", &calls))

	err := r.Build()
	require.Error(t, err)
	require.Equal(t, spindle.KindContext, spindle.KindOf(err))
	require.Contains(t, err.Error(), `duplicate route for tag "a"`)
}

func TestBuild_RejectsDoubleFallback(t *testing.T) {
	t.Parallel()

	var calls []string
	r := New().
		Fallback(recordingHandler("one", &calls)).
		Fallback(recordingHandler("two", &calls))
	require.Error(t, r.Build())
}

func TestLayer_LastAppliedExecutesOutermost(t *testing.T) {
	t.Parallel()

	var order []string
	named := func(name string) Middleware {
		return func(next spindle.Handler) spindle.Handler {
			return spindle.HandlerFunc(func(ctx context.Context, cx *spindle.Context) (spindle.Signal, error) {
				order = append(order, name)
				return next.Serve(ctx, cx)
			})
		}
	}

	r := New().
		RouteFunc("a", recordingHandler("handler", &order)).
		Layer(named("inner"), named("outer"))
	require.NoError(t, r.Build())

	_, err := r.Dispatch(context.Background(), newTestContext("a"))
	require.NoError(t, err)
	require.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestRebuild_PublishesLateRoutes(t *testing.T) {
	t.Parallel()

	var calls []string
	r := New().RouteFunc("a", recordingHandler("a", &calls))
	require.NoError(t, r.Build())

	_, err := r.Dispatch(context.Background(), newTestContext("late"))
	require.Error(t, err)

	r.RouteFunc("late", recordingHandler("late", &calls))
	require.NoError(t, r.Rebuild())

	_, err = r.Dispatch(context.Background(), newTestContext("late"))
	require.NoError(t, err)
	require.Equal(t, []string{"late"}, calls)
}

func TestDispatch_BuildsLazily(t *testing.T) {
	t.Parallel()

	var calls []string
	r := New().RouteFunc("a", recordingHandler("a", &calls))

	// No explicit Build; the first dispatch publishes the snapshot.
	_, err := r.Dispatch(context.Background(), newTestContext("a"))
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, calls)
}
