package spindle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spindleworks/spindle/dataset"
)

func TestContext_FollowPushesChild(t *testing.T) {
	t.Parallel()

	frontier := dataset.NewQueue[*Request]()
	req := NewRequest("https://example.com", Tag("page"))
	cx := NewContext(req, &Response{Status: 200}, nil, frontier, nil)

	require.NoError(t, cx.Follow(context.Background(), "https://example.com/next", Tag("page")))

	child, ok, err := frontier.Pop(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://example.com/next", child.URL)
	require.Equal(t, req.Depth+1, child.Depth)
}

func TestContext_YieldWritesToSink(t *testing.T) {
	t.Parallel()

	sink := dataset.NewQueue[any]()
	cx := NewContext(NewRequest("https://example.com", Tag("page")), &Response{}, nil, dataset.NewQueue[*Request](), sink)

	require.NoError(t, cx.Yield(context.Background(), "item"))
	require.Equal(t, 1, sink.Len())
}

func TestContext_YieldWithoutSinkFails(t *testing.T) {
	t.Parallel()

	cx := NewContext(NewRequest("https://example.com", Tag("page")), &Response{}, nil, dataset.NewQueue[*Request](), nil)

	err := cx.Yield(context.Background(), "item")
	require.Error(t, err)
	require.Equal(t, KindContext, KindOf(err))
}

func TestContext_StateIsExposed(t *testing.T) {
	t.Parallel()

	type appState struct{ Name string }
	cx := NewContext(NewRequest("https://example.com", Tag("page")), &Response{}, &appState{Name: "run"}, dataset.NewQueue[*Request](), nil)

	state, ok := cx.State().(*appState)
	require.True(t, ok)
	require.Equal(t, "run", state.Name)
}
