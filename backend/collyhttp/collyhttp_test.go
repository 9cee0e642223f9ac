package collyhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spindleworks/spindle"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><title>Home</title></html>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_Success(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	b := New(Config{UserAgent: "test-agent"})
	conn, err := b.Connect(context.Background())
	require.NoError(t, err)

	resp, err := conn.Resolve(context.Background(), spindle.NewRequest(srv.URL+"/", "page"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)
	require.Contains(t, string(resp.Body), "<title>Home</title>")
	require.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	require.Positive(t, resp.Duration)
}

func TestResolve_NonSuccessStatusIsAResponse(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	b := New(Config{})
	conn, err := b.Connect(context.Background())
	require.NoError(t, err)

	resp, err := conn.Resolve(context.Background(), spindle.NewRequest(srv.URL+"/missing", "page"))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.Status)
}

func TestResolve_SameURLResolvesAgain(t *testing.T) {
	t.Parallel()

	// A deferred request is retried with the same URL; the transport must
	// reach the server again instead of refusing the revisit.
	var mu sync.Mutex
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		first := hits == 1
		mu.Unlock()
		if first {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	b := New(Config{})
	req := spindle.NewRequest(srv.URL+"/", "page")

	conn, err := b.Connect(context.Background())
	require.NoError(t, err)
	resp, err := conn.Resolve(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.Status)

	conn, err = b.Connect(context.Background())
	require.NoError(t, err)
	resp, err = conn.Resolve(context.Background(), req.NextAttempt())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.Status)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, hits)
}

func TestResolve_UnreachableHostFails(t *testing.T) {
	t.Parallel()

	b := New(Config{Timeout: time.Second})
	conn, err := b.Connect(context.Background())
	require.NoError(t, err)

	_, err = conn.Resolve(context.Background(), spindle.NewRequest("http://127.0.0.1:1/", "page"))
	require.Error(t, err)
	require.Equal(t, spindle.KindHTTP, spindle.KindOf(err))
}

func TestResolve_CancellationWins(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)

	b := New(Config{Timeout: 10 * time.Second})
	conn, err := b.Connect(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = conn.Resolve(ctx, spindle.NewRequest(srv.URL+"/slow", "page"))
	require.Error(t, err)
	require.Equal(t, spindle.KindHTTP, spindle.KindOf(err))
}
