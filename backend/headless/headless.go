// Package headless implements the backend contract with chromedp: each
// resolution navigates a headless Chrome tab and returns the rendered DOM.
package headless

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/spindleworks/spindle"
	"github.com/spindleworks/spindle/backend"
)

// Config controls browser behavior.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
}

// Backend owns a shared Chrome exec allocator; connections are tabs
// allocated from it.
type Backend struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
}

// New starts the allocator. Close must be called to reap the browser.
func New(cfg Config) (*Backend, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Backend{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (b *Backend) Close() {
	b.allocCancel()
}

// Connect allocates a browser tab context.
func (b *Backend) Connect(_ context.Context) (backend.Connection, error) {
	if b.allocator.Err() != nil {
		return nil, spindle.Errorf(spindle.KindBackend, "browser allocator closed: %w", b.allocator.Err())
	}
	return &tab{backend: b}, nil
}

type tab struct {
	backend *Backend
}

// Resolve navigates to the request URL, waits for the document body, and
// returns the rendered outer HTML. The main-document status and headers are
// captured from the network event stream.
func (t *tab) Resolve(ctx context.Context, req *spindle.Request) (*spindle.Response, error) {
	taskCtx, taskCancel := chromedp.NewContext(t.backend.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, t.backend.cfg.NavigationTimeout)
	defer cancel()

	// Unwind the tab promptly when the engine cancels the dispatch.
	stop := context.AfterFunc(ctx, taskCancel)
	defer stop()

	meta := &responseMeta{url: req.URL}
	chromedp.ListenTarget(taskCtx, meta.capture)

	var (
		html     string
		finalURL string
	)
	start := time.Now()
	err := chromedp.Run(taskCtx,
		network.Enable(),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, spindle.Errorf(spindle.KindHTTP, "render canceled: %w", ctx.Err())
		}
		return nil, spindle.Errorf(spindle.KindHTTP, "render %s: %w", req.URL, err)
	}

	status, header := meta.snapshot()
	if finalURL == "" {
		finalURL = req.URL
	}
	return &spindle.Response{
		URL:      finalURL,
		Status:   status,
		Header:   header,
		Body:     []byte(html),
		Duration: time.Since(start),
	}, nil
}

// responseMeta collects the main-document response event.
type responseMeta struct {
	mu     sync.Mutex
	url    string
	status int
	header http.Header
}

func (m *responseMeta) capture(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(resp.Response.Status)
	m.header = http.Header{}
	for k, v := range resp.Response.Headers {
		if s, ok := v.(string); ok {
			m.header.Set(k, s)
		}
	}
}

func (m *responseMeta) snapshot() (int, http.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	header := m.header
	if header == nil {
		header = http.Header{}
	}
	return status, header
}
