// Package collyhttp implements the backend contract over the Colly HTTP
// collector, with a pooled transport shared across connections.
package collyhttp

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/spindleworks/spindle"
	"github.com/spindleworks/spindle/backend"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	Timeout       time.Duration
	RespectRobots bool
}

// Backend hands out connections backed by clones of one base collector, so
// all connections share the pooled HTTP transport.
type Backend struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Backend.
func New(cfg Config) *Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	// Deferred requests come back with the same URL; dedup belongs to the
	// frontier, not the transport.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newTransport())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	c.SetRequestTimeout(cfg.Timeout)
	return &Backend{cfg: cfg, base: c}
}

// Connect returns a connection around a collector clone. Cloning is cheap;
// the transport and its connection pool are shared.
func (b *Backend) Connect(_ context.Context) (backend.Connection, error) {
	return &conn{collector: b.base.Clone()}, nil
}

type conn struct {
	collector *colly.Collector
}

// Resolve performs a single GET. A non-2xx status is surfaced in the
// response, not as an error.
func (c *conn) Resolve(ctx context.Context, req *spindle.Request) (*spindle.Response, error) {
	var (
		result   *spindle.Response
		fetchErr error
	)
	start := time.Now()

	c.collector.OnResponse(func(r *colly.Response) {
		result = &spindle.Response{
			URL:      r.Request.URL.String(),
			Status:   r.StatusCode,
			Header:   r.Headers.Clone(),
			Body:     append([]byte(nil), r.Body...),
			Duration: time.Since(start),
		}
	})
	c.collector.OnError(func(r *colly.Response, err error) {
		// Colly reports non-2xx statuses through OnError; keep them as
		// responses so handlers can inspect the status themselves.
		if r != nil && r.StatusCode > 0 {
			result = &spindle.Response{
				URL:      req.URL,
				Status:   r.StatusCode,
				Header:   r.Headers.Clone(),
				Body:     append([]byte(nil), r.Body...),
				Duration: time.Since(start),
			}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- c.collector.Visit(req.URL)
	}()

	select {
	case <-ctx.Done():
		return nil, spindle.Errorf(spindle.KindHTTP, "fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, spindle.Errorf(spindle.KindHTTP, "fetch %s: %w", req.URL, fetchErr)
		}
		if result != nil {
			return result, nil
		}
		if err != nil {
			return nil, spindle.Errorf(spindle.KindHTTP, "visit %s: %w", req.URL, err)
		}
		return nil, spindle.Errorf(spindle.KindHTTP, "no response for %s", req.URL)
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
