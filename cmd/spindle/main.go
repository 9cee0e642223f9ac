// Command spindle runs a small link-following crawl with the dispatch
// engine, exposing Prometheus metrics while it works.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spindleworks/spindle"
	"github.com/spindleworks/spindle/backend"
	"github.com/spindleworks/spindle/backend/collyhttp"
	"github.com/spindleworks/spindle/dataset"
	"github.com/spindleworks/spindle/dataset/redisq"
	"github.com/spindleworks/spindle/engine"
	"github.com/spindleworks/spindle/internal/config"
	"github.com/spindleworks/spindle/internal/logging"
	"github.com/spindleworks/spindle/metrics"
	"github.com/spindleworks/spindle/router"
)

const tagPage = spindle.Tag("page")

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.Init()

	frontier, err := buildFrontier(cfg, logger)
	if err != nil {
		return err
	}
	results := dataset.NewQueue[any]()

	pool, err := backend.NewPool(
		collyhttp.New(collyhttp.Config{
			UserAgent:     cfg.HTTP.UserAgent,
			Timeout:       time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
			RespectRobots: cfg.HTTP.RespectRobots,
		}),
		backend.PoolConfig{
			MaxConnections: int64(cfg.Pool.MaxConnections),
			AcquireTimeout: time.Duration(cfg.Pool.AcquireTimeoutMs) * time.Millisecond,
		},
	)
	if err != nil {
		return err
	}

	rt := router.New().
		Route(tagPage, pageHandler(cfg.Engine.MaxDepth)).
		Layer(
			router.Recover(),
			router.RateLimit(cfg.HTTP.RatePerHost, cfg.HTTP.Burst),
			router.Logging(logger.Named("router")),
		)

	eng, err := engine.New(engine.Config{
		MaxInFlight:  cfg.Engine.MaxInFlight,
		RetryCeiling: cfg.Engine.RetryCeiling,
		BackoffBase:  cfg.Engine.BackoffBase(),
		BackoffMax:   cfg.Engine.BackoffMax(),
		Logger:       logger.Named("engine"),
	}, frontier, pool, rt, results)
	if err != nil {
		return err
	}

	seeds := make([]*spindle.Request, 0, len(cfg.Seeds))
	for _, raw := range cfg.Seeds {
		seeds = append(seeds, spindle.NewRequest(raw, tagPage))
	}
	if err := eng.Seed(ctx, seeds...); err != nil {
		return err
	}

	srv := serveMetrics(cfg.Server.Port, logger)
	defer shutdownMetrics(srv, logger)

	logger.Info("crawl starting",
		zap.Int("seeds", len(seeds)),
		zap.Int("max_in_flight", cfg.Engine.MaxInFlight),
	)
	stats, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	items, _ := dataset.Drain[any](context.WithoutCancel(ctx), results)
	logger.Info("crawl finished",
		zap.Uint64("processed", stats.Processed),
		zap.Uint64("completed", stats.Completed),
		zap.Uint64("deferred", stats.Deferred),
		zap.Uint64("aborted", stats.Aborted),
		zap.Int("items", len(items)),
	)
	return nil
}

func buildFrontier(cfg config.Config, logger *zap.Logger) (dataset.Dataset[*spindle.Request], error) {
	if cfg.Redis.Addr == "" {
		return dataset.NewQueue[*spindle.Request](), nil
	}
	logger.Info("using redis frontier", zap.String("addr", cfg.Redis.Addr), zap.String("key", cfg.Redis.Key))
	client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	return redisq.New[*spindle.Request](client, cfg.Redis.Key)
}

// pageHandler records the page title and follows same-host links up to the
// depth limit.
func pageHandler(maxDepth int) spindle.HandlerFunc {
	return func(ctx context.Context, cx *spindle.Context) (spindle.Signal, error) {
		req, resp := cx.Request(), cx.Response()
		if resp.Status == http.StatusTooManyRequests {
			return spindle.DeferFor(
				spindle.Errorf(spindle.KindHTTP, "throttled by %s", req.URL),
				5*time.Second,
			), nil
		}
		if resp.Status >= 400 {
			return spindle.Abort(spindle.Errorf(spindle.KindHTTP, "status %d for %s", resp.Status, req.URL)), nil
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
		if err != nil {
			return spindle.Signal{}, spindle.Errorf(spindle.KindWorker, "parse %s: %w", req.URL, err)
		}

		if err := cx.Yield(ctx, map[string]any{
			"url":    resp.URL,
			"status": resp.Status,
			"title":  doc.Find("title").First().Text(),
		}); err != nil {
			return spindle.Signal{}, err
		}

		if req.Depth >= maxDepth {
			return spindle.Continue(), nil
		}
		base, err := url.Parse(resp.URL)
		if err != nil {
			return spindle.Continue(), nil
		}
		var followErr error
		doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			href, _ := sel.Attr("href")
			target, err := base.Parse(href)
			if err != nil || target.Hostname() != base.Hostname() {
				return true
			}
			target.Fragment = ""
			if err := cx.Follow(ctx, target.String(), tagPage); err != nil {
				followErr = err
				return false
			}
			return true
		})
		return spindle.Signal{}, followErr
	}
}

func serveMetrics(port int, logger *zap.Logger) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return srv
}

func shutdownMetrics(srv *http.Server, logger *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}
}
