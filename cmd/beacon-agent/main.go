package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"beacon/internal/bootstrap"
	"beacon/internal/connectivity"
	"beacon/internal/flush"
	"beacon/internal/identity"
	"beacon/internal/platform/config"
	"beacon/internal/platform/httpserver"
	"beacon/internal/platform/logger"
	"beacon/internal/platform/metrics"
	"beacon/internal/platform/otel"
	"beacon/internal/queue"
	"beacon/internal/tracker"
	httptransport "beacon/internal/transport/http"
)

// main wires high-level dependencies and keeps the agent lifecycle small.
// Delivery logic lives in the internal packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "beacon-agent: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, cfg.Otel, "beacon-agent")
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backend, closeStorage, err := bootstrap.OpenStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer closeStorage()

	s, closeSink, err := bootstrap.NewSink(ctx, cfg, log, m)
	if err != nil {
		return fmt.Errorf("build sink: %w", err)
	}
	defer closeSink()

	store := queue.NewStore(backend, queue.WithLogger(log))
	ids := identity.New(backend, identity.WithLogger(log))
	monitor := connectivity.NewMonitor(cfg.Connectivity.StartOnline, connectivity.WithLogger(log))
	m.SetQueueDepth(store.Len(ctx))

	coord, err := flush.New(store, monitor, s, flush.WithLogger(log), flush.WithMetrics(m))
	if err != nil {
		return err
	}
	tr, err := tracker.New(s, store, ids, monitor, coord, tracker.WithLogger(log), tracker.WithMetrics(m))
	if err != nil {
		return err
	}
	defer tr.Close()

	handler := httptransport.NewHandler(tr, coord, store, ids, monitor, log,
		httptransport.WithGatherer(reg),
		httptransport.WithAdminToken(cfg.AdminToken),
	)
	srv := httpserver.New(cfg.HTTPAddr, httptransport.NewRouter(handler))

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Connectivity.StatusFile != "" {
		fs := connectivity.NewFileSignal(cfg.Connectivity.StatusFile, monitor, log)
		g.Go(func() error { return fs.Run(gctx) })
	}
	if cfg.Connectivity.ProbeURL != "" {
		p := connectivity.NewProber(cfg.Connectivity.ProbeURL, cfg.Connectivity.ProbeInterval, monitor,
			&http.Client{Timeout: 5 * time.Second}, log)
		g.Go(func() error { return p.Run(gctx) })
	}

	g.Go(func() error {
		res := <-tr.Init(gctx)
		log.InfoContext(gctx, "tracker initialised",
			"flush_status", string(res.Status),
			"delivered", res.Delivered,
		)
		return nil
	})

	g.Go(func() error {
		log.Info("starting beacon-agent",
			"addr", cfg.HTTPAddr,
			"storage", cfg.Storage.Driver,
			"sink", cfg.Sink.Kind,
		)
		return httpserver.Run(gctx, srv, 10*time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("beacon-agent stopped")
	return nil
}
