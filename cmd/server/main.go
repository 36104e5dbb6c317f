package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"pkt.systems/psi"
	"pkt.systems/pslog"

	"github.com/bterminal/bterminal/internal/api"
	"github.com/bterminal/bterminal/internal/audit"
	"github.com/bterminal/bterminal/internal/config"
	"github.com/bterminal/bterminal/internal/events"
	"github.com/bterminal/bterminal/internal/metrics"
	"github.com/bterminal/bterminal/internal/session"
	"github.com/bterminal/bterminal/internal/shell"
)

const shutdownTimeout = 5 * time.Second

func main() {
	psi.Run(run)
}

func run(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "err", err)
		return 1
	}

	shellPath, err := shell.ResolveShell(cfg.Shell)
	if err != nil {
		logger.Error("no usable shell", "shell", cfg.Shell, "err", err)
		return 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := events.NewBus(logger)
	var forwarders sync.WaitGroup
	forward := func(sink events.Sink) {
		forwarders.Add(1)
		go func() {
			defer forwarders.Done()
			// Runs until bus.Close.
			bus.Forward(context.Background(), sink)
		}()
	}

	if cfg.NATSURL != "" {
		sink, err := events.NewNATSSink(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Error("failed to connect NATS event sink", "url", cfg.NATSURL, "err", err)
			return 1
		}
		defer sink.Close()
		forward(sink)
	}

	if cfg.RedisURL != "" {
		sink, err := events.NewRedisSink(cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			logger.Error("failed to connect Redis event sink", "err", err)
			return 1
		}
		defer sink.Close()
		forward(sink)
	}

	var store audit.Store
	if cfg.AuditEnabled() {
		store, err = audit.Open(ctx, cfg.AuditDBURL, cfg.DataDir)
		if err != nil {
			logger.Error("failed to open audit journal", "err", err)
			return 1
		}
		defer store.Close()
		forward(audit.Sink{Store: store})
	}

	registry := session.NewRegistry(session.Options{
		Shell:          shellPath,
		Spawner:        shell.PTYSpawner{Logger: logger},
		Events:         bus,
		FanoutCapacity: cfg.FanoutCapacity,
		HistoryBytes:   cfg.HistoryBytes,
		Logger:         logger,
	})
	defer registry.Close()

	go func() {
		registry.WatchParent(ctx, cfg.WatchdogInterval)
		if ctx.Err() == nil && cfg.WatchdogInterval > 0 {
			cancel()
		}
	}()

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.StartMetricsServer(cfg.MetricsAddr, func(err error) {
			logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "err", err)
		})
		defer metricsSrv.Close()
	}

	srv := api.NewServer(api.Options{
		Registry:     registry,
		Bus:          bus,
		Audit:        store,
		APIKey:       cfg.APIKey,
		ServeMetrics: cfg.MetricsAddr == "",
		Logger:       logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(cfg.ListenAddr())
	}()
	logger.Info("bterminal listening",
		"addr", cfg.ListenAddr(),
		"shell", shellPath,
		"auth", cfg.APIKey != "",
		"audit", cfg.AuditEnabled(),
	)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			return 1
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "err", err)
	}
	registry.Close()
	bus.Close()
	forwarders.Wait()
	return 0
}
