package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/config"
	"github.com/hamed0406/sitemonitor/internal/discovery"
	"github.com/hamed0406/sitemonitor/internal/httpapi"
	"github.com/hamed0406/sitemonitor/internal/logging"
	"github.com/hamed0406/sitemonitor/internal/metrics"
	"github.com/hamed0406/sitemonitor/internal/probe"
	"github.com/hamed0406/sitemonitor/internal/scheduler"
	"github.com/hamed0406/sitemonitor/internal/status"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	table := status.NewTable()
	exporter := metrics.NewExporter(table)
	prober := probe.NewProber(logger.Named("probe"), cfg.ProbeTimeout, cfg.UserAgent)
	scanner := discovery.NewScanner(logger.Named("discovery"), cfg.BaseDir, cfg.ExcludeDirs, cfg.EnvFile, cfg.DomainKey)
	batch := scheduler.NewBatch(logger.Named("batch"), prober, table, cfg.ChunkSize, cfg.ChunkPause)
	monitor := scheduler.NewMonitor(logger, scanner, batch)
	monitor.Observe = exporter.ObserveCycle

	api := httpapi.NewServer(logger, monitor, prober, exporter, cfg.BaseDir, scanner.Excluded())
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(cfg.APIKeys, cfg.TestRPM, cfg.TestBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*cfg.ProbeTimeout+5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown_error", zap.Error(err))
		}
	}()

	logger.Info("monitor_listen",
		zap.String("addr", cfg.Addr),
		zap.String("base_dir", cfg.BaseDir),
		zap.Strings("excluded", cfg.ExcludeDirs),
		zap.Duration("probe_timeout", cfg.ProbeTimeout),
		zap.Int("chunk_size", cfg.ChunkSize),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("listen_error", zap.Error(err))
	}
	logger.Info("monitor_stopped")
}
