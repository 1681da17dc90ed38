package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/mykrok/internal/api"
	"github.com/hyperengineering/mykrok/internal/worker"
)

var (
	servePort          int
	serveCheckInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the archive over HTTP",
	Long: `Start a read-only HTTP API over the archive.

When server.sync_interval is set, incremental syncs run in the background
on that interval. --check-interval additionally schedules integrity repairs.`,
	Args: noArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
	serveCmd.Flags().DurationVar(&serveCheckInterval, "check-interval", 0, "Run check-and-fix on this interval (0 = disabled)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg := e.cfg
	if servePort > 0 {
		cfg.Server.Port = servePort
	}
	if serveCheckInterval < 0 {
		return usageErrorf("invalid arguments: check-interval: must be non-negative")
	}
	slog.Info("configuration loaded", "data_dir", e.archive.Root())

	var wg sync.WaitGroup
	var scheduler api.SchedulerStatus
	syncInterval := time.Duration(cfg.Server.SyncInterval)
	if syncInterval > 0 || serveCheckInterval > 0 {
		svc, err := e.newService(cmd)
		if err != nil {
			return err
		}
		// Scheduled syncs and repairs never touch the archive concurrently.
		var lock sync.Mutex
		if syncInterval > 0 {
			coord := worker.NewSyncCoordinator(svc, syncInterval, &lock)
			scheduler = coord
			startWorker(ctx, &wg, "sync", coord.Run)
		}
		if serveCheckInterval > 0 {
			checker := worker.NewIntegrityCoordinator(svc, serveCheckInterval, &lock)
			startWorker(ctx, &wg, "integrity", checker.Run)
		}
	}

	handler := api.NewHandler(e.archive, cfg.Retry.Policy(), scheduler, Version)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is expected after Shutdown; anything else stops the process.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// Workers finish their current record before returning.
	wg.Wait()

	slog.Info("shutdown complete")
	return nil
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
