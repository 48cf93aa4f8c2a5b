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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/forecast-recon/api"
)

func newServeCmd(a *app) *cobra.Command {
	var port int
	var dbPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Starts the HTTP API on the configured port.

On SIGINT/SIGTERM the server stops accepting connections, waits up to 30s
for active requests, stops the retention scheduler and closes the store.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			if cmd.Flags().Changed("db") {
				a.cfg.Store.Path = dbPath
			}
			return a.serve()
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP server port")
	cmd.Flags().StringVar(&dbPath, "db", "recon.db", `SQLite database path (empty keeps runs in memory)`)
	return cmd
}

func (a *app) serve() error {
	logger := a.logger

	maxAge, interval, err := a.cfg.Store.RetentionPolicy()
	if err != nil {
		return err
	}

	analyzer, err := a.analyzer()
	if err != nil {
		return err
	}

	runs, closeStore, err := a.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	handler := api.NewHandler(runs, analyzer, logger)
	router := api.NewRouter(handler, a.cfg.Server.AllowedOrigins)

	retention := api.NewRetentionScheduler(runs, maxAge, a.cfg.Store.KeepRuns, logger)
	retention.CheckInterval = interval
	retention.Start()
	defer retention.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", a.cfg.Server.Port),
			zap.String("db", a.cfg.Store.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
