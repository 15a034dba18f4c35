package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"articleforge/internal/api"
	"articleforge/internal/logging"
	"articleforge/internal/runner"
	"articleforge/internal/service"
	"articleforge/internal/store"
)

// newServeCmd creates the 'serve' subcommand, which runs the article REST
// API backed by Postgres.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the article REST API server",
		Long: `Serves the article CRUD API on the configured port, backed by the
Postgres articles table. The server also exposes /healthz, Prometheus
metrics on /metrics, and a blocking run-automation endpoint that executes
the enhancement pipeline in a child process.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg := loadedConfig
	if err := cfg.RequireServe(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewPostgres(ctx, store.PostgresConfig{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer st.Close()

	svc := service.New(st, logger)
	run := runner.New(pipelineBinary(cfg), logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(svc, run, logger, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("article API listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve article API: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown article API: %w", err)
		}
	}
	logger.Info("article API stopped")
	return nil
}
