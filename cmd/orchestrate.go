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

	"articleforge/internal/logging"
	"articleforge/internal/orchestrator"
	"articleforge/internal/runner"
)

// newOrchestrateCmd creates the 'orchestrate' subcommand, which serves the
// pipeline control plane.
func newOrchestrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orchestrate",
		Short: "Starts the pipeline orchestration server",
		Long: `Serves the control-plane API that launches the scrape and enhance
pipelines as child processes and streams their output to the caller over
Server-Sent Events.`,
		RunE: runOrchestrateCommand,
	}
}

func runOrchestrateCommand(cmd *cobra.Command, _ []string) error {
	cfg := loadedConfig

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := runner.New(pipelineBinary(cfg), logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Orchestrator.Port),
		Handler:           orchestrator.New(run, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("orchestrator listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve orchestrator: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown orchestrator: %w", err)
		}
	}
	logger.Info("orchestrator stopped")
	return nil
}
