// Package cmd defines and implements the CLI commands for the articleforge
// executable.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"articleforge/internal/config"
	"articleforge/internal/metrics"
)

var cfgFile string

// loadedConfig is populated by the root PersistentPreRunE so every
// subcommand reads one consistent configuration.
var loadedConfig config.Config

// loadConfig is a variable so tests can substitute a canned configuration.
var loadConfig = func(path string) (config.Config, error) {
	return config.Load(path)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "articleforge",
		Short: "Blog article scraping, storage, and AI enhancement toolkit.",
		Long: `articleforge ingests articles from a blog, stores them behind a REST
API, and produces enhanced versions by combining competitor research with a
generative rewrite. Each stage is a subcommand so the orchestration server
can run the pipelines as independent processes.`,

		SilenceUsage: true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// A missing .env file is fine; environment variables and the
			// config file still apply.
			_ = godotenv.Load()

			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			loadedConfig = cfg
			metrics.Init()
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is environment only)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newEnhanceCmd())
	cmd.AddCommand(newOrchestrateCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// pipelineBinary resolves the executable the orchestrator spawns for
// pipeline runs: the configured override, else this binary itself.
func pipelineBinary(cfg config.Config) string {
	if cfg.Orchestrator.Binary != "" {
		return cfg.Orchestrator.Binary
	}
	self, err := os.Executable()
	if err != nil {
		return "articleforge"
	}
	return self
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
