package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"articleforge/internal/client"
	"articleforge/internal/fetch"
	"articleforge/internal/logging"
	"articleforge/internal/scraper"
)

// newScrapeCmd creates the 'scrape' subcommand, which ingests articles from
// the configured blog into the article API.
func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Scrapes articles from the blog into the article store",
		Long: `Walks the blog's listing pages from the last page backwards,
collects the oldest articles up to the configured target count, extracts
their content, and saves each one through the article API.`,
		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	cfg := loadedConfig
	if err := cfg.RequireScrape(); err != nil {
		return err
	}

	// Plain console logging so each line streams cleanly through the
	// orchestrator when this runs as a child process.
	logger, err := logging.NewPipeline()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := fetch.New(fetch.Config{
		UserAgent:  cfg.HTTP.UserAgent,
		Timeout:    cfg.HTTP.FetchTimeout(),
		MaxRetries: cfg.HTTP.MaxRetries,
		RetryDelay: cfg.HTTP.RetryDelay(),
	}, logger)
	apiClient := client.New(cfg.API.BaseURL, cfg.HTTP.FetchTimeout())

	pipeline := scraper.New(scraper.Config{
		BlogURL:         cfg.Blog.URL,
		TargetCount:     cfg.Scraper.TargetCount,
		MinTitleChars:   cfg.Scraper.MinTitleChars,
		MinContentChars: cfg.Scraper.MinContentChars,
		PageDelay:       millis(cfg.Scraper.PageDelayMs),
		ArticleDelay:    millis(cfg.Scraper.ArticleDelayMs),
	}, fetcher, apiClient, logger)

	report, err := pipeline.Run(ctx)
	if err != nil {
		return fmt.Errorf("run scraper: %w", err)
	}
	logger.Info("scraper finished",
		zap.Int("collected", report.Collected),
		zap.Int("saved", report.Saved),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return nil
}
