package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"articleforge/internal/client"
	"articleforge/internal/enhance"
	"articleforge/internal/fetch"
	"articleforge/internal/llm"
	"articleforge/internal/logging"
	"articleforge/internal/search"
)

// newEnhanceCmd creates the 'enhance' subcommand, which rewrites original
// articles using competitor research and a generative model.
func newEnhanceCmd() *cobra.Command {
	var ids []int64
	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Produces enhanced versions of stored original articles",
		Long: `For each original article (or only those named by --ids), searches
for competing articles on the same topic, scrapes the top results, asks the
generative model for an improved rewrite, and saves the result as a new
enhanced version linked to the original.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEnhanceCommand(cmd, ids)
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "comma-separated ids of originals to enhance (default: all)")
	return cmd
}

func runEnhanceCommand(cmd *cobra.Command, ids []int64) error {
	cfg := loadedConfig
	if err := cfg.RequireEnhance(); err != nil {
		return err
	}

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
	searcher := search.NewClient(search.Config{
		APIKey:   cfg.Search.APIKey,
		Endpoint: cfg.Search.Endpoint,
		Results:  cfg.Search.Results,
		Timeout:  cfg.HTTP.FetchTimeout(),
	})
	generator := llm.NewClient(llm.Config{
		APIKey:          cfg.LLM.APIKey,
		Endpoint:        cfg.LLM.Endpoint,
		Model:           cfg.LLM.Model,
		Temperature:     cfg.LLM.Temperature,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		Timeout:         time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	})

	pipeline := enhance.New(enhance.Config{
		MaxCompetitors:        cfg.Enhancer.MaxCompetitors,
		OriginalPrefixChars:   cfg.Enhancer.OriginalPrefixChars,
		CompetitorPrefixChars: cfg.Enhancer.CompetitorPrefixChars,
		CompetitorDelay:       millis(cfg.Enhancer.CompetitorDelayMs),
		ArticleDelay:          millis(cfg.Enhancer.ArticleDelayMs),
	}, apiClient, searcher, fetcher, generator, logger)

	report, err := pipeline.Run(ctx, ids)
	if err != nil {
		return fmt.Errorf("run enhancer: %w", err)
	}
	logger.Info("enhancer finished",
		zap.Int("total", report.Total),
		zap.Int("successful", report.Successful),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return nil
}
