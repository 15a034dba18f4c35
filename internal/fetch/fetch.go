// Package fetch implements the outbound page fetcher shared by both
// pipelines: a Colly collector wrapped in a bounded retry loop with linear
// backoff.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"articleforge/internal/metrics"
)

// Config controls fetch behavior.
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client fetches single pages. It is safe for sequential reuse; the
// pipelines are deliberately single-threaded.
type Client struct {
	cfg    Config
	base   *colly.Collector
	logger *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &Client{cfg: cfg, base: c, logger: logger}
}

// Get fetches the URL, retrying up to MaxRetries times with linear backoff
// (delay, 2*delay, ...). Any HTTP error status counts as a transient failure.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}
		body, err := c.fetchOnce(url)
		if err == nil {
			metrics.ObserveFetch(url, "ok")
			return body, nil
		}
		lastErr = err
		c.logger.Warn("fetch attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt < c.cfg.MaxRetries {
			if err := sleep(ctx, c.cfg.RetryDelay*time.Duration(attempt)); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", url, err)
			}
		}
	}
	metrics.ObserveFetch(url, "error")
	return nil, fmt.Errorf("fetch %s after %d attempts: %w", url, c.cfg.MaxRetries, lastErr)
}

func (c *Client) fetchOnce(url string) ([]byte, error) {
	collector := c.base.Clone()
	var (
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})
	if err := collector.Visit(url); err != nil {
		return nil, err
	}
	collector.Wait()
	if fetchErr != nil {
		return nil, fetchErr
	}
	return body, nil
}

// sleep waits for d or until the context is canceled. It is the politeness
// delay primitive used between successive requests to the same host.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sleep exposes the context-aware delay for the pipelines' politeness pauses.
func Sleep(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}
