// Package enhance implements the rewrite pipeline: for each original
// article, find top competitor content via the search API, scrape it, ask
// the generative API for a rewrite, and submit the result as an enhanced
// article linked to the original.
//
// Overlapping runs over the same original each produce their own enhanced
// child; the article model orders them by version number.
package enhance

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"articleforge/internal/article"
	"articleforge/internal/client"
	"articleforge/internal/extract"
	"articleforge/internal/fetch"
	"articleforge/internal/llm"
	"articleforge/internal/metrics"
	"articleforge/internal/search"
)

// Fetcher fetches one page with retries.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Searcher queries the external search API.
type Searcher interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// Generator produces the rewritten article text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// API is the slice of the article API the pipeline needs.
type API interface {
	ListOriginals(ctx context.Context) ([]article.Article, error)
	GetArticle(ctx context.Context, id int64) (article.Article, error)
	CreateArticle(ctx context.Context, req client.CreateArticleRequest) (article.Article, error)
}

// Config controls one enhancement run.
type Config struct {
	MaxCompetitors        int
	OriginalPrefixChars   int
	CompetitorPrefixChars int
	CompetitorDelay       time.Duration
	ArticleDelay          time.Duration
}

// Pipeline wires the collaborators.
type Pipeline struct {
	cfg       Config
	api       API
	searcher  Searcher
	fetcher   Fetcher
	generator Generator
	logger    *zap.Logger
	now       func() time.Time
}

// Report summarizes a finished run.
type Report struct {
	Total      int
	Successful int
	Skipped    int
	Failed     int
}

// competitor is one scraped reference article.
type competitor struct {
	Title   string
	URL     string
	Content string
}

// New builds a Pipeline.
func New(cfg Config, api API, searcher Searcher, fetcher Fetcher, generator Generator, logger *zap.Logger) *Pipeline {
	if cfg.MaxCompetitors < 1 {
		cfg.MaxCompetitors = 2
	}
	if cfg.OriginalPrefixChars < 1 {
		cfg.OriginalPrefixChars = 3000
	}
	if cfg.CompetitorPrefixChars < 1 {
		cfg.CompetitorPrefixChars = 2000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:       cfg,
		api:       api,
		searcher:  searcher,
		fetcher:   fetcher,
		generator: generator,
		logger:    logger,
		now:       time.Now,
	}
}

// Run enhances every original article, or only the given ids when the slice
// is non-empty. Failing to load the work list is fatal; everything after
// that is per-article skip-and-continue.
func (p *Pipeline) Run(ctx context.Context, ids []int64) (Report, error) {
	originals, err := p.loadOriginals(ctx, ids)
	if err != nil {
		return Report{}, err
	}
	report := Report{Total: len(originals)}
	p.logger.Info("enhancement starting", zap.Int("originals", len(originals)))

	for i, original := range originals {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("enhancement aborted: %w", err)
		}
		p.logger.Info("processing original",
			zap.Int64("id", original.ID),
			zap.String("title", original.Title),
		)
		switch err := p.processOriginal(ctx, original); {
		case err == nil:
			report.Successful++
			metrics.ObserveEnhancement("success")
		case err == errSkipped:
			report.Skipped++
			metrics.ObserveEnhancement("skipped")
		default:
			report.Failed++
			metrics.ObserveEnhancement("failed")
			p.logger.Error("failed to enhance article",
				zap.Int64("id", original.ID),
				zap.String("title", original.Title),
				zap.Error(err),
			)
		}
		if i < len(originals)-1 {
			if err := fetch.Sleep(ctx, p.cfg.ArticleDelay); err != nil {
				return report, fmt.Errorf("enhancement aborted: %w", err)
			}
		}
	}

	p.logger.Info("enhancement finished",
		zap.Int("total", report.Total),
		zap.Int("successful", report.Successful),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// errSkipped marks a unit of work abandoned for content-quality reasons
// rather than failure.
var errSkipped = fmt.Errorf("article skipped")

func (p *Pipeline) loadOriginals(ctx context.Context, ids []int64) ([]article.Article, error) {
	if len(ids) == 0 {
		originals, err := p.api.ListOriginals(ctx)
		if err != nil {
			return nil, fmt.Errorf("list original articles: %w", err)
		}
		return originals, nil
	}
	out := make([]article.Article, 0, len(ids))
	for _, id := range ids {
		a, err := p.api.GetArticle(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load article %d: %w", id, err)
		}
		if a.IsEnhanced {
			p.logger.Warn("requested article is not an original, ignoring", zap.Int64("id", id))
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (p *Pipeline) processOriginal(ctx context.Context, original article.Article) error {
	competitors, err := p.findCompetitors(ctx, original)
	if err != nil {
		return err
	}
	if len(competitors) == 0 {
		p.logger.Warn("no competitor articles found, skipping", zap.Int64("id", original.ID))
		metrics.ObserveSkipped("no_competitors")
		return errSkipped
	}

	scraped := p.scrapeCompetitors(ctx, competitors)
	if len(scraped) == 0 {
		p.logger.Warn("failed to scrape competitor content, skipping", zap.Int64("id", original.ID))
		metrics.ObserveSkipped("empty_competitors")
		return errSkipped
	}

	rewritten, err := p.rewrite(ctx, original, scraped)
	if err != nil {
		return err
	}

	now := p.now()
	saved, err := p.api.CreateArticle(ctx, client.CreateArticleRequest{
		Title:             original.Title + " (Updated)",
		Content:           rewritten + referencesSection(scraped),
		SourceURL:         original.SourceURL,
		IsEnhanced:        true,
		OriginalArticleID: &original.ID,
		References:        competitorURLs(scraped),
		EnhancedAt:        &now,
		EnhancedBy:        p.generator.Model(),
	})
	if err != nil {
		return fmt.Errorf("save enhanced article: %w", err)
	}
	metrics.ObserveSaved("enhanced")
	p.logger.Info("enhanced article saved",
		zap.Int64("id", saved.ID),
		zap.Int64("original_id", original.ID),
		zap.Int("version", saved.Version),
	)
	return nil
}

// findCompetitors searches for the original's title and keeps the top
// qualifying results. Search errors degrade to "no competitors" so the run
// continues with the next article.
func (p *Pipeline) findCompetitors(ctx context.Context, original article.Article) ([]search.Result, error) {
	results, err := p.searcher.Search(ctx, original.Title)
	if err != nil {
		p.logger.Warn("search failed", zap.Int64("id", original.ID), zap.Error(err))
		return nil, nil
	}
	return search.FilterCompetitors(results, sourceDomain(original.SourceURL), p.cfg.MaxCompetitors), nil
}

// scrapeCompetitors fetches and extracts each competitor page, with a
// politeness delay between fetches. Empty extractions are dropped.
func (p *Pipeline) scrapeCompetitors(ctx context.Context, competitors []search.Result) []competitor {
	var out []competitor
	for i, c := range competitors {
		body, err := p.fetcher.Get(ctx, c.Link)
		if err != nil {
			p.logger.Warn("competitor fetch failed", zap.String("url", c.Link), zap.Error(err))
		} else if content := extract.Structured(body, c.Link, extract.CompetitorRules); content != "" {
			out = append(out, competitor{Title: c.Title, URL: c.Link, Content: content})
			p.logger.Info("competitor scraped",
				zap.String("url", c.Link),
				zap.Int("chars", len(content)),
			)
		}
		if i < len(competitors)-1 {
			if fetch.Sleep(ctx, p.cfg.CompetitorDelay) != nil {
				break
			}
		}
	}
	return out
}

func (p *Pipeline) rewrite(ctx context.Context, original article.Article, scraped []competitor) (string, error) {
	contents := make([]string, 0, len(scraped))
	for _, c := range scraped {
		contents = append(contents, llm.Truncate(c.Content, p.cfg.CompetitorPrefixChars))
	}
	prompt := llm.RewritePrompt(llm.PromptInput{
		Title:              original.Title,
		OriginalContent:    llm.Truncate(original.Content, p.cfg.OriginalPrefixChars),
		CompetitorContents: contents,
	})
	rewritten, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("rewrite article: %w", err)
	}
	p.logger.Info("article rewritten",
		zap.Int64("id", original.ID),
		zap.Int("chars", len(rewritten)),
	)
	return rewritten, nil
}

// referencesSection renders the appendix listing competitor sources. The
// model is told not to produce this section; it is always appended here.
func referencesSection(scraped []competitor) string {
	var b strings.Builder
	b.WriteString("\n\n## References\n\nThis article was enhanced using insights from:\n")
	for i, c := range scraped {
		fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, c.Title, c.URL)
	}
	return b.String()
}

func competitorURLs(scraped []competitor) []string {
	urls := make([]string, 0, len(scraped))
	for _, c := range scraped {
		urls = append(urls, c.URL)
	}
	return urls
}

func sourceDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
