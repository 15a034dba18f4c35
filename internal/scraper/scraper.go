// Package scraper implements the ingestion pipeline: discover the most
// recent not-yet-ingested posts on the source blog and submit them to the
// article API as originals. The pipeline is strictly sequential with
// politeness delays between requests; only the articles table holds state
// between runs.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"articleforge/internal/article"
	"articleforge/internal/client"
	"articleforge/internal/extract"
	"articleforge/internal/fetch"
	"articleforge/internal/metrics"
)

// Fetcher fetches one page with retries.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Creator submits new articles to the API.
type Creator interface {
	CreateArticle(ctx context.Context, req client.CreateArticleRequest) (article.Article, error)
}

// Config controls one scraper run.
type Config struct {
	BlogURL         string
	TargetCount     int
	MinTitleChars   int
	MinContentChars int
	PageDelay       time.Duration
	ArticleDelay    time.Duration
}

// Pipeline wires the fetcher, the extractor rules, and the API client.
type Pipeline struct {
	cfg     Config
	fetcher Fetcher
	creator Creator
	logger  *zap.Logger
}

// Candidate is a (title, url) pair discovered on a listing page.
type Candidate struct {
	Title string
	URL   string
}

// Report summarizes a finished run.
type Report struct {
	Collected int
	Saved     int
	Skipped   int
	Failed    int
}

// paginationSelectors are tried in order; the first selector exposing a page
// number greater than one wins.
var paginationSelectors = []string{
	".pagination a",
	".pagination li a",
	".page-numbers",
	`a[aria-label*="page"]`,
	`nav[aria-label*="pagination"] a`,
}

// linkSelectors are tried in order per listing page; the first selector
// yielding at least one candidate wins for that page.
var linkSelectors = []string{
	"article h2 a",
	"article .post-title a",
	".blog-post h2 a",
	".post-item h2 a",
	"h2.entry-title a",
	".article-title a",
	"article a",
}

// excludedPathParts filters out tag, category, and pagination links that
// share the listing's URL prefix.
var excludedPathParts = []string{"/tag/", "/page/", "/category/"}

// New builds a Pipeline.
func New(cfg Config, fetcher Fetcher, creator Creator, logger *zap.Logger) *Pipeline {
	if cfg.TargetCount < 1 {
		cfg.TargetCount = 5
	}
	if cfg.MinTitleChars < 1 {
		cfg.MinTitleChars = 10
	}
	if cfg.MinContentChars < 1 {
		cfg.MinContentChars = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, fetcher: fetcher, creator: creator, logger: logger}
}

// Run executes one full scrape. A fetch failure on a single page or article
// is logged and skipped; only context cancellation aborts the run.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	p.logger.Info("scraper starting", zap.String("blog_url", p.cfg.BlogURL))

	lastPage := p.lastPageNumber(ctx)
	p.logger.Info("pagination discovered", zap.Int("last_page", lastPage))

	candidates, err := p.collectCandidates(ctx, lastPage)
	if err != nil {
		return Report{}, err
	}
	report := Report{Collected: len(candidates)}
	p.logger.Info("candidates collected", zap.Int("count", len(candidates)))

	if len(candidates) > p.cfg.TargetCount {
		candidates = candidates[:p.cfg.TargetCount]
	}

	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("scrape aborted: %w", err)
		}
		if err := p.processCandidate(ctx, cand, &report); err != nil {
			report.Failed++
			p.logger.Error("candidate failed",
				zap.String("title", cand.Title),
				zap.String("url", cand.URL),
				zap.Error(err),
			)
		}
		if i < len(candidates)-1 {
			if err := fetch.Sleep(ctx, p.cfg.ArticleDelay); err != nil {
				return report, fmt.Errorf("scrape aborted: %w", err)
			}
		}
	}

	p.logger.Info("scraper finished",
		zap.Int("collected", report.Collected),
		zap.Int("saved", report.Saved),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// lastPageNumber parses the listing's pagination controls. Any failure falls
// back to page 1.
func (p *Pipeline) lastPageNumber(ctx context.Context) int {
	body, err := p.fetcher.Get(ctx, p.cfg.BlogURL)
	if err != nil {
		p.logger.Warn("failed to fetch listing root, assuming single page", zap.Error(err))
		return 1
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 1
	}
	lastPage := 1
	for _, selector := range paginationSelectors {
		doc.Find(selector).Each(func(_ int, el *goquery.Selection) {
			if n, err := strconv.Atoi(strings.TrimSpace(el.Text())); err == nil && n > lastPage {
				lastPage = n
			}
		})
		if lastPage > 1 {
			break
		}
	}
	return lastPage
}

// collectCandidates walks backward from the last page toward page 1 until
// TargetCount candidates are gathered or pages run out. When a page yields
// more than needed, the tail of the page is taken: those are the least
// recently published posts of the most recent page set.
func (p *Pipeline) collectCandidates(ctx context.Context, lastPage int) ([]Candidate, error) {
	var collected []Candidate
	for page := lastPage; page >= 1 && len(collected) < p.cfg.TargetCount; page-- {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("collect candidates: %w", err)
		}
		pageCandidates := p.candidatesFromPage(ctx, page)
		p.logger.Info("listing page scanned",
			zap.Int("page", page),
			zap.Int("found", len(pageCandidates)),
		)

		needed := p.cfg.TargetCount - len(collected)
		if len(pageCandidates) > needed {
			pageCandidates = pageCandidates[len(pageCandidates)-needed:]
		}
		collected = append(collected, pageCandidates...)

		if len(collected) < p.cfg.TargetCount && page > 1 {
			if err := fetch.Sleep(ctx, p.cfg.PageDelay); err != nil {
				return nil, fmt.Errorf("collect candidates: %w", err)
			}
		}
	}
	return collected, nil
}

// candidatesFromPage extracts candidate links from one listing page. Errors
// abort only this page.
func (p *Pipeline) candidatesFromPage(ctx context.Context, page int) []Candidate {
	pageURL := p.cfg.BlogURL
	if page > 1 {
		pageURL = strings.TrimSuffix(p.cfg.BlogURL, "/") + fmt.Sprintf("/page/%d/", page)
	}
	body, err := p.fetcher.Get(ctx, pageURL)
	if err != nil {
		p.logger.Warn("failed to fetch listing page", zap.Int("page", page), zap.Error(err))
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		p.logger.Warn("failed to parse listing page", zap.Int("page", page), zap.Error(err))
		return nil
	}

	base, err := url.Parse(p.cfg.BlogURL)
	if err != nil {
		return nil
	}

	for _, selector := range linkSelectors {
		candidates := p.linksFromSelector(doc, base, selector)
		if len(candidates) > 0 {
			return candidates
		}
	}
	return nil
}

func (p *Pipeline) linksFromSelector(doc *goquery.Document, base *url.URL, selector string) []Candidate {
	seen := map[string]struct{}{}
	var out []Candidate
	doc.Find(selector).Each(func(_ int, el *goquery.Selection) {
		href, ok := el.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(el.Text())
		full, ok := p.qualifyLink(base, href, title)
		if !ok {
			return
		}
		if _, dup := seen[full]; dup {
			return
		}
		seen[full] = struct{}{}
		out = append(out, Candidate{Title: title, URL: full})
	})
	return out
}

// qualifyLink keeps only links that live under the listing's path, are not
// tag/category/pagination links, and carry a substantial title.
func (p *Pipeline) qualifyLink(base *url.URL, href, title string) (string, bool) {
	if len(title) < p.cfg.MinTitleChars {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	full := base.ResolveReference(ref)
	if full.Host != base.Host {
		return "", false
	}
	basePath := strings.TrimSuffix(base.Path, "/")
	if !strings.HasPrefix(full.Path, basePath+"/") || full.Path == basePath+"/" {
		return "", false
	}
	for _, part := range excludedPathParts {
		if strings.Contains(full.Path, part) {
			return "", false
		}
	}
	return full.String(), true
}

// processCandidate fetches and extracts the article body, applies the
// anti-junk guard, and submits the article as an original.
func (p *Pipeline) processCandidate(ctx context.Context, cand Candidate, report *Report) error {
	p.logger.Info("processing article",
		zap.String("title", cand.Title),
		zap.String("url", cand.URL),
	)

	body, err := p.fetcher.Get(ctx, cand.URL)
	if err != nil {
		return err
	}
	content := extract.Content(body, cand.URL, extract.ArticleRules)
	if len(content) < p.cfg.MinContentChars {
		report.Skipped++
		metrics.ObserveSkipped("thin_content")
		p.logger.Warn("skipping article with insufficient content",
			zap.String("title", cand.Title),
			zap.Int("chars", len(content)),
		)
		return nil
	}

	saved, err := p.creator.CreateArticle(ctx, client.CreateArticleRequest{
		Title:     cand.Title,
		Content:   content,
		SourceURL: cand.URL,
	})
	if err != nil {
		return fmt.Errorf("save article: %w", err)
	}
	report.Saved++
	metrics.ObserveSaved("original")
	p.logger.Info("article saved",
		zap.Int64("id", saved.ID),
		zap.String("slug", saved.Slug),
		zap.Int("chars", len(content)),
	)
	return nil
}
