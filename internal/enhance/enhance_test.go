package enhance

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"articleforge/internal/article"
	"articleforge/internal/client"
	"articleforge/internal/search"
)

type stubAPI struct {
	originals []article.Article
	listErr   error
	created   []client.CreateArticleRequest
	createErr error
}

func (a *stubAPI) ListOriginals(context.Context) ([]article.Article, error) {
	return a.originals, a.listErr
}

func (a *stubAPI) GetArticle(_ context.Context, id int64) (article.Article, error) {
	for _, o := range a.originals {
		if o.ID == id {
			return o, nil
		}
	}
	return article.Article{}, fmt.Errorf("article %d not found", id)
}

func (a *stubAPI) CreateArticle(_ context.Context, req client.CreateArticleRequest) (article.Article, error) {
	if a.createErr != nil {
		return article.Article{}, a.createErr
	}
	a.created = append(a.created, req)
	return article.Article{
		ID:                int64(100 + len(a.created)),
		Title:             req.Title,
		IsEnhanced:        true,
		Version:           1 + len(a.created),
		OriginalArticleID: req.OriginalArticleID,
	}, nil
}

type stubSearcher struct {
	results map[string][]search.Result
	err     error
}

func (s *stubSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results[query], nil
}

type stubFetcher struct {
	pages map[string]string
}

func (f *stubFetcher) Get(_ context.Context, url string) ([]byte, error) {
	page, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("fetch %s: status 404", url)
	}
	return []byte(page), nil
}

type stubGenerator struct {
	output  string
	err     error
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.output, nil
}

func (g *stubGenerator) Model() string { return "gemini-pro" }

func competitorPage(seed string) string {
	return `<html><body><article><div class="content"><h2>` + seed + ` Section</h2><p>` +
		strings.Repeat("The "+seed+" competitor covers the topic thoroughly. ", 10) +
		`</p></div></article></body></html>`
}

func original(id int64, title string) article.Article {
	return article.Article{
		ID:        id,
		Title:     title,
		Content:   "The original article body.",
		SourceURL: "https://myblog.example/blogs/" + article.Slugify(title) + "/",
		Version:   1,
	}
}

func fixtures() (*stubAPI, *stubSearcher, *stubFetcher, *stubGenerator) {
	api := &stubAPI{originals: []article.Article{original(1, "Chatbot Basics")}}
	searcher := &stubSearcher{results: map[string][]search.Result{
		"Chatbot Basics": {
			{Title: "Own result", Link: "https://myblog.example/blogs/chatbot-basics/"},
			{Title: "Competitor One", Link: "https://a.example/blog/chatbots"},
			{Title: "Competitor Two", Link: "https://b.example/articles/chatbots"},
			{Title: "Competitor Three", Link: "https://c.example/blog/chatbots"},
		},
	}}
	fetcher := &stubFetcher{pages: map[string]string{
		"https://a.example/blog/chatbots":     competitorPage("first"),
		"https://b.example/articles/chatbots": competitorPage("second"),
	}}
	generator := &stubGenerator{output: "## Rewritten\n\nA better article."}
	return api, searcher, fetcher, generator
}

func newPipeline(api API, searcher Searcher, fetcher Fetcher, generator Generator) *Pipeline {
	return New(Config{MaxCompetitors: 2}, api, searcher, fetcher, generator, nil)
}

func TestRunEnhancesOriginal(t *testing.T) {
	t.Parallel()

	api, searcher, fetcher, generator := fixtures()
	p := newPipeline(api, searcher, fetcher, generator)

	report, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 1, Successful: 1}, report)

	require.Len(t, api.created, 1)
	req := api.created[0]
	assert.Equal(t, "Chatbot Basics (Updated)", req.Title)
	assert.True(t, req.IsEnhanced)
	require.NotNil(t, req.OriginalArticleID)
	assert.Equal(t, int64(1), *req.OriginalArticleID)
	assert.Equal(t, "gemini-pro", req.EnhancedBy)
	require.NotNil(t, req.EnhancedAt)
	assert.Equal(t, []string{
		"https://a.example/blog/chatbots",
		"https://b.example/articles/chatbots",
	}, req.References)

	assert.Contains(t, req.Content, "## Rewritten")
	assert.Contains(t, req.Content, "## References")
	assert.Contains(t, req.Content, "1. [Competitor One](https://a.example/blog/chatbots)")
	assert.Contains(t, req.Content, "2. [Competitor Two](https://b.example/articles/chatbots)")
}

func TestRunFeedsCompetitorContentToPrompt(t *testing.T) {
	t.Parallel()

	api, searcher, fetcher, generator := fixtures()
	p := newPipeline(api, searcher, fetcher, generator)

	_, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, generator.prompts, 1)

	prompt := generator.prompts[0]
	assert.Contains(t, prompt, "Title: Chatbot Basics")
	assert.Contains(t, prompt, "The original article body.")
	assert.Contains(t, prompt, "first competitor covers the topic")
	assert.Contains(t, prompt, "second competitor covers the topic")
}

func TestRunSkipsWhenNoCompetitorsQualify(t *testing.T) {
	t.Parallel()

	api, searcher, fetcher, generator := fixtures()
	// Every search hit points back at the source blog's own domain.
	searcher.results["Chatbot Basics"] = []search.Result{
		{Title: "Own A", Link: "https://myblog.example/blogs/a/"},
		{Title: "Own B", Link: "https://myblog.example/blogs/b/"},
	}
	p := newPipeline(api, searcher, fetcher, generator)

	report, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 1, Skipped: 1}, report)
	assert.Empty(t, api.created)
	assert.Empty(t, generator.prompts)
}

func TestRunSkipsWhenAllCompetitorScrapesAreEmpty(t *testing.T) {
	t.Parallel()

	api, searcher, _, generator := fixtures()
	fetcher := &stubFetcher{pages: map[string]string{}}
	p := newPipeline(api, searcher, fetcher, generator)

	report, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 1, Skipped: 1}, report)
	assert.Empty(t, api.created)
}

func TestRunTreatsSearchFailureAsSkip(t *testing.T) {
	t.Parallel()

	api, _, fetcher, generator := fixtures()
	searcher := &stubSearcher{err: fmt.Errorf("search api error (status 429)")}
	p := newPipeline(api, searcher, fetcher, generator)

	report, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 1, Skipped: 1}, report)
}

func TestRunCountsGenerateFailure(t *testing.T) {
	t.Parallel()

	api, searcher, fetcher, generator := fixtures()
	generator.err = fmt.Errorf("llm returned no candidates")
	p := newPipeline(api, searcher, fetcher, generator)

	report, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 1, Failed: 1}, report)
	assert.Empty(t, api.created)
}

func TestRunContinuesAfterPerArticleFailure(t *testing.T) {
	t.Parallel()

	api, searcher, fetcher, generator := fixtures()
	api.originals = append(api.originals, original(2, "Second Post Entirely"))
	// The second original has no search results, so it skips rather than
	// fails; the first succeeds.
	p := newPipeline(api, searcher, fetcher, generator)

	report, err := p.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 2, Successful: 1, Skipped: 1}, report)
}

func TestRunFatalWhenListFails(t *testing.T) {
	t.Parallel()

	api := &stubAPI{listErr: fmt.Errorf("connection refused")}
	p := newPipeline(api, &stubSearcher{}, &stubFetcher{}, &stubGenerator{})

	_, err := p.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list original articles")
}

func TestRunWithExplicitIDs(t *testing.T) {
	t.Parallel()

	api, searcher, fetcher, generator := fixtures()
	api.originals = append(api.originals, original(2, "Untouched Post Title"))
	p := newPipeline(api, searcher, fetcher, generator)

	report, err := p.Run(context.Background(), []int64{1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Total)
	require.Len(t, api.created, 1)
	require.NotNil(t, api.created[0].OriginalArticleID)
	assert.Equal(t, int64(1), *api.created[0].OriginalArticleID)
}

func TestRunWithUnknownIDIsFatal(t *testing.T) {
	t.Parallel()

	api, searcher, fetcher, generator := fixtures()
	p := newPipeline(api, searcher, fetcher, generator)

	_, err := p.Run(context.Background(), []int64{99})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load article 99")
}

func TestRunIgnoresEnhancedIDsInSubset(t *testing.T) {
	t.Parallel()

	api, searcher, fetcher, generator := fixtures()
	child := original(3, "Chatbot Basics (Updated)")
	child.IsEnhanced = true
	orig := int64(1)
	child.OriginalArticleID = &orig
	api.originals = append(api.originals, child)
	p := newPipeline(api, searcher, fetcher, generator)

	report, err := p.Run(context.Background(), []int64{3})
	require.NoError(t, err)
	assert.Zero(t, report.Total)
	assert.Empty(t, api.created)
}
