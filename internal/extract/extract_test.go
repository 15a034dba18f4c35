package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeatSentence(n int) string {
	return strings.Repeat("This sentence pads the article body out to a realistic length. ", n)
}

func TestContentUsesFirstMatchingRule(t *testing.T) {
	t.Parallel()

	body := repeatSentence(12)
	html := `<html><body>
		<div class="post-content"><p>` + body + `</p></div>
		<div class="entry-content"><p>different text that must not win</p></div>
	</body></html>`

	got := Content([]byte(html), "https://example.com/blog/a", ArticleRules)
	require.NotEmpty(t, got)
	assert.Contains(t, got, "pads the article body")
	assert.NotContains(t, got, "must not win")
}

func TestContentSkipsRuleBelowThreshold(t *testing.T) {
	t.Parallel()

	// .article-content matches but is too short, so the cascade moves on.
	html := `<html><body>
		<div class="article-content"><p>too short</p></div>
		<div class="post-content"><p>` + repeatSentence(12) + `</p></div>
	</body></html>`

	got := Content([]byte(html), "https://example.com/blog/a", ArticleRules)
	assert.Contains(t, got, "pads the article body")
	assert.NotContains(t, got, "too short")
}

func TestContentRemovesJunkElements(t *testing.T) {
	t.Parallel()

	html := `<html><body><div class="post-content">
		<nav><p>navigation link soup</p></nav>
		<div class="social-share"><p>share this everywhere</p></div>
		<p>` + repeatSentence(12) + `</p>
		<footer><p>footer text</p></footer>
	</div></body></html>`

	got := Content([]byte(html), "https://example.com/blog/a", ArticleRules)
	assert.NotContains(t, got, "navigation link soup")
	assert.NotContains(t, got, "share this everywhere")
	assert.NotContains(t, got, "footer text")
}

func TestContentFallsBackToMainParagraphs(t *testing.T) {
	t.Parallel()

	long := repeatSentence(3)
	html := `<html><body><main>
		<p>short nav line</p>
		<p>` + long + `</p>
		<p>` + long + `</p>
	</main></body></html>`

	got := Content([]byte(html), "https://example.com/blog/a", ArticleRules)
	require.NotEmpty(t, got)
	assert.Contains(t, got, "pads the article body")
	// Paragraphs at or under the length floor are treated as chrome.
	assert.NotContains(t, got, "short nav line")
}

func TestContentEmptyDocument(t *testing.T) {
	t.Parallel()

	got := Content([]byte("<html><body></body></html>"), "https://example.com/x", ArticleRules)
	assert.Empty(t, got)
}

func TestContentCollapsesWhitespace(t *testing.T) {
	t.Parallel()

	html := `<html><body><div class="post-content"><p>` +
		strings.Repeat("word      with    gaps. ", 40) + `</p></div></body></html>`

	got := Content([]byte(html), "https://example.com/blog/a", ArticleRules)
	assert.NotContains(t, got, "  ")
}

func TestStructuredRendersHeadingsAndLists(t *testing.T) {
	t.Parallel()

	html := `<html><body><article><div class="content">
		<h2>Why It Matters</h2>
		<p>` + repeatSentence(8) + `</p>
		<ul><li>first point</li><li>second point</li></ul>
	</div></article></body></html>`

	got := Structured([]byte(html), "https://competitor.example/post", CompetitorRules)
	assert.Contains(t, got, "## Why It Matters")
	assert.Contains(t, got, "- first point")
	assert.Contains(t, got, "- second point")
}

func TestStructuredFallsBackToReadability(t *testing.T) {
	t.Parallel()

	// No selector in the cascade matches, but the page still has a coherent
	// body readability can find.
	html := `<html><head><title>Post</title></head><body><div id="story">
		<p>` + repeatSentence(10) + `</p>
		<p>` + repeatSentence(10) + `</p>
	</div></body></html>`

	got := Structured([]byte(html), "https://competitor.example/post", CompetitorRules)
	assert.Contains(t, got, "pads the article body")
}
