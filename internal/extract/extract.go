// Package extract pulls readable article text out of raw HTML. Selection is
// data-driven: an ordered list of (selector, minimum length) rules is tried
// until one yields enough content, so new sites mean new rules, not new code.
package extract

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Rule pairs a CSS selector with the minimum number of characters its match
// must produce to be accepted.
type Rule struct {
	Selector string
	MinChars int
}

// junkSelector matches elements that never carry article body text and often
// leak neighboring-article previews into the extraction.
const junkSelector = "script, style, nav, header, footer, aside, .sidebar, " +
	".advertisement, .ad, .social-share, .comments, .related-posts, iframe, " +
	"form, .newsletter, .author-bio, .tags, .categories"

const previewSelector = ".post-preview, .article-preview, .blog-preview, " +
	".recent-posts, .popular-posts, .featured-posts"

// ArticleRules is the cascade for the scraped blog's own article pages.
var ArticleRules = []Rule{
	{Selector: ".article-content", MinChars: 500},
	{Selector: ".post-content", MinChars: 500},
	{Selector: ".entry-content", MinChars: 500},
	{Selector: ".content-area", MinChars: 500},
	{Selector: "article .content", MinChars: 500},
	{Selector: "article p", MinChars: 500},
	{Selector: ".single-post-content", MinChars: 500},
	{Selector: ".blog-content", MinChars: 500},
	{Selector: "main .content", MinChars: 500},
	{Selector: ".post-body", MinChars: 500},
}

// CompetitorRules is the cascade for third-party competitor pages.
var CompetitorRules = []Rule{
	{Selector: "article .content", MinChars: 300},
	{Selector: "article .post-content", MinChars: 300},
	{Selector: "article .entry-content", MinChars: 300},
	{Selector: ".article-content", MinChars: 300},
	{Selector: ".post-body", MinChars: 300},
	{Selector: "article main", MinChars: 300},
	{Selector: "article", MinChars: 300},
	{Selector: "main article", MinChars: 300},
	{Selector: "main", MinChars: 300},
}

const fallbackMinParagraphChars = 50

var spaceRuns = regexp.MustCompile(`[ \t]+`)
var blankRuns = regexp.MustCompile(`\n{3,}`)

// Content extracts plain paragraph text using the rule cascade. When no rule
// meets its threshold it falls back to filtered paragraphs under the main
// content region, and finally to readability extraction of the whole page.
func Content(html []byte, pageURL string, rules []Rule) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(junkSelector).Remove()
	doc.Find(previewSelector).Remove()

	for _, rule := range rules {
		sel := doc.Find(rule.Selector)
		if sel.Length() == 0 {
			continue
		}
		text := paragraphText(sel)
		if len(text) >= rule.MinChars {
			return cleanup(text)
		}
	}

	if text := mainParagraphs(doc); text != "" {
		return cleanup(text)
	}

	return cleanup(readabilityText(html, pageURL))
}

// Structured extracts heading/list structure as markdown-ish text, used for
// competitor pages fed to the rewrite prompt.
func Structured(html []byte, pageURL string, rules []Rule) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(junkSelector).Remove()

	for _, rule := range rules {
		sel := doc.Find(rule.Selector)
		if sel.Length() == 0 {
			continue
		}
		var b strings.Builder
		sel.Find("h1, h2, h3, h4, h5, h6, p, li").Each(func(_ int, el *goquery.Selection) {
			text := strings.TrimSpace(el.Text())
			if text == "" {
				return
			}
			switch goquery.NodeName(el) {
			case "p":
				b.WriteString(text + "\n")
			case "li":
				b.WriteString("- " + text + "\n")
			default:
				b.WriteString("\n\n## " + text + "\n")
			}
		})
		if b.Len() >= rule.MinChars {
			return cleanup(b.String())
		}
	}

	return cleanup(readabilityText(html, pageURL))
}

// paragraphText joins the text of all <p> descendants; when the selection has
// no paragraphs its own text is used instead.
func paragraphText(sel *goquery.Selection) string {
	paragraphs := sel.Find("p")
	if paragraphs.Length() == 0 {
		return strings.TrimSpace(sel.Text())
	}
	parts := make([]string, 0, paragraphs.Length())
	paragraphs.Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

// mainParagraphs collects substantial paragraphs under the first main
// content region, filtering out short navigation and metadata lines.
func mainParagraphs(doc *goquery.Document) string {
	main := doc.Find("main, .main-content, .content").First()
	if main.Length() == 0 {
		return ""
	}
	parts := []string{}
	main.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if len(text) > fallbackMinParagraphChars {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

func readabilityText(html []byte, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	a, err := readability.FromReader(bytes.NewReader(html), u)
	if err != nil {
		return ""
	}
	return a.TextContent
}

func cleanup(text string) string {
	text = spaceRuns.ReplaceAllString(text, " ")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
