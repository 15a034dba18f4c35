package llm

import (
	"fmt"
	"strings"
)

// PromptInput carries the bounded source material for one rewrite.
type PromptInput struct {
	Title              string
	OriginalContent    string
	CompetitorContents []string
}

// RewritePrompt renders the rewrite instruction. Prefix bounding happens in
// the caller; this function only lays the material out.
func RewritePrompt(in PromptInput) string {
	var b strings.Builder
	b.WriteString("You are an expert content writer and SEO specialist.\n\n")
	b.WriteString("I have an original article and content from top-ranking competitor articles on the same topic.\n\n")
	b.WriteString("ORIGINAL ARTICLE:\n")
	fmt.Fprintf(&b, "Title: %s\n", in.Title)
	fmt.Fprintf(&b, "Content: %s\n", in.OriginalContent)
	for i := 0; i < 2; i++ {
		fmt.Fprintf(&b, "\nCOMPETITOR ARTICLE %d:\n", i+1)
		if i < len(in.CompetitorContents) && in.CompetitorContents[i] != "" {
			b.WriteString(in.CompetitorContents[i] + "\n")
		} else {
			b.WriteString("Not available\n")
		}
	}
	b.WriteString(`
TASK:
Rewrite the original article to make it competitive with top-ranking articles.

REQUIREMENTS:
1. Improve formatting with clear headings (use ## for H2, ### for H3)
2. Enhance clarity and readability
3. Match or exceed the depth of competitor articles
4. Maintain professional tone
5. Keep the original topic and intent
6. Avoid plagiarism - create unique content
7. Add valuable insights where appropriate
8. Structure: Introduction, main sections with headings, conclusion
9. Length: At least as comprehensive as the original

Return ONLY the rewritten article content in markdown format. Do not include the title or references section.`)
	return b.String()
}

// Truncate bounds a content prefix to at most n characters. The limit
// counts runes, not bytes, so multi-byte content keeps its full prefix.
// n <= 0 leaves s unbounded.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	seen := 0
	for i := range s {
		if seen == n {
			return s[:i]
		}
		seen++
	}
	return s
}
