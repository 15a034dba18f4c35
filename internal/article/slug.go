package article

import "strings"

// Slugify lowercases the title and collapses every run of non-alphanumeric
// characters into a single hyphen. Leading and trailing hyphens are trimmed.
func Slugify(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	prevHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevHyphen = false
		default:
			if !prevHyphen {
				b.WriteByte('-')
				prevHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
