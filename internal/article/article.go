// Package article defines the persisted article model shared by the store,
// the API service, and both pipelines.
package article

import "time"

// Article is the sole persisted entity. Originals are ingested from the
// source blog; enhanced articles are AI rewrites linked back to exactly one
// original through OriginalArticleID.
type Article struct {
	ID                int64      `json:"id"`
	Title             string     `json:"title"`
	Slug              string     `json:"slug"`
	Content           string     `json:"content"`
	SourceURL         string     `json:"source_url"`
	IsEnhanced        bool       `json:"is_enhanced"`
	Version           int        `json:"version"`
	OriginalArticleID *int64     `json:"original_article_id"`
	References        []string   `json:"references"`
	EnhancedAt        *time.Time `json:"enhanced_at"`
	EnhancedBy        string     `json:"enhanced_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// VersionInfo is the compact shape used when listing the enhanced versions of
// an original article.
type VersionInfo struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Version    int        `json:"version"`
	EnhancedAt *time.Time `json:"enhanced_at"`
	EnhancedBy string     `json:"enhanced_by,omitempty"`
}

// Comparison pairs an original with one of its enhanced versions. Enhanced is
// nil when the original has no children yet. Versions lists every enhanced
// child of the original, newest first.
type Comparison struct {
	Original *Article      `json:"original"`
	Enhanced *Article      `json:"enhanced"`
	Versions []VersionInfo `json:"versions"`
}
