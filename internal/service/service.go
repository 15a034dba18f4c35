// Package service implements the business rules of the article API: field
// validation, slug derivation and disambiguation, version assignment, and
// comparison resolution. It has no HTTP knowledge; the api package maps its
// results and errors onto the wire envelope.
package service

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"articleforge/internal/article"
	"articleforge/internal/store"
)

const maxTitleChars = 255

// ValidationError carries per-field detail for a rejected request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Service exposes article operations over a Store.
type Service struct {
	store  store.Store
	logger *zap.Logger
}

// New wires a Service. A nil logger is replaced with a no-op one.
func New(st store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger}
}

// CreateInput holds the creatable fields. Slug is optional and derived from
// the title when absent. IsEnhanced defaults to the presence of
// OriginalArticleID.
type CreateInput struct {
	Title             string
	Slug              string
	Content           string
	SourceURL         string
	IsEnhanced        *bool
	OriginalArticleID *int64
	References        []string
	EnhancedAt        *time.Time
	EnhancedBy        string
}

// Create validates the input, derives a unique slug, assigns the version
// number, and persists the article.
func (s *Service) Create(ctx context.Context, in CreateInput) (article.Article, error) {
	fields := map[string]string{}
	validateTitle(in.Title, fields)
	validateContent(in.Content, fields)
	validateSourceURL(in.SourceURL, fields)
	if len(fields) > 0 {
		return article.Article{}, &ValidationError{Fields: fields}
	}

	if in.OriginalArticleID != nil {
		ok, err := s.store.Exists(ctx, *in.OriginalArticleID)
		if err != nil {
			return article.Article{}, fmt.Errorf("check original article: %w", err)
		}
		if !ok {
			return article.Article{}, fmt.Errorf("original article %d: %w", *in.OriginalArticleID, store.ErrNotFound)
		}
	}

	enhanced := in.OriginalArticleID != nil
	if in.IsEnhanced != nil {
		enhanced = *in.IsEnhanced
	}
	if enhanced && in.OriginalArticleID == nil {
		return article.Article{}, &ValidationError{Fields: map[string]string{
			"original_article_id": "required for enhanced articles",
		}}
	}

	slug, err := s.resolveSlug(ctx, in.Slug, in.Title, 0)
	if err != nil {
		return article.Article{}, err
	}

	version := 1
	if enhanced {
		version, err = s.store.NextVersion(ctx, *in.OriginalArticleID)
		if err != nil {
			return article.Article{}, err
		}
	}

	a := article.Article{
		Title:             in.Title,
		Slug:              slug,
		Content:           in.Content,
		SourceURL:         in.SourceURL,
		IsEnhanced:        enhanced,
		Version:           version,
		OriginalArticleID: in.OriginalArticleID,
		References:        in.References,
		EnhancedAt:        in.EnhancedAt,
		EnhancedBy:        in.EnhancedBy,
	}
	if err := s.store.Create(ctx, &a); err != nil {
		return article.Article{}, err
	}
	s.logger.Info("article created",
		zap.Int64("id", a.ID),
		zap.String("slug", a.Slug),
		zap.Bool("is_enhanced", a.IsEnhanced),
	)
	return a, nil
}

// Detail is an article together with its relations: the original when the
// article is enhanced, the enhanced children when it is an original.
type Detail struct {
	article.Article
	OriginalArticle *article.Article  `json:"original_article,omitempty"`
	UpdatedVersions []article.Article `json:"updated_versions,omitempty"`
}

// Get loads an article along with its relations.
func (s *Service) Get(ctx context.Context, id int64) (Detail, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Article: a}
	if a.OriginalArticleID != nil {
		orig, err := s.store.Get(ctx, *a.OriginalArticleID)
		if err == nil {
			d.OriginalArticle = &orig
		} else if err != store.ErrNotFound {
			return Detail{}, err
		}
	}
	if !a.IsEnhanced {
		versions, err := s.store.ListVersions(ctx, a.ID)
		if err != nil {
			return Detail{}, err
		}
		d.UpdatedVersions = versions
	}
	return d, nil
}

// List returns articles matching the filter, newest first.
func (s *Service) List(ctx context.Context, f store.Filter) ([]article.Article, error) {
	return s.store.List(ctx, f)
}

// UpdateInput holds the updatable fields. Nil pointers mean "leave as is".
type UpdateInput struct {
	Title             *string
	Slug              *string
	Content           *string
	SourceURL         *string
	IsEnhanced        *bool
	OriginalArticleID *int64
	References        []string
	EnhancedAt        *time.Time
	EnhancedBy        *string
}

// Update mutates the supplied fields. The slug is re-derived only when the
// title changes and no slug was supplied explicitly; disambiguation excludes
// the article itself.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (article.Article, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return article.Article{}, err
	}

	fields := map[string]string{}
	if in.Title != nil {
		validateTitle(*in.Title, fields)
	}
	if in.Content != nil {
		validateContent(*in.Content, fields)
	}
	if in.SourceURL != nil {
		validateSourceURL(*in.SourceURL, fields)
	}
	if len(fields) > 0 {
		return article.Article{}, &ValidationError{Fields: fields}
	}

	if in.OriginalArticleID != nil {
		ok, err := s.store.Exists(ctx, *in.OriginalArticleID)
		if err != nil {
			return article.Article{}, fmt.Errorf("check original article: %w", err)
		}
		if !ok {
			return article.Article{}, fmt.Errorf("original article %d: %w", *in.OriginalArticleID, store.ErrNotFound)
		}
		a.OriginalArticleID = in.OriginalArticleID
	}

	titleChanged := in.Title != nil && *in.Title != a.Title
	if in.Title != nil {
		a.Title = *in.Title
	}
	switch {
	case in.Slug != nil:
		slug, err := s.resolveSlug(ctx, *in.Slug, a.Title, a.ID)
		if err != nil {
			return article.Article{}, err
		}
		a.Slug = slug
	case titleChanged:
		slug, err := s.resolveSlug(ctx, "", a.Title, a.ID)
		if err != nil {
			return article.Article{}, err
		}
		a.Slug = slug
	}

	if in.Content != nil {
		a.Content = *in.Content
	}
	if in.SourceURL != nil {
		a.SourceURL = *in.SourceURL
	}
	if in.IsEnhanced != nil {
		a.IsEnhanced = *in.IsEnhanced
	}
	if in.References != nil {
		a.References = in.References
	}
	if in.EnhancedAt != nil {
		a.EnhancedAt = in.EnhancedAt
	}
	if in.EnhancedBy != nil {
		a.EnhancedBy = *in.EnhancedBy
	}

	if err := s.store.Update(ctx, &a); err != nil {
		return article.Article{}, err
	}
	s.logger.Info("article updated", zap.Int64("id", a.ID), zap.String("slug", a.Slug))
	return a, nil
}

// Delete removes an article and, through the cascade constraint, its
// enhanced children.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("article deleted", zap.Int64("id", id))
	return nil
}

// Comparison resolves the {original, enhanced} pair for either side of the
// relation. When id names an original, version selects a specific enhanced
// child; version 0 means the latest.
func (s *Service) Comparison(ctx context.Context, id int64, version int) (article.Comparison, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return article.Comparison{}, err
	}

	originalID := a.ID
	if a.IsEnhanced && a.OriginalArticleID != nil {
		originalID = *a.OriginalArticleID
	}

	original := a
	if originalID != a.ID {
		original, err = s.store.Get(ctx, originalID)
		if err != nil {
			return article.Comparison{}, err
		}
	}

	children, err := s.store.ListVersions(ctx, originalID)
	if err != nil {
		return article.Comparison{}, err
	}

	cmp := article.Comparison{
		Original: &original,
		Versions: make([]article.VersionInfo, 0, len(children)),
	}
	for i := range children {
		c := children[i]
		cmp.Versions = append(cmp.Versions, article.VersionInfo{
			ID:         c.ID,
			Title:      c.Title,
			Version:    c.Version,
			EnhancedAt: c.EnhancedAt,
			EnhancedBy: c.EnhancedBy,
		})
	}

	if a.IsEnhanced {
		enhanced := a
		cmp.Enhanced = &enhanced
		return cmp, nil
	}

	if version > 0 {
		for i := range children {
			if children[i].Version == version {
				cmp.Enhanced = &children[i]
				return cmp, nil
			}
		}
		return article.Comparison{}, fmt.Errorf("version %d of article %d: %w", version, originalID, store.ErrNotFound)
	}
	if len(children) > 0 {
		cmp.Enhanced = &children[0]
	}
	return cmp, nil
}

// resolveSlug derives a slug from the title when none is given and walks the
// -1, -2, ... suffixes until a free one is found. excludeID keeps an article
// from colliding with its own slug on update.
func (s *Service) resolveSlug(ctx context.Context, explicit, title string, excludeID int64) (string, error) {
	base := explicit
	if base == "" {
		base = article.Slugify(title)
	}
	if base == "" {
		return "", &ValidationError{Fields: map[string]string{"slug": "could not derive a slug from the title"}}
	}
	slug := base
	for counter := 1; ; counter++ {
		taken, err := s.store.SlugExists(ctx, slug, excludeID)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return slug, nil
		}
		if explicit != "" {
			// An explicitly supplied slug is never rewritten behind the
			// caller's back.
			return "", &ValidationError{Fields: map[string]string{"slug": "has already been taken"}}
		}
		slug = fmt.Sprintf("%s-%d", base, counter)
	}
}

func validateTitle(title string, fields map[string]string) {
	switch {
	case strings.TrimSpace(title) == "":
		fields["title"] = "is required"
	case len(title) > maxTitleChars:
		fields["title"] = fmt.Sprintf("must not exceed %d characters", maxTitleChars)
	}
}

func validateContent(content string, fields map[string]string) {
	if strings.TrimSpace(content) == "" {
		fields["content"] = "is required"
	}
}

func validateSourceURL(raw string, fields map[string]string) {
	if strings.TrimSpace(raw) == "" {
		fields["source_url"] = "is required"
		return
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		fields["source_url"] = "must be a valid http(s) URL"
	}
}
