// Package store defines the persistence interface for articles.
// The interface decouples the service layer from Postgres so handlers and
// pipelines can be tested against in-memory fakes.
package store

import (
	"context"
	"errors"

	"articleforge/internal/article"
)

// ErrNotFound is returned when the requested article does not exist.
var ErrNotFound = errors.New("article not found")

// Filter narrows List results. A zero Filter returns every article.
type Filter struct {
	// OriginalsOnly restricts the result to non-enhanced articles.
	OriginalsOnly bool
	// OriginalArticleID, when set, restricts the result to enhanced children
	// of the given original.
	OriginalArticleID *int64
}

// Store is the persistence contract for the articles table.
type Store interface {
	// Create inserts the article and fills in ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, a *article.Article) error

	// Get returns a single article by id, or ErrNotFound.
	Get(ctx context.Context, id int64) (article.Article, error)

	// Exists reports whether an article with the given id exists.
	Exists(ctx context.Context, id int64) (bool, error)

	// List returns articles matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]article.Article, error)

	// Update rewrites the mutable fields of the article and refreshes
	// UpdatedAt. Returns ErrNotFound when the id is absent.
	Update(ctx context.Context, a *article.Article) error

	// Delete removes the article; enhanced children are removed by the
	// cascade constraint. Returns ErrNotFound when the id is absent.
	Delete(ctx context.Context, id int64) error

	// SlugExists reports whether any article other than excludeID already
	// holds the slug. Pass excludeID 0 on create.
	SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)

	// ListVersions returns the enhanced children of an original, highest
	// version first.
	ListVersions(ctx context.Context, originalID int64) ([]article.Article, error)

	// NextVersion returns the version number the next enhanced child of the
	// original should carry. Originals hold version 1, so the first child
	// receives 2.
	NextVersion(ctx context.Context, originalID int64) (int, error)

	// Close releases the underlying connection resources.
	Close()
}
