package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"articleforge/internal/article"
)

// PostgresConfig controls the pgx connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres implements Store on top of a pgx connection pool.
type Postgres struct {
	pool pgxPool
}

// NewPostgres connects a pool using the provided config and pings it.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresWithPool constructs a store from an existing pool (primarily for
// testing with pgxmock).
func NewPostgresWithPool(pool pgxPool) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const articleColumns = `id, title, slug, content, source_url, is_enhanced, version,
	original_article_id, refs, enhanced_at, enhanced_by, created_at, updated_at`

// Create inserts the article and fills in the generated fields.
func (s *Postgres) Create(ctx context.Context, a *article.Article) error {
	refs, err := marshalRefs(a.References)
	if err != nil {
		return err
	}
	query := `
INSERT INTO articles (
	title, slug, content, source_url, is_enhanced, version,
	original_article_id, refs, enhanced_at, enhanced_by
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, created_at, updated_at`
	err = s.pool.QueryRow(ctx, query,
		a.Title,
		a.Slug,
		a.Content,
		a.SourceURL,
		a.IsEnhanced,
		a.Version,
		a.OriginalArticleID,
		refs,
		a.EnhancedAt,
		nullableString(a.EnhancedBy),
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// Get returns a single article by id.
func (s *Postgres) Get(ctx context.Context, id int64) (article.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1`
	a, err := scanArticle(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return article.Article{}, ErrNotFound
		}
		return article.Article{}, fmt.Errorf("select article %d: %w", id, err)
	}
	return a, nil
}

// Exists reports whether an article with the given id exists.
func (s *Postgres) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check article %d: %w", id, err)
	}
	return exists, nil
}

// List returns articles matching the filter, newest first.
func (s *Postgres) List(ctx context.Context, f Filter) ([]article.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles`
	args := []any{}
	switch {
	case f.OriginalArticleID != nil:
		query += ` WHERE original_article_id = $1`
		args = append(args, *f.OriginalArticleID)
	case f.OriginalsOnly:
		query += ` WHERE is_enhanced = FALSE`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

// Update rewrites the mutable fields of the article.
func (s *Postgres) Update(ctx context.Context, a *article.Article) error {
	refs, err := marshalRefs(a.References)
	if err != nil {
		return err
	}
	query := `
UPDATE articles SET
	title = $1, slug = $2, content = $3, source_url = $4, is_enhanced = $5,
	version = $6, original_article_id = $7, refs = $8, enhanced_at = $9,
	enhanced_by = $10, updated_at = NOW()
WHERE id = $11
RETURNING updated_at`
	err = s.pool.QueryRow(ctx, query,
		a.Title,
		a.Slug,
		a.Content,
		a.SourceURL,
		a.IsEnhanced,
		a.Version,
		a.OriginalArticleID,
		refs,
		a.EnhancedAt,
		nullableString(a.EnhancedBy),
		a.ID,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("update article %d: %w", a.ID, err)
	}
	return nil
}

// Delete removes the article; the FK cascade removes enhanced children.
func (s *Postgres) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete article %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SlugExists reports whether the slug is taken by any other article.
func (s *Postgres) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM articles WHERE slug = $1 AND id <> $2)`,
		slug, excludeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slug %q: %w", slug, err)
	}
	return exists, nil
}

// ListVersions returns the enhanced children of an original, highest version first.
func (s *Postgres) ListVersions(ctx context.Context, originalID int64) ([]article.Article, error) {
	query := `SELECT ` + articleColumns + `
FROM articles WHERE original_article_id = $1 ORDER BY version DESC, created_at DESC`
	rows, err := s.pool.Query(ctx, query, originalID)
	if err != nil {
		return nil, fmt.Errorf("list versions of %d: %w", originalID, err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

// NextVersion computes the version number for the next enhanced child.
func (s *Postgres) NextVersion(ctx context.Context, originalID int64) (int, error) {
	var next int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 1) + 1 FROM articles WHERE original_article_id = $1`,
		originalID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next version for %d: %w", originalID, err)
	}
	return next, nil
}

func collectArticles(rows pgx.Rows) ([]article.Article, error) {
	out := []article.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article rows: %w", err)
	}
	return out, nil
}

func scanArticle(row pgx.Row) (article.Article, error) {
	var (
		a          article.Article
		refs       []byte
		enhancedBy *string
	)
	err := row.Scan(
		&a.ID,
		&a.Title,
		&a.Slug,
		&a.Content,
		&a.SourceURL,
		&a.IsEnhanced,
		&a.Version,
		&a.OriginalArticleID,
		&refs,
		&a.EnhancedAt,
		&enhancedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return article.Article{}, err
	}
	if enhancedBy != nil {
		a.EnhancedBy = *enhancedBy
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &a.References); err != nil {
			return article.Article{}, fmt.Errorf("decode refs: %w", err)
		}
	}
	return a, nil
}

// marshalRefs encodes references for the nullable refs column; articles
// without references store SQL NULL.
func marshalRefs(refs []string) ([]byte, error) {
	if refs == nil {
		return nil, nil
	}
	b, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("encode refs: %w", err)
	}
	return b, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
