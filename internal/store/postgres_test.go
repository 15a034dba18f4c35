package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"articleforge/internal/article"
)

func newMockStore(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	st, err := NewPostgresWithPool(mock)
	require.NoError(t, err)
	return st, mock
}

func articleRow(a article.Article, refs string) *pgxmock.Rows {
	var enhancedBy *string
	if a.EnhancedBy != "" {
		enhancedBy = &a.EnhancedBy
	}
	return pgxmock.NewRows([]string{
		"id", "title", "slug", "content", "source_url", "is_enhanced", "version",
		"original_article_id", "refs", "enhanced_at", "enhanced_by", "created_at", "updated_at",
	}).AddRow(
		a.ID, a.Title, a.Slug, a.Content, a.SourceURL, a.IsEnhanced, a.Version,
		a.OriginalArticleID, refBytes(refs), a.EnhancedAt, enhancedBy, a.CreatedAt, a.UpdatedAt,
	)
}

// refBytes maps the empty string to a NULL refs column.
func refBytes(refs string) []byte {
	if refs == "" {
		return nil
	}
	return []byte(refs)
}

func TestCreateInsertsAndFillsGeneratedFields(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	a := article.Article{
		Title:     "Chatbot Basics",
		Slug:      "chatbot-basics",
		Content:   "Long enough content.",
		SourceURL: "https://example.com/blog/chatbot-basics",
		Version:   1,
	}

	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(
			a.Title, a.Slug, a.Content, a.SourceURL, false, 1,
			(*int64)(nil), []byte(nil), (*time.Time)(nil), (*string)(nil),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(7), now, now))

	require.NoError(t, st.Create(context.Background(), &a))
	assert.Equal(t, int64(7), a.ID)
	assert.Equal(t, now, a.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsArticle(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	want := article.Article{
		ID:        3,
		Title:     "Chatbot Basics",
		Slug:      "chatbot-basics",
		Content:   "Body",
		SourceURL: "https://example.com/blog/chatbot-basics",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	mock.ExpectQuery("SELECT (.+) FROM articles WHERE id =").
		WithArgs(int64(3)).
		WillReturnRows(articleRow(want, `["https://competitor.example/post"]`))

	got, err := st.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, []string{"https://competitor.example/post"}, got.References)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Articles without references are stored with a NULL refs column, never an
// empty JSON array; the nullable column in the schema relies on this.
func TestRefsColumnIsNullWhenEmpty(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	a := article.Article{
		Title:     "Plain Original",
		Slug:      "plain-original",
		Content:   "Body",
		SourceURL: "https://example.com/blog/plain-original",
		Version:   1,
	}
	mock.ExpectQuery("INSERT INTO articles").
		WithArgs(
			a.Title, a.Slug, a.Content, a.SourceURL, false, 1,
			(*int64)(nil), []byte(nil), (*time.Time)(nil), (*string)(nil),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(5), now, now))
	require.NoError(t, st.Create(context.Background(), &a))

	// Reading a NULL refs column back yields no references.
	stored := article.Article{ID: 5, Title: a.Title, Slug: a.Slug, Content: a.Content,
		SourceURL: a.SourceURL, Version: 1, CreatedAt: now, UpdatedAt: now}
	mock.ExpectQuery("SELECT (.+) FROM articles WHERE id =").
		WithArgs(int64(5)).
		WillReturnRows(articleRow(stored, ""))

	got, err := st.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, got.References)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingArticleReturnsNotFound(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	cols := []string{
		"id", "title", "slug", "content", "source_url", "is_enhanced", "version",
		"original_article_id", "refs", "enhanced_at", "enhanced_by", "created_at", "updated_at",
	}
	mock.ExpectQuery("SELECT (.+) FROM articles WHERE id =").
		WithArgs(int64(99)).
		WillReturnRows(pgxmock.NewRows(cols))

	_, err := st.Get(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListOriginalsOnlyFilters(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()
	a := article.Article{ID: 1, Title: "T", Slug: "t", Content: "c",
		SourceURL: "https://example.com/t", Version: 1, CreatedAt: now, UpdatedAt: now}

	mock.ExpectQuery("SELECT (.+) FROM articles WHERE is_enhanced = FALSE").
		WillReturnRows(articleRow(a, "[]"))

	got, err := st.List(context.Background(), Filter{OriginalsOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingArticleReturnsNotFound(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectExec("DELETE FROM articles").
		WithArgs(int64(42)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := st.Delete(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSlugExistsExcludesSelf(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("chatbot-basics", int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	taken, err := st.SlugExists(context.Background(), "chatbot-basics", 3)
	require.NoError(t, err)
	assert.False(t, taken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNextVersionStartsAtTwo(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 1\) \+ 1`).
		WithArgs(int64(5)).
		WillReturnRows(pgxmock.NewRows([]string{"next"}).AddRow(2))

	next, err := st.NextVersion(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 2, next)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMissingArticleReturnsNotFound(t *testing.T) {
	t.Parallel()

	st, mock := newMockStore(t)
	a := article.Article{ID: 12, Title: "T", Slug: "t", Content: "c",
		SourceURL: "https://example.com/t", Version: 1}

	mock.ExpectQuery("UPDATE articles SET").
		WithArgs(a.Title, a.Slug, a.Content, a.SourceURL, false, 1,
			(*int64)(nil), []byte(nil), (*time.Time)(nil), (*string)(nil), a.ID).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}))

	err := st.Update(context.Background(), &a)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
