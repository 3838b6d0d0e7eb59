package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var docRowColumns = []string{"id", "title", "content", "category", "url", "source_type", "status",
	"created_by", "created_at", "updated_at", "word_count"}

func newMockPostgres(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := NewPostgres(db)
	fixed := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	return s, mock
}

func TestPostgresInsert(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`INSERT INTO crawled_data`).
		WithArgs(sqlmock.AnyArg(), "Beranda", "isi halaman", CategoryAuto, "https://kampus.test/",
			string(SourceAutoCrawl), string(StatusSuccess), nil, nil,
			sqlmock.AnyArg(), sqlmock.AnyArg(), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	d := &Document{
		Title:      "Beranda",
		Content:    "isi halaman",
		Category:   CategoryAuto,
		URL:        StringPtr("https://kampus.test/"),
		SourceType: SourceAutoCrawl,
		Status:     StatusSuccess,
		WordCount:  WordCount("isi halaman"),
	}
	require.NoError(t, s.Insert(context.Background(), d))
	assert.NotEmpty(t, d.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetNotFound(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`SELECT .* FROM crawled_data WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSearchContentEscapesWildcards(t *testing.T) {
	s, mock := newMockPostgres(t)
	now := time.Now()

	rows := sqlmock.NewRows(docRowColumns).
		AddRow("a", "Biaya", "biaya kuliah 100%", "biaya", nil, "manual_input", "success", nil, now, now, 3)
	mock.ExpectQuery(`WHERE content ILIKE \$1`).
		WithArgs(`%100\%%`, 3).
		WillReturnRows(rows)

	docs, err := s.SearchContent(context.Background(), "100%", 3)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Biaya", docs[0].Title)
	assert.Nil(t, docs[0].URL)
	assert.Equal(t, SourceManualInput, docs[0].SourceType)
	require.NotNil(t, docs[0].WordCount)
	assert.Equal(t, 3, *docs[0].WordCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMatchEmbedding(t *testing.T) {
	s, mock := newMockPostgres(t)
	now := time.Now()

	rows := sqlmock.NewRows(append(append([]string{}, docRowColumns...), "similarity")).
		AddRow("a", "Fasilitas", "perpustakaan", "auto", "https://kampus.test/f", "auto_crawl", "success", nil, now, now, 1, 0.91)
	mock.ExpectQuery(`FROM match_crawled_data\(\$1, \$2, \$3\)`).
		WithArgs(sqlmock.AnyArg(), 0.75, 3).
		WillReturnRows(rows)

	docs, err := s.MatchEmbedding(context.Background(), []float32{0.1, 0.2}, 0.75, 3)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.InDelta(t, 0.91, docs[0].Similarity, 1e-9)
	assert.Equal(t, "https://kampus.test/f", docs[0].SourceURL())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMatchEmbeddingRequiresVector(t *testing.T) {
	s, _ := newMockPostgres(t)
	_, err := s.MatchEmbedding(context.Background(), nil, 0.75, 3)
	require.Error(t, err)
}

func TestPostgresUpdate(t *testing.T) {
	s, mock := newMockPostgres(t)
	now := time.Now()
	title := "Judul baru"
	content := "tiga kata saja"

	rows := sqlmock.NewRows(docRowColumns).
		AddRow("a", title, content, "akademik", nil, "manual_input", "success", "admin", now, now, 3)
	mock.ExpectQuery(`UPDATE crawled_data SET title = \$1, content = \$2, word_count = \$3, updated_at = \$4 WHERE id = \$5 RETURNING`).
		WithArgs(title, content, 3, sqlmock.AnyArg(), "a").
		WillReturnRows(rows)

	d, err := s.Update(context.Background(), "a", Patch{Title: &title, Content: &content})
	require.NoError(t, err)
	assert.Equal(t, title, d.Title)
	require.NotNil(t, d.CreatedBy)
	assert.Equal(t, "admin", *d.CreatedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDelete(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectExec(`DELETE FROM crawled_data WHERE id = \$1`).
		WithArgs("a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM crawled_data WHERE id = \$1`).
		WithArgs("b").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Delete(context.Background(), "a"))
	require.ErrorIs(t, s.Delete(context.Background(), "b"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListFilters(t *testing.T) {
	s, mock := newMockPostgres(t)

	mock.ExpectQuery(`WHERE category = \$1 AND source_type = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("berita", string(SourceFileUpload), 10, 20).
		WillReturnRows(sqlmock.NewRows(docRowColumns))

	docs, err := s.List(context.Background(), Filter{Category: "berita", SourceType: SourceFileUpload, Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, docs)
	require.NoError(t, mock.ExpectationsWereMet())
}
