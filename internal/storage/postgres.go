package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const documentColumns = `id, title, content, category, url, source_type, status, created_by, created_at, updated_at, word_count`

// PostgresStore keeps documents in the crawled_data table. Embedding search
// calls the match_crawled_data(query_embedding vector, match_threshold float,
// match_count int) function, which returns the document columns plus similarity.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("database url is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgres(db), nil
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresStore) Insert(ctx context.Context, d *Document) error {
	prepareInsert(d, s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crawled_data (id, title, content, category, url, source_type, status, embedding, created_by, created_at, updated_at, word_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, d.ID, d.Title, d.Content, d.Category, d.URL, string(d.SourceType), string(d.Status),
		vectorArg(d.Embedding), d.CreatedBy, d.CreatedAt, d.UpdatedAt, d.WordCount)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM crawled_data WHERE id = $1`, id)
	d, err := scanDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]Document, error) {
	var where []string
	var args []any
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.SourceType != "" {
		args = append(args, string(f.SourceType))
		where = append(where, fmt.Sprintf("source_type = $%d", len(args)))
	}
	query := `SELECT ` + documentColumns + ` FROM crawled_data`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.limit(), max(f.Offset, 0))
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collectDocuments(rows, false)
}

func (s *PostgresStore) Update(ctx context.Context, id string, p Patch) (*Document, error) {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Category != nil {
		add("category", *p.Category)
	}
	if p.Content != nil {
		content := CapContent(*p.Content)
		add("content", content)
		add("word_count", *WordCount(content))
	}
	add("updated_at", s.now())
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE crawled_data SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), documentColumns)
	d, err := scanDocument(s.db.QueryRowContext(ctx, query, args...).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM crawled_data WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SearchContent(ctx context.Context, keyword string, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM crawled_data
		WHERE content ILIKE $1
		ORDER BY created_at DESC
		LIMIT $2
	`, "%"+escapeLike(keyword)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search content: %w", err)
	}
	return collectDocuments(rows, false)
}

func (s *PostgresStore) MatchEmbedding(ctx context.Context, vec []float32, threshold float64, count int) ([]Document, error) {
	if len(vec) == 0 {
		return nil, errors.New("query embedding is required")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+documentColumns+`, similarity
		FROM match_crawled_data($1, $2, $3)
	`, pgvector.NewVector(vec), threshold, count)
	if err != nil {
		return nil, fmt.Errorf("match embedding: %w", err)
	}
	return collectDocuments(rows, true)
}

func (s *PostgresStore) Close(context.Context) error {
	return s.db.Close()
}

func vectorArg(vec []float32) any {
	if len(vec) == 0 {
		return nil
	}
	return pgvector.NewVector(vec)
}

// escapeLike escapes the LIKE metacharacters so keyword matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanDocument(scan func(dest ...any) error, extra ...any) (*Document, error) {
	var (
		d          Document
		url        sql.NullString
		createdBy  sql.NullString
		wordCount  sql.NullInt64
		sourceType string
		status     string
	)
	dest := []any{&d.ID, &d.Title, &d.Content, &d.Category, &url, &sourceType, &status,
		&createdBy, &d.CreatedAt, &d.UpdatedAt, &wordCount}
	dest = append(dest, extra...)
	if err := scan(dest...); err != nil {
		return nil, err
	}
	d.SourceType = SourceType(sourceType)
	d.Status = Status(status)
	if url.Valid {
		d.URL = &url.String
	}
	if createdBy.Valid {
		d.CreatedBy = &createdBy.String
	}
	if wordCount.Valid {
		n := int(wordCount.Int64)
		d.WordCount = &n
	}
	return &d, nil
}

func collectDocuments(rows *sql.Rows, withSimilarity bool) ([]Document, error) {
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var similarity float64
		var extra []any
		if withSimilarity {
			extra = append(extra, &similarity)
		}
		d, err := scanDocument(rows.Scan, extra...)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.Similarity = similarity
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}
