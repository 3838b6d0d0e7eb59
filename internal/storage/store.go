package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document not found")

// Store persists crawled_data rows.
type Store interface {
	// Insert writes d as a new row, assigning ID and timestamps.
	Insert(ctx context.Context, d *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, f Filter) ([]Document, error)
	Update(ctx context.Context, id string, p Patch) (*Document, error)
	Delete(ctx context.Context, id string) error
	// SearchContent returns up to limit rows whose content contains keyword, ignoring case.
	SearchContent(ctx context.Context, keyword string, limit int) ([]Document, error)
	// MatchEmbedding returns up to count rows whose embedding similarity to vec is above threshold.
	MatchEmbedding(ctx context.Context, vec []float32, threshold float64, count int) ([]Document, error)
	Close(ctx context.Context) error
}

// prepareInsert fills the fields every backend assigns on creation.
func prepareInsert(d *Document, now time.Time) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Content = CapContent(d.Content)
	if d.Status == "" {
		d.Status = StatusPending
	}
	d.CreatedAt = now
	d.UpdatedAt = now
}
