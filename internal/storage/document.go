package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxContentLength bounds stored content, in characters.
const MaxContentLength = 10000

// CategoryAuto tags every crawler-authored row.
const CategoryAuto = "auto"

// Categories lists the categories admins may pick for manual and uploaded documents.
var Categories = []string{"akademik", "biaya", "pendaftaran", "fasilitas", "berita", "dokumen"}

type SourceType string

const (
	SourceAutoCrawl   SourceType = "auto_crawl"
	SourceManualInput SourceType = "manual_input"
	SourceFileUpload  SourceType = "file_upload"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceAutoCrawl, SourceManualInput, SourceFileUpload:
		return true
	}
	return false
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// CanTransition reports whether a document may move from s to next.
// Only pending documents change status; success and error are terminal.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && (next == StatusSuccess || next == StatusError)
}

var ErrInvalidTransition = errors.New("invalid status transition")

// Document is one row of crawled_data.
type Document struct {
	ID         string     `bson:"_id" json:"id"`
	Title      string     `bson:"title" json:"title"`
	Content    string     `bson:"content" json:"content"`
	Category   string     `bson:"category" json:"category"`
	URL        *string    `bson:"url" json:"url"`
	SourceType SourceType `bson:"source_type" json:"source_type"`
	Status     Status     `bson:"status" json:"status"`
	Embedding  []float32  `bson:"embedding,omitempty" json:"-"`
	CreatedBy  *string    `bson:"created_by" json:"created_by"`
	CreatedAt  time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `bson:"updated_at" json:"updated_at"`
	WordCount  *int       `bson:"word_count,omitempty" json:"word_count"`

	// Similarity is only set on embedding search results.
	Similarity float64 `bson:"score,omitempty" json:"similarity,omitempty"`
}

// Transition moves the document to next, enforcing CanTransition.
func (d *Document) Transition(next Status) error {
	if !d.Status.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
	}
	d.Status = next
	return nil
}

// SourceURL returns the URL or "" when it is null.
func (d Document) SourceURL() string {
	if d.URL == nil {
		return ""
	}
	return *d.URL
}

// DedupKey identifies a document for merging search results: its URL, or its id when the URL is null.
func (d Document) DedupKey() string {
	if d.URL != nil && *d.URL != "" {
		return "url:" + *d.URL
	}
	return "id:" + d.ID
}

// CapContent truncates s to MaxContentLength characters.
func CapContent(s string) string {
	if utf8.RuneCountInString(s) <= MaxContentLength {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxContentLength {
			return s[:i]
		}
		n++
	}
	return s
}

// WordCount returns the number of whitespace separated words in s.
func WordCount(s string) *int {
	n := len(strings.Fields(s))
	return &n
}

// StringPtr returns nil for "" and &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Patch carries an admin edit. Nil fields are left untouched.
type Patch struct {
	Title    *string
	Category *string
	Content  *string
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Category == nil && p.Content == nil
}

// Filter narrows List results.
type Filter struct {
	Category   string
	SourceType SourceType
	Limit      int
	Offset     int
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	}
	return f.Limit
}
