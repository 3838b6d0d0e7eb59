package storage

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local Store for demo runs and tests. Embedding
// search ranks by cosine similarity.
type MemoryStore struct {
	mu   sync.RWMutex
	docs []Document
	now  func() time.Time

	// InsertErr, when set, is returned by every Insert.
	InsertErr error
}

func NewMemory() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemoryStore) Insert(_ context.Context, d *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	prepareInsert(d, s.now())
	s.docs = append(s.docs, *d)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.docs {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

// List returns matching rows newest first. Rows inserted in the same instant
// keep reverse insertion order.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for i := len(s.docs) - 1; i >= 0; i-- {
		d := s.docs[i]
		if f.Category != "" && d.Category != f.Category {
			continue
		}
		if f.SourceType != "" && d.SourceType != f.SourceType {
			continue
		}
		out = append(out, d)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	offset := max(f.Offset, 0)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, p Patch) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.docs {
		d := &s.docs[i]
		if d.ID != id {
			continue
		}
		if p.Title != nil {
			d.Title = *p.Title
		}
		if p.Category != nil {
			d.Category = *p.Category
		}
		if p.Content != nil {
			d.Content = CapContent(*p.Content)
			d.WordCount = WordCount(d.Content)
		}
		d.UpdatedAt = s.now()
		out := *d
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs {
		if d.ID == id {
			s.docs = append(s.docs[:i], s.docs[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// SearchContent returns matches in insertion order.
func (s *MemoryStore) SearchContent(_ context.Context, keyword string, limit int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(keyword)
	var out []Document
	for _, d := range s.docs {
		if limit > 0 && len(out) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(d.Content), needle) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryStore) MatchEmbedding(_ context.Context, vec []float32, threshold float64, count int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Document
	for _, d := range s.docs {
		if len(d.Embedding) != len(vec) || len(vec) == 0 {
			continue
		}
		sim := cosine(vec, d.Embedding)
		if sim > threshold {
			d.Similarity = sim
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }

// All returns a copy of every stored row in insertion order.
func (s *MemoryStore) All() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Document(nil), s.docs...)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
