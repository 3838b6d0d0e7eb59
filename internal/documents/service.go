package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"campusinfo/internal/blob"
	"campusinfo/internal/logging"
	"campusinfo/internal/metrics"
	"campusinfo/internal/storage"
)

// MaxUploadBytes bounds an uploaded file.
const MaxUploadBytes = 5 << 20

var (
	ErrMissingField    = errors.New("title, content and category are required")
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnsupportedType = errors.New("only .txt and .md files are supported")
	ErrTooLarge        = errors.New("file exceeds 5 MiB")
	ErrEmptyContent    = errors.New("file has no text content")
	ErrEmptyPatch      = errors.New("nothing to update")
)

var allowedExtensions = map[string]string{
	".txt": "text/plain; charset=utf-8",
	".md":  "text/markdown; charset=utf-8",
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type ManualInput struct {
	Title     string
	Content   string
	Category  string
	CreatedBy string
}

type FileInput struct {
	Name      string
	Body      []byte
	Category  string
	CreatedBy string
}

// Service manages admin-authored documents.
type Service struct {
	store    storage.Store
	blobs    blob.Store
	embedder Embedder
	log      logging.Logger
}

// New builds a Service. blobs and embedder may be nil.
func New(store storage.Store, blobs blob.Store, embedder Embedder, log logging.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{store: store, blobs: blobs, embedder: embedder, log: log}
}

func (s *Service) CreateManual(ctx context.Context, in ManualInput) (*storage.Document, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	category := strings.TrimSpace(in.Category)
	if title == "" || content == "" || category == "" {
		return nil, ErrMissingField
	}
	if !ValidCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	content = storage.CapContent(content)
	doc := &storage.Document{
		Title:      title,
		Content:    content,
		Category:   category,
		SourceType: storage.SourceManualInput,
		Status:     storage.StatusSuccess,
		CreatedBy:  storage.StringPtr(in.CreatedBy),
		WordCount:  storage.WordCount(content),
		Embedding:  s.embed(ctx, content),
	}
	if err := s.store.Insert(ctx, doc); err != nil {
		return nil, err
	}
	metrics.DocumentsStored.WithLabelValues(string(doc.SourceType)).Inc()
	s.log.WithFields(logrus.Fields{"id": doc.ID, "category": category}).Info("manual document created")
	return doc, nil
}

// Upload validates a text file, stores it in the blob store when one is
// configured, and inserts a single document whose status records the outcome.
func (s *Service) Upload(ctx context.Context, in FileInput) (*storage.Document, error) {
	ext := strings.ToLower(filepath.Ext(in.Name))
	contentType, ok := allowedExtensions[ext]
	if !ok {
		return nil, ErrUnsupportedType
	}
	if len(in.Body) > MaxUploadBytes {
		return nil, ErrTooLarge
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return nil, ErrMissingField
	}
	if !ValidCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}

	text := strings.TrimSpace(strings.ToValidUTF8(string(in.Body), string(utf8.RuneError)))
	if text == "" {
		return nil, ErrEmptyContent
	}

	title := strings.TrimSuffix(filepath.Base(in.Name), filepath.Ext(in.Name))
	if title == "" {
		title = in.Name
	}
	content := storage.CapContent(text)
	doc := &storage.Document{
		Title:      title,
		Content:    content,
		Category:   category,
		SourceType: storage.SourceFileUpload,
		Status:     storage.StatusPending,
		CreatedBy:  storage.StringPtr(in.CreatedBy),
		WordCount:  storage.WordCount(content),
	}

	log := s.log.WithFields(logrus.Fields{"file": in.Name, "bytes": len(in.Body)})
	next := storage.StatusSuccess
	if s.blobs != nil {
		objectURL, err := s.blobs.Put(ctx, in.Name, bytes.NewReader(in.Body), int64(len(in.Body)), contentType)
		if err != nil {
			log.WithError(err).Error("blob upload failed")
			next = storage.StatusError
		} else {
			doc.URL = storage.StringPtr(objectURL)
		}
	}
	if err := doc.Transition(next); err != nil {
		return nil, err
	}
	if next == storage.StatusSuccess {
		doc.Embedding = s.embed(ctx, content)
	}

	if err := s.store.Insert(ctx, doc); err != nil {
		return nil, err
	}
	metrics.DocumentsStored.WithLabelValues(string(doc.SourceType)).Inc()
	log.WithFields(logrus.Fields{"id": doc.ID, "status": doc.Status}).Info("file uploaded")
	return doc, nil
}

// Update applies an admin edit to title, category and content.
func (s *Service) Update(ctx context.Context, id string, p storage.Patch) (*storage.Document, error) {
	if p.Empty() {
		return nil, ErrEmptyPatch
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return nil, ErrMissingField
	}
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return nil, ErrMissingField
	}
	if p.Category != nil && !ValidCategory(*p.Category) && *p.Category != storage.CategoryAuto {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, *p.Category)
	}
	doc, err := s.store.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.log.WithField("id", id).Info("document updated")
	return doc, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithField("id", id).Info("document deleted")
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*storage.Document, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f storage.Filter) ([]storage.Document, error) {
	return s.store.List(ctx, f)
}

// ValidCategory reports whether c is one of storage.Categories.
func ValidCategory(c string) bool {
	return slices.Contains(storage.Categories, c)
}

func (s *Service) embed(ctx context.Context, text string) []float32 {
	if s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.log.WithError(err).Warn("embedding failed, storing without vector")
		return nil
	}
	return vec
}
