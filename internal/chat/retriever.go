package chat

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"campusinfo/internal/config"
	"campusinfo/internal/llm"
	"campusinfo/internal/logging"
	"campusinfo/internal/storage"
)

const (
	maxKeywords = 3

	// Similarity search settings for the embedding retrieval mode.
	MatchThreshold = 0.75
	MatchCount     = 3

	keywordPrompt = "Extract at most three short search keywords from the user's question. " +
		"Reply with the keywords only, separated by commas, in the language of the question."
	keywordMaxTokens = 50
)

// Searcher is the read side of the document store used for retrieval.
type Searcher interface {
	SearchContent(ctx context.Context, keyword string, limit int) ([]storage.Document, error)
	MatchEmbedding(ctx context.Context, vec []float32, threshold float64, count int) ([]storage.Document, error)
}

// Model is a chat-completion backend.
type Model interface {
	Chat(ctx context.Context, messages []llm.Message, maxTokens int) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever finds stored documents relevant to a question.
type Retriever struct {
	store         Searcher
	model         Model
	embedder      Embedder
	keywordMode   string
	retrievalMode string
	perKeyword    int
	log           logging.Logger
}

// NewRetriever builds a Retriever. model and embedder may be nil; the modes
// that need them then fall back to raw keyword search.
func NewRetriever(store Searcher, model Model, embedder Embedder, cfg config.Chat, log logging.Logger) *Retriever {
	if cfg.PerKeyword <= 0 {
		cfg.PerKeyword = 3
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Retriever{
		store:         store,
		model:         model,
		embedder:      embedder,
		keywordMode:   cfg.KeywordMode,
		retrievalMode: cfg.RetrievalMode,
		perKeyword:    cfg.PerKeyword,
		log:           log,
	}
}

// Retrieve returns matching documents in first-seen order without duplicates.
// Lookup failures are logged and yield fewer or no documents, never an error.
func (r *Retriever) Retrieve(ctx context.Context, question string) []storage.Document {
	if r.retrievalMode == config.RetrievalEmbedding && r.embedder != nil {
		if docs := r.byEmbedding(ctx, question); len(docs) > 0 {
			return docs
		}
	}
	return r.byKeywords(ctx, r.Keywords(ctx, question))
}

func (r *Retriever) byEmbedding(ctx context.Context, question string) []storage.Document {
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		r.log.WithError(err).Warn("question embedding failed, using keyword search")
		return nil
	}
	docs, err := r.store.MatchEmbedding(ctx, vec, MatchThreshold, MatchCount)
	if err != nil {
		r.log.WithError(err).Warn("similarity search failed, using keyword search")
		return nil
	}
	return dedupe(docs)
}

func (r *Retriever) byKeywords(ctx context.Context, keywords []string) []storage.Document {
	var all []storage.Document
	for _, kw := range keywords {
		docs, err := r.store.SearchContent(ctx, kw, r.perKeyword)
		if err != nil {
			r.log.WithError(err).WithField("keyword", kw).Warn("content search failed")
			continue
		}
		all = append(all, docs...)
	}
	return dedupe(all)
}

// Keywords returns the search terms for question. In llm mode the model is
// asked for up to three terms; any failure falls back to the raw question.
func (r *Retriever) Keywords(ctx context.Context, question string) []string {
	question = strings.TrimSpace(question)
	if r.keywordMode != config.KeywordModeLLM || r.model == nil {
		return []string{question}
	}

	reply, err := r.model.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: keywordPrompt},
		{Role: llm.RoleUser, Content: question},
	}, keywordMaxTokens)
	if err != nil {
		r.log.WithError(err).Warn("keyword extraction failed, using raw question")
		return []string{question}
	}

	keywords := ParseKeywords(reply)
	if len(keywords) == 0 {
		return []string{question}
	}
	r.log.WithFields(logrus.Fields{"keywords": keywords}).Debug("keywords extracted")
	return keywords
}

// ParseKeywords splits a comma separated model reply into at most three
// distinct, non-empty terms.
func ParseKeywords(reply string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(reply, ",") {
		kw := strings.Trim(strings.TrimSpace(part), `"'.`)
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

func dedupe(docs []storage.Document) []storage.Document {
	seen := make(map[string]struct{}, len(docs))
	out := make([]storage.Document, 0, len(docs))
	for _, d := range docs {
		k := d.DedupKey()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}
