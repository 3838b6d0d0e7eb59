package chat

import (
	"context"
	"strings"

	"campusinfo/internal/llm"
	"campusinfo/internal/logging"
	"campusinfo/internal/metrics"
	"campusinfo/internal/storage"
)

// DefaultApology is shown when no answer could be generated.
const DefaultApology = "Maaf, terjadi kesalahan saat memproses pertanyaan Anda. Silakan coba lagi."

const (
	contextSystemPrompt = "You are the campus information assistant. Answer the question using only the " +
		"information in the provided context. Reply in the same language as the question. " +
		"Do not mention that you are an AI and do not mention where the context came from. " +
		"If the context does not contain the answer, say that the information is not available."

	openSystemPrompt = "You are the campus information assistant. Answer the question helpfully and accurately. " +
		"Reply in the same language as the question."
)

// Composer turns a question and its context documents into an answer.
type Composer struct {
	model     Model
	maxTokens int
	log       logging.Logger
}

func NewComposer(model Model, maxTokens int, log logging.Logger) *Composer {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Composer{model: model, maxTokens: maxTokens, log: log}
}

// Answer grounds the reply in docs when there are any, otherwise asks the
// question on its own. It returns DefaultApology if the model fails.
func (c *Composer) Answer(ctx context.Context, question string, docs []storage.Document) string {
	if c.model == nil {
		metrics.AnswerFallbacks.Inc()
		return DefaultApology
	}

	out, err := c.model.Chat(ctx, BuildMessages(question, docs), c.maxTokens)
	if err != nil {
		c.log.WithError(err).Error("answer generation failed")
		metrics.AnswerFallbacks.Inc()
		return DefaultApology
	}
	out = strings.TrimSpace(out)
	if out == "" {
		metrics.AnswerFallbacks.Inc()
		return DefaultApology
	}
	return out
}

// BuildMessages returns the prompt for question: the context path when docs is
// non-empty, the open path otherwise.
func BuildMessages(question string, docs []storage.Document) []llm.Message {
	if len(docs) == 0 {
		return []llm.Message{
			{Role: llm.RoleSystem, Content: openSystemPrompt},
			{Role: llm.RoleUser, Content: question},
		}
	}

	var b strings.Builder
	b.WriteString("Context:\n")
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(d.Title)
		b.WriteString(": ")
		b.WriteString(d.Content)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: contextSystemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}
