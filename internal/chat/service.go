package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"campusinfo/internal/logging"
	"campusinfo/internal/metrics"
)

var ErrEmptyQuestion = errors.New("question is empty")

type Source struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// Reply is the answer to one chat question.
type Reply struct {
	Answer      string   `json:"answer"`
	Sources     []Source `json:"sources"`
	UsedContext bool     `json:"used_context"`
}

type Service struct {
	retriever *Retriever
	composer  *Composer
	log       logging.Logger
}

func NewService(r *Retriever, c *Composer, log logging.Logger) *Service {
	if log == nil {
		log = logging.Discard()
	}
	return &Service{retriever: r, composer: c, log: log}
}

// Ask retrieves context for question and composes the answer.
func (s *Service) Ask(ctx context.Context, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, ErrEmptyQuestion
	}
	start := time.Now()

	docs := s.retriever.Retrieve(ctx, question)
	reply := Reply{
		Answer:      s.composer.Answer(ctx, question, docs),
		Sources:     make([]Source, 0, len(docs)),
		UsedContext: len(docs) > 0,
	}
	for _, d := range docs {
		reply.Sources = append(reply.Sources, Source{Title: d.Title, URL: d.SourceURL()})
	}

	metrics.ChatRequests.WithLabelValues(strconv.FormatBool(reply.UsedContext)).Inc()
	metrics.ChatLatency.Observe(time.Since(start).Seconds())
	s.log.WithFields(logrus.Fields{
		"context_docs": len(docs),
		"duration":     time.Since(start).String(),
	}).Info("question answered")
	return reply, nil
}
