package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusinfo/internal/chat"
	"campusinfo/internal/documents"
	"campusinfo/internal/logging"
	"campusinfo/internal/scheduler"
)

// Asker answers chat questions.
type Asker interface {
	Ask(ctx context.Context, question string) (chat.Reply, error)
}

// Deps are the services the HTTP API exposes. Chat may be nil when no LLM is
// configured; the chat route then answers 503.
type Deps struct {
	Trigger   *scheduler.Trigger
	Chat      Asker
	Documents *documents.Service
	Logger    logging.Logger
	Service   string
}

type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func DefaultConfig(port string) Config {
	return Config{
		Port:         port,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	h := &handlers{deps: d, log: d.Logger}

	r := gin.New()
	r.MaxMultipartMemory = documents.MaxUploadBytes + 1<<20
	r.Use(RequestID(), Logging(d.Logger), Recovery(d.Logger), CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": d.Service})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/start-crawling", h.startCrawl(scheduler.Full))
	r.POST("/start-crawling-demo", h.startCrawl(scheduler.Demo))
	r.GET("/crawl/status", h.crawlStatus)

	r.POST("/chat", h.chat)

	docs := r.Group("/documents")
	docs.GET("", h.listDocuments)
	docs.POST("", h.createDocument)
	docs.POST("/upload", h.uploadDocument)
	docs.GET("/:id", h.getDocument)
	docs.PATCH("/:id", h.updateDocument)
	docs.DELETE("/:id", h.deleteDocument)

	return r
}

// Run serves router until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config, router http.Handler, log logging.Logger) error {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("HTTP server stopped")
	return nil
}
