package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"campusinfo/internal/chat"
	"campusinfo/internal/documents"
	"campusinfo/internal/logging"
	"campusinfo/internal/scheduler"
	"campusinfo/internal/storage"
)

type handlers struct {
	deps Deps
	log  logging.Logger
}

func (h *handlers) startCrawl(kind scheduler.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.deps.Trigger.Start(kind)
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
			return
		}
		if err != nil {
			requestLogger(c, h.log).WithError(err).Error("crawl start failed")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "failed to start crawling"})
			return
		}
		msg := "Crawling started"
		if kind == scheduler.Demo {
			msg = "Demo crawling started"
		}
		c.JSON(http.StatusOK, gin.H{"message": msg})
	}
}

type crawlStatusResponse struct {
	Running bool               `json:"running"`
	Kind    scheduler.Kind     `json:"kind,omitempty"`
	Since   *time.Time         `json:"since,omitempty"`
	LastRun *scheduler.RunInfo `json:"last_run"`
}

func (h *handlers) crawlStatus(c *gin.Context) {
	state := h.deps.Trigger.State()
	resp := crawlStatusResponse{Running: state.IsRunning()}
	if kind, since, ok := state.Current(); ok {
		resp.Kind = kind
		resp.Since = &since
	}
	if last, ok := state.LastRun(); ok {
		resp.LastRun = &last
	}
	c.JSON(http.StatusOK, resp)
}

type chatRequest struct {
	Question string `json:"question"`
}

func (h *handlers) chat(c *gin.Context) {
	if h.deps.Chat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat is not configured"})
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	reply, err := h.deps.Chat.Ask(c.Request.Context(), req.Question)
	if errors.Is(err, chat.ErrEmptyQuestion) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
		return
	}
	if err != nil {
		requestLogger(c, h.log).WithError(err).Error("chat failed")
		c.JSON(http.StatusOK, chat.Reply{Answer: chat.DefaultApology, Sources: []chat.Source{}})
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *handlers) listDocuments(c *gin.Context) {
	f := storage.Filter{
		Category:   c.Query("category"),
		SourceType: storage.SourceType(c.Query("source_type")),
	}
	if f.SourceType != "" && !f.SourceType.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source_type"})
		return
	}
	var err error
	if f.Limit, err = queryInt(c, "limit"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
		return
	}
	if f.Offset, err = queryInt(c, "offset"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a number"})
		return
	}

	docs, err := h.deps.Documents.List(c.Request.Context(), f)
	if err != nil {
		h.storeError(c, err)
		return
	}
	if docs == nil {
		docs = []storage.Document{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

type createRequest struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Category  string `json:"category"`
	CreatedBy string `json:"created_by"`
}

func (h *handlers) createDocument(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	doc, err := h.deps.Documents.CreateManual(c.Request.Context(), documents.ManualInput{
		Title:     req.Title,
		Content:   req.Content,
		Category:  req.Category,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		h.documentError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *handlers) uploadDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fh.Size > documents.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": documents.ErrTooLarge.Error()})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is unreadable"})
		return
	}
	defer f.Close()
	body, err := io.ReadAll(io.LimitReader(f, documents.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is unreadable"})
		return
	}

	doc, err := h.deps.Documents.Upload(c.Request.Context(), documents.FileInput{
		Name:      fh.Filename,
		Body:      body,
		Category:  c.PostForm("category"),
		CreatedBy: c.PostForm("created_by"),
	})
	if err != nil {
		h.documentError(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *handlers) getDocument(c *gin.Context) {
	doc, err := h.deps.Documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

type patchRequest struct {
	Title    *string `json:"title"`
	Category *string `json:"category"`
	Content  *string `json:"content"`
}

func (h *handlers) updateDocument(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	doc, err := h.deps.Documents.Update(c.Request.Context(), c.Param("id"), storage.Patch{
		Title:    req.Title,
		Category: req.Category,
		Content:  req.Content,
	})
	if err != nil {
		h.documentError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *handlers) deleteDocument(c *gin.Context) {
	if err := h.deps.Documents.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) documentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, documents.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, documents.ErrUnsupportedType):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
	case errors.Is(err, documents.ErrMissingField),
		errors.Is(err, documents.ErrUnknownCategory),
		errors.Is(err, documents.ErrEmptyContent),
		errors.Is(err, documents.ErrEmptyPatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.storeError(c, err)
	}
}

func (h *handlers) storeError(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	requestLogger(c, h.log).WithError(err).Error("store request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
