package chathandler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"openchat/internal/domain/chat"
)

// ChatHandler exposes the submission pipeline over HTTP. Replies stream to
// the client as raw text chunks while the store fills in parallel.
type ChatHandler struct {
	orchestrator *chat.Orchestrator
	log          zerolog.Logger
}

func NewChatHandler(orchestrator *chat.Orchestrator, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator, log: log}
}

type submitRequest struct {
	Text    string        `json:"text"`
	Uploads []chat.Upload `json:"uploads"`
}

type codeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type regenerateRequest struct {
	MessageID string `json:"messageId" binding:"required"`
}

type editRequest struct {
	MessageID string `json:"messageId" binding:"required"`
	Text      string `json:"text"`
}

type titleRequest struct {
	Text string `json:"text" binding:"required"`
}

// Submit handles POST /v1/chat.
func (h *ChatHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	relay := newChunkRelay(c)
	if err := h.orchestrator.Submit(c.Request.Context(), req.Text, req.Uploads, relay.observe); err != nil {
		h.log.Error().Err(err).Msg("submit failed")
	}
}

// SubmitCode handles POST /v1/chat/code.
func (h *ChatHandler) SubmitCode(c *gin.Context) {
	var req codeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	relay := newChunkRelay(c)
	if err := h.orchestrator.SubmitCode(c.Request.Context(), req.Code, req.Language, relay.observe); err != nil {
		h.log.Error().Err(err).Msg("code submission failed")
	}
}

// Regenerate handles POST /v1/chat/regenerate.
func (h *ChatHandler) Regenerate(c *gin.Context) {
	var req regenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	relay := newChunkRelay(c)
	if err := h.orchestrator.Regenerate(c.Request.Context(), req.MessageID, relay.observe); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	}
}

// Edit handles POST /v1/chat/edit.
func (h *ChatHandler) Edit(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	relay := newChunkRelay(c)
	if err := h.orchestrator.Edit(c.Request.Context(), req.MessageID, req.Text, relay.observe); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	}
}

// GenerateTitle handles POST /v1/title.
func (h *ChatHandler) GenerateTitle(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	title, err := h.orchestrator.GenerateTitle(c.Request.Context(), req.Text, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("title generation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "title generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"title": title})
}

// chunkRelay writes growing cumulative text to the response as raw deltas.
// Headers go out lazily on the first chunk so validation errors can still
// produce a JSON status.
type chunkRelay struct {
	c       *gin.Context
	sent    int
	started bool
}

func newChunkRelay(c *gin.Context) *chunkRelay {
	return &chunkRelay{c: c}
}

func (r *chunkRelay) observe(cumulative string) {
	if !r.started {
		r.c.Header("Content-Type", "text/plain; charset=utf-8")
		r.c.Header("Cache-Control", "no-cache")
		r.c.Writer.WriteHeaderNow()
		r.started = true
	}
	if len(cumulative) <= r.sent {
		return
	}
	if _, err := r.c.Writer.WriteString(cumulative[r.sent:]); err != nil {
		return
	}
	r.sent = len(cumulative)
	r.c.Writer.Flush()
}
