package mediahandler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"openchat/internal/domain/chat"
	"openchat/internal/infrastructure/metrics"
)

// Transcriber converts raw audio bytes into a plain-text transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// MediaHandler exposes transcription and file-description endpoints.
type MediaHandler struct {
	transcriber Transcriber
	describer   chat.FileDescriber
	log         zerolog.Logger
}

func NewMediaHandler(transcriber Transcriber, describer chat.FileDescriber, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{transcriber: transcriber, describer: describer, log: log}
}

type processFileRequest struct {
	URL      string `json:"url" binding:"required"`
	MimeType string `json:"mimeType" binding:"required"`
}

// Transcribe handles POST /v1/transcribe with an "audio" multipart field.
func (h *MediaHandler) Transcribe(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no audio file provided"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read audio file"})
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read audio file"})
		return
	}

	text, err := h.transcriber.Transcribe(c.Request.Context(), audio, fileHeader.Filename)
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("transcription").Inc()
		h.log.Warn().Err(err).Msg("transcription failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to transcribe audio"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text})
}

// ProcessFile handles POST /v1/process-file.
func (h *MediaHandler) ProcessFile(c *gin.Context) {
	var req processFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	content, err := h.describer.Describe(c.Request.Context(), req.URL, req.MimeType)
	if err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("filedesc").Inc()
		h.log.Warn().Err(err).Str("mime_type", req.MimeType).Msg("file description failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to process file"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}
