package chathandler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"openchat/internal/domain/chat"
)

// MemoryHandler proxies memory recall and memory writes for the session.
type MemoryHandler struct {
	memory chat.MemoryService
	log    zerolog.Logger
}

func NewMemoryHandler(memory chat.MemoryService, log zerolog.Logger) *MemoryHandler {
	return &MemoryHandler{memory: memory, log: log}
}

type memoryRequest struct {
	Query       string `json:"query"`
	Interaction *struct {
		User      string `json:"user"`
		Assistant string `json:"assistant"`
	} `json:"interaction"`
	UserID string `json:"userId" binding:"required"`
}

// Handle dispatches POST /v1/memory: a query performs a search, an
// interaction performs a write.
func (h *MemoryHandler) Handle(c *gin.Context) {
	var req memoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	switch {
	case req.Query != "":
		memory, err := h.memory.Search(c.Request.Context(), req.UserID, req.Query)
		if err != nil {
			h.log.Warn().Err(err).Msg("memory search failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "memory service unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"memory": memory})
	case req.Interaction != nil:
		err := h.memory.Add(c.Request.Context(), req.UserID, req.Interaction.User, req.Interaction.Assistant)
		if err != nil {
			h.log.Warn().Err(err).Msg("memory write failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "memory service unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "either query or interaction is required"})
	}
}
