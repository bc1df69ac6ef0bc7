package threadhandler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"openchat/internal/domain/chat"
	"openchat/internal/infrastructure/metrics"
)

// ThreadHandler exposes thread CRUD over the conversation store.
type ThreadHandler struct {
	store *chat.Store
	log   zerolog.Logger
}

func NewThreadHandler(store *chat.Store, log zerolog.Logger) *ThreadHandler {
	return &ThreadHandler{store: store, log: log}
}

type updateTitleRequest struct {
	Title string `json:"title" binding:"required"`
}

// List handles GET /v1/threads.
func (h *ThreadHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"threads":  h.store.Threads(),
		"activeId": h.store.ActiveThreadID(),
	})
}

// Create handles POST /v1/threads.
func (h *ThreadHandler) Create(c *gin.Context) {
	id := h.store.CreateThread()
	if id == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unable to create thread"})
		return
	}
	metrics.ThreadsCreatedTotal.Inc()
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// Get handles GET /v1/threads/:id.
func (h *ThreadHandler) Get(c *gin.Context) {
	thread := h.store.Thread(c.Param("id"))
	if thread == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}
	c.JSON(http.StatusOK, thread)
}

// Activate handles POST /v1/threads/:id/activate.
func (h *ThreadHandler) Activate(c *gin.Context) {
	id := c.Param("id")
	h.store.SelectThread(id)
	c.JSON(http.StatusOK, gin.H{"activeId": h.store.ActiveThreadID()})
}

// UpdateTitle handles PUT /v1/threads/:id.
func (h *ThreadHandler) UpdateTitle(c *gin.Context) {
	id := c.Param("id")
	if h.store.Thread(id) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}

	var req updateTitleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	h.store.UpdateThreadTitle(id, req.Title)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Delete handles DELETE /v1/threads/:id.
func (h *ThreadHandler) Delete(c *gin.Context) {
	h.store.DeleteThread(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
