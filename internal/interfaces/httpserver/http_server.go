package httpserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"openchat/internal/config"
	"openchat/internal/interfaces/httpserver/handlers/chathandler"
	"openchat/internal/interfaces/httpserver/handlers/mediahandler"
	"openchat/internal/interfaces/httpserver/handlers/threadhandler"
	middleware "openchat/internal/interfaces/httpserver/middlewares"
)

type HTTPServer struct {
	engine        *gin.Engine
	config        *config.Config
	chatHandler   *chathandler.ChatHandler
	memoryHandler *chathandler.MemoryHandler
	threadHandler *threadhandler.ThreadHandler
	mediaHandler  *mediahandler.MediaHandler
}

func NewHTTPServer(
	cfg *config.Config,
	log zerolog.Logger,
	chatHandler *chathandler.ChatHandler,
	memoryHandler *chathandler.MemoryHandler,
	threadHandler *threadhandler.ThreadHandler,
	mediaHandler *mediahandler.MediaHandler,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)
	server := &HTTPServer{
		engine:        gin.New(),
		config:        cfg,
		chatHandler:   chatHandler,
		memoryHandler: memoryHandler,
		threadHandler: threadHandler,
		mediaHandler:  mediaHandler,
	}
	server.engine.Use(middleware.RequestID())
	server.engine.Use(middleware.LoggingMiddleware(log))
	server.engine.Use(middleware.MetricsMiddleware())
	server.engine.Use(middleware.CORSMiddleware())

	server.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	server.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server.registerRoutes()
	return server
}

func (s *HTTPServer) registerRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/chat", s.chatHandler.Submit)
	v1.POST("/chat/code", s.chatHandler.SubmitCode)
	v1.POST("/chat/regenerate", s.chatHandler.Regenerate)
	v1.POST("/chat/edit", s.chatHandler.Edit)
	v1.POST("/title", s.chatHandler.GenerateTitle)
	v1.POST("/memory", s.memoryHandler.Handle)

	v1.GET("/threads", s.threadHandler.List)
	v1.POST("/threads", s.threadHandler.Create)
	v1.GET("/threads/:id", s.threadHandler.Get)
	v1.PUT("/threads/:id", s.threadHandler.UpdateTitle)
	v1.DELETE("/threads/:id", s.threadHandler.Delete)
	v1.POST("/threads/:id/activate", s.threadHandler.Activate)

	v1.POST("/transcribe", s.mediaHandler.Transcribe)
	v1.POST("/process-file", s.mediaHandler.ProcessFile)
}

func (s *HTTPServer) Run() error {
	return s.engine.Run(fmt.Sprintf(":%d", s.config.HTTPPort))
}

// Engine exposes the router for tests.
func (s *HTTPServer) Engine() *gin.Engine {
	return s.engine
}
