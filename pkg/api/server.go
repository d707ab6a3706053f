// Package api provides the HTTP surface over the intake, status, and
// generator services.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/topicforge/topicforge/pkg/queue"
	"github.com/topicforge/topicforge/pkg/services"
	"github.com/topicforge/topicforge/pkg/store"
)

// Server is the HTTP API server.
type Server struct {
	store      *store.Store
	intake     *services.IntakeService
	generator  *services.GeneratorService
	workerPool *queue.WorkerPool
	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer wires the gin engine, middleware, and routes.
func NewServer(st *store.Store, intake *services.IntakeService, generator *services.GeneratorService, pool *queue.WorkerPool) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(), securityHeaders())

	s := &Server{
		store:      st,
		intake:     intake,
		generator:  generator,
		workerPool: pool,
		engine:     engine,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/topics", s.submitTopicsHandler)
	v1.GET("/topics", s.listTopicsHandler)
	v1.GET("/topics/:id", s.getTopicHandler)
	v1.POST("/topics/:id/retry", s.retryTopicHandler)
	v1.POST("/topics/:id/generate", s.generateHandler)
	v1.GET("/processing-status", s.processingStatusHandler)
}

// Handler exposes the engine for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving on addr. Blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
