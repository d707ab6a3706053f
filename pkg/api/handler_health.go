package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	storeHealth, err := s.store.Health(ctx)
	resp := HealthResponse{
		Status: "healthy",
		Store:  storeHealth,
	}
	if s.workerPool != nil {
		resp.WorkerPool = s.workerPool.Health(ctx)
	}

	if err != nil {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
