package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// processingStatusHandler handles GET /api/v1/processing-status. Counts are
// derived from the store per request; there is no parallel in-memory
// bookkeeping to drift.
func (s *Server) processingStatusHandler(c *gin.Context) {
	status, err := s.intake.Status(c.Request.Context())
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
