package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/topicforge/topicforge/pkg/models"
	"github.com/topicforge/topicforge/pkg/services"
)

// submitTopicsHandler handles POST /api/v1/topics. Accepts a list of
// titles, submits each through the intake service, and reports per-title
// outcomes. Items that are already queued, processing, or completed are
// reported as skipped.
func (s *Server) submitTopicsHandler(c *gin.Context) {
	var req SubmitTopicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Titles) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "titles must not be empty"})
		return
	}

	resp := SubmitTopicsResponse{
		Queued:  []int64{},
		Skipped: []int64{},
		Retried: []int64{},
	}
	for _, title := range req.Titles {
		result, err := s.intake.Submit(c.Request.Context(), title)
		if err != nil {
			abortWithServiceError(c, err)
			return
		}
		switch result.Status {
		case services.StatusQueued:
			resp.Queued = append(resp.Queued, result.ID)
		case services.StatusRetried:
			resp.Retried = append(resp.Retried, result.ID)
		default:
			resp.Skipped = append(resp.Skipped, result.ID)
		}
	}
	c.JSON(http.StatusAccepted, resp)
}

// listTopicsHandler handles GET /api/v1/topics with optional state filter
// and pagination.
func (s *Server) listTopicsHandler(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	items, total, err := s.intake.List(c.Request.Context(), c.Query("state"), page, pageSize)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	if items == nil {
		items = []models.QueueItem{}
	}
	c.JSON(http.StatusOK, ListTopicsResponse{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// getTopicHandler handles GET /api/v1/topics/:id.
func (s *Server) getTopicHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	item, topic, err := s.intake.Get(c.Request.Context(), id)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, TopicDetailResponse{Item: item, Topic: topic})
}

// retryTopicHandler handles POST /api/v1/topics/:id/retry: failed -> pending.
func (s *Server) retryTopicHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := s.intake.Retry(c.Request.Context(), id); err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, RetryResponse{ID: id, Status: "pending"})
}

// generateHandler handles POST /api/v1/topics/:id/generate.
func (s *Server) generateHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.generator.Generate(c.Request.Context(), id, req.Platform, req.Format)
	if err != nil {
		abortWithServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
