package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lattis-io/lattis/pkg/models"
)

// GetRecommendations handles GET /api/v1/recommendations/:userId.
// Query parameters: limit (default 20, capped at 100), strategy, diversity,
// min_quality.
func (h *Handlers) GetRecommendations(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		badRequest(c, "userId must be a valid UUID")
		return
	}

	req := &models.RecommendationRequest{
		UserID:   userID,
		Strategy: c.Query("strategy"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		req.Limit = limit
	}

	if raw := c.Query("diversity"); raw != "" {
		diversity, err := strconv.ParseFloat(raw, 64)
		if err != nil || diversity < 0 || diversity > 1 {
			badRequest(c, "diversity must be a number in [0,1]")
			return
		}
		req.Diversity = &diversity
	}

	if raw := c.Query("min_quality"); raw != "" {
		minQuality, err := strconv.ParseFloat(raw, 64)
		if err != nil || minQuality < 0 || minQuality > 1 {
			badRequest(c, "min_quality must be a number in [0,1]")
			return
		}
		req.MinQuality = &minQuality
	}

	if err := h.validate.Struct(req); err != nil {
		badRequest(c, err.Error())
		return
	}

	response, err := h.services.Recommender.GetRecommendations(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// SubmitFeedback handles POST /api/v1/recommendations/feedback.
func (h *Handlers) SubmitFeedback(c *gin.Context) {
	var req models.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if req.WasClicked == nil && req.WasUseful == nil && req.Notes == nil {
		badRequest(c, "at least one of was_clicked, was_useful or notes is required")
		return
	}

	if err := h.services.Feedback.SubmitFeedback(c.Request.Context(), &req); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}
