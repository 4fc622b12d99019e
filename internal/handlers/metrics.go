package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultMetricsWindow = 24 * time.Hour

// RecommendationMetrics handles GET /api/v1/metrics/recommendations.
// The optional window query parameter takes a Go duration string.
func (h *Handlers) RecommendationMetrics(c *gin.Context) {
	window := defaultMetricsWindow
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			badRequest(c, "window must be a positive duration such as 24h")
			return
		}
		window = parsed
	}

	ctx := c.Request.Context()

	ctr, err := h.services.Feedback.CTRByStrategy(ctx, window)
	if err != nil {
		h.writeError(c, err)
		return
	}

	gini, err := h.services.Feedback.ExposureGini(ctx, window)
	if err != nil {
		h.writeError(c, err)
		return
	}

	noveltyRatio, err := h.services.Feedback.NoveltyRatio(ctx, window)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"window":          window.String(),
		"ctr_by_strategy": ctr,
		"exposure_gini":   gini,
		"novelty_ratio":   noveltyRatio,
		"generated_at":    time.Now().UTC(),
	})
}
