package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lattis-io/lattis/pkg/models"
)

// TrackInteraction handles POST /api/v1/interactions.
func (h *Handlers) TrackInteraction(c *gin.Context) {
	var req models.TrackInteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	interaction, err := h.services.Interactions.TrackInteraction(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, interaction)
}
