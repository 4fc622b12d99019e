package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// TrainModel handles POST /api/v1/model/train. Training runs in the
// background; the served model swaps atomically when it finishes.
func (h *Handlers) TrainModel(c *gin.Context) {
	go func() {
		if err := h.services.Collab.Train(context.Background()); err != nil {
			h.logger.WithError(err).Error("Collaborative model training failed")
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "training started"})
}

// ReloadModel handles POST /api/v1/model/reload, swapping in the model
// snapshot currently on disk.
func (h *Handlers) ReloadModel(c *gin.Context) {
	if err := h.services.Collab.Reload(); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "model reloaded"})
}
