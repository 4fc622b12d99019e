package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/lattis-io/lattis/internal/database"
	"github.com/lattis-io/lattis/internal/services"
	"github.com/lattis-io/lattis/internal/validation"
)

// Handlers carries the wired services behind the HTTP surface.
type Handlers struct {
	services *services.Services
	db       *database.Database
	validate *validator.Validate
	logger   *logrus.Logger
}

func New(svc *services.Services, db *database.Database, logger *logrus.Logger) *Handlers {
	return &Handlers{
		services: svc,
		db:       db,
		validate: validator.New(),
		logger:   logger,
	}
}

// writeError maps service errors onto the response envelope. Validation
// failures are the caller's fault; an unavailable model is a temporary
// service condition.
func (h *Handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidInteractionType),
		errors.Is(err, services.ErrInvalidPreferenceRange),
		errors.Is(err, services.ErrInvalidInputList),
		errors.Is(err, services.ErrInvalidHybridWeights),
		errors.Is(err, validation.ErrInvalidContext):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": err.Error(),
			},
		})
	case errors.Is(err, services.ErrModelUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{
				"code":    "MODEL_UNAVAILABLE",
				"message": err.Error(),
			},
		})
	default:
		h.logger.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Internal server error",
			},
		})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    "INVALID_REQUEST",
			"message": message,
		},
	})
}
