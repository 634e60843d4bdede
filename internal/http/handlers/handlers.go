package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bankline/complaints/internal/db"
	"github.com/bankline/complaints/internal/http/middleware"
	"github.com/bankline/complaints/internal/models"
	"github.com/bankline/complaints/internal/service"
	"github.com/bankline/complaints/internal/storage"
)

type Handler struct {
	Store          db.Database
	Lifecycle      *service.Lifecycle
	Assigner       *service.Assigner
	Storage        storage.Presigner
	Validator      *validator.Validate
	Logger         zerolog.Logger
	MaxUploadBytes int64
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Complaint categories
// @Tags complaints
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/categories [get]
func (h *Handler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": models.Categories, "sentiments": models.Sentiments})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeServiceError maps a service error kind onto the HTTP envelope.
func (h *Handler) writeServiceError(c *gin.Context, message string, err error) {
	var (
		status int
		code   string
	)
	switch service.KindOf(err) {
	case service.KindNotFound:
		status, code = http.StatusNotFound, "NOT_FOUND"
	case service.KindInvalidTransition:
		status, code = http.StatusConflict, "INVALID_TRANSITION"
	case service.KindConflict:
		status, code = http.StatusConflict, "CONFLICT"
	case service.KindReadinessNotMet:
		status, code = http.StatusConflict, "READINESS_NOT_MET"
	case service.KindValidation:
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case service.KindNoAvailableEmployee:
		status, code = http.StatusUnprocessableEntity, "NO_AVAILABLE_EMPLOYEE"
	case service.KindClassifierUnavailable:
		status, code = http.StatusServiceUnavailable, "CLASSIFIER_UNAVAILABLE"
	default:
		status, code = http.StatusInternalServerError, "DB_ERROR"
	}
	if status >= 500 {
		h.Logger.Error().Err(err).Str("request_id", c.GetString(middleware.RequestIDHeader)).Msg(message)
	}
	_ = c.Error(err)
	writeError(c, status, code, message, err.Error())
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

func principal(c *gin.Context) models.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}

// loadVisible fetches the complaint at :id and hides other customers'
// complaints behind a 404.
func (h *Handler) loadVisible(c *gin.Context) (models.Complaint, bool) {
	complaint, err := h.Lifecycle.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeServiceError(c, "Complaint not found", err)
		return models.Complaint{}, false
	}
	p := principal(c)
	if p.Type == models.PrincipalCustomer && complaint.CustomerID != p.ID {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Complaint not found", nil)
		return models.Complaint{}, false
	}
	return complaint, true
}
