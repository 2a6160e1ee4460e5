package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prasenjit/mockforge/internal/catalog"
	"github.com/prasenjit/mockforge/internal/chat"
	"github.com/prasenjit/mockforge/internal/importer"
	"github.com/prasenjit/mockforge/internal/models"
	"github.com/prasenjit/mockforge/internal/stats"
	"go.uber.org/zap"
)

// Handler handles API requests
type Handler struct {
	catalog  *catalog.Catalog
	chats    *chat.Service
	ledger   *stats.Ledger
	importer *importer.Importer
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(cat *catalog.Catalog, chats *chat.Service, ledger *stats.Ledger, imp *importer.Importer, logger *zap.Logger) *Handler {
	return &Handler{
		catalog:  cat,
		chats:    chats,
		ledger:   ledger,
		importer: imp,
		logger:   logger.Named("api"),
	}
}

// HealthCheck returns health status
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

// GetStats returns the usage ledger view
func (h *Handler) GetStats(c *gin.Context) {
	s, err := h.ledger.Get(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ResetStats clears the recent requests and hourly buckets. Per-mock hit
// counts and the lifetime total live in the store and are kept.
func (h *Handler) ResetStats(c *gin.Context) {
	h.ledger.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Statistics reset successfully"})
}

// writeError maps domain errors to HTTP statuses
func (h *Handler) writeError(c *gin.Context, err error) {
	var (
		ve *models.ValidationError
		nf *models.NotFoundError
		ue *models.UpstreamError
	)

	switch {
	case errors.As(err, &ve):
		body := gin.H{"error": ve.Error()}
		if ve.Field != "" {
			body["field"] = ve.Field
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
	case errors.Is(err, models.ErrNoMatch):
		c.JSON(http.StatusNotFound, gin.H{"error": "No mock matched"})
	case errors.Is(err, models.ErrAssistantDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &ue):
		status := http.StatusServiceUnavailable
		if strings.HasPrefix(ue.Op, "assistant") {
			status = http.StatusBadGateway
		}
		h.logger.Error("upstream failure", zap.String("op", ue.Op), zap.Error(ue.Err))
		c.JSON(status, gin.H{"error": err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled"})
	default:
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// bindError reports a request body that could not be decoded
func (h *Handler) bindError(c *gin.Context, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
}
