package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prasenjit/mockforge/internal/models"
)

type sendRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
}

type applyRequest struct {
	MessageID string `json:"messageId"`
}

// ListChats returns chat summaries
func (h *Handler) ListChats(c *gin.Context) {
	chats, err := h.chats.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": chats})
}

// GetChat returns a chat with its messages
func (h *Handler) GetChat(c *gin.Context) {
	tr, err := h.chats.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

// SendMessage sends a message to the assistant
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	tr, err := h.chats.Send(c.Request.Context(), req.ChatID, req.Message)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tr)
}

// DeleteChat deletes a chat. Applied mocks are kept unless preserveMocks=false.
func (h *Handler) DeleteChat(c *gin.Context) {
	preserve := true
	if raw := c.Query("preserveMocks"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(c, models.NewValidationError("preserveMocks", "must be true or false"))
			return
		}
		preserve = v
	}

	if err := h.chats.Delete(c.Request.Context(), c.Param("id"), preserve); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ApplySuggestion turns an assistant suggestion into a mock
func (h *Handler) ApplySuggestion(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}
	if req.MessageID == "" {
		h.writeError(c, models.NewValidationError("messageId", "is required"))
		return
	}

	def, err := h.chats.Apply(c.Request.Context(), c.Param("id"), req.MessageID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, def)
}
