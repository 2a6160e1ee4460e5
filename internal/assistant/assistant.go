// Package assistant produces candidate mock definitions from a chat
// transcript. It never writes to the catalog; suggestions are applied
// explicitly through the chat service.
package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/prasenjit/mockforge/internal/config"
	"github.com/prasenjit/mockforge/internal/models"
	"go.uber.org/zap"
)

// Assistant answers a transcript with the raw content of the next assistant
// message. The content is expected to follow the JSON envelope described in
// SystemPrompt but callers must tolerate plain text.
type Assistant interface {
	Reply(ctx context.Context, history []*models.ChatMessage) (string, error)
}

// Func adapts a function to the Assistant interface
type Func func(ctx context.Context, history []*models.ChatMessage) (string, error)

// Reply calls f
func (f Func) Reply(ctx context.Context, history []*models.ChatMessage) (string, error) {
	return f(ctx, history)
}

// New builds the configured assistant. It returns nil without error when
// the provider is "none".
func New(cfg config.AssistantConfig, logger *zap.Logger) (Assistant, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", config.AssistantNone:
		return nil, nil
	case config.AssistantOpenAI:
		return NewOpenAI(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown assistant provider: %s", cfg.Provider)
	}
}
