// Package chat runs assistant conversations and turns their suggestions
// into catalog entries.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/prasenjit/mockforge/internal/assistant"
	"github.com/prasenjit/mockforge/internal/catalog"
	"github.com/prasenjit/mockforge/internal/metrics"
	"github.com/prasenjit/mockforge/internal/models"
	"github.com/prasenjit/mockforge/internal/storage"
	"go.uber.org/zap"
)

const maxTitleRunes = 60

// Service manages chat sessions
type Service struct {
	store     storage.Storage
	catalog   *catalog.Catalog
	assistant assistant.Assistant
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a chat service. a may be nil, in which case Send
// fails with ErrAssistantDisabled while the rest keeps working.
func NewService(store storage.Storage, cat *catalog.Catalog, a assistant.Assistant, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		catalog:   cat,
		assistant: a,
		metrics:   m,
		logger:    logger.Named("chat"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns all sessions, most recently active first
func (s *Service) List(ctx context.Context) ([]*models.ChatSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.store.ListChats()
}

// Get returns a session with its decoded messages
func (s *Service) Get(ctx context.Context, id string) (*models.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session, err := s.store.GetChat(id)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(id)
	if err != nil {
		return nil, err
	}

	views := make([]*models.MessageView, 0, len(messages))
	for _, m := range messages {
		body, err := m.Body()
		if err != nil {
			s.logger.Debug("assistant message kept as raw text",
				zap.String("chat", id),
				zap.String("message", m.ID),
				zap.Error(err))
		}
		views = append(views, models.NewMessageView(m, body))
	}

	return &models.Transcript{Chat: session, Messages: views}, nil
}

// Send appends a user message, asks the assistant for a reply and returns
// the updated transcript. An empty chatID starts a new session titled after
// the message.
func (s *Service) Send(ctx context.Context, chatID, message string) (*models.Transcript, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, models.NewValidationError("message", "is required")
	}
	if s.assistant == nil {
		return nil, models.ErrAssistantDisabled
	}

	session, err := s.session(chatID, message)
	if err != nil {
		return nil, err
	}

	if _, err := s.store.AppendMessage(&models.ChatMessage{
		ID:        uuid.New().String(),
		ChatID:    session.ID,
		Role:      models.RoleUser,
		Content:   message,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	history, err := s.store.GetMessages(session.ID)
	if err != nil {
		return nil, err
	}

	content, err := s.assistant.Reply(ctx, history)
	if err != nil {
		s.metrics.ObserveAssistant("error")
		s.logger.Error("assistant reply failed", zap.String("chat", session.ID), zap.Error(err))
		var ue *models.UpstreamError
		if errors.As(err, &ue) {
			return nil, err
		}
		return nil, &models.UpstreamError{Op: "assistant", Err: err}
	}

	payload, decodeErr := models.DecodeAssistantContent(content)
	if decodeErr != nil {
		s.logger.Debug("assistant reply is not structured", zap.String("chat", session.ID), zap.Error(decodeErr))
	}
	s.metrics.ObserveAssistant(outcome(payload))

	if _, err := s.store.AppendMessage(&models.ChatMessage{
		ID:        uuid.New().String(),
		ChatID:    session.ID,
		Role:      models.RoleAssistant,
		Content:   content,
		CreatedAt: s.now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to store reply: %w", err)
	}

	return s.Get(ctx, session.ID)
}

// session loads an existing session or starts a new one
func (s *Service) session(chatID, firstMessage string) (*models.ChatSession, error) {
	if chatID != "" {
		return s.store.GetChat(chatID)
	}

	now := s.now()
	title := Title(firstMessage)
	session := &models.ChatSession{
		ID:        uuid.New().String(),
		Title:     &title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateChat(session); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	s.logger.Info("chat started", zap.String("chat", session.ID))
	return session, nil
}

// Delete removes a session and its messages. Unless preserveMocks is set,
// mocks applied from the session are deleted too; preserved mocks keep
// their createdByChatId.
func (s *Service) Delete(ctx context.Context, id string, preserveMocks bool) error {
	if _, err := s.store.GetChat(id); err != nil {
		return err
	}

	removed := 0
	if !preserveMocks {
		mocks, err := s.catalog.All(ctx)
		if err != nil {
			return err
		}
		var ids []string
		for _, m := range mocks {
			if m.CreatedByChatID != nil && *m.CreatedByChatID == id {
				ids = append(ids, m.ID)
			}
		}
		if removed, err = s.catalog.DeleteMany(ctx, ids); err != nil {
			return err
		}
	}

	if err := s.store.DeleteChat(id); err != nil {
		return err
	}

	s.logger.Info("chat deleted",
		zap.String("chat", id),
		zap.Bool("preserveMocks", preserveMocks),
		zap.Int("mocksDeleted", removed))
	return nil
}

// Title derives a session title from its first message
func Title(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	return strings.TrimSpace(string([]rune(title)[:maxTitleRunes]))
}

func outcome(p models.AssistantPayload) string {
	switch p.(type) {
	case models.SuggestionPayload:
		return "suggestion"
	case models.AdvicePayload:
		return "advice"
	default:
		return "raw"
	}
}
