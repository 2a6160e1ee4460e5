package chat

import (
	"context"
	"strings"

	"github.com/prasenjit/mockforge/internal/models"
	"go.uber.org/zap"
)

const defaultMockName = "Generated mock"

// Apply creates a mock from the suggestion carried by one assistant message
// and links the message to it. Applying the same message twice creates two
// mocks.
func (s *Service) Apply(ctx context.Context, chatID, messageID string) (*models.MockDefinition, error) {
	msg, err := s.store.GetMessage(chatID, messageID)
	if err != nil {
		return nil, err
	}

	body, err := msg.Body()
	if err != nil {
		s.logger.Debug("apply on undecodable message", zap.String("message", messageID), zap.Error(err))
	}
	reply, ok := body.(models.AssistantReply)
	if !ok {
		return nil, models.NewValidationError("messageId", "no suggestion on this message")
	}
	suggestion, ok := reply.Payload.(models.SuggestionPayload)
	if !ok {
		return nil, models.NewValidationError("messageId", "no suggestion on this message")
	}

	in, err := SuggestionInput(suggestion.Suggestion)
	if err != nil {
		return nil, err
	}
	in.CreatedByChatID = &chatID

	def, err := s.catalog.Create(ctx, in)
	if err != nil {
		return nil, err
	}

	// The mock is live once created; a failed link only loses the back-reference.
	if err := s.store.SetGeneratedMock(chatID, messageID, def.ID); err != nil {
		s.logger.Warn("failed to link message to mock",
			zap.String("chat", chatID),
			zap.String("message", messageID),
			zap.String("mock", def.ID),
			zap.Error(err))
	}

	s.metrics.ObserveApply()
	s.logger.Info("suggestion applied",
		zap.String("chat", chatID),
		zap.String("message", messageID),
		zap.String("mock", def.ID))
	return def, nil
}

// SuggestionInput fills the defaults of a suggestion. The path has no
// sensible default and must be present.
func SuggestionInput(sg models.MockSuggestion) (*models.MockInput, error) {
	if sg.Path == nil || strings.TrimSpace(*sg.Path) == "" {
		return nil, models.NewValidationError("path", "suggestion has no path")
	}

	in := &models.MockInput{
		Name:            defaultMockName,
		Method:          models.MethodGet,
		Path:            *sg.Path,
		ResponseStatus:  200,
		ResponseBody:    models.CloneValue(sg.ResponseBody),
		ResponseHeaders: sg.ResponseHeaders,
		MatchConditions: sg.MatchConditions.Clone(),
	}
	if sg.Name != nil && strings.TrimSpace(*sg.Name) != "" {
		in.Name = *sg.Name
	}
	if sg.Method != nil && *sg.Method != "" {
		in.Method = *sg.Method
	}
	if sg.ResponseStatus != nil {
		in.ResponseStatus = *sg.ResponseStatus
	}
	if sg.Delay != nil {
		in.Delay = *sg.Delay
	}
	return in, nil
}
