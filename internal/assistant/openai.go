package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/prasenjit/mockforge/internal/config"
	"github.com/prasenjit/mockforge/internal/models"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OpenAI is an Assistant backed by the OpenAI chat completion API or any
// compatible endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewOpenAI creates an OpenAI assistant
func NewOpenAI(cfg config.AssistantConfig, logger *zap.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("assistant.apiKey is required for the openai provider")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
		burst = cfg.RequestsPerMinute
	}

	logger = logger.Named("assistant")
	logger.Info("initializing openai assistant", zap.String("model", model))

	return &OpenAI{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		limiter:     rate.NewLimiter(limit, burst),
		logger:      logger,
	}, nil
}

// Reply implements Assistant
func (o *OpenAI) Reply(ctx context.Context, history []*models.ChatMessage) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", &models.UpstreamError{Op: "assistant rate limit", Err: err}
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    BuildMessages(history),
		Temperature: o.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	o.logger.Debug("requesting completion", zap.String("model", o.model), zap.Int("messages", len(req.Messages)))

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		o.logger.Error("openai call failed", zap.Error(err))
		return "", &models.UpstreamError{Op: "assistant", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &models.UpstreamError{Op: "assistant", Err: errors.New("no choices returned")}
	}

	o.logger.Debug("received completion",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return resp.Choices[0].Message.Content, nil
}

// BuildMessages converts a transcript into chat completion messages,
// led by the system prompt.
func BuildMessages(history []*models.ChatMessage) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: SystemPrompt,
	})

	for _, m := range history {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case models.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case models.RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return msgs
}
