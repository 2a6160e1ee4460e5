package models

import (
	"time"
)

// Chat roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatSession represents a conversation with the assistant
type ChatSession struct {
	ID           string    `json:"id"`
	Title        *string   `json:"title"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ChatMessage represents one message of a session. Content is the raw
// stored text; Body decodes it into a role-specific variant.
type ChatMessage struct {
	ID              string    `json:"id"`
	ChatID          string    `json:"chatId"`
	Role            string    `json:"role"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"createdAt"`
	GeneratedMockID *string   `json:"generatedMockId"`
}

// Transcript is a session with its ordered messages
type Transcript struct {
	Chat     *ChatSession   `json:"chat"`
	Messages []*MessageView `json:"messages"`
}

// MockSuggestion is an assistant-proposed, not yet persisted mock
type MockSuggestion struct {
	Name            *string           `json:"name,omitempty"`
	Method          *string           `json:"method,omitempty"`
	Path            *string           `json:"path,omitempty"`
	ResponseStatus  *int              `json:"responseStatus,omitempty"`
	ResponseBody    any               `json:"responseBody,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitzero"`
	Delay           *int              `json:"delay,omitempty"`
	MatchConditions *MatchConditions  `json:"matchConditions,omitempty"`
}
