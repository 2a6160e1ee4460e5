package models

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// MessageBody is the decoded, role-discriminated form of a ChatMessage.
// Implementations are UserText, SystemText and AssistantReply.
type MessageBody interface {
	Role() string
}

// UserText is a plain user message
type UserText struct {
	Text string
}

// Role implements MessageBody
func (UserText) Role() string { return RoleUser }

// SystemText is a plain system message
type SystemText struct {
	Text string
}

// Role implements MessageBody
func (SystemText) Role() string { return RoleSystem }

// AssistantReply wraps the decoded assistant payload
type AssistantReply struct {
	Payload AssistantPayload
}

// Role implements MessageBody
func (AssistantReply) Role() string { return RoleAssistant }

// AssistantPayload is one of SuggestionPayload, AdvicePayload or RawPayload
type AssistantPayload interface {
	assistantPayload()
}

// SuggestionPayload carries a candidate mock, optionally with commentary
type SuggestionPayload struct {
	Suggestion MockSuggestion
	Rationale  string
	Questions  []string
}

// AdvicePayload carries commentary without a candidate mock
type AdvicePayload struct {
	Rationale string
	Questions []string
}

// RawPayload is assistant content that could not be decoded
type RawPayload struct {
	Text string
}

func (SuggestionPayload) assistantPayload() {}
func (AdvicePayload) assistantPayload()     {}
func (RawPayload) assistantPayload()        {}

// assistantEnvelope is the JSON object the assistant is asked to produce
type assistantEnvelope struct {
	Suggestion *MockSuggestion `json:"suggestion,omitempty"`
	Rationale  string          `json:"rationale,omitempty"`
	Questions  []string        `json:"questions,omitempty"`
	Raw        string          `json:"raw,omitempty"`
}

// Body decodes the message content according to its role. For assistant
// messages that cannot be decoded the body is a RawPayload and the error is
// an *AssistantDecodeError; the body is always usable.
func (m *ChatMessage) Body() (MessageBody, error) {
	switch m.Role {
	case RoleAssistant:
		payload, err := DecodeAssistantContent(m.Content)
		return AssistantReply{Payload: payload}, err
	case RoleSystem:
		return SystemText{Text: m.Content}, nil
	default:
		return UserText{Text: m.Content}, nil
	}
}

// DecodeAssistantContent parses assistant output. Markdown code fences are
// tolerated. Anything that is not a recognized JSON object falls back to raw text.
func DecodeAssistantContent(content string) (AssistantPayload, error) {
	text := stripCodeFences(content)
	if !gjson.Valid(text) || !gjson.Parse(text).IsObject() {
		return RawPayload{Text: content}, &AssistantDecodeError{Err: errors.New("not a JSON object")}
	}

	var env assistantEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return RawPayload{Text: content}, &AssistantDecodeError{Err: err}
	}

	switch {
	case env.Suggestion != nil:
		return SuggestionPayload{Suggestion: *env.Suggestion, Rationale: env.Rationale, Questions: env.Questions}, nil
	case env.Rationale != "" || len(env.Questions) > 0:
		return AdvicePayload{Rationale: env.Rationale, Questions: env.Questions}, nil
	case env.Raw != "":
		return RawPayload{Text: env.Raw}, nil
	default:
		return RawPayload{Text: content}, &AssistantDecodeError{Err: errors.New("no suggestion, rationale or questions")}
	}
}

// EncodeAssistantPayload renders a payload into storable message content
func EncodeAssistantPayload(p AssistantPayload) (string, error) {
	var env assistantEnvelope
	switch v := p.(type) {
	case SuggestionPayload:
		s := v.Suggestion
		env = assistantEnvelope{Suggestion: &s, Rationale: v.Rationale, Questions: v.Questions}
	case AdvicePayload:
		env = assistantEnvelope{Rationale: v.Rationale, Questions: v.Questions}
	case RawPayload:
		return v.Text, nil
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	} else {
		return s
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// MessageView is the flattened API shape of a ChatMessage
type MessageView struct {
	ChatMessage
	Suggestion *MockSuggestion `json:"suggestion,omitempty"`
	Rationale  string          `json:"rationale,omitempty"`
	Questions  []string        `json:"questions,omitempty"`
	Raw        string          `json:"raw,omitempty"`
}

// NewMessageView flattens a message and its decoded body
func NewMessageView(m *ChatMessage, body MessageBody) *MessageView {
	v := &MessageView{ChatMessage: *m}
	reply, ok := body.(AssistantReply)
	if !ok {
		return v
	}
	switch p := reply.Payload.(type) {
	case SuggestionPayload:
		s := p.Suggestion
		v.Suggestion = &s
		v.Rationale = p.Rationale
		v.Questions = p.Questions
	case AdvicePayload:
		v.Rationale = p.Rationale
		v.Questions = p.Questions
	case RawPayload:
		v.Raw = p.Text
	}
	return v
}
