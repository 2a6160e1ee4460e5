package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Supported mock methods
const (
	MethodGet     = "GET"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodDelete  = "DELETE"
	MethodOptions = "OPTIONS"
)

// Provenance values derived from CreatedByChatID
const (
	ProvenanceManual    = "manual"
	ProvenanceAssistant = "assistant"
)

// MockDefinition represents a stored endpoint rule
type MockDefinition struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Method          string            `json:"method"`
	Path            string            `json:"path"` // Segments prefixed with ':' capture, a trailing '*' is an open suffix
	ResponseStatus  int               `json:"responseStatus"`
	ResponseBody    any               `json:"responseBody"`             // May contain {{...}} tokens in string leaves
	ResponseHeaders map[string]string `json:"responseHeaders,omitzero"` // nil means absent
	Delay           int               `json:"delay"`                    // Milliseconds
	MatchConditions *MatchConditions  `json:"matchConditions,omitempty"`
	HitCount        int64             `json:"hitCount"`
	LastAccessed    *time.Time        `json:"lastAccessed"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	CreatedByChatID *string           `json:"createdByChatId"`
}

// Provenance reports whether the mock was authored manually or by the assistant
func (m *MockDefinition) Provenance() string {
	if m.CreatedByChatID != nil {
		return ProvenanceAssistant
	}
	return ProvenanceManual
}

// HasConditions reports whether the mock carries a non-empty predicate
func (m *MockDefinition) HasConditions() bool {
	return m.MatchConditions != nil && !m.MatchConditions.IsEmpty()
}

// Clone returns a deep copy of the definition
func (m *MockDefinition) Clone() *MockDefinition {
	c := *m
	c.ResponseBody = CloneValue(m.ResponseBody)
	if m.ResponseHeaders != nil {
		c.ResponseHeaders = make(map[string]string, len(m.ResponseHeaders))
		for k, v := range m.ResponseHeaders {
			c.ResponseHeaders[k] = v
		}
	}
	c.MatchConditions = m.MatchConditions.Clone()
	if m.LastAccessed != nil {
		t := *m.LastAccessed
		c.LastAccessed = &t
	}
	if m.CreatedByChatID != nil {
		id := *m.CreatedByChatID
		c.CreatedByChatID = &id
	}
	return &c
}

// MatchConditions holds the optional predicates narrowing which requests a mock answers
type MatchConditions struct {
	BodyContains   map[string]any    `json:"bodyContains,omitempty"`
	QueryContains  map[string]string `json:"queryContains,omitempty"`
	HeadersContain map[string]string `json:"headersContain,omitempty"`
	PathPattern    string            `json:"pathPattern,omitempty"`
}

// UnmarshalJSON rejects anything but a plain object
func (mc *MatchConditions) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &ValidationError{Field: "matchConditions", Message: "must be a key/value object"}
	}
	type plain MatchConditions
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return &ValidationError{Field: "matchConditions", Message: err.Error()}
	}
	*mc = MatchConditions(p)
	return nil
}

// IsEmpty reports whether no sub-predicate is set
func (mc *MatchConditions) IsEmpty() bool {
	if mc == nil {
		return true
	}
	return len(mc.BodyContains) == 0 &&
		len(mc.QueryContains) == 0 &&
		len(mc.HeadersContain) == 0 &&
		mc.PathPattern == ""
}

// Normalize returns nil for an empty predicate, otherwise the receiver
func (mc *MatchConditions) Normalize() *MatchConditions {
	if mc.IsEmpty() {
		return nil
	}
	return mc
}

// Clone returns a deep copy
func (mc *MatchConditions) Clone() *MatchConditions {
	if mc == nil {
		return nil
	}
	c := &MatchConditions{PathPattern: mc.PathPattern}
	if mc.BodyContains != nil {
		c.BodyContains = make(map[string]any, len(mc.BodyContains))
		for k, v := range mc.BodyContains {
			c.BodyContains[k] = CloneValue(v)
		}
	}
	if mc.QueryContains != nil {
		c.QueryContains = make(map[string]string, len(mc.QueryContains))
		for k, v := range mc.QueryContains {
			c.QueryContains[k] = v
		}
	}
	if mc.HeadersContain != nil {
		c.HeadersContain = make(map[string]string, len(mc.HeadersContain))
		for k, v := range mc.HeadersContain {
			c.HeadersContain[k] = v
		}
	}
	return c
}

// MockInput represents input for creating a mock
type MockInput struct {
	Name            string            `json:"name"`
	Method          string            `json:"method" validate:"required,oneof=GET POST PUT PATCH DELETE OPTIONS"`
	Path            string            `json:"path" validate:"required"`
	ResponseStatus  int               `json:"responseStatus" validate:"min=100,max=599"`
	ResponseBody    any               `json:"responseBody"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitzero"`
	Delay           int               `json:"delay" validate:"min=0"`
	MatchConditions *MatchConditions  `json:"matchConditions,omitempty"`
	CreatedByChatID *string           `json:"createdByChatId,omitempty"`
}

// MockUpdate represents a partial update. Pointer fields left nil are kept,
// nullable fields carry an explicit Keep/Clear/SetTo instruction.
type MockUpdate struct {
	Name            *string                  `json:"name,omitempty"`
	Method          *string                  `json:"method,omitempty"`
	Path            *string                  `json:"path,omitempty"`
	ResponseStatus  *int                     `json:"responseStatus,omitempty"`
	ResponseBody    *json.RawMessage         `json:"responseBody,omitempty"`
	Delay           *int                     `json:"delay,omitempty"`
	ResponseHeaders Patch[map[string]string] `json:"responseHeaders,omitzero"`
	MatchConditions Patch[*MatchConditions]  `json:"matchConditions,omitzero"`
}

// CloneValue deep-copies a decoded JSON value
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return val
	}
}
