package condition

import (
	"testing"

	"github.com/prasenjit/mockforge/internal/models"
)

func TestNewEvaluator(t *testing.T) {
	e := NewEvaluator()
	if e == nil {
		t.Fatal("NewEvaluator returned nil")
	}
}

func TestEvaluateAll_Empty(t *testing.T) {
	e := NewEvaluator()
	data := &RequestData{Path: "/users"}

	if !e.EvaluateAll(nil, data) {
		t.Error("Expected nil conditions to match")
	}
	if !e.EvaluateAll(&models.MatchConditions{}, data) {
		t.Error("Expected empty conditions to match")
	}
}

func TestEvaluateAll_BodyContains(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name     string
		expected map[string]any
		body     string
		want     bool
	}{
		{
			name:     "exact object",
			expected: map[string]any{"email": "a@b.com"},
			body:     `{"email":"a@b.com"}`,
			want:     true,
		},
		{
			name:     "strict superset",
			expected: map[string]any{"email": "a@b.com"},
			body:     `{"email":"a@b.com","name":"Ann","age":30}`,
			want:     true,
		},
		{
			name:     "missing key",
			expected: map[string]any{"email": "a@b.com"},
			body:     `{"name":"Ann"}`,
			want:     false,
		},
		{
			name:     "different value",
			expected: map[string]any{"email": "a@b.com"},
			body:     `{"email":"x@y.com"}`,
			want:     false,
		},
		{
			name:     "number equality ignores representation",
			expected: map[string]any{"age": 30},
			body:     `{"age":30.0}`,
			want:     true,
		},
		{
			name:     "string does not equal number",
			expected: map[string]any{"age": "30"},
			body:     `{"age":30}`,
			want:     false,
		},
		{
			name:     "nested object compared deeply",
			expected: map[string]any{"address": map[string]any{"city": "Oslo"}},
			body:     `{"address":{"city":"Oslo"}}`,
			want:     true,
		},
		{
			name:     "nested object is not a subset test",
			expected: map[string]any{"address": map[string]any{"city": "Oslo"}},
			body:     `{"address":{"city":"Oslo","zip":"0150"}}`,
			want:     false,
		},
		{
			name:     "dotted key is literal",
			expected: map[string]any{"a.b": true},
			body:     `{"a.b":true,"a":{"b":false}}`,
			want:     true,
		},
		{
			name:     "null value",
			expected: map[string]any{"deleted": nil},
			body:     `{"deleted":null}`,
			want:     true,
		},
		{
			name:     "invalid json",
			expected: map[string]any{"email": "a@b.com"},
			body:     `email=a@b.com`,
			want:     false,
		},
		{
			name:     "array body",
			expected: map[string]any{"email": "a@b.com"},
			body:     `[{"email":"a@b.com"}]`,
			want:     false,
		},
		{
			name:     "empty body",
			expected: map[string]any{"email": "a@b.com"},
			body:     ``,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &models.MatchConditions{BodyContains: tt.expected}
			got := e.EvaluateAll(mc, &RequestData{Body: []byte(tt.body)})
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEvaluateAll_QueryContains(t *testing.T) {
	e := NewEvaluator()
	mc := &models.MatchConditions{QueryContains: map[string]string{"page": "2"}}

	tests := []struct {
		name  string
		query map[string][]string
		want  bool
	}{
		{"present", map[string][]string{"page": {"2"}}, true},
		{"superset", map[string][]string{"page": {"2"}, "size": {"10"}}, true},
		{"repeated parameter", map[string][]string{"page": {"1", "2"}}, true},
		{"wrong value", map[string][]string{"page": {"3"}}, false},
		{"missing", map[string][]string{}, false},
		{"name is case sensitive", map[string][]string{"Page": {"2"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.EvaluateAll(mc, &RequestData{QueryParams: tt.query}); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEvaluateAll_HeadersContain(t *testing.T) {
	e := NewEvaluator()
	mc := &models.MatchConditions{HeadersContain: map[string]string{"x-test": "1"}}

	tests := []struct {
		name    string
		headers map[string][]string
		want    bool
	}{
		{"canonical name", map[string][]string{"X-Test": {"1"}}, true},
		{"upper case name", map[string][]string{"X-TEST": {"1"}}, true},
		{"value is case sensitive", map[string][]string{"X-Test": {"One"}}, false},
		{"missing", map[string][]string{"Accept": {"*/*"}}, false},
		{"multi value", map[string][]string{"X-Test": {"0", "1"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.EvaluateAll(mc, &RequestData{Headers: tt.headers}); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEvaluateAll_PathPattern(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/api/*", "/api/users", true},
		{"/api/*", "/api/users/1", false},
		{"/api/**", "/api/users/1", true},
		{"/api/users/{1,2}", "/api/users/2", true},
		{"/api/users/?", "/api/users/42", false},
		{"/api/[", "/api/[", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			mc := &models.MatchConditions{PathPattern: tt.pattern}
			if got := e.EvaluateAll(mc, &RequestData{Path: tt.path}); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestEvaluateAll_AllPredicatesRequired(t *testing.T) {
	e := NewEvaluator()
	mc := &models.MatchConditions{
		QueryContains:  map[string]string{"v": "1"},
		HeadersContain: map[string]string{"X-Env": "test"},
		BodyContains:   map[string]any{"ok": true},
	}

	full := &RequestData{
		QueryParams: map[string][]string{"v": {"1"}},
		Headers:     map[string][]string{"X-Env": {"test"}},
		Body:        []byte(`{"ok":true}`),
	}
	if !e.EvaluateAll(mc, full) {
		t.Error("Expected full request to match")
	}

	partial := &RequestData{
		QueryParams: map[string][]string{"v": {"1"}},
		Body:        []byte(`{"ok":true}`),
	}
	if e.EvaluateAll(mc, partial) {
		t.Error("Expected request without header to fail")
	}
}
