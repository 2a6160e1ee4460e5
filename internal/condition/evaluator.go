package condition

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prasenjit/mockforge/internal/models"
	"github.com/tidwall/gjson"
)

// Evaluator evaluates match conditions against request data
type Evaluator struct{}

// NewEvaluator creates a new condition evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// RequestData contains all request data for condition evaluation
type RequestData struct {
	Path        string
	QueryParams map[string][]string
	Headers     map[string][]string
	Body        []byte
}

// EvaluateAll reports whether every present sub-predicate is satisfied (AND logic).
// Absent or empty conditions always match.
func (e *Evaluator) EvaluateAll(mc *models.MatchConditions, data *RequestData) bool {
	if mc.IsEmpty() {
		return true
	}

	if mc.PathPattern != "" && !e.MatchPathPattern(mc.PathPattern, data.Path) {
		return false
	}
	if len(mc.QueryContains) > 0 && !e.queryContains(mc.QueryContains, data.QueryParams) {
		return false
	}
	if len(mc.HeadersContain) > 0 && !e.headersContain(mc.HeadersContain, data.Headers) {
		return false
	}
	if len(mc.BodyContains) > 0 && !e.BodyContains(mc.BodyContains, data.Body) {
		return false
	}

	return true
}

// MatchPathPattern glob-matches a request path. '*' stays within a segment, '**' spans segments.
func (e *Evaluator) MatchPathPattern(pattern, path string) bool {
	ok, err := doublestar.Match(pattern, path)
	return err == nil && ok
}

// queryContains requires each expected parameter to have at least one equal value
func (e *Evaluator) queryContains(expected map[string]string, query map[string][]string) bool {
	for key, want := range expected {
		if !containsValue(query[key], want) {
			return false
		}
	}
	return true
}

// headersContain is queryContains with case-insensitive header names
func (e *Evaluator) headersContain(expected map[string]string, headers map[string][]string) bool {
	for key, want := range expected {
		found := false
		for k, vals := range headers {
			if strings.EqualFold(k, key) && containsValue(vals, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// BodyContains reports whether the body is a JSON object holding every
// expected key with an equal value. Nested values compare deeply.
func (e *Evaluator) BodyContains(expected map[string]any, body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return false
	}

	for key, want := range expected {
		got := doc.Get(gjson.Escape(key))
		if !got.Exists() {
			return false
		}
		if !jsonEqual(got.Value(), want) {
			return false
		}
	}
	return true
}

func containsValue(vals []string, want string) bool {
	for _, v := range vals {
		if v == want {
			return true
		}
	}
	return false
}

// jsonEqual compares two values by their JSON meaning, so 1 and 1.0 are equal
func jsonEqual(actual, expected any) bool {
	return reflect.DeepEqual(normalize(actual), normalize(expected))
}

func normalize(v any) any {
	switch v.(type) {
	case nil, string, bool, float64:
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
