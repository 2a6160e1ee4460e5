package template

import (
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prasenjit/mockforge/internal/models"
)

// Func resolves one token call. args holds the raw, trimmed arguments
// between the parentheses (nil when the token has no parentheses).
type Func func(args []string) (any, error)

// Engine expands {{...}} tokens inside response bodies using a registry of
// named functions. Unknown tokens are left untouched.
type Engine struct {
	mu    sync.RWMutex
	funcs map[string]Func
	now   func() time.Time
}

// NewEngine creates an engine with the built-in timestamp, uuid and randomInt tokens
func NewEngine() *Engine {
	e := &Engine{
		funcs: make(map[string]Func),
		now:   time.Now,
	}
	e.Register("timestamp", e.timestamp)
	e.Register("uuid", newUUID)
	e.Register("randomInt", randomInt)
	return e
}

// Register adds or replaces a token function
func (e *Engine) Register(name string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[name] = fn
}

// tokenPattern matches {{name}} and {{name(args)}}
var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*(?:\(([^(){}]*)\))?\s*\}\}`)

// ExpandValue returns a copy of v with every string leaf expanded.
// Map keys are never expanded.
func (e *Engine) ExpandValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return e.Process(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			expanded, err := e.ExpandValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			expanded, err := e.ExpandValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return v, nil
	}
}

// Validate checks every token call in v without keeping the results
func (e *Engine) Validate(v any) error {
	_, err := e.ExpandValue(v)
	return err
}

// Process expands the tokens of a single string. A string made of exactly
// one known token yields the token's typed value (a randomInt stays a number);
// otherwise the result is the string with each token replaced by its text.
func (e *Engine) Process(s string) (any, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	if loc := tokenPattern.FindStringSubmatchIndex(s); loc != nil && loc[0] == 0 && loc[1] == len(s) {
		value, ok, err := e.resolve(s, loc)
		if err != nil {
			return nil, err
		}
		if ok {
			return value, nil
		}
		return s, nil
	}

	var firstErr error
	out := tokenPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}
		loc := tokenPattern.FindStringSubmatchIndex(match)
		value, ok, err := e.resolve(match, loc)
		if err != nil {
			firstErr = err
			return match
		}
		if !ok {
			return match
		}
		return fmt.Sprint(value)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// resolve evaluates one matched token. ok is false for unregistered names.
func (e *Engine) resolve(s string, loc []int) (any, bool, error) {
	name := s[loc[2]:loc[3]]

	e.mu.RLock()
	fn, found := e.funcs[name]
	e.mu.RUnlock()
	if !found {
		return nil, false, nil
	}

	var args []string
	if loc[4] >= 0 {
		args = parseArgs(s[loc[4]:loc[5]])
	}

	value, err := fn(args)
	if err != nil {
		return nil, true, err
	}
	return value, true, nil
}

// parseArgs splits a comma separated argument list
func parseArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func (e *Engine) timestamp(args []string) (any, error) {
	if len(args) > 0 {
		return nil, models.NewValidationError("responseBody", "timestamp takes no arguments")
	}
	return e.now().UnixMilli(), nil
}

func newUUID(args []string) (any, error) {
	if len(args) > 0 {
		return nil, models.NewValidationError("responseBody", "uuid takes no arguments")
	}
	return uuid.NewString(), nil
}

// randomInt returns a uniform integer in the inclusive range [a,b]
func randomInt(args []string) (any, error) {
	if len(args) != 2 {
		return nil, models.NewValidationError("responseBody", "randomInt expects two integer arguments, got %d", len(args))
	}

	lo, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return nil, models.NewValidationError("responseBody", "randomInt: %q is not an integer", args[0])
	}
	hi, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return nil, models.NewValidationError("responseBody", "randomInt: %q is not an integer", args[1])
	}
	if lo > hi {
		return nil, models.NewValidationError("responseBody", "randomInt: lower bound %d exceeds upper bound %d", lo, hi)
	}

	span := uint64(hi - lo)
	if span == math.MaxUint64 {
		return int64(rand.Uint64()), nil
	}
	return lo + int64(rand.Uint64N(span+1)), nil
}
