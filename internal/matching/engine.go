package matching

import (
	"sort"
	"strings"

	"github.com/prasenjit/mockforge/internal/condition"
	"github.com/prasenjit/mockforge/internal/models"
)

// Request is the part of an inbound request the matcher inspects
type Request struct {
	Method  string
	Path    string
	Query   map[string][]string
	Headers map[string][]string
	Body    []byte
}

// Result is the selected mock together with its path captures
type Result struct {
	Mock     *models.MockDefinition
	Captures map[string]string
}

// Matcher selects the mock answering a request. It has no side effects.
type Matcher struct {
	condEvaluator *condition.Evaluator
}

// NewMatcher creates a new matcher
func NewMatcher() *Matcher {
	return &Matcher{condEvaluator: condition.NewEvaluator()}
}

type candidate struct {
	mock     *models.MockDefinition
	captures map[string]string
}

// Match returns the best mock for the request from the given snapshot.
// Selection:
//  1. method must be equal
//  2. the path template or the pathPattern glob must match the request path
//  3. every present match condition must hold
//  4. mocks with conditions outrank unconditional ones
//  5. the most recently updated mock wins remaining ties
func (m *Matcher) Match(mocks []*models.MockDefinition, req *Request) (*Result, bool) {
	method := strings.ToUpper(req.Method)
	data := &condition.RequestData{
		Path:        req.Path,
		QueryParams: req.Query,
		Headers:     req.Headers,
		Body:        req.Body,
	}

	var survivors []candidate
	for _, mock := range mocks {
		if mock.Method != method {
			continue
		}

		captures, ok := MatchPath(mock.Path, req.Path)
		if !ok {
			if mock.MatchConditions == nil || mock.MatchConditions.PathPattern == "" ||
				!m.condEvaluator.MatchPathPattern(mock.MatchConditions.PathPattern, req.Path) {
				continue
			}
			captures = map[string]string{}
		}

		if !m.condEvaluator.EvaluateAll(mock.MatchConditions, data) {
			continue
		}
		survivors = append(survivors, candidate{mock: mock, captures: captures})
	}

	if len(survivors) == 0 {
		return nil, false
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return outranks(survivors[i].mock, survivors[j].mock)
	})

	best := survivors[0]
	return &Result{Mock: best.mock, Captures: best.captures}, true
}

// outranks orders by specificity, then recency, then id for a stable choice
func outranks(a, b *models.MockDefinition) bool {
	if ac, bc := a.HasConditions(), b.HasConditions(); ac != bc {
		return ac
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}
