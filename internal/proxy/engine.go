package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prasenjit/mockforge/internal/matching"
	"github.com/prasenjit/mockforge/internal/metrics"
	"github.com/prasenjit/mockforge/internal/models"
	"github.com/prasenjit/mockforge/internal/stats"
	"github.com/prasenjit/mockforge/internal/storage"
	"github.com/prasenjit/mockforge/internal/template"
	"go.uber.org/zap"
)

const (
	// DefaultPrefix is where mocks are served; stored paths exclude it
	DefaultPrefix = "/mock"

	// ClientTokenHeader carries the caller's opaque identity
	ClientTokenHeader = "X-Client-Token"

	maxRequestBody = 10 << 20

	// writeWait is the time allowed to write a delayed response once its delay elapses
	writeWait = 10 * time.Second
)

// Engine answers inbound requests from the mock catalog
type Engine struct {
	store    storage.Storage
	ledger   *stats.Ledger
	matcher  *matching.Matcher
	expander *template.Engine
	metrics  *metrics.Metrics
	logger   *zap.Logger
	prefix   string
	now      func() time.Time
}

// NewEngine creates a new proxy engine. ledger and m may be nil.
func NewEngine(store storage.Storage, ledger *stats.Ledger, expander *template.Engine, m *metrics.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		ledger:   ledger,
		matcher:  matching.NewMatcher(),
		expander: expander,
		metrics:  m,
		logger:   logger.Named("proxy"),
		prefix:   DefaultPrefix,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetPrefix changes the mount point stripped from inbound paths
func (e *Engine) SetPrefix(prefix string) {
	e.prefix = strings.TrimSuffix(prefix, "/")
}

// Match selects the mock answering req from the current catalog snapshot
func (e *Engine) Match(ctx context.Context, req *matching.Request) (*matching.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mocks, err := e.store.ListMocks()
	if err != nil {
		return nil, fmt.Errorf("failed to load mocks: %w", err)
	}

	result, ok := e.matcher.Match(mocks, req)
	if !ok {
		return nil, models.ErrNoMatch
	}
	return result, nil
}

// Synthesize builds the response for a matched mock
func (e *Engine) Synthesize(def *models.MockDefinition, captures map[string]string) (*Response, error) {
	return Synthesize(def, captures, e.expander)
}

// RecordHit counts one served request against the mock
func (e *Engine) RecordHit(ctx context.Context, id string) (*models.MockDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.store.RecordHit(id, e.now())
}

// Serve runs the whole pipeline for one request except the delay and the
// write. The hit is committed before synthesis, so a response that fails to
// synthesize still counts.
func (e *Engine) Serve(ctx context.Context, req *matching.Request, clientToken string) (*Response, error) {
	result, err := e.Match(ctx, req)
	if err != nil {
		if errors.Is(err, models.ErrNoMatch) {
			e.metrics.ObserveNoMatch(req.Method)
		}
		return nil, err
	}

	def, err := e.RecordHit(ctx, result.Mock.ID)
	if err != nil {
		if models.IsNotFound(err) {
			// deleted between match and hit
			e.metrics.ObserveNoMatch(req.Method)
			return nil, models.ErrNoMatch
		}
		return nil, err
	}

	resp, synthErr := e.Synthesize(def, result.Captures)
	status := http.StatusInternalServerError
	var delay time.Duration
	if synthErr == nil {
		status = resp.Status
		delay = resp.Delay
	}

	if e.ledger != nil {
		e.ledger.Record(models.RequestRecord{
			MockID:         def.ID,
			MockName:       def.Name,
			RequestMethod:  req.Method,
			RequestPath:    req.Path,
			ResponseStatus: status,
			Timestamp:      e.now(),
			ClientToken:    clientToken,
		})
	}
	e.metrics.ObserveHit(def.Method, delay)

	if synthErr != nil {
		return nil, synthErr
	}
	return resp, nil
}

// ServeHTTP handles incoming requests
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read request body"})
		return
	}

	req := &matching.Request{
		Method:  r.Method,
		Path:    e.stripPrefix(r.URL.Path),
		Query:   r.URL.Query(),
		Headers: r.Header,
		Body:    body,
	}
	clientToken := r.Header.Get(ClientTokenHeader)

	resp, err := e.Serve(r.Context(), req, clientToken)
	switch {
	case errors.Is(err, models.ErrNoMatch):
		e.logger.Debug("no mock matched",
			zap.String("method", req.Method),
			zap.String("path", req.Path))
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":  "No mock matched",
			"method": req.Method,
			"path":   req.Path,
		})
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		e.logger.Error("failed to serve mock",
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	if resp.Delay > 0 {
		e.extendWriteDeadline(w, resp.Delay)
	}

	if !wait(r.Context(), resp.Delay) {
		e.logger.Debug("client went away during delay", zap.String("path", req.Path))
		return
	}

	if err := resp.Write(w); err != nil {
		e.logger.Debug("failed to write response", zap.Error(err))
	}

	e.logger.Debug("mock served",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.Status),
		zap.String("client", clientToken),
		zap.Duration("duration", time.Since(startTime)))
}

// extendWriteDeadline pushes the server's write deadline past the mock delay
// so a delay longer than the server WriteTimeout still reaches the client.
func (e *Engine) extendWriteDeadline(w http.ResponseWriter, delay time.Duration) {
	err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(delay + writeWait))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		e.logger.Debug("failed to extend write deadline", zap.Error(err))
	}
}

// stripPrefix maps "/mock/api/x" to "/api/x"
func (e *Engine) stripPrefix(p string) string {
	if e.prefix == "" {
		return p
	}
	if p == e.prefix {
		return "/"
	}
	if strings.HasPrefix(p, e.prefix+"/") {
		return p[len(e.prefix):]
	}
	return p
}

// wait blocks for d or until ctx is done. It reports whether the full delay elapsed.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
