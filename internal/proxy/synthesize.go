package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prasenjit/mockforge/internal/models"
	"github.com/prasenjit/mockforge/internal/template"
)

// Response is a fully synthesized mock response, ready to be written
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
	Delay   time.Duration
}

// defaultHeaders are sent when a mock defines no headers of its own
var defaultHeaders = map[string]string{"Content-Type": "application/json"}

// Synthesize builds the response for a matched mock. Only the body is
// token-expanded; headers are sent verbatim. Path captures are not
// interpolated into the body.
func Synthesize(def *models.MockDefinition, captures map[string]string, expander *template.Engine) (*Response, error) {
	headers := defaultHeaders
	if len(def.ResponseHeaders) > 0 {
		headers = def.ResponseHeaders
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[k] = v
	}

	var body []byte
	if def.ResponseBody != nil {
		expanded, err := expander.ExpandValue(def.ResponseBody)
		if err != nil {
			return nil, err
		}
		body, err = json.Marshal(expanded)
		if err != nil {
			return nil, fmt.Errorf("failed to encode response body: %w", err)
		}
	}

	status := def.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}

	return &Response{
		Status:  status,
		Headers: out,
		Body:    body,
		Delay:   time.Duration(def.Delay) * time.Millisecond,
	}, nil
}

// Write sends the response. The delay has already been waited by the caller.
func (r *Response) Write(w http.ResponseWriter) error {
	for k, v := range r.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(r.Status)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}
