package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ProblemDetails represents RFC 7807 compliant error response
type ProblemDetails struct {
	// Type is a URI reference that identifies the problem type
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Status is the HTTP status code
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence of the problem
	Detail string `json:"detail"`
	// Instance is a URI reference that identifies the specific occurrence of the problem
	Instance string `json:"instance,omitempty"`
	// Timestamp when the error occurred
	Timestamp time.Time `json:"timestamp"`
	// TraceID for request tracing and debugging
	TraceID string `json:"traceId,omitempty"`
	// Errors contains field-specific validation errors
	Errors []FieldError `json:"errors,omitempty"`
	// Extensions are merged into the top level JSON object
	Extensions map[string]any `json:"-"`
}

const typeBase = "https://api.investex.dev/errors/"

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(problemType, title string, status int, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		Timestamp: time.Now().UTC(),
	}
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// WithExtra adds an extension member
func (p *ProblemDetails) WithExtra(key string, value any) *ProblemDetails {
	if p.Extensions == nil {
		p.Extensions = make(map[string]any)
	}
	p.Extensions[key] = value
	return p
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return fmt.Sprintf("[%d] %s: %s", p.Status, p.Title, p.Detail)
}

// MarshalJSON flattens Extensions into the problem object.
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	type alias ProblemDetails
	base, err := json.Marshal((*alias)(p))
	if err != nil || len(p.Extensions) == 0 {
		return base, err
	}
	merged := make(map[string]any, len(p.Extensions)+8)
	for k, v := range p.Extensions {
		merged[k] = v
	}
	var fields map[string]any
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// ToProblemDetails converts the error to RFC 7807 form. Details become
// extension members so callers can render e.g. both risk values.
func (e *Error) ToProblemDetails(instance string) *ProblemDetails {
	status := e.HTTPStatus()
	detail := e.Message
	if detail == "" {
		detail = http.StatusText(status)
	}
	p := NewProblemDetails(typeBase+slug(e.Kind), title(e.Kind), status, detail, instance)
	p.Errors = e.Fields
	p.WithExtra("kind", e.Kind)
	for k, v := range e.Details {
		p.WithExtra(k, v)
	}
	return p
}

// FromError converts any error to problem details. Errors that are not part
// of the taxonomy are reported as internal without leaking their text.
func FromError(err error, instance string) *ProblemDetails {
	var p *ProblemDetails
	if As(err, &p) {
		return p
	}
	var e *Error
	if As(err, &e) {
		return e.ToProblemDetails(instance)
	}
	return Internal.ToProblemDetails(instance)
}

func slug(kind string) string {
	var b strings.Builder
	for i, r := range kind {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('-')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func title(kind string) string {
	var b strings.Builder
	for i, r := range kind {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
