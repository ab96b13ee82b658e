// Package apierr writes RFC 7807 Problem Detail JSON responses for every
// ghostrelay HTTP endpoint, the way core/pkg/api does in the teacher repo.
package apierr

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/ghostrelay/controlplane/internal/requestid"
)

// Problem implements RFC 7807 (Problem Details for HTTP APIs).
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

func (p *Problem) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// Write writes a Problem response enriched with request context (trace ID
// from the request-ID middleware, instance from the request URI).
func Write(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	problem := &Problem{
		Type:     fmt.Sprintf("https://ghostrelay.dev/errors/%d", status),
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		TraceID:  requestid.FromContext(r.Context()),
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// BadRequest writes a 400 response for a request-shape validation failure.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	Write(w, r, http.StatusBadRequest, "Validation error", detail)
}

// NotFound writes a 404 response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Write(w, r, http.StatusNotFound, "Not Found", detail)
}

// MethodNotAllowed writes a 405 response.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Write(w, r, http.StatusMethodNotAllowed, "Method Not Allowed", "the HTTP method is not supported for this endpoint")
}

// TooManyRequests writes a 429 structured response with a Retry-After
// header.
func TooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	Write(w, r, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded, retry after the specified interval")
}

// Internal writes a 500 response. err is logged but never exposed to the
// caller, and the response is tagged with an opaque error id instead.
func Internal(w http.ResponseWriter, r *http.Request, errorID string, err error) {
	slog.Error("internal server error", "error_id", errorID, "error", err, "path", r.URL.Path)
	Write(w, r, http.StatusInternalServerError, "Internal Server Error", fmt.Sprintf("an unexpected error occurred, reference %s", errorID))
}
