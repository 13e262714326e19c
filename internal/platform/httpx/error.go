// Package httpx defines the JSON error envelope shared by every handler.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/shoplane/api/internal/platform/requestctx"
)

// Error is an API error before it is written to the wire.
type Error struct {
	Code    string
	Message string
	Status  int
}

// NewError builds an Error; a zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    oneLine(code, 80),
		Message: oneLine(message, 512),
		Status:  status,
	}
}

type errorEnvelope struct {
	Code      string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// WriteError renders the error as the canonical JSON envelope, attaching the
// request and trace identifiers carried by ctx so clients can quote them.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	envelope := errorEnvelope{
		Code:      err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: oneLine(middleware.GetReqID(ctx), 80),
		TraceID:   oneLine(requestctx.TraceID(ctx), 64),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope)
}

// oneLine collapses newlines and caps length so a propagated error message
// cannot break the JSON line or flood the payload.
func oneLine(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
