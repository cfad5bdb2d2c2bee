package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/edutracker/edutracker/internal/application/command"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse is the standard JSON response envelope.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// Meta contains response metadata.
type Meta struct {
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	resp := JSONResponse{
		Success:   status < http.StatusBadRequest,
		Data:      data,
		RequestID: getRequestID(r.Context()),
	}
	encode(w, r, status, resp)
}

func writeList[T any](w http.ResponseWriter, r *http.Request, items []T) {
	if items == nil {
		items = []T{}
	}
	encode(w, r, http.StatusOK, JSONResponse{
		Success:   true,
		Data:      items,
		Meta:      &Meta{Count: len(items), Timestamp: time.Now().UTC()},
		RequestID: getRequestID(r.Context()),
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]string) {
	encode(w, r, status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message, Details: details},
		RequestID: getRequestID(r.Context()),
	})
}

func encode(w http.ResponseWriter, r *http.Request, status int, resp JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.FromContext(r.Context()).Warn("failed to encode response", logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeError maps an application error onto a status code. Anything
// unrecognised is a 500 and its message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var inputErr *command.InputError

	switch {
	case errors.As(err, &inputErr):
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", "invalid input", inputErr.Fields)
	case shared.IsValidation(err):
		writeJSONError(w, r, http.StatusBadRequest, "validation_error", publicMessage(err), nil)
	case shared.IsNotFound(err):
		writeJSONError(w, r, http.StatusNotFound, "not_found", publicMessage(err), nil)
	case shared.IsAlreadyExists(err):
		writeJSONError(w, r, http.StatusConflict, "already_exists", publicMessage(err), nil)
	case errors.Is(err, shared.ErrStateTransition), errors.Is(err, shared.ErrInvalidState):
		writeJSONError(w, r, http.StatusConflict, "conflict", publicMessage(err), nil)
	case errors.Is(err, shared.ErrServiceUnavailable):
		writeJSONError(w, r, http.StatusServiceUnavailable, "service_unavailable", "service temporarily unavailable", nil)
	case shared.IsExternalService(err):
		writeJSONError(w, r, http.StatusBadGateway, "upstream_error", "upstream service failed", nil)
	default:
		logger.FromContext(r.Context()).Error("request failed",
			slog.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, r, http.StatusInternalServerError, "internal_error", "an unexpected error occurred", nil)
	}
}

// publicMessage prefers the domain message over the full wrapped chain.
func publicMessage(err error) string {
	var target *shared.DomainError
	if errors.As(err, &target) && target.Message != "" {
		return target.Message
	}
	return err.Error()
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSON reads a single JSON object into dst. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("body must contain a single JSON object")
	}
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", nil)
	case errors.Is(err, io.EOF):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_json", "request body is empty", nil)
	default:
		writeJSONError(w, r, http.StatusBadRequest, "invalid_json", err.Error(), nil)
	}
	return false
}

// getQueryInt returns an integer query parameter, or defaultVal when it is
// missing or malformed.
func getQueryInt(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}
