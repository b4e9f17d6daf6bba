// Package api exposes the sync engine over HTTP: JSON commands, a websocket
// view stream, health checks and the standardized error envelope.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/onnwee/locamap/internal/engine"
	"github.com/onnwee/locamap/internal/middleware"
	"github.com/onnwee/locamap/internal/subresource"
	"github.com/onnwee/locamap/internal/syncerr"
	"github.com/onnwee/locamap/internal/view"
)

// Error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeNotFound indicates the requested location, photo or category
	// does not exist in the replica.
	ErrCodeNotFound = "not_found"

	// ErrCodeWriteFailed indicates a record store write failed.
	ErrCodeWriteFailed = "write_failed"

	// ErrCodeBlobWriteFailed indicates a photo upload to the blob store failed.
	ErrCodeBlobWriteFailed = "blob_write_failed"

	// ErrCodeBlobDeleteFailed indicates a blob delete failed.
	ErrCodeBlobDeleteFailed = "blob_delete_failed"

	// ErrCodeGeocodeNotFound indicates geocoding or device location found nothing.
	ErrCodeGeocodeNotFound = "geocode_not_found"

	// ErrCodeGeocodeFailed indicates the geocoding service failed.
	ErrCodeGeocodeFailed = "geocode_failed"

	// ErrCodeUnavailable indicates the record store subscription is down.
	ErrCodeUnavailable = "connectivity_failed"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response and records code for
// the logging middleware.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.SetErrorCode(ctx, code)

	data, err := json.Marshal(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// ClassifyError maps an engine error to an HTTP status and error code.
func ClassifyError(err error) (int, string) {
	switch {
	case errors.Is(err, subresource.ErrUnknownLocation),
		errors.Is(err, engine.ErrUnknownPhoto),
		errors.Is(err, view.ErrUnknownCategory):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, syncerr.ErrValidation):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, syncerr.ErrGeocodeNotFound):
		return http.StatusNotFound, ErrCodeGeocodeNotFound
	case errors.Is(err, syncerr.ErrGeocodeFailed):
		return http.StatusBadGateway, ErrCodeGeocodeFailed
	case errors.Is(err, syncerr.ErrBlobWrite):
		return http.StatusBadGateway, ErrCodeBlobWriteFailed
	case errors.Is(err, syncerr.ErrBlobDelete):
		return http.StatusBadGateway, ErrCodeBlobDeleteFailed
	case errors.Is(err, syncerr.ErrWrite):
		return http.StatusBadGateway, ErrCodeWriteFailed
	case errors.Is(err, syncerr.ErrConnectivity):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// WriteCommandError writes the envelope for a failed engine command.
// Internal errors are logged and their message is not exposed.
func WriteCommandError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := ClassifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "command failed", "error", err)
		message = "Internal server error"
	}
	WriteError(w, r.Context(), status, code, message)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
