package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/onnwee/locamap/internal/engine"
	"github.com/onnwee/locamap/internal/subresource"
	"github.com/onnwee/locamap/internal/syncerr"
	"github.com/onnwee/locamap/internal/view"
)

func TestWriteError_Envelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, context.Background(), http.StatusNotFound, ErrCodeNotFound, "Location not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("Content-Type = %s", ct)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response body: %v, body: %s", err, w.Body.String())
	}
	if resp.Error.Code != ErrCodeNotFound || resp.Error.Message != "Location not found" {
		t.Errorf("error = %+v", resp.Error)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown location", fmt.Errorf("%w: x", subresource.ErrUnknownLocation), http.StatusNotFound, ErrCodeNotFound},
		{"unknown photo", engine.ErrUnknownPhoto, http.StatusNotFound, ErrCodeNotFound},
		{"unknown category", view.ErrUnknownCategory, http.StatusNotFound, ErrCodeNotFound},
		{"photo too large", subresource.ErrPhotoTooLarge, http.StatusBadRequest, ErrCodeValidation},
		{"geocode not found", syncerr.ErrGeocodeNotFound, http.StatusNotFound, ErrCodeGeocodeNotFound},
		{"geocode failed", syncerr.ErrGeocodeFailed, http.StatusBadGateway, ErrCodeGeocodeFailed},
		{"blob write", fmt.Errorf("%w: put", syncerr.ErrBlobWrite), http.StatusBadGateway, ErrCodeBlobWriteFailed},
		{"blob delete", syncerr.ErrBlobDelete, http.StatusBadGateway, ErrCodeBlobDeleteFailed},
		{"write", fmt.Errorf("%w: %w", syncerr.ErrWrite, errors.New("conn reset")), http.StatusBadGateway, ErrCodeWriteFailed},
		{"connectivity", syncerr.ErrConnectivity, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := ClassifyError(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Errorf("ClassifyError() = %d %s, want %d %s", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestWriteCommandError_HidesInternalMessage(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/view", nil)
	WriteCommandError(w, r, errors.New("redis: secret detail"))

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(resp.Error.Message, "secret") {
		t.Errorf("internal error message leaked: %q", resp.Error.Message)
	}
}
