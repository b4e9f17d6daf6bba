package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/onnwee/locamap/internal/engine"
	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/mapview"
	"github.com/onnwee/locamap/internal/subresource"
)

// multipartOverhead is the room left for form boundaries and headers on
// top of the photo itself.
const multipartOverhead = 1 << 20

// Engine is the command surface the handlers drive.
type Engine interface {
	View() engine.ViewModel
	SelectCategory(key string) error
	SetPage(key string, page int) (int, error)
	MoveToRecord(id string) (mapview.Camera, error)
	Search(text string) error
	UseMyLocation(ctx context.Context) (mapview.Camera, error)
	ClickMap(ctx context.Context, lat, lng float64, name, description string) (string, error)
	DeleteRecord(ctx context.Context, id string) error
	AddComment(ctx context.Context, id, text string) error
	AddPhoto(ctx context.Context, id string, up subresource.PhotoUpload) (location.Photo, error)
	DeletePhoto(ctx context.Context, id, name string) error
	Photos(id string) ([]location.Photo, error)
}

// CreateLocationRequest is the body of POST /api/locations.
type CreateLocationRequest struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
}

// SetPageRequest is the body of PUT /api/categories/{key}/page.
type SetPageRequest struct {
	Page int `json:"page"`
}

// TextRequest is the body of search and comment commands.
type TextRequest struct {
	Text string `json:"text"`
}

// PhotosResponse lists a location's photos for the popup.
type PhotosResponse struct {
	Photos    []location.Photo `json:"photos"`
	CanUpload bool             `json:"can_upload"`
}

// Handlers holds dependencies for the command handlers.
type Handlers struct {
	engine      Engine
	broadcaster *Broadcaster
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// NewHandlers creates the command handlers. checkOrigin gates websocket
// upgrades; nil allows same-origin requests only.
func NewHandlers(e Engine, b *Broadcaster, checkOrigin func(*http.Request) bool, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		engine:      e,
		broadcaster: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// decodeJSON decodes the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

// pathParam returns the unescaped chi URL parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// GetView handles GET /api/view.
func (h *Handlers) GetView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.View())
}

// SelectCategory handles POST /api/categories/{key}/select.
func (h *Handlers) SelectCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.SelectCategory(pathParam(r, "key")); err != nil {
		WriteCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.View())
}

// SetPage handles PUT /api/categories/{key}/page.
func (h *Handlers) SetPage(w http.ResponseWriter, r *http.Request) {
	var req SetPageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	page, err := h.engine.SetPage(pathParam(r, "key"), req.Page)
	if err != nil {
		WriteCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SetPageRequest{Page: page})
}

// CreateLocation handles POST /api/locations (a click on the map).
func (h *Handlers) CreateLocation(w http.ResponseWriter, r *http.Request) {
	var req CreateLocationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := h.engine.ClickMap(r.Context(), req.Lat, req.Lng, req.Name, req.Description)
	if err != nil {
		WriteCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// DeleteLocation handles DELETE /api/locations/{id}.
func (h *Handlers) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteRecord(r.Context(), pathParam(r, "id")); err != nil {
		WriteCommandError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveToLocation handles POST /api/locations/{id}/move.
func (h *Handlers) MoveToLocation(w http.ResponseWriter, r *http.Request) {
	cam, err := h.engine.MoveToRecord(pathParam(r, "id"))
	if err != nil {
		WriteCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cam)
}

// Search handles POST /api/search. The geocode runs after the debounce
// period, so the response only acknowledges the request; the outcome
// arrives on the stream.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.Search(req.Text); err != nil {
		WriteCommandError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// UseDeviceLocation handles POST /api/device-location.
func (h *Handlers) UseDeviceLocation(w http.ResponseWriter, r *http.Request) {
	cam, err := h.engine.UseMyLocation(r.Context())
	if err != nil {
		WriteCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cam)
}

// AddComment handles POST /api/locations/{id}/comments.
func (h *Handlers) AddComment(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.engine.AddComment(r.Context(), pathParam(r, "id"), req.Text); err != nil {
		WriteCommandError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListPhotos handles GET /api/locations/{id}/photos.
func (h *Handlers) ListPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := h.engine.Photos(pathParam(r, "id"))
	if err != nil {
		WriteCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PhotosResponse{
		Photos:    photos,
		CanUpload: len(photos) < location.MaxPhotos,
	})
}

// UploadPhoto handles POST /api/locations/{id}/photos with a multipart
// "file" part. An optional "name" field overrides the file name.
func (h *Handlers) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, subresource.MaxPhotoBytes+multipartOverhead)
	if err := r.ParseMultipartForm(subresource.MaxPhotoBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			// The engine rejects on size alone, so the notice and the
			// counter match an oversized file part.
			_, err := h.engine.AddPhoto(r.Context(), pathParam(r, "id"), subresource.PhotoUpload{Size: tooLarge.Limit + 1})
			WriteCommandError(w, r, err)
			return
		}
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Missing file part")
		return
	}
	defer file.Close()

	// Read one byte past the limit so an oversized part is still rejected
	// by size rather than truncated.
	data, err := io.ReadAll(io.LimitReader(file, subresource.MaxPhotoBytes+1))
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Unreadable file part")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}
	photo, err := h.engine.AddPhoto(r.Context(), pathParam(r, "id"), subresource.PhotoUpload{
		Name:        name,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Size:        header.Size,
	})
	if err != nil {
		WriteCommandError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, photo)
}

// DeletePhoto handles DELETE /api/locations/{id}/photos/{name}.
func (h *Handlers) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeletePhoto(r.Context(), pathParam(r, "id"), pathParam(r, "name")); err != nil {
		WriteCommandError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream handles GET /api/stream. The client first receives the current
// view model, then every view model and notice as they are published.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to upgrade websocket connection", "error", err)
		return
	}

	c := h.broadcaster.Subscribe(conn, &Message{Type: MessageView, Data: h.engine.View()})
	h.logger.InfoContext(r.Context(), "view stream client connected",
		"remote_addr", r.RemoteAddr,
		"clients", h.broadcaster.ConnectionCount(),
	)
	defer func() {
		h.broadcaster.Unsubscribe(c)
		h.logger.InfoContext(r.Context(), "view stream client disconnected", "remote_addr", r.RemoteAddr)
	}()

	// Clients do not send commands over the stream; reading only detects
	// disconnects and services pongs.
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WarnContext(r.Context(), "websocket connection closed unexpectedly", "error", err)
			}
			return
		}
	}
}
