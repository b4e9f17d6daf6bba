// Package subresource manages the append-only parts of a location: comments
// and photos. Photo writes span the record store and the blob store and are
// mirrored into the local replica optimistically.
package subresource

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/locamap/internal/blobstore"
	"github.com/onnwee/locamap/internal/docstore"
	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/syncerr"
	"github.com/onnwee/locamap/internal/validate"
)

// MaxPhotoBytes is the largest accepted photo source size.
const MaxPhotoBytes = 3_000_000

// Validation errors. Each is returned before any network call.
var (
	ErrPhotoTooLarge     = fmt.Errorf("%w: photo exceeds %d bytes", syncerr.ErrValidation, MaxPhotoBytes)
	ErrPhotoLimitReached = fmt.Errorf("%w: location already has %d photos", syncerr.ErrValidation, location.MaxPhotos)
	ErrUnknownLocation   = fmt.Errorf("%w: location not in replica", syncerr.ErrValidation)
	ErrUnreadablePhoto   = fmt.Errorf("%w: photo could not be decoded", syncerr.ErrValidation)
)

// Blob operation outcomes reported to the observer.
const (
	BlobOpPut    = "put"
	BlobOpDelete = "delete"
)

// Records is the slice of the replica the manager needs.
type Records interface {
	Get(id string) (location.Location, bool)
	Patch(id string, fn func(*location.Location) bool) bool
	Delete(ctx context.Context, id string) error
}

// Sanitizer rewrites photo bytes before upload.
type Sanitizer interface {
	Sanitize(data []byte) ([]byte, string, error)
}

// PhotoUpload is a photo submitted by the user.
type PhotoUpload struct {
	Name        string
	ContentType string
	Data        []byte

	// Size is the declared source size. When zero, len(Data) is used.
	Size int64
}

// Config wires a Manager.
type Config struct {
	Records Records
	Channel docstore.Channel
	Blobs   blobstore.Store

	// Sanitizer is optional.
	Sanitizer Sanitizer

	// CascadePhotoDelete removes a location's photo blobs after the
	// location itself is deleted.
	CascadePhotoDelete bool

	// OnBlobOp observes every blob store call with its outcome ("ok" or
	// "error").
	OnBlobOp func(op, outcome string)

	Logger *slog.Logger
}

// Manager implements comment and photo operations for single locations.
type Manager struct {
	cfg Config
}

// New creates a Manager.
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnBlobOp == nil {
		cfg.OnBlobOp = func(string, string) {}
	}
	return &Manager{cfg: cfg}
}

// AddComment appends a comment through the record store. The replica picks
// it up from the next snapshot.
func (m *Manager) AddComment(ctx context.Context, locationID, text string) error {
	text, err := validate.CommentText(text)
	if err != nil {
		return fmt.Errorf("comment: %w", err)
	}

	err = m.cfg.Channel.AppendToArrayField(ctx, locationID, location.FieldComments, location.Comment{Text: text})
	if err != nil {
		m.cfg.Logger.Warn("add comment failed",
			slog.String("location_id", locationID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: add comment: %w", syncerr.ErrWrite, err)
	}
	return nil
}

// AddPhoto uploads a photo, records its URL on the location and shows it
// locally before the next snapshot confirms it. Uploading a name that
// already exists overwrites the stored bytes.
func (m *Manager) AddPhoto(ctx context.Context, locationID string, up PhotoUpload) (location.Photo, error) {
	size := max(up.Size, int64(len(up.Data)))
	if size > MaxPhotoBytes {
		return location.Photo{}, fmt.Errorf("%w: got %d bytes", ErrPhotoTooLarge, size)
	}

	rec, ok := m.cfg.Records.Get(locationID)
	if !ok {
		return location.Photo{}, fmt.Errorf("%w: %s", ErrUnknownLocation, locationID)
	}
	if len(rec.Photos) >= location.MaxPhotos {
		return location.Photo{}, ErrPhotoLimitReached
	}

	name, err := validate.FileName(up.Name)
	if err != nil {
		return location.Photo{}, fmt.Errorf("photo name: %w", err)
	}
	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(up.Data)
	}
	contentType, err = validate.MIMEType(contentType, validate.AllowedImageTypes)
	if err != nil {
		return location.Photo{}, fmt.Errorf("photo type: %w", err)
	}

	data := up.Data
	if m.cfg.Sanitizer != nil {
		data, contentType, err = m.cfg.Sanitizer.Sanitize(data)
		if err != nil {
			return location.Photo{}, fmt.Errorf("%w: %w", ErrUnreadablePhoto, err)
		}
	}

	path := blobstore.PhotoPath(locationID, name)
	url, err := m.cfg.Blobs.Put(ctx, path, data, contentType)
	if err != nil {
		m.cfg.OnBlobOp(BlobOpPut, "error")
		m.cfg.Logger.Warn("photo upload failed",
			slog.String("location_id", locationID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return location.Photo{}, fmt.Errorf("%w: %w", syncerr.ErrBlobWrite, err)
	}
	m.cfg.OnBlobOp(BlobOpPut, "ok")

	photo := location.Photo{Path: url, Name: name}
	if err := m.cfg.Channel.AppendToArrayField(ctx, locationID, location.FieldPhotos, photo); err != nil {
		m.cfg.Logger.Warn("photo uploaded but not recorded",
			slog.String("location_id", locationID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return location.Photo{}, fmt.Errorf("%w: add photo: %w", syncerr.ErrWrite, err)
	}

	m.cfg.Records.Patch(locationID, func(l *location.Location) bool {
		if l.HasPhoto(photo) {
			return false
		}
		l.Photos = append(l.Photos, photo)
		return true
	})

	m.cfg.Logger.Info("photo added",
		slog.String("location_id", locationID),
		slog.String("name", name),
		slog.Int64("bytes", int64(len(data))),
	)
	return photo, nil
}

// DeletePhoto deletes the blob first and only then removes the photo entry.
// If the blob delete fails nothing else is touched.
func (m *Manager) DeletePhoto(ctx context.Context, locationID string, photo location.Photo) error {
	path := blobstore.PhotoPath(locationID, photo.Name)
	if err := m.cfg.Blobs.Delete(ctx, path); err != nil {
		m.cfg.OnBlobOp(BlobOpDelete, "error")
		m.cfg.Logger.Warn("photo blob delete failed",
			slog.String("location_id", locationID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", syncerr.ErrBlobDelete, err)
	}
	m.cfg.OnBlobOp(BlobOpDelete, "ok")

	if err := m.cfg.Channel.RemoveFromArrayField(ctx, locationID, location.FieldPhotos, photo); err != nil {
		m.cfg.Logger.Warn("photo blob deleted but entry not removed",
			slog.String("location_id", locationID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: remove photo: %w", syncerr.ErrWrite, err)
	}

	m.cfg.Records.Patch(locationID, func(l *location.Location) bool {
		kept := make([]location.Photo, 0, len(l.Photos))
		for _, p := range l.Photos {
			if p != photo {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(l.Photos) {
			return false
		}
		l.Photos = kept
		return true
	})
	return nil
}

// DeleteLocation deletes the record and, when cascading is enabled, then
// deletes its photo blobs concurrently. A blob failure is reported after
// the record is already gone.
func (m *Manager) DeleteLocation(ctx context.Context, locationID string) error {
	rec, known := m.cfg.Records.Get(locationID)

	if err := m.cfg.Records.Delete(ctx, locationID); err != nil {
		return err
	}
	if !m.cfg.CascadePhotoDelete || !known || len(rec.Photos) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, p := range rec.Photos {
		path := blobstore.PhotoPath(locationID, p.Name)
		g.Go(func() error {
			if err := m.cfg.Blobs.Delete(ctx, path); err != nil {
				m.cfg.OnBlobOp(BlobOpDelete, "error")
				m.cfg.Logger.Warn("orphaned photo blob",
					slog.String("location_id", locationID),
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
				return fmt.Errorf("%s: %w", path, err)
			}
			m.cfg.OnBlobOp(BlobOpDelete, "ok")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: cascade: %w", syncerr.ErrBlobDelete, err)
	}
	return nil
}

// Photos returns the photo list shown in the popup, including optimistic
// entries not yet confirmed by a snapshot.
func (m *Manager) Photos(locationID string) ([]location.Photo, error) {
	rec, ok := m.cfg.Records.Get(locationID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, locationID)
	}
	return rec.Photos, nil
}

// CanUpload reports whether the location is below the photo cap.
func (m *Manager) CanUpload(locationID string) bool {
	rec, ok := m.cfg.Records.Get(locationID)
	return ok && len(rec.Photos) < location.MaxPhotos
}
