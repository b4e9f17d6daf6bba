// Package engine is the composition root of the sync engine. It wires the
// replica to the list and map controllers, the clusterer and the
// sub-resource manager, exposes the user commands, and projects everything
// into a single ViewModel pushed to listeners.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/locamap/internal/blobstore"
	"github.com/onnwee/locamap/internal/cluster"
	"github.com/onnwee/locamap/internal/docstore"
	"github.com/onnwee/locamap/internal/geocode"
	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/mapview"
	"github.com/onnwee/locamap/internal/replica"
	"github.com/onnwee/locamap/internal/subresource"
	"github.com/onnwee/locamap/internal/syncerr"
	"github.com/onnwee/locamap/internal/view"
)

// Command names carried on notices.
const (
	OpSubscribe    = "subscribe"
	OpSync         = "sync"
	OpSelect       = "select_category"
	OpSetPage      = "set_page"
	OpMove         = "move_to_record"
	OpSearch       = "search"
	OpDeviceLocate = "use_my_location"
	OpCreate       = "click_map"
	OpReverse      = "reverse_geocode"
	OpDelete       = "delete_record"
	OpAddComment   = "add_comment"
	OpAddPhoto     = "add_photo"
	OpDeletePhoto  = "delete_photo"
	OpListPhotos   = "list_photos"
)

// ErrUnknownPhoto is returned when deleting a photo name the location does
// not carry.
var ErrUnknownPhoto = fmt.Errorf("%w: photo not found on location", syncerr.ErrValidation)

// Notice is a user-visible failure report.
type Notice struct {
	Kind       string    `json:"kind"`
	Op         string    `json:"op"`
	Message    string    `json:"message"`
	LocationID string    `json:"location_id,omitempty"`
	At         time.Time `json:"at"`
}

// ListItem is one row of the location list.
type ListItem struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Country     string             `json:"country"`
	Coordinates location.Point     `json:"coordinates"`
	Comments    []location.Comment `json:"comments"`
	PhotoCount  int                `json:"photo_count"`
	CanUpload   bool               `json:"can_upload"`
}

// ViewModel is everything a renderer needs for one frame.
type ViewModel struct {
	Tabs      []string       `json:"tabs"`
	Active    string         `json:"active"`
	Page      int            `json:"page"`
	PageCount int            `json:"page_count"`
	Items     []ListItem     `json:"items"`
	Camera    mapview.Camera `json:"camera"`
	Clusters  cluster.Layer  `json:"clusters"`
	Version   uint64         `json:"version"`
}

// Config wires an Engine. Channel and Blobs are required.
type Config struct {
	Channel  docstore.Channel
	Blobs    blobstore.Store
	Geocoder geocode.Service
	Locator  geocode.DeviceLocator

	// Sanitizer is optional; when set photos are rewritten before upload.
	Sanitizer subresource.Sanitizer

	SearchDebounce     time.Duration
	CascadePhotoDelete bool

	Metrics *Metrics
	Logger  *slog.Logger
}

// Engine owns the replica and every component derived from it.
type Engine struct {
	logger   *slog.Logger
	metrics  *Metrics
	geocoder geocode.Service

	replica  *replica.Store
	views    *view.Controller
	mapv     *mapview.Controller
	clusters *cluster.Clusterer
	subres   *subresource.Manager

	// pubMu serializes derivation from snapshots, view-model projection
	// and listener dispatch.
	pubMu   sync.Mutex
	version uint64

	startMu      sync.Mutex
	startFailing bool

	lmu             sync.RWMutex
	viewListeners   []func(ViewModel)
	noticeListeners []func(Notice)
}

// New wires an engine. The replica is empty until Start.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.Geocoder == nil {
		cfg.Geocoder = geocode.Disabled{}
	}

	e := &Engine{
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		geocoder: countingGeocoder{next: cfg.Geocoder, metrics: cfg.Metrics},
		views:    view.NewController(),
		clusters: cluster.New(),
	}

	e.replica = replica.New(cfg.Channel,
		replica.WithLogger(cfg.Logger),
		replica.WithErrorHandler(func(err error) {
			e.report(OpSync, "", err)
		}),
	)
	e.replica.OnChange(e.onSnapshot)

	e.mapv = mapview.NewController(mapview.Config{
		Geocoder: e.geocoder,
		Locator:  cfg.Locator,
		Debounce: cfg.SearchDebounce,
		OnChange: e.onCamera,
		OnSearchError: func(_ string, err error) {
			e.report(OpSearch, "", err)
		},
		Logger: cfg.Logger,
	})

	e.subres = subresource.New(subresource.Config{
		Records:            e.replica,
		Channel:            cfg.Channel,
		Blobs:              cfg.Blobs,
		Sanitizer:          cfg.Sanitizer,
		CascadePhotoDelete: cfg.CascadePhotoDelete,
		OnBlobOp:           e.metrics.incBlobOp,
		Logger:             cfg.Logger,
	})
	return e
}

// Start subscribes the replica. The engine keeps working on an empty
// replica when it fails. Only the first failure of a series of attempts is
// reported as a notice; later ones are logged and counted until a Start
// succeeds.
func (e *Engine) Start(ctx context.Context) error {
	err := e.replica.Start(ctx)

	e.startMu.Lock()
	first := !e.startFailing
	e.startFailing = err != nil
	e.startMu.Unlock()

	if err == nil {
		return nil
	}
	if first {
		e.report(OpSubscribe, "", err)
		return err
	}
	e.metrics.incSubscribeRetry()
	e.logger.Warn("replica subscription still failing",
		slog.String("op", OpSubscribe),
		slog.String("error", err.Error()),
	)
	return err
}

// Stop cancels pending searches and releases the subscription.
func (e *Engine) Stop() error {
	e.mapv.Close()
	return e.replica.Stop()
}

// OnView registers a view-model listener. Listeners run synchronously in
// publication order and must not call engine commands.
func (e *Engine) OnView(fn func(ViewModel)) {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	e.viewListeners = append(e.viewListeners, fn)
}

// OnNotice registers a notice listener.
func (e *Engine) OnNotice(fn func(Notice)) {
	e.lmu.Lock()
	defer e.lmu.Unlock()
	e.noticeListeners = append(e.noticeListeners, fn)
}

// View projects the current state without publishing it.
func (e *Engine) View() ViewModel {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	return e.projectLocked()
}

// SelectCategory switches the active list tab.
func (e *Engine) SelectCategory(key string) error {
	if err := e.views.SelectCategory(key); err != nil {
		e.report(OpSelect, "", err)
		return err
	}
	e.publish()
	return nil
}

// SetPage moves a category's cursor and returns the page actually shown.
func (e *Engine) SetPage(key string, page int) (int, error) {
	got, err := e.views.SetPage(key, page)
	if err != nil {
		e.report(OpSetPage, "", err)
		return 0, err
	}
	e.publish()
	return got, nil
}

// MoveToRecord focuses the map on a location.
func (e *Engine) MoveToRecord(id string) (mapview.Camera, error) {
	rec, ok := e.replica.Get(id)
	if !ok {
		err := fmt.Errorf("%w: %s", subresource.ErrUnknownLocation, id)
		e.report(OpMove, id, err)
		return e.mapv.Camera(), err
	}
	return e.mapv.MoveToRecord(rec), nil
}

// Search schedules a debounced geocode. Failures arrive as notices.
func (e *Engine) Search(text string) error {
	if err := e.mapv.Search(text); err != nil {
		e.report(OpSearch, "", err)
		return err
	}
	return nil
}

// UseMyLocation centers the map on the device position.
func (e *Engine) UseMyLocation(ctx context.Context) (mapview.Camera, error) {
	cam, err := e.mapv.UseDeviceLocation(ctx)
	if err != nil {
		e.report(OpDeviceLocate, "", err)
		return cam, err
	}
	return cam, nil
}

// ClickMap creates a location at the clicked point. The country comes from
// reverse geocoding; when that fails the location is still created with an
// empty country and a notice is emitted.
func (e *Engine) ClickMap(ctx context.Context, lat, lng float64, name, description string) (string, error) {
	fields, err := location.Fields{
		Name:        name,
		Description: description,
		Coordinates: location.Point{Lat: lat, Lng: lng},
	}.Validate()
	if err != nil {
		e.report(OpCreate, "", err)
		return "", err
	}

	country, err := e.geocoder.Reverse(ctx, fields.Coordinates)
	switch {
	case err == nil:
		fields.Country = country
	case errors.Is(err, syncerr.ErrGeocodeNotFound):
		e.logger.Debug("no country for point",
			slog.Float64("lat", lat),
			slog.Float64("lng", lng),
		)
	default:
		if !errors.Is(err, syncerr.ErrGeocodeFailed) {
			err = fmt.Errorf("%w: %w", syncerr.ErrGeocodeFailed, err)
		}
		e.report(OpReverse, "", err)
	}

	id, err := e.replica.Create(ctx, fields)
	if err != nil {
		e.report(OpCreate, "", err)
		return "", err
	}
	e.logger.Info("location created",
		slog.String("location_id", id),
		slog.String("country", fields.Country),
	)
	return id, nil
}

// DeleteRecord deletes a location and, if configured, its photo blobs.
func (e *Engine) DeleteRecord(ctx context.Context, id string) error {
	if err := e.subres.DeleteLocation(ctx, id); err != nil {
		e.report(OpDelete, id, err)
		return err
	}
	return nil
}

// AddComment appends a comment to a location.
func (e *Engine) AddComment(ctx context.Context, id, text string) error {
	if err := e.subres.AddComment(ctx, id, text); err != nil {
		e.report(OpAddComment, id, err)
		return err
	}
	return nil
}

// AddPhoto uploads a photo and attaches it to a location.
func (e *Engine) AddPhoto(ctx context.Context, id string, up subresource.PhotoUpload) (location.Photo, error) {
	p, err := e.subres.AddPhoto(ctx, id, up)
	if err != nil {
		e.report(OpAddPhoto, id, err)
		return location.Photo{}, err
	}
	return p, nil
}

// DeletePhoto deletes the named photo from a location.
func (e *Engine) DeletePhoto(ctx context.Context, id, name string) error {
	photos, err := e.subres.Photos(id)
	if err != nil {
		e.report(OpDeletePhoto, id, err)
		return err
	}
	var target *location.Photo
	for i := range photos {
		if photos[i].Name == name {
			target = &photos[i]
			break
		}
	}
	if target == nil {
		err := fmt.Errorf("%w: %q", ErrUnknownPhoto, name)
		e.report(OpDeletePhoto, id, err)
		return err
	}

	if err := e.subres.DeletePhoto(ctx, id, *target); err != nil {
		e.report(OpDeletePhoto, id, err)
		return err
	}
	return nil
}

// Photos returns a location's photo list, including optimistic entries.
func (e *Engine) Photos(id string) ([]location.Photo, error) {
	photos, err := e.subres.Photos(id)
	if err != nil {
		e.report(OpListPhotos, id, err)
		return nil, err
	}
	return photos, nil
}

// onSnapshot derives the list and the clusters from snap under pubMu, so no
// frame pairs one snapshot's list with another's clusters.
func (e *Engine) onSnapshot(snap replica.Snapshot) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	e.views.Apply(snap.Locations)

	start := time.Now()
	e.clusters.Rebuild(snap.Locations)
	e.metrics.observeClusterRebuild(time.Since(start).Seconds())
	e.metrics.snapshotApplied(len(snap.Locations))

	e.publishLocked()
}

func (e *Engine) onCamera(cam mapview.Camera) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	e.clusters.SetZoom(cam.Zoom)
	e.publishLocked()
}

func (e *Engine) publish() {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()
	e.publishLocked()
}

func (e *Engine) publishLocked() {
	e.version++
	vm := e.projectLocked()

	e.lmu.RLock()
	listeners := e.viewListeners
	e.lmu.RUnlock()
	for _, fn := range listeners {
		fn(vm)
	}
}

func (e *Engine) projectLocked() ViewModel {
	page := e.views.ActiveList()
	items := make([]ListItem, len(page.Items))
	for i, rec := range page.Items {
		items[i] = ListItem{
			ID:          rec.ID,
			Name:        rec.Name,
			Description: rec.Description,
			Country:     rec.Country,
			Coordinates: rec.Coordinates,
			Comments:    append([]location.Comment{}, rec.Comments...),
			PhotoCount:  len(rec.Photos),
			CanUpload:   len(rec.Photos) < location.MaxPhotos,
		}
	}
	return ViewModel{
		Tabs:      e.views.Tabs(),
		Active:    page.Key,
		Page:      page.Page,
		PageCount: page.PageCount,
		Items:     items,
		Camera:    e.mapv.Camera(),
		Clusters:  e.clusters.Layer(),
		Version:   e.version,
	}
}

func (e *Engine) report(op, locationID string, err error) {
	kind := syncerr.Kind(err)
	e.metrics.incNotice(kind)

	level := slog.LevelWarn
	if errors.Is(err, syncerr.ErrValidation) {
		level = slog.LevelInfo
	}
	e.logger.Log(context.Background(), level, "command failed",
		slog.String("op", op),
		slog.String("kind", kind),
		slog.String("location_id", locationID),
		slog.String("error", err.Error()),
	)

	n := Notice{
		Kind:       kind,
		Op:         op,
		Message:    err.Error(),
		LocationID: locationID,
		At:         time.Now().UTC(),
	}
	e.lmu.RLock()
	listeners := e.noticeListeners
	e.lmu.RUnlock()
	for _, fn := range listeners {
		fn(n)
	}
}
