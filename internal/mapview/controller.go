// Package mapview owns the map camera: center, zoom and the optional
// boundary overlay drawn after an address search.
package mapview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"

	"github.com/onnwee/locamap/internal/geocode"
	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/syncerr"
)

// Camera defaults.
const (
	DefaultZoom     = 15
	FocusedZoom     = 20
	DefaultDebounce = 500 * time.Millisecond
)

// DefaultCenter is Seoul City Hall.
var DefaultCenter = location.Point{Lat: 37.5666791, Lng: 126.9782914}

// ErrEmptySearch is returned synchronously for blank search text.
var ErrEmptySearch = fmt.Errorf("%w: search text is empty", syncerr.ErrValidation)

// Camera is the map's view state.
type Camera struct {
	Center   location.Point `json:"center"`
	Zoom     int            `json:"zoom"`
	Boundary *Boundary      `json:"boundary,omitempty"`
}

// Config wires a Controller.
type Config struct {
	Geocoder geocode.Service
	Locator  geocode.DeviceLocator

	// Debounce is the trailing quiet period for Search. Zero means
	// DefaultDebounce.
	Debounce time.Duration

	// SearchTimeout bounds a single geocode call. Zero means 10s.
	SearchTimeout time.Duration

	// OnChange is called with the new camera after every change, in change
	// order. It must not call back into the controller's mutating methods.
	OnChange func(Camera)

	// OnSearchError receives the outcome of a failed search, after the
	// debounce fires. The camera is unchanged when it is called.
	OnSearchError func(text string, err error)

	Logger *slog.Logger
}

// Controller reacts to MoveToRecord, Search and UseDeviceLocation.
type Controller struct {
	cfg       Config
	debounced func(func())

	// dispatchMu keeps OnChange calls in the order the camera changed.
	dispatchMu sync.Mutex

	mu       sync.Mutex
	camera   Camera
	gen      uint64
	inFlight context.CancelFunc
	closed   bool
}

// NewController returns a controller at the default camera.
func NewController(cfg Config) *Controller {
	if cfg.Geocoder == nil {
		cfg.Geocoder = geocode.Disabled{}
	}
	if cfg.Locator == nil {
		cfg.Locator = geocode.Unsupported{}
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		cfg:       cfg,
		debounced: debounce.New(cfg.Debounce),
		camera:    Camera{Center: DefaultCenter, Zoom: DefaultZoom},
	}
}

// Camera returns the current camera.
func (c *Controller) Camera() Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.camera
}

// MoveToRecord centers on rec at FocusedZoom. The boundary overlay is kept.
func (c *Controller) MoveToRecord(rec location.Location) Camera {
	return c.update(func(cam *Camera) {
		cam.Center = rec.Coordinates
		cam.Zoom = FocusedZoom
	})
}

// Search schedules a geocode of text after the debounce period. A later
// call within the period replaces this one, and a result that arrives after
// a newer search was issued is dropped.
func (c *Controller) Search(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptySearch
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.debounced(func() { c.runSearch(gen, text) })
	return nil
}

func (c *Controller) runSearch(gen uint64, text string) {
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.inFlight != nil {
		c.inFlight()
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.SearchTimeout)
	c.inFlight = cancel
	c.mu.Unlock()
	defer cancel()

	res, err := c.cfg.Geocoder.Resolve(ctx, text)
	var boundary *Boundary
	if err == nil {
		boundary, err = NewBoundary(res.Bounds)
	}
	if err != nil {
		c.searchFailed(gen, text, err)
		return
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.camera.Center = res.Center
	c.camera.Boundary = boundary
	cam := c.camera
	c.mu.Unlock()

	if c.cfg.OnChange != nil {
		c.cfg.OnChange(cam)
	}
}

func (c *Controller) searchFailed(gen uint64, text string, err error) {
	c.mu.Lock()
	stale := c.closed || gen != c.gen
	c.mu.Unlock()
	if stale {
		return
	}

	if !errors.Is(err, syncerr.ErrGeocodeNotFound) && !errors.Is(err, syncerr.ErrGeocodeFailed) {
		err = fmt.Errorf("%w: %w", syncerr.ErrGeocodeFailed, err)
	}
	c.cfg.Logger.Info("search failed", slog.String("error", err.Error()))
	if c.cfg.OnSearchError != nil {
		c.cfg.OnSearchError(text, err)
	}
}

// UseDeviceLocation centers on the device position. On failure the camera
// is unchanged and the error is returned.
func (c *Controller) UseDeviceLocation(ctx context.Context) (Camera, error) {
	p, err := c.cfg.Locator.Locate(ctx)
	if err != nil {
		return c.Camera(), fmt.Errorf("device location: %w", err)
	}
	if err := p.Validate(); err != nil {
		return c.Camera(), fmt.Errorf("device location: %w", err)
	}
	return c.update(func(cam *Camera) { cam.Center = p }), nil
}

func (c *Controller) update(fn func(*Camera)) Camera {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	fn(&c.camera)
	cam := c.camera
	c.mu.Unlock()

	if c.cfg.OnChange != nil {
		c.cfg.OnChange(cam)
	}
	return cam
}

// Close drops any pending search and cancels one in flight.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.gen++
	if c.inFlight != nil {
		c.inFlight()
		c.inFlight = nil
	}
}
