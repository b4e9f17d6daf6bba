package mapview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/locamap/internal/geocode"
	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/syncerr"
)

// fakeGeocoder answers from a table and records every call.
type fakeGeocoder struct {
	mu      sync.Mutex
	calls   []string
	results map[string]geocode.Result
	started chan string

	// block, when set, holds a query until it is closed or ctx ends.
	block map[string]chan struct{}
}

func (f *fakeGeocoder) Resolve(ctx context.Context, text string) (geocode.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	gate := f.block[text]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- text
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return geocode.Result{}, fmt.Errorf("%w: %w", syncerr.ErrGeocodeFailed, ctx.Err())
		}
	}
	res, ok := f.results[text]
	if !ok {
		return geocode.Result{}, geocode.ErrNotFound
	}
	return res, nil
}

func (f *fakeGeocoder) Reverse(context.Context, location.Point) (string, error) {
	return "", geocode.ErrNotFound
}

func (f *fakeGeocoder) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

var seoul = geocode.Result{
	Center: location.Point{Lat: 37.57, Lng: 126.98},
	Bounds: geocode.Bounds{
		SouthWest: location.Point{Lat: 37.4, Lng: 126.8},
		NorthEast: location.Point{Lat: 37.7, Lng: 127.2},
	},
}

var busan = geocode.Result{
	Center: location.Point{Lat: 35.18, Lng: 129.08},
	Bounds: geocode.Bounds{
		SouthWest: location.Point{Lat: 35.0, Lng: 128.9},
		NorthEast: location.Point{Lat: 35.3, Lng: 129.3},
	},
}

type harness struct {
	ctrl    *Controller
	changes chan Camera
	errs    chan error
}

func newHarness(t *testing.T, g geocode.Service, loc geocode.DeviceLocator, debounce time.Duration) *harness {
	t.Helper()
	h := &harness{changes: make(chan Camera, 16), errs: make(chan error, 16)}
	h.ctrl = NewController(Config{
		Geocoder:      g,
		Locator:       loc,
		Debounce:      debounce,
		OnChange:      func(c Camera) { h.changes <- c },
		OnSearchError: func(_ string, err error) { h.errs <- err },
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) nextChange(t *testing.T) Camera {
	t.Helper()
	select {
	case c := <-h.changes:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for camera change")
		return Camera{}
	}
}

func TestController_Defaults(t *testing.T) {
	h := newHarness(t, nil, nil, 0)
	cam := h.ctrl.Camera()
	if cam.Center != DefaultCenter || cam.Zoom != DefaultZoom || cam.Boundary != nil {
		t.Errorf("initial camera = %+v", cam)
	}
}

func TestController_MoveToRecord(t *testing.T) {
	h := newHarness(t, nil, nil, 0)

	cam := h.ctrl.MoveToRecord(location.Location{Coordinates: location.Point{Lat: 1, Lng: 2}})
	if cam.Center != (location.Point{Lat: 1, Lng: 2}) || cam.Zoom != FocusedZoom {
		t.Errorf("camera = %+v, want center (1,2) zoom 20", cam)
	}
	if got := h.nextChange(t); got.Zoom != 20 {
		t.Errorf("OnChange zoom = %d", got.Zoom)
	}
}

func TestController_SearchDebounce(t *testing.T) {
	g := &fakeGeocoder{results: map[string]geocode.Result{"Seoul": seoul, "Busan": busan}}
	h := newHarness(t, g, nil, DefaultDebounce)

	if err := h.ctrl.Search("Busan"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := h.ctrl.Search("Seoul"); err != nil {
		t.Fatal(err)
	}

	cam := h.nextChange(t)
	time.Sleep(50 * time.Millisecond)

	if calls := g.callLog(); len(calls) != 1 || calls[0] != "Seoul" {
		t.Fatalf("geocoder calls = %v, want exactly [Seoul]", calls)
	}
	if cam.Center != seoul.Center {
		t.Errorf("center = %+v, want %+v", cam.Center, seoul.Center)
	}
}

func TestController_SearchBoundaryRing(t *testing.T) {
	g := &fakeGeocoder{results: map[string]geocode.Result{"Seoul": seoul}}
	h := newHarness(t, g, nil, 10*time.Millisecond)

	h.ctrl.Search("Seoul")
	cam := h.nextChange(t)

	want := [][2]float64{{126.8, 37.4}, {126.8, 37.7}, {127.2, 37.7}, {127.2, 37.4}, {126.8, 37.4}}
	if cam.Boundary == nil {
		t.Fatal("expected boundary overlay")
	}
	if len(cam.Boundary.Ring) != len(want) {
		t.Fatalf("ring = %v", cam.Boundary.Ring)
	}
	for i := range want {
		if cam.Boundary.Ring[i] != want[i] {
			t.Errorf("ring[%d] = %v, want %v", i, cam.Boundary.Ring[i], want[i])
		}
	}
	if cam.Zoom != DefaultZoom {
		t.Errorf("search must not change zoom, got %d", cam.Zoom)
	}
}

func TestController_SearchNotFoundLeavesCamera(t *testing.T) {
	g := &fakeGeocoder{}
	h := newHarness(t, g, nil, 10*time.Millisecond)
	before := h.ctrl.Camera()

	h.ctrl.Search("Atlantis")
	select {
	case err := <-h.errs:
		if !errors.Is(err, syncerr.ErrGeocodeNotFound) {
			t.Errorf("error = %v, want GeocodeNotFound", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no search error reported")
	}
	if h.ctrl.Camera() != before {
		t.Error("camera changed after failed search")
	}
	if len(h.changes) != 0 {
		t.Error("OnChange called after failed search")
	}
}

func TestController_SupersededSearchIsDropped(t *testing.T) {
	gate := make(chan struct{})
	g := &fakeGeocoder{
		results: map[string]geocode.Result{"Busan": busan, "Seoul": seoul},
		block:   map[string]chan struct{}{"Busan": gate},
		started: make(chan string, 4),
	}
	h := newHarness(t, g, nil, 20*time.Millisecond)

	h.ctrl.Search("Busan")
	if got := <-g.started; got != "Busan" {
		t.Fatalf("started %q", got)
	}

	h.ctrl.Search("Seoul")
	close(gate)

	cam := h.nextChange(t)
	if cam.Center != seoul.Center {
		t.Errorf("center = %+v, want Seoul; stale Busan result was applied", cam.Center)
	}
	time.Sleep(50 * time.Millisecond)
	if len(h.changes) != 0 {
		t.Error("extra camera change from superseded search")
	}
	if len(h.errs) != 0 {
		t.Errorf("superseded search reported an error: %v", <-h.errs)
	}
}

func TestController_EmptySearchRejected(t *testing.T) {
	g := &fakeGeocoder{}
	h := newHarness(t, g, nil, 10*time.Millisecond)

	if err := h.ctrl.Search("   "); !errors.Is(err, syncerr.ErrValidation) {
		t.Errorf("Search(blank) = %v, want validation error", err)
	}
	time.Sleep(30 * time.Millisecond)
	if len(g.callLog()) != 0 {
		t.Error("blank search reached the geocoder")
	}
}

func TestController_MoveKeepsBoundary(t *testing.T) {
	g := &fakeGeocoder{results: map[string]geocode.Result{"Seoul": seoul}}
	h := newHarness(t, g, geocode.StaticLocator{Point: location.Point{Lat: 5, Lng: 6}}, 10*time.Millisecond)

	h.ctrl.Search("Seoul")
	h.nextChange(t)

	cam := h.ctrl.MoveToRecord(location.Location{Coordinates: location.Point{Lat: 1, Lng: 2}})
	if cam.Boundary == nil {
		t.Error("MoveToRecord cleared the boundary")
	}
	cam, err := h.ctrl.UseDeviceLocation(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cam.Boundary == nil {
		t.Error("UseDeviceLocation cleared the boundary")
	}
	if cam.Center != (location.Point{Lat: 5, Lng: 6}) {
		t.Errorf("center = %+v", cam.Center)
	}
}

func TestController_DeviceLocationUnsupported(t *testing.T) {
	h := newHarness(t, nil, geocode.Unsupported{}, 0)
	before := h.ctrl.Camera()

	cam, err := h.ctrl.UseDeviceLocation(context.Background())
	if !errors.Is(err, geocode.ErrLocationUnsupported) {
		t.Errorf("UseDeviceLocation() = %v", err)
	}
	if cam != before {
		t.Error("camera changed")
	}
}

func TestController_CloseDropsPendingSearch(t *testing.T) {
	g := &fakeGeocoder{results: map[string]geocode.Result{"Seoul": seoul}}
	h := newHarness(t, g, nil, 30*time.Millisecond)

	h.ctrl.Search("Seoul")
	h.ctrl.Close()
	time.Sleep(80 * time.Millisecond)

	if len(g.callLog()) != 0 {
		t.Error("pending search ran after Close")
	}
}
