package geocode

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/syncerr"
)

func newTestOpenCage(t *testing.T, handler http.HandlerFunc) *OpenCage {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenCage(OpenCageConfig{
		APIKey:        "test-key",
		BaseURL:       srv.URL,
		RatePerSecond: 1000,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		HTTPClient:    srv.Client(),
	})
}

func TestOpenCage_Resolve(t *testing.T) {
	queries := make(chan url.Values, 1)
	oc := newTestOpenCage(t, func(w http.ResponseWriter, r *http.Request) {
		queries <- r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": {"code": 200, "message": "OK"},
			"results": [{
				"formatted": "Seoul, South Korea",
				"geometry": {"lat": 37.57, "lng": 126.98},
				"bounds": {
					"northeast": {"lat": 37.7, "lng": 127.2},
					"southwest": {"lat": 37.4, "lng": 126.8}
				}
			}]
		}`)
	})

	res, err := oc.Resolve(context.Background(), "Seoul")
	if err != nil {
		t.Fatalf("Resolve() unexpected error = %v", err)
	}
	if res.Center != (location.Point{Lat: 37.57, Lng: 126.98}) {
		t.Errorf("Center = %+v", res.Center)
	}
	want := Bounds{SouthWest: location.Point{Lat: 37.4, Lng: 126.8}, NorthEast: location.Point{Lat: 37.7, Lng: 127.2}}
	if res.Bounds != want {
		t.Errorf("Bounds = %+v, want %+v", res.Bounds, want)
	}

	q := <-queries
	if q.Get("q") != "Seoul" || q.Get("key") != "test-key" || q.Get("limit") != "1" {
		t.Errorf("unexpected query %v", q)
	}
}

func TestOpenCage_ResolveWithoutBounds(t *testing.T) {
	oc := newTestOpenCage(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"results":[{"geometry":{"lat":1,"lng":2}}]}`)
	})

	res, err := oc.Resolve(context.Background(), "somewhere")
	if err != nil {
		t.Fatal(err)
	}
	p := location.Point{Lat: 1, Lng: 2}
	if res.Bounds.SouthWest != p || res.Bounds.NorthEast != p {
		t.Errorf("Bounds = %+v, want degenerate box at center", res.Bounds)
	}
}

func TestOpenCage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"no results", http.StatusOK, `{"results":[]}`, syncerr.ErrGeocodeNotFound},
		{"server error", http.StatusInternalServerError, `{}`, syncerr.ErrGeocodeFailed},
		{"quota exceeded", http.StatusPaymentRequired, `{}`, syncerr.ErrGeocodeFailed},
		{"bad json", http.StatusOK, `{`, syncerr.ErrGeocodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oc := newTestOpenCage(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := oc.Resolve(context.Background(), "x")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Resolve() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpenCage_Reverse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{"country code", `{"results":[{"components":{"country":"South Korea","country_code":"kr"}}]}`, "KR", nil},
		{"name fallback", `{"results":[{"components":{"country":"Antarctica"}}]}`, "Antarctica", nil},
		{"ocean", `{"results":[{"components":{}}]}`, "", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queries := make(chan string, 1)
			oc := newTestOpenCage(t, func(w http.ResponseWriter, r *http.Request) {
				queries <- r.URL.Query().Get("q")
				_, _ = io.WriteString(w, tt.body)
			})
			got, err := oc.Reverse(context.Background(), location.Point{Lat: 37.5, Lng: 127})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Reverse() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Reverse() = %q, want %q", got, tt.want)
			}
			if q := <-queries; q != "37.5,127" {
				t.Errorf("query = %q, want 37.5,127", q)
			}
		})
	}
}

func TestOpenCage_MissingKey(t *testing.T) {
	oc := NewOpenCage(OpenCageConfig{})
	if _, err := oc.Resolve(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Resolve() = %v, want ErrNotConfigured", err)
	}
}

func TestOpenCage_CanceledContext(t *testing.T) {
	oc := newTestOpenCage(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"results":[]}`)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := oc.Resolve(ctx, "x"); !errors.Is(err, syncerr.ErrGeocodeFailed) {
		t.Errorf("Resolve() = %v, want ErrGeocodeFailed", err)
	}
}

func TestLocators(t *testing.T) {
	p, err := StaticLocator{Point: location.Point{Lat: 1, Lng: 2}}.Locate(context.Background())
	if err != nil || p.Lat != 1 || p.Lng != 2 {
		t.Errorf("StaticLocator.Locate() = %+v, %v", p, err)
	}
	if _, err := (Unsupported{}).Locate(context.Background()); !errors.Is(err, ErrLocationUnsupported) {
		t.Errorf("Unsupported.Locate() = %v", err)
	}
	if _, err := (Disabled{}).Reverse(context.Background(), location.Point{}); !errors.Is(err, syncerr.ErrGeocodeFailed) {
		t.Errorf("Disabled.Reverse() = %v", err)
	}
}
