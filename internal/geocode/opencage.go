package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/syncerr"
	"github.com/onnwee/locamap/internal/tracing"
)

// DefaultOpenCageURL is the OpenCage forward/reverse endpoint.
const DefaultOpenCageURL = "https://api.opencagedata.com/geocode/v1/json"

const maxResponseBytes = 1 << 20

// OpenCageConfig configures an OpenCage client.
type OpenCageConfig struct {
	APIKey string

	// BaseURL overrides DefaultOpenCageURL.
	BaseURL string

	// RatePerSecond caps outgoing requests. Zero means 1 per second, the
	// free-tier limit.
	RatePerSecond float64

	Timeout time.Duration
	Logger  *slog.Logger

	// HTTPClient overrides the default otelhttp-instrumented client.
	HTTPClient *http.Client
}

// OpenCage is a Service backed by the OpenCage geocoding API.
type OpenCage struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewOpenCage creates an OpenCage client.
func NewOpenCage(cfg OpenCageConfig) *OpenCage {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenCageURL
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &OpenCage{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		logger:     cfg.Logger,
	}
}

type openCageResponse struct {
	Results []openCageResult `json:"results"`
	Status  struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
}

type openCageResult struct {
	Formatted string `json:"formatted"`
	Geometry  struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"geometry"`
	Bounds *struct {
		Northeast openCagePoint `json:"northeast"`
		Southwest openCagePoint `json:"southwest"`
	} `json:"bounds"`
	Components struct {
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"components"`
}

type openCagePoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p openCagePoint) point() location.Point {
	return location.Point{Lat: p.Lat, Lng: p.Lng}
}

// Resolve geocodes text. A result without bounds gets a degenerate box at
// its center.
func (o *OpenCage) Resolve(ctx context.Context, text string) (res Result, err error) {
	ctx, end := tracing.StartSpan(ctx, "geocode.resolve", attribute.String("geocode.provider", "opencage"))
	defer func() { end(err) }()

	r, err := o.query(ctx, text)
	if err != nil {
		return Result{}, err
	}

	center := location.Point{Lat: r.Geometry.Lat, Lng: r.Geometry.Lng}
	res = Result{
		Center:    center,
		Bounds:    Bounds{SouthWest: center, NorthEast: center},
		Formatted: r.Formatted,
	}
	if r.Bounds != nil {
		res.Bounds = Bounds{SouthWest: r.Bounds.Southwest.point(), NorthEast: r.Bounds.Northeast.point()}
	}
	return res, nil
}

// Reverse returns the upper-cased ISO country code at p, falling back to the
// country name when the code is missing.
func (o *OpenCage) Reverse(ctx context.Context, p location.Point) (country string, err error) {
	ctx, end := tracing.StartSpan(ctx, "geocode.reverse", attribute.String("geocode.provider", "opencage"))
	defer func() { end(err) }()

	q := strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lng, 'f', -1, 64)
	r, err := o.query(ctx, q)
	if err != nil {
		return "", err
	}
	if code := strings.ToUpper(r.Components.CountryCode); code != "" {
		return code, nil
	}
	if r.Components.Country != "" {
		return r.Components.Country, nil
	}
	return "", ErrNotFound
}

func (o *OpenCage) query(ctx context.Context, q string) (*openCageResult, error) {
	if o.apiKey == "" {
		return nil, ErrNotConfigured
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit: %w", syncerr.ErrGeocodeFailed, err)
	}

	params := url.Values{
		"q":              {q},
		"key":            {o.apiKey},
		"limit":          {"1"},
		"no_annotations": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", syncerr.ErrGeocodeFailed, err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request: %w", syncerr.ErrGeocodeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		o.logger.Warn("opencage returned error status", slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: opencage returned status %d", syncerr.ErrGeocodeFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", syncerr.ErrGeocodeFailed, err)
	}

	var parsed openCageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", syncerr.ErrGeocodeFailed, err)
	}
	if len(parsed.Results) == 0 {
		return nil, ErrNotFound
	}
	return &parsed.Results[0], nil
}
