// Package geocode resolves free-text addresses to a coordinate and bounding
// box, reverse-resolves coordinates to a country, and reads the device
// position.
package geocode

import (
	"context"
	"fmt"

	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/syncerr"
)

// Errors returned by Service implementations.
var (
	ErrNotFound      = fmt.Errorf("%w: no geocoding result", syncerr.ErrGeocodeNotFound)
	ErrNotConfigured = fmt.Errorf("%w: geocoder not configured", syncerr.ErrGeocodeFailed)
)

// Bounds is the bounding box of a geocoding result.
type Bounds struct {
	SouthWest location.Point `json:"southwest"`
	NorthEast location.Point `json:"northeast"`
}

// Result is a forward geocoding match.
type Result struct {
	Center    location.Point `json:"center"`
	Bounds    Bounds         `json:"bounds"`
	Formatted string         `json:"formatted,omitempty"`
}

// Service is the geocoding collaborator.
type Service interface {
	// Resolve returns the best match for text, or ErrNotFound.
	Resolve(ctx context.Context, text string) (Result, error)

	// Reverse returns the country at the given point, or ErrNotFound.
	Reverse(ctx context.Context, p location.Point) (string, error)
}

// Disabled is used when no geocoding provider is configured. Every call
// fails with ErrNotConfigured.
type Disabled struct{}

func (Disabled) Resolve(context.Context, string) (Result, error) {
	return Result{}, ErrNotConfigured
}

func (Disabled) Reverse(context.Context, location.Point) (string, error) {
	return "", ErrNotConfigured
}
