package geocode

import (
	"context"
	"fmt"

	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/syncerr"
)

// Device location errors. Both are non-fatal and leave the camera unchanged.
var (
	ErrLocationUnsupported = fmt.Errorf("%w: device location unsupported", syncerr.ErrGeocodeNotFound)
	ErrPermissionDenied    = fmt.Errorf("%w: device location permission denied", syncerr.ErrGeocodeNotFound)
)

// DeviceLocator reads the current device position once.
type DeviceLocator interface {
	Locate(ctx context.Context) (location.Point, error)
}

// StaticLocator reports a fixed, configured position.
type StaticLocator struct {
	Point location.Point
}

func (s StaticLocator) Locate(ctx context.Context) (location.Point, error) {
	if err := ctx.Err(); err != nil {
		return location.Point{}, err
	}
	return s.Point, nil
}

// Unsupported is the locator used when no device position is available.
type Unsupported struct{}

func (Unsupported) Locate(context.Context) (location.Point, error) {
	return location.Point{}, ErrLocationUnsupported
}
