package engine

import (
	"context"
	"errors"

	"github.com/onnwee/locamap/internal/geocode"
	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/syncerr"
)

// countingGeocoder records the outcome of every geocoding call.
type countingGeocoder struct {
	next    geocode.Service
	metrics *Metrics
}

func (g countingGeocoder) Resolve(ctx context.Context, text string) (geocode.Result, error) {
	res, err := g.next.Resolve(ctx, text)
	g.metrics.incGeocode(outcome(err))
	return res, err
}

func (g countingGeocoder) Reverse(ctx context.Context, p location.Point) (string, error) {
	country, err := g.next.Reverse(ctx, p)
	g.metrics.incGeocode(outcome(err))
	return country, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, syncerr.ErrGeocodeNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}
