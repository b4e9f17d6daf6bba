package mapview

import (
	"encoding/json"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/onnwee/locamap/internal/geocode"
)

// Boundary is the overlay drawn around a search result: a closed five-point
// ring in [lng, lat] order and the same ring as a GeoJSON FeatureCollection.
type Boundary struct {
	Ring    [][2]float64    `json:"ring"`
	GeoJSON json.RawMessage `json:"geojson"`
}

// NewBoundary builds the overlay for a bounding box. The ring runs SW, NW,
// NE, SE and back to SW.
func NewBoundary(b geocode.Bounds) (*Boundary, error) {
	sw, ne := b.SouthWest, b.NorthEast
	coords := []geom.Coord{
		{sw.Lng, sw.Lat},
		{sw.Lng, ne.Lat},
		{ne.Lng, ne.Lat},
		{ne.Lng, sw.Lat},
		{sw.Lng, sw.Lat},
	}

	poly, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{coords})
	if err != nil {
		return nil, fmt.Errorf("boundary polygon: %w", err)
	}

	fc := &geojson.FeatureCollection{
		Features: []*geojson.Feature{{Geometry: poly}},
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, fmt.Errorf("boundary geojson: %w", err)
	}

	ring := make([][2]float64, 0, len(coords))
	for _, c := range poly.LinearRing(0).Coords() {
		ring = append(ring, [2]float64{c.X(), c.Y()})
	}

	return &Boundary{Ring: ring, GeoJSON: data}, nil
}
