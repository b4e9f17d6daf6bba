// Package cluster groups location markers for rendering. The layer is
// rebuilt from scratch on every replica change or zoom change; nothing from
// a previous build survives into the next one.
package cluster

import (
	"sync"

	"github.com/golang/geo/r3"
	"github.com/golang/geo/s2"

	"github.com/onnwee/locamap/internal/location"
)

// DefaultZoom is the rendering zoom used until SetZoom is called.
const DefaultZoom = 15

// Marker is a value copy of the fields a map pin needs.
type Marker struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Point location.Point `json:"point"`
}

// Bounds is a latitude/longitude rectangle.
type Bounds struct {
	SouthWest location.Point `json:"southwest"`
	NorthEast location.Point `json:"northeast"`
}

// Cluster is a group of markers sharing a geohash cell at the layer's zoom.
type Cluster struct {
	Key     string         `json:"key"`
	Center  location.Point `json:"center"`
	Bounds  Bounds         `json:"bounds"`
	Markers []Marker       `json:"markers"`
}

// Count returns the number of markers in the cluster.
func (c Cluster) Count() int { return len(c.Markers) }

// Layer is one complete build.
type Layer struct {
	Zoom       int       `json:"zoom"`
	Generation uint64    `json:"generation"`
	Clusters   []Cluster `json:"clusters"`
}

// Clusterer keeps the latest markers and the layer built from them.
type Clusterer struct {
	mu      sync.RWMutex
	zoom    int
	markers []Marker
	layer   Layer
}

// New returns a clusterer with an empty layer at DefaultZoom.
func New() *Clusterer {
	return &Clusterer{
		zoom:  DefaultZoom,
		layer: Layer{Zoom: DefaultZoom, Clusters: []Cluster{}},
	}
}

// Rebuild discards the current layer and builds a new one from records.
func (c *Clusterer) Rebuild(records []location.Location) Layer {
	markers := make([]Marker, len(records))
	for i, r := range records {
		markers[i] = Marker{ID: r.ID, Name: r.Name, Point: r.Coordinates}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers = markers
	return c.buildLocked()
}

// SetZoom changes the rendering zoom and rebuilds if it differs.
func (c *Clusterer) SetZoom(zoom int) Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if zoom == c.zoom {
		return c.layer
	}
	c.zoom = zoom
	return c.buildLocked()
}

// Layer returns the current layer.
func (c *Clusterer) Layer() Layer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.layer
}

func (c *Clusterer) buildLocked() Layer {
	c.layer = Layer{
		Zoom:       c.zoom,
		Generation: c.layer.Generation + 1,
		Clusters:   Build(c.markers, c.zoom),
	}
	return c.layer
}

// Build groups markers by geohash cell at zoom. Clusters appear in order of
// their first marker.
func Build(markers []Marker, zoom int) []Cluster {
	precision := PrecisionForZoom(zoom)
	index := make(map[string]int)
	clusters := []Cluster{}

	for _, m := range markers {
		key := Encode(m.Point.Lat, m.Point.Lng, precision)
		i, ok := index[key]
		if !ok {
			i = len(clusters)
			index[key] = i
			clusters = append(clusters, Cluster{Key: key})
		}
		clusters[i].Markers = append(clusters[i].Markers, m)
	}

	for i := range clusters {
		clusters[i].Center, clusters[i].Bounds = summarize(clusters[i].Markers)
	}
	return clusters
}

// summarize computes the spherical centroid and bounding rectangle.
func summarize(markers []Marker) (location.Point, Bounds) {
	if len(markers) == 1 {
		p := markers[0].Point
		return p, Bounds{SouthWest: p, NorthEast: p}
	}

	var sum r3.Vector
	rect := s2.EmptyRect()
	for _, m := range markers {
		ll := s2.LatLngFromDegrees(m.Point.Lat, m.Point.Lng)
		sum = sum.Add(s2.PointFromLatLng(ll).Vector)
		rect = rect.AddPoint(ll)
	}

	center := markers[0].Point
	if sum.Norm() > 0 {
		ll := s2.LatLngFromPoint(s2.Point{Vector: sum.Normalize()})
		center = location.Point{Lat: ll.Lat.Degrees(), Lng: ll.Lng.Degrees()}
	}

	lo, hi := rect.Lo(), rect.Hi()
	return center, Bounds{
		SouthWest: location.Point{Lat: lo.Lat.Degrees(), Lng: lo.Lng.Degrees()},
		NorthEast: location.Point{Lat: hi.Lat.Degrees(), Lng: hi.Lng.Degrees()},
	}
}
