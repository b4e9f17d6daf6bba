// Package location provides the record model shared by the replica, the
// derived views and the remote collaborators.
package location

import (
	"fmt"
	"math"

	"github.com/onnwee/locamap/internal/syncerr"
	"github.com/onnwee/locamap/internal/validate"
)

// Array field names on a Location document.
const (
	FieldComments = "comments"
	FieldPhotos   = "photos"
)

// MaxPhotos is the soft cap on photos per location, enforced before upload.
const MaxPhotos = 3

// ErrInvalidCoordinates is returned for a latitude or longitude out of range.
var ErrInvalidCoordinates = fmt.Errorf("%w: coordinates out of range", syncerr.ErrValidation)

// Point represents a geographic coordinate with latitude and longitude.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate checks that lat is within [-90,90] and lng within [-180,180].
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinates, p.Lat, p.Lng)
	}
	return nil
}

// Comment is a single append-only remark on a location. It has no id;
// identity is its value.
type Comment struct {
	Text string `json:"text"`
}

// Photo references a stored image. Name is both the display label and the
// storage key, unique per location.
type Photo struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// Location is a geotagged record in the shared collection.
type Location struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Country     string    `json:"country"`
	Coordinates Point     `json:"coordinates"`
	Comments    []Comment `json:"comments"`
	Photos      []Photo   `json:"photos"`
}

// Clone returns a deep copy so the caller can mutate slices without touching
// a published replica. The copy's slices are never nil, so they encode as
// empty JSON arrays.
func (l Location) Clone() Location {
	c := l
	c.Comments = append(make([]Comment, 0, len(l.Comments)), l.Comments...)
	c.Photos = append(make([]Photo, 0, len(l.Photos)), l.Photos...)
	return c
}

// HasPhoto reports whether an entry equal to p is present.
func (l Location) HasPhoto(p Photo) bool {
	for _, existing := range l.Photos {
		if existing == p {
			return true
		}
	}
	return false
}

// Fields holds the caller-supplied fields of a new location. The id is
// assigned by the remote store.
type Fields struct {
	Name        string
	Description string
	Country     string
	Coordinates Point
}

// Validate normalizes and checks the fields, returning the cleaned copy.
func (f Fields) Validate() (Fields, error) {
	name, err := validate.LocationName(f.Name)
	if err != nil {
		return Fields{}, fmt.Errorf("name: %w", err)
	}
	desc, err := validate.Description(f.Description)
	if err != nil {
		return Fields{}, fmt.Errorf("description: %w", err)
	}
	if err := f.Coordinates.Validate(); err != nil {
		return Fields{}, err
	}
	f.Name = name
	f.Description = desc
	return f, nil
}

// NewLocation builds the document written on create: empty comments and
// photos, never nil, so the array fields always exist remotely.
func NewLocation(id string, f Fields) Location {
	return Location{
		ID:          id,
		Name:        f.Name,
		Description: f.Description,
		Country:     f.Country,
		Coordinates: f.Coordinates,
		Comments:    []Comment{},
		Photos:      []Photo{},
	}
}
