// Package blobstore stores photo bytes by path and hands back a durable URL.
package blobstore

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// ErrInvalidPath is returned for an empty path or one with empty segments.
var ErrInvalidPath = errors.New("invalid blob path")

// Store is the binary object store collaborator.
type Store interface {
	// Put writes data at path, overwriting any existing object, and returns
	// the object's durable URL.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)

	// Delete removes the object at path. A missing object is not an error.
	Delete(ctx context.Context, path string) error
}

// PhotoPath is the storage path of a location photo.
func PhotoPath(locationID, name string) string {
	return "locations/" + locationID + "/photos/" + name
}

func checkPath(path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidPath
		}
	}
	return nil
}

// escapePath URL-escapes each segment of path, keeping the separators.
func escapePath(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
