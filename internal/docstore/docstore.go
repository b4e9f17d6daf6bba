// Package docstore provides the remote record channel: a live, shared
// collection of location documents that delivers a full ordered snapshot on
// every change and accepts create, delete and array-field writes.
package docstore

import (
	"context"
	"errors"

	"github.com/onnwee/locamap/internal/location"
)

// Store errors.
var (
	ErrNotFound     = errors.New("document not found")
	ErrUnknownField = errors.New("unknown array field")
	ErrTxConflict   = errors.New("transaction retries exhausted")
	ErrClosed       = errors.New("channel closed")
)

// SnapshotFunc receives a complete, ordered listing of the collection. The
// slice is owned by the receiver.
type SnapshotFunc func(records []location.Location)

// ErrorFunc receives non-fatal delivery errors after a subscription is
// established (for example a failed reload while the server is unreachable).
type ErrorFunc func(err error)

// Subscription is a handle on a live query. Close stops delivery; no
// callback runs after Close returns.
type Subscription interface {
	Close() error
}

// Channel is the remote record channel consumed by the replica and the
// sub-resource manager.
type Channel interface {
	// Subscribe starts a live query. It returns an error if the subscription
	// cannot be established; otherwise onSnapshot is invoked with the current
	// collection and again after every remote change, in receipt order.
	Subscribe(ctx context.Context, onSnapshot SnapshotFunc, onError ErrorFunc) (Subscription, error)

	// Create stores a new document and returns its assigned id.
	Create(ctx context.Context, fields location.Fields) (string, error)

	// Delete removes a document. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// AppendToArrayField adds value to the named array unless an equal
	// element is already present.
	AppendToArrayField(ctx context.Context, id, field string, value any) error

	// RemoveFromArrayField removes every element equal to value.
	RemoveFromArrayField(ctx context.Context, id, field string, value any) error
}

// validField reports whether field is one of the document's array fields.
func validField(field string) bool {
	return field == location.FieldComments || field == location.FieldPhotos
}
