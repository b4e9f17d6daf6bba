// Package syncerr defines the failure taxonomy shared by the synchronization
// engine. Component errors wrap one of these sentinels so that callers can
// classify any failure with errors.Is or Kind.
package syncerr

import "errors"

// Taxonomy sentinels.
var (
	// ErrConnectivity means the live subscription could not be established.
	ErrConnectivity = errors.New("subscription failed")

	// ErrWrite means a create, delete, append or remove against the record store failed.
	ErrWrite = errors.New("record write failed")

	// ErrBlobWrite means an object-store upload failed.
	ErrBlobWrite = errors.New("blob write failed")

	// ErrBlobDelete means an object-store delete failed.
	ErrBlobDelete = errors.New("blob delete failed")

	// ErrGeocodeNotFound means a forward or reverse lookup produced no result.
	ErrGeocodeNotFound = errors.New("location not found")

	// ErrGeocodeFailed means a forward or reverse lookup could not be performed.
	ErrGeocodeFailed = errors.New("geocode failed")

	// ErrValidation means the command was rejected before any network call.
	ErrValidation = errors.New("validation rejected")
)

// Kind names, as reported to users and in metrics labels.
const (
	KindConnectivity    = "ConnectivitySubscriptionFailed"
	KindWrite           = "WriteFailed"
	KindBlobWrite       = "BlobWriteFailed"
	KindBlobDelete      = "BlobDeleteFailed"
	KindGeocodeNotFound = "GeocodeNotFound"
	KindGeocodeFailed   = "GeocodeFailed"
	KindValidation      = "ValidationRejected"
	KindUnknown         = "Unknown"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrValidation, KindValidation},
	{ErrConnectivity, KindConnectivity},
	{ErrBlobWrite, KindBlobWrite},
	{ErrBlobDelete, KindBlobDelete},
	{ErrGeocodeNotFound, KindGeocodeNotFound},
	{ErrGeocodeFailed, KindGeocodeFailed},
	{ErrWrite, KindWrite},
}

// Kind returns the taxonomy name for err, or KindUnknown when err does not
// wrap any taxonomy sentinel. A nil error yields the empty string.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// IsUserVisible reports whether err should be shown to the user immediately
// (validation and not-found) rather than as a transient notice.
func IsUserVisible(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrGeocodeNotFound)
}
