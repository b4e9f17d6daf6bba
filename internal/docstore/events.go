package docstore

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Change operations carried on the events channel.
const (
	OpCreate = "create"
	OpDelete = "delete"
	OpAppend = "append"
	OpRemove = "remove"
)

// ChangeEvent is published alongside every mutation. Subscribers treat it
// as a wake-up signal and reload the full collection; the payload is kept
// for logging and debugging.
type ChangeEvent struct {
	Op    string `cbor:"1,keyasint"`
	ID    string `cbor:"2,keyasint"`
	Field string `cbor:"3,keyasint,omitempty"`
	At    int64  `cbor:"4,keyasint"` // unix milliseconds
}

var eventEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encode mode: %v", err))
	}
	return em
}()

// EncodeEvent serializes a change event in deterministic CBOR.
func EncodeEvent(e ChangeEvent) ([]byte, error) {
	b, err := eventEncMode.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode change event: %w", err)
	}
	return b, nil
}

// DecodeEvent parses a change event.
func DecodeEvent(b []byte) (ChangeEvent, error) {
	var e ChangeEvent
	if err := cbor.Unmarshal(b, &e); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	return e, nil
}
