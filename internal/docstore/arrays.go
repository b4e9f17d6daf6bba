package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// arrayUnion appends value to doc[field] unless a JSON-equal element exists.
// It returns the rewritten document and whether anything changed.
func arrayUnion(doc []byte, field string, value any) ([]byte, bool, error) {
	return editArray(doc, field, value, func(elems []json.RawMessage, v []byte) ([]json.RawMessage, bool) {
		for _, e := range elems {
			if jsonEqual(e, v) {
				return elems, false
			}
		}
		return append(elems, json.RawMessage(v)), true
	})
}

// arrayRemove deletes every element of doc[field] JSON-equal to value.
func arrayRemove(doc []byte, field string, value any) ([]byte, bool, error) {
	return editArray(doc, field, value, func(elems []json.RawMessage, v []byte) ([]json.RawMessage, bool) {
		kept := elems[:0]
		for _, e := range elems {
			if !jsonEqual(e, v) {
				kept = append(kept, e)
			}
		}
		return kept, len(kept) != len(elems)
	})
}

func editArray(doc []byte, field string, value any, edit func([]json.RawMessage, []byte) ([]json.RawMessage, bool)) ([]byte, bool, error) {
	if !validField(field) {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, false, fmt.Errorf("decode document: %w", err)
	}

	var elems []json.RawMessage
	if raw, ok := fields[field]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", field, err)
		}
	}
	if elems == nil {
		elems = []json.RawMessage{}
	}

	v, err := json.Marshal(value)
	if err != nil {
		return nil, false, fmt.Errorf("encode value: %w", err)
	}

	elems, changed := edit(elems, v)
	if !changed {
		return doc, false, nil
	}

	arr, err := json.Marshal(elems)
	if err != nil {
		return nil, false, fmt.Errorf("encode %s: %w", field, err)
	}
	fields[field] = arr

	out, err := json.Marshal(fields)
	if err != nil {
		return nil, false, fmt.Errorf("encode document: %w", err)
	}
	return out, true, nil
}

// jsonEqual compares two JSON values structurally, so key order and
// whitespace do not matter.
func jsonEqual(a, b []byte) bool {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	ca, errA := json.Marshal(va)
	cb, errB := json.Marshal(vb)
	return errA == nil && errB == nil && bytes.Equal(ca, cb)
}
