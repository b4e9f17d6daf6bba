package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/onnwee/locamap/internal/location"
)

// Memory is an in-process Channel. Used for testing and development.
// Snapshots are delivered synchronously, after the mutation that caused them
// and before the mutating call returns.
type Memory struct {
	mu      sync.Mutex
	records []location.Location
	subs    map[*memorySubscription]struct{}

	// deliverMu keeps deliveries in mutation order when writers race.
	deliverMu sync.Mutex
}

// NewMemory creates an empty in-memory channel.
func NewMemory() *Memory {
	return &Memory{subs: make(map[*memorySubscription]struct{})}
}

type memorySubscription struct {
	m          *Memory
	onSnapshot SnapshotFunc

	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.m.mu.Lock()
	delete(s.m.subs, s)
	s.m.mu.Unlock()
	return nil
}

func (s *memorySubscription) deliver(records []location.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onSnapshot(records)
}

// Subscribe registers onSnapshot and delivers the current collection.
func (m *Memory) Subscribe(ctx context.Context, onSnapshot SnapshotFunc, _ ErrorFunc) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memorySubscription{m: m, onSnapshot: onSnapshot}

	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	m.subs[sub] = struct{}{}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	sub.deliver(snap)
	return sub, nil
}

// Create stores a new document with a random id.
func (m *Memory) Create(ctx context.Context, fields location.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	m.mutate(func() error {
		m.records = append(m.records, location.NewLocation(id, fields))
		return nil
	})
	return id, nil
}

// Delete removes a document if present.
func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.mutate(func() error {
		for i := range m.records {
			if m.records[i].ID == id {
				m.records = append(m.records[:i:i], m.records[i+1:]...)
				return nil
			}
		}
		return errUnchanged
	})
}

// AppendToArrayField adds a Comment or Photo unless an equal one exists.
func (m *Memory) AppendToArrayField(ctx context.Context, id, field string, value any) error {
	return m.editArray(ctx, id, field, value, true)
}

// RemoveFromArrayField removes every equal Comment or Photo.
func (m *Memory) RemoveFromArrayField(ctx context.Context, id, field string, value any) error {
	return m.editArray(ctx, id, field, value, false)
}

// Len returns the number of stored documents.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Get returns a copy of the stored document.
func (m *Memory) Get(id string) (location.Location, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return location.Location{}, false
}

// Put replaces or inserts a full document, as another client would.
func (m *Memory) Put(loc location.Location) {
	m.mutate(func() error {
		for i := range m.records {
			if m.records[i].ID == loc.ID {
				m.records[i] = loc.Clone()
				return nil
			}
		}
		m.records = append(m.records, loc.Clone())
		return nil
	})
}

func (m *Memory) editArray(ctx context.Context, id, field string, value any, add bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !validField(field) {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return m.mutate(func() error {
		idx := -1
		for i := range m.records {
			if m.records[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		rec := m.records[idx].Clone()

		switch field {
		case location.FieldComments:
			c, ok := value.(location.Comment)
			if !ok {
				return fmt.Errorf("comments: unexpected value type %T", value)
			}
			var changed bool
			rec.Comments, changed = editSlice(rec.Comments, c, add)
			if !changed {
				return errUnchanged
			}
		case location.FieldPhotos:
			p, ok := value.(location.Photo)
			if !ok {
				return fmt.Errorf("photos: unexpected value type %T", value)
			}
			var changed bool
			rec.Photos, changed = editSlice(rec.Photos, p, add)
			if !changed {
				return errUnchanged
			}
		}
		m.records[idx] = rec
		return nil
	})
}

func editSlice[T comparable](s []T, v T, add bool) ([]T, bool) {
	if add {
		for _, e := range s {
			if e == v {
				return s, false
			}
		}
		return append(s, v), true
	}
	kept := make([]T, 0, len(s))
	for _, e := range s {
		if e != v {
			kept = append(kept, e)
		}
	}
	return kept, len(kept) != len(s)
}

// errUnchanged signals a successful no-op mutation that must not notify.
var errUnchanged = errors.New("unchanged")

// mutate applies fn under the store lock and, when it changed something,
// delivers the new snapshot to every subscriber.
func (m *Memory) mutate(fn func() error) error {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	err := fn()
	if errors.Is(err, errUnchanged) {
		m.mu.Unlock()
		return nil
	}
	if err != nil {
		m.mu.Unlock()
		return err
	}
	snap := m.snapshotLocked()
	subs := make([]*memorySubscription, 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.deliver(cloneAll(snap))
	}
	return nil
}

func (m *Memory) snapshotLocked() []location.Location {
	return cloneAll(m.records)
}

func cloneAll(records []location.Location) []location.Location {
	out := make([]location.Location, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
