// Package replica holds the local, authoritative copy of the shared location
// collection and publishes a change event every time it is replaced.
package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/onnwee/locamap/internal/docstore"
	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/syncerr"
)

// ErrAlreadyStarted is returned by Start on a store that is already
// subscribed or has been stopped.
var ErrAlreadyStarted = errors.New("replica already started")

// Snapshot is one immutable version of the replica. Locations must be
// treated as read-only; use Store.Get for a copy that can be modified.
type Snapshot struct {
	Version   uint64
	Locations []location.Location
}

// Listener is called with every new snapshot, in the order snapshots are
// applied. Listeners run synchronously and must not call back into
// OnSnapshot or Patch.
type Listener func(Snapshot)

// Store owns the local replica. It is the only writer of the location list:
// remote snapshots replace it wholesale and the two optimistic photo paths
// go through Patch.
type Store struct {
	ch     docstore.Channel
	logger *slog.Logger

	current atomic.Pointer[Snapshot]

	// applyMu serializes snapshot replacement and listener dispatch.
	applyMu   sync.Mutex
	stopped   bool
	listeners []Listener

	subMu   sync.Mutex
	sub     docstore.Subscription
	started bool

	onError func(error)

	// channelFailing is set by the first channel error and cleared by the
	// next remote snapshot; errors in between are only logged.
	errMu          sync.Mutex
	channelFailing bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithErrorHandler receives non-fatal errors reported by the channel after
// the subscription is established. A run of consecutive errors is handed
// over once, until a snapshot arrives again.
func WithErrorHandler(fn func(error)) Option {
	return func(s *Store) { s.onError = fn }
}

// New creates an empty replica over ch. Call Start to subscribe.
func New(ch docstore.Channel, opts ...Option) *Store {
	s := &Store{ch: ch, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&Snapshot{Locations: []location.Location{}})
	return s
}

// Start subscribes to the channel. On failure the replica stays empty and
// the returned error wraps syncerr.ErrConnectivity; Start may be retried.
func (s *Store) Start(ctx context.Context) error {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	sub, err := s.ch.Subscribe(ctx, s.OnSnapshot, s.reportError)
	if err != nil {
		s.started = false
		s.logger.Error("replica subscription failed", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", syncerr.ErrConnectivity, err)
	}
	s.sub = sub
	s.logger.Info("replica subscribed")
	return nil
}

// Stop releases the subscription. Snapshots arriving after Stop returns are
// ignored.
func (s *Store) Stop() error {
	s.applyMu.Lock()
	s.stopped = true
	s.applyMu.Unlock()

	s.subMu.Lock()
	sub := s.sub
	s.sub = nil
	s.subMu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Close(); err != nil {
		return fmt.Errorf("close subscription: %w", err)
	}
	s.logger.Info("replica unsubscribed")
	return nil
}

func (s *Store) reportError(err error) {
	s.logger.Warn("replica channel error", slog.String("error", err.Error()))

	s.errMu.Lock()
	first := !s.channelFailing
	s.channelFailing = true
	s.errMu.Unlock()

	if first && s.onError != nil {
		s.onError(fmt.Errorf("%w: %w", syncerr.ErrConnectivity, err))
	}
}

// OnSnapshot replaces the whole replica with records and notifies listeners.
// The store takes ownership of records.
func (s *Store) OnSnapshot(records []location.Location) {
	if records == nil {
		records = []location.Location{}
	}
	s.errMu.Lock()
	s.channelFailing = false
	s.errMu.Unlock()

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if s.stopped {
		return
	}
	s.publishLocked(records)
}

// Patch applies an optimistic local edit to the record with the given id.
// fn receives a private copy and reports whether it changed anything. The
// next remote snapshot replaces the patched state regardless.
func (s *Store) Patch(id string, fn func(*location.Location) bool) bool {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if s.stopped {
		return false
	}

	cur := s.current.Load().Locations
	for i := range cur {
		if cur[i].ID != id {
			continue
		}
		rec := cur[i].Clone()
		if !fn(&rec) {
			return false
		}
		next := make([]location.Location, len(cur))
		copy(next, cur)
		next[i] = rec
		s.publishLocked(next)
		return true
	}
	return false
}

func (s *Store) publishLocked(records []location.Location) {
	snap := &Snapshot{
		Version:   s.current.Load().Version + 1,
		Locations: records,
	}
	s.current.Store(snap)
	for _, l := range s.listeners {
		l(*snap)
	}
}

// OnChange registers a listener for subsequent snapshots.
func (s *Store) OnChange(l Listener) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Snapshot returns the current replica.
func (s *Store) Snapshot() Snapshot {
	return *s.current.Load()
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (location.Location, bool) {
	for _, l := range s.current.Load().Locations {
		if l.ID == id {
			return l.Clone(), true
		}
	}
	return location.Location{}, false
}

// Create forwards to the channel. The replica changes only when the
// resulting snapshot arrives.
func (s *Store) Create(ctx context.Context, fields location.Fields) (string, error) {
	id, err := s.ch.Create(ctx, fields)
	if err != nil {
		return "", fmt.Errorf("%w: create: %w", syncerr.ErrWrite, err)
	}
	return id, nil
}

// Delete forwards to the channel without touching the local replica.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.ch.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete %s: %w", syncerr.ErrWrite, id, err)
	}
	return nil
}
