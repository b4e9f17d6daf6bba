package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/tracing"
)

const (
	defaultPrefix       = "locamap"
	defaultMaxTxRetries = 8
	defaultReloadTries  = 5
)

// RedisConfig configures a Redis-backed channel.
type RedisConfig struct {
	// Prefix namespaces every key. Defaults to "locamap".
	Prefix string

	// Collection is the name of the shared collection, e.g. "locations".
	Collection string

	// MaxTxRetries bounds optimistic-lock retries on array writes.
	MaxTxRetries int

	// ReloadTries bounds reload attempts after a change notification.
	ReloadTries uint64

	Logger *slog.Logger
}

// Redis is a Channel backed by Redis. Documents are JSON values in a hash,
// creation order is kept in a sorted set scored by a monotonic counter, and
// every write publishes a ChangeEvent on a pub/sub channel. Subscribers
// reload the whole collection on each event, so a snapshot always reflects
// the committed state rather than a replay of deltas.
type Redis struct {
	client     redis.UniversalClient
	collection string
	maxRetries int
	reloads    uint64
	logger     *slog.Logger

	docsKey   string
	orderKey  string
	seqKey    string
	eventsKey string
}

// NewRedis creates a Redis channel over an existing client.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = defaultMaxTxRetries
	}
	if cfg.ReloadTries == 0 {
		cfg.ReloadTries = defaultReloadTries
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	base := cfg.Prefix + ":" + cfg.Collection
	return &Redis{
		client:     client,
		collection: cfg.Collection,
		maxRetries: cfg.MaxTxRetries,
		reloads:    cfg.ReloadTries,
		logger:     cfg.Logger,
		docsKey:    base + ":docs",
		orderKey:   base + ":order",
		seqKey:     base + ":seq",
		eventsKey:  base + ":events",
	}
}

// Subscribe listens on the events channel, delivers the current collection
// and then reloads after every change notification. Bursts of notifications
// that arrive while a reload is running are coalesced into one reload.
func (r *Redis) Subscribe(ctx context.Context, onSnapshot SnapshotFunc, onError ErrorFunc) (Subscription, error) {
	ps := r.client.Subscribe(ctx, r.eventsKey)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.eventsKey, err)
	}

	records, err := r.load(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sub := &redisSubscription{
		ps:     ps,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	onSnapshot(records)
	go r.watch(runCtx, sub, onSnapshot, onError)

	return sub, nil
}

func (r *Redis) watch(ctx context.Context, sub *redisSubscription, onSnapshot SnapshotFunc, onError ErrorFunc) {
	defer close(sub.done)
	ch := sub.ps.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.logEvent(msg)
			if !drain(ch) {
				return
			}
		}

		var records []location.Location
		op := func() error {
			var err error
			records, err = r.load(ctx)
			return err
		}
		b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.reloads), ctx)
		if err := backoff.Retry(op, b); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("collection reload failed", "collection", r.collection, "error", err)
			if onError != nil {
				onError(err)
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
		onSnapshot(records)
	}
}

// drain discards queued notifications. It returns false if ch was closed.
func drain(ch <-chan *redis.Message) bool {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}

func (r *Redis) logEvent(msg *redis.Message) {
	ev, err := DecodeEvent([]byte(msg.Payload))
	if err != nil {
		r.logger.Debug("undecodable change event", "channel", msg.Channel, "error", err)
		return
	}
	r.logger.Debug("change event", "op", ev.Op, "id", ev.ID, "field", ev.Field)
}

type redisSubscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	err    error
}

// Close stops the watcher and waits for it. It must not be called from
// inside a snapshot callback.
func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.ps.Close()
		<-s.done
	})
	return s.err
}

// Create writes a new document with a random id.
func (r *Redis) Create(ctx context.Context, fields location.Fields) (id string, err error) {
	ctx, end := tracing.StartStoreSpan(ctx, "redis", tracing.StoreOpCreate, r.collection)
	defer func() { end(err) }()

	id = uuid.NewString()
	doc, err := json.Marshal(location.NewLocation(id, fields))
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	ev, err := r.event(OpCreate, id, "")
	if err != nil {
		return "", err
	}

	seq, err := r.client.Incr(ctx, r.seqKey).Result()
	if err != nil {
		return "", fmt.Errorf("allocate sequence: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.docsKey, id, doc)
		pipe.ZAdd(ctx, r.orderKey, redis.Z{Score: float64(seq), Member: id})
		pipe.Publish(ctx, r.eventsKey, ev)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create %s: %w", id, err)
	}
	return id, nil
}

// Delete removes a document. A missing id is a silent no-op.
func (r *Redis) Delete(ctx context.Context, id string) (err error) {
	ctx, end := tracing.StartStoreSpan(ctx, "redis", tracing.StoreOpDelete, r.collection)
	defer func() { end(err) }()

	ev, err := r.event(OpDelete, id, "")
	if err != nil {
		return err
	}

	return r.withRetry(ctx, func(tx *redis.Tx) error {
		exists, err := tx.HExists(ctx, r.docsKey, id).Result()
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, r.docsKey, id)
			pipe.ZRem(ctx, r.orderKey, id)
			pipe.Publish(ctx, r.eventsKey, ev)
			return nil
		})
		return err
	})
}

// AppendToArrayField performs an array union on the named field.
func (r *Redis) AppendToArrayField(ctx context.Context, id, field string, value any) (err error) {
	ctx, end := tracing.StartStoreSpan(ctx, "redis", tracing.StoreOpAppend, r.collection)
	defer func() { end(err) }()
	return r.editDoc(ctx, id, field, OpAppend, func(doc []byte) ([]byte, bool, error) {
		return arrayUnion(doc, field, value)
	})
}

// RemoveFromArrayField removes every equal element from the named field.
func (r *Redis) RemoveFromArrayField(ctx context.Context, id, field string, value any) (err error) {
	ctx, end := tracing.StartStoreSpan(ctx, "redis", tracing.StoreOpRemove, r.collection)
	defer func() { end(err) }()
	return r.editDoc(ctx, id, field, OpRemove, func(doc []byte) ([]byte, bool, error) {
		return arrayRemove(doc, field, value)
	})
}

func (r *Redis) editDoc(ctx context.Context, id, field, op string, edit func([]byte) ([]byte, bool, error)) error {
	if !validField(field) {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	ev, err := r.event(op, id, field)
	if err != nil {
		return err
	}

	return r.withRetry(ctx, func(tx *redis.Tx) error {
		doc, err := tx.HGet(ctx, r.docsKey, id).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}

		updated, changed, err := edit(doc)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, r.docsKey, id, updated)
			pipe.Publish(ctx, r.eventsKey, ev)
			return nil
		})
		return err
	})
}

// withRetry runs fn under WATCH on the documents hash, retrying when another
// writer commits first.
func (r *Redis) withRetry(ctx context.Context, fn func(*redis.Tx) error) error {
	for i := 0; i < r.maxRetries; i++ {
		err := r.client.Watch(ctx, fn, r.docsKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrTxConflict
}

func (r *Redis) event(op, id, field string) ([]byte, error) {
	return EncodeEvent(ChangeEvent{Op: op, ID: id, Field: field, At: time.Now().UnixMilli()})
}

// load reads the order index and the documents in one MULTI so the two are
// consistent with each other.
func (r *Redis) load(ctx context.Context) (records []location.Location, err error) {
	ctx, end := tracing.StartStoreSpan(ctx, "redis", tracing.StoreOpRead, r.collection)
	defer func() { end(err) }()

	var (
		order *redis.StringSliceCmd
		docs  *redis.MapStringStringCmd
	)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		order = pipe.ZRange(ctx, r.orderKey, 0, -1)
		docs = pipe.HGetAll(ctx, r.docsKey)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", r.collection, err)
	}

	byID := docs.Val()
	records = make([]location.Location, 0, len(byID))
	for _, id := range order.Val() {
		raw, ok := byID[id]
		if !ok {
			continue
		}
		var loc location.Location
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			r.logger.Warn("skipping undecodable document", "id", id, "error", err)
			continue
		}
		loc.ID = id
		if loc.Comments == nil {
			loc.Comments = []location.Comment{}
		}
		if loc.Photos == nil {
			loc.Photos = []location.Photo{}
		}
		records = append(records, loc)
	}
	tracing.AddEvent(ctx, "snapshot.loaded", attribute.Int("records", len(records)))
	return records, nil
}
