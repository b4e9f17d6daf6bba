package docstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/locamap/internal/location"
)

// newTestRedis connects to REDIS_URL (default localhost:6379) and skips the
// test when no server answers.
func newTestRedis(t *testing.T) *Redis {
	t.Helper()

	opts := &redis.Options{Addr: "localhost:6379"}
	if url := os.Getenv("REDIS_URL"); url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			t.Fatalf("parse REDIS_URL: %v", err)
		}
		opts = parsed
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available: %v", err)
	}

	prefix := "locamap-test-" + uuid.NewString()
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		_ = client.Close()
	})

	return NewRedis(client, RedisConfig{Prefix: prefix, Collection: "locations"})
}

func waitFor(t *testing.T, log *snapshotLog, cond func([]location.Location) bool) []location.Location {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snap := log.last(); snap != nil && cond(snap) {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met; last snapshot = %+v", log.last())
	return nil
}

func TestRedis_CreateAppendDelete(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	var log snapshotLog
	sub, err := r.Subscribe(ctx, log.record, func(err error) { t.Logf("reload error: %v", err) })
	if err != nil {
		t.Fatalf("Subscribe() unexpected error = %v", err)
	}
	defer sub.Close()

	if log.count() != 1 || len(log.last()) != 0 {
		t.Fatalf("expected one empty initial snapshot")
	}

	idA, err := r.Create(ctx, fields("a"))
	if err != nil {
		t.Fatalf("Create() unexpected error = %v", err)
	}
	idB, _ := r.Create(ctx, fields("b"))

	waitFor(t, &log, func(s []location.Location) bool {
		return len(s) == 2 && s[0].ID == idA && s[1].ID == idB
	})

	photo := location.Photo{Path: "https://cdn/x.jpg", Name: "x.jpg"}
	if err := r.AppendToArrayField(ctx, idA, location.FieldPhotos, photo); err != nil {
		t.Fatalf("AppendToArrayField() unexpected error = %v", err)
	}
	if err := r.AppendToArrayField(ctx, idA, location.FieldPhotos, photo); err != nil {
		t.Fatalf("second AppendToArrayField() unexpected error = %v", err)
	}
	waitFor(t, &log, func(s []location.Location) bool {
		return len(s) == 2 && len(s[0].Photos) == 1 && s[0].Photos[0] == photo
	})

	if err := r.RemoveFromArrayField(ctx, idA, location.FieldPhotos, photo); err != nil {
		t.Fatal(err)
	}
	waitFor(t, &log, func(s []location.Location) bool { return len(s) == 2 && len(s[0].Photos) == 0 })

	if err := r.Delete(ctx, idA); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, idA); err != nil {
		t.Errorf("deleting twice should be a no-op, got %v", err)
	}
	waitFor(t, &log, func(s []location.Location) bool { return len(s) == 1 && s[0].ID == idB })
}

func TestRedis_AppendMissingDocument(t *testing.T) {
	r := newTestRedis(t)
	err := r.AppendToArrayField(context.Background(), "missing", location.FieldComments, location.Comment{Text: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRedis_NoCallbackAfterClose(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()

	var log snapshotLog
	sub, err := r.Subscribe(ctx, log.record, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close() unexpected error = %v", err)
	}
	before := log.count()

	if _, err := r.Create(ctx, fields("late")); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if log.count() != before {
		t.Error("snapshot delivered after Close")
	}
}

func TestRedis_SubscribeUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	r := NewRedis(client, RedisConfig{Collection: "locations"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := r.Subscribe(ctx, func([]location.Location) {}, nil); err == nil {
		t.Fatal("expected subscribe error against an unreachable server")
	}
}

func TestNewRedis_Keys(t *testing.T) {
	r := NewRedis(redis.NewClient(&redis.Options{}), RedisConfig{Collection: "locations"})
	if r.docsKey != "locamap:locations:docs" || r.eventsKey != "locamap:locations:events" {
		t.Errorf("unexpected keys: %s %s", r.docsKey, r.eventsKey)
	}
	if r.maxRetries != defaultMaxTxRetries {
		t.Errorf("maxRetries = %d, want default", r.maxRetries)
	}
}
