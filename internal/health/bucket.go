package health

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BucketPinger is implemented by blob stores that can verify their bucket.
type BucketPinger interface {
	Ping(ctx context.Context) error
}

// BucketChecker checks that the photo bucket is reachable.
type BucketChecker struct {
	store   BucketPinger
	timeout time.Duration
}

// NewBucketChecker creates a bucket checker. Each check is bounded by a
// 3 second timeout on top of the caller's context.
func NewBucketChecker(store BucketPinger) *BucketChecker {
	return &BucketChecker{store: store, timeout: 3 * time.Second}
}

// HealthCheck pings the bucket.
func (b *BucketChecker) HealthCheck(ctx context.Context) error {
	if b.store == nil {
		return errors.New("blob store not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.store.Ping(ctx); err != nil {
		return fmt.Errorf("blob bucket unreachable: %w", err)
	}
	return nil
}
