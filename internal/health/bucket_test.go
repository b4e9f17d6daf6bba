package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestBucketChecker(t *testing.T) {
	tests := []struct {
		name    string
		store   BucketPinger
		wantErr bool
	}{
		{"healthy", pingerFunc(func(context.Context) error { return nil }), false},
		{"failing", pingerFunc(func(context.Context) error { return errors.New("403") }), true},
		{"not configured", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewBucketChecker(tt.store).HealthCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBucketChecker_Timeout(t *testing.T) {
	checker := NewBucketChecker(pingerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	checker.timeout = 20 * time.Millisecond

	err := checker.HealthCheck(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("HealthCheck() error = %v, want deadline exceeded", err)
	}
}
