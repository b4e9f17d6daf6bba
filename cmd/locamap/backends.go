package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/locamap/internal/api"
	"github.com/onnwee/locamap/internal/blobstore"
	"github.com/onnwee/locamap/internal/config"
	"github.com/onnwee/locamap/internal/docstore"
	"github.com/onnwee/locamap/internal/geocode"
	"github.com/onnwee/locamap/internal/health"
	"github.com/onnwee/locamap/internal/image"
	"github.com/onnwee/locamap/internal/location"
	"github.com/onnwee/locamap/internal/subresource"
)

// backends holds the collaborators selected by configuration.
type backends struct {
	channel   docstore.Channel
	blobs     blobstore.Store
	geocoder  geocode.Service
	locator   geocode.DeviceLocator
	sanitizer subresource.Sanitizer
	checks    map[string]api.HealthChecker
	closers   []func() error
}

func newBackends(cfg *config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{checks: make(map[string]api.HealthChecker)}

	if cfg.UseRedis() {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		b.closers = append(b.closers, client.Close)
		b.channel = docstore.NewRedis(client, docstore.RedisConfig{
			Collection: cfg.Collection,
			Logger:     logger,
		})
		b.checks["redis"] = health.NewRedisChecker(client)
		logger.Info("record store: redis", "collection", cfg.Collection)
	} else {
		b.channel = docstore.NewMemory()
		logger.Warn("record store: in-memory, records are lost on restart")
	}

	if cfg.UseS3() {
		store, err := blobstore.NewS3(blobstore.S3Config{
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Endpoint:        cfg.S3Endpoint,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
		if err != nil {
			b.close(logger)
			return nil, fmt.Errorf("blob store: %w", err)
		}
		b.blobs = store
		b.checks["blob_bucket"] = health.NewBucketChecker(store)
		logger.Info("blob store: s3", "bucket", cfg.S3Bucket)
	} else {
		b.blobs = blobstore.NewMemory()
		logger.Warn("blob store: in-memory, photos are lost on restart")
	}

	if cfg.OpenCageAPIKey != "" {
		b.geocoder = geocode.NewOpenCage(geocode.OpenCageConfig{
			APIKey:        cfg.OpenCageAPIKey,
			RatePerSecond: cfg.OpenCageRatePerSecond,
			Timeout:       10 * time.Second,
			Logger:        logger,
		})
	} else {
		b.geocoder = geocode.Disabled{}
		logger.Warn("geocoding disabled, OPENCAGE_API_KEY not set")
	}

	if cfg.HasDevicePosition() {
		b.locator = geocode.StaticLocator{Point: location.Point{Lat: *cfg.DeviceLat, Lng: *cfg.DeviceLng}}
	} else {
		b.locator = geocode.Unsupported{}
	}

	if cfg.StripPhotoMetadata {
		b.sanitizer = image.NewSanitizer(image.DefaultConfig())
	}
	return b, nil
}

func (b *backends) close(logger *slog.Logger) {
	for _, c := range b.closers {
		if err := c(); err != nil {
			logger.Warn("backend close failed", "error", err)
		}
	}
}
