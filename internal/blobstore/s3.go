package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/onnwee/locamap/internal/tracing"
)

// S3Config configures an S3-compatible store (Cloudflare R2, MinIO, AWS).
type S3Config struct {
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string

	// PublicBaseURL is the origin objects are served from; the durable URL
	// of an object is PublicBaseURL + "/" + path.
	PublicBaseURL string

	// Region defaults to "auto".
	Region string
}

// S3 is a Store backed by an S3-compatible bucket.
type S3 struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3 creates an S3 store. Every field except Region is required.
func NewS3(cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, errors.New("public base URL is required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	client := s3.New(s3.Options{
		Region: cfg.Region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &S3{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// Put uploads data and returns its public URL.
func (s *S3) Put(ctx context.Context, path string, data []byte, contentType string) (u string, err error) {
	ctx, end := tracing.StartStoreSpan(ctx, "s3", tracing.StoreOpPut, s.bucket)
	defer func() { end(err) }()

	if err := checkPath(path); err != nil {
		return "", err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", path, err)
	}
	return s.URL(path), nil
}

// Delete removes the object at path.
func (s *S3) Delete(ctx context.Context, path string) (err error) {
	ctx, end := tracing.StartStoreSpan(ctx, "s3", tracing.StoreOpDelete, s.bucket)
	defer func() { end(err) }()

	if err := checkPath(path); err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// URL returns the public URL of path.
func (s *S3) URL(path string) string {
	return s.publicBaseURL + "/" + escapePath(path)
}

// Ping checks that the bucket exists and the credentials can reach it.
func (s *S3) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}
	return nil
}
