package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	appconfig "eterna-home/pkg/config"
	"eterna-home/prometheus"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Store is the object storage interface used by the document and BIM
// handlers. The production implementation is S3-compatible (MinIO).
type Store interface {
	Put(ctx context.Context, key string, content io.Reader, contentType string) (checksum string, size int64, err error)
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// S3Store handles object storage operations against S3 or MinIO
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an S3 client from storage configuration. A custom
// endpoint with path-style addressing targets MinIO.
func NewS3Store(ctx context.Context, cfg *appconfig.StorageConfig) (*S3Store, error) {
	var awsConfig aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		// Static credentials (MinIO or AWS with explicit keys)
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)),
		)
	} else {
		// Default credential chain (IAM roles, env vars, etc.)
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Put uploads content and returns its SHA-256 checksum and size
func (s *S3Store) Put(ctx context.Context, key string, content io.Reader, contentType string) (string, int64, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		prometheus.RecordStorageOperation("put", "error")
		return "", 0, fmt.Errorf("failed to read content: %w", err)
	}

	sum := sha256.Sum256(data)
	checksum := hex.EncodeToString(sum[:])

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		prometheus.RecordStorageOperation("put", "error")
		return "", 0, fmt.Errorf("failed to upload object %s: %w", key, err)
	}

	prometheus.RecordStorageOperation("put", "ok")
	return checksum, int64(len(data)), nil
}

// Get returns a reader over the object content and its content type
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		prometheus.RecordStorageOperation("get", "error")
		return nil, "", fmt.Errorf("failed to fetch object %s: %w", key, err)
	}

	prometheus.RecordStorageOperation("get", "ok")
	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return out.Body, contentType, nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		prometheus.RecordStorageOperation("delete", "error")
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	prometheus.RecordStorageOperation("delete", "ok")
	return nil
}
