// Package filestore defines the object storage abstraction the raw upload
// archive is built on. Drivers live in sub-packages (filestore/minio).
package filestore

import (
	"context"
	"time"
)

// Store is a minimal S3-style object store.
type Store interface {
	// EnsureBucket creates bucket when it does not exist yet.
	EnsureBucket(ctx context.Context, bucket string) error

	PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error

	// StatObject returns an error of kind not_found when the object is missing.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)

	RemoveObject(ctx context.Context, bucket, key string) error

	// PresignGetURL returns a time-limited download URL for the object.
	PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// ObjectInfo is object metadata without its content.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Config holds connection settings shared by drivers.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}
