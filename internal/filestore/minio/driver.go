// Package minio backs filestore.Store with a MinIO or other S3 compatible
// server.
package minio

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JonMunkholm/tabstore/internal/errs"
	"github.com/JonMunkholm/tabstore/internal/filestore"
)

// objectAPI is the slice of *miniogo.Client the archive needs.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts miniogo.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts miniogo.PutObjectOptions) (miniogo.UploadInfo, error)
	StatObject(ctx context.Context, bucket, key string, opts miniogo.StatObjectOptions) (miniogo.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, key string, opts miniogo.RemoveObjectOptions) error
	PresignedGetObject(ctx context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error)
}

// Driver implements filestore.Store on a MinIO client.
type Driver struct {
	api    objectAPI
	region string
}

var _ filestore.Store = (*Driver)(nil)

// New builds a client for cfg. No request is made until the first call;
// filestore.NewArchive checks its bucket straight away.
func New(cfg filestore.Config) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, "minio client", err)
	}
	return &Driver{api: client, region: cfg.Region}, nil
}

func (d *Driver) EnsureBucket(ctx context.Context, bucket string) error {
	ok, err := d.api.BucketExists(ctx, bucket)
	switch {
	case err != nil:
		return mapError(err, "bucket exists")
	case ok:
		return nil
	}

	err = d.api.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{Region: d.region})
	if err != nil && miniogo.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
		return mapError(err, "make bucket")
	}
	return nil
}

func (d *Driver) PutObject(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	opts := miniogo.PutObjectOptions{ContentType: contentType}
	_, err := d.api.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	return mapError(err, "put "+key)
}

func (d *Driver) StatObject(ctx context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	info, err := d.api.StatObject(ctx, bucket, key, miniogo.StatObjectOptions{})
	if err != nil {
		return nil, mapError(err, "stat "+key)
	}
	return &filestore.ObjectInfo{Key: info.Key, Size: info.Size}, nil
}

// RemoveObject succeeds for keys that do not exist.
func (d *Driver) RemoveObject(ctx context.Context, bucket, key string) error {
	return mapError(d.api.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}), "remove "+key)
}

func (d *Driver) PresignGetURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	u, err := d.api.PresignedGetObject(ctx, bucket, key, ttl, nil)
	if err != nil {
		return "", mapError(err, "presign "+key)
	}
	return u.String(), nil
}
