package filestore

import (
	"context"
	"path"
	"time"

	"github.com/JonMunkholm/tabstore/internal/errs"
)

// DefaultURLTTL is how long SourceURL links stay valid when unset.
const DefaultURLTTL = 15 * time.Minute

// Archive stores raw uploads in one bucket, one object per file hash.
// It implements core.Archive.
type Archive struct {
	store  Store
	bucket string
	prefix string
	ttl    time.Duration
}

// NewArchive makes sure bucket exists and returns an Archive writing to it.
func NewArchive(ctx context.Context, store Store, bucket string, ttl time.Duration) (*Archive, error) {
	if bucket == "" {
		return nil, errs.New(errs.KindInvalidInput, "archive bucket is required")
	}
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	if err := store.EnsureBucket(ctx, bucket); err != nil {
		return nil, err
	}
	return &Archive{store: store, bucket: bucket, prefix: "uploads", ttl: ttl}, nil
}

func (a *Archive) objectKey(fileHash string) string {
	return path.Join(a.prefix, fileHash+".csv")
}

// Save writes the raw bytes under the file hash.
func (a *Archive) Save(ctx context.Context, fileHash string, data []byte) error {
	return a.store.PutObject(ctx, a.bucket, a.objectKey(fileHash), data, "text/csv")
}

// Remove deletes the object for fileHash.
func (a *Archive) Remove(ctx context.Context, fileHash string) error {
	return a.store.RemoveObject(ctx, a.bucket, a.objectKey(fileHash))
}

// URL returns a presigned download link, or a not_found error when nothing
// was archived for fileHash.
func (a *Archive) URL(ctx context.Context, fileHash string) (string, error) {
	key := a.objectKey(fileHash)
	if _, err := a.store.StatObject(ctx, a.bucket, key); err != nil {
		return "", err
	}
	return a.store.PresignGetURL(ctx, a.bucket, key, a.ttl)
}
