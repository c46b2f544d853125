package store

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/torosent/rangefetch/internal/resource"
)

// BlobStore keeps each resource as an object in a gocloud.dev bucket.
type BlobStore struct {
	bucket *blob.Bucket
	url    string
	keys   resource.Template
}

// OpenBlobStore opens bucketURL, e.g. "gs://books", "s3://books?region=eu-west-1",
// "file:///var/books" or "mem://".
func OpenBlobStore(ctx context.Context, bucketURL string, keys resource.Template) (*BlobStore, error) {
	if err := ValidateKeyTemplate(keys); err != nil {
		return nil, err
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", bucketURL, err)
	}
	return NewBlobStore(bucket, bucketURL, keys), nil
}

// NewBlobStore wraps an already opened bucket. The store takes ownership of
// bucket and closes it on Close.
func NewBlobStore(bucket *blob.Bucket, bucketURL string, keys resource.Template) *BlobStore {
	return &BlobStore{bucket: bucket, url: bucketURL, keys: keys}
}

func (s *BlobStore) Key(id resource.ID) string {
	return s.keys.Expand(id)
}

func (s *BlobStore) URI(id resource.ID) string {
	base := s.url
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}
	return strings.TrimSuffix(base, "/") + "/" + s.Key(id)
}

func (s *BlobStore) Exists(ctx context.Context, id resource.ID) (bool, error) {
	ok, err := s.bucket.Exists(ctx, s.Key(id))
	if err != nil {
		return false, fmt.Errorf("check %s: %w", s.Key(id), err)
	}
	return ok, nil
}

// Write uploads data under the identifier's key. The object is only committed
// when the writer closes cleanly; on any failure the write context is
// cancelled so the driver discards the upload.
func (s *BlobStore) Write(ctx context.Context, id resource.ID, data []byte) error {
	key := s.Key(id)

	exists, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check %s: %w", key, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrExists, key)
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, key, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", key, err)
	}
	if _, err := w.Write(data); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		switch gcerrors.Code(err) {
		case gcerrors.AlreadyExists, gcerrors.FailedPrecondition:
			return fmt.Errorf("%w: %s", ErrExists, key)
		}
		return fmt.Errorf("commit %s: %w", key, err)
	}
	return nil
}

func (s *BlobStore) Close() error {
	return s.bucket.Close()
}
