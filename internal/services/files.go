package services

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"gocloud.dev/blob"

	"github.com/kode4food/argyll/worker/pkg/piece"

	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// BlobFiles writes generated files to a gocloud.dev bucket, supporting
// memory, local directories and the cloud stores whose drivers are linked
type BlobFiles struct {
	bucket    *blob.Bucket
	publicURL string
	prefix    string
	maxSize   int
}

const signedURLExpiry = 24 * time.Hour

var ErrFileTooLarge = errors.New("file exceeds maximum size")

var _ piece.Files = (*BlobFiles)(nil)

// NewBlobFiles opens the bucket at bucketURL. When publicURL is set, the
// URLs handed back are rooted there instead of being signed by the bucket
func NewBlobFiles(
	ctx context.Context, bucketURL, publicURL, prefix string, maxSize int,
) (*BlobFiles, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return &BlobFiles{
		bucket:    bucket,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		prefix:    prefix,
		maxSize:   maxSize,
	}, nil
}

// Write stores data under a unique key and returns a URL for it. Buckets
// that cannot sign URLs yield the bare key
func (f *BlobFiles) Write(
	ctx context.Context, name string, data []byte,
) (string, error) {
	if f.maxSize > 0 && len(data) > f.maxSize {
		return "", fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, name,
			len(data))
	}
	key := f.keyFor(name)
	if err := f.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return "", err
	}
	if f.publicURL != "" {
		return f.publicURL + "/" + key, nil
	}
	u, err := f.bucket.SignedURL(ctx, key, &blob.SignedURLOptions{
		Expiry: signedURLExpiry,
	})
	if err != nil {
		return key, nil
	}
	return u, nil
}

// Read returns the contents stored under key
func (f *BlobFiles) Read(ctx context.Context, key string) ([]byte, error) {
	return f.bucket.ReadAll(ctx, key)
}

// Close releases the bucket
func (f *BlobFiles) Close() error {
	return f.bucket.Close()
}

func (f *BlobFiles) keyFor(name string) string {
	return path.Join(f.prefix, uuid.NewString(), path.Base(name))
}
