package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSBackend stores blobs in a Google Cloud Storage bucket
type GCSBackend struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
}

// NewGCSBackend creates a backend for bucket. A non-empty endpoint targets an emulator without authentication.
func NewGCSBackend(ctx context.Context, bucket, prefix, endpoint string) (*GCSBackend, error) {
	opts := []option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}
	if endpoint != "" {
		opts = []option.ClientOption{option.WithEndpoint(endpoint), option.WithoutAuthentication()}
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSBackend{client: client, bucket: client.Bucket(bucket), name: bucket, prefix: prefix}, nil
}

func (b *GCSBackend) object(key string) *storage.ObjectHandle {
	if b.prefix != "" {
		key = path.Join(b.prefix, key)
	}
	return b.bucket.Object(key)
}

// Write streams r into a new object. Cancelling the writer's context before Close
// discards the upload, so a failed read leaves nothing behind.
func (b *GCSBackend) Write(ctx context.Context, key string, r io.Reader, contentType string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := b.object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("failed to write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) && gErr.Code == http.StatusPreconditionFailed {
			return ErrExists
		}
		return fmt.Errorf("failed to finalize gcs object: %w", err)
	}
	return nil
}

func (b *GCSBackend) Open(ctx context.Context, key string) (*Object, error) {
	r, err := b.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open gcs object: %w", err)
	}
	return &Object{ReadCloser: r, ContentType: r.Attrs.ContentType, Size: r.Attrs.Size}, nil
}

func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	err := b.object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete gcs object: %w", err)
	}
	return nil
}

// ValidateSetup checks that the bucket exists and is accessible
func (b *GCSBackend) ValidateSetup(ctx context.Context) error {
	if _, err := b.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket %s not accessible: %w", b.name, err)
	}
	return nil
}

func (b *GCSBackend) Close() error {
	return b.client.Close()
}
