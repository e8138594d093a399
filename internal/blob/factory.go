package blob

import (
	"context"
	"fmt"

	"github.com/bobbyillbrian-max/family-ms/internal/config"
)

// NewBackendFromConfig creates the Backend selected by cfg.Type, wrapped with
// age encryption when an identity file is configured.
func NewBackendFromConfig(ctx context.Context, cfg config.BlobConfig) (Backend, error) {
	backend, err := newBaseBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AgeIdentityPath == "" {
		return backend, nil
	}

	encrypted, err := NewEncryptedBackend(backend, cfg.AgeIdentityPath)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return encrypted, nil
}

func newBaseBackend(ctx context.Context, cfg config.BlobConfig) (Backend, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryBackend(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem blob store requires fs_root to be set")
		}
		return NewFileSystemBackend(cfg.FSRoot)
	case "s3":
		return NewS3Backend(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	case "gcs":
		return NewGCSBackend(ctx, cfg.GCSBucket, cfg.GCSPrefix, cfg.GCSEndpoint)
	case "gridfs":
		return NewGridFSBackend(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.GridFSBucket)
	default:
		return nil, fmt.Errorf("unknown blob type: %s", cfg.Type)
	}
}
