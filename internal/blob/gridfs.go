package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// GridFSBackend stores blobs in a MongoDB GridFS bucket, using the blob key as the file id
type GridFSBackend struct {
	client *mongo.Client
	bucket *gridfs.Bucket
}

// NewGridFSBackend connects to uri and opens bucketName in database
func NewGridFSBackend(ctx context.Context, uri, database, bucketName string) (*GridFSBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName(bucketName))
	if err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to open gridfs bucket: %w", err)
	}
	return &GridFSBackend{client: client, bucket: bucket}, nil
}

// Write streams r into GridFS. The driver aborts the upload and removes written
// chunks when r fails.
func (b *GridFSBackend) Write(ctx context.Context, key string, r io.Reader, contentType string) error {
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})
	err := b.bucket.UploadFromStreamWithID(key, key, contextReader{ctx: ctx, r: r}, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrExists
		}
		return fmt.Errorf("failed to upload to gridfs: %w", err)
	}
	return nil
}

func (b *GridFSBackend) Open(ctx context.Context, key string) (*Object, error) {
	ds, err := b.bucket.OpenDownloadStream(key)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open gridfs file: %w", err)
	}

	file := ds.GetFile()
	var contentType string
	if file.Metadata != nil {
		contentType, _ = file.Metadata.Lookup("contentType").StringValueOK()
	}
	return &Object{ReadCloser: ds, ContentType: contentType, Size: file.Length}, nil
}

func (b *GridFSBackend) Delete(ctx context.Context, key string) error {
	err := b.bucket.DeleteContext(ctx, key)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete gridfs file: %w", err)
	}
	return nil
}

// ValidateSetup pings the primary
func (b *GridFSBackend) ValidateSetup(ctx context.Context) error {
	if err := b.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongodb not reachable: %w", err)
	}
	return nil
}

func (b *GridFSBackend) Close() error {
	return b.client.Disconnect(context.Background())
}
