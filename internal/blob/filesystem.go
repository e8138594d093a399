package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
)

// FileSystemBackend stores blobs as files in a directory structure:
//
//	<root>/
//	  objects/
//	    <key>          (content)
//	  meta/
//	    <key>.json     (content type and size)
type FileSystemBackend struct {
	root       string
	objectsDir string
	metaDir    string
}

type fileMeta struct {
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// NewFileSystemBackend creates a backend rooted at root, creating its directories if needed
func NewFileSystemBackend(root string) (*FileSystemBackend, error) {
	objectsDir := filepath.Join(root, "objects")
	metaDir := filepath.Join(root, "meta")

	for _, dir := range []string{objectsDir, metaDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create blob directory: %w", err)
		}
	}

	return &FileSystemBackend{root: root, objectsDir: objectsDir, metaDir: metaDir}, nil
}

// Write streams r into a temp file and links it into place, so readers never observe a
// partial object and an existing key is never replaced.
func (b *FileSystemBackend) Write(ctx context.Context, key string, r io.Reader, contentType string) error {
	destPath := filepath.Join(b.objectsDir, key)

	tmpFile, err := os.CreateTemp(b.objectsDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmpFile, contextReader{ctx: ctx, r: r})
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// os.Link fails when destPath exists, unlike os.Rename.
	if err := os.Link(tmpPath, destPath); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("failed to link blob: %w", err)
	}

	meta, err := json.Marshal(fileMeta{ContentType: contentType, Size: written})
	if err == nil {
		err = os.WriteFile(filepath.Join(b.metaDir, key+".json"), meta, 0640)
	}
	if err != nil {
		os.Remove(destPath)
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (b *FileSystemBackend) Open(ctx context.Context, key string) (*Object, error) {
	f, err := os.Open(filepath.Join(b.objectsDir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}

	meta, err := b.readMeta(key)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Object{ReadCloser: f, ContentType: meta.ContentType, Size: meta.Size}, nil
}

func (b *FileSystemBackend) readMeta(key string) (fileMeta, error) {
	var meta fileMeta
	data, err := os.ReadFile(filepath.Join(b.metaDir, key+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		// Fall back to the extension and the file itself.
		info, statErr := os.Stat(filepath.Join(b.objectsDir, key))
		if statErr != nil {
			return meta, fmt.Errorf("failed to stat blob: %w", statErr)
		}
		meta.ContentType = mime.TypeByExtension(filepath.Ext(key))
		meta.Size = info.Size()
		return meta, nil
	}
	if err != nil {
		return meta, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return meta, nil
}

func (b *FileSystemBackend) Delete(ctx context.Context, key string) error {
	err := os.Remove(filepath.Join(b.objectsDir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	if err := os.Remove(filepath.Join(b.metaDir, key+".json")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the blob directories exist and are writable
func (b *FileSystemBackend) ValidateSetup(ctx context.Context) error {
	for _, dir := range []string{b.root, b.objectsDir, b.metaDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("blob directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("blob path is not a directory: %s", dir)
		}
	}

	check, err := os.CreateTemp(b.objectsDir, ".check-*")
	if err != nil {
		return fmt.Errorf("blob directory not writable: %w", err)
	}
	check.Close()
	return os.Remove(check.Name())
}

func (b *FileSystemBackend) Close() error { return nil }

// contextReader stops a copy once ctx is done
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
