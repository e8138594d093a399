package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// EncryptedBackend encrypts blobs with age before they reach the wrapped backend.
// Sizes reported by Open are unknown (-1) because the stored ciphertext is larger than the content.
type EncryptedBackend struct {
	Backend
	identity  age.Identity
	recipient age.Recipient
}

// NewEncryptedBackend wraps backend with the X25519 identity stored at identityPath
func NewEncryptedBackend(backend Backend, identityPath string) (*EncryptedBackend, error) {
	f, err := os.Open(identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading age identity: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}

	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return &EncryptedBackend{Backend: backend, identity: x, recipient: x.Recipient()}, nil
		}
	}
	return nil, errors.New("no X25519 identity found in " + identityPath)
}

// GenerateIdentityFile writes a new X25519 identity to path, refusing to overwrite an existing file.
// It returns the matching public recipient.
func GenerateIdentityFile(path string) (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generating key pair: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("creating identity file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "# public key: %s\n%s\n", identity.Recipient(), identity); err != nil {
		return "", fmt.Errorf("writing identity file: %w", err)
	}
	return identity.Recipient().String(), nil
}

func (e *EncryptedBackend) Write(ctx context.Context, key string, r io.Reader, contentType string) error {
	pr, pw := io.Pipe()
	done := make(chan error, 1)

	go func() {
		err := e.encrypt(pw, r)
		pw.CloseWithError(err)
		done <- err
	}()

	err := e.Backend.Write(ctx, key, pr, contentType)
	// Unblocks the encrypting goroutine if the backend stopped reading early.
	pr.CloseWithError(io.ErrClosedPipe)
	encErr := <-done

	if err != nil {
		return err
	}
	if encErr != nil {
		e.Backend.Delete(ctx, key)
		return encErr
	}
	return nil
}

func (e *EncryptedBackend) encrypt(w io.Writer, r io.Reader) error {
	encWriter, err := age.Encrypt(w, e.recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return err
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

func (e *EncryptedBackend) Open(ctx context.Context, key string) (*Object, error) {
	obj, err := e.Backend.Open(ctx, key)
	if err != nil {
		return nil, err
	}

	plain, err := age.Decrypt(obj.ReadCloser, e.identity)
	if err != nil {
		obj.Close()
		return nil, fmt.Errorf("creating decrypted reader: %w", err)
	}

	return &Object{
		ReadCloser:  readCloser{Reader: plain, Closer: obj.ReadCloser},
		ContentType: obj.ContentType,
		Size:        -1,
	}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}
