// Package blob stores uploaded files as opaque objects addressed by unguessable keys.
package blob

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	ErrNotFound        = errors.New("blob not found")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrExists          = errors.New("blob key already exists")
)

// Kind selects the allow-list applied to an upload
type Kind string

const (
	KindDocument Kind = "document"
	KindPhoto    Kind = "photo"
)

// allowedTypes maps each accepted extension to the MIME types it may be declared with
var allowedTypes = map[string][]string{
	".jpeg": {"image/jpeg"},
	".jpg":  {"image/jpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
}

// Object is a stored blob opened for reading. Size is -1 when the backend cannot report it.
type Object struct {
	io.ReadCloser
	ContentType string
	Size        int64
}

// Stat describes a blob after a successful Put
type Stat struct {
	Key         string `json:"blob_key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// PutInput carries the client-declared attributes of an upload
type PutInput struct {
	Kind        Kind
	Name        string
	ContentType string
}

// Backend persists blobs. Write must refuse to replace an existing key with ErrExists
// and must not leave a readable object behind when r fails.
type Backend interface {
	Write(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	ValidateSetup(ctx context.Context) error
	Close() error
}

// Recorder receives blob store measurements
type Recorder interface {
	ObserveBlob(op string, err error, bytes int64)
}

// Store enforces the upload policy in front of a Backend
type Store struct {
	backend  Backend
	maxSize  int64
	recorder Recorder
	now      func() time.Time
}

// NewStore creates a store that rejects objects larger than maxSize bytes
func NewStore(backend Backend, maxSize int64, recorder Recorder) *Store {
	return &Store{backend: backend, maxSize: maxSize, recorder: recorder, now: time.Now}
}

// Put validates the declared type, then streams r into the backend under a fresh key.
// Nothing is written when the type is rejected; a stream over the size limit is discarded.
func (s *Store) Put(ctx context.Context, r io.Reader, in PutInput) (*Stat, error) {
	contentType, err := CheckType(in.Kind, in.Name, in.ContentType)
	if err != nil {
		s.observe("put", err, 0)
		return nil, err
	}

	key, err := s.newKey(in.Name)
	if err != nil {
		s.observe("put", err, 0)
		return nil, err
	}

	cr := &capReader{r: r, max: s.maxSize}
	err = s.backend.Write(ctx, key, cr, contentType)
	if cr.exceeded {
		err = ErrTooLarge
	}
	if err != nil {
		s.observe("put", err, cr.n)
		if errors.Is(err, ErrTooLarge) || errors.Is(err, ErrExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}

	s.observe("put", nil, cr.n)
	return &Stat{Key: key, Size: cr.n, ContentType: contentType}, nil
}

// Get opens the blob stored under key. Unknown or malformed keys yield ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*Object, error) {
	if !ValidKey(key) {
		s.observe("get", ErrNotFound, 0)
		return nil, ErrNotFound
	}
	obj, err := s.backend.Open(ctx, key)
	s.observe("get", err, 0)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return obj, nil
}

// Delete removes the blob stored under key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if !ValidKey(key) {
		return nil
	}
	err := s.backend.Delete(ctx, key)
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.observe("delete", err, 0)
	return err
}

// ValidateSetup checks that the backend is reachable and writable
func (s *Store) ValidateSetup(ctx context.Context) error {
	return s.backend.ValidateSetup(ctx)
}

func (s *Store) observe(op string, err error, n int64) {
	if s.recorder != nil {
		s.recorder.ObserveBlob(op, err, n)
	}
}

// CheckType returns the normalised content type when both the extension of name and the
// declared MIME type are on the allow-list for kind and agree with each other.
func CheckType(kind Kind, name, declared string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	mimes, ok := allowedTypes[ext]
	if !ok {
		return "", ErrUnsupportedType
	}

	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", ErrUnsupportedType
	}
	mediaType = strings.ToLower(mediaType)

	for _, m := range mimes {
		if m != mediaType {
			continue
		}
		if kind == KindPhoto && !strings.HasPrefix(mediaType, "image/") {
			return "", ErrUnsupportedType
		}
		return mediaType, nil
	}
	return "", ErrUnsupportedType
}

var (
	keyPattern    = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}-[A-Za-z0-9._-]{1,100}$`)
	unsafeNameRun = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

const maxKeyNameLength = 100

// newKey returns "<ULID>-<sanitised name>". The ULID carries 80 random bits from crypto/rand.
func (s *Store) newKey(name string) (string, error) {
	id, err := ulid.New(ulid.Timestamp(s.now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to generate blob key: %w", err)
	}
	return id.String() + "-" + SanitizeName(name), nil
}

// SanitizeName reduces a client file name to a safe single path element
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeNameRun.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if len(name) > maxKeyNameLength {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:maxKeyNameLength-len(ext)] + ext
	}
	if name == "" {
		return "file"
	}
	return name
}

// ValidKey reports whether key has the shape produced by Put
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// NameFromKey returns the sanitised file name embedded in key
func NameFromKey(key string) string {
	if i := strings.IndexByte(key, '-'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// capReader passes through at most max bytes and fails with ErrTooLarge on the byte after
type capReader struct {
	r        io.Reader
	max      int64
	n        int64
	exceeded bool
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.exceeded {
		return 0, ErrTooLarge
	}
	if room := c.max - c.n + 1; int64(len(p)) > room {
		p = p[:room]
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.max {
		c.exceeded = true
		c.n = c.max
		return 0, ErrTooLarge
	}
	return n, err
}
