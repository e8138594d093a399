package blob

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
)

const testMaxSize = 1024

func newTestStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	return NewStore(backend, testMaxSize, nil), backend
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return b
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	content := randomBytes(t, testMaxSize)

	stat, err := store.Put(ctx, bytes.NewReader(content), PutInput{
		Kind: KindDocument, Name: "report.pdf", ContentType: "application/pdf",
	})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if stat.Size != int64(len(content)) || stat.ContentType != "application/pdf" {
		t.Errorf("Put() stat = %+v", stat)
	}
	if !ValidKey(stat.Key) || NameFromKey(stat.Key) != "report.pdf" {
		t.Errorf("Put() key = %q, want <ulid>-report.pdf", stat.Key)
	}

	obj, err := store.Get(ctx, stat.Key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer obj.Close()

	got, err := io.ReadAll(obj)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("Get() content differs from Put() content")
	}
	if obj.ContentType != "application/pdf" {
		t.Errorf("ContentType = %q", obj.ContentType)
	}
}

func TestGetUnknownKey(t *testing.T) {
	store, _ := newTestStore(t)

	for _, key := range []string{
		"01HZY3Q3J5V6ZC8K6W1R9J7D2B-missing.pdf",
		"../../etc/passwd",
		"",
	} {
		if _, err := store.Get(context.Background(), key); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound", key, err)
		}
	}
}

func TestPutRejectsBeforeWriting(t *testing.T) {
	tests := []struct {
		name    string
		in      PutInput
		size    int
		wantErr error
	}{
		{
			name:    "executable",
			in:      PutInput{Kind: KindDocument, Name: "virus.exe", ContentType: "application/octet-stream"},
			size:    10,
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "extension and mime disagree",
			in:      PutInput{Kind: KindDocument, Name: "photo.png", ContentType: "application/pdf"},
			size:    10,
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "pdf as photo",
			in:      PutInput{Kind: KindPhoto, Name: "scan.pdf", ContentType: "application/pdf"},
			size:    10,
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "one byte over the limit",
			in:      PutInput{Kind: KindDocument, Name: "big.pdf", ContentType: "application/pdf"},
			size:    testMaxSize + 1,
			wantErr: ErrTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, backend := newTestStore(t)
			_, err := store.Put(context.Background(), bytes.NewReader(randomBytes(t, tt.size)), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Put() error = %v, want %v", err, tt.wantErr)
			}
			if backend.Len() != 0 {
				t.Errorf("backend holds %d objects after rejected put, want 0", backend.Len())
			}
		})
	}
}

func TestPutKeysAreUnique(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	const n = 50
	keys := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stat, err := store.Put(ctx, strings.NewReader("same"), PutInput{
				Kind: KindPhoto, Name: "IMG_0001.jpg", ContentType: "image/jpeg",
			})
			if err != nil {
				t.Errorf("Put() error = %v", err)
				return
			}
			keys <- stat.Key
		}()
	}
	wg.Wait()
	close(keys)

	seen := map[string]bool{}
	for k := range keys {
		if seen[k] {
			t.Fatalf("duplicate key %s", k)
		}
		seen[k] = true
	}
	if len(seen) != n || backend.Len() != n {
		t.Errorf("got %d keys and %d objects, want %d", len(seen), backend.Len(), n)
	}
}

func TestDelete(t *testing.T) {
	store, backend := newTestStore(t)
	ctx := context.Background()

	stat, err := store.Put(ctx, strings.NewReader("gif"), PutInput{Kind: KindPhoto, Name: "a.gif", ContentType: "image/gif"})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := store.Delete(ctx, stat.Key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if backend.Len() != 0 {
		t.Error("Delete() left the object behind")
	}
	if err := store.Delete(ctx, stat.Key); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestCheckType(t *testing.T) {
	tests := []struct {
		kind     Kind
		name     string
		declared string
		want     string
		wantErr  bool
	}{
		{KindDocument, "a.JPG", "image/jpeg", "image/jpeg", false},
		{KindDocument, "a.jpeg", "IMAGE/JPEG", "image/jpeg", false},
		{KindDocument, "a.pdf", "application/pdf; charset=binary", "application/pdf", false},
		{KindDocument, "letter.doc", "application/msword", "application/msword", false},
		{KindDocument, "letter.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document", false},
		{KindPhoto, "me.png", "image/png", "image/png", false},
		{KindPhoto, "letter.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "", true},
		{KindDocument, "noext", "image/png", "", true},
		{KindDocument, "a.svg", "image/svg+xml", "", true},
		{KindDocument, "a.png", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.declared, func(t *testing.T) {
			got, err := CheckType(tt.kind, tt.name, tt.declared)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckType() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CheckType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := map[string]string{
		"report.pdf":                      "report.pdf",
		"../../etc/passwd":                "passwd",
		`C:\Users\bob\scan.jpg`:           "scan.jpg",
		"my holiday photo!.png":           "my_holiday_photo_.png",
		".hidden.gif":                     "hidden.gif",
		"..":                              "file",
		"":                                "file",
		strings.Repeat("a", 150) + ".pdf": strings.Repeat("a", 96) + ".pdf",
	}

	for in, want := range tests {
		if got := SanitizeName(in); got != want {
			t.Errorf("SanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCapReader(t *testing.T) {
	cr := &capReader{r: bytes.NewReader(make([]byte, 10)), max: 10}
	n, err := io.Copy(io.Discard, cr)
	if err != nil || n != 10 {
		t.Fatalf("copy at limit = %d, %v, want 10, nil", n, err)
	}

	cr = &capReader{r: bytes.NewReader(make([]byte, 11)), max: 10}
	if _, err := io.Copy(io.Discard, cr); !errors.Is(err, ErrTooLarge) {
		t.Errorf("copy over limit error = %v, want ErrTooLarge", err)
	}
	if !cr.exceeded {
		t.Error("exceeded flag not set")
	}
}
