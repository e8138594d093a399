package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/bobbyillbrian-max/family-ms/internal/access"
	"github.com/bobbyillbrian-max/family-ms/internal/blob"
	"github.com/bobbyillbrian-max/family-ms/internal/database"
	"github.com/bobbyillbrian-max/family-ms/internal/metrics"
	"github.com/bobbyillbrian-max/family-ms/internal/models"
	"github.com/bobbyillbrian-max/family-ms/internal/repository"
	"github.com/bobbyillbrian-max/family-ms/internal/security"
	"github.com/bobbyillbrian-max/family-ms/internal/service"
)

const testMaxUpload = 1024

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := database.Initialize(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	familyHasher, _ := security.NewPasswordHasher(security.FamilyDomain, bcrypt.MinCost)
	memberHasher, _ := security.NewPasswordHasher(security.MemberDomain, bcrypt.MinCost)
	tokens, err := security.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "test", 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	families := security.NewFamilySessions([]byte("hash-key-hash-key-hash-key-12345"), nil, time.Hour)
	gate := access.NewGate(tokens, families)
	m := metrics.New(prometheus.NewRegistry())

	userRepo := repository.NewUserRepository(db)
	identity := service.NewIdentityService(repository.NewFamilyRepository(db), userRepo, familyHasher, memberHasher, tokens)
	documents := service.NewDocumentService(repository.NewDocumentRepository(db), userRepo)
	blobs := blob.NewStore(blob.NewMemoryBackend(), testMaxUpload, m)
	uploads := service.NewUploadService(blobs, documents, identity, logger)

	router := NewRouter(RouterConfig{
		Auth:         NewAuthHandler(identity, families, logger),
		Members:      NewMemberHandler(identity, gate, logger),
		Uploads:      NewUploadHandler(uploads, testMaxUpload, logger),
		Files:        NewFileHandler(blobs, logger),
		Documents:    NewDocumentHandler(documents, gate, logger),
		Health:       NewHealthHandler(db, logger),
		Middleware:   NewMiddleware(gate, logger),
		Metrics:      m,
		LoginLimiter: security.NewRateLimiter(100, time.Minute),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

// client is a browser-like caller: it keeps cookies and optionally sends a bearer token
type client struct {
	t     *testing.T
	base  string
	httpc *http.Client
	token string
}

func newClient(t *testing.T, srv *httptest.Server) *client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &client{t: t, base: srv.URL, httpc: &http.Client{Jar: jar}}
}

func (c *client) do(method, path, contentType string, body io.Reader) (int, []byte, http.Header) {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		c.t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data, resp.Header
}

func (c *client) json(method, path string, in any, out any) int {
	c.t.Helper()
	var body io.Reader
	if in != nil {
		b, _ := json.Marshal(in)
		body = bytes.NewReader(b)
	}
	status, data, _ := c.do(method, path, "application/json", body)
	if out != nil && status < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			c.t.Fatalf("%s %s: decode %q: %v", method, path, data, err)
		}
	}
	return status
}

func (c *client) upload(kind string, fields map[string]string, name, contentType string, content []byte) (int, service.UploadResult) {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, name))
	h.Set("Content-Type", contentType)
	part, _ := mw.CreatePart(h)
	_, _ = part.Write(content)
	_ = mw.Close()

	status, data, _ := c.do(http.MethodPost, "/api/upload/"+kind, mw.FormDataContentType(), &buf)
	var result service.UploadResult
	if status == http.StatusCreated {
		_ = json.Unmarshal(data, &result)
	}
	return status, result
}

func register(c *client, family, secret, admin, password string) registerFamilyResponse {
	c.t.Helper()
	var resp registerFamilyResponse
	status := c.json(http.MethodPost, "/api/families/register", registerFamilyRequest{
		FamilyName: family, Password: secret,
		AdminName: admin, AdminRelationship: "Parent", AdminHasChildren: true,
		AdminPassword: password,
	}, &resp)
	if status != http.StatusCreated {
		c.t.Fatalf("register %q status = %d", family, status)
	}
	return resp
}

func TestFamilyVaultAPI(t *testing.T) {
	srv := newTestServer(t)
	alice := newClient(t, srv)
	bob := newClient(t, srv)

	smiths := register(alice, "Smith Family", "secret1", "Alice", "alice12")
	jones := register(newClient(t, srv), "Jones Family", "secret2", "Jane", "jane12")

	if status := alice.json(http.MethodPost, "/api/families/register", registerFamilyRequest{
		FamilyName: "Smith Family", Password: "secret1", AdminName: "Eve", AdminRelationship: "Aunt", AdminPassword: "eve123",
	}, nil); status != http.StatusConflict {
		t.Errorf("duplicate register status = %d, want 409", status)
	}

	// Personal login needs a family login first
	if status := bob.json(http.MethodPost, "/api/users/login", loginUserRequest{UserID: smiths.AdminID, Password: "alice12"}, nil); status != http.StatusUnauthorized {
		t.Errorf("personal login without family status = %d, want 401", status)
	}
	if status := bob.json(http.MethodPost, "/api/families/login", loginFamilyRequest{"Smith Family", "wrong1"}, nil); status != http.StatusUnauthorized {
		t.Errorf("wrong family secret status = %d, want 401", status)
	}

	var login models.FamilyWithMembers
	if status := bob.json(http.MethodPost, "/api/families/login", loginFamilyRequest{"Smith Family", "secret1"}, &login); status != http.StatusOK {
		t.Fatalf("family login status = %d", status)
	}
	if len(login.Members) != 1 || login.Members[0].Role != models.RoleAdmin {
		t.Fatalf("family login members = %+v, want the admin only", login.Members)
	}

	if status := bob.json(http.MethodGet, fmt.Sprintf("/api/families/%d/members", jones.FamilyID), nil, nil); status != http.StatusForbidden {
		t.Errorf("other family's members status = %d, want 403", status)
	}

	var bobUser models.User
	if status := bob.json(http.MethodPost, "/api/users/create", createUserRequest{
		FullName: "Bob", Relationship: "Child", DateOfBirth: "2012-05-01", Password: "bob1a1",
	}, &bobUser); status != http.StatusCreated {
		t.Fatalf("create user status = %d", status)
	}
	if bobUser.FamilyID != smiths.FamilyID || bobUser.Role != models.RoleMember {
		t.Errorf("created user = %+v", bobUser)
	}

	var members []models.User
	bob.json(http.MethodGet, fmt.Sprintf("/api/families/%d/members", smiths.FamilyID), nil, &members)
	if len(members) != 2 {
		t.Errorf("members = %d, want 2", len(members))
	}

	var bobLogin service.LoginResult
	if status := bob.json(http.MethodPost, "/api/users/login", loginUserRequest{UserID: bobUser.ID, Password: "bob1a1"}, &bobLogin); status != http.StatusOK {
		t.Fatalf("bob login status = %d", status)
	}
	bob.token = bobLogin.Token

	alice.json(http.MethodPost, "/api/families/login", loginFamilyRequest{"Smith Family", "secret1"}, nil)
	var aliceLogin service.LoginResult
	if status := alice.json(http.MethodPost, "/api/users/login", loginUserRequest{UserID: smiths.AdminID, Password: "alice12"}, &aliceLogin); status != http.StatusOK {
		t.Fatalf("alice login status = %d", status)
	}
	alice.token = aliceLogin.Token

	var session sessionResponse
	if status := bob.json(http.MethodGet, "/api/session", nil, &session); status != http.StatusOK {
		t.Fatalf("session status = %d", status)
	}
	if session.UserID != bobUser.ID || session.Role != models.RoleMember || session.State != "authenticated" {
		t.Errorf("session = %+v", session)
	}

	content := []byte("%PDF-1.7 report")
	status, uploaded := bob.upload("document", map[string]string{"category": "School", "is_shared": "false"}, "report.pdf", "application/pdf", content)
	if status != http.StatusCreated || uploaded.Document == nil {
		t.Fatalf("upload status = %d, result = %+v", status, uploaded)
	}
	if uploaded.Document.Category != "School" || uploaded.Document.IsShared {
		t.Errorf("document = %+v", uploaded.Document)
	}

	// Blob fetch needs no credentials
	anon := newClient(t, srv)
	status, got, header := anon.do(http.MethodGet, "/api/files/"+uploaded.BlobKey, "", nil)
	if status != http.StatusOK || !bytes.Equal(got, content) {
		t.Fatalf("fetch status = %d, body = %q", status, got)
	}
	if ct := header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("fetch Content-Type = %q", ct)
	}
	if status, _, _ := anon.do(http.MethodGet, "/api/files/01HZY3Q3J5V6ZC8K6W1R9J7D2B-missing.pdf", "", nil); status != http.StatusNotFound {
		t.Errorf("unknown key status = %d, want 404", status)
	}

	sharedPath := fmt.Sprintf("/api/families/%d/shared-documents", smiths.FamilyID)
	var shared []models.SharedDocument
	alice.json(http.MethodGet, sharedPath, nil, &shared)
	if len(shared) != 0 {
		t.Errorf("shared before sharing = %d, want 0", len(shared))
	}

	sharingPath := fmt.Sprintf("/api/documents/%d/sharing", uploaded.Document.ID)
	if status := alice.json(http.MethodPatch, sharingPath, map[string]bool{"is_shared": true}, nil); status != http.StatusForbidden {
		t.Errorf("admin sharing someone else's document status = %d, want 403", status)
	}
	if status := bob.json(http.MethodPatch, sharingPath, map[string]bool{"is_shared": true}, nil); status != http.StatusOK {
		t.Fatalf("owner sharing status = %d", status)
	}

	alice.json(http.MethodGet, sharedPath, nil, &shared)
	if len(shared) != 1 || shared[0].Owner.FullName != "Bob" {
		t.Errorf("shared after sharing = %+v, want one document owned by Bob", shared)
	}

	var visible []models.Document
	alice.json(http.MethodGet, "/api/documents", nil, &visible)
	if len(visible) != 1 {
		t.Errorf("alice visible documents = %d, want 1", len(visible))
	}

	var bobDocs []models.Document
	if status := alice.json(http.MethodGet, fmt.Sprintf("/api/users/%d/documents", bobUser.ID), nil, &bobDocs); status != http.StatusOK || len(bobDocs) != 1 {
		t.Errorf("alice listing bob's documents = %d, %d docs", status, len(bobDocs))
	}

	if status := alice.json(http.MethodGet, fmt.Sprintf("/api/families/%d/shared-documents", jones.FamilyID), nil, nil); status != http.StatusForbidden {
		t.Errorf("other family's shared documents status = %d, want 403", status)
	}
}

func TestUploadRejections(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)
	family := register(c, "Smith Family", "secret1", "Alice", "alice12")
	c.json(http.MethodPost, "/api/families/login", loginFamilyRequest{"Smith Family", "secret1"}, nil)
	var login service.LoginResult
	c.json(http.MethodPost, "/api/users/login", loginUserRequest{UserID: family.AdminID, Password: "alice12"}, &login)
	c.token = login.Token

	tests := []struct {
		name        string
		kind        string
		fields      map[string]string
		filename    string
		contentType string
		size        int
		want        int
	}{
		{"executable", "document", nil, "setup.exe", "application/octet-stream", 10, http.StatusUnsupportedMediaType},
		{"pdf as photo", "photo", nil, "scan.pdf", "application/pdf", 10, http.StatusUnsupportedMediaType},
		{"too large", "document", nil, "big.pdf", "application/pdf", testMaxUpload + 1, http.StatusRequestEntityTooLarge},
		{"bad photo type", "photo", map[string]string{"photo_type": "banner"}, "me.png", "image/png", 10, http.StatusBadRequest},
		{"profile photo", "photo", map[string]string{"photo_type": "profile"}, "me.png", "image/png", 10, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := c.upload(tt.kind, tt.fields, tt.filename, tt.contentType, bytes.Repeat([]byte("x"), tt.size))
			if status != tt.want {
				t.Errorf("upload status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestAuthenticationRequired(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)

	for _, path := range []string{"/api/documents", "/api/session", "/api/users/1/documents", "/api/families/1/members"} {
		if status, _, _ := c.do(http.MethodGet, path, "", nil); status != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, status)
		}
	}

	c.token = "not-a-token"
	if status, _, _ := c.do(http.MethodGet, "/api/documents", "", nil); status != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)

	status, body, _ := c.do(http.MethodGet, "/healthz", "", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `"ok"`) {
		t.Errorf("healthz = %d %s", status, body)
	}

	status, body, _ = c.do(http.MethodGet, "/metrics", "", nil)
	if status != http.StatusOK || !strings.Contains(string(body), `familyvault_http_requests_total{method="GET",route="/healthz",status="200"}`) {
		t.Errorf("metrics = %d, missing healthz request counter", status)
	}
}

func TestLogoutClearsFamilyContext(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)
	family := register(c, "Smith Family", "secret1", "Alice", "alice12")
	c.json(http.MethodPost, "/api/families/login", loginFamilyRequest{"Smith Family", "secret1"}, nil)

	membersPath := fmt.Sprintf("/api/families/%d/members", family.FamilyID)
	if status := c.json(http.MethodGet, membersPath, nil, nil); status != http.StatusOK {
		t.Fatalf("members before logout = %d", status)
	}
	if status, _, _ := c.do(http.MethodPost, "/api/families/logout", "", nil); status != http.StatusNoContent {
		t.Fatalf("logout status = %d", status)
	}
	if status := c.json(http.MethodGet, membersPath, nil, nil); status != http.StatusUnauthorized {
		t.Errorf("members after logout = %d, want 401", status)
	}

	personal := loginUserRequest{UserID: family.AdminID, Password: "alice12"}
	if status := c.json(http.MethodPost, "/api/users/login", personal, nil); status != http.StatusUnauthorized {
		t.Errorf("personal login after logout = %d, want 401", status)
	}
	if status, _, _ := c.do(http.MethodPost, "/api/families/logout", "", nil); status != http.StatusNoContent {
		t.Errorf("repeated logout status = %d, want 204", status)
	}

	// a fresh family login always re-enters the family-selected state
	if status := c.json(http.MethodPost, "/api/families/login", loginFamilyRequest{"Smith Family", "secret1"}, nil); status != http.StatusOK {
		t.Fatalf("second family login = %d", status)
	}
	if status := c.json(http.MethodPost, "/api/users/login", personal, nil); status != http.StatusOK {
		t.Errorf("personal login after second family login = %d, want 200", status)
	}
}
