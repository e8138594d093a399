package security

import (
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

const (
	familySessionName = "family_session"
	familyIDKey       = "family_id"
)

// IsSecureRequest determines if the request is over HTTPS
// Checks TLS connection, X-Forwarded-Proto header (for reverse proxies), and URL scheme
func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "https" {
		return true
	}
	return r.URL.Scheme == "https"
}

// FamilySessions keeps the selected family in a signed cookie between family login and personal login
type FamilySessions struct {
	store  *sessions.CookieStore
	maxAge time.Duration
}

// NewFamilySessions creates a cookie store. blockKey may be nil, in which case cookies are signed but not encrypted.
func NewFamilySessions(hashKey, blockKey []byte, maxAge time.Duration) *FamilySessions {
	keys := [][]byte{hashKey}
	if len(blockKey) > 0 {
		keys = append(keys, blockKey)
	}
	return &FamilySessions{store: sessions.NewCookieStore(keys...), maxAge: maxAge}
}

// Select records familyID as the request's family context
func (s *FamilySessions) Select(w http.ResponseWriter, r *http.Request, familyID int64) error {
	// A cookie that fails to decode yields a fresh session, which is overwritten here.
	sess, _ := s.store.Get(r, familySessionName)
	sess.Options = s.options(r, int(s.maxAge.Seconds()))
	sess.Values[familyIDKey] = familyID
	return sess.Save(r, w)
}

// FamilyID returns the family selected by an earlier Select, if any
func (s *FamilySessions) FamilyID(r *http.Request) (int64, bool) {
	sess, err := s.store.Get(r, familySessionName)
	if err != nil {
		return 0, false
	}
	id, ok := sess.Values[familyIDKey].(int64)
	if !ok || id <= 0 {
		return 0, false
	}
	return id, true
}

// Clear removes the family context cookie
func (s *FamilySessions) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.store.Get(r, familySessionName)
	sess.Options = s.options(r, -1)
	sess.Values = map[interface{}]interface{}{}
	return sess.Save(r, w)
}

func (s *FamilySessions) options(r *http.Request, maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	}
}
