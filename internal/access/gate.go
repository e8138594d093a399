package access

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bobbyillbrian-max/family-ms/internal/security"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("access denied")
)

// Principal is what a request has proven about its caller
type Principal struct {
	State    State
	FamilyID int64
	// Claims is set only in the Authenticated state
	Claims *security.Claims
}

// Gate checks credentials and scopes. The role claim is never consulted.
type Gate struct {
	tokens   *security.TokenIssuer
	families *security.FamilySessions
}

// NewGate creates a gate over the token issuer and family cookie store
func NewGate(tokens *security.TokenIssuer, families *security.FamilySessions) *Gate {
	return &Gate{tokens: tokens, families: families}
}

// Authenticate verifies an Authorization header value of the form "Bearer <token>"
func (g *Gate) Authenticate(authorization string) (*security.Claims, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authorization), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return nil, ErrUnauthenticated
	}
	return g.tokens.Verify(strings.TrimSpace(token))
}

// Resolve works out the caller's state from the request. A bearer token that fails to
// verify is an error rather than a fall back to the family cookie.
func (g *Gate) Resolve(r *http.Request) (Principal, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		claims, err := g.Authenticate(header)
		if err != nil {
			return Principal{}, err
		}
		return Principal{State: Authenticated, FamilyID: claims.FamilyID, Claims: claims}, nil
	}
	if familyID, ok := g.families.FamilyID(r); ok {
		return Principal{State: FamilySelected, FamilyID: familyID}, nil
	}
	return Principal{State: Unauthenticated}, nil
}

// RequireFamily checks that p carries family context for familyID
func (g *Gate) RequireFamily(p Principal, familyID int64) error {
	if p.State == Unauthenticated {
		return ErrUnauthenticated
	}
	if p.FamilyID != familyID {
		return ErrForbidden
	}
	return nil
}

// RequireOwner checks that the authenticated caller is ownerID
func (g *Gate) RequireOwner(claims *security.Claims, ownerID int64) error {
	if claims == nil {
		return ErrUnauthenticated
	}
	if claims.UserID != ownerID {
		return ErrForbidden
	}
	return nil
}
