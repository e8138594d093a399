package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password domains. A hash produced in one domain never verifies in another.
const (
	FamilyDomain = "family"
	MemberDomain = "member"
)

// PasswordHasher hashes and checks passwords for a single credential domain
type PasswordHasher struct {
	domain string
	cost   int
}

// NewPasswordHasher creates a hasher for domain using the given bcrypt cost
func NewPasswordHasher(domain string, cost int) (*PasswordHasher, error) {
	if domain == "" {
		return nil, errors.New("password domain is required")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	return &PasswordHasher{domain: domain, cost: cost}, nil
}

// Domain returns the hasher's credential domain
func (h *PasswordHasher) Domain() string {
	return h.domain
}

// Hash returns a bcrypt hash of password bound to the hasher's domain
func (h *PasswordHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(h.tagged(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Check reports whether password matches hash in the hasher's domain
func (h *PasswordHasher) Check(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), h.tagged(password)) == nil
}

func (h *PasswordHasher) tagged(password string) []byte {
	return []byte(h.domain + ":" + password)
}
