package validation

import (
	"fmt"
	"html"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bobbyillbrian-max/family-ms/internal/models"
	"github.com/microcosm-cc/bluemonday"
)

const (
	MinPasswordLength = 6
	// MaxPasswordLength keeps the domain-tagged bcrypt input under bcrypt's 72 byte limit.
	MaxPasswordLength = 64
	maxNameLength     = 100
	// MaxFileNameLength fits the VARCHAR(255) original_name column
	MaxFileNameLength = 255
)

// ValidationError represents a malformed field
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PasswordPolicyError is returned when a password does not satisfy its domain's rules
type PasswordPolicyError struct {
	Message string
}

func (e PasswordPolicyError) Error() string {
	return "password policy: " + e.Message
}

var textPolicy = bluemonday.StrictPolicy()

// SanitizeText strips markup and surrounding whitespace from a free-text field
func SanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// SanitizeFileName reduces a client-supplied file name to its base name without markup,
// truncated to MaxFileNameLength characters. Spaces and punctuation are kept.
func SanitizeFileName(name string) string {
	name = SanitizeText(name)
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	if utf8.RuneCountInString(name) > MaxFileNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxFileNameLength]))
	}
	return name
}

// ValidateFamilyName checks a family's display name
func ValidateFamilyName(name string) error {
	return validateName("name", name)
}

// ValidateFamilyPassword checks the shared family secret: at least 6 characters
func ValidateFamilyPassword(password string) error {
	return checkLength(password)
}

// ValidatePersonalPassword checks a member password: at least 6 characters, one of them a digit
func ValidatePersonalPassword(password string) error {
	if err := checkLength(password); err != nil {
		return err
	}
	if !strings.ContainsFunc(password, isASCIIDigit) {
		return PasswordPolicyError{Message: "password must contain at least one number"}
	}
	return nil
}

func isASCIIDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

func checkLength(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return PasswordPolicyError{Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	}
	if len(password) > MaxPasswordLength {
		return PasswordPolicyError{Message: fmt.Sprintf("password must be at most %d bytes", MaxPasswordLength)}
	}
	return nil
}

// NormalizeProfile sanitizes the text fields of p in place and validates the result
func NormalizeProfile(p *models.Profile) error {
	p.FullName = SanitizeText(p.FullName)
	p.Relationship = SanitizeText(p.Relationship)

	if err := validateName("full_name", p.FullName); err != nil {
		return err
	}
	if err := validateName("relationship", p.Relationship); err != nil {
		return err
	}
	if p.DateOfBirth != nil && p.DateOfBirth.After(time.Now()) {
		return ValidationError{Field: "date_of_birth", Message: "date of birth cannot be in the future"}
	}
	return nil
}

func validateName(field, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ValidationError{Field: field, Message: field + " is required"}
	}
	if utf8.RuneCountInString(value) > maxNameLength {
		return ValidationError{Field: field, Message: fmt.Sprintf("%s must be at most %d characters", field, maxNameLength)}
	}
	return nil
}
