package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultBcryptCost = 12
	MinPasswordLen    = 8
	MaxPasswordLen    = 72 // bcrypt ignores anything past 72 bytes
)

// ErrPasswordMismatch is returned by ComparePassword for a wrong password
var ErrPasswordMismatch = bcrypt.ErrMismatchedHashAndPassword

// PasswordValidationError holds validation error details (internal use only)
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "password does not meet requirements: " + strings.Join(e.Errors, "; ")
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password":     true,
	"12345678":     true,
	"qwerty123":    true,
	"password123":  true,
	"password123!": true,
	"letmein1!":    true,
	"welcome1!":    true,
	"passw0rd":     true,
	"passw0rd!":    true,
	"admin123!":    true,
	"trustno1":     true,
}

// HashPassword hashes password with bcrypt at the given cost;
// a cost outside bcrypt's range falls back to DefaultBcryptCost
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}

	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// ComparePassword returns nil on a match and ErrPasswordMismatch on a wrong password.
// Any other error means the stored hash is unusable.
func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// IsMismatch reports whether err from ComparePassword is an ordinary wrong password
func IsMismatch(err error) bool {
	return errors.Is(err, ErrPasswordMismatch)
}

// NewDummyHash returns a bcrypt hash of a random secret nobody knows.
// Comparing against it costs the same as comparing against a real hash of the same cost.
func NewDummyHash(cost int) (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("failed to generate dummy secret: %w", err)
	}
	return HashPassword(base64.RawStdEncoding.EncodeToString(secret)[:MaxPasswordLen/2], cost)
}

// ValidatePassword enforces strong password requirements for new passwords
func ValidatePassword(password string) error {
	violations := make([]string, 0)

	if len(password) < MinPasswordLen {
		violations = append(violations, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		violations = append(violations, fmt.Sprintf("must be at most %d bytes", MaxPasswordLen))
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	hasSpecial := false

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		violations = append(violations, "must contain at least one uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "must contain at least one lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "must contain at least one digit")
	}
	if !hasSpecial {
		violations = append(violations, "must contain at least one special character")
	}

	if commonPasswords[strings.ToLower(password)] {
		violations = append(violations, "is too common")
	}

	if len(violations) > 0 {
		return &PasswordValidationError{Errors: violations}
	}
	return nil
}
