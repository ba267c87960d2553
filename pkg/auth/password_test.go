package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name          string
		password      string
		shouldFail    bool
		errorContains string
	}{
		{
			name:       "valid strong password",
			password:   "SecureP@ss123",
			shouldFail: false,
		},
		{
			name:          "too short",
			password:      "Pass@1",
			shouldFail:    true,
			errorContains: "at least 8 characters",
		},
		{
			name:          "missing uppercase",
			password:      "securepass@123",
			shouldFail:    true,
			errorContains: "uppercase",
		},
		{
			name:          "missing lowercase",
			password:      "SECUREPASS@123",
			shouldFail:    true,
			errorContains: "lowercase",
		},
		{
			name:          "missing digit",
			password:      "SecurePass@xyz",
			shouldFail:    true,
			errorContains: "digit",
		},
		{
			name:          "missing special character",
			password:      "SecurePass123",
			shouldFail:    true,
			errorContains: "special character",
		},
		{
			name:          "common password rejected",
			password:      "Password123!",
			shouldFail:    true,
			errorContains: "too common",
		},
		{
			name:       "valid with multiple special chars",
			password:   "Secure#P@ssw0rd",
			shouldFail: false,
		},
		{
			name:          "longer than bcrypt accepts",
			password:      "Aa1!" + strings.Repeat("x", 80),
			shouldFail:    true,
			errorContains: "at most 72 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)

			if tt.shouldFail {
				if err == nil {
					t.Errorf("expected error, got nil")
				} else if !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("error message should contain '%s', got: %v", tt.errorContains, err)
				}
			} else if err != nil {
				t.Errorf("expected no error, got: %v", err)
			}
		})
	}
}

func TestValidatePassword_ReportsEveryViolation(t *testing.T) {
	err := ValidatePassword("abc")

	validationErr, ok := err.(*PasswordValidationError)
	if !ok {
		t.Fatalf("expected *PasswordValidationError, got %T", err)
	}
	// too short, no uppercase, no digit, no special character
	if len(validationErr.Errors) != 4 {
		t.Errorf("expected 4 violations, got %d: %v", len(validationErr.Errors), validationErr.Errors)
	}
}

func TestHashAndComparePassword(t *testing.T) {
	password := "SecureP@ss123"

	hash, err := HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "" || hash == password {
		t.Fatal("hash should be non-empty and differ from the plaintext")
	}

	if err := ComparePassword(hash, password); err != nil {
		t.Errorf("ComparePassword with correct password failed: %v", err)
	}

	err = ComparePassword(hash, "WrongPassword123!")
	if !IsMismatch(err) {
		t.Errorf("expected mismatch for wrong password, got: %v", err)
	}
}

func TestHashPassword_EmptyRejected(t *testing.T) {
	if _, err := HashPassword("", bcrypt.MinCost); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestHashPassword_InvalidCostFallsBack(t *testing.T) {
	hash, err := HashPassword("SecureP@ss123", 99)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("bcrypt.Cost failed: %v", err)
	}
	if cost != DefaultBcryptCost {
		t.Errorf("expected cost %d, got %d", DefaultBcryptCost, cost)
	}
}

func TestComparePassword_MalformedHashIsNotMismatch(t *testing.T) {
	err := ComparePassword("not-a-bcrypt-hash", "anything")
	if err == nil {
		t.Fatal("expected error for malformed hash")
	}
	if IsMismatch(err) {
		t.Error("malformed hash should not be reported as a plain mismatch")
	}
}

func TestNewDummyHash(t *testing.T) {
	first, err := NewDummyHash(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewDummyHash failed: %v", err)
	}
	second, err := NewDummyHash(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewDummyHash failed: %v", err)
	}

	if first == second {
		t.Error("dummy hashes should differ")
	}
	if cost, _ := bcrypt.Cost([]byte(first)); cost != bcrypt.MinCost {
		t.Errorf("expected cost %d, got %d", bcrypt.MinCost, cost)
	}
	if !IsMismatch(ComparePassword(first, "")) {
		t.Error("empty secret should not match the dummy hash")
	}
}
