package main

import (
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	passwordMinLength = 8
	passwordMaxLength = 128
)

// specialCharacters is the exact enumerated symbol set a password's
// "special character" requirement is checked against.
const specialCharacters = "!@#$%^&*_-+=()[]{}|\\:;\"'<>,.?/~`"

// validatePasswordComplexity enforces length and composition, returning the
// first violated rule as a distinct, human-readable error.
func validatePasswordComplexity(password string) error {
	if len(password) < passwordMinLength {
		return fmt.Errorf("Password must be at least %d characters", passwordMinLength)
	}
	if len(password) > passwordMaxLength {
		return fmt.Errorf("Password must be at most %d characters", passwordMaxLength)
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case containsRune(specialCharacters, r):
			hasSpecial = true
		}
	}

	switch {
	case !hasUpper:
		return fmt.Errorf("Password must contain at least one uppercase letter")
	case !hasLower:
		return fmt.Errorf("Password must contain at least one lowercase letter")
	case !hasDigit:
		return fmt.Errorf("Password must contain at least one digit")
	case !hasSpecial:
		return fmt.Errorf("Password must contain at least one special character")
	}
	return nil
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}

// hashPassword bcrypt-hashes password at the library's default cost. Salt
// randomness means two calls with the same input yield different hashes.
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// verifyPassword reports whether password matches hash.
func verifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// dummyPasswordHash lazily computes a fixed, process-global bcrypt hash used
// to equalize authentication latency when no matching user exists (see
// authenticateUser). Falls back to a literal bcrypt-shaped hash if hashing
// somehow fails, so the dummy verification path is still exercised.
func dummyPasswordHash() string {
	dummyHashOnce.Do(func() {
		h, err := hashPassword("dummy_password_for_timing_attack")
		if err != nil {
			h = "$2b$12$000000000000000000000000000000000000000000000000000"
		}
		dummyHash = h
	})
	return dummyHash
}
