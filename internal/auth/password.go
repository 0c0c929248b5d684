package auth

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 8

// Password policy violations, reported as locale keys.
const (
	PolicyTooShort = "password.too_short"
	PolicyNoUpper  = "password.no_upper"
	PolicyNoLower  = "password.no_lower"
	PolicyNoDigit  = "password.no_digit"
	PolicyNoSymbol = "password.no_symbol"
)

// PasswordPolicy is the gate applied to user-chosen passwords.
type PasswordPolicy struct {
	RequireSymbol bool
}

var (
	BasicPolicy  = PasswordPolicy{}
	StrictPolicy = PasswordPolicy{RequireSymbol: true}
)

// PolicyByName returns StrictPolicy for "strict" and BasicPolicy otherwise.
func PolicyByName(name string) PasswordPolicy {
	if name == "strict" {
		return StrictPolicy
	}
	return BasicPolicy
}

// Validate returns the violated rules, or nil when the password is acceptable.
func (p PasswordPolicy) Validate(password string) []string {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsSpace(r):
			hasSymbol = true
		}
	}

	var violations []string
	if len([]rune(password)) < MinPasswordLength {
		violations = append(violations, PolicyTooShort)
	}
	if !hasUpper {
		violations = append(violations, PolicyNoUpper)
	}
	if !hasLower {
		violations = append(violations, PolicyNoLower)
	}
	if !hasDigit {
		violations = append(violations, PolicyNoDigit)
	}
	if p.RequireSymbol && !hasSymbol {
		violations = append(violations, PolicyNoSymbol)
	}
	return violations
}

// HashPassword hashes a password with bcrypt at the given cost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
