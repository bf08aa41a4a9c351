package auth

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 100

	// bcrypt reads at most 72 bytes of input.
	bcryptMaxBytes = 72
)

// passwordProblem returns why pw fails the password policy, or "".
func passwordProblem(pw string) string {
	n := len([]rune(pw))
	if n < minPasswordLen || n > maxPasswordLen {
		return fmt.Sprintf("must be between %d and %d characters", minPasswordLen, maxPasswordLen)
	}
	var digit, lower, upper bool
	for _, r := range pw {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		}
	}
	if !digit || !lower || !upper {
		return "must contain at least one digit, one lowercase and one uppercase letter"
	}
	return ""
}

func bcryptInput(pw string) []byte {
	b := []byte(pw)
	if len(b) > bcryptMaxBytes {
		b = b[:bcryptMaxBytes]
	}
	return b
}

// HashPassword returns the bcrypt hash of pw at the given cost.
func HashPassword(pw string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword(bcryptInput(pw), cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(h), nil
}

// checkPassword reports whether pw matches hash. A malformed hash is an error.
func checkPassword(hash, pw string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), bcryptInput(pw))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}
