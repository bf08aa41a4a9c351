package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clientledger/clientledger/server/internal/store"
)

// TokenKind classifies why a token was rejected.
type TokenKind string

const (
	KindExpired          TokenKind = "expired"
	KindMalformed        TokenKind = "malformed"
	KindSignatureInvalid TokenKind = "signature_invalid"
	KindUnsupported      TokenKind = "unsupported"
	KindInvalid          TokenKind = "invalid"
)

// TokenError is returned by Tokens.Parse.
type TokenError struct {
	Kind TokenKind
	Err  error
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token %s: %v", e.Kind, e.Err)
}

func (e *TokenError) Unwrap() error { return e.Err }

// Claims is the payload of an issued token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies signed tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokens returns a Tokens signing with secret. Tokens expire after ttl.
func NewTokens(secret []byte, ttl time.Duration, issuer string) *Tokens {
	return &Tokens{secret: secret, ttl: ttl, issuer: issuer, now: time.Now}
}

// TTL returns the lifetime of issued tokens.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Issue signs a token for u and returns it with its expiry time.
func (t *Tokens) Issue(u *store.User) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.Email,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return s, exp, nil
}

var errUnsupportedAlg = errors.New("signing method not accepted")

// Parse verifies raw and returns its claims. Every failure is a *TokenError.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &TokenError{Kind: KindInvalid, Err: errors.New("empty token")}
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(tok *jwt.Token) (any, error) {
			if tok.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%w: %s", errUnsupportedAlg, tok.Method.Alg())
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, &TokenError{Kind: classify(err), Err: err}
	}
	if claims.Subject == "" {
		return nil, &TokenError{Kind: KindInvalid, Err: errors.New("missing subject")}
	}
	return claims, nil
}

func classify(err error) TokenKind {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return KindExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return KindMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return KindSignatureInvalid
	case errors.Is(err, jwt.ErrTokenUnverifiable), errors.Is(err, errUnsupportedAlg):
		return KindUnsupported
	default:
		return KindInvalid
	}
}
