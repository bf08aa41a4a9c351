package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/clientledger/clientledger/server/internal/metrics"
	"github.com/clientledger/clientledger/server/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrWrongPassword      = errors.New("current password is incorrect")
	ErrSamePassword       = errors.New("new password must differ from the current one")
)

// ValidationError lists per-field problems in an auth request.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// FieldErrors returns the problems keyed by JSON field name.
func (e *ValidationError) FieldErrors() map[string]string { return e.Fields }

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Principal is the authenticated caller.
type Principal struct {
	Email     string
	FirstName string
	LastName  string
	Role      store.Role
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	TTL       time.Duration
	User      Principal
	IssuedAt  time.Time
}

// RegisterRequest describes a new account.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role,omitempty"` // USER (default) or ADMIN
}

// Service manages accounts and tokens.
type Service struct {
	users  store.Users
	tokens *Tokens
	m      *metrics.Metrics
	cost   int
	now    func() time.Time
}

// NewService returns a Service hashing new passwords at bcrypt.DefaultCost.
func NewService(users store.Users, tokens *Tokens, m *metrics.Metrics) *Service {
	return &Service{users: users, tokens: tokens, m: m, cost: bcrypt.DefaultCost, now: time.Now}
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Login checks email and password and issues a token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	sess, err := s.login(ctx, normalizeEmail(email), password)
	s.m.AuthAttempts.WithLabelValues("login", metrics.Result(err)).Inc()
	return sess, err
}

func (s *Service) login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("auth: login for unknown user", "email", email)
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("auth: find user: %w", err)
	}
	if !u.Active {
		slog.Warn("auth: login for inactive user", "email", email)
		return Session{}, ErrInvalidCredentials
	}
	ok, err := checkPassword(u.PasswordHash, password)
	if err != nil {
		return Session{}, fmt.Errorf("auth: check password for %s: %w", email, err)
	}
	if !ok {
		slog.Warn("auth: wrong password", "email", email)
		return Session{}, ErrInvalidCredentials
	}

	tok, exp, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, err
	}
	slog.Info("auth: login", "email", email, "role", u.Role)
	return Session{
		Token:     tok,
		ExpiresAt: exp,
		TTL:       s.tokens.TTL(),
		User:      principalOf(u),
		IssuedAt:  s.now(),
	}, nil
}

// Register creates an account on behalf of the administrator adminEmail.
func (s *Service) Register(ctx context.Context, adminEmail string, req RegisterRequest) (Principal, error) {
	p, err := s.register(ctx, normalizeEmail(adminEmail), req)
	s.m.AuthAttempts.WithLabelValues("register", metrics.Result(err)).Inc()
	return p, err
}

func (s *Service) register(ctx context.Context, adminEmail string, req RegisterRequest) (Principal, error) {
	admin, err := s.users.FindUserByEmail(ctx, adminEmail)
	if errors.Is(err, store.ErrNotFound) {
		return Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, fmt.Errorf("auth: find admin: %w", err)
	}
	if !admin.Active || admin.Role != store.RoleAdmin {
		slog.Warn("auth: register attempted without admin role", "email", adminEmail)
		return Principal{}, ErrForbidden
	}

	verr := &ValidationError{}
	email := normalizeEmail(req.Email)
	if email == "" {
		verr.add("email", "is required")
	} else if a, err := mail.ParseAddress(email); err != nil || a.Address != email {
		verr.add("email", "is not a valid email address")
	}
	if req.Password == "" {
		verr.add("password", "is required")
	} else if msg := passwordProblem(req.Password); msg != "" {
		verr.add("password", msg)
	}
	checkName := func(field, v string) {
		v = strings.TrimSpace(v)
		switch n := utf8.RuneCountInString(v); {
		case n == 0:
			verr.add(field, "is required")
		case n < 2 || n > 100:
			verr.add(field, "must be between 2 and 100 characters")
		}
	}
	checkName("first_name", req.FirstName)
	checkName("last_name", req.LastName)
	role := store.RoleUser
	if req.Role != "" {
		role = store.Role(strings.ToUpper(req.Role))
		if !role.Valid() {
			verr.add("role", "must be USER or ADMIN")
		}
	}
	if err := verr.orNil(); err != nil {
		return Principal{}, err
	}

	hash, err := HashPassword(req.Password, s.cost)
	if err != nil {
		return Principal{}, err
	}
	u := &store.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Role:         role,
		Active:       true,
	}
	if err := s.users.InsertUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Principal{}, fmt.Errorf("%w: %s", ErrEmailTaken, email)
		}
		return Principal{}, fmt.Errorf("auth: insert user: %w", err)
	}
	slog.Info("auth: user registered", "email", email, "role", role, "by", adminEmail)
	return principalOf(u), nil
}

// ChangePassword replaces the password of email after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, email, oldPassword, newPassword string) error {
	err := s.changePassword(ctx, normalizeEmail(email), oldPassword, newPassword)
	s.m.AuthAttempts.WithLabelValues("change_password", metrics.Result(err)).Inc()
	return err
}

func (s *Service) changePassword(ctx context.Context, email, oldPassword, newPassword string) error {
	verr := &ValidationError{}
	if oldPassword == "" {
		verr.add("old_password", "is required")
	}
	if newPassword == "" {
		verr.add("new_password", "is required")
	} else if msg := passwordProblem(newPassword); msg != "" {
		verr.add("new_password", msg)
	}
	if err := verr.orNil(); err != nil {
		return err
	}

	u, err := s.users.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnauthenticated
	}
	if err != nil {
		return fmt.Errorf("auth: find user: %w", err)
	}
	ok, err := checkPassword(u.PasswordHash, oldPassword)
	if err != nil {
		return fmt.Errorf("auth: check password for %s: %w", email, err)
	}
	if !ok {
		return ErrWrongPassword
	}
	if oldPassword == newPassword {
		return ErrSamePassword
	}

	hash, err := HashPassword(newPassword, s.cost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return fmt.Errorf("auth: update user: %w", err)
	}
	slog.Info("auth: password changed", "email", email)
	return nil
}

// Validate verifies token and returns the active user it names. Token
// problems are reported as *TokenError; an unknown or inactive user as
// ErrUnauthenticated.
func (s *Service) Validate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Principal{}, err
	}
	u, err := s.users.FindUserByEmail(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, fmt.Errorf("auth: find user: %w", err)
	}
	if !u.Active {
		return Principal{}, ErrUnauthenticated
	}
	return principalOf(u), nil
}

// SeedAdmin creates an administrator account unless email is already
// registered. It reports whether an account was created.
func (s *Service) SeedAdmin(ctx context.Context, email, password string) (bool, error) {
	email = normalizeEmail(email)
	exists, err := s.users.UserExists(ctx, email)
	if err != nil {
		return false, fmt.Errorf("auth: seed admin: %w", err)
	}
	if exists {
		return false, nil
	}
	if msg := passwordProblem(password); msg != "" {
		return false, fmt.Errorf("auth: seed admin: password %s", msg)
	}
	hash, err := HashPassword(password, s.cost)
	if err != nil {
		return false, err
	}
	u := &store.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Admin",
		LastName:     "System",
		Role:         store.RoleAdmin,
		Active:       true,
	}
	if err := s.users.InsertUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return false, nil
		}
		return false, fmt.Errorf("auth: seed admin: %w", err)
	}
	slog.Info("auth: administrator seeded", "email", email)
	return true, nil
}

func principalOf(u *store.User) Principal {
	return Principal{Email: u.Email, FirstName: u.FirstName, LastName: u.LastName, Role: u.Role}
}
