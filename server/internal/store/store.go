package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by every backend.
var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: already exists")
)

// Role is a user's authorization role.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Customer is one customer record. BirthDate carries only a calendar date
// (UTC midnight). Inactive records are soft-deleted and invisible to reads.
type Customer struct {
	ID        int64
	FirstName string
	LastName  string
	Age       int
	BirthDate time.Time
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
	Active    bool
}

// User is an account allowed to call the API. Email is stored lower-cased.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Role         Role
	CreatedAt    time.Time
	Active       bool
}

// Customers persists customer records.
type Customers interface {
	// InsertCustomer assigns c.ID, stamps CreatedAt and UpdatedAt and marks c active.
	InsertCustomer(ctx context.Context, c *Customer) error
	// UpdateCustomer overwrites the active record with c.ID and stamps
	// UpdatedAt. Setting Active to false soft-deletes the record. A missing or
	// soft-deleted record yields ErrNotFound.
	UpdateCustomer(ctx context.Context, c *Customer) error
	// FindCustomer returns the active customer with id, or ErrNotFound.
	FindCustomer(ctx context.Context, id int64) (*Customer, error)
	// ListCustomers returns all active customers, newest first.
	ListCustomers(ctx context.Context) ([]Customer, error)
	// PageCustomers returns one page of active customers, newest first,
	// together with the total number of active customers. A negative offset
	// is treated as 0.
	PageCustomers(ctx context.Context, offset, limit int) ([]Customer, int, error)
	// CustomerExists reports whether any record, active or not, has the same
	// first name, last name and birth date.
	CustomerExists(ctx context.Context, firstName, lastName string, birthDate time.Time) (bool, error)
	// ActiveAges returns the stored age of every active customer.
	ActiveAges(ctx context.Context) ([]int, error)
}

// Users persists API accounts.
type Users interface {
	// InsertUser assigns u.ID and stamps CreatedAt. It returns ErrConflict
	// when the email is taken.
	InsertUser(ctx context.Context, u *User) error
	UpdateUser(ctx context.Context, u *User) error
	// FindUserByEmail returns the user with email, active or not, or ErrNotFound.
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	UserExists(ctx context.Context, email string) (bool, error)
}

// Store is a complete backend.
type Store interface {
	Customers
	Users
	Ping(ctx context.Context) error
	Close() error
}

// dateOnly truncates t to its calendar date in UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
