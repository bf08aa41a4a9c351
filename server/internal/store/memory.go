package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// Memory is a thread-safe in-memory Store.
type Memory struct {
	mu        sync.RWMutex
	customers map[int64]*Customer
	users     map[string]*User // keyed by lower-cased email
	nextCust  int64
	nextUser  int64
	now       func() time.Time // injectable for deterministic tests
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		customers: make(map[int64]*Customer),
		users:     make(map[string]*User),
		now:       time.Now,
	}
}

// InsertCustomer stores a copy of c.
func (m *Memory) InsertCustomer(_ context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCust++
	now := m.now().UTC()
	c.ID = m.nextCust
	c.BirthDate = dateOnly(c.BirthDate)
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Active = true
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

// UpdateCustomer replaces the stored active record. CreatedAt and CreatedBy
// are kept.
func (m *Memory) UpdateCustomer(_ context.Context, c *Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.customers[c.ID]
	if !ok || !old.Active {
		return ErrNotFound
	}
	c.BirthDate = dateOnly(c.BirthDate)
	c.CreatedAt = old.CreatedAt
	c.CreatedBy = old.CreatedBy
	c.UpdatedAt = m.now().UTC()
	cp := *c
	m.customers[c.ID] = &cp
	return nil
}

// FindCustomer returns a copy of the active customer with id.
func (m *Memory) FindCustomer(_ context.Context, id int64) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok || !c.Active {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListCustomers returns copies of all active customers, newest first.
func (m *Memory) ListCustomers(_ context.Context) ([]Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked(), nil
}

// PageCustomers slices the newest-first active list.
func (m *Memory) PageCustomers(_ context.Context, offset, limit int) ([]Customer, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.activeLocked()
	total := len(all)
	offset = max(offset, 0)
	if offset >= total {
		return []Customer{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

// CustomerExists scans every record, including soft-deleted ones.
func (m *Memory) CustomerExists(_ context.Context, firstName, lastName string, birthDate time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bd := dateOnly(birthDate)
	for _, c := range m.customers {
		if c.FirstName == firstName && c.LastName == lastName && c.BirthDate.Equal(bd) {
			return true, nil
		}
	}
	return false, nil
}

// ActiveAges returns the ages of active customers in id order.
func (m *Memory) ActiveAges(_ context.Context) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.customers))
	for id, c := range m.customers {
		if c.Active {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	ages := make([]int, len(ids))
	for i, id := range ids {
		ages[i] = m.customers[id].Age
	}
	return ages, nil
}

// activeLocked must be called with mu held.
func (m *Memory) activeLocked() []Customer {
	out := make([]Customer, 0, len(m.customers))
	for _, c := range m.customers {
		if c.Active {
			out = append(out, *c)
		}
	}
	slices.SortFunc(out, newestFirst)
	return out
}

func newestFirst(a, b Customer) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}

// InsertUser stores a copy of u.
func (m *Memory) InsertUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Email)
	if _, ok := m.users[key]; ok {
		return ErrConflict
	}
	m.nextUser++
	u.ID = m.nextUser
	u.Email = key
	u.CreatedAt = m.now().UTC()
	cp := *u
	m.users[key] = &cp
	return nil
}

// UpdateUser replaces the stored user with the same email.
func (m *Memory) UpdateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(u.Email)
	old, ok := m.users[key]
	if !ok {
		return ErrNotFound
	}
	u.ID = old.ID
	u.Email = key
	u.CreatedAt = old.CreatedAt
	cp := *u
	m.users[key] = &cp
	return nil
}

// FindUserByEmail returns a copy of the user with email.
func (m *Memory) FindUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// UserExists reports whether email is registered.
func (m *Memory) UserExists(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[strings.ToLower(email)]
	return ok, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
