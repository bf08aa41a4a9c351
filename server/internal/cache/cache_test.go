package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/clientledger/clientledger/server/internal/metrics"
	"github.com/clientledger/clientledger/server/internal/store"
)

// countingStore counts calls that reach the wrapped store.
type countingStore struct {
	store.Customers
	lists, pages, ages int
	failWrites         bool
}

func (s *countingStore) ListCustomers(ctx context.Context) ([]store.Customer, error) {
	s.lists++
	return s.Customers.ListCustomers(ctx)
}

func (s *countingStore) PageCustomers(ctx context.Context, offset, limit int) ([]store.Customer, int, error) {
	s.pages++
	return s.Customers.PageCustomers(ctx, offset, limit)
}

func (s *countingStore) ActiveAges(ctx context.Context) ([]int, error) {
	s.ages++
	return s.Customers.ActiveAges(ctx)
}

func (s *countingStore) InsertCustomer(ctx context.Context, c *store.Customer) error {
	if s.failWrites {
		return errors.New("disk full")
	}
	return s.Customers.InsertCustomer(ctx, c)
}

func newCache(t *testing.T) (*Customers, *countingStore, *metrics.Metrics) {
	t.Helper()
	inner := &countingStore{Customers: store.NewMemory()}
	m := metrics.New()
	c, err := New(inner, 16, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, inner, m
}

func insert(t *testing.T, c *Customers, age int) {
	t.Helper()
	err := c.InsertCustomer(context.Background(), &store.Customer{
		FirstName: "Ana", LastName: "Test", Age: age,
		BirthDate: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("InsertCustomer: %v", err)
	}
}

func TestReadsAreCached(t *testing.T) {
	c, inner, m := newCache(t)
	ctx := context.Background()
	insert(t, c, 30)

	for i := 0; i < 3; i++ {
		if _, err := c.ListCustomers(ctx); err != nil {
			t.Fatalf("ListCustomers: %v", err)
		}
		if _, _, err := c.PageCustomers(ctx, 0, 10); err != nil {
			t.Fatalf("PageCustomers: %v", err)
		}
		if _, err := c.ActiveAges(ctx); err != nil {
			t.Fatalf("ActiveAges: %v", err)
		}
	}
	if inner.lists != 1 || inner.pages != 1 || inner.ages != 1 {
		t.Errorf("store calls: lists=%d pages=%d ages=%d, want 1 each", inner.lists, inner.pages, inner.ages)
	}

	mfs, _ := m.Gather()
	if got := metrics.Sum(mfs["clientledger_cache_hits_total"], nil); got != 6 {
		t.Errorf("hits: got %v, want 6", got)
	}
	if got := metrics.Sum(mfs["clientledger_cache_misses_total"], nil); got != 3 {
		t.Errorf("misses: got %v, want 3", got)
	}
}

func TestDistinctPagesCachedSeparately(t *testing.T) {
	c, inner, _ := newCache(t)
	ctx := context.Background()
	_, _, _ = c.PageCustomers(ctx, 0, 10)
	_, _, _ = c.PageCustomers(ctx, 10, 10)
	_, _, _ = c.PageCustomers(ctx, 0, 10)
	if inner.pages != 2 {
		t.Errorf("store page calls: got %d, want 2", inner.pages)
	}
}

func TestWritePurgesEverything(t *testing.T) {
	c, inner, _ := newCache(t)
	ctx := context.Background()
	insert(t, c, 30)

	_, _ = c.ActiveAges(ctx)
	_, _ = c.ListCustomers(ctx)
	if c.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", c.Len())
	}

	insert(t, c, 40)
	if c.Len() != 0 {
		t.Fatalf("Len after write: got %d, want 0", c.Len())
	}

	ages, err := c.ActiveAges(ctx)
	if err != nil {
		t.Fatalf("ActiveAges: %v", err)
	}
	if len(ages) != 2 {
		t.Errorf("ages after write: got %v, want two entries", ages)
	}
	if inner.ages != 2 {
		t.Errorf("store ages calls: got %d, want 2", inner.ages)
	}
}

func TestUpdatePurges(t *testing.T) {
	c, _, _ := newCache(t)
	ctx := context.Background()
	insert(t, c, 30)
	rows, _ := c.ListCustomers(ctx)

	cust := rows[0]
	cust.Active = false
	if err := c.UpdateCustomer(ctx, &cust); err != nil {
		t.Fatalf("UpdateCustomer: %v", err)
	}
	rows, _ = c.ListCustomers(ctx)
	if len(rows) != 0 {
		t.Errorf("list after soft delete: got %d rows, want 0", len(rows))
	}
}

func TestFailedWriteKeepsCache(t *testing.T) {
	c, inner, _ := newCache(t)
	ctx := context.Background()
	_, _ = c.ActiveAges(ctx)

	inner.failWrites = true
	err := c.InsertCustomer(ctx, &store.Customer{FirstName: "X", LastName: "Y"})
	if err == nil {
		t.Fatal("expected write error")
	}
	if c.Len() != 1 {
		t.Errorf("Len after failed write: got %d, want 1", c.Len())
	}
}

func TestCallerCannotMutateCachedSlice(t *testing.T) {
	c, _, _ := newCache(t)
	ctx := context.Background()
	insert(t, c, 30)

	ages, _ := c.ActiveAges(ctx)
	ages[0] = 99
	again, _ := c.ActiveAges(ctx)
	if again[0] != 30 {
		t.Fatalf("cached slice mutated: got %d", again[0])
	}
}

func TestStaleFillDiscarded(t *testing.T) {
	c, _, _ := newCache(t)
	gen := c.generation()
	c.Purge()
	c.fill(gen, keyAges, []int{1})
	if c.Len() != 0 {
		t.Fatal("fill from an older generation was kept")
	}
}

func TestNew_InvalidSize(t *testing.T) {
	if _, err := New(store.NewMemory(), 0, metrics.New()); err == nil {
		t.Fatal("expected error for size 0")
	}
}
