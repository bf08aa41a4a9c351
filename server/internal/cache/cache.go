package cache

import (
	"context"
	"fmt"
	"slices"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/clientledger/clientledger/server/internal/metrics"
	"github.com/clientledger/clientledger/server/internal/store"
)

const keyList = "list"
const keyAges = "ages"

type page struct {
	rows  []store.Customer
	total int
}

// Customers is a store.Customers that caches list, page and age reads and
// empties the whole cache after every successful write. FindCustomer and
// CustomerExists always reach the underlying store.
type Customers struct {
	store.Customers

	mu      sync.Mutex
	gen     uint64 // bumped on every purge; fills from an older generation are discarded
	entries *lru.Cache[string, any]
	m       *metrics.Metrics
}

var _ store.Customers = (*Customers)(nil)

// New wraps next with a cache of at most size entries.
func New(next store.Customers, size int, m *metrics.Metrics) (*Customers, error) {
	entries, err := lru.New[string, any](size)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Customers{Customers: next, entries: entries, m: m}, nil
}

// InsertCustomer writes through and purges on success.
func (c *Customers) InsertCustomer(ctx context.Context, cust *store.Customer) error {
	if err := c.Customers.InsertCustomer(ctx, cust); err != nil {
		return err
	}
	c.Purge()
	return nil
}

// UpdateCustomer writes through and purges on success.
func (c *Customers) UpdateCustomer(ctx context.Context, cust *store.Customer) error {
	if err := c.Customers.UpdateCustomer(ctx, cust); err != nil {
		return err
	}
	c.Purge()
	return nil
}

// ListCustomers serves the active list from cache when present.
func (c *Customers) ListCustomers(ctx context.Context) ([]store.Customer, error) {
	if v, ok := c.lookup("list", keyList); ok {
		return slices.Clone(v.([]store.Customer)), nil
	}
	gen := c.generation()
	rows, err := c.Customers.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}
	c.fill(gen, keyList, slices.Clone(rows))
	return rows, nil
}

// PageCustomers caches each (offset, limit) page separately.
func (c *Customers) PageCustomers(ctx context.Context, offset, limit int) ([]store.Customer, int, error) {
	key := fmt.Sprintf("page:%d:%d", offset, limit)
	if v, ok := c.lookup("page", key); ok {
		p := v.(page)
		return slices.Clone(p.rows), p.total, nil
	}
	gen := c.generation()
	rows, total, err := c.Customers.PageCustomers(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	c.fill(gen, key, page{rows: slices.Clone(rows), total: total})
	return rows, total, nil
}

// ActiveAges serves the statistics input from cache when present.
func (c *Customers) ActiveAges(ctx context.Context) ([]int, error) {
	if v, ok := c.lookup("ages", keyAges); ok {
		return slices.Clone(v.([]int)), nil
	}
	gen := c.generation()
	ages, err := c.Customers.ActiveAges(ctx)
	if err != nil {
		return nil, err
	}
	c.fill(gen, keyAges, slices.Clone(ages))
	return ages, nil
}

// Purge drops every cached entry.
func (c *Customers) Purge() {
	c.mu.Lock()
	c.gen++
	c.entries.Purge()
	c.mu.Unlock()
	c.m.CachePurges.Inc()
}

// Len returns the number of cached entries.
func (c *Customers) Len() int {
	return c.entries.Len()
}

func (c *Customers) lookup(op, key string) (any, bool) {
	v, ok := c.entries.Get(key)
	if ok {
		c.m.CacheHits.WithLabelValues(op).Inc()
	} else {
		c.m.CacheMisses.WithLabelValues(op).Inc()
	}
	return v, ok
}

func (c *Customers) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Customers) fill(gen uint64, key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.entries.Add(key, v)
}
