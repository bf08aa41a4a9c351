package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/clientledger/clientledger/server/internal/compute"
	"github.com/clientledger/clientledger/server/internal/metrics"
	"github.com/clientledger/clientledger/server/internal/notify"
	"github.com/clientledger/clientledger/server/internal/store"
)

// Page size limits.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	MaxBatchSize    = 100
)

var (
	// ErrNotFound is returned for unknown or soft-deleted customers.
	ErrNotFound = errors.New("customer not found")
	// ErrDuplicate is returned when a customer with the same first name,
	// last name and birth date was already registered.
	ErrDuplicate = errors.New("a customer with the same name and birth date already exists")
)

// Notifier accepts fire-and-forget notifications.
type Notifier interface {
	Send(msg notify.Message) bool
}

// Options configures a Service.
type Options struct {
	// LifeExpectancyYears feeds every projection; zero uses the default of 75.
	LifeExpectancyYears int

	// Now is the clock used for "today"; nil uses time.Now.
	Now func() time.Time

	// OnChange, if set, is called after every successful write.
	OnChange func()
}

// Service implements customer record management on top of a store.
//
// Service is safe for concurrent use.
type Service struct {
	store          store.Customers
	notifier       Notifier
	m              *metrics.Metrics
	lifeExpectancy int
	now            func() time.Time
	onChange       func()
}

// New creates a Service.
func New(st store.Customers, n Notifier, m *metrics.Metrics, opts Options) *Service {
	if opts.LifeExpectancyYears <= 0 {
		opts.LifeExpectancyYears = compute.DefaultLifeExpectancyYears
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OnChange == nil {
		opts.OnChange = func() {}
	}
	return &Service{
		store:          st,
		notifier:       n,
		m:              m,
		lifeExpectancy: opts.LifeExpectancyYears,
		now:            opts.Now,
		onChange:       opts.OnChange,
	}
}

// LifeExpectancyYears returns the configured projection horizon.
func (s *Service) LifeExpectancyYears() int { return s.lifeExpectancy }

// Create registers a new customer on behalf of actor. The administrator is
// notified; notifyTo, when non-empty, additionally receives a short note.
func (s *Service) Create(ctx context.Context, actor string, req Request, notifyTo string) (View, error) {
	v, err := s.create(ctx, actor, req)
	s.m.CustomerOps.WithLabelValues("create", metrics.Result(err)).Inc()
	if err != nil {
		return View{}, err
	}

	s.notifier.Send(notify.CustomerCreated(notify.CustomerInfo{
		ID:             v.ID,
		FirstName:      v.FirstName,
		LastName:       v.LastName,
		Age:            v.Age,
		BirthDate:      time.Time(v.BirthDate),
		ProjectedDate:  time.Time(v.ProjectedDate),
		RemainingYears: v.RemainingYears,
		CreatedAt:      v.CreatedAt,
	}))
	if notifyTo != "" {
		s.notifier.Send(notify.Custom(notifyTo,
			fmt.Sprintf("Customer created - %s %s", v.FirstName, v.LastName),
			fmt.Sprintf("Customer %d (%s %s, age %d) was created by %s.", v.ID, v.FirstName, v.LastName, v.Age, actor),
		))
	}
	s.onChange()
	return v, nil
}

// create validates and inserts one customer without notifying anyone.
func (s *Service) create(ctx context.Context, actor string, req Request) (View, error) {
	now := s.now()
	verr := &ValidationError{}
	f, ok := req.check(now, "", verr)
	if !ok {
		return View{}, verr
	}
	return s.insert(ctx, actor, f, now)
}

func (s *Service) insert(ctx context.Context, actor string, f fields, now time.Time) (View, error) {
	if err := compute.ValidateAge(f.Age, f.BirthDate, now); err != nil {
		return View{}, err
	}
	exists, err := s.store.CustomerExists(ctx, f.FirstName, f.LastName, f.BirthDate)
	if err != nil {
		return View{}, fmt.Errorf("customer: duplicate check: %w", err)
	}
	if exists {
		return View{}, ErrDuplicate
	}

	c := &store.Customer{
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Age:       f.Age,
		BirthDate: f.BirthDate,
		CreatedBy: actor,
	}
	if err := s.store.InsertCustomer(ctx, c); err != nil {
		return View{}, fmt.Errorf("customer: insert: %w", err)
	}
	slog.Info("customer: created", "id", c.ID, "created_by", actor)
	return s.view(c, now), nil
}

// Get returns the active customer with id.
func (s *Service) Get(ctx context.Context, id int64) (View, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.view(c, s.now()), nil
}

// List returns every active customer, newest first.
func (s *Service) List(ctx context.Context) ([]View, error) {
	rows, err := s.store.ListCustomers(ctx)
	if err != nil {
		return nil, fmt.Errorf("customer: list: %w", err)
	}
	today := s.now()
	out := make([]View, len(rows))
	for i := range rows {
		out[i] = s.view(&rows[i], today)
	}
	return out, nil
}

// Page returns one page of active customers, newest first. page starts at
// 0; size 0 selects DefaultPageSize.
func (s *Service) Page(ctx context.Context, page, size int) (Page, error) {
	if size == 0 {
		size = DefaultPageSize
	}
	verr := &ValidationError{}
	if page < 0 {
		verr.add("page", "must not be negative")
	}
	if size < 1 || size > MaxPageSize {
		verr.add("size", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	} else if page > math.MaxInt/size {
		verr.add("page", "is too large")
	}
	if !verr.empty() {
		return Page{}, verr
	}

	rows, total, err := s.store.PageCustomers(ctx, page*size, size)
	if err != nil {
		return Page{}, fmt.Errorf("customer: page: %w", err)
	}
	today := s.now()
	items := make([]View, len(rows))
	for i := range rows {
		items[i] = s.view(&rows[i], today)
	}
	return Page{
		Items:      items,
		Page:       page,
		Size:       size,
		TotalItems: total,
		TotalPages: (total + size - 1) / size,
	}, nil
}

// Update replaces the content of an active customer. The age consistency
// check applies; the duplicate check does not.
func (s *Service) Update(ctx context.Context, id int64, req Request) (View, error) {
	v, err := s.update(ctx, id, req)
	s.m.CustomerOps.WithLabelValues("update", metrics.Result(err)).Inc()
	if err != nil {
		return View{}, err
	}
	s.onChange()
	return v, nil
}

func (s *Service) update(ctx context.Context, id int64, req Request) (View, error) {
	c, err := s.find(ctx, id)
	if err != nil {
		return View{}, err
	}
	now := s.now()
	verr := &ValidationError{}
	f, ok := req.check(now, "", verr)
	if !ok {
		return View{}, verr
	}
	if err := compute.ValidateAge(f.Age, f.BirthDate, now); err != nil {
		return View{}, err
	}

	c.FirstName, c.LastName, c.Age, c.BirthDate = f.FirstName, f.LastName, f.Age, f.BirthDate
	if err := s.store.UpdateCustomer(ctx, c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return View{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return View{}, fmt.Errorf("customer: update %d: %w", id, err)
	}
	slog.Info("customer: updated", "id", id)
	return s.view(c, now), nil
}

// Delete soft-deletes an active customer.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.delete(ctx, id)
	s.m.CustomerOps.WithLabelValues("delete", metrics.Result(err)).Inc()
	if err != nil {
		return err
	}
	s.onChange()
	return nil
}

func (s *Service) delete(ctx context.Context, id int64) error {
	c, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	c.Active = false
	if err := s.store.UpdateCustomer(ctx, c); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return fmt.Errorf("customer: delete %d: %w", id, err)
	}
	slog.Info("customer: deleted", "id", id)
	return nil
}

// Stats summarizes the ages of all active customers. notifyTo, when
// non-empty, receives the report.
func (s *Service) Stats(ctx context.Context, notifyTo string) (Stats, error) {
	ages, err := s.store.ActiveAges(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("customer: stats: %w", err)
	}
	st := Stats{Report: compute.Summarize(ages), GeneratedAt: s.now()}
	s.m.ActiveCustomers.Set(float64(st.Count))
	if notifyTo != "" {
		s.notifier.Send(notify.StatsComputed(notifyTo, st.Report, st.GeneratedAt))
	}
	return st, nil
}

func (s *Service) find(ctx context.Context, id int64) (*store.Customer, error) {
	c, err := s.store.FindCustomer(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("customer: find %d: %w", id, err)
	}
	return c, nil
}
