package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clientledger/clientledger/server/internal/compute"
	"github.com/clientledger/clientledger/server/internal/metrics"
	"github.com/clientledger/clientledger/server/internal/notify"
)

// ItemError describes why one batch item was rejected.
type ItemError struct {
	Index     int    `json:"index"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Error     string `json:"error"`
}

// BatchResult is the outcome of CreateBatch.
type BatchResult struct {
	Total       int         `json:"total"`
	Created     int         `json:"created"`
	Failed      int         `json:"failed"`
	ProcessedAt time.Time   `json:"processed_at"`
	Customers   []View      `json:"customers"`
	Errors      []ItemError `json:"errors"`
}

// BatchValidation is the outcome of ValidateBatch.
type BatchValidation struct {
	Valid    bool        `json:"valid"`
	Problems []ItemError `json:"problems"`
}

// checkBatch applies field validation to every item. Any failure rejects
// the whole batch.
func checkBatch(reqs []Request, today time.Time) ([]fields, error) {
	verr := &ValidationError{}
	if len(reqs) == 0 || len(reqs) > MaxBatchSize {
		verr.add("customers", fmt.Sprintf("must contain between 1 and %d customers", MaxBatchSize))
		return nil, verr
	}
	out := make([]fields, len(reqs))
	for i, r := range reqs {
		out[i], _ = r.check(today, fmt.Sprintf("customers[%d].", i), verr)
	}
	if !verr.empty() {
		return nil, verr
	}
	return out, nil
}

// CreateBatch creates each request independently, in order. Items failing
// the age consistency or duplicate checks are reported in the result and do
// not stop the remaining items. One summary goes to the administrator.
func (s *Service) CreateBatch(ctx context.Context, actor string, reqs []Request) (BatchResult, error) {
	now := s.now()
	items, err := checkBatch(reqs, now)
	if err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{
		Total:     len(reqs),
		Customers: []View{},
		Errors:    []ItemError{},
	}
	for i, f := range items {
		v, err := s.insert(ctx, actor, f, now)
		s.m.CustomerOps.WithLabelValues("batch_create", metrics.Result(err)).Inc()
		if err != nil {
			res.Errors = append(res.Errors, ItemError{
				Index:     i,
				FirstName: f.FirstName,
				LastName:  f.LastName,
				Error:     itemMessage(err),
			})
			slog.Warn("customer: batch item rejected", "index", i, "err", err)
			continue
		}
		res.Customers = append(res.Customers, v)
	}
	res.Created = len(res.Customers)
	res.Failed = len(res.Errors)
	res.ProcessedAt = s.now()

	slog.Info("customer: batch processed",
		"total", res.Total, "created", res.Created, "failed", res.Failed, "actor", actor)
	s.notifier.Send(notify.BatchCompleted(notify.BatchSummary{
		Actor:   actor,
		Total:   res.Total,
		Created: res.Created,
		Failed:  res.Failed,
		At:      res.ProcessedAt,
	}))
	if res.Created > 0 {
		s.onChange()
	}
	return res, nil
}

// ValidateBatch reports, without writing anything, which items would fail
// the age consistency or duplicate checks. An item may appear twice.
func (s *Service) ValidateBatch(ctx context.Context, reqs []Request) (BatchValidation, error) {
	now := s.now()
	items, err := checkBatch(reqs, now)
	if err != nil {
		return BatchValidation{}, err
	}

	out := BatchValidation{Problems: []ItemError{}}
	for i, f := range items {
		if err := compute.ValidateAge(f.Age, f.BirthDate, now); err != nil {
			out.Problems = append(out.Problems, ItemError{Index: i, FirstName: f.FirstName, LastName: f.LastName, Error: err.Error()})
		}
		exists, err := s.store.CustomerExists(ctx, f.FirstName, f.LastName, f.BirthDate)
		if err != nil {
			return BatchValidation{}, fmt.Errorf("customer: duplicate check: %w", err)
		}
		if exists {
			out.Problems = append(out.Problems, ItemError{Index: i, FirstName: f.FirstName, LastName: f.LastName, Error: ErrDuplicate.Error()})
		}
	}
	out.Valid = len(out.Problems) == 0
	return out, nil
}

// itemMessage hides storage details from batch clients.
func itemMessage(err error) string {
	var ie *compute.InconsistentAgeError
	switch {
	case errors.As(err, &ie), errors.Is(err, ErrDuplicate):
		return err.Error()
	default:
		return "unexpected error: " + err.Error()
	}
}
