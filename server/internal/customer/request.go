package customer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	minNameLen = 2
	maxNameLen = 100
	minAge     = 0
	maxAge     = 150
)

var namePattern = regexp.MustCompile(`^[\p{L}\s]+$`)

// Request is the client-supplied content of a customer record. Age is a
// pointer so that a missing value can be told apart from zero.
type Request struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Age       *int   `json:"age"`
	BirthDate string `json:"birth_date"` // YYYY-MM-DD
}

// ValidationError lists per-field problems, keyed by JSON field name.
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

func (e *ValidationError) empty() bool { return len(e.Fields) == 0 }

// fields holds a request that passed field validation.
type fields struct {
	FirstName string
	LastName  string
	Age       int
	BirthDate time.Time
}

// check validates r against today's date. prefix is prepended to field
// names, e.g. "customers[3].".
func (r Request) check(today time.Time, prefix string, verr *ValidationError) (fields, bool) {
	var f fields
	before := len(verr.Fields)

	checkName := func(field, v string) {
		switch n := utf8.RuneCountInString(v); {
		case strings.TrimSpace(v) == "":
			verr.add(prefix+field, "is required")
		case n < minNameLen || n > maxNameLen:
			verr.add(prefix+field, fmt.Sprintf("must be between %d and %d characters", minNameLen, maxNameLen))
		case !namePattern.MatchString(v):
			verr.add(prefix+field, "may only contain letters and spaces")
		}
	}
	checkName("first_name", r.FirstName)
	checkName("last_name", r.LastName)
	f.FirstName, f.LastName = r.FirstName, r.LastName

	switch {
	case r.Age == nil:
		verr.add(prefix+"age", "is required")
	case *r.Age < minAge:
		verr.add(prefix+"age", "must not be negative")
	case *r.Age > maxAge:
		verr.add(prefix+"age", fmt.Sprintf("must not exceed %d", maxAge))
	default:
		f.Age = *r.Age
	}

	if strings.TrimSpace(r.BirthDate) == "" {
		verr.add(prefix+"birth_date", "is required")
	} else if bd, err := time.Parse(time.DateOnly, r.BirthDate); err != nil {
		verr.add(prefix+"birth_date", "must be a date in YYYY-MM-DD format")
	} else if !bd.Before(dateOf(today)) {
		verr.add(prefix+"birth_date", "must be in the past")
	} else {
		f.BirthDate = bd
	}

	return f, len(verr.Fields) == before
}

// Validate checks r on its own, returning a *ValidationError on failure.
func (r Request) Validate(today time.Time) error {
	verr := &ValidationError{}
	r.check(today, "", verr)
	if verr.empty() {
		return nil
	}
	return verr
}

// dateOf returns t's calendar date as UTC midnight.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
