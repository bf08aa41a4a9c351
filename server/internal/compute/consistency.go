package compute

import (
	"fmt"
	"time"
)

// AgeTolerance is how far a stated age may drift from the age derived from the
// birth date. One year covers a birthday that has not happened yet this year.
const AgeTolerance = 1

// InconsistentAgeError reports a stated age that does not match the birth date.
type InconsistentAgeError struct {
	Provided int
	Expected int
}

func (e *InconsistentAgeError) Error() string {
	return fmt.Sprintf("age %d is inconsistent with birth date: expected %d", e.Provided, e.Expected)
}

// ValidateAge checks that age agrees with birthDate as of today, within
// AgeTolerance. Range checks on age and birthDate are the caller's job.
func ValidateAge(age int, birthDate, today time.Time) error {
	expected := WholeYearsBetween(birthDate, today)
	diff := expected - age
	if diff < 0 {
		diff = -diff
	}
	if diff > AgeTolerance {
		return &InconsistentAgeError{Provided: age, Expected: expected}
	}
	return nil
}
