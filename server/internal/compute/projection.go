package compute

import "time"

// DefaultLifeExpectancyYears is used when the configuration does not set one.
const DefaultLifeExpectancyYears = 75

// Projection is the derived end-of-life data for one customer record.
type Projection struct {
	// ProjectedDate is the birth date advanced by the life expectancy.
	ProjectedDate time.Time

	// RemainingDays is the number of days from today until ProjectedDate,
	// or 0 once ProjectedDate has passed.
	RemainingDays int

	// RemainingYears is the number of whole years from today until
	// ProjectedDate, or 0 once ProjectedDate has passed.
	RemainingYears int
}

// Project derives the Projection for birthDate. lifeExpectancyYears is taken
// as-is; validating it belongs to the configuration layer.
func Project(birthDate time.Time, lifeExpectancyYears int, today time.Time) Projection {
	p := Projection{ProjectedDate: AddYears(birthDate, lifeExpectancyYears)}

	days := DaysBetween(today, p.ProjectedDate)
	if days < 0 {
		return p
	}
	p.RemainingDays = days
	p.RemainingYears = WholeYearsBetween(today, p.ProjectedDate)
	return p
}
