// Package compute holds the pure calculations behind customer records and the
// customer KPI report.
//
// calendar.go provides the date arithmetic shared by everything else:
// WholeYearsBetween (complete 12-month periods, truncated toward zero),
// AddYears (Feb 29 clamps to Feb 28 in non-leap years) and DaysBetween.
//
// consistency.go provides ValidateAge, which rejects an age that disagrees
// with the birth date by more than one year.
//
// projection.go provides Project, which derives the projected date and the
// remaining days/years for one birth date and a life expectancy.
//
// stats.go provides Summarize, which computes mean, sample standard
// deviation, median, min/max and the six-bucket age histogram.
//
// "today" is always an explicit argument. Nothing here reads the clock, logs,
// or holds state, so every function is safe for concurrent use.
package compute
