package compute

import "time"

const secondsPerDay = 24 * 60 * 60

// civil strips the time of day and location from t, keeping its calendar date.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WholeYearsBetween returns the number of complete 12-month periods from
// "from" to "to". The result is negative when to is before from and is
// truncated toward zero in both directions.
func WholeYearsBetween(from, to time.Time) int {
	return monthsBetween(from, to) / 12
}

// monthsBetween counts complete months. A month only completes once the
// day-of-month of "from" has been reached again.
func monthsBetween(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()

	months := (ty-fy)*12 + int(tm-fm)
	switch {
	case months > 0 && td < fd:
		months--
	case months < 0 && td > fd:
		months++
	}
	return months
}

// AddYears advances d by n calendar years. When d is Feb 29 and the target
// year is not a leap year the result is clamped to Feb 28; time.AddDate
// would roll over to Mar 1 instead.
func AddYears(d time.Time, n int) time.Time {
	y, m, day := d.Date()
	y += n
	if last := daysIn(m, y); day > last {
		day = last
	}
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the signed number of calendar days from "from" to "to".
func DaysBetween(from, to time.Time) int {
	return int(dayNumber(to) - dayNumber(from))
}

// dayNumber is the day count since the Unix epoch for t's calendar date.
// Working in whole days avoids time.Duration overflow for spans over ~292 years.
func dayNumber(t time.Time) int64 {
	return civil(t).Unix() / secondsPerDay
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
