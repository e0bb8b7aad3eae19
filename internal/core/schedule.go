package core

import "time"

// NextAfter returns the due date one frequency unit after t.
//
// Monthly and yearly increments use unclamped calendar-field arithmetic:
// adding one month to Jan 31 goes through "Feb 31" and normalizes into early
// March (Mar 3 in a common year, Mar 2 in a leap year). The schedule always
// advances from the previously scheduled due date, never from "now", so late
// processing does not drift the cadence.
func NextAfter(f Frequency, t time.Time) time.Time {
	switch f {
	case Daily:
		return t.AddDate(0, 0, 1)
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Monthly:
		return t.AddDate(0, 1, 0)
	case Yearly:
		return t.AddDate(1, 0, 0)
	default:
		return t
	}
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns the last representable instant of t's day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// DueWindow is the [start, end] interval the due sweep scans for a given
// processing instant.
func DueWindow(asOf time.Time) (time.Time, time.Time) {
	return StartOfDay(asOf), EndOfDay(asOf)
}

// EndedBy reports whether a definition whose schedule would next land on
// nextDue has run past its cutoff. A zero cutoff never ends.
func EndedBy(nextDue, endAt time.Time) bool {
	if endAt.IsZero() {
		return false
	}
	return nextDue.After(endAt)
}
