// Package core holds the domain model of the expense tracker: plans,
// ledger entries, spending goals and the calendar arithmetic that drives
// recurring materialization.
package core

import "time"

// NextRunAfter computes the date the plan is next due after from.
//
// DAILY adds one day and WEEKLY adds seven, independent of the anchor.
// MONTHLY adds one calendar month and then clamps the day-of-month to
// min(anchor day, days in the target month), so a plan anchored on the
// 31st lands on Feb 28/29 without skipping a month or going backward.
func NextRunAfter(p RecurringPlan, from Date) Date {
	switch p.Frequency {
	case Daily:
		return from.AddDays(1)
	case Weekly:
		return from.AddDays(7)
	case Monthly:
		year, month, _ := from.Date()
		// First day of the target month; time.Date normalizes month+1
		// across year boundaries.
		first := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
		day := p.AnchorDay()
		if last := daysInMonth(first.Year(), first.Month()); day > last {
			day = last
		}
		return NewDate(first.Year(), int(first.Month()), day)
	default:
		// Frequency is validated on every write path; an unknown value
		// here means corrupted state.
		return from
	}
}

// CatchUpFrom advances from the given date until it reaches today or later.
// Used for first-run scheduling when a plan is created with a past start
// date; it never materializes the skipped periods.
func CatchUpFrom(p RecurringPlan, from, today Date) Date {
	d := from
	for d.Before(today) {
		d = NextRunAfter(p, d)
	}
	return d
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
