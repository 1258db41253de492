package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EntryFilter narrows a ledger search. Zero values mean "no constraint";
// Recurring is a tri-state so both recurring-only and manual-only queries
// are expressible.
type EntryFilter struct {
	From       Date
	To         Date
	CategoryID string
	Keyword    string // case-insensitive match on description or notes
	Recurring  *bool
	Limit      int
	Offset     int
}

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Normalize clamps paging: limit defaults to 20 and is capped at 100,
// offset floors at zero. Idempotent.
func (f *EntryFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > maxSearchLimit {
		f.Limit = defaultSearchLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// CategorySpend is one report row: total spending in a category.
type CategorySpend struct {
	CategoryID   string
	CategoryName string
	Total        decimal.Decimal
}

// SpendingReport aggregates an owner's spending per category over a
// weekly, monthly or yearly window.
type SpendingReport struct {
	Period    GoalPeriod
	Year      int
	Week      int // ISO week, weekly reports only
	Month     int // monthly reports only
	StartDate Date
	EndDate   Date
	Items     []CategorySpend
	Total     decimal.Decimal
}

// WeekWindow returns the Monday-to-Sunday range of an ISO week.
func WeekWindow(year, week int) (Date, Date, error) {
	if week < 1 || week > 53 {
		return Date{}, Date{}, fmt.Errorf("%w: week %d out of range", ErrInvalidDate, week)
	}
	// January 4th is always in ISO week 1.
	start := mondayOf(NewDate(year, 1, 4)).AddDays((week - 1) * 7)
	if y, w := start.ISOWeek(); y != year || w != week {
		return Date{}, Date{}, fmt.Errorf("%w: year %d has no week %d", ErrInvalidDate, year, week)
	}
	return start, start.AddDays(6), nil
}

// MonthWindow returns the first and last day of a calendar month.
func MonthWindow(year, month int) (Date, Date, error) {
	if month < 1 || month > 12 {
		return Date{}, Date{}, fmt.Errorf("%w: month %d out of range", ErrInvalidDate, month)
	}
	start := NewDate(year, month, 1)
	return start, Date{Time: start.AddDate(0, 1, -1)}, nil
}

// YearWindow returns the first and last day of a calendar year.
func YearWindow(year int) (Date, Date) {
	return NewDate(year, 1, 1), NewDate(year, 12, 31)
}
