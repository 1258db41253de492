package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Frequency is the cadence of a recurring plan. The set is closed: the
// calendar arithmetic in calendar.go switches exhaustively over it.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrConflict         = errors.New("conflict")
	ErrInvalidFrequency = errors.New("invalid frequency")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidCurrency  = errors.New("invalid currency")
	ErrInvalidDate      = errors.New("invalid date")
	ErrEmptyOwner       = errors.New("empty owner reference")
	ErrEmptyCategory    = errors.New("empty category reference")
)

// ParseFrequency parses a frequency token case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	switch Frequency(strings.ToUpper(strings.TrimSpace(s))) {
	case Daily:
		return Daily, nil
	case Weekly:
		return Weekly, nil
	case Monthly:
		return Monthly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, s)
	}
}

func (f Frequency) Validate() error {
	switch f {
	case Daily, Weekly, Monthly:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, string(f))
	}
}

// Date is a civil calendar date, normalized to midnight UTC.
type Date struct {
	time.Time
}

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its civil date in the instant's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

// Equal reports whether two dates name the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	return nil
}

// RecurringPlan is a recurrence definition that periodically materializes
// ledger entries. For MONTHLY plans the day-of-month of StartDate is the
// anchor day used for end-of-month clamping.
type RecurringPlan struct {
	ID            string
	OwnerID       string
	CategoryID    string
	Amount        decimal.Decimal
	Currency      string
	Frequency     Frequency
	StartDate     Date
	EndDate       Date // zero means open-ended
	NextRunDate   Date
	LastRunAt     time.Time // zero means never materialized
	PaymentMethod string
	Notes         string
}

// AnchorDay is the day-of-month fixed by the plan's start date.
func (p RecurringPlan) AnchorDay() int {
	return p.StartDate.Day()
}

func (p RecurringPlan) Validate() error {
	if strings.TrimSpace(p.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(p.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := validateCurrency(p.Currency); err != nil {
		return err
	}
	if err := p.Frequency.Validate(); err != nil {
		return err
	}
	if err := p.StartDate.Validate(); err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	if !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidDate)
	}
	if !p.NextRunDate.IsZero() && p.NextRunDate.Before(p.StartDate) {
		return fmt.Errorf("%w: next run date before start date", ErrInvalidDate)
	}
	return nil
}

// LedgerEntry is a single dated spending record, possibly bound to a plan.
// If RecurringPlanID is set, IsRecurring must be true.
type LedgerEntry struct {
	ID              string
	OwnerID         string
	CategoryID      string
	Amount          decimal.Decimal
	Currency        string
	Date            Date
	Description     string
	Notes           string
	PaymentMethod   string
	IsRecurring     bool
	RecurringPlanID string
}

func (e LedgerEntry) Validate() error {
	if strings.TrimSpace(e.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(e.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if err := validateCurrency(e.Currency); err != nil {
		return err
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(e.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	if e.RecurringPlanID != "" && !e.IsRecurring {
		return errors.New("entry bound to a plan must be marked recurring")
	}
	return nil
}

func validateCurrency(code string) error {
	if len(code) != 3 {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
		}
	}
	return nil
}
