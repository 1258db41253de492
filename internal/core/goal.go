package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GoalPeriod is the window length of a spending goal.
type GoalPeriod string

const (
	GoalWeekly  GoalPeriod = "WEEKLY"
	GoalMonthly GoalPeriod = "MONTHLY"
	GoalYearly  GoalPeriod = "YEARLY"
)

// Progress thresholds, in percent of the target amount.
const (
	WarningThreshold    = 80
	OverBudgetThreshold = 100
)

func ParseGoalPeriod(s string) (GoalPeriod, error) {
	switch GoalPeriod(strings.ToUpper(strings.TrimSpace(s))) {
	case GoalWeekly:
		return GoalWeekly, nil
	case GoalMonthly:
		return GoalMonthly, nil
	case GoalYearly:
		return GoalYearly, nil
	default:
		return "", fmt.Errorf("invalid goal period: %q", s)
	}
}

// SpendingGoal caps spending for one category over a date window.
type SpendingGoal struct {
	ID           string
	OwnerID      string
	CategoryID   string
	Period       GoalPeriod
	TargetAmount decimal.Decimal
	GoalName     string
	StartDate    Date
	EndDate      Date
	Active       bool
}

func (g SpendingGoal) Validate() error {
	if strings.TrimSpace(g.OwnerID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(g.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if !g.TargetAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if _, err := ParseGoalPeriod(string(g.Period)); err != nil {
		return err
	}
	if err := g.StartDate.Validate(); err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	if err := g.EndDate.Validate(); err != nil {
		return fmt.Errorf("end date: %w", err)
	}
	if g.EndDate.Before(g.StartDate) {
		return fmt.Errorf("%w: end date before start date", ErrInvalidDate)
	}
	return nil
}

// GoalWindow computes the [start, end] window for a period containing
// today. Weeks start on Monday; months and years are calendar-aligned.
// When startNext is set the window is the one after today's.
func GoalWindow(today Date, period GoalPeriod, startNext bool) (Date, Date) {
	if startNext {
		switch period {
		case GoalWeekly:
			today = mondayOf(today).AddDays(7)
		case GoalMonthly:
			y, m, _ := today.Date()
			today = Date{Time: time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)}
		case GoalYearly:
			today = NewDate(today.Year()+1, 1, 1)
		}
	}

	switch period {
	case GoalWeekly:
		start := mondayOf(today)
		return start, start.AddDays(6)
	case GoalMonthly:
		start := NewDate(today.Year(), int(today.Month()), 1)
		return start, Date{Time: start.AddDate(0, 1, -1)}
	default: // GoalYearly
		return NewDate(today.Year(), 1, 1), NewDate(today.Year(), 12, 31)
	}
}

func mondayOf(d Date) Date {
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDays(-offset)
}

// GoalProgress is the evaluated state of a goal at a point in time.
type GoalProgress struct {
	GoalID          string
	CategoryID      string
	Period          GoalPeriod
	StartDate       Date
	EndDate         Date
	TargetAmount    decimal.Decimal
	SpentAmount     decimal.Decimal
	RemainingAmount decimal.Decimal
	ProgressPercent decimal.Decimal
	DaysLeft        int
	Health          string // ON_TRACK, AT_RISK, OVERSPENT
	Alert           string // NONE, WARNING, OVER_BUDGET
}

// EvaluateProgress computes spending progress against a goal's target.
// Percent is spent/target with 2 decimal places, half-up. Remaining is
// floored at zero; days left counts today through the end date inclusive.
func EvaluateProgress(g SpendingGoal, spent decimal.Decimal, today Date) GoalProgress {
	remaining := g.TargetAmount.Sub(spent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	percent := decimal.Zero
	if g.TargetAmount.IsPositive() {
		percent = spent.Mul(decimal.NewFromInt(100)).DivRound(g.TargetAmount, 2)
	}

	daysLeft := 0
	if !today.After(g.EndDate) {
		daysLeft = int(g.EndDate.Sub(today.Time).Hours()/24) + 1
	}

	health := "ON_TRACK"
	switch {
	case spent.GreaterThan(g.TargetAmount):
		health = "OVERSPENT"
	case percent.GreaterThanOrEqual(decimal.NewFromInt(WarningThreshold)):
		health = "AT_RISK"
	}

	alert := "NONE"
	switch {
	case percent.GreaterThan(decimal.NewFromInt(OverBudgetThreshold)):
		alert = "OVER_BUDGET"
	case percent.GreaterThanOrEqual(decimal.NewFromInt(WarningThreshold)):
		alert = "WARNING"
	}

	return GoalProgress{
		GoalID:          g.ID,
		CategoryID:      g.CategoryID,
		Period:          g.Period,
		StartDate:       g.StartDate,
		EndDate:         g.EndDate,
		TargetAmount:    g.TargetAmount,
		SpentAmount:     spent,
		RemainingAmount: remaining,
		ProgressPercent: percent,
		DaysLeft:        daysLeft,
		Health:          health,
		Alert:           alert,
	}
}
