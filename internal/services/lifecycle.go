package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"outgo/internal/core"
	applog "outgo/internal/log"
)

// Lifecycle creates plans through the explicit (non-manual) path and
// cancels them.
type Lifecycle struct {
	plans PlanStore
	loc   *time.Location
	now   func() time.Time
}

func NewLifecycle(plans PlanStore, loc *time.Location) *Lifecycle {
	if loc == nil {
		loc = time.UTC
	}
	return &Lifecycle{
		plans: plans,
		loc:   loc,
		now:   time.Now,
	}
}

// CreatePlanParams carries the fields of an explicit plan creation.
type CreatePlanParams struct {
	OwnerID       string
	CategoryID    string
	Amount        decimal.Decimal
	Currency      string
	Frequency     core.Frequency
	StartDate     core.Date
	EndDate       core.Date // zero means open-ended
	PaymentMethod string
	Notes         string
}

// CreatePlan persists a new plan. A start date in the past is caught up to
// the first due date on or after today; the skipped periods are never
// materialized.
func (l *Lifecycle) CreatePlan(ctx context.Context, params CreatePlanParams) (*core.RecurringPlan, error) {
	plan := &core.RecurringPlan{
		OwnerID:       params.OwnerID,
		CategoryID:    params.CategoryID,
		Amount:        params.Amount,
		Currency:      params.Currency,
		Frequency:     params.Frequency,
		StartDate:     params.StartDate,
		EndDate:       params.EndDate,
		PaymentMethod: params.PaymentMethod,
		Notes:         params.Notes,
	}

	today := core.DateOf(l.now().In(l.loc))
	plan.NextRunDate = core.CatchUpFrom(*plan, plan.StartDate, today)

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := l.plans.SavePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	slog.InfoContext(ctx, "Plan created",
		applog.FieldPlanID, plan.ID,
		applog.FieldOwnerID, plan.OwnerID,
		applog.FieldFrequency, string(plan.Frequency),
		"start_date", plan.StartDate.String(),
		applog.FieldNextRun, plan.NextRunDate.String())
	return plan, nil
}

// CancelPlan detaches every ledger entry bound to the plan and deletes the
// plan, atomically. Historical entries persist as ordinary non-recurring
// records.
func (l *Lifecycle) CancelPlan(ctx context.Context, planID string) error {
	detached, err := l.plans.CancelPlan(ctx, planID)
	if err != nil {
		return fmt.Errorf("cancel plan %s: %w", planID, err)
	}

	slog.InfoContext(ctx, "Plan cancelled and entries detached",
		applog.FieldPlanID, planID,
		"entries_detached", detached)
	return nil
}

// ListPlans returns all plans belonging to an owner.
func (l *Lifecycle) ListPlans(ctx context.Context, ownerID string) ([]core.RecurringPlan, error) {
	plans, err := l.plans.ListPlansByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}
