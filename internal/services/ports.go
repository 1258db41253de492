// Package services implements the recurring obligation scheduler: the
// reconciliation engine for manually entered expenses, the due-plan
// sweeper, the plan lifecycle manager, and the goal progress service.
package services

import (
	"context"

	"github.com/shopspring/decimal"

	"outgo/internal/core"
)

// PlanStore is the persistence surface the scheduler needs for plans.
type PlanStore interface {
	FindPlanByID(ctx context.Context, id string) (*core.RecurringPlan, error)
	SavePlan(ctx context.Context, p *core.RecurringPlan) error
	FindDuePlans(ctx context.Context, today core.Date) ([]core.RecurringPlan, error)
	FindPlansByOwnerCategoryFrequency(ctx context.Context, ownerID, categoryID string, freq core.Frequency) ([]core.RecurringPlan, error)
	ListPlansByOwner(ctx context.Context, ownerID string) ([]core.RecurringPlan, error)
	// CancelPlan atomically detaches all bound entries and deletes the
	// plan, returning the number of detached entries.
	CancelPlan(ctx context.Context, planID string) (int64, error)
}

// EntryWriter persists ledger entries.
type EntryWriter interface {
	SaveEntry(ctx context.Context, e *core.LedgerEntry) error
}

// EntryStore is the full ledger surface used by the manual-entry service.
type EntryStore interface {
	EntryWriter
	FindEntryByID(ctx context.Context, id string) (*core.LedgerEntry, error)
	ListEntriesByOwner(ctx context.Context, ownerID string) ([]core.LedgerEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	// SearchEntries returns a page of matching entries plus the total
	// match count before paging.
	SearchEntries(ctx context.Context, ownerID string, f core.EntryFilter) ([]core.LedgerEntry, int, error)
	CategorySpendInWindow(ctx context.Context, ownerID string, from, to core.Date) ([]core.CategorySpend, error)
}

// CategoryReader resolves category ids to display names.
type CategoryReader interface {
	CategoryName(ctx context.Context, id string) (string, error)
}

// GoalStore persists spending goals.
type GoalStore interface {
	SaveGoal(ctx context.Context, g *core.SpendingGoal) error
	FindGoalByID(ctx context.Context, id string) (*core.SpendingGoal, error)
	ListActiveGoalsByOwner(ctx context.Context, ownerID string) ([]core.SpendingGoal, error)
	FindActiveGoalByOwnerCategoryPeriod(ctx context.Context, ownerID, categoryID string, period core.GoalPeriod) (*core.SpendingGoal, error)
}

// SpendingReader totals ledger amounts over a window.
type SpendingReader interface {
	SumEntriesByOwnerCategoryWindow(ctx context.Context, ownerID, categoryID string, from, to core.Date) (decimal.Decimal, error)
}

// EventPublisher emits post-commit events after an entry is durably saved.
// Publishing is best-effort; failures never roll back the save.
type EventPublisher interface {
	PublishEntryCreated(ctx context.Context, entryID, planID, source string) error
}
