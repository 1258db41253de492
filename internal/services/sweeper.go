package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"outgo/internal/core"
	applog "outgo/internal/log"
)

// Sweeper materializes all currently-due plans into ledger entries, once
// per scheduling tick. Each plan is processed independently: a failure on
// one plan is logged and the sweep moves on, leaving the failed plan due
// for the next tick.
//
// Backlog policy: one period per invocation. A plan that missed several
// ticks catches up one entry per sweep rather than draining its whole
// backlog at once.
type Sweeper struct {
	plans       PlanStore
	ledger      EntryWriter
	categories  CategoryReader
	events      EventPublisher
	locks       *PlanLocks
	concurrency int
	now         func() time.Time
}

func NewSweeper(plans PlanStore, ledger EntryWriter, categories CategoryReader, events EventPublisher, locks *PlanLocks, concurrency int) *Sweeper {
	if locks == nil {
		locks = NewPlanLocks()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		plans:       plans,
		ledger:      ledger,
		categories:  categories,
		events:      events,
		locks:       locks,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// RunDueSweep processes every plan with next_run_date <= today that has
// not passed its end date. Returns the number of entries materialized.
func (s *Sweeper) RunDueSweep(ctx context.Context, today core.Date) (int, error) {
	due, err := s.plans.FindDuePlans(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("find due plans: %w", err)
	}

	slog.InfoContext(ctx, "Sweeping due plans",
		"due", len(due),
		"today", today.String())

	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, plan := range due {
		g.Go(func() error {
			created, err := s.processPlan(gctx, plan.ID, today)
			if err != nil {
				// Per-plan isolation: log and keep sweeping. The plan
				// stays due and is retried on the next tick.
				slog.ErrorContext(gctx, "Failed to materialize plan",
					applog.FieldPlanID, plan.ID,
					applog.FieldError, err)
				return nil
			}
			if created {
				processed.Add(1)
			}
			return nil
		})
	}
	g.Wait()

	slog.InfoContext(ctx, "Sweep complete",
		"processed", processed.Load(),
		"due", len(due))
	return int(processed.Load()), nil
}

// processPlan materializes one entry for a due plan. It reports false
// without error when the plan turned out not to be due after the reload.
func (s *Sweeper) processPlan(ctx context.Context, planID string, today core.Date) (bool, error) {
	unlock := s.locks.Acquire(planID)
	defer unlock()

	// Reload under the lock: a concurrent reconciliation may already have
	// advanced the plan past today.
	plan, err := s.plans.FindPlanByID(ctx, planID)
	if err != nil {
		return false, fmt.Errorf("reload plan: %w", err)
	}
	if plan.NextRunDate.After(today) {
		slog.DebugContext(ctx, "Plan no longer due, skipping",
			applog.FieldPlanID, plan.ID,
			applog.FieldNextRun, plan.NextRunDate.String())
		return false, nil
	}

	entry := &core.LedgerEntry{
		OwnerID:         plan.OwnerID,
		CategoryID:      plan.CategoryID,
		Amount:          plan.Amount,
		Currency:        plan.Currency,
		Date:            plan.NextRunDate,
		Description:     s.autoDescription(ctx, plan),
		Notes:           plan.Notes,
		PaymentMethod:   plan.PaymentMethod,
		IsRecurring:     true,
		RecurringPlanID: plan.ID,
	}
	if err := s.ledger.SaveEntry(ctx, entry); err != nil {
		return false, fmt.Errorf("materialize entry: %w", err)
	}

	plan.NextRunDate = core.NextRunAfter(*plan, plan.NextRunDate)
	plan.LastRunAt = s.now()
	if err := s.plans.SavePlan(ctx, plan); err != nil {
		return false, fmt.Errorf("advance plan: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishEntryCreated(ctx, entry.ID, plan.ID, "sweep"); err != nil {
			slog.WarnContext(ctx, "Failed to publish entry-created event",
				applog.FieldEntryID, entry.ID,
				applog.FieldError, err)
		}
	}

	slog.InfoContext(ctx, "Materialized ledger entry from plan",
		applog.FieldPlanID, plan.ID,
		applog.FieldEntryID, entry.ID,
		applog.FieldEntryDate, entry.Date.String(),
		applog.FieldNextRun, plan.NextRunDate.String())
	return true, nil
}

func (s *Sweeper) autoDescription(ctx context.Context, plan *core.RecurringPlan) string {
	name := "Recurring"
	if s.categories != nil {
		if n, err := s.categories.CategoryName(ctx, plan.CategoryID); err == nil && n != "" {
			name = n
		}
	}
	return "[Auto] " + name + " / " + string(plan.Frequency)
}
