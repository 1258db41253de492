package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"outgo/internal/core"
	applog "outgo/internal/log"
)

// Reconciler matches a freshly saved manual ledger entry against existing
// recurrence plans. Called exactly once, synchronously, after the entry is
// durably saved with a declared frequency.
type Reconciler struct {
	plans  PlanStore
	ledger EntryWriter
	locks  *PlanLocks
	now    func() time.Time
}

func NewReconciler(plans PlanStore, ledger EntryWriter, locks *PlanLocks) *Reconciler {
	if locks == nil {
		locks = NewPlanLocks()
	}
	return &Reconciler{
		plans:  plans,
		ledger: ledger,
		locks:  locks,
		now:    time.Now,
	}
}

// ReconcileManualEntry binds the entry to the plan whose next_run_date
// equals the entry date exactly, advancing that plan one period, or starts
// a new plan anchored at the entry date when no plan matches.
//
// Matching is strict on the date: a back-dated or future-dated entry never
// advances an unrelated plan instance; it starts a fresh series instead.
// Candidates are scoped to (owner, category, frequency); a plan for the
// same category but a different frequency is never a candidate.
func (r *Reconciler) ReconcileManualEntry(ctx context.Context, entry *core.LedgerEntry, freq core.Frequency) error {
	if err := freq.Validate(); err != nil {
		return err
	}

	candidates, err := r.plans.FindPlansByOwnerCategoryFrequency(ctx, entry.OwnerID, entry.CategoryID, freq)
	if err != nil {
		return fmt.Errorf("find candidate plans: %w", err)
	}

	exact := selectExactMatch(candidates, entry.Date)
	if exact != nil {
		return r.bindAndAdvance(ctx, entry, exact)
	}
	return r.startNewSeries(ctx, entry, freq)
}

// selectExactMatch picks the candidate whose next_run_date equals the
// entry date. Should more than one qualify, the earliest next_run_date
// wins; with equal dates the store's ordering breaks the tie.
func selectExactMatch(candidates []core.RecurringPlan, date core.Date) *core.RecurringPlan {
	var best *core.RecurringPlan
	for i := range candidates {
		c := &candidates[i]
		if !c.NextRunDate.Equal(date) {
			continue
		}
		if best == nil || c.NextRunDate.Before(best.NextRunDate) {
			best = c
		}
	}
	return best
}

func (r *Reconciler) bindAndAdvance(ctx context.Context, entry *core.LedgerEntry, plan *core.RecurringPlan) error {
	unlock := r.locks.Acquire(plan.ID)
	defer unlock()

	// Re-read under the lock: a concurrent sweep may have advanced the
	// plan between candidate gathering and now.
	fresh, err := r.plans.FindPlanByID(ctx, plan.ID)
	if err != nil {
		return fmt.Errorf("reload plan %s: %w", plan.ID, err)
	}
	if !fresh.NextRunDate.Equal(entry.Date) {
		slog.InfoContext(ctx, "Plan advanced concurrently, starting new series instead",
			applog.FieldPlanID, fresh.ID,
			applog.FieldEntryDate, entry.Date.String(),
			applog.FieldNextRun, fresh.NextRunDate.String())
		return r.startNewSeries(ctx, entry, fresh.Frequency)
	}

	entry.IsRecurring = true
	entry.RecurringPlanID = fresh.ID
	if err := r.ledger.SaveEntry(ctx, entry); err != nil {
		return fmt.Errorf("bind entry to plan %s: %w", fresh.ID, err)
	}

	fresh.NextRunDate = core.NextRunAfter(*fresh, fresh.NextRunDate)
	fresh.LastRunAt = r.now()
	if err := r.plans.SavePlan(ctx, fresh); err != nil {
		return fmt.Errorf("advance plan %s: %w", fresh.ID, err)
	}

	slog.InfoContext(ctx, "Manual entry reconciled against existing plan",
		applog.FieldEntryID, entry.ID,
		applog.FieldPlanID, fresh.ID,
		applog.FieldNextRun, fresh.NextRunDate.String())
	return nil
}

func (r *Reconciler) startNewSeries(ctx context.Context, entry *core.LedgerEntry, freq core.Frequency) error {
	plan := &core.RecurringPlan{
		OwnerID:       entry.OwnerID,
		CategoryID:    entry.CategoryID,
		Amount:        entry.Amount,
		Currency:      entry.Currency,
		Frequency:     freq,
		StartDate:     entry.Date,
		PaymentMethod: entry.PaymentMethod,
		Notes:         entry.Notes,
	}
	// The entry itself covers its own date; the plan is first due one
	// period later.
	plan.NextRunDate = core.NextRunAfter(*plan, entry.Date)

	if err := r.plans.SavePlan(ctx, plan); err != nil {
		return fmt.Errorf("create plan: %w", err)
	}

	entry.IsRecurring = true
	entry.RecurringPlanID = plan.ID
	if err := r.ledger.SaveEntry(ctx, entry); err != nil {
		return fmt.Errorf("bind entry to new plan %s: %w", plan.ID, err)
	}

	slog.InfoContext(ctx, "Manual entry started a new recurrence plan",
		applog.FieldEntryID, entry.ID,
		applog.FieldPlanID, plan.ID,
		applog.FieldFrequency, string(freq),
		"start_date", plan.StartDate.String(),
		applog.FieldNextRun, plan.NextRunDate.String())
	return nil
}
