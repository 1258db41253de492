package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"outgo/internal/core"
)

func weeklyPlan(store *memStore, nextRun core.Date) *core.RecurringPlan {
	plan := &core.RecurringPlan{
		OwnerID:     "u1",
		CategoryID:  "groceries",
		Amount:      mustDecimal("42.50"),
		Currency:    "AUD",
		Frequency:   core.Weekly,
		StartDate:   nextRun.AddDays(-7),
		NextRunDate: nextRun,
	}
	if err := store.SavePlan(context.Background(), plan); err != nil {
		panic(err)
	}
	return plan
}

func TestReconcileExactMatchBindsAndAdvances(t *testing.T) {
	store := newMemStore()
	plan := weeklyPlan(store, core.NewDate(2025, 3, 8))
	r := NewReconciler(store, store, nil)
	r.now = func() time.Time { return time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC) }

	entry := &core.LedgerEntry{
		OwnerID:    "u1",
		CategoryID: "groceries",
		Amount:     mustDecimal("42.50"),
		Currency:   "AUD",
		Date:       core.NewDate(2025, 3, 8),
	}
	if err := store.SaveEntry(context.Background(), entry); err != nil {
		t.Fatal(err)
	}

	if err := r.ReconcileManualEntry(context.Background(), entry, core.Weekly); err != nil {
		t.Fatalf("ReconcileManualEntry: %v", err)
	}

	if !entry.IsRecurring || entry.RecurringPlanID != plan.ID {
		t.Errorf("entry not bound: IsRecurring=%v plan=%q", entry.IsRecurring, entry.RecurringPlanID)
	}

	got, err := store.FindPlanByID(context.Background(), plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if want := core.NewDate(2025, 3, 15); !got.NextRunDate.Equal(want) {
		t.Errorf("NextRunDate = %s, want %s", got.NextRunDate, want)
	}
	if got.LastRunAt.IsZero() {
		t.Error("LastRunAt not set")
	}

	if plans, _ := store.ListPlansByOwner(context.Background(), "u1"); len(plans) != 1 {
		t.Errorf("got %d plans, want 1 (no new series)", len(plans))
	}
}

func TestReconcileNoMatchStartsNewSeries(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store, store, nil)

	entry := &core.LedgerEntry{
		OwnerID:    "u1",
		CategoryID: "groceries",
		Amount:     mustDecimal("42.50"),
		Currency:   "AUD",
		Date:       core.NewDate(2025, 3, 1),
	}
	if err := store.SaveEntry(context.Background(), entry); err != nil {
		t.Fatal(err)
	}

	if err := r.ReconcileManualEntry(context.Background(), entry, core.Weekly); err != nil {
		t.Fatalf("ReconcileManualEntry: %v", err)
	}

	plans, err := store.ListPlansByOwner(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(plans) != 1 {
		t.Fatalf("got %d plans, want 1", len(plans))
	}
	plan := plans[0]
	if !plan.StartDate.Equal(core.NewDate(2025, 3, 1)) {
		t.Errorf("StartDate = %s, want 2025-03-01", plan.StartDate)
	}
	// The entry covers its own date, so the first due date is one period on.
	if want := core.NewDate(2025, 3, 8); !plan.NextRunDate.Equal(want) {
		t.Errorf("NextRunDate = %s, want %s", plan.NextRunDate, want)
	}
	if entry.RecurringPlanID != plan.ID {
		t.Errorf("entry bound to %q, want %q", entry.RecurringPlanID, plan.ID)
	}
}

func TestReconcileStrictDateMatch(t *testing.T) {
	// A back-dated entry must not advance a plan due on a different date.
	store := newMemStore()
	plan := weeklyPlan(store, core.NewDate(2025, 3, 8))
	r := NewReconciler(store, store, nil)

	entry := &core.LedgerEntry{
		OwnerID:    "u1",
		CategoryID: "groceries",
		Amount:     mustDecimal("42.50"),
		Currency:   "AUD",
		Date:       core.NewDate(2025, 3, 7),
	}
	if err := store.SaveEntry(context.Background(), entry); err != nil {
		t.Fatal(err)
	}

	if err := r.ReconcileManualEntry(context.Background(), entry, core.Weekly); err != nil {
		t.Fatalf("ReconcileManualEntry: %v", err)
	}

	got, err := store.FindPlanByID(context.Background(), plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.NextRunDate.Equal(core.NewDate(2025, 3, 8)) {
		t.Errorf("existing plan advanced to %s, want untouched 2025-03-08", got.NextRunDate)
	}
	if entry.RecurringPlanID == plan.ID {
		t.Error("entry bound to the existing plan, want a new series")
	}
	if plans, _ := store.ListPlansByOwner(context.Background(), "u1"); len(plans) != 2 {
		t.Errorf("got %d plans, want 2", len(plans))
	}
}

func TestReconcileFallsBackWhenPlanAdvancesConcurrently(t *testing.T) {
	// The plan matches during candidate gathering, but by the time the
	// lock is held a sweep has already advanced it. The entry must start a
	// new series rather than advance the plan a second time.
	mem := newMemStore()
	plan := weeklyPlan(mem, core.NewDate(2025, 3, 8))
	store := &advancingStore{memStore: mem, planID: plan.ID}
	r := NewReconciler(store, store, nil)

	entry := &core.LedgerEntry{
		OwnerID:    "u1",
		CategoryID: "groceries",
		Amount:     mustDecimal("42.50"),
		Currency:   "AUD",
		Date:       core.NewDate(2025, 3, 8),
	}
	if err := mem.SaveEntry(context.Background(), entry); err != nil {
		t.Fatal(err)
	}

	if err := r.ReconcileManualEntry(context.Background(), entry, core.Weekly); err != nil {
		t.Fatalf("ReconcileManualEntry: %v", err)
	}

	got, err := mem.FindPlanByID(context.Background(), plan.ID)
	if err != nil {
		t.Fatal(err)
	}
	// One advance from the concurrent writer, none from the reconciler.
	if want := core.NewDate(2025, 3, 15); !got.NextRunDate.Equal(want) {
		t.Errorf("NextRunDate = %s, want %s (single advance)", got.NextRunDate, want)
	}

	if entry.RecurringPlanID == "" || entry.RecurringPlanID == plan.ID {
		t.Errorf("entry bound to %q, want a fresh series", entry.RecurringPlanID)
	}
	plans, _ := mem.ListPlansByOwner(context.Background(), "u1")
	if len(plans) != 2 {
		t.Fatalf("got %d plans, want 2", len(plans))
	}
}

func TestReconcileScopedByFrequency(t *testing.T) {
	// A monthly plan due on the entry date is not a candidate for a weekly
	// declaration.
	store := newMemStore()
	monthly := &core.RecurringPlan{
		OwnerID:     "u1",
		CategoryID:  "groceries",
		Amount:      mustDecimal("42.50"),
		Currency:    "AUD",
		Frequency:   core.Monthly,
		StartDate:   core.NewDate(2025, 2, 8),
		NextRunDate: core.NewDate(2025, 3, 8),
	}
	if err := store.SavePlan(context.Background(), monthly); err != nil {
		t.Fatal(err)
	}
	r := NewReconciler(store, store, nil)

	entry := &core.LedgerEntry{
		OwnerID:    "u1",
		CategoryID: "groceries",
		Amount:     mustDecimal("42.50"),
		Currency:   "AUD",
		Date:       core.NewDate(2025, 3, 8),
	}
	if err := store.SaveEntry(context.Background(), entry); err != nil {
		t.Fatal(err)
	}

	if err := r.ReconcileManualEntry(context.Background(), entry, core.Weekly); err != nil {
		t.Fatalf("ReconcileManualEntry: %v", err)
	}

	got, err := store.FindPlanByID(context.Background(), monthly.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.NextRunDate.Equal(core.NewDate(2025, 3, 8)) {
		t.Errorf("monthly plan advanced to %s, want untouched", got.NextRunDate)
	}
	if entry.RecurringPlanID == monthly.ID {
		t.Error("entry bound to the monthly plan despite weekly declaration")
	}
}

func TestReconcileRejectsInvalidFrequency(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store, store, nil)

	entry := &core.LedgerEntry{
		OwnerID:    "u1",
		CategoryID: "groceries",
		Amount:     mustDecimal("10"),
		Currency:   "AUD",
		Date:       core.NewDate(2025, 3, 1),
	}
	err := r.ReconcileManualEntry(context.Background(), entry, core.Frequency("SOMETIMES"))
	if !errors.Is(err, core.ErrInvalidFrequency) {
		t.Fatalf("err = %v, want ErrInvalidFrequency", err)
	}
	if plans, _ := store.ListPlansByOwner(context.Background(), "u1"); len(plans) != 0 {
		t.Errorf("got %d plans, want 0", len(plans))
	}
}
