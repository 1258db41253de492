package services

import (
	"context"
	"testing"

	"outgo/internal/core"
)

func duePlan(store *memStore, freq core.Frequency, nextRun core.Date) *core.RecurringPlan {
	plan := &core.RecurringPlan{
		OwnerID:     "u1",
		CategoryID:  "groceries",
		Amount:      mustDecimal("15.00"),
		Currency:    "AUD",
		Frequency:   freq,
		StartDate:   nextRun.AddDays(-30),
		NextRunDate: nextRun,
	}
	if err := store.SavePlan(context.Background(), plan); err != nil {
		panic(err)
	}
	return plan
}

func TestRunDueSweepMaterializesDuePlans(t *testing.T) {
	store := newMemStore()
	today := core.NewDate(2025, 3, 10)
	due := duePlan(store, core.Daily, core.NewDate(2025, 3, 10))
	notDue := duePlan(store, core.Weekly, core.NewDate(2025, 3, 12))

	events := &capturePublisher{}
	s := NewSweeper(store, store, store, events, nil, 4)

	processed, err := s.RunDueSweep(context.Background(), today)
	if err != nil {
		t.Fatalf("RunDueSweep: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	entries, err := store.ListEntriesByOwner(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if !entry.Date.Equal(core.NewDate(2025, 3, 10)) {
		t.Errorf("entry date = %s, want the due date 2025-03-10", entry.Date)
	}
	if !entry.IsRecurring || entry.RecurringPlanID != due.ID {
		t.Errorf("entry not bound: IsRecurring=%v plan=%q", entry.IsRecurring, entry.RecurringPlanID)
	}
	if want := "[Auto] Groceries / DAILY"; entry.Description != want {
		t.Errorf("description = %q, want %q", entry.Description, want)
	}

	advanced, _ := store.FindPlanByID(context.Background(), due.ID)
	if !advanced.NextRunDate.Equal(core.NewDate(2025, 3, 11)) {
		t.Errorf("due plan NextRunDate = %s, want 2025-03-11", advanced.NextRunDate)
	}
	untouched, _ := store.FindPlanByID(context.Background(), notDue.ID)
	if !untouched.NextRunDate.Equal(core.NewDate(2025, 3, 12)) {
		t.Errorf("not-due plan NextRunDate = %s, want untouched 2025-03-12", untouched.NextRunDate)
	}

	published := events.published()
	if len(published) != 1 || published[0].Source != "sweep" || published[0].PlanID != due.ID {
		t.Errorf("published events = %+v, want one sweep event for %s", published, due.ID)
	}
}

func TestRunDueSweepAdvancesOnePeriodPerInvocation(t *testing.T) {
	// A plan five days behind catches up one entry per sweep, not five.
	store := newMemStore()
	today := core.NewDate(2025, 3, 10)
	plan := duePlan(store, core.Daily, core.NewDate(2025, 3, 5))
	s := NewSweeper(store, store, store, nil, nil, 1)

	processed, err := s.RunDueSweep(context.Background(), today)
	if err != nil {
		t.Fatalf("RunDueSweep: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	entries, _ := store.ListEntriesByOwner(context.Background(), "u1")
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !entries[0].Date.Equal(core.NewDate(2025, 3, 5)) {
		t.Errorf("entry date = %s, want the missed date 2025-03-05", entries[0].Date)
	}

	got, _ := store.FindPlanByID(context.Background(), plan.ID)
	if !got.NextRunDate.Equal(core.NewDate(2025, 3, 6)) {
		t.Errorf("NextRunDate = %s, want 2025-03-06 (one period)", got.NextRunDate)
	}

	// The plan stays due, so the next sweep drains one more period.
	if _, err := s.RunDueSweep(context.Background(), today); err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	got, _ = store.FindPlanByID(context.Background(), plan.ID)
	if !got.NextRunDate.Equal(core.NewDate(2025, 3, 7)) {
		t.Errorf("NextRunDate after second sweep = %s, want 2025-03-07", got.NextRunDate)
	}
}

func TestRunDueSweepIsolatesFailures(t *testing.T) {
	store := newMemStore()
	today := core.NewDate(2025, 3, 10)
	failing := duePlan(store, core.Daily, core.NewDate(2025, 3, 9))
	healthy := duePlan(store, core.Daily, core.NewDate(2025, 3, 10))
	store.failEntryForPlan = failing.ID

	s := NewSweeper(store, store, store, nil, nil, 1)

	processed, err := s.RunDueSweep(context.Background(), today)
	if err != nil {
		t.Fatalf("RunDueSweep: %v", err)
	}
	if processed != 1 {
		t.Fatalf("processed = %d, want 1", processed)
	}

	// The failed plan is not advanced and stays due for the next tick.
	got, _ := store.FindPlanByID(context.Background(), failing.ID)
	if !got.NextRunDate.Equal(core.NewDate(2025, 3, 9)) {
		t.Errorf("failed plan NextRunDate = %s, want untouched 2025-03-09", got.NextRunDate)
	}
	got, _ = store.FindPlanByID(context.Background(), healthy.ID)
	if !got.NextRunDate.Equal(core.NewDate(2025, 3, 11)) {
		t.Errorf("healthy plan NextRunDate = %s, want 2025-03-11", got.NextRunDate)
	}
}

func TestRunDueSweepSkipsExpiredPlans(t *testing.T) {
	store := newMemStore()
	today := core.NewDate(2025, 3, 10)
	expired := duePlan(store, core.Daily, core.NewDate(2025, 3, 1))
	expired.EndDate = core.NewDate(2025, 3, 5)
	if err := store.SavePlan(context.Background(), expired); err != nil {
		t.Fatal(err)
	}

	s := NewSweeper(store, store, store, nil, nil, 1)

	processed, err := s.RunDueSweep(context.Background(), today)
	if err != nil {
		t.Fatalf("RunDueSweep: %v", err)
	}
	if processed != 0 {
		t.Errorf("processed = %d, want 0", processed)
	}
	if entries, _ := store.ListEntriesByOwner(context.Background(), "u1"); len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestRunDueSweepSkipsPlanNoLongerDue(t *testing.T) {
	// The plan is due when candidates are gathered, but a concurrent
	// reconciliation advances it past today before the sweep holds the
	// lock. No entry is materialized and nothing counts as processed.
	mem := newMemStore()
	today := core.NewDate(2025, 3, 10)
	plan := duePlan(mem, core.Weekly, today)
	store := &advancingStore{memStore: mem, planID: plan.ID}

	s := NewSweeper(store, store, store, nil, nil, 1)

	processed, err := s.RunDueSweep(context.Background(), today)
	if err != nil {
		t.Fatalf("RunDueSweep: %v", err)
	}
	if processed != 0 {
		t.Errorf("processed = %d, want 0", processed)
	}
	if entries, _ := mem.ListEntriesByOwner(context.Background(), "u1"); len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}

	// Only the concurrent writer's advance is visible.
	got, _ := mem.FindPlanByID(context.Background(), plan.ID)
	if want := core.NewDate(2025, 3, 17); !got.NextRunDate.Equal(want) {
		t.Errorf("NextRunDate = %s, want %s (single advance)", got.NextRunDate, want)
	}
}

func TestAutoDescriptionFallsBack(t *testing.T) {
	store := newMemStore()
	s := NewSweeper(store, store, store, nil, nil, 1)
	plan := &core.RecurringPlan{CategoryID: "unknown", Frequency: core.Weekly}

	if got, want := s.autoDescription(context.Background(), plan), "[Auto] Recurring / WEEKLY"; got != want {
		t.Errorf("autoDescription = %q, want %q", got, want)
	}
}
