package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"outgo/internal/core"
	applog "outgo/internal/log"
)

// LedgerService handles manually entered expenses: persist the entry,
// reconcile it against recurrence plans when a frequency is declared, then
// fire the post-commit hook.
type LedgerService struct {
	ledger     EntryStore
	reconciler *Reconciler
	events     EventPublisher
}

func NewLedgerService(ledger EntryStore, reconciler *Reconciler, events EventPublisher) *LedgerService {
	return &LedgerService{
		ledger:     ledger,
		reconciler: reconciler,
		events:     events,
	}
}

// CreateManualEntry validates and saves a manual entry. When freq is
// non-nil the reconciliation engine runs synchronously right after the
// save; its errors surface to the caller unretried. Cross-cutting side
// effects (achievements, notifications) hang off the published event, not
// off this service.
func (s *LedgerService) CreateManualEntry(ctx context.Context, entry *core.LedgerEntry, freq *core.Frequency) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	if err := s.ledger.SaveEntry(ctx, entry); err != nil {
		return fmt.Errorf("save entry: %w", err)
	}

	if freq != nil {
		if err := s.reconciler.ReconcileManualEntry(ctx, entry, *freq); err != nil {
			return fmt.Errorf("reconcile entry %s: %w", entry.ID, err)
		}
	}

	if s.events != nil {
		if err := s.events.PublishEntryCreated(ctx, entry.ID, entry.RecurringPlanID, "manual"); err != nil {
			// Best-effort: the entry is durably saved either way.
			slog.WarnContext(ctx, "Failed to publish entry-created event",
				applog.FieldEntryID, entry.ID,
				applog.FieldError, err)
		}
	}

	return nil
}

// GetEntry fetches a single entry, enforcing ownership.
func (s *LedgerService) GetEntry(ctx context.Context, ownerID, entryID string) (*core.LedgerEntry, error) {
	entry, err := s.ledger.FindEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.OwnerID != ownerID {
		return nil, core.ErrUnauthorized
	}
	return entry, nil
}

// ListEntries returns all entries belonging to an owner, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, ownerID string) ([]core.LedgerEntry, error) {
	entries, err := s.ledger.ListEntriesByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// DeleteEntry removes an entry after an ownership check.
func (s *LedgerService) DeleteEntry(ctx context.Context, ownerID, entryID string) error {
	if _, err := s.GetEntry(ctx, ownerID, entryID); err != nil {
		return err
	}
	if err := s.ledger.DeleteEntry(ctx, entryID); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// EntryUpdate carries the mutable entry fields; nil means unchanged. The
// date, category and plan binding are fixed at creation.
type EntryUpdate struct {
	Amount        *decimal.Decimal
	Currency      *string
	Description   *string
	Notes         *string
	PaymentMethod *string
}

// UpdateEntry applies a partial update to an entry after an ownership
// check. The updated entry is re-validated before saving.
func (s *LedgerService) UpdateEntry(ctx context.Context, ownerID, entryID string, upd EntryUpdate) (*core.LedgerEntry, error) {
	entry, err := s.GetEntry(ctx, ownerID, entryID)
	if err != nil {
		return nil, err
	}

	if upd.Amount != nil {
		entry.Amount = *upd.Amount
	}
	if upd.Currency != nil {
		entry.Currency = *upd.Currency
	}
	if upd.Description != nil {
		entry.Description = *upd.Description
	}
	if upd.Notes != nil {
		entry.Notes = *upd.Notes
	}
	if upd.PaymentMethod != nil {
		entry.PaymentMethod = *upd.PaymentMethod
	}

	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if err := s.ledger.SaveEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	return entry, nil
}

// SearchEntries runs a filtered, paged ledger search for one owner.
func (s *LedgerService) SearchEntries(ctx context.Context, ownerID string, f core.EntryFilter) ([]core.LedgerEntry, int, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, 0, fmt.Errorf("%w: search window ends before it starts", core.ErrInvalidDate)
	}
	f.Normalize()

	entries, total, err := s.ledger.SearchEntries(ctx, ownerID, f)
	if err != nil {
		return nil, 0, fmt.Errorf("search entries: %w", err)
	}
	return entries, total, nil
}

// SpendingReport aggregates an owner's spending per category over an ISO
// week, a calendar month or a calendar year.
func (s *LedgerService) SpendingReport(ctx context.Context, ownerID string, period core.GoalPeriod, year, month, week int) (*core.SpendingReport, error) {
	var (
		from, to core.Date
		err      error
	)
	switch period {
	case core.GoalWeekly:
		from, to, err = core.WeekWindow(year, week)
	case core.GoalMonthly:
		from, to, err = core.MonthWindow(year, month)
	case core.GoalYearly:
		from, to = core.YearWindow(year)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidDate, string(period))
	}
	if err != nil {
		return nil, err
	}

	items, err := s.ledger.CategorySpendInWindow(ctx, ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("category spend: %w", err)
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}

	return &core.SpendingReport{
		Period:    period,
		Year:      year,
		Week:      week,
		Month:     month,
		StartDate: from,
		EndDate:   to,
		Items:     items,
		Total:     total,
	}, nil
}
