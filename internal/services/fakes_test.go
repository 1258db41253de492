package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"outgo/internal/core"
)

// memStore is an in-memory stand-in for the SQLite repository, implementing
// every port the services need.
type memStore struct {
	mu         sync.Mutex
	plans      map[string]core.RecurringPlan
	entries    map[string]core.LedgerEntry
	goals      map[string]core.SpendingGoal
	categories map[string]string
	nextID     int

	// failEntryForPlan makes SaveEntry fail for entries bound to this plan.
	failEntryForPlan string
}

func newMemStore() *memStore {
	return &memStore{
		plans:      make(map[string]core.RecurringPlan),
		entries:    make(map[string]core.LedgerEntry),
		goals:      make(map[string]core.SpendingGoal),
		categories: map[string]string{"groceries": "Groceries", "rent": "Rent"},
	}
}

func (m *memStore) newID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s-%d", prefix, m.nextID)
}

func (m *memStore) SavePlan(_ context.Context, p *core.RecurringPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = m.newID("plan")
	}
	m.plans[p.ID] = *p
	return nil
}

func (m *memStore) FindPlanByID(_ context.Context, id string) (*core.RecurringPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) FindDuePlans(_ context.Context, today core.Date) ([]core.RecurringPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []core.RecurringPlan
	for _, p := range m.plans {
		if p.NextRunDate.After(today) {
			continue
		}
		if !p.EndDate.IsZero() && p.EndDate.Before(today) {
			continue
		}
		due = append(due, p)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRunDate.Before(due[j].NextRunDate) })
	return due, nil
}

func (m *memStore) FindPlansByOwnerCategoryFrequency(_ context.Context, ownerID, categoryID string, freq core.Frequency) ([]core.RecurringPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.RecurringPlan
	for _, p := range m.plans {
		if p.OwnerID == ownerID && p.CategoryID == categoryID && p.Frequency == freq {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunDate.Before(out[j].NextRunDate) })
	return out, nil
}

func (m *memStore) ListPlansByOwner(_ context.Context, ownerID string) ([]core.RecurringPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.RecurringPlan
	for _, p := range m.plans {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CancelPlan(_ context.Context, planID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[planID]; !ok {
		return 0, core.ErrNotFound
	}
	var detached int64
	for id, e := range m.entries {
		if e.RecurringPlanID == planID {
			e.RecurringPlanID = ""
			e.IsRecurring = false
			m.entries[id] = e
			detached++
		}
	}
	delete(m.plans, planID)
	return detached, nil
}

func (m *memStore) SaveEntry(_ context.Context, e *core.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEntryForPlan != "" && e.RecurringPlanID == m.failEntryForPlan {
		return errors.New("save entry: disk full")
	}
	if e.ID == "" {
		e.ID = m.newID("entry")
	}
	m.entries[e.ID] = *e
	return nil
}

func (m *memStore) FindEntryByID(_ context.Context, id string) (*core.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &e, nil
}

func (m *memStore) ListEntriesByOwner(_ context.Context, ownerID string) ([]core.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.LedgerEntry
	for _, e := range m.entries {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) DeleteEntry(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return core.ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *memStore) SearchEntries(_ context.Context, ownerID string, f core.EntryFilter) ([]core.LedgerEntry, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []core.LedgerEntry
	for _, e := range m.entries {
		if e.OwnerID != ownerID {
			continue
		}
		if !f.From.IsZero() && e.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.Date.After(f.To) {
			continue
		}
		if f.CategoryID != "" && e.CategoryID != f.CategoryID {
			continue
		}
		if f.Recurring != nil && e.IsRecurring != *f.Recurring {
			continue
		}
		if kw := strings.ToLower(strings.TrimSpace(f.Keyword)); kw != "" {
			if !strings.Contains(strings.ToLower(e.Description), kw) &&
				!strings.Contains(strings.ToLower(e.Notes), kw) {
				continue
			}
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Date.Equal(matched[j].Date) {
			return matched[j].Date.Before(matched[i].Date)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if f.Offset > total {
		return nil, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (m *memStore) CategorySpendInWindow(_ context.Context, ownerID string, from, to core.Date) ([]core.CategorySpend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totals := make(map[string]*core.CategorySpend)
	for _, e := range m.entries {
		if e.OwnerID != ownerID || e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		row, ok := totals[e.CategoryID]
		if !ok {
			name := m.categories[e.CategoryID]
			if name == "" {
				name = e.CategoryID
			}
			row = &core.CategorySpend{CategoryID: e.CategoryID, CategoryName: name}
			totals[e.CategoryID] = row
		}
		row.Total = row.Total.Add(e.Amount)
	}
	out := make([]core.CategorySpend, 0, len(totals))
	for _, row := range totals {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryName < out[j].CategoryName })
	return out, nil
}

func (m *memStore) SumEntriesByOwnerCategoryWindow(_ context.Context, ownerID, categoryID string, from, to core.Date) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, e := range m.entries {
		if e.OwnerID != ownerID || e.CategoryID != categoryID {
			continue
		}
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total, nil
}

func (m *memStore) CategoryName(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, ok := m.categories[id]
	if !ok {
		return "", core.ErrNotFound
	}
	return name, nil
}

func (m *memStore) SaveGoal(_ context.Context, g *core.SpendingGoal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = m.newID("goal")
	}
	m.goals[g.ID] = *g
	return nil
}

func (m *memStore) FindGoalByID(_ context.Context, id string) (*core.SpendingGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &g, nil
}

func (m *memStore) ListActiveGoalsByOwner(_ context.Context, ownerID string) ([]core.SpendingGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.SpendingGoal
	for _, g := range m.goals {
		if g.OwnerID == ownerID && g.Active {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) FindActiveGoalByOwnerCategoryPeriod(_ context.Context, ownerID, categoryID string, period core.GoalPeriod) (*core.SpendingGoal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.goals {
		if g.OwnerID == ownerID && g.CategoryID == categoryID && g.Period == period && g.Active {
			return &g, nil
		}
	}
	return nil, core.ErrNotFound
}

// advancingStore wraps memStore and advances one plan a single period on
// its first reload, imitating a concurrent writer that won the race for
// the plan lock.
type advancingStore struct {
	*memStore
	planID   string
	advanced atomic.Bool
}

func (a *advancingStore) FindPlanByID(ctx context.Context, id string) (*core.RecurringPlan, error) {
	if id == a.planID && a.advanced.CompareAndSwap(false, true) {
		p, err := a.memStore.FindPlanByID(ctx, id)
		if err != nil {
			return nil, err
		}
		p.NextRunDate = core.NextRunAfter(*p, p.NextRunDate)
		if err := a.memStore.SavePlan(ctx, p); err != nil {
			return nil, err
		}
	}
	return a.memStore.FindPlanByID(ctx, id)
}

// capturePublisher records published events.
type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	EntryID string
	PlanID  string
	Source  string
}

func (c *capturePublisher) PublishEntryCreated(_ context.Context, entryID, planID, source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, capturedEvent{EntryID: entryID, PlanID: planID, Source: source})
	return nil
}

func (c *capturePublisher) published() []capturedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedEvent(nil), c.events...)
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}
