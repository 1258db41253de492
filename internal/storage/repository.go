// Package storage persists plans, ledger entries and spending goals in
// SQLite. Dates are stored as YYYY-MM-DD strings and amounts as decimal
// strings so that values round-trip exactly.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"outgo/internal/core"
	applog "outgo/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- plans ---

const planColumns = `id, owner_id, category_id, amount, currency, frequency,
	start_date, end_date, next_run_date, last_run_at, payment_method, notes`

// SavePlan inserts the plan or updates it in place. A missing ID is
// assigned here so callers can treat creation and mutation uniformly.
func (r *SQLiteRepository) SavePlan(ctx context.Context, p *core.RecurringPlan) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurring_plans
			(id, owner_id, category_id, amount, currency, frequency,
			 start_date, end_date, next_run_date, last_run_at, payment_method, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id       = excluded.owner_id,
			category_id    = excluded.category_id,
			amount         = excluded.amount,
			currency       = excluded.currency,
			frequency      = excluded.frequency,
			start_date     = excluded.start_date,
			end_date       = excluded.end_date,
			next_run_date  = excluded.next_run_date,
			last_run_at    = excluded.last_run_at,
			payment_method = excluded.payment_method,
			notes          = excluded.notes,
			updated_at     = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		p.ID, p.OwnerID, p.CategoryID, p.Amount.String(), p.Currency, string(p.Frequency),
		p.StartDate.String(), nullDate(p.EndDate), p.NextRunDate.String(),
		nullTime(p.LastRunAt), nullString(p.PaymentMethod), nullString(p.Notes))
	if err != nil {
		return fmt.Errorf("save plan: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindPlanByID(ctx context.Context, id string) (*core.RecurringPlan, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM recurring_plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if err != nil {
		return nil, fmt.Errorf("find plan %s: %w", id, err)
	}
	return p, nil
}

// FindDuePlans returns plans with next_run_date <= today that have not
// passed their end date. Dormant plans (end_date < today) stay stored but
// are never returned here.
func (r *SQLiteRepository) FindDuePlans(ctx context.Context, today core.Date) ([]core.RecurringPlan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+planColumns+` FROM recurring_plans
		WHERE next_run_date <= ?
		  AND (end_date IS NULL OR end_date >= ?)
		ORDER BY next_run_date, created_at`,
		today.String(), today.String())
	if err != nil {
		return nil, fmt.Errorf("query due plans: %w", err)
	}
	defer rows.Close()
	return collectPlans(rows)
}

func (r *SQLiteRepository) FindPlansByOwnerCategoryFrequency(ctx context.Context, ownerID, categoryID string, freq core.Frequency) ([]core.RecurringPlan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+planColumns+` FROM recurring_plans
		WHERE owner_id = ? AND category_id = ? AND frequency = ?
		ORDER BY next_run_date, created_at`,
		ownerID, categoryID, string(freq))
	if err != nil {
		return nil, fmt.Errorf("query candidate plans: %w", err)
	}
	defer rows.Close()
	return collectPlans(rows)
}

func (r *SQLiteRepository) ListPlansByOwner(ctx context.Context, ownerID string) ([]core.RecurringPlan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+planColumns+` FROM recurring_plans
		WHERE owner_id = ?
		ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()
	return collectPlans(rows)
}

// CancelPlan detaches every ledger entry bound to the plan and deletes the
// plan record in one transaction. Entries survive as ordinary non-recurring
// records. Returns the number of detached entries.
func (r *SQLiteRepository) CancelPlan(ctx context.Context, planID string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin cancel transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE ledger_entries
		SET recurring_plan_id = NULL,
		    is_recurring = 0,
		    updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		WHERE recurring_plan_id = ?`, planID)
	if err != nil {
		return 0, fmt.Errorf("detach entries: %w", err)
	}
	detached, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("detach entries: %w", err)
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM recurring_plans WHERE id = ?`, planID)
	if err != nil {
		return 0, fmt.Errorf("delete plan: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete plan: %w", err)
	}
	if deleted == 0 {
		return 0, fmt.Errorf("delete plan %s: %w", planID, core.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit cancel transaction: %w", err)
	}

	slog.InfoContext(ctx, "Plan cancelled",
		applog.FieldPlanID, planID,
		"entries_detached", detached)
	return detached, nil
}

// --- ledger entries ---

const entryColumns = `id, owner_id, category_id, amount, currency, entry_date,
	description, notes, payment_method, is_recurring, recurring_plan_id`

func (r *SQLiteRepository) SaveEntry(ctx context.Context, e *core.LedgerEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(id, owner_id, category_id, amount, currency, entry_date,
			 description, notes, payment_method, is_recurring, recurring_plan_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id          = excluded.owner_id,
			category_id       = excluded.category_id,
			amount            = excluded.amount,
			currency          = excluded.currency,
			entry_date        = excluded.entry_date,
			description       = excluded.description,
			notes             = excluded.notes,
			payment_method    = excluded.payment_method,
			is_recurring      = excluded.is_recurring,
			recurring_plan_id = excluded.recurring_plan_id,
			updated_at        = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		e.ID, e.OwnerID, e.CategoryID, e.Amount.String(), e.Currency, e.Date.String(),
		e.Description, nullString(e.Notes), nullString(e.PaymentMethod),
		boolToInt(e.IsRecurring), nullString(e.RecurringPlanID))
	if err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindEntryByID(ctx context.Context, id string) (*core.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("find entry %s: %w", id, err)
	}
	return e, nil
}

func (r *SQLiteRepository) ListEntriesByOwner(ctx context.Context, ownerID string) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE owner_id = ?
		ORDER BY entry_date DESC, created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *SQLiteRepository) FindEntriesByPlan(ctx context.Context, planID string) ([]core.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE recurring_plan_id = ?
		ORDER BY entry_date`, planID)
	if err != nil {
		return nil, fmt.Errorf("list entries by plan: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func (r *SQLiteRepository) DeleteEntry(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete entry %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// SearchEntries returns a page of entries matching the filter, newest
// first, together with the total match count before paging.
func (r *SQLiteRepository) SearchEntries(ctx context.Context, ownerID string, f core.EntryFilter) ([]core.LedgerEntry, int, error) {
	where := []string{"owner_id = ?"}
	args := []any{ownerID}

	if !f.From.IsZero() {
		where = append(where, "entry_date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "entry_date <= ?")
		args = append(args, f.To.String())
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.Recurring != nil {
		where = append(where, "is_recurring = ?")
		args = append(args, boolToInt(*f.Recurring))
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		where = append(where, "(LOWER(description) LIKE ? OR LOWER(COALESCE(notes, '')) LIKE ?)")
		pattern := "%" + strings.ToLower(kw) + "%"
		args = append(args, pattern, pattern)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE `+clause+`
		ORDER BY entry_date DESC, created_at DESC
		LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search entries: %w", err)
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// CategorySpendInWindow totals entry amounts per category for one owner
// between from and to inclusive. Rows come back ordered by category name.
func (r *SQLiteRepository) CategorySpendInWindow(ctx context.Context, ownerID string, from, to core.Date) ([]core.CategorySpend, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.category_id, COALESCE(c.name, e.category_id), e.amount
		FROM ledger_entries e
		LEFT JOIN categories c ON c.id = e.category_id
		WHERE e.owner_id = ? AND e.entry_date >= ? AND e.entry_date <= ?`,
		ownerID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query category spend: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]*core.CategorySpend)
	for rows.Next() {
		var categoryID, name, raw string
		if err := rows.Scan(&categoryID, &name, &raw); err != nil {
			return nil, fmt.Errorf("scan category spend: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		row, ok := totals[categoryID]
		if !ok {
			row = &core.CategorySpend{CategoryID: categoryID, CategoryName: name}
			totals[categoryID] = row
		}
		row.Total = row.Total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category spend: %w", err)
	}

	out := make([]core.CategorySpend, 0, len(totals))
	for _, row := range totals {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryName < out[j].CategoryName })
	return out, nil
}

// SumEntriesByOwnerCategoryWindow totals entry amounts for one owner and
// category between from and to inclusive. Summation happens in Go on
// decimals; SQLite would coerce the text amounts to floats.
func (r *SQLiteRepository) SumEntriesByOwnerCategoryWindow(ctx context.Context, ownerID, categoryID string, from, to core.Date) (decimal.Decimal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT amount FROM ledger_entries
		WHERE owner_id = ? AND category_id = ?
		  AND entry_date >= ? AND entry_date <= ?`,
		ownerID, categoryID, from.String(), to.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("query window sum: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("iterate amounts: %w", err)
	}
	return total, nil
}

// --- spending goals ---

const goalColumns = `id, owner_id, category_id, period, target_amount,
	goal_name, start_date, end_date, active`

func (r *SQLiteRepository) SaveGoal(ctx context.Context, g *core.SpendingGoal) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO spending_goals
			(id, owner_id, category_id, period, target_amount,
			 goal_name, start_date, end_date, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			period        = excluded.period,
			target_amount = excluded.target_amount,
			goal_name     = excluded.goal_name,
			start_date    = excluded.start_date,
			end_date      = excluded.end_date,
			active        = excluded.active`,
		g.ID, g.OwnerID, g.CategoryID, string(g.Period), g.TargetAmount.String(),
		g.GoalName, g.StartDate.String(), g.EndDate.String(), boolToInt(g.Active))
	if err != nil {
		return fmt.Errorf("save goal: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) FindGoalByID(ctx context.Context, id string) (*core.SpendingGoal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+goalColumns+` FROM spending_goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if err != nil {
		return nil, fmt.Errorf("find goal %s: %w", id, err)
	}
	return g, nil
}

func (r *SQLiteRepository) ListActiveGoalsByOwner(ctx context.Context, ownerID string) ([]core.SpendingGoal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+goalColumns+` FROM spending_goals
		WHERE owner_id = ? AND active = 1
		ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []core.SpendingGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return goals, nil
}

func (r *SQLiteRepository) FindActiveGoalByOwnerCategoryPeriod(ctx context.Context, ownerID, categoryID string, period core.GoalPeriod) (*core.SpendingGoal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+goalColumns+` FROM spending_goals
		WHERE owner_id = ? AND category_id = ? AND period = ? AND active = 1
		LIMIT 1`, ownerID, categoryID, string(period))
	g, err := scanGoal(row)
	if err != nil {
		return nil, fmt.Errorf("find active goal: %w", err)
	}
	return g, nil
}

// --- categories ---

// CategoryName resolves a category id to its display name. Category CRUD
// lives outside this service; the table is seeded via migrations.
func (r *SQLiteRepository) CategoryName(ctx context.Context, id string) (string, error) {
	var name string
	err := r.db.QueryRowContext(ctx,
		`SELECT name FROM categories WHERE id = ?`, id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("category name: %w", err)
	}
	return name, nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*core.RecurringPlan, error) {
	var (
		p                        core.RecurringPlan
		amount, frequency, start string
		nextRun                  string
		endDate, lastRun         sql.NullString
		paymentMethod, notes     sql.NullString
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.CategoryID, &amount, &p.Currency, &frequency,
		&start, &endDate, &nextRun, &lastRun, &paymentMethod, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	p.Frequency = core.Frequency(frequency)
	if p.StartDate, err = core.ParseDate(start); err != nil {
		return nil, err
	}
	if p.NextRunDate, err = core.ParseDate(nextRun); err != nil {
		return nil, err
	}
	if endDate.Valid {
		if p.EndDate, err = core.ParseDate(endDate.String); err != nil {
			return nil, err
		}
	}
	if lastRun.Valid {
		if p.LastRunAt, err = time.Parse(time.RFC3339Nano, lastRun.String); err != nil {
			return nil, fmt.Errorf("parse last run %q: %w", lastRun.String, err)
		}
	}
	p.PaymentMethod = paymentMethod.String
	p.Notes = notes.String
	return &p, nil
}

func collectPlans(rows *sql.Rows) ([]core.RecurringPlan, error) {
	var plans []core.RecurringPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

func scanEntry(row rowScanner) (*core.LedgerEntry, error) {
	var (
		e                    core.LedgerEntry
		amount, entryDate    string
		notes, payment, plan sql.NullString
		isRecurring          int
	)
	err := row.Scan(&e.ID, &e.OwnerID, &e.CategoryID, &amount, &e.Currency, &entryDate,
		&e.Description, &notes, &payment, &isRecurring, &plan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if e.Date, err = core.ParseDate(entryDate); err != nil {
		return nil, err
	}
	e.Notes = notes.String
	e.PaymentMethod = payment.String
	e.IsRecurring = isRecurring != 0
	e.RecurringPlanID = plan.String
	return &e, nil
}

func collectEntries(rows *sql.Rows) ([]core.LedgerEntry, error) {
	var entries []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func scanGoal(row rowScanner) (*core.SpendingGoal, error) {
	var (
		g              core.SpendingGoal
		period, target string
		start, end     string
		active         int
	)
	err := row.Scan(&g.ID, &g.OwnerID, &g.CategoryID, &period, &target,
		&g.GoalName, &start, &end, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	g.Period = core.GoalPeriod(period)
	if g.TargetAmount, err = decimal.NewFromString(target); err != nil {
		return nil, fmt.Errorf("parse target %q: %w", target, err)
	}
	if g.StartDate, err = core.ParseDate(start); err != nil {
		return nil, err
	}
	if g.EndDate, err = core.ParseDate(end); err != nil {
		return nil, err
	}
	g.Active = active != 0
	return &g, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullDate(d core.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
