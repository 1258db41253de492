package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"outgo/internal/core"
	applog "outgo/internal/log"
)

// minGoalTarget is the smallest allowed goal target amount.
var minGoalTarget = decimal.NewFromInt(1)

// GoalService evaluates spending-goal progress against ledger data. It is
// a consumer of the ledger; the scheduler never depends on it.
type GoalService struct {
	goals      GoalStore
	spending   SpendingReader
	categories CategoryReader
	loc        *time.Location
	now        func() time.Time
}

func NewGoalService(goals GoalStore, spending SpendingReader, categories CategoryReader, loc *time.Location) *GoalService {
	if loc == nil {
		loc = time.UTC
	}
	return &GoalService{
		goals:      goals,
		spending:   spending,
		categories: categories,
		loc:        loc,
		now:        time.Now,
	}
}

// CreateGoalParams carries the fields of a goal creation request.
type CreateGoalParams struct {
	OwnerID         string
	CategoryID      string
	Period          core.GoalPeriod
	TargetAmount    decimal.Decimal
	StartDate       core.Date // zero: computed from the period
	EndDate         core.Date
	StartNextPeriod bool
	ConfirmReplace  bool
}

// CreateGoal persists a new active goal. An existing active goal for the
// same (owner, category, period) is replaced only when ConfirmReplace is
// set; otherwise the call fails so the caller can ask for confirmation.
func (s *GoalService) CreateGoal(ctx context.Context, params CreateGoalParams) (*core.SpendingGoal, error) {
	if params.TargetAmount.LessThan(minGoalTarget) {
		return nil, fmt.Errorf("%w: target must be at least %s", core.ErrInvalidAmount, minGoalTarget)
	}

	categoryName, err := s.categories.CategoryName(ctx, params.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("resolve category: %w", err)
	}

	existing, err := s.goals.FindActiveGoalByOwnerCategoryPeriod(ctx, params.OwnerID, params.CategoryID, params.Period)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("check existing goal: %w", err)
	}
	if existing != nil {
		if !params.ConfirmReplace {
			return nil, fmt.Errorf("%w: active goal already exists for this category and period", core.ErrConflict)
		}
		existing.Active = false
		if err := s.goals.SaveGoal(ctx, existing); err != nil {
			return nil, fmt.Errorf("deactivate previous goal: %w", err)
		}
	}

	start, end := params.StartDate, params.EndDate
	if start.IsZero() || end.IsZero() {
		today := core.DateOf(s.now().In(s.loc))
		start, end = core.GoalWindow(today, params.Period, params.StartNextPeriod)
	}

	goal := &core.SpendingGoal{
		OwnerID:      params.OwnerID,
		CategoryID:   params.CategoryID,
		Period:       params.Period,
		TargetAmount: params.TargetAmount,
		GoalName:     goalName(categoryName, params.Period),
		StartDate:    start,
		EndDate:      end,
		Active:       true,
	}
	if err := goal.Validate(); err != nil {
		return nil, err
	}
	if err := s.goals.SaveGoal(ctx, goal); err != nil {
		return nil, fmt.Errorf("save goal: %w", err)
	}

	slog.InfoContext(ctx, "Spending goal created",
		applog.FieldGoalID, goal.ID,
		applog.FieldOwnerID, goal.OwnerID,
		"period", string(goal.Period),
		"window", goal.StartDate.String()+".."+goal.EndDate.String())
	return goal, nil
}

// Progress evaluates one goal's spending progress as of today.
func (s *GoalService) Progress(ctx context.Context, ownerID, goalID string) (*core.GoalProgress, error) {
	goal, err := s.goals.FindGoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if goal.OwnerID != ownerID {
		return nil, core.ErrUnauthorized
	}

	spent, err := s.spending.SumEntriesByOwnerCategoryWindow(ctx, goal.OwnerID, goal.CategoryID, goal.StartDate, goal.EndDate)
	if err != nil {
		return nil, fmt.Errorf("sum spending: %w", err)
	}

	today := core.DateOf(s.now().In(s.loc))
	progress := core.EvaluateProgress(*goal, spent, today)
	return &progress, nil
}

// ListProgress evaluates all of an owner's active goals.
func (s *GoalService) ListProgress(ctx context.Context, ownerID string) ([]core.GoalProgress, error) {
	goals, err := s.goals.ListActiveGoalsByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}

	out := make([]core.GoalProgress, 0, len(goals))
	for _, g := range goals {
		p, err := s.Progress(ctx, ownerID, g.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func goalName(categoryName string, period core.GoalPeriod) string {
	label := map[core.GoalPeriod]string{
		core.GoalWeekly:  "Weekly",
		core.GoalMonthly: "Monthly",
		core.GoalYearly:  "Yearly",
	}[period]
	return fmt.Sprintf("%s %s Goal", categoryName, label)
}
