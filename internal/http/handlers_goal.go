package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"outgo/internal/core"
	"outgo/internal/services"
)

type createGoalRequest struct {
	OwnerID         string `json:"owner_id"`
	CategoryID      string `json:"category_id"`
	Period          string `json:"period"`
	TargetAmount    string `json:"target_amount"`
	StartDate       string `json:"start_date,omitempty"`
	EndDate         string `json:"end_date,omitempty"`
	StartNextPeriod bool   `json:"start_next_period,omitempty"`
	ConfirmReplace  bool   `json:"confirm_replace,omitempty"`
}

type goalResponse struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	CategoryID   string `json:"category_id"`
	Period       string `json:"period"`
	TargetAmount string `json:"target_amount"`
	GoalName     string `json:"goal_name"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Active       bool   `json:"active"`
}

type goalProgressResponse struct {
	GoalID          string `json:"goal_id"`
	CategoryID      string `json:"category_id"`
	Period          string `json:"period"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	TargetAmount    string `json:"target_amount"`
	SpentAmount     string `json:"spent_amount"`
	RemainingAmount string `json:"remaining_amount"`
	ProgressPercent string `json:"progress_percent"`
	DaysLeft        int    `json:"days_left"`
	Health          string `json:"health"`
	Alert           string `json:"alert"`
}

func toGoalProgressResponse(p core.GoalProgress) goalProgressResponse {
	return goalProgressResponse{
		GoalID:          p.GoalID,
		CategoryID:      p.CategoryID,
		Period:          string(p.Period),
		StartDate:       p.StartDate.String(),
		EndDate:         p.EndDate.String(),
		TargetAmount:    p.TargetAmount.String(),
		SpentAmount:     p.SpentAmount.String(),
		RemainingAmount: p.RemainingAmount.String(),
		ProgressPercent: p.ProgressPercent.StringFixed(2),
		DaysLeft:        p.DaysLeft,
		Health:          p.Health,
		Alert:           p.Alert,
	}
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req createGoalRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	target, err := decimal.NewFromString(req.TargetAmount)
	if err != nil {
		badRequest(w, "invalid target amount: "+req.TargetAmount)
		return
	}
	period, err := core.ParseGoalPeriod(req.Period)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var startDate, endDate core.Date
	if req.StartDate != "" {
		if startDate, err = core.ParseDate(req.StartDate); err != nil {
			respondError(w, r, err)
			return
		}
	}
	if req.EndDate != "" {
		if endDate, err = core.ParseDate(req.EndDate); err != nil {
			respondError(w, r, err)
			return
		}
	}

	goal, err := s.goals.CreateGoal(r.Context(), services.CreateGoalParams{
		OwnerID:         req.OwnerID,
		CategoryID:      req.CategoryID,
		Period:          period,
		TargetAmount:    target,
		StartDate:       startDate,
		EndDate:         endDate,
		StartNextPeriod: req.StartNextPeriod,
		ConfirmReplace:  req.ConfirmReplace,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, goalResponse{
		ID:           goal.ID,
		OwnerID:      goal.OwnerID,
		CategoryID:   goal.CategoryID,
		Period:       string(goal.Period),
		TargetAmount: goal.TargetAmount.String(),
		GoalName:     goal.GoalName,
		StartDate:    goal.StartDate.String(),
		EndDate:      goal.EndDate.String(),
		Active:       goal.Active,
	})
}

func (s *Server) handleListGoalProgress(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		badRequest(w, "owner is required")
		return
	}

	progress, err := s.goals.ListProgress(r.Context(), owner)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]goalProgressResponse, len(progress))
	for i, p := range progress {
		out[i] = toGoalProgressResponse(p)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		badRequest(w, "owner is required")
		return
	}

	progress, err := s.goals.Progress(r.Context(), owner, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toGoalProgressResponse(*progress))
}
