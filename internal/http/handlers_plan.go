package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"outgo/internal/core"
	"outgo/internal/services"
)

type createPlanRequest struct {
	OwnerID       string `json:"owner_id"`
	CategoryID    string `json:"category_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Frequency     string `json:"frequency"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type planResponse struct {
	ID            string `json:"id"`
	OwnerID       string `json:"owner_id"`
	CategoryID    string `json:"category_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Frequency     string `json:"frequency"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date,omitempty"`
	NextRunDate   string `json:"next_run_date"`
	LastRunAt     string `json:"last_run_at,omitempty"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

func toPlanResponse(p core.RecurringPlan) planResponse {
	resp := planResponse{
		ID:            p.ID,
		OwnerID:       p.OwnerID,
		CategoryID:    p.CategoryID,
		Amount:        p.Amount.String(),
		Currency:      p.Currency,
		Frequency:     string(p.Frequency),
		StartDate:     p.StartDate.String(),
		NextRunDate:   p.NextRunDate.String(),
		PaymentMethod: p.PaymentMethod,
		Notes:         p.Notes,
	}
	if !p.EndDate.IsZero() {
		resp.EndDate = p.EndDate.String()
	}
	if !p.LastRunAt.IsZero() {
		resp.LastRunAt = p.LastRunAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	var req createPlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		badRequest(w, "invalid amount: "+req.Amount)
		return
	}
	freq, err := core.ParseFrequency(req.Frequency)
	if err != nil {
		respondError(w, r, err)
		return
	}
	startDate, err := core.ParseDate(req.StartDate)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var endDate core.Date
	if req.EndDate != "" {
		if endDate, err = core.ParseDate(req.EndDate); err != nil {
			respondError(w, r, err)
			return
		}
	}

	plan, err := s.lifecycle.CreatePlan(r.Context(), services.CreatePlanParams{
		OwnerID:       req.OwnerID,
		CategoryID:    req.CategoryID,
		Amount:        amount,
		Currency:      req.Currency,
		Frequency:     freq,
		StartDate:     startDate,
		EndDate:       endDate,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPlanResponse(*plan))
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		badRequest(w, "owner is required")
		return
	}

	plans, err := s.lifecycle.ListPlans(r.Context(), owner)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]planResponse, len(plans))
	for i, p := range plans {
		out[i] = toPlanResponse(p)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelPlan(w http.ResponseWriter, r *http.Request) {
	if err := s.lifecycle.CancelPlan(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// handleSweep triggers a due-plan sweep immediately. The recurring worker
// is the normal trigger; this endpoint is an operational escape hatch.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	today := core.DateOf(time.Now().In(s.loc))
	processed, err := s.sweeper.RunDueSweep(r.Context(), today)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"today":     today.String(),
		"processed": processed,
	})
}
