package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"outgo/internal/core"
	"outgo/internal/services"
)

type createExpenseRequest struct {
	OwnerID       string `json:"owner_id"`
	CategoryID    string `json:"category_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Date          string `json:"date"`
	Description   string `json:"description"`
	Notes         string `json:"notes"`
	PaymentMethod string `json:"payment_method"`
	// Optional: declaring a frequency reconciles the entry against
	// recurrence plans.
	Frequency string `json:"frequency,omitempty"`
}

type expenseResponse struct {
	ID              string `json:"id"`
	OwnerID         string `json:"owner_id"`
	CategoryID      string `json:"category_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Date            string `json:"date"`
	Description     string `json:"description"`
	Notes           string `json:"notes,omitempty"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	IsRecurring     bool   `json:"is_recurring"`
	RecurringPlanID string `json:"recurring_plan_id,omitempty"`
}

func toExpenseResponse(e core.LedgerEntry) expenseResponse {
	return expenseResponse{
		ID:              e.ID,
		OwnerID:         e.OwnerID,
		CategoryID:      e.CategoryID,
		Amount:          e.Amount.String(),
		Currency:        e.Currency,
		Date:            e.Date.String(),
		Description:     e.Description,
		Notes:           e.Notes,
		PaymentMethod:   e.PaymentMethod,
		IsRecurring:     e.IsRecurring,
		RecurringPlanID: e.RecurringPlanID,
	}
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		badRequest(w, "invalid amount: "+req.Amount)
		return
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var freq *core.Frequency
	if req.Frequency != "" {
		f, err := core.ParseFrequency(req.Frequency)
		if err != nil {
			respondError(w, r, err)
			return
		}
		freq = &f
	}

	entry := &core.LedgerEntry{
		OwnerID:       req.OwnerID,
		CategoryID:    req.CategoryID,
		Amount:        amount,
		Currency:      req.Currency,
		Date:          date,
		Description:   req.Description,
		Notes:         req.Notes,
		PaymentMethod: req.PaymentMethod,
	}

	if err := s.ledger.CreateManualEntry(r.Context(), entry, freq); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toExpenseResponse(*entry))
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		badRequest(w, "owner is required")
		return
	}

	entries, err := s.ledger.ListEntries(r.Context(), owner)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]expenseResponse, len(entries))
	for i, e := range entries {
		out[i] = toExpenseResponse(e)
	}
	respondJSON(w, http.StatusOK, out)
}

// updateExpenseRequest carries a partial update; absent fields keep their
// stored value.
type updateExpenseRequest struct {
	Amount        *string `json:"amount,omitempty"`
	Currency      *string `json:"currency,omitempty"`
	Description   *string `json:"description,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	PaymentMethod *string `json:"payment_method,omitempty"`
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		badRequest(w, "owner is required")
		return
	}

	var req updateExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	var upd services.EntryUpdate
	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			badRequest(w, "invalid amount: "+*req.Amount)
			return
		}
		upd.Amount = &amount
	}
	upd.Currency = req.Currency
	upd.Description = req.Description
	upd.Notes = req.Notes
	upd.PaymentMethod = req.PaymentMethod

	entry, err := s.ledger.UpdateEntry(r.Context(), owner, mux.Vars(r)["id"], upd)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toExpenseResponse(*entry))
}

type searchExpensesResponse struct {
	Items  []expenseResponse `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

func (s *Server) handleSearchExpenses(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		badRequest(w, "owner is required")
		return
	}

	q := r.URL.Query()
	var f core.EntryFilter
	var err error
	if v := q.Get("from"); v != "" {
		if f.From, err = core.ParseDate(v); err != nil {
			respondError(w, r, err)
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if f.To, err = core.ParseDate(v); err != nil {
			respondError(w, r, err)
			return
		}
	}
	f.CategoryID = q.Get("category")
	f.Keyword = q.Get("q")
	if v := q.Get("recurring"); v != "" {
		recurring, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(w, "invalid recurring flag: "+v)
			return
		}
		f.Recurring = &recurring
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			badRequest(w, "invalid limit: "+v)
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil {
			badRequest(w, "invalid offset: "+v)
			return
		}
	}

	f.Normalize()
	entries, total, err := s.ledger.SearchEntries(r.Context(), owner, f)
	if err != nil {
		respondError(w, r, err)
		return
	}

	items := make([]expenseResponse, len(entries))
	for i, e := range entries {
		items[i] = toExpenseResponse(e)
	}
	respondJSON(w, http.StatusOK, searchExpensesResponse{
		Items:  items,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		badRequest(w, "owner is required")
		return
	}

	if err := s.ledger.DeleteEntry(r.Context(), owner, mux.Vars(r)["id"]); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
