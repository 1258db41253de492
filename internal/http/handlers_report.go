package http

import (
	"net/http"
	"strconv"

	"outgo/internal/core"
)

type reportItemResponse struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	Total        string `json:"total"`
}

type reportResponse struct {
	Period    string               `json:"period"`
	Year      int                  `json:"year"`
	Week      int                  `json:"week,omitempty"`
	Month     int                  `json:"month,omitempty"`
	StartDate string               `json:"start_date"`
	EndDate   string               `json:"end_date"`
	Items     []reportItemResponse `json:"items"`
	Total     string               `json:"total"`
}

// handleSpendingReport aggregates spending per category over an ISO week,
// a calendar month or a calendar year.
func (s *Server) handleSpendingReport(w http.ResponseWriter, r *http.Request) {
	owner := ownerFromRequest(r)
	if owner == "" {
		badRequest(w, "owner is required")
		return
	}

	q := r.URL.Query()
	period, err := core.ParseGoalPeriod(q.Get("period"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		badRequest(w, "invalid year: "+q.Get("year"))
		return
	}

	var month, week int
	switch period {
	case core.GoalWeekly:
		if week, err = strconv.Atoi(q.Get("week")); err != nil {
			badRequest(w, "invalid week: "+q.Get("week"))
			return
		}
	case core.GoalMonthly:
		if month, err = strconv.Atoi(q.Get("month")); err != nil {
			badRequest(w, "invalid month: "+q.Get("month"))
			return
		}
	}

	report, err := s.ledger.SpendingReport(r.Context(), owner, period, year, month, week)
	if err != nil {
		respondError(w, r, err)
		return
	}

	items := make([]reportItemResponse, len(report.Items))
	for i, item := range report.Items {
		items[i] = reportItemResponse{
			CategoryID:   item.CategoryID,
			CategoryName: item.CategoryName,
			Total:        item.Total.String(),
		}
	}
	respondJSON(w, http.StatusOK, reportResponse{
		Period:    string(report.Period),
		Year:      report.Year,
		Week:      report.Week,
		Month:     report.Month,
		StartDate: report.StartDate.String(),
		EndDate:   report.EndDate.String(),
		Items:     items,
		Total:     report.Total.String(),
	})
}
