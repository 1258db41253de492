// Package http exposes the expense tracker over a JSON API. Handlers are
// a thin shell: parsing and status mapping here, behavior in services.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	applog "outgo/internal/log"
	"outgo/internal/services"
)

type Server struct {
	srv       *http.Server
	ledger    *services.LedgerService
	lifecycle *services.Lifecycle
	sweeper   *services.Sweeper
	goals     *services.GoalService
	loc       *time.Location
	logger    *applog.Logger
}

func NewServer(addr string, ledger *services.LedgerService, lifecycle *services.Lifecycle, sweeper *services.Sweeper, goals *services.GoalService, loc *time.Location, logger *applog.Logger) *Server {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}

	s := &Server{
		ledger:    ledger,
		lifecycle: lifecycle,
		sweeper:   sweeper,
		goals:     goals,
		loc:       loc,
		logger:    logger,
	}

	r := mux.NewRouter()
	r.Use(applog.Middleware(logger))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/expenses", s.handleCreateExpense).Methods(http.MethodPost)
	api.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	api.HandleFunc("/expenses/search", s.handleSearchExpenses).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id}", s.handleUpdateExpense).Methods(http.MethodPut)
	api.HandleFunc("/expenses/{id}", s.handleDeleteExpense).Methods(http.MethodDelete)

	api.HandleFunc("/reports", s.handleSpendingReport).Methods(http.MethodGet)

	api.HandleFunc("/recurring", s.handleCreatePlan).Methods(http.MethodPost)
	api.HandleFunc("/recurring", s.handleListPlans).Methods(http.MethodGet)
	api.HandleFunc("/recurring/sweep", s.handleSweep).Methods(http.MethodPost)
	api.HandleFunc("/recurring/{id}", s.handleCancelPlan).Methods(http.MethodDelete)

	api.HandleFunc("/goals", s.handleCreateGoal).Methods(http.MethodPost)
	api.HandleFunc("/goals", s.handleListGoalProgress).Methods(http.MethodGet)
	api.HandleFunc("/goals/{id}/progress", s.handleGoalProgress).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:           addr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
