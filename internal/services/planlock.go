package services

import "sync"

// PlanLocks serializes mutation of a single plan record. Reconciliation
// and the sweep may run concurrently; both must hold the plan's lock
// before advancing next_run_date. Locks for different plans are
// independent. One registry is shared by all services in a process.
type PlanLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPlanLocks() *PlanLocks {
	return &PlanLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire locks the mutex for the given plan id and returns its unlock
// function.
func (l *PlanLocks) Acquire(planID string) func() {
	l.mu.Lock()
	m, ok := l.locks[planID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[planID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
