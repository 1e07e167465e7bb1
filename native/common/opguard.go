package common

import (
	"errors"
	"sync"
)

// ErrOperationInProgress is returned when a mutating operation is invoked
// while another one holds the same scope, i.e. a re-entrant call from within
// an external transfer triggered by the operation in flight.
var ErrOperationInProgress = errors.New("operation already in progress")

// OpGuard is an explicit operation-in-progress marker. A scope is acquired at
// the entry of every mutating ledger operation and released on every exit
// path; a nested acquisition of the same scope fails instead of deadlocking.
type OpGuard struct {
	mu     sync.Mutex
	active map[string]bool
}

// NewOpGuard returns an empty guard.
func NewOpGuard() *OpGuard {
	return &OpGuard{active: make(map[string]bool)}
}

// Enter marks the scope as busy. It fails with ErrOperationInProgress when the
// scope is already held.
func (g *OpGuard) Enter(scope string) error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[scope] {
		return ErrOperationInProgress
	}
	g.active[scope] = true
	return nil
}

// Exit clears the scope. Safe to call for a scope that is not held.
func (g *OpGuard) Exit(scope string) {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, scope)
}

// Held reports whether the scope is currently marked busy.
func (g *OpGuard) Held(scope string) bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[scope]
}
