// Package store persists dealer outcome tables and solved policies. Each
// save is a run; loads return the latest run of a kind.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MJE43/blackjack-policy/internal/dealer"
	"github.com/MJE43/blackjack-policy/internal/solver"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnknownKind = errors.New("unknown run kind")
)

// Kind is what a run stored.
type Kind string

const (
	KindDealer Kind = "dealer"
	KindPolicy Kind = "policy"
)

// ParseKind accepts "dealer", "policy" or "" (every kind).
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindDealer, KindPolicy:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Run describes one saved table.
type Run struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Horizon   int       `json:"horizon,omitempty"`
	Timestep  int       `json:"timestep,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRun starts a run record with a fresh ID.
func NewRun(kind Kind) Run {
	return Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Store is the storage collaborator of the dealer model and the solver.
type Store interface {
	SaveDealerTable(ctx context.Context, t dealer.OutcomeTable) (Run, error)
	LoadDealerTable(ctx context.Context) (dealer.OutcomeTable, Run, error)
	SavePolicy(ctx context.Context, p solver.Policy) (Run, error)
	LoadPolicy(ctx context.Context) (solver.Policy, Run, error)
	ListRuns(ctx context.Context, kind Kind, limit int) ([]Run, error)
	Close() error
}
