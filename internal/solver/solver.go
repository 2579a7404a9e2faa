// Package solver computes the optimal stop/draw policy by backward induction
// over player states, priced at the horizon by the dealer outcome table.
package solver

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/dealer"
)

var (
	ErrDegenerateTable = errors.New("dealer outcome table is degenerate")
	ErrInvalidHorizon  = errors.New("invalid horizon")
)

// statesPerJob is how many states one worker prices before taking the next
// batch of a layer.
const statesPerJob = 64

// Solver runs the backward pass.
type Solver struct {
	Horizon   int
	Workers   int
	Dist      blackjack.Distribution
	Tolerance float64
	Log       zerolog.Logger
}

// New returns a solver with the default horizon, one worker per CPU and the
// infinite-deck distribution.
func New(log zerolog.Logger) *Solver {
	return &Solver{
		Horizon:   blackjack.DefaultHorizon,
		Workers:   runtime.GOMAXPROCS(0),
		Dist:      blackjack.InfiniteDeck(),
		Tolerance: 1e-9,
		Log:       log.With().Str("component", "solver").Logger(),
	}
}

// Solve seeds J[N] from the dealer table and resolves layers N-1 down to 1.
// The table is validated first; a degenerate table is refused.
//
// Within a layer states are independent and priced in parallel, each writing
// its own slot, so the result does not depend on Workers.
func (s *Solver) Solve(ctx context.Context, table dealer.OutcomeTable) (*ValueTable, error) {
	if s.Horizon < 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHorizon, s.Horizon)
	}
	if err := table.Validate(s.Tolerance); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDegenerateTable, err)
	}

	start := time.Now()
	J := NewValueTable(s.Horizon)

	for _, st := range J.States(s.Horizon) {
		cost := TerminalCost(st, table)
		if err := J.resolve(s.Horizon, st, []actionCost{{Action: blackjack.Stop, Cost: cost}}); err != nil {
			return nil, err
		}
	}

	for k := s.Horizon - 1; k >= 1; k-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.solveLayer(ctx, k, J); err != nil {
			s.Log.Error().Err(err).Str("op", "solve_operation").Int("layer", k).Msg("layer failed")
			return nil, err
		}
		s.Log.Debug().
			Str("op", "solve_operation").
			Int("layer", k).
			Int("states", len(J.layers[k].states)).
			Msg("layer solved")
	}

	initial, err := J.InitialCost(s.Dist)
	if err != nil {
		return nil, err
	}
	s.Log.Info().
		Str("op", "solve_operation").
		Int("horizon", s.Horizon).
		Int("workers", s.workers()).
		Float64("initial_cost", initial).
		Dur("duration", time.Since(start)).
		Msg("backward induction finished")
	return J, nil
}

func (s *Solver) workers() int {
	if s.Workers < 1 {
		return 1
	}
	return s.Workers
}

func (s *Solver) solveLayer(ctx context.Context, k int, J *ValueTable) error {
	states := J.layers[k].states

	if s.workers() == 1 {
		for _, st := range states {
			if err := ExpectedStateCost(k, st, J, s.Dist); err != nil {
				return err
			}
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for lo := 0; lo < len(states); lo += statesPerJob {
		batch := states[lo:min(lo+statesPerJob, len(states))]
		g.Go(func() error {
			for _, st := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := ExpectedStateCost(k, st, J, s.Dist); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
