package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/dealer"
)

func dealerTable(t *testing.T) dealer.OutcomeTable {
	t.Helper()
	table, err := dealer.NewModel(blackjack.InfiniteDeck(), zerolog.Nop()).Compute(1e-9)
	if err != nil {
		t.Fatalf("dealer model: %v", err)
	}
	return table
}

func solve(t *testing.T, workers int) *ValueTable {
	t.Helper()
	s := New(zerolog.Nop())
	s.Workers = workers
	J, err := s.Solve(context.Background(), dealerTable(t))
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	return J
}

func TestTerminalCost(t *testing.T) {
	table := dealerTable(t)

	tests := []struct {
		name  string
		state blackjack.State
		want  float64
	}{
		{"bust costs nothing", blackjack.State{Total: blackjack.Bust, UpCard: 10}, 0},
		{"21 is never beaten", blackjack.State{Total: 21, UpCard: 10}, -1},
		{"16 wins only on dealer bust", blackjack.State{Total: 16, UpCard: 6}, -table.Probability(6, dealer.OutcomeBust)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TerminalCost(tt.state, table); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("TerminalCost(%s) = %f, want %f", tt.state, got, tt.want)
			}
		})
	}
}

func TestCostsAreBounded(t *testing.T) {
	J := solve(t, 4)
	for k := 1; k <= J.Horizon(); k++ {
		for _, s := range J.States(k) {
			e, err := J.Lookup(k, s)
			if err != nil {
				t.Fatalf("Lookup(%d, %s): %v", k, s, err)
			}
			if e.Cost < -1 || e.Cost > 1 {
				t.Errorf("J[%d][%s] = %f outside [-1, 1]", k, s, e.Cost)
			}
		}
	}
}

func TestOptimalActions(t *testing.T) {
	J := solve(t, 4)

	tests := []struct {
		name  string
		k     int
		state blackjack.State
		want  blackjack.Action
	}{
		{"20 against 6 late", 12, blackjack.State{Total: 20, UpCard: 6, Playing: true}, blackjack.Stop},
		{"20 against 6 early", 2, blackjack.State{Total: 20, UpCard: 6, Playing: true}, blackjack.Stop},
		{"12 against 10", 2, blackjack.State{Total: 12, UpCard: 10, Playing: true}, blackjack.Play},
		{"low total always draws", 2, blackjack.State{Total: 8, UpCard: 5, Playing: true}, blackjack.Play},
		{"soft 21 stands", 2, blackjack.State{Total: 21, UsableAce: true, UpCard: 10, Playing: true}, blackjack.Stop},
		{"first card draws", 1, blackjack.State{Total: 10, UpCard: 11, Playing: true}, blackjack.Play},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := J.Decide(tt.k, tt.state)
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if got != tt.want {
				e, _ := J.Lookup(tt.k, tt.state)
				play, _ := e.ActionCost(blackjack.Play)
				stop, _ := e.ActionCost(blackjack.Stop)
				t.Errorf("J[%d][%s] = %s (play=%f stop=%f), want %s", tt.k, tt.state, got, play, stop, tt.want)
			}
		})
	}
}

func TestStoppedStatesKeepTerminalCost(t *testing.T) {
	table := dealerTable(t)
	J := solve(t, 1)

	s := blackjack.State{Total: 18, UpCard: 10}
	for _, k := range []int{3, 9, 15, J.Horizon()} {
		e, err := J.Lookup(k, s)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", k, err)
		}
		if e.Cost != TerminalCost(s, table) || e.Action != blackjack.Stop {
			t.Errorf("J[%d][%s] = %s %f, want stop %f", k, s, e.Action, e.Cost, TerminalCost(s, table))
		}
		if _, ok := e.ActionCost(blackjack.Play); ok {
			t.Errorf("play evaluated for stopped state at k=%d", k)
		}
	}
}

func TestSolveIsDeterministic(t *testing.T) {
	sequential := solve(t, 1)
	again := solve(t, 1)
	parallel := solve(t, 8)

	for k := 1; k <= sequential.Horizon(); k++ {
		for _, s := range sequential.States(k) {
			a, _ := sequential.Lookup(k, s)
			for _, other := range []*ValueTable{again, parallel} {
				b, err := other.Lookup(k, s)
				if err != nil {
					t.Fatalf("Lookup(%d, %s): %v", k, s, err)
				}
				if a != b {
					t.Fatalf("J[%d][%s] differs between runs: %+v vs %+v", k, s, a, b)
				}
			}
		}
	}

	p1, err := ExtractPolicy(sequential, DefaultPolicyTimestep)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := ExtractPolicy(parallel, DefaultPolicyTimestep)
	if err != nil {
		t.Fatal(err)
	}
	for i, r := range p1.Rows() {
		for j, c := range r.Cells {
			if p2.Rows()[i].Cells[j] != c {
				t.Fatalf("policy cell %s/%d differs", r.Label, c.UpCard)
			}
		}
	}
}

func TestShortHorizonFailsLookup(t *testing.T) {
	s := New(zerolog.Nop())
	s.Horizon = 10

	_, err := s.Solve(context.Background(), dealerTable(t))
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected *LookupError, got %v", err)
	}
	if lookupErr.Timestep != 10 {
		t.Errorf("expected the failing read at J[10], got J[%d]", lookupErr.Timestep)
	}
}

func TestInvalidHorizon(t *testing.T) {
	s := New(zerolog.Nop())
	s.Horizon = 1
	if _, err := s.Solve(context.Background(), dealerTable(t)); !errors.Is(err, ErrInvalidHorizon) {
		t.Fatalf("expected ErrInvalidHorizon, got %v", err)
	}
}

func TestDegenerateTableRefused(t *testing.T) {
	table := dealerTable(t)
	table.Set(4, dealer.OutcomeBust, 0)

	_, err := New(zerolog.Nop()).Solve(context.Background(), table)
	if !errors.Is(err, ErrDegenerateTable) {
		t.Fatalf("expected ErrDegenerateTable, got %v", err)
	}
	var rowErr *dealer.DegenerateRowError
	if !errors.As(err, &rowErr) || rowErr.UpCard != 4 {
		t.Errorf("expected the row for up-card 4 to be reported, got %v", err)
	}
}

func TestSolveHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := New(zerolog.Nop()).Solve(ctx, dealerTable(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestInitialCost(t *testing.T) {
	J := solve(t, 2)
	c, err := J.InitialCost(blackjack.InfiniteDeck())
	if err != nil {
		t.Fatal(err)
	}
	if c >= 0 || c < -1 {
		t.Errorf("initial cost %f outside (-1, 0)", c)
	}
}
