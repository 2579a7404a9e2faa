// Package storetest checks store.Store implementations against the same
// behavior.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/dealer"
	"github.com/MJE43/blackjack-policy/internal/solver"
	"github.com/MJE43/blackjack-policy/internal/store"
)

// Fixtures computes a real dealer table and its policy.
func Fixtures(t *testing.T) (dealer.OutcomeTable, solver.Policy) {
	t.Helper()
	table, err := dealer.NewModel(blackjack.InfiniteDeck(), zerolog.Nop()).Compute(1e-9)
	if err != nil {
		t.Fatal(err)
	}
	J, err := solver.New(zerolog.Nop()).Solve(context.Background(), table)
	if err != nil {
		t.Fatal(err)
	}
	p, err := solver.ExtractPolicy(J, solver.DefaultPolicyTimestep)
	if err != nil {
		t.Fatal(err)
	}
	return table, p
}

// Run exercises a store returned by open. open is called once per subtest
// and must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	table, policy := Fixtures(t)
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		s := open(t)
		if _, _, err := s.LoadDealerTable(ctx); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("LoadDealerTable: expected ErrNotFound, got %v", err)
		}
		if _, _, err := s.LoadPolicy(ctx); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("LoadPolicy: expected ErrNotFound, got %v", err)
		}
		runs, err := s.ListRuns(ctx, "", 10)
		if err != nil || len(runs) != 0 {
			t.Errorf("ListRuns = %v, %v; want no runs", runs, err)
		}
	})

	t.Run("dealer table round trip", func(t *testing.T) {
		s := open(t)
		run, err := s.SaveDealerTable(ctx, table)
		if err != nil {
			t.Fatalf("SaveDealerTable: %v", err)
		}
		if run.ID == "" || run.Kind != store.KindDealer {
			t.Errorf("unexpected run %+v", run)
		}

		got, loaded, err := s.LoadDealerTable(ctx)
		if err != nil {
			t.Fatalf("LoadDealerTable: %v", err)
		}
		if loaded.ID != run.ID {
			t.Errorf("loaded run %s, want %s", loaded.ID, run.ID)
		}
		for _, up := range blackjack.UpCards() {
			for _, o := range dealer.AllOutcomes {
				if got.Probability(up, o) != table.Probability(up, o) {
					t.Errorf("up=%d %s: got %v, want %v", up, o, got.Probability(up, o), table.Probability(up, o))
				}
			}
		}
	})

	t.Run("latest dealer table wins", func(t *testing.T) {
		s := open(t)
		if _, err := s.SaveDealerTable(ctx, table); err != nil {
			t.Fatal(err)
		}
		second := table
		second.Set(2, 17, 0.5)
		run, err := s.SaveDealerTable(ctx, second)
		if err != nil {
			t.Fatal(err)
		}

		got, loaded, err := s.LoadDealerTable(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if loaded.ID != run.ID || got.Probability(2, 17) != 0.5 {
			t.Errorf("expected the second table, got run %s with P=%v", loaded.ID, got.Probability(2, 17))
		}
	})

	t.Run("policy round trip", func(t *testing.T) {
		s := open(t)
		run, err := s.SavePolicy(ctx, policy)
		if err != nil {
			t.Fatalf("SavePolicy: %v", err)
		}
		if run.Horizon != policy.Horizon || run.Timestep != policy.Timestep {
			t.Errorf("run metadata %+v does not match policy", run)
		}

		got, _, err := s.LoadPolicy(ctx)
		if err != nil {
			t.Fatalf("LoadPolicy: %v", err)
		}
		if diff := cmp.Diff(policy, got); diff != "" {
			t.Errorf("policy mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("list runs", func(t *testing.T) {
		s := open(t)
		for i := 0; i < 2; i++ {
			if _, err := s.SaveDealerTable(ctx, table); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := s.SavePolicy(ctx, policy); err != nil {
			t.Fatal(err)
		}

		all, err := s.ListRuns(ctx, "", 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 runs, got %d", len(all))
		}
		for i := 1; i < len(all); i++ {
			if all[i].CreatedAt.After(all[i-1].CreatedAt) {
				t.Errorf("runs not newest first: %v", all)
			}
		}

		dealerRuns, err := s.ListRuns(ctx, store.KindDealer, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(dealerRuns) != 2 {
			t.Errorf("expected 2 dealer runs, got %d", len(dealerRuns))
		}

		limited, err := s.ListRuns(ctx, "", 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(limited) != 1 {
			t.Errorf("expected limit to apply, got %d runs", len(limited))
		}
	})
}
