package simulate

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/dealer"
	"github.com/MJE43/blackjack-policy/internal/engine"
	"github.com/MJE43/blackjack-policy/internal/solver"
)

var testSeeds = engine.Seeds{Server: "sim_server_seed", Client: "sim_client_seed"}

func solved(t *testing.T) *solver.ValueTable {
	t.Helper()
	table, err := dealer.NewModel(blackjack.InfiniteDeck(), zerolog.Nop()).Compute(1e-9)
	if err != nil {
		t.Fatal(err)
	}
	J, err := solver.New(zerolog.Nop()).Solve(context.Background(), table)
	if err != nil {
		t.Fatal(err)
	}
	return J
}

func TestPlayHandIsReproducible(t *testing.T) {
	J := solved(t)
	dist := blackjack.InfiniteDeck()

	for nonce := uint64(0); nonce < 50; nonce++ {
		a, err := PlayHand(testSeeds, nonce, dist, J)
		if err != nil {
			t.Fatalf("nonce %d: %v", nonce, err)
		}
		b, _ := PlayHand(testSeeds, nonce, dist, J)
		if a != b {
			t.Fatalf("nonce %d replayed differently: %+v vs %+v", nonce, a, b)
		}
		if a.Player.Playing {
			t.Errorf("nonce %d: hand finished while still playing", nonce)
		}
		if a.Player.IsBust() && a.NotBeaten {
			t.Errorf("nonce %d: a bust hand counted as not beaten", nonce)
		}
		if a.Cards < 1 {
			t.Errorf("nonce %d: %d cards", nonce, a.Cards)
		}
	}
}

func TestRunMatchesExactExpectation(t *testing.T) {
	J := solved(t)
	sim := New(zerolog.Nop())

	sum, err := sim.Run(context.Background(), Request{Seeds: testSeeds, NonceStart: 1, NonceEnd: 20000}, J)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Hands != 20000 {
		t.Fatalf("played %d hands, want 20000", sum.Hands)
	}
	if math.Abs(sum.Rate-sum.Expected) > 0.02 {
		t.Errorf("empirical rate %.4f too far from exact %.4f", sum.Rate, sum.Expected)
	}
	if sum.NotBeaten+sum.PlayerBusts > sum.Hands {
		t.Errorf("inconsistent counts: %+v", sum)
	}
}

func TestRunIsIndependentOfWorkers(t *testing.T) {
	J := solved(t)
	req := Request{Seeds: testSeeds, NonceStart: 100, NonceEnd: 2099}

	var results []*Summary
	for _, workers := range []int{1, 3, 8} {
		sim := New(zerolog.Nop())
		sim.Workers = workers
		sim.BatchSize = 97
		sum, err := sim.Run(context.Background(), req, J)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		results = append(results, sum)
	}
	for _, r := range results[1:] {
		if *r != *results[0] {
			t.Errorf("summaries differ: %+v vs %+v", *r, *results[0])
		}
	}
}

func TestRunRejectsBadRequests(t *testing.T) {
	J := solved(t)
	sim := New(zerolog.Nop())

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"inverted range", Request{Seeds: testSeeds, NonceStart: 10, NonceEnd: 9}, ErrInvalidRange},
		{"missing seed", Request{NonceStart: 0, NonceEnd: 9}, engine.ErrEmptySeed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := sim.Run(context.Background(), tt.req, J); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRunCancelled(t *testing.T) {
	J := solved(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := New(zerolog.Nop()).Run(ctx, Request{Seeds: testSeeds, NonceStart: 0, NonceEnd: 1 << 20}, J)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sum.Hands == 1<<20+1 {
		t.Error("cancelled run played every hand")
	}
}
