package engine

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
)

var testSeeds = Seeds{Server: "test_server_seed", Client: "test_client_seed"}

func TestFloats(t *testing.T) {
	tests := []struct {
		name   string
		nonce  uint64
		cursor uint64
		count  int
	}{
		{"single float", 1, 0, 1},
		{"multiple floats", 1, 0, 8},
		{"cursor boundary", 1, 31, 2},
		{"several rounds", 7, 0, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			floats := Floats(testSeeds, tt.nonce, tt.cursor, tt.count)
			if len(floats) != tt.count {
				t.Fatalf("Floats() returned %d floats, want %d", len(floats), tt.count)
			}
			for i, f := range floats {
				if f < 0 || f >= 1 {
					t.Errorf("float %d out of range [0, 1): %f", i, f)
				}
			}
		})
	}
}

func TestStreamMatchesHMACRounds(t *testing.T) {
	h := hmac.New(sha256.New, []byte(testSeeds.Server))
	fmt.Fprintf(h, "%s:%d:%d", testSeeds.Client, 3, 1)
	round1 := h.Sum(nil)

	s := NewStream(testSeeds, 3, 32)
	for i, want := range round1 {
		if got := s.Next(); got != want {
			t.Fatalf("byte %d: got %x, want %x", i, got, want)
		}
	}
}

func TestCursorContinuesStream(t *testing.T) {
	all := Floats(testSeeds, 9, 0, 10)
	tail := Floats(testSeeds, 9, 16, 6)
	for i := range tail {
		if tail[i] != all[i+4] {
			t.Fatalf("float %d from cursor 16 = %f, want %f", i, tail[i], all[i+4])
		}
	}
}

func TestStreamIsDeterministic(t *testing.T) {
	a := Floats(testSeeds, 42, 0, 16)
	b := Floats(testSeeds, 42, 0, 16)
	c := Floats(testSeeds, 43, 0, 16)

	same := true
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("float %d differs between runs", i)
		}
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Error("different nonces produced the same stream")
	}
}

func TestNextCardFollowsDistribution(t *testing.T) {
	dist := blackjack.InfiniteDeck()
	counts := make(map[blackjack.Card]int)
	const n = 26000

	s := NewStream(testSeeds, 1, 0)
	for i := 0; i < n; i++ {
		c := s.NextCard(dist)
		if !c.Valid() {
			t.Fatalf("drew invalid card %d", c)
		}
		counts[c]++
	}

	tens := float64(counts[10]) / n
	if tens < 0.29 || tens > 0.325 {
		t.Errorf("ten-valued share %f, want about 4/13", tens)
	}
	aces := float64(counts[blackjack.Ace]) / n
	if aces < 0.065 || aces > 0.089 {
		t.Errorf("ace share %f, want about 1/13", aces)
	}
}

func TestSeedsValidate(t *testing.T) {
	if err := (Seeds{}).Validate(); err != ErrEmptySeed {
		t.Errorf("expected ErrEmptySeed, got %v", err)
	}
	if err := testSeeds.Validate(); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
