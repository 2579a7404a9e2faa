package solver

import (
	"errors"
	"testing"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
)

func TestExtractPolicyShape(t *testing.T) {
	p, err := ExtractPolicy(solve(t, 2), DefaultPolicyTimestep)
	if err != nil {
		t.Fatalf("ExtractPolicy: %v", err)
	}

	// two cards: hard 4..20, soft 12..21
	if len(p.Hard) != 17 {
		t.Errorf("expected 17 hard rows, got %d", len(p.Hard))
	}
	if len(p.Soft) != 10 {
		t.Errorf("expected 10 soft rows, got %d", len(p.Soft))
	}
	if p.Hard[0].Label != "4" || p.Hard[len(p.Hard)-1].Label != "20" {
		t.Errorf("unexpected hard labels %s..%s", p.Hard[0].Label, p.Hard[len(p.Hard)-1].Label)
	}
	if p.Soft[0].Label != "A-12" || p.Soft[len(p.Soft)-1].Label != "A-21" {
		t.Errorf("unexpected soft labels %s..%s", p.Soft[0].Label, p.Soft[len(p.Soft)-1].Label)
	}

	for _, r := range p.Rows() {
		if len(r.Cells) != 10 {
			t.Fatalf("row %s has %d cells", r.Label, len(r.Cells))
		}
		for i, c := range r.Cells {
			if c.UpCard != blackjack.MinUpCard+i {
				t.Fatalf("row %s column %d holds up-card %d", r.Label, i, c.UpCard)
			}
		}
	}
}

func TestPolicyLookup(t *testing.T) {
	p, err := ExtractPolicy(solve(t, 2), DefaultPolicyTimestep)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		total int
		soft  bool
		up    int
		want  blackjack.Action
		ok    bool
	}{
		{12, false, 10, blackjack.Play, true},
		{20, false, 6, blackjack.Stop, true},
		{21, true, 11, blackjack.Stop, true},
		{21, false, 10, 0, false},
		{2, false, 10, 0, false},
		{12, false, 1, 0, false},
	}
	for _, tt := range tests {
		c, ok := p.Lookup(tt.total, tt.soft, tt.up)
		if ok != tt.ok {
			t.Errorf("Lookup(%d, %v, %d) ok = %v, want %v", tt.total, tt.soft, tt.up, ok, tt.ok)
			continue
		}
		if ok && c.Action != tt.want {
			t.Errorf("Lookup(%d, %v, %d) = %s, want %s", tt.total, tt.soft, tt.up, c.Action, tt.want)
		}
	}
}

func TestExtractPolicyTimestepRange(t *testing.T) {
	J := solve(t, 2)
	for _, k := range []int{0, J.Horizon()} {
		if _, err := ExtractPolicy(J, k); err == nil {
			t.Errorf("ExtractPolicy(J, %d) expected error", k)
		}
	}
}

func TestResolveIsWriteOnce(t *testing.T) {
	J := NewValueTable(blackjack.DefaultHorizon)
	s := blackjack.State{Total: 15, UpCard: 7, Playing: true}

	if _, err := J.Lookup(5, s); err == nil {
		t.Fatal("expected lookup of an unresolved entry to fail")
	}

	// equal costs: the first action in enumeration order wins
	costs := []actionCost{{blackjack.Play, -0.4}, {blackjack.Stop, -0.4}}
	if err := J.resolve(5, s, costs); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	e, err := J.Lookup(5, s)
	if err != nil {
		t.Fatal(err)
	}
	if e.Action != blackjack.Play || e.Cost != -0.4 {
		t.Errorf("got %s %f, want play -0.4", e.Action, e.Cost)
	}

	if err := J.resolve(5, s, []actionCost{{blackjack.Stop, -0.9}}); err == nil {
		t.Error("expected second write to fail")
	}
	if e, _ := J.Lookup(5, s); e.Cost != -0.4 {
		t.Errorf("entry revised to %f", e.Cost)
	}
}

func TestLookupUnreachableState(t *testing.T) {
	J := NewValueTable(blackjack.DefaultHorizon)

	// a soft 12 needs at least two cards
	_, err := J.Lookup(1, blackjack.State{Total: 12, UsableAce: true, UpCard: 5, Playing: true})
	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected *LookupError, got %v", err)
	}
	if _, err := J.Lookup(J.Horizon()+1, blackjack.State{Total: 12, UpCard: 5}); err == nil {
		t.Error("expected lookup beyond the horizon to fail")
	}
}
