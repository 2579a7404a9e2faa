package solver

import (
	"fmt"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
)

// LookupError reports a read of J[k] for a state the layer does not hold, or
// holds but has not resolved yet. The state space and the induction are out
// of step, so the solve cannot continue.
type LookupError struct {
	Timestep int
	State    blackjack.State
	Reason   string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("J[%d] lookup of %s: %s", e.Timestep, e.State, e.Reason)
}

// Entry is one resolved (timestep, state) cell of the value table.
type Entry struct {
	costs    [len(blackjack.Actions)]float64
	legal    [len(blackjack.Actions)]bool
	present  bool
	resolved bool

	Action blackjack.Action
	Cost   float64
}

// ActionCost returns the expected cost of a, if a was evaluated.
func (e Entry) ActionCost(a blackjack.Action) (float64, bool) {
	if int(a) >= len(e.costs) || !e.legal[a] {
		return 0, false
	}
	return e.costs[a], true
}

type layer struct {
	entries [blackjack.NumStateSlots]Entry
	states  []blackjack.State
}

// ValueTable is J: one layer per timestep 1..horizon, each a fixed array over
// the dense state index. Layers are seeded with the states they may hold
// before anything is written, and every entry is written at most once.
type ValueTable struct {
	horizon int
	layers  []*layer // index 0 unused
}

// NewValueTable seeds layers 1..horizon-1 from AllowedStates and the horizon
// layer from TerminalStates.
func NewValueTable(horizon int) *ValueTable {
	t := &ValueTable{horizon: horizon, layers: make([]*layer, horizon+1)}
	for k := 1; k <= horizon; k++ {
		states := blackjack.AllowedStates(k)
		if k == horizon {
			states = blackjack.TerminalStates()
		}
		l := &layer{states: states}
		for _, s := range states {
			l.entries[s.Index()].present = true
		}
		t.layers[k] = l
	}
	return t
}

// Horizon returns N.
func (t *ValueTable) Horizon() int { return t.horizon }

// States returns the states layer k holds, in enumeration order.
func (t *ValueTable) States(k int) []blackjack.State {
	if k < 1 || k > t.horizon {
		return nil
	}
	out := make([]blackjack.State, len(t.layers[k].states))
	copy(out, t.layers[k].states)
	return out
}

// Lookup returns the resolved entry for s at timestep k.
func (t *ValueTable) Lookup(k int, s blackjack.State) (Entry, error) {
	if k < 1 || k > t.horizon {
		return Entry{}, &LookupError{Timestep: k, State: s, Reason: fmt.Sprintf("timestep outside 1..%d", t.horizon)}
	}
	if !s.Valid() {
		return Entry{}, &LookupError{Timestep: k, State: s, Reason: "invalid state"}
	}
	e := t.layers[k].entries[s.Index()]
	switch {
	case !e.present:
		return Entry{}, &LookupError{Timestep: k, State: s, Reason: "state not reachable at this timestep"}
	case !e.resolved:
		return Entry{}, &LookupError{Timestep: k, State: s, Reason: "state not resolved"}
	}
	return e, nil
}

// Decide returns the optimal action at (k, s).
func (t *ValueTable) Decide(k int, s blackjack.State) (blackjack.Action, error) {
	e, err := t.Lookup(k, s)
	if err != nil {
		return 0, err
	}
	return e.Action, nil
}

// actionCost is the expected cost of one legal action.
type actionCost struct {
	Action blackjack.Action
	Cost   float64
}

// resolve writes the action costs for (k, s) and derives the optimal action.
// costs must follow enumeration order; the first minimal action wins.
func (t *ValueTable) resolve(k int, s blackjack.State, costs []actionCost) error {
	if k < 1 || k > t.horizon {
		return &LookupError{Timestep: k, State: s, Reason: "write outside the horizon"}
	}
	e := &t.layers[k].entries[s.Index()]
	if !e.present {
		return &LookupError{Timestep: k, State: s, Reason: "write to a state not reachable at this timestep"}
	}
	if e.resolved {
		return fmt.Errorf("J[%d] entry for %s already resolved", k, s)
	}
	if len(costs) == 0 {
		return fmt.Errorf("J[%d] entry for %s: no legal action", k, s)
	}

	for i, ac := range costs {
		e.costs[ac.Action] = ac.Cost
		e.legal[ac.Action] = true
		if i == 0 || ac.Cost < e.Cost {
			e.Action, e.Cost = ac.Action, ac.Cost
		}
	}
	e.resolved = true
	return nil
}

// InitialCost is the expected cost before any card is dealt: J[1] averaged
// over the player's first card and the dealer's up-card.
func (t *ValueTable) InitialCost(dist blackjack.Distribution) (float64, error) {
	total := 0.0
	for _, first := range dist.Draws() {
		for _, up := range dist.Draws() {
			e, err := t.Lookup(1, blackjack.InitialState(first.Card, up.Card))
			if err != nil {
				return 0, err
			}
			total += first.P * up.P * e.Cost
		}
	}
	return total, nil
}
