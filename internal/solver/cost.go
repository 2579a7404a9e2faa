package solver

import (
	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/dealer"
)

// TerminalCost prices a state at the horizon: 0 for a bust hand, otherwise
// minus the probability the dealer does not finish strictly above the
// player's total.
func TerminalCost(s blackjack.State, t dealer.OutcomeTable) float64 {
	if s.IsBust() {
		return 0
	}
	return -t.WinProbability(s.UpCard, s.Total)
}

// ExpectedActionCost is the expected cost of taking a at (k, s), read from
// the resolved layer J[k+1].
func ExpectedActionCost(k int, s blackjack.State, a blackjack.Action, J *ValueTable, dist blackjack.Distribution) (float64, error) {
	if a == blackjack.Stop {
		e, err := J.Lookup(k+1, blackjack.NextState(s, blackjack.Stop, blackjack.NoCard))
		if err != nil {
			return 0, err
		}
		return e.Cost, nil
	}

	cost := 0.0
	for _, dr := range dist.Draws() {
		e, err := J.Lookup(k+1, blackjack.NextState(s, blackjack.Play, dr.Card))
		if err != nil {
			return 0, err
		}
		cost += dr.P * e.Cost
	}
	return cost, nil
}

// legalActions returns both actions for a hand still playing and only Stop
// once the player has stopped.
func legalActions(s blackjack.State) []blackjack.Action {
	if !s.Playing {
		return []blackjack.Action{blackjack.Stop}
	}
	return blackjack.Actions[:]
}

// ExpectedStateCost prices every legal action at (k, s) and resolves
// J[k][s] to the cheapest one.
func ExpectedStateCost(k int, s blackjack.State, J *ValueTable, dist blackjack.Distribution) error {
	actions := legalActions(s)
	costs := make([]actionCost, 0, len(actions))
	for _, a := range actions {
		c, err := ExpectedActionCost(k, s, a, J, dist)
		if err != nil {
			return err
		}
		costs = append(costs, actionCost{Action: a, Cost: c})
	}
	return J.resolve(k, s, costs)
}
