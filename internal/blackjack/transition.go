package blackjack

import "fmt"

// InvariantError is the panic payload raised when the transition rule meets
// a state the state space should never produce.
type InvariantError struct {
	State  State
	Card   Card
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation at %s drawing %s: %s", e.State, e.Card, e.Reason)
}

// NextState applies action a to s. card is the drawn card when a is Play and
// is ignored otherwise. The rule is the same at every timestep.
func NextState(s State, a Action, card Card) State {
	// stopped states are absorbing
	if !s.Playing {
		return s
	}
	if a == Stop {
		s.Playing = false
		return s
	}
	if !card.Valid() {
		panic(&InvariantError{State: s, Card: card, Reason: "play requires a drawn card"})
	}

	if card.IsAce() {
		switch {
		case s.Total <= 10:
			s.Total += 11
			s.UsableAce = true
		case s.Total < 21:
			s.Total++
		case s.UsableAce:
			// 21 with a soft ace: both aces count as one
			s.Total = s.Total - 10 + 1
			s.UsableAce = false
		default:
			return bust(s)
		}
		return s
	}

	w := int(card)
	switch {
	case s.Total+w <= 21:
		s.Total += w
	case s.UsableAce:
		// recast the ace to 1 instead of busting
		s.Total = s.Total - 10 + w
		s.UsableAce = false
	default:
		return bust(s)
	}
	return s
}

func bust(s State) State {
	if s.UsableAce {
		panic(&InvariantError{State: s, Reason: "bust with a usable ace still set"})
	}
	return State{Total: Bust, UpCard: s.UpCard}
}
