// Package blackjack models the player's side of the simplified game: card
// values, the player state space and the deterministic transition rule.
package blackjack

import "fmt"

const (
	// Bust is the sentinel total of a hand over 21. It compares greater than
	// every live total.
	Bust = 22

	MinTotal  = 2
	MaxTotal  = 21
	MinUpCard = 2
	MaxUpCard = 11

	// DefaultHorizon is the number of timesteps of the induction. Beyond 21
	// cards no player hand can still be drawing.
	DefaultHorizon = 22
)

// NumStateSlots is the size of the dense state index space.
const NumStateSlots = (MaxTotal - MinTotal + 2) * 2 * (MaxUpCard - MinUpCard + 1) * 2

// State is the player's position: (total, usable ace, dealer up-card, still playing).
type State struct {
	Total     int
	UsableAce bool
	UpCard    int
	Playing   bool
}

// IsBust reports whether the hand went over 21.
func (s State) IsBust() bool { return s.Total == Bust }

// Valid checks the structural invariants of a state.
func (s State) Valid() bool {
	if s.UpCard < MinUpCard || s.UpCard > MaxUpCard {
		return false
	}
	if s.Total == Bust {
		return !s.Playing && !s.UsableAce
	}
	if s.Total < MinTotal || s.Total > MaxTotal {
		return false
	}
	return !s.UsableAce || s.Total >= 11
}

// Index maps a valid state onto [0, NumStateSlots).
func (s State) Index() int {
	i := s.Total - MinTotal
	i = i*2 + boolIndex(s.UsableAce)
	i = i*(MaxUpCard-MinUpCard+1) + (s.UpCard - MinUpCard)
	return i*2 + boolIndex(s.Playing)
}

// TotalLabel renders the total the way the policy grid does.
func (s State) TotalLabel() string {
	if s.IsBust() {
		return "BUST"
	}
	return fmt.Sprintf("%d", s.Total)
}

func (s State) String() string {
	ace, phase := "hard", "stopped"
	if s.UsableAce {
		ace = "soft"
	}
	if s.Playing {
		phase = "playing"
	}
	return fmt.Sprintf("(%s %s up=%s %s)", s.TotalLabel(), ace, Card(s.UpCard), phase)
}

// InitialState is the position after the player's first card and the
// dealer's up-card are dealt.
func InitialState(first, up Card) State {
	return State{
		Total:     int(first),
		UsableAce: first.IsAce(),
		UpCard:    int(up),
		Playing:   true,
	}
}

// UpCards lists the dealer up-cards in column order.
func UpCards() []int {
	out := make([]int, 0, MaxUpCard-MinUpCard+1)
	for c := MinUpCard; c <= MaxUpCard; c++ {
		out = append(out, c)
	}
	return out
}

func boolIndex(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Action is a player decision.
type Action uint8

const (
	Play Action = iota
	Stop
)

// Actions is the enumeration order used for tie-breaking.
var Actions = [...]Action{Play, Stop}

func (a Action) String() string {
	if a == Play {
		return "play"
	}
	return "stop"
}

// Short returns the grid letter: H(it) or S(tand).
func (a Action) Short() string {
	if a == Play {
		return "H"
	}
	return "S"
}

// ParseAction accepts play/stop, hit/stand or H/S.
func ParseAction(s string) (Action, error) {
	switch s {
	case "play", "hit", "H":
		return Play, nil
	case "stop", "stand", "S":
		return Stop, nil
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
