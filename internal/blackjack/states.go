package blackjack

// AllStates enumerates every state: totals 2..21 then Bust, and for each
// total every up-card, ace usability (only from 11 up) and playing flag.
func AllStates() []State {
	states := make([]State, 0, NumStateSlots)
	for total := MinTotal; total <= Bust; total++ {
		for up := MinUpCard; up <= MaxUpCard; up++ {
			aces := []bool{false}
			if total != Bust && total >= 11 {
				aces = []bool{true, false}
			}
			playing := []bool{true, false}
			if total == Bust {
				playing = []bool{false}
			}
			for _, a := range aces {
				for _, h := range playing {
					states = append(states, State{Total: total, UsableAce: a, UpCard: up, Playing: h})
				}
			}
		}
	}
	return states
}

// TerminalStates returns the states the horizon layer is priced on: every
// state where the player has stopped.
func TerminalStates() []State {
	return filter(AllStates(), func(s State) bool { return !s.Playing })
}

// AllowedStates returns the states reachable after exactly k cards were dealt
// to the player, or nil for k < 1. Most of the pruning comes from the dual
// value of the ace.
func AllowedStates(k int) []State {
	switch {
	case k < 1:
		return nil

	case k == 1:
		return firstCardStates(true)

	case k == 2:
		open := filter(AllStates(), func(s State) bool {
			if !s.Playing || s.IsBust() {
				return false
			}
			// 21 after two cards needs an ace
			if s.Total == 21 && !s.UsableAce {
				return false
			}
			return s.Total >= 4 && !softTooLow(s, k)
		})
		return append(open, firstCardStates(false)...)

	case k <= 6:
		return filter(AllStates(), func(s State) bool {
			return !(s.Playing && s.Total < 2*k) && !(s.Playing && softTooLow(s, k))
		})

	case k <= 11:
		return filter(AllStates(), func(s State) bool {
			return !(s.Playing && s.Total < 12) && !(s.Playing && softTooLow(s, k))
		})

	default:
		// at least 11 cards: an ace can no longer count as 11
		return filter(AllStates(), func(s State) bool {
			return !(s.Playing && (s.Total < k || s.UsableAce))
		})
	}
}

// firstCardStates lists totals 2..10 hard and 11 soft for every up-card.
func firstCardStates(playing bool) []State {
	states := make([]State, 0, 10*(MaxUpCard-MinUpCard+1))
	for up := MinUpCard; up <= MaxUpCard; up++ {
		for total := MinTotal; total <= 10; total++ {
			states = append(states, State{Total: total, UpCard: up, Playing: playing})
		}
		states = append(states, State{Total: 11, UsableAce: true, UpCard: up, Playing: playing})
	}
	return states
}

func softTooLow(s State, k int) bool {
	return s.UsableAce && s.Total < 11+k-1
}

func filter(states []State, keep func(State) bool) []State {
	out := states[:0]
	for _, s := range states {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}
