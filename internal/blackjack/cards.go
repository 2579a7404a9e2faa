package blackjack

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Card is the blackjack value of a drawn card: 2-10, or Ace (11).
// NoCard is passed to NextState when no card is drawn.
type Card int

const (
	NoCard Card = 0
	Ace    Card = 11
)

// IsAce reports whether the card is an ace.
func (c Card) IsAce() bool { return c == Ace }

// Valid reports whether c is a drawable card value.
func (c Card) Valid() bool { return c >= 2 && c <= Ace }

func (c Card) String() string {
	switch {
	case c == Ace:
		return "A"
	case c == NoCard:
		return "-"
	default:
		return strconv.Itoa(int(c))
	}
}

// ParseCard accepts a card value 2-11, a rank (J, Q, K) or "A".
func ParseCard(s string) (Card, error) {
	c := rankValue(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return NoCard, fmt.Errorf("invalid card %q", s)
	}
	return c, nil
}

// Ranks in order: 2-10, J, Q, K, A
var cardRanks = []string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}

// rankValue returns the blackjack value of a card rank.
// 2-10: face value, J/Q/K: 10, A: 11 (soft)
func rankValue(rank string) Card {
	switch rank {
	case "A":
		return Ace
	case "J", "Q", "K":
		return 10
	default:
		v, err := strconv.Atoi(rank)
		if err != nil {
			return NoCard
		}
		return Card(v)
	}
}

var (
	ErrEmptyDistribution = errors.New("card distribution is empty")
	ErrNotNormalized     = errors.New("card distribution does not sum to 1")
)

// Draw is one outcome of a card draw and its probability.
type Draw struct {
	Card Card
	P    float64
}

// Distribution is an immutable probability distribution over drawn card
// values. Draws are kept in ascending card order so every expectation over
// the distribution sums in the same order.
type Distribution struct {
	draws []Draw
}

// NewDistribution builds a distribution from per-card probabilities.
func NewDistribution(weights map[Card]float64) (Distribution, error) {
	if len(weights) == 0 {
		return Distribution{}, ErrEmptyDistribution
	}

	draws := make([]Draw, 0, len(weights))
	total := 0.0
	for c, p := range weights {
		if !c.Valid() {
			return Distribution{}, fmt.Errorf("invalid card value %d", int(c))
		}
		if p < 0 || math.IsNaN(p) {
			return Distribution{}, fmt.Errorf("invalid probability %v for card %s", p, c)
		}
		if p == 0 {
			continue
		}
		draws = append(draws, Draw{Card: c, P: p})
		total += p
	}
	if math.Abs(total-1) > 1e-9 {
		return Distribution{}, fmt.Errorf("%w: got %.12f", ErrNotNormalized, total)
	}

	sort.Slice(draws, func(i, j int) bool { return draws[i].Card < draws[j].Card })
	return Distribution{draws: draws}, nil
}

// InfiniteDeck returns the with-replacement distribution of a standard
// 52-card deck: 2-9 and ace at 1/13 each, ten-valued cards at 4/13.
func InfiniteDeck() Distribution {
	weights := make(map[Card]float64, 10)
	for _, rank := range cardRanks {
		weights[rankValue(rank)] += 1.0 / float64(len(cardRanks))
	}
	d, err := NewDistribution(weights)
	if err != nil {
		panic(err)
	}
	return d
}

// Draws returns a copy of the draws in ascending card order.
func (d Distribution) Draws() []Draw {
	out := make([]Draw, len(d.draws))
	copy(out, d.draws)
	return out
}

// Len returns the number of distinct card values.
func (d Distribution) Len() int { return len(d.draws) }

// P returns the probability of drawing c.
func (d Distribution) P(c Card) float64 {
	for _, dr := range d.draws {
		if dr.Card == c {
			return dr.P
		}
	}
	return 0
}

// CardAt maps a uniform float in [0,1) onto a card through the cumulative
// distribution.
func (d Distribution) CardAt(f float64) Card {
	if len(d.draws) == 0 {
		return NoCard
	}
	acc := 0.0
	for _, dr := range d.draws {
		acc += dr.P
		if f < acc {
			return dr.Card
		}
	}
	return d.draws[len(d.draws)-1].Card
}
