package dealer

import (
	"fmt"
	"math"
	"strconv"

	"go.uber.org/multierr"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
)

// Outcome is a final dealer total, 17..21, or OutcomeBust.
type Outcome int

const OutcomeBust Outcome = blackjack.Bust

// AllOutcomes lists the terminal outcomes in column order.
var AllOutcomes = []Outcome{17, 18, 19, 20, 21, OutcomeBust}

func (o Outcome) String() string {
	if o == OutcomeBust {
		return "bust"
	}
	return strconv.Itoa(int(o))
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	if s == "bust" {
		return OutcomeBust, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < StandOn || v > 21 {
		return 0, fmt.Errorf("invalid dealer outcome %q", s)
	}
	return Outcome(v), nil
}

func outcomeIndex(o Outcome) int {
	if o == OutcomeBust {
		return len(AllOutcomes) - 1
	}
	return int(o) - StandOn
}

const numUpCards = blackjack.MaxUpCard - blackjack.MinUpCard + 1

// OutcomeTable maps (up-card, outcome) to the probability of the dealer
// finishing there.
type OutcomeTable struct {
	p [numUpCards][6]float64
}

// Set records a probability. It is used while reducing a graph and when
// loading a stored table.
func (t *OutcomeTable) Set(upCard int, o Outcome, p float64) {
	t.p[upCard-blackjack.MinUpCard][outcomeIndex(o)] = p
}

// Probability returns P(dealer finishes on o | up-card).
func (t OutcomeTable) Probability(upCard int, o Outcome) float64 {
	return t.p[upCard-blackjack.MinUpCard][outcomeIndex(o)]
}

// RowSum adds the probabilities of every outcome for one up-card.
func (t OutcomeTable) RowSum(upCard int) float64 {
	sum := 0.0
	for _, p := range t.p[upCard-blackjack.MinUpCard] {
		sum += p
	}
	return sum
}

// WinProbability is the chance the player is not beaten when standing on
// total: 1 - P(dealer finishes 17..21 strictly above total).
func (t OutcomeTable) WinProbability(upCard, total int) float64 {
	beaten := 0.0
	for _, o := range AllOutcomes[:len(AllOutcomes)-1] {
		if int(o) > total {
			beaten += t.Probability(upCard, o)
		}
	}
	return 1 - beaten
}

// DegenerateRowError reports an up-card row that is not a probability
// distribution.
type DegenerateRowError struct {
	UpCard int
	Sum    float64
	Reason string
}

func (e *DegenerateRowError) Error() string {
	return fmt.Sprintf("dealer outcome row for up-card %s: %s (sum=%.12f)",
		blackjack.Card(e.UpCard), e.Reason, e.Sum)
}

// Validate checks every row: probabilities in [0,1] summing to 1 within tol.
// All failing rows are reported together.
func (t OutcomeTable) Validate(tol float64) error {
	var err error
	for _, up := range blackjack.UpCards() {
		sum := t.RowSum(up)
		for _, o := range AllOutcomes {
			p := t.Probability(up, o)
			if p < -tol || p > 1+tol || math.IsNaN(p) {
				err = multierr.Append(err, &DegenerateRowError{
					UpCard: up,
					Sum:    sum,
					Reason: fmt.Sprintf("P(%s)=%v outside [0,1]", o, p),
				})
			}
		}
		if math.Abs(sum-1) > tol || math.IsNaN(sum) {
			err = multierr.Append(err, &DegenerateRowError{UpCard: up, Sum: sum, Reason: "probabilities do not sum to 1"})
		}
	}
	return err
}
