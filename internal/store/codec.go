package store

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/dealer"
	"github.com/MJE43/blackjack-policy/internal/solver"
)

// Probabilities and costs are stored as decimal strings: the shortest
// decimal that reads back as the same float64.

// DealerCell is one stored probability.
type DealerCell struct {
	UpCard      int             `json:"up_card"`
	Outcome     string          `json:"outcome"`
	Probability decimal.Decimal `json:"probability"`
}

// PolicyCell is one stored decision.
type PolicyCell struct {
	Total  int              `json:"total"`
	Soft   bool             `json:"soft"`
	UpCard int              `json:"up_card"`
	Action blackjack.Action `json:"action"`
	Cost   decimal.Decimal  `json:"cost"`
}

// EncodeDealer flattens a table in up-card then outcome order.
func EncodeDealer(t dealer.OutcomeTable) []DealerCell {
	cells := make([]DealerCell, 0, len(blackjack.UpCards())*len(dealer.AllOutcomes))
	for _, up := range blackjack.UpCards() {
		for _, o := range dealer.AllOutcomes {
			cells = append(cells, DealerCell{
				UpCard:      up,
				Outcome:     o.String(),
				Probability: decimal.NewFromFloat(t.Probability(up, o)),
			})
		}
	}
	return cells
}

// DecodeDealer rebuilds a table. Every up-card and outcome must appear once.
func DecodeDealer(cells []DealerCell) (dealer.OutcomeTable, error) {
	var t dealer.OutcomeTable
	want := len(blackjack.UpCards()) * len(dealer.AllOutcomes)
	type key struct {
		up      int
		outcome dealer.Outcome
	}
	seen := make(map[key]bool, want)

	for _, c := range cells {
		if c.UpCard < blackjack.MinUpCard || c.UpCard > blackjack.MaxUpCard {
			return t, fmt.Errorf("stored dealer cell has up-card %d", c.UpCard)
		}
		o, err := dealer.ParseOutcome(c.Outcome)
		if err != nil {
			return t, err
		}
		k := key{c.UpCard, o}
		if seen[k] {
			return t, fmt.Errorf("stored dealer cell %d/%s repeated", c.UpCard, c.Outcome)
		}
		seen[k] = true
		p, _ := c.Probability.Float64()
		t.Set(c.UpCard, o, p)
	}
	if len(seen) != want {
		return t, fmt.Errorf("stored dealer table has %d cells, want %d", len(seen), want)
	}
	return t, nil
}

// EncodePolicy flattens a policy, hard block first.
func EncodePolicy(p solver.Policy) []PolicyCell {
	var cells []PolicyCell
	for _, r := range p.Rows() {
		for _, c := range r.Cells {
			cells = append(cells, PolicyCell{
				Total:  r.Total,
				Soft:   r.Soft,
				UpCard: c.UpCard,
				Action: c.Action,
				Cost:   decimal.NewFromFloat(c.Cost),
			})
		}
	}
	return cells
}

// DecodePolicy groups stored cells back into rows.
func DecodePolicy(run Run, cells []PolicyCell) (solver.Policy, error) {
	p := solver.Policy{Timestep: run.Timestep, Horizon: run.Horizon}

	type key struct {
		total int
		soft  bool
	}
	rows := make(map[key]*solver.Row)
	var order []key
	for _, c := range cells {
		if c.UpCard < blackjack.MinUpCard || c.UpCard > blackjack.MaxUpCard {
			return p, fmt.Errorf("stored policy cell has up-card %d", c.UpCard)
		}
		k := key{c.Total, c.Soft}
		r, ok := rows[k]
		if !ok {
			r = &solver.Row{Label: solver.RowLabel(c.Total, c.Soft), Total: c.Total, Soft: c.Soft}
			rows[k] = r
			order = append(order, k)
		}
		cost, _ := c.Cost.Float64()
		r.Cells = append(r.Cells, solver.Cell{UpCard: c.UpCard, Action: c.Action, Cost: cost})
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].soft != order[j].soft {
			return !order[i].soft
		}
		return order[i].total < order[j].total
	})
	for _, k := range order {
		r := rows[k]
		sort.Slice(r.Cells, func(i, j int) bool { return r.Cells[i].UpCard < r.Cells[j].UpCard })
		if k.soft {
			p.Soft = append(p.Soft, *r)
		} else {
			p.Hard = append(p.Hard, *r)
		}
	}
	return p, nil
}
