package solver

import (
	"fmt"
	"sort"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
)

// DefaultPolicyTimestep is the timestep the lookup grid is read at: two
// cards dealt to the player.
const DefaultPolicyTimestep = 2

// Cell is the decision for one (total, up-card) pair.
type Cell struct {
	UpCard int              `json:"up_card"`
	Action blackjack.Action `json:"action"`
	Cost   float64          `json:"cost"`
}

// Row is one player total across every up-card.
type Row struct {
	Label string `json:"label"`
	Total int    `json:"total"`
	Soft  bool   `json:"soft"`
	Cells []Cell `json:"cells"`
}

// Policy is the hit/stand lookup grid: hard totals and usable-ace totals in
// separate blocks, rows by total, columns by up-card.
type Policy struct {
	Timestep int   `json:"timestep"`
	Horizon  int   `json:"horizon"`
	Hard     []Row `json:"hard"`
	Soft     []Row `json:"soft"`
}

// RowLabel renders a row header: the total for hard hands, A-<total> for
// hands holding a usable ace.
func RowLabel(total int, soft bool) string {
	if soft {
		return fmt.Sprintf("A-%d", total)
	}
	return fmt.Sprintf("%d", total)
}

type rowKey struct {
	total int
	soft  bool
}

// ExtractPolicy reads the optimal action of every playing state at timestep k.
func ExtractPolicy(J *ValueTable, k int) (Policy, error) {
	if k < 1 || k >= J.Horizon() {
		return Policy{}, fmt.Errorf("policy timestep %d outside 1..%d", k, J.Horizon()-1)
	}

	rows := make(map[rowKey]*Row)
	for _, s := range J.States(k) {
		if !s.Playing {
			continue
		}
		e, err := J.Lookup(k, s)
		if err != nil {
			return Policy{}, err
		}
		key := rowKey{s.Total, s.UsableAce}
		r, ok := rows[key]
		if !ok {
			r = &Row{Label: RowLabel(s.Total, s.UsableAce), Total: s.Total, Soft: s.UsableAce}
			rows[key] = r
		}
		r.Cells = append(r.Cells, Cell{UpCard: s.UpCard, Action: e.Action, Cost: e.Cost})
	}

	p := Policy{Timestep: k, Horizon: J.Horizon()}
	for _, r := range rows {
		sort.Slice(r.Cells, func(i, j int) bool { return r.Cells[i].UpCard < r.Cells[j].UpCard })
		if r.Soft {
			p.Soft = append(p.Soft, *r)
		} else {
			p.Hard = append(p.Hard, *r)
		}
	}
	sortRows(p.Hard)
	sortRows(p.Soft)
	return p, nil
}

func sortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Total < rows[j].Total })
}

// Lookup finds the cell for a hand. ok is false when the grid has no row
// for the total or no column for the up-card.
func (p Policy) Lookup(total int, soft bool, upCard int) (Cell, bool) {
	rows := p.Hard
	if soft {
		rows = p.Soft
	}
	for _, r := range rows {
		if r.Total != total {
			continue
		}
		for _, c := range r.Cells {
			if c.UpCard == upCard {
				return c, true
			}
		}
	}
	return Cell{}, false
}

// Rows returns the hard block followed by the soft block.
func (p Policy) Rows() []Row {
	out := make([]Row, 0, len(p.Hard)+len(p.Soft))
	out = append(out, p.Hard...)
	return append(out, p.Soft...)
}
