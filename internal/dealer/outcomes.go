package dealer

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
)

// Propagate reduces the graph to an outcome table with one forward sweep per
// root: arrival probability flows along edges in topological order and
// collects on terminal nodes.
func Propagate(g *Graph) OutcomeTable {
	order := g.TopologicalOrder()

	var t OutcomeTable
	for _, root := range g.Roots() {
		arrival := map[Node]float64{root: 1}
		final := make(map[Outcome]float64, len(AllOutcomes))

		for _, n := range order {
			p, ok := arrival[n]
			if !ok {
				continue
			}
			for _, e := range g.Edges(n) {
				if e.To.Terminal() {
					final[e.To.Final] += p * e.P
				} else {
					arrival[e.To] += p * e.P
				}
			}
		}

		for _, o := range AllOutcomes {
			t.Set(root.Sum, o, final[o])
		}
	}
	return t
}

// EnumeratePaths reduces the graph by summing, for every root and terminal
// outcome, the product of edge weights along every path between them. It is
// exponential in path count and kept as a cross-check for Propagate.
func EnumeratePaths(g *Graph) OutcomeTable {
	var t OutcomeTable
	for _, root := range g.Roots() {
		final := make(map[Outcome]float64, len(AllOutcomes))

		var walk func(n Node, p float64)
		walk = func(n Node, p float64) {
			if n.Terminal() {
				final[n.Final] += p
				return
			}
			for _, e := range g.Edges(n) {
				walk(e.To, p*e.P)
			}
		}
		walk(root, 1)

		for _, o := range AllOutcomes {
			t.Set(root.Sum, o, final[o])
		}
	}
	return t
}

// Model builds and reduces the dealer graph for a card distribution.
type Model struct {
	dist blackjack.Distribution
	log  zerolog.Logger
}

// NewModel creates a dealer outcome model.
func NewModel(dist blackjack.Distribution, log zerolog.Logger) *Model {
	return &Model{dist: dist, log: log.With().Str("component", "dealer").Logger()}
}

// Compute builds the graph, reduces it and validates the result.
func (m *Model) Compute(tol float64) (OutcomeTable, error) {
	start := time.Now()

	g := BuildGraph(m.dist)
	m.log.Info().
		Str("op", "dealer_operation").
		Int("roots", len(g.Roots())).
		Int("nodes", g.NumNodes()).
		Int("edges", g.NumEdges()).
		Msg("dealer graph built")

	t := Propagate(g)
	if err := t.Validate(tol); err != nil {
		m.log.Error().Err(err).Str("op", "dealer_operation").Msg("degenerate dealer outcome table")
		return t, err
	}

	m.log.Info().
		Str("op", "dealer_operation").
		Dur("duration", time.Since(start)).
		Msg("dealer outcome table computed")
	return t, nil
}
