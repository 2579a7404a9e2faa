// Package dealer derives the probability of each final dealer total from
// the dealer's up-card. The dealer draws until reaching 17 or busting.
package dealer

import (
	"fmt"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
)

// StandOn is the total the dealer stops drawing at.
const StandOn = 17

// Node is a dealer hand position. Terminal nodes carry the final outcome and
// no sum.
type Node struct {
	Sum   int
	Soft  bool
	Final Outcome
}

// Terminal reports whether the dealer has stopped drawing.
func (n Node) Terminal() bool { return n.Final != 0 }

func (n Node) String() string {
	if n.Terminal() {
		return n.Final.String()
	}
	if n.Soft {
		return fmt.Sprintf("(%d soft)", n.Sum)
	}
	return fmt.Sprintf("(%d hard)", n.Sum)
}

// Root returns the starting node for an up-card: hard 2-10, or soft 11 for an ace.
func Root(upCard int) Node {
	return Node{Sum: upCard, Soft: upCard == int(blackjack.Ace)}
}

func terminal(o Outcome) Node { return Node{Final: o} }

// Step applies one dealer draw to a non-terminal node.
//
// Only an ace already held at 11 can be reduced to stay in play. An ace drawn
// onto a hard total over 21 counts 1 only when that lands on 17-21; below
// 17 the hand busts.
func Step(n Node, c blackjack.Card) Node {
	next := n.Sum + int(c)
	aceDrawn := c.IsAce()

	switch {
	case next > 21 && (n.Soft || aceDrawn):
		reduced := next - 10
		if reduced >= StandOn {
			return terminal(Outcome(reduced))
		}
		if !n.Soft {
			return terminal(OutcomeBust)
		}
		// only a second ace keeps one ace at 11
		return Node{Sum: reduced, Soft: aceDrawn}
	case next > 21:
		return terminal(OutcomeBust)
	case next >= StandOn:
		return terminal(Outcome(next))
	default:
		return Node{Sum: next, Soft: n.Soft || aceDrawn}
	}
}

// Edge is a probability-weighted transition.
type Edge struct {
	To Node
	P  float64
}

// Graph is the dealer's draw graph. Nodes are shared between every path that
// reaches them, so each (sum, soft) position is expanded once.
type Graph struct {
	roots []Node
	edges map[Node][]Edge
	nodes []Node // discovery order
}

// BuildGraph expands every up-card root under the card distribution.
func BuildGraph(dist blackjack.Distribution) *Graph {
	g := &Graph{edges: make(map[Node][]Edge)}
	for _, up := range blackjack.UpCards() {
		root := Root(up)
		g.roots = append(g.roots, root)
		g.expand(root, dist)
	}
	return g
}

func (g *Graph) expand(n Node, dist blackjack.Distribution) {
	if n.Terminal() {
		g.visit(n)
		return
	}
	if _, done := g.edges[n]; done {
		return
	}
	g.visit(n)

	var out []Edge
	pos := make(map[Node]int)
	for _, dr := range dist.Draws() {
		to := Step(n, dr.Card)
		if i, ok := pos[to]; ok {
			out[i].P += dr.P
			continue
		}
		pos[to] = len(out)
		out = append(out, Edge{To: to, P: dr.P})
	}
	g.edges[n] = out

	for _, e := range out {
		g.expand(e.To, dist)
	}
}

func (g *Graph) visit(n Node) {
	if n.Terminal() {
		for _, seen := range g.nodes {
			if seen == n {
				return
			}
		}
	}
	g.nodes = append(g.nodes, n)
}

// Roots returns the up-card roots in column order (2..10, ace).
func (g *Graph) Roots() []Node {
	out := make([]Node, len(g.roots))
	copy(out, g.roots)
	return out
}

// Edges returns the outgoing edges of n; terminal nodes have none.
func (g *Graph) Edges(n Node) []Edge { return g.edges[n] }

// NumNodes counts distinct nodes, terminal ones included.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges counts weighted edges.
func (g *Graph) NumEdges() int {
	total := 0
	for _, es := range g.edges {
		total += len(es)
	}
	return total
}

// TopologicalOrder returns the non-terminal nodes so that every edge goes
// from an earlier node to a later one. Each position is entered either by
// a higher sum or by giving up a soft ace, and a hard hand above 11 can never
// become soft again, so the graph has no cycles.
func (g *Graph) TopologicalOrder() []Node {
	visited := make(map[Node]bool, len(g.edges))
	post := make([]Node, 0, len(g.edges))

	var walk func(Node)
	walk = func(n Node) {
		if n.Terminal() || visited[n] {
			return
		}
		visited[n] = true
		for _, e := range g.edges[n] {
			walk(e.To)
		}
		post = append(post, n)
	}
	for _, r := range g.roots {
		walk(r)
	}

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}
