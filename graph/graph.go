/*
	The graph package is a small directed graph over commit ids.

	A Graph has one canonical edge orientation, chosen by whoever builds it;
	for commit history that's "is-parent-of" (parent -> child).  The other
	orientation is available only as an explicit Transpose view, so no caller
	ever has to guess which way an adjacency list points.

	Node and edge iteration order is insertion order, which keeps every
	derived result (topological orders, closures, reductions) deterministic.
*/
package graph

import (
	"github.com/emirpasic/gods/sets/linkedhashset"
	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs"
)

type Node = plumbing.Hash

type Edge struct {
	From Node
	To   Node
}

/*
	Graph is a mutable directed graph while being built;
	treat it as immutable once handed out.
*/
type Graph struct {
	nodes *linkedhashset.Set
	succ  map[Node]*linkedhashset.Set
	pred  map[Node]*linkedhashset.Set
}

func New() *Graph {
	return &Graph{
		nodes: linkedhashset.New(),
		succ:  map[Node]*linkedhashset.Set{},
		pred:  map[Node]*linkedhashset.Set{},
	}
}

func (g *Graph) AddNode(n Node) {
	if g.nodes.Contains(n) {
		return
	}
	g.nodes.Add(n)
	g.succ[n] = linkedhashset.New()
	g.pred[n] = linkedhashset.New()
}

/*
	Add an edge, adding either endpoint as a node if it's new.
*/
func (g *Graph) PutEdge(from, to Node) {
	g.AddNode(from)
	g.AddNode(to)
	g.succ[from].Add(to)
	g.pred[to].Add(from)
}

func (g *Graph) HasNode(n Node) bool {
	return g.nodes.Contains(n)
}

func (g *Graph) HasEdge(from, to Node) bool {
	s, ok := g.succ[from]
	return ok && s.Contains(to)
}

func (g *Graph) Len() int {
	return g.nodes.Size()
}

func (g *Graph) Nodes() []Node {
	return toNodes(g.nodes.Values())
}

func (g *Graph) Successors(n Node) []Node {
	s, ok := g.succ[n]
	if !ok {
		return nil
	}
	return toNodes(s.Values())
}

func (g *Graph) Predecessors(n Node) []Node {
	s, ok := g.pred[n]
	if !ok {
		return nil
	}
	return toNodes(s.Values())
}

func (g *Graph) Edges() []Edge {
	var edges []Edge
	for _, from := range g.Nodes() {
		for _, to := range g.Successors(from) {
			edges = append(edges, Edge{from, to})
		}
	}
	return edges
}

/*
	A view of the same graph with every edge reversed.
	Shares storage with the receiver; transposing twice gives back
	a graph equivalent to the original.
*/
func (g *Graph) Transpose() *Graph {
	return &Graph{
		nodes: g.nodes,
		succ:  g.pred,
		pred:  g.succ,
	}
}

/*
	Kahn's algorithm.  Sources come first; ties go to insertion order.

	Returns an error of category `gitfs.ErrIntegrity` if the graph has a cycle.
*/
func (g *Graph) TopologicalOrder() ([]Node, error) {
	inDegree := make(map[Node]int, g.Len())
	var queue []Node
	for _, n := range g.Nodes() {
		inDegree[n] = g.pred[n].Size()
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	order := make([]Node, 0, g.Len())
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, m := range g.Successors(n) {
			inDegree[m]--
			if inDegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}
	if len(order) != g.Len() {
		var stuck []string
		for _, n := range g.Nodes() {
			if inDegree[n] > 0 {
				stuck = append(stuck, n.String())
			}
		}
		return nil, ErrorDetailed(gitfs.ErrIntegrity, "commit graph has a cycle", map[string]string{
			"nodesOnOrBehindCycle": joinShort(stuck),
		})
	}
	return order, nil
}

/*
	Every node reachable from n by one or more edges, breadth-first.  Excludes n itself
	unless it lies on a cycle.
*/
func (g *Graph) Reachable(n Node) *linkedhashset.Set {
	seen := linkedhashset.New()
	queue := g.Successors(n)
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		if seen.Contains(m) {
			continue
		}
		seen.Add(m)
		queue = append(queue, g.Successors(m)...)
	}
	return seen
}

/*
	A new graph with an edge a->b wherever b is reachable from a.
*/
func (g *Graph) TransitiveClosure() *Graph {
	closed := New()
	for _, n := range g.Nodes() {
		closed.AddNode(n)
	}
	for _, n := range g.Nodes() {
		for _, v := range g.Reachable(n).Values() {
			closed.PutEdge(n, v.(Node))
		}
	}
	return closed
}

/*
	The subgraph on the nodes for which keep returns true,
	with exactly the edges of the receiver between those nodes.
*/
func (g *Graph) Induced(keep func(Node) bool) *Graph {
	sub := New()
	for _, n := range g.Nodes() {
		if keep(n) {
			sub.AddNode(n)
		}
	}
	for _, n := range sub.Nodes() {
		for _, m := range g.Successors(n) {
			if sub.HasNode(m) {
				sub.PutEdge(n, m)
			}
		}
	}
	return sub
}

/*
	The minimal graph with the same reachability as the receiver.

	Only defined for acyclic graphs; returns an error of category
	`gitfs.ErrIntegrity` otherwise.
*/
func (g *Graph) TransitiveReduction() (*Graph, error) {
	if _, err := g.TopologicalOrder(); err != nil {
		return nil, err
	}
	closed := g.TransitiveClosure()
	reduced := New()
	for _, n := range g.Nodes() {
		reduced.AddNode(n)
	}
	for _, u := range closed.Nodes() {
		direct := closed.Successors(u)
		for _, v := range direct {
			redundant := false
			for _, w := range direct {
				if w != v && closed.HasEdge(w, v) {
					redundant = true
					break
				}
			}
			if !redundant {
				reduced.PutEdge(u, v)
			}
		}
	}
	return reduced, nil
}

func toNodes(values []interface{}) []Node {
	result := make([]Node, len(values))
	for i, v := range values {
		result[i] = v.(Node)
	}
	return result
}

func joinShort(ids []string) string {
	const limit = 8
	s := ""
	for i, id := range ids {
		if i == limit {
			return s + ", ..."
		}
		if i > 0 {
			s += ", "
		}
		s += id
	}
	return s
}
