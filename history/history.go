/*
	The history package builds the commit ancestry graph of a whole
	repository, pins one primary timestamp on every commit, and reconciles
	a second, partially-known timestamp source against that graph.
*/
package history

import (
	"sort"
	"time"

	. "github.com/warpfork/go-errcat"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/graph"
	"go.polydawn.net/gitfs/log"
	"go.polydawn.net/gitfs/store"
)

/*
	Which of a commit's two timestamps is its primary one.
	Fixed for the lifetime of a History.
*/
type DateSource uint8

const (
	CommitterDate = DateSource(iota)
	AuthorDate
)

func (d DateSource) String() string {
	switch d {
	case CommitterDate:
		return "committer"
	case AuthorDate:
		return "author"
	default:
		return "invalid"
	}
}

func ParseDateSource(s string) (DateSource, error) {
	switch s {
	case "", "committer":
		return CommitterDate, nil
	case "author":
		return AuthorDate, nil
	default:
		return 0, Errorf(gitfs.ErrParse, "date source must be 'committer' or 'author', not %q", s)
	}
}

func (d DateSource) of(c *store.Commit) time.Time {
	if d == AuthorDate {
		return c.Author.When
	}
	return c.Committer.When
}

/*
	History is the commit DAG (edges parent -> child) plus a primary
	timestamp for every node.  Immutable once built.
*/
type History struct {
	graph   *graph.Graph
	dates   map[plumbing.Hash]time.Time
	source  DateSource
	mon     gitfs.Monitor
	closure *graph.Graph // lazily computed.
}

/*
	Walk every ref's full ancestry out of the store and build the graph.

	May return errors of category:

	  - `gitfs.ErrIntegrity` -- if the ancestry has a cycle, or a ref
	    or parent points at something that isn't a commit
	  - anything the store raises while reading commits
*/
func Build(s store.Store, source DateSource, mon gitfs.Monitor) (*History, error) {
	refs, err := s.Refs()
	if err != nil {
		return nil, err
	}
	g := graph.New()
	dates := map[plumbing.Hash]time.Time{}
	var queue []plumbing.Hash
	for _, ref := range refs {
		queue = append(queue, ref.Commit)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, seen := dates[id]; seen {
			continue
		}
		commit, err := s.ReadCommit(id)
		if err != nil {
			return nil, err
		}
		g.AddNode(id)
		dates[id] = source.of(commit)
		for _, parent := range commit.Parents {
			g.PutEdge(parent, id)
			queue = append(queue, parent)
		}
	}
	if _, err := g.TopologicalOrder(); err != nil {
		return nil, err
	}
	log.HistoryBuilt(mon, g.Len(), len(refs), source.String())
	return &History{graph: g, dates: dates, source: source, mon: mon}, nil
}

/*
	Make a History from a graph and dates computed elsewhere
	(for example, a filtered view of another History).

	Every node of g must have a date.
*/
func New(g *graph.Graph, dates map[plumbing.Hash]time.Time, source DateSource, mon gitfs.Monitor) (*History, error) {
	if _, err := g.TopologicalOrder(); err != nil {
		return nil, err
	}
	own := make(map[plumbing.Hash]time.Time, g.Len())
	for _, n := range g.Nodes() {
		when, ok := dates[n]
		if !ok {
			return nil, Errorf(gitfs.ErrUsage, "no date for commit %s", n)
		}
		own[n] = when
	}
	return &History{graph: g, dates: own, source: source, mon: mon}, nil
}

/*
	The ancestry graph, edges pointing parent -> child.
	Use Transpose() on it for child -> parent.
*/
func (h *History) Graph() *graph.Graph {
	return h.graph
}

func (h *History) Source() DateSource {
	return h.source
}

func (h *History) Commits() []plumbing.Hash {
	return h.graph.Nodes()
}

func (h *History) Contains(id plumbing.Hash) bool {
	return h.graph.HasNode(id)
}

func (h *History) Date(id plumbing.Hash) (time.Time, bool) {
	when, ok := h.dates[id]
	return when, ok
}

func (h *History) Dates() map[plumbing.Hash]time.Time {
	result := make(map[plumbing.Hash]time.Time, len(h.dates))
	for k, v := range h.dates {
		result[k] = v
	}
	return result
}

/*
	The transitive closure of the ancestry graph: an edge a -> b for
	every ancestor a of b.  Computed once.
*/
func (h *History) Closure() *graph.Graph {
	if h.closure == nil {
		h.closure = h.graph.TransitiveClosure()
	}
	return h.closure
}

/*
	True if a is a strict ancestor of b.
*/
func (h *History) IsAncestor(a, b plumbing.Hash) bool {
	return h.Closure().HasEdge(a, b)
}

/*
	Every commit, ordered by primary timestamp.

	Commits with equal timestamps are ordered so that ancestors come
	before descendants (using the closed ancestor relation, so that
	equal-timestamp branches don't collapse unpredictably), and
	otherwise by id string.
*/
func (h *History) Ordered() []plumbing.Hash {
	ids := h.graph.Nodes()
	sort.Slice(ids, func(i, j int) bool {
		di, dj := h.dates[ids[i]], h.dates[ids[j]]
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return ids[i].String() < ids[j].String()
	})
	closure := h.Closure()
	result := make([]plumbing.Hash, 0, len(ids))
	for i := 0; i < len(ids); {
		j := i + 1
		for j < len(ids) && h.dates[ids[j]].Equal(h.dates[ids[i]]) {
			j++
		}
		result = append(result, orderTies(ids[i:j], closure)...)
		i = j
	}
	return result
}

/*
	Order a group of equal-timestamp commits (given sorted by id):
	repeatedly take the smallest id none of whose ancestors remain.
*/
func orderTies(group []plumbing.Hash, closure *graph.Graph) []plumbing.Hash {
	if len(group) == 1 {
		return group
	}
	remaining := append([]plumbing.Hash(nil), group...)
	result := make([]plumbing.Hash, 0, len(group))
	for len(remaining) > 0 {
		for k, n := range remaining {
			blocked := false
			for _, m := range remaining {
				if m != n && closure.HasEdge(m, n) {
					blocked = true
					break
				}
			}
			if !blocked {
				result = append(result, n)
				remaining = append(remaining[:k], remaining[k+1:]...)
				break
			}
		}
	}
	return result
}
