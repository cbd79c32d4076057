package history

import (
	"time"

	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs/log"
)

/*
	Where a reconciled date came from.
*/
type Origin uint8

const (
	// The observed value, unchanged.
	OriginObserved = Origin(iota + 1)
	// An observed value raised to its latest ancestor's reconciled value.
	OriginPatched
	// Unobserved; the earliest value bounding it from its descendants.
	OriginCeiling
	// Unobserved; the latest reconciled value among its parents.
	OriginFloor
	// Unobserved, parentless, and with no observed descendant: the primary timestamp.
	OriginPrimary
)

func (o Origin) String() string {
	switch o {
	case OriginObserved:
		return "observed"
	case OriginPatched:
		return "patched"
	case OriginCeiling:
		return "ceiling"
	case OriginFloor:
		return "floor"
	case OriginPrimary:
		return "primary"
	default:
		return "invalid"
	}
}

/*
	The result of reconciling an observed timestamp map against a History.

	Dates is total over the history's commits and monotonic: for every
	ancestor a of b, Dates[a] is not after Dates[b].

	Patched holds the original observed value of every commit whose
	observed value had to change; callers should treat those with caution.
*/
type Reconciliation struct {
	Dates   map[plumbing.Hash]time.Time
	Origins map[plumbing.Hash]Origin
	Patched map[plumbing.Hash]time.Time
}

/*
	Repair a partial, possibly self-contradicting map of observed dates
	so it becomes total and monotonic along the ancestry graph.

	Two passes:

	  - Ceiling, leaves to roots: each commit learns the earliest date any
	    descendant is known (or bounded) to have; that's an upper bound.
	  - Floor, roots to leaves: each commit's value is made no earlier than
	    any parent's reconciled value.  Observed values survive unless a
	    parent forces them later (then they're patched).  Unobserved values
	    take the ceiling when there is one, else the floor, else (only for
	    parentless commits with nothing observed below them) the primary date.

	Observed entries for commits not in the history are ignored.
	Observed values that need no correction are returned exactly as given.
*/
func (h *History) Reconcile(observed map[plumbing.Hash]time.Time) (*Reconciliation, error) {
	order, err := h.graph.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	// Ceiling pass.  Absence from the map means "no bound" (the maximum instant).
	ceiling := make(map[plumbing.Hash]time.Time, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		var bound time.Time
		bounded := false
		for _, child := range h.graph.Successors(n) {
			v, ok := observed[child]
			if !ok {
				v, ok = ceiling[child]
			}
			if ok && (!bounded || v.Before(bound)) {
				bound, bounded = v, true
			}
		}
		if bounded {
			ceiling[n] = bound
		}
	}

	// Floor pass.
	result := &Reconciliation{
		Dates:   make(map[plumbing.Hash]time.Time, len(order)),
		Origins: make(map[plumbing.Hash]Origin, len(order)),
		Patched: map[plumbing.Hash]time.Time{},
	}
	for _, n := range order {
		var floor time.Time
		floored := false
		for _, parent := range h.graph.Predecessors(n) {
			v := result.Dates[parent]
			if !floored || v.After(floor) {
				floor, floored = v, true
			}
		}
		obs, isObserved := observed[n]
		ceil, isCeiled := ceiling[n]
		switch {
		case isObserved && floored && floor.After(obs):
			result.Dates[n], result.Origins[n] = floor, OriginPatched
			result.Patched[n] = obs
			log.DatePatched(h.mon, n.String(), obs, floor)
		case isObserved:
			result.Dates[n], result.Origins[n] = obs, OriginObserved
		case isCeiled && floored && floor.After(ceil):
			result.Dates[n], result.Origins[n] = floor, OriginFloor
		case isCeiled:
			result.Dates[n], result.Origins[n] = ceil, OriginCeiling
		case floored:
			result.Dates[n], result.Origins[n] = floor, OriginFloor
		default:
			result.Dates[n], result.Origins[n] = h.dates[n], OriginPrimary
		}
	}
	return result, nil
}
