package history

import (
	"math/rand"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"gopkg.in/src-d/go-git.v4/plumbing"

	"go.polydawn.net/gitfs"
	"go.polydawn.net/gitfs/graph"
	"go.polydawn.net/gitfs/testutil"
)

func chain(ids ...plumbing.Hash) *graph.Graph {
	g := graph.New()
	g.AddNode(ids[0])
	for i := 1; i < len(ids); i++ {
		g.PutEdge(ids[i-1], ids[i])
	}
	return g
}

func mustNew(g *graph.Graph, dates map[plumbing.Hash]time.Time) *History {
	if dates == nil {
		dates = map[plumbing.Hash]time.Time{}
		for i, n := range g.Nodes() {
			dates[n] = testutil.Hours(100 + i)
		}
	}
	h, err := New(g, dates, CommitterDate, gitfs.Monitor{})
	if err != nil {
		panic(err)
	}
	return h
}

/*
	A random DAG over n nodes; node i's parents are drawn from nodes before it.
*/
func randomHistory(r *rand.Rand, n int) *History {
	g := graph.New()
	for i := 0; i < n; i++ {
		g.AddNode(id(i))
		for p := 0; p < 2 && i > 0; p++ {
			if r.Intn(3) > 0 {
				g.PutEdge(id(r.Intn(i)), id(i))
			}
		}
	}
	return mustNew(g, nil)
}

func TestReconcileExample(t *testing.T) {
	Convey("Given the chain A -> B -> C with B observed an hour before A", t, func() {
		a, b, c := id(1), id(2), id(3)
		h := mustNew(chain(a, b, c), nil)
		t0 := testutil.T0
		rec, err := h.Reconcile(map[plumbing.Hash]time.Time{
			a: t0,
			b: t0.Add(-time.Hour),
		})
		So(err, ShouldBeNil)

		Convey("A keeps its observed value", func() {
			So(rec.Dates[a], ShouldEqual, t0)
			So(rec.Origins[a], ShouldEqual, OriginObserved)
		})
		Convey("B is raised to be consistent with A, and reported as patched", func() {
			So(rec.Dates[b], ShouldEqual, t0)
			So(rec.Origins[b], ShouldEqual, OriginPatched)
			So(rec.Patched, ShouldResemble, map[plumbing.Hash]time.Time{b: t0.Add(-time.Hour)})
		})
		Convey("C is filled in at or after B", func() {
			So(rec.Dates[c].Before(rec.Dates[b]), ShouldBeFalse)
			So(rec.Origins[c], ShouldEqual, OriginFloor)
		})
	})
}

func TestReconcileOrigins(t *testing.T) {
	Convey("Unobserved commits", t, func() {
		a, b, c, d := id(1), id(2), id(3), id(4)
		h := mustNew(chain(a, b, c, d), nil)

		Convey("take the earliest value bounding them from below in the graph", func() {
			rec, err := h.Reconcile(map[plumbing.Hash]time.Time{c: testutil.Hours(5)})
			So(err, ShouldBeNil)
			So(rec.Dates[a], ShouldEqual, testutil.Hours(5))
			So(rec.Origins[a], ShouldEqual, OriginCeiling)
			So(rec.Dates[b], ShouldEqual, testutil.Hours(5))
			So(rec.Origins[c], ShouldEqual, OriginObserved)
			So(rec.Dates[d], ShouldEqual, testutil.Hours(5))
			So(rec.Origins[d], ShouldEqual, OriginFloor)
			So(rec.Patched, ShouldBeEmpty)
		})
		Convey("fall back to the primary date when nothing is observed at all", func() {
			rec, err := h.Reconcile(nil)
			So(err, ShouldBeNil)
			So(rec.Origins[a], ShouldEqual, OriginPrimary)
			primary, _ := h.Date(a)
			So(rec.Dates[a], ShouldEqual, primary)
			So(rec.Dates[d], ShouldEqual, primary)
			So(rec.Origins[d], ShouldEqual, OriginFloor)
		})
		Convey("ignore observations of commits outside the history", func() {
			rec, err := h.Reconcile(map[plumbing.Hash]time.Time{id(99): testutil.T0})
			So(err, ShouldBeNil)
			So(len(rec.Dates), ShouldEqual, 4)
			_, present := rec.Dates[id(99)]
			So(present, ShouldBeFalse)
		})
	})
	Convey("An unobserved commit between contradicting neighbours is clamped to its floor", t, func() {
		a, x, b := id(1), id(2), id(3)
		h := mustNew(chain(a, x, b), nil)
		rec, err := h.Reconcile(map[plumbing.Hash]time.Time{
			a: testutil.Hours(2),
			b: testutil.Hours(1),
		})
		So(err, ShouldBeNil)
		So(rec.Dates[x], ShouldEqual, testutil.Hours(2))
		So(rec.Origins[x], ShouldEqual, OriginFloor)
		So(rec.Dates[b], ShouldEqual, testutil.Hours(2))
		So(rec.Patched[b], ShouldEqual, testutil.Hours(1))
	})
}

func TestReconcileProperties(t *testing.T) {
	r := rand.New(rand.NewSource(1337))
	for round := 0; round < 40; round++ {
		h := randomHistory(r, 3+r.Intn(25))
		nodes := h.Commits()

		// Arbitrary, mostly inconsistent observations.
		messy := map[plumbing.Hash]time.Time{}
		for _, n := range nodes {
			if r.Intn(2) == 0 {
				messy[n] = testutil.Hours(r.Intn(48))
			}
		}
		rec, err := h.Reconcile(messy)
		if err != nil {
			t.Fatal(err)
		}
		if len(rec.Dates) != len(nodes) {
			t.Fatalf("round %d: %d dates for %d commits", round, len(rec.Dates), len(nodes))
		}
		for _, e := range h.Closure().Edges() {
			if rec.Dates[e.From].After(rec.Dates[e.To]) {
				t.Errorf("round %d: ancestor %s reconciled after descendant %s", round, e.From, e.To)
			}
		}
		for n, original := range rec.Patched {
			if messy[n] != original {
				t.Errorf("round %d: patched value for %s does not match the observation", round, n)
			}
			if !rec.Dates[n].After(original) {
				t.Errorf("round %d: patch of %s did not move it later", round, n)
			}
		}

		// Observations that are already monotonic must come back untouched.
		order, err := h.Graph().TopologicalOrder()
		if err != nil {
			t.Fatal(err)
		}
		consistent := map[plumbing.Hash]time.Time{}
		for i, n := range order {
			if r.Intn(2) == 0 {
				consistent[n] = testutil.Hours(i)
			}
		}
		rec, err = h.Reconcile(consistent)
		if err != nil {
			t.Fatal(err)
		}
		if len(rec.Patched) != 0 {
			t.Errorf("round %d: consistent observations were patched: %v", round, rec.Patched)
		}
		for n, v := range consistent {
			if !rec.Dates[n].Equal(v) {
				t.Errorf("round %d: consistent observation of %s changed", round, n)
			}
		}
	}
}
