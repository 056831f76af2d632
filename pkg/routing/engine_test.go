package routing

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/paulmach/osm"

	"github.com/azybler/chroute/pkg/ch"
	"github.com/azybler/chroute/pkg/graph"
	osmparser "github.com/azybler/chroute/pkg/osm"
)

// buildTriangle builds the two-way triangle A<->B=10, B<->C=10, A<->C=30
// used by scenario 1 (optimal distance via the short side).
func buildTriangle(t *testing.T) *graph.Graph {
	t.Helper()
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 1, ToNodeID: 2, Weight: 10, Forward: true, Backward: true}, // A-B
			{FromNodeID: 2, ToNodeID: 3, Weight: 10, Forward: true, Backward: true}, // B-C
			{FromNodeID: 1, ToNodeID: 3, Weight: 30, Forward: true, Backward: true}, // A-C
		},
		NodeLat: map[osm.NodeID]float64{1: 1.0, 2: 1.1, 3: 1.2},
		NodeLon: map[osm.NodeID]float64{1: 103.0, 2: 103.1, 3: 103.2},
	}
	return ch.Contract(graph.Build(result))
}

// buildShortcutOverlay hand-builds a tiny CH overlay (A=0,B=1,C=2) where
// A→C is a contracted shortcut through B — scenario 2's exact case,
// constructed directly so the test exercises unpackEdge without
// depending on the contractor's ordering choices.
func buildShortcutOverlay() *graph.Graph {
	inv := graph.InvalidNode
	return &graph.Graph{
		NumNodes: 3,
		FirstOut: []uint32{0, 2, 3, 3},
		Head:     []uint32{1, 2, 2},
		Data: []graph.EdgeData{
			{Weight: 10, Forward: true, Backward: true, Middle: inv},              // A->B
			{Weight: 20, Forward: true, Backward: true, Shortcut: true, Middle: 1}, // A->C shortcut via B
			{Weight: 10, Forward: true, Backward: true, Middle: inv},              // B->C
		},
		NodeLat: []float64{1.0, 1.05, 1.1},
		NodeLon: []float64{103.0, 103.0, 103.0},
	}
}

// buildOneWayBarrier builds A->B=5 forward-only, no return edge.
func buildOneWayBarrier() *graph.Graph {
	return &graph.Graph{
		NumNodes: 2,
		FirstOut: []uint32{0, 1, 1},
		Head:     []uint32{1},
		Data:     []graph.EdgeData{{Weight: 5, Forward: true, Middle: graph.InvalidNode}},
		NodeLat:  []float64{1.0, 1.1},
		NodeLon:  []float64{103.0, 103.0},
	}
}

// buildChain builds the forward-only chain A->B->C->D, weights 100,50,40,
// used by scenario 5's opposite-ends phantom seeding.
func buildChain(t *testing.T) *graph.Graph {
	t.Helper()
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 1, ToNodeID: 2, Weight: 100, Forward: true},
			{FromNodeID: 2, ToNodeID: 3, Weight: 50, Forward: true},
			{FromNodeID: 3, ToNodeID: 4, Weight: 40, Forward: true},
		},
		NodeLat: map[osm.NodeID]float64{1: 1.0, 2: 1.1, 3: 1.2, 4: 1.3},
		NodeLon: map[osm.NodeID]float64{1: 103.0, 2: 103.1, 3: 103.2, 4: 103.3},
	}
	return ch.Contract(graph.Build(result))
}

func nodeAt(t *testing.T, g *graph.Graph, lat float64) graph.NodeID {
	t.Helper()
	for i := uint32(0); i < g.NumNodes; i++ {
		if g.NodeLat[i] == lat {
			return i
		}
	}
	t.Fatalf("no node at lat %f", lat)
	return graph.InvalidNode
}

func newTestEngine(chg *graph.Graph) *Engine {
	return NewEngineWithResolver(chg, chg, nil)
}

// Scenario 1: triangle, optimal distance uses the two short sides.
func TestScenarioTriangleDistance(t *testing.T) {
	g := buildTriangle(t)
	e := newTestEngine(g)
	a, c := nodeAt(t, g, 1.0), nodeAt(t, g, 1.2)

	got := e.ComputeDistanceBetweenNodes(context.Background(), a, c)
	if got != 20 {
		t.Errorf("distance(A,C) = %d, want 20", got)
	}
}

// Scenario 2: a shortcut edge must unpack back to its original nodes.
func TestScenarioShortcutUnpacks(t *testing.T) {
	g := buildShortcutOverlay()
	e := newTestEngine(g)
	phantom := PhantomNodes{StartU: 0, StartV: 0, TargetU: 2, TargetV: 2}

	path, weight, sameEdge, err := e.ComputeRoute(context.Background(), phantom)
	if err != nil {
		t.Fatalf("ComputeRoute: %v", err)
	}
	if sameEdge {
		t.Fatal("sameEdge = true, want false")
	}
	if weight != 20 {
		t.Errorf("weight = %d, want 20", weight)
	}
	want := []graph.NodeID{0, 1, 2}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}
	for _, n := range path {
		if n == graph.InvalidNode {
			t.Fatal("path contains InvalidNode")
		}
	}
}

// Scenario 3: a one-way barrier makes the reverse direction unreachable.
func TestScenarioOneWayBarrier(t *testing.T) {
	g := buildOneWayBarrier()
	e := newTestEngine(g)

	got := e.ComputeDistanceBetweenNodes(context.Background(), 1, 0)
	if got != WeightUnreachable {
		t.Errorf("distance(B,A) = %d, want unreachable", got)
	}
}

// Scenario 4: phantoms on the same forward segment collapse to a chord.
func TestScenarioSameEdgeForward(t *testing.T) {
	g := buildOneWayBarrier() // reuse A->B=5 forward-only as the probed segment
	e := newTestEngine(g)

	start := Coordinate{Lat: 1.0, Lng: 103.0}
	target := Coordinate{Lat: 1.1, Lng: 103.0}
	phantom := PhantomNodes{
		StartU: 0, StartV: 1, StartRatio: 0.2,
		TargetU: 0, TargetV: 1, TargetRatio: 0.7,
		StartCoord: start, TargetCoord: target,
	}

	path, weight, sameEdge, err := e.ComputeRoute(context.Background(), phantom)
	if err != nil {
		t.Fatalf("ComputeRoute: %v", err)
	}
	if !sameEdge {
		t.Fatal("sameEdge = false, want true")
	}
	if len(path) != 0 {
		t.Errorf("path = %v, want empty", path)
	}
	want := straightLineWeight(phantom)
	if weight != want {
		t.Errorf("weight = %d, want %d", weight, want)
	}
}

// Scenario 5: phantoms on opposite ends of a chain seed both heaps and
// must produce the full node sequence through the chain.
func TestScenarioOppositeEndsPhantoms(t *testing.T) {
	g := buildChain(t)
	e := newTestEngine(g)
	a := nodeAt(t, g, 1.0)
	b := nodeAt(t, g, 1.1)
	c := nodeAt(t, g, 1.2)
	d := nodeAt(t, g, 1.3)

	phantom := PhantomNodes{
		StartU: a, StartV: b, StartRatio: 0.25,
		TargetU: c, TargetV: d, TargetRatio: 0.5,
	}

	path, weight, sameEdge, err := e.ComputeRoute(context.Background(), phantom)
	if err != nil {
		t.Fatalf("ComputeRoute: %v", err)
	}
	if sameEdge {
		t.Fatal("sameEdge = true, want false")
	}
	if weight != 145 {
		t.Errorf("weight = %d, want 145", weight)
	}
	want := []graph.NodeID{a, b, c, d}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}
}

// Scenario 6: an unresolved phantom must report unreachable without
// ever touching the graph.
func TestScenarioUnreachablePhantom(t *testing.T) {
	g := buildTriangle(t)
	e := newTestEngine(g)
	phantom := PhantomNodes{StartU: graph.InvalidNode, StartV: graph.InvalidNode, TargetU: 0, TargetV: 0}

	path, weight, sameEdge, err := e.ComputeRoute(context.Background(), phantom)
	if err != nil {
		t.Fatalf("ComputeRoute: %v", err)
	}
	if weight != WeightUnreachable || sameEdge || path != nil {
		t.Errorf("got (%v,%d,%v), want (nil,unreachable,false)", path, weight, sameEdge)
	}
}

// Path-consistency property (§8): the sum of unpacked edge weights must
// equal the returned weight.
func TestPathConsistency(t *testing.T) {
	g := buildChain(t)
	e := newTestEngine(g)
	a := nodeAt(t, g, 1.0)
	d := nodeAt(t, g, 1.3)

	phantom := PhantomNodes{StartU: a, StartV: a, TargetU: d, TargetV: d}
	path, weight, _, err := e.ComputeRoute(context.Background(), phantom)
	if err != nil {
		t.Fatalf("ComputeRoute: %v", err)
	}

	var sum uint32
	for i := 0; i+1 < len(path); i++ {
		eid, ok := findSegmentEdge(g, path[i], path[i+1], true)
		if !ok {
			t.Fatalf("no forward edge %d->%d in unpacked path", path[i], path[i+1])
		}
		d := g.EdgeDataAt(eid)
		if d.Shortcut {
			t.Errorf("unpacked path still contains a shortcut edge at %d->%d", path[i], path[i+1])
		}
		sum += d.Weight
	}
	if sum != weight {
		t.Errorf("sum of unpacked weights = %d, want %d", sum, weight)
	}
}

// Monotone-UB property (§8): the upper bound never increases across
// the course of a search.
func TestMonotoneUpperBound(t *testing.T) {
	g := buildTriangle(t)
	e := newTestEngine(g)
	a := nodeAt(t, g, 1.0)
	c := nodeAt(t, g, 1.2)

	pair := e.heapPool.Get().(*heapPair)
	defer e.heapPool.Put(pair)
	hf, hb := pair.fwd, pair.bwd
	hf.Reset()
	hb.Reset()
	hf.Insert(a, 0, a)
	hb.Insert(c, 0, c)

	ub := WeightUnreachable
	for hf.Size() > 0 || hb.Size() > 0 {
		if hf.Size() > 0 {
			_, u := e.relax(hf, hb, true, ub)
			if u > ub {
				t.Fatalf("UB increased: %d -> %d", ub, u)
			}
			ub = u
		}
		if hb.Size() > 0 {
			_, u := e.relax(hb, hf, false, ub)
			if u > ub {
				t.Fatalf("UB increased: %d -> %d", ub, u)
			}
			ub = u
		}
	}
	if ub != 20 {
		t.Errorf("final UB = %d, want 20", ub)
	}
}

// buildTwoWaySameEdge builds a single bidirectional edge A<->B=100,
// used to probe sameEdgeWeight's branch selection directly.
func buildTwoWaySameEdge() *graph.Graph {
	return &graph.Graph{
		NumNodes: 2,
		FirstOut: []uint32{0, 1, 2},
		Head:     []uint32{1, 0},
		Data: []graph.EdgeData{
			{Weight: 100, Forward: true, Backward: true, Middle: graph.InvalidNode},
			{Weight: 100, Forward: true, Backward: true, Middle: graph.InvalidNode},
		},
		NodeLat: []float64{1.0, 1.0009},
		NodeLon: []float64{103.0, 103.0},
	}
}

// A bidirectional same-edge query where the destination sits behind
// the start (sr > tr) must resolve to the backward chord, not fall
// through to the general two-node search — a two-node graph search
// can only route via the endpoints and can't recover the interior
// chord distance.
func TestSameEdgeBidirectionalBehindStartIsChord(t *testing.T) {
	g := buildTwoWaySameEdge()
	e := newTestEngine(g)

	phantom := PhantomNodes{
		StartU: 0, StartV: 1, StartRatio: 0.7,
		TargetU: 0, TargetV: 1, TargetRatio: 0.2,
		StartCoord:  Coordinate{Lat: 1.0, Lng: 103.0},
		TargetCoord: Coordinate{Lat: 1.0, Lng: 103.0},
	}

	_, isChord, _, ok := e.sameEdgeWeight(phantom)
	if !ok || !isChord {
		t.Fatalf("sameEdgeWeight(bidirectional, sr>tr) = (isChord=%v, ok=%v), want (true,true)", isChord, ok)
	}

	path, weight, sameEdge, err := e.ComputeRoute(context.Background(), phantom)
	if err != nil {
		t.Fatalf("ComputeRoute: %v", err)
	}
	if !sameEdge {
		t.Fatal("sameEdge = false, want true")
	}
	if len(path) != 0 {
		t.Errorf("path = %v, want empty", path)
	}
	want := straightLineWeight(phantom)
	if weight != want {
		t.Errorf("weight = %d, want %d (chord), not the two-node detour", weight, want)
	}
}

// Same-edge, forward-only, target behind start: must seed both heaps
// explicitly on the single edge rather than report a chord.
func TestSameEdgeForwardOnlyBehindStartFallsThrough(t *testing.T) {
	g := buildOneWayBarrier() // A->B=5, forward only
	e := newTestEngine(g)

	phantom := PhantomNodes{
		StartU: 0, StartV: 1, StartRatio: 0.8,
		TargetU: 0, TargetV: 1, TargetRatio: 0.3,
		StartCoord:  Coordinate{Lat: 1.0, Lng: 103.0},
		TargetCoord: Coordinate{Lat: 1.0, Lng: 103.0},
	}

	_, isChord, d, ok := e.sameEdgeWeight(phantom)
	if !ok || isChord {
		t.Fatalf("sameEdgeWeight(forward-only, sr>tr) = (isChord=%v, ok=%v), want (false,true)", isChord, ok)
	}
	if d.Weight != 5 {
		t.Fatalf("edge weight = %d, want 5", d.Weight)
	}
}

// buildReparentingTriangle builds the counterexample that defeats a
// self-parent/WasInserted-based path-assembly termination: A<->B=100
// (the phantom's edge), B->C=1, C->A=1. A cheaper path back to A via
// C legitimately reparents A away from its own self-parented seed.
func buildReparentingTriangle() *graph.Graph {
	return &graph.Graph{
		NumNodes: 3,
		FirstOut: []uint32{0, 2, 4, 6},
		Head:     []uint32{1, 2, 0, 2, 0, 1},
		Data: []graph.EdgeData{
			{Weight: 100, Forward: true, Backward: true, Middle: graph.InvalidNode}, // A->B
			{Weight: 1, Backward: true, Middle: graph.InvalidNode},                  // A->C, mirror of C->A
			{Weight: 100, Forward: true, Backward: true, Middle: graph.InvalidNode}, // B->A, mirror of A->B
			{Weight: 1, Forward: true, Middle: graph.InvalidNode},                   // B->C
			{Weight: 1, Forward: true, Middle: graph.InvalidNode},                   // C->A
			{Weight: 1, Backward: true, Middle: graph.InvalidNode},                  // C->B, mirror of B->C
		},
		NodeLat: []float64{1.0, 1.001, 1.002},
		NodeLon: []float64{103.0, 103.0, 103.0},
	}
}

// Regression test for the path-assembly infinite loop: a boundary node
// legitimately reparented away from itself must not prevent the parent
// chase from terminating.
func TestAssemblePackedPathSurvivesReparenting(t *testing.T) {
	g := buildReparentingTriangle()
	e := newTestEngine(g)

	phantom := PhantomNodes{
		StartU: 0, StartV: 1, StartRatio: 0.99,
		TargetU: 0, TargetV: 0,
		StartCoord:  Coordinate{Lat: 1.0, Lng: 103.0},
		TargetCoord: Coordinate{Lat: 1.0, Lng: 103.0},
	}

	done := make(chan struct{})
	var path []graph.NodeID
	var weight Weight
	go func() {
		var sameEdge bool
		var err error
		path, weight, sameEdge, err = e.ComputeRoute(context.Background(), phantom)
		if err != nil {
			t.Errorf("ComputeRoute: %v", err)
		}
		if sameEdge {
			t.Errorf("sameEdge = true, want false")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ComputeRoute did not return: assemblePackedPath likely looping")
	}

	if weight != 3 {
		t.Errorf("weight = %d, want 3", weight)
	}
	if len(path) == 0 {
		t.Error("path is empty, want a reconstructed route")
	}
}

func TestStraightLineWeightUsesMillimeters(t *testing.T) {
	p := PhantomNodes{
		StartCoord:  Coordinate{Lat: 1.0, Lng: 103.0},
		TargetCoord: Coordinate{Lat: 1.0, Lng: 103.0},
	}
	if w := straightLineWeight(p); w != 0 {
		t.Errorf("straightLineWeight(same point) = %d, want 0", w)
	}
	p.TargetCoord = Coordinate{Lat: 1.001, Lng: 103.0}
	if w := straightLineWeight(p); w == 0 || w == math.MaxUint32 {
		t.Errorf("straightLineWeight(distinct points) = %d, want a small positive value", w)
	}
}
