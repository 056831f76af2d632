package routing

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
)

// Weight is the engine's internal distance unit (millimeters, matching
// pkg/osm's edge weights).
type Weight = uint32

// WeightUnreachable is the sentinel returned when no route exists.
const WeightUnreachable Weight = math.MaxUint32

// ErrNoRoute is returned when the search completes with no path between
// the two points.
var ErrNoRoute = errors.New("routing: no route found")

// Segment represents one leg of a route result.
type Segment struct {
	DistanceMeters float64
	Geometry       []LatLng
}

// RouteResult is the output of a route query.
type RouteResult struct {
	TotalDistanceMeters float64
	Segments            []Segment
}

// Router is the interface the HTTP layer depends on.
type Router interface {
	Route(ctx context.Context, start, end LatLng) (*RouteResult, error)
}

// Engine answers shortest-path queries over a Contraction Hierarchies
// overlay, resolving query coordinates to phantom nodes through a
// PhantomResolver and unpacking the overlay path back to the original
// road network.
type Engine struct {
	chg       *graph.Graph // CH overlay: upward edges only
	origGraph *graph.Graph // base graph, carries geometry
	resolver  PhantomResolver
	heapPool  sync.Pool
}

type heapPair struct {
	fwd *Heap
	bwd *Heap
}

// NewEngine builds an Engine from a contracted overlay and the original
// (uncontracted) graph it was built from. It constructs its own
// R-tree-backed resolver from origGraph.
func NewEngine(chg *graph.Graph, origGraph *graph.Graph) *Engine {
	return NewEngineWithResolver(chg, origGraph, NewResolver(origGraph))
}

// NewEngineWithResolver is NewEngine with an explicit resolver, mainly
// for tests that want a hand-built graph without standing up an R-tree.
func NewEngineWithResolver(chg *graph.Graph, origGraph *graph.Graph, resolver PhantomResolver) *Engine {
	e := &Engine{chg: chg, origGraph: origGraph, resolver: resolver}
	e.heapPool.New = func() any {
		return &heapPair{fwd: NewHeap(chg.NumNodes), bwd: NewHeap(chg.NumNodes)}
	}
	return e
}

// Route resolves start/end to phantom nodes and computes a route
// between them, in the app-facing coordinate/geometry shape.
func (e *Engine) Route(ctx context.Context, start, end LatLng) (*RouteResult, error) {
	phantom := e.resolver.FindRoutingStarts(start, end)
	if !phantom.Valid() {
		return nil, ErrPointTooFar
	}

	path, weight, sameEdge, err := e.ComputeRoute(ctx, phantom)
	if err != nil {
		return nil, err
	}
	if sameEdge {
		dist := float64(weight) / 1000.0
		return &RouteResult{
			TotalDistanceMeters: dist,
			Segments: []Segment{{
				DistanceMeters: dist,
				Geometry:       []LatLng{phantom.StartCoord, phantom.TargetCoord},
			}},
		}, nil
	}
	if weight == WeightUnreachable {
		return nil, ErrNoRoute
	}

	geometry := e.buildGeometry(path)
	dist := float64(weight) / 1000.0
	return &RouteResult{
		TotalDistanceMeters: dist,
		Segments:            []Segment{{DistanceMeters: dist, Geometry: geometry}},
	}, nil
}

// ComputeRoute is the engine's primary query: given resolved phantom
// nodes, it returns the shortest path as a sequence of original-graph
// node IDs, the route's weight, and whether the result is a same-edge
// chord: both endpoints on one edge with the target reachable directly
// along it (path is then empty and the caller is responsible for the
// straight-line geometry). A same-edge query that needs the explicit
// single-edge search reports false.
func (e *Engine) ComputeRoute(ctx context.Context, phantom PhantomNodes) ([]graph.NodeID, Weight, bool, error) {
	if !phantom.Valid() {
		return nil, WeightUnreachable, false, nil
	}

	pair := e.heapPool.Get().(*heapPair)
	defer e.heapPool.Put(pair)
	hf, hb := pair.fwd, pair.bwd
	hf.Reset()
	hb.Reset()

	if phantom.sameEdge() {
		if w, isChord, d, ok := e.sameEdgeWeight(phantom); ok {
			if isChord {
				return nil, w, true, nil
			}
			seedSameEdgeFallback(hf, hb, phantom, d.Weight)
			return e.search(ctx, hf, hb, phantom.StartV, phantom.StartU)
		}
	}

	seedStart(hf, phantom, e.chg)
	seedTarget(hb, phantom, e.chg)
	return e.search(ctx, hf, hb, phantom.StartU, phantom.TargetV)
}

// search runs the bidirectional search to completion on already-seeded
// heaps and assembles the resulting path. hfAnchor and hbAnchor are
// the nodes each heap's seeding treats as its true search origin
// (seedStart always roots hf at StartU, seedTarget roots hb at
// TargetV; seedSameEdgeFallback swaps both, rooting hf at StartV and
// hb at StartU), and assemblePackedPath chases parent pointers out to
// them specifically.
func (e *Engine) search(ctx context.Context, hf, hb *Heap, hfAnchor, hbAnchor graph.NodeID) ([]graph.NodeID, Weight, bool, error) {
	meet, ub, err := e.bidirectionalSearch(ctx, hf, hb)
	if err != nil {
		return nil, WeightUnreachable, false, err
	}
	if ub == WeightUnreachable || meet == graph.InvalidNode {
		return nil, WeightUnreachable, false, nil
	}

	packed := assemblePackedPath(hf, hb, meet, hfAnchor, hbAnchor)
	path := unpackPath(e.chg, packed)
	return path, ub, false, nil
}

// ComputeDistanceBetweenNodes answers a plain node-to-node shortest
// distance query, bypassing phantom resolution entirely.
func (e *Engine) ComputeDistanceBetweenNodes(ctx context.Context, start, target graph.NodeID) Weight {
	pair := e.heapPool.Get().(*heapPair)
	defer e.heapPool.Put(pair)
	hf, hb := pair.fwd, pair.bwd
	hf.Reset()
	hb.Reset()

	hf.Insert(start, 0, start)
	hb.Insert(target, 0, target)

	_, ub, err := e.bidirectionalSearch(ctx, hf, hb)
	if err != nil {
		return WeightUnreachable
	}
	return ub
}

// sameEdgeWeight resolves the case where both phantoms lie on the
// identical directed node pair: a forward segment with the start
// strictly before the target is a direct chord; a segment usable
// backward (including a bidirectional edge where the start instead
// lands at or after the target) is a chord in that direction; a
// forward-only segment with the target behind the start can't be a
// chord at all and must seed both heaps on the single edge instead.
// ok is false only when StartU/StartV aren't directly connected, in
// which case the caller falls back to general phantom seeding.
func (e *Engine) sameEdgeWeight(p PhantomNodes) (w Weight, isChord bool, edge graph.EdgeData, ok bool) {
	var d graph.EdgeData
	if eid := e.chg.FindEdge(p.StartU, p.StartV); eid != graph.InvalidEdge {
		d = e.chg.EdgeDataAt(eid)
	} else if rid := e.chg.FindEdge(p.StartV, p.StartU); rid != graph.InvalidEdge {
		// Stored at StartV: swap the flags to read it from StartU's side.
		d = e.chg.EdgeDataAt(rid)
		d.Forward, d.Backward = d.Backward, d.Forward
	} else {
		return 0, false, graph.EdgeData{}, false
	}
	switch {
	case d.Forward && p.StartRatio < p.TargetRatio:
		return straightLineWeight(p), true, d, true
	case d.Forward && !d.Backward:
		return 0, false, d, true // one-way, target behind start: explicit single-edge seed
	case d.Backward:
		return straightLineWeight(p), true, d, true
	default:
		return 0, false, graph.EdgeData{}, false
	}
}

// seedSameEdgeFallback seeds both heaps for a forward-only same-edge
// query where the target lies behind the start: insert the edge's far
// endpoint into the forward heap and its near endpoint into the
// backward heap, both as search origins, using only the start ratio.
func seedSameEdgeFallback(hf, hb *Heap, p PhantomNodes, w uint32) {
	hf.Insert(p.StartV, Weight(math.Round(float64(w)*p.StartRatio)), p.StartV)
	hb.Insert(p.StartU, Weight(math.Round(float64(w)*(1-p.StartRatio))), p.StartU)
}

// straightLineWeight is the Euclidean distance between the two query
// points, in the graph's millimeter weight unit — consistent with how
// pkg/osm derives edge weights, so same-edge and multi-hop weights
// compare directly.
func straightLineWeight(p PhantomNodes) Weight {
	meters := geo.Haversine(p.StartCoord.Lat, p.StartCoord.Lng, p.TargetCoord.Lat, p.TargetCoord.Lng)
	return Weight(math.Round(meters * 1000))
}

// findSegmentEdge finds the minimum-weight edge usable for travel u→v
// (fwd) or v→u (!fwd), looking first at u's entries and then at v's:
// the overlay stores each edge only at its lower-rank endpoint, where
// the same travel direction carries the opposite flag.
func findSegmentEdge(g GraphView, u, v graph.NodeID, fwd bool) (graph.EdgeID, bool) {
	if eid, ok := findDirectedEdge(g, u, v, fwd); ok {
		return eid, true
	}
	return findDirectedEdge(g, v, u, !fwd)
}

// seedStart seeds the forward heap from the start phantom: the segment
// it lies on may be usable forward (toward StartV), backward (toward
// StartU), or both.
func seedStart(hf *Heap, p PhantomNodes, g GraphView) {
	if p.StartU == p.StartV {
		hf.Insert(p.StartU, 0, p.StartU)
		return
	}
	if eid, ok := findSegmentEdge(g, p.StartU, p.StartV, true); ok {
		w := g.EdgeDataAt(eid).Weight
		key := Weight(math.Round(float64(w) * (1 - p.StartRatio)))
		hf.Insert(p.StartV, key, p.StartU)
	}
	if eid, ok := findSegmentEdge(g, p.StartU, p.StartV, false); ok {
		w := g.EdgeDataAt(eid).Weight
		key := Weight(math.Round(float64(w) * p.StartRatio))
		if !hf.WasInserted(p.StartU) {
			hf.Insert(p.StartU, key, p.StartU) // self-parent: true search origin
		}
	}
}

// seedTarget seeds the backward heap from the target phantom,
// symmetric to seedStart.
func seedTarget(hb *Heap, p PhantomNodes, g GraphView) {
	if p.TargetU == p.TargetV {
		hb.Insert(p.TargetU, 0, p.TargetU)
		return
	}
	if eid, ok := findSegmentEdge(g, p.TargetU, p.TargetV, true); ok {
		w := g.EdgeDataAt(eid).Weight
		key := Weight(math.Round(float64(w) * p.TargetRatio))
		hb.Insert(p.TargetU, key, p.TargetV)
	}
	if eid, ok := findSegmentEdge(g, p.TargetU, p.TargetV, false); ok {
		w := g.EdgeDataAt(eid).Weight
		key := Weight(math.Round(float64(w) * (1 - p.TargetRatio)))
		if !hb.WasInserted(p.TargetV) {
			hb.Insert(p.TargetV, key, p.TargetV) // self-parent: true search origin
		}
	}
}

// bidirectionalSearch runs the alternating forward/backward relaxation
// until both heaps are exhausted or pruned, returning the meeting node
// and the shortest-path weight.
func (e *Engine) bidirectionalSearch(ctx context.Context, hf, hb *Heap) (graph.NodeID, Weight, error) {
	meet := graph.InvalidNode
	ub := WeightUnreachable
	iterations := 0

	for hf.Size() > 0 || hb.Size() > 0 {
		iterations++
		if iterations&255 == 0 {
			select {
			case <-ctx.Done():
				return meet, ub, ctx.Err()
			default:
			}
		}

		if hf.Size() > 0 {
			m, u := e.relax(hf, hb, true, ub)
			ub = u
			if m != graph.InvalidNode {
				meet = m
			}
		}
		if hb.Size() > 0 {
			m, u := e.relax(hb, hf, false, ub)
			ub = u
			if m != graph.InvalidNode {
				meet = m
			}
		}
	}
	return meet, ub, nil
}

// relax pops the minimum node from hSelf, checks it against hOther for
// a tighter meeting bound, prunes hSelf if it can no longer improve on
// ub, and otherwise relaxes its outgoing edges in the given direction.
func (e *Engine) relax(hSelf, hOther *Heap, fwd bool, ub Weight) (meet graph.NodeID, newUB Weight) {
	n, k := hSelf.DeleteMin()
	meet, newUB = graph.InvalidNode, ub

	if hOther.WasInserted(n) {
		if cand := k + hOther.GetKey(n); cand < newUB {
			meet, newUB = n, cand
		}
	}
	if k > newUB {
		hSelf.DeleteAll()
		return meet, newUB
	}

	for eid := e.chg.BeginEdges(n); eid < e.chg.EndEdges(n); eid++ {
		d := e.chg.EdgeDataAt(eid)
		usable := d.Forward
		if !fwd {
			usable = d.Backward
		}
		if !usable {
			continue
		}
		m := e.chg.Target(eid)
		km := k + d.Weight
		switch {
		case !hSelf.WasInserted(m):
			hSelf.Insert(m, km, n)
		case hSelf.InHeap(m) && km < hSelf.GetKey(m):
			hSelf.DecreaseKey(m, km)
			*hSelf.GetData(m) = n
		}
	}
	return meet, newUB
}

// assemblePackedPath builds the overlay node sequence from hfAnchor,
// through meet, to hbAnchor. It chases parent pointers outward from
// meet in each heap until the current node equals that heap's true
// search-origin anchor. Termination is keyed on the anchor's node
// identity rather than on self-parenting or WasInserted: a node seeded
// as a self-parented origin can still be legitimately reparented away
// from itself by a later, cheaper relaxation, at which point neither
// check would ever fire again. Checking identity before dereferencing
// the current node's parent means the chase never needs to read a
// reparented anchor's own (now stale) parent pointer — it has already
// stopped by the time it would.
func assemblePackedPath(hf, hb *Heap, meet, hfAnchor, hbAnchor graph.NodeID) []graph.NodeID {
	prefix := chaseToAnchor(hf, meet, hfAnchor)
	for i, j := 0, len(prefix)-1; i < j; i, j = i+1, j-1 {
		prefix[i], prefix[j] = prefix[j], prefix[i]
	}
	suffix := chaseToAnchor(hb, meet, hbAnchor)

	path := make([]graph.NodeID, 0, len(prefix)+1+len(suffix))
	path = append(path, prefix...)
	path = append(path, meet)
	path = append(path, suffix...)
	return path
}

// chaseToAnchor follows parent pointers in h starting from n until it
// reaches anchor, returning the chased nodes in n→anchor order (n
// itself excluded, anchor included).
func chaseToAnchor(h *Heap, n, anchor graph.NodeID) []graph.NodeID {
	var chain []graph.NodeID
	for n != anchor {
		n = *h.GetData(n)
		chain = append(chain, n)
	}
	return chain
}

// buildGeometry converts an original-graph node sequence into lat/lng
// points, splicing in each edge's intermediate shape points.
func (e *Engine) buildGeometry(nodes []graph.NodeID) []LatLng {
	if len(nodes) == 0 {
		return nil
	}
	g := e.origGraph
	geom := make([]LatLng, 0, len(nodes)*2)
	geom = append(geom, LatLng{Lat: g.NodeLat[nodes[0]], Lng: g.NodeLon[nodes[0]]})

	for i := 0; i < len(nodes)-1; i++ {
		u, v := nodes[i], nodes[i+1]
		if g.GeoFirstOut != nil {
			if eid := g.FindEdge(u, v); eid != graph.InvalidEdge && int(eid) < len(g.GeoFirstOut)-1 {
				start, end := g.GeoFirstOut[eid], g.GeoFirstOut[eid+1]
				for k := start; k < end; k++ {
					geom = append(geom, LatLng{Lat: g.GeoShapeLat[k], Lng: g.GeoShapeLon[k]})
				}
			}
		}
		geom = append(geom, LatLng{Lat: g.NodeLat[v], Lng: g.NodeLon[v]})
	}
	return geom
}
