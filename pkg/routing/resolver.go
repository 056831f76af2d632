package routing

import (
	"errors"
	"math"

	"github.com/tidwall/rtree"

	"github.com/azybler/chroute/pkg/geo"
	"github.com/azybler/chroute/pkg/graph"
)

// ErrPointTooFar is returned when a query coordinate has no road edge
// within maxSnapDistMeters.
var ErrPointTooFar = errors.New("routing: point too far from any road")

const (
	maxSnapDistMeters = 500.0
	snapStepDegrees   = 0.01 // ~1.1km at the equator
	snapMaxSteps      = 60
)

// edgeBounds is the R-tree leaf payload: enough to re-derive a snap
// ratio without a second lookup into the graph.
type edgeBounds struct {
	u, v graph.NodeID
}

// Resolver implements PhantomResolver over an R-tree bulk-loaded from a
// graph's edge bounding boxes, giving logarithmic nearest-edge queries
// in place of a linear scan.
type Resolver struct {
	g    *graph.Graph
	tree rtree.RTree
}

// NewResolver builds the spatial index from every edge of g. g should
// be the base (uncontracted) graph: its geometry is what later rides
// along with snapped coordinates, and the CH overlay carries none.
func NewResolver(g *graph.Graph) *Resolver {
	r := &Resolver{g: g}
	for u := graph.NodeID(0); u < g.NumNodes; u++ {
		start, end := g.EdgesFrom(u)
		for e := start; e < end; e++ {
			v := g.Head[e]
			uLat, uLon := g.NodeLat[u], g.NodeLon[u]
			vLat, vLon := g.NodeLat[v], g.NodeLon[v]
			min := [2]float64{math.Min(uLon, vLon), math.Min(uLat, vLat)}
			max := [2]float64{math.Max(uLon, vLon), math.Max(uLat, vLat)}
			r.tree.Insert(min, max, edgeBounds{u: u, v: v})
		}
	}
	return r
}

// snap projects c onto the nearest edge, expanding the search box
// outward until something is found or the radius exceeds the network's
// practical reach.
func (r *Resolver) snap(c Coordinate) (u, v graph.NodeID, ratio float64, ok bool) {
	bestDist := math.Inf(1)
	u, v = graph.InvalidNode, graph.InvalidNode

	for step := 1; step <= snapMaxSteps; step++ {
		radius := float64(step) * snapStepDegrees
		min := [2]float64{c.Lng - radius, c.Lat - radius}
		max := [2]float64{c.Lng + radius, c.Lat + radius}
		found := false
		r.tree.Search(min, max, func(_, _ [2]float64, data any) bool {
			found = true
			eb := data.(edgeBounds)
			dist, t := geo.PointToSegmentDist(c.Lat, c.Lng,
				r.g.NodeLat[eb.u], r.g.NodeLon[eb.u],
				r.g.NodeLat[eb.v], r.g.NodeLon[eb.v])
			if dist < bestDist {
				bestDist, u, v, ratio = dist, eb.u, eb.v, t
			}
			return true
		})
		if found {
			break
		}
	}

	if bestDist > maxSnapDistMeters {
		return graph.InvalidNode, graph.InvalidNode, 0, false
	}
	return u, v, ratio, true
}

// FindRoutingStarts resolves both endpoints against the road network.
func (r *Resolver) FindRoutingStarts(start, target Coordinate) PhantomNodes {
	su, sv, sr, sok := r.snap(start)
	tu, tv, tr, tok := r.snap(target)
	p := PhantomNodes{
		StartU: su, StartV: sv, StartRatio: sr,
		TargetU: tu, TargetV: tv, TargetRatio: tr,
		StartCoord: start, TargetCoord: target,
	}
	if !sok {
		p.StartU, p.StartV = graph.InvalidNode, graph.InvalidNode
	}
	if !tok {
		p.TargetU, p.TargetV = graph.InvalidNode, graph.InvalidNode
	}
	return p
}

// NearestNode returns the coordinate of whichever endpoint of the
// nearest edge is closer to c.
func (r *Resolver) NearestNode(c Coordinate) Coordinate {
	u, v, ratio, ok := r.snap(c)
	if !ok {
		return c
	}
	node := u
	if ratio > 0.5 {
		node = v
	}
	return Coordinate{Lat: r.g.NodeLat[node], Lng: r.g.NodeLon[node]}
}

// NumberOfNodes implements the resolver's node-count capability.
func (r *Resolver) NumberOfNodes() uint32 { return r.g.NumNodes }
