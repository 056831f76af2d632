package routing

import "github.com/azybler/chroute/pkg/graph"

// GraphView is the small read-only capability set the search and the
// shortcut unpacker need from a contracted (or original) graph. Both
// *graph.Graph and any test double implementing these six methods
// satisfy it.
type GraphView interface {
	BeginEdges(n graph.NodeID) graph.EdgeID
	EndEdges(n graph.NodeID) graph.EdgeID
	Target(e graph.EdgeID) graph.NodeID
	EdgeDataAt(e graph.EdgeID) graph.EdgeData
	FindEdge(u, v graph.NodeID) graph.EdgeID
	NumberOfNodes() uint32
}

// findDirectedEdge scans u's outgoing entries for the minimum-weight
// one targeting v that is usable in the requested direction (Forward
// when fwd is true, Backward otherwise).
func findDirectedEdge(g GraphView, u, v graph.NodeID, fwd bool) (graph.EdgeID, bool) {
	best := graph.InvalidEdge
	bestWeight := ^uint32(0)
	for e := g.BeginEdges(u); e < g.EndEdges(u); e++ {
		if g.Target(e) != v {
			continue
		}
		d := g.EdgeDataAt(e)
		usable := d.Forward
		if !fwd {
			usable = d.Backward
		}
		if !usable {
			continue
		}
		if d.Weight < bestWeight {
			best, bestWeight = e, d.Weight
		}
	}
	return best, best != graph.InvalidEdge
}
