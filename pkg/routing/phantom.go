package routing

import "github.com/azybler/chroute/pkg/graph"

// Coordinate is a geographic point.
type Coordinate struct {
	Lat float64
	Lng float64
}

// LatLng is Coordinate under the name the HTTP layer uses.
type LatLng = Coordinate

// PhantomNodes is the result of resolving two coordinates against the
// road network: for each endpoint, the pair of real nodes bounding the
// edge it projects onto and the fractional offset between them.
type PhantomNodes struct {
	StartU, StartV   graph.NodeID
	StartRatio       float64
	TargetU, TargetV graph.NodeID
	TargetRatio      float64

	// StartCoord/TargetCoord are the original query points, retained so
	// the same-edge case can compute a straight-line distance without
	// ever touching the graph.
	StartCoord  Coordinate
	TargetCoord Coordinate
}

// Valid reports whether both endpoints resolved onto a real edge. An
// invalid phantom means the engine must report the query unreachable
// without allocating a heap or touching the graph.
func (p PhantomNodes) Valid() bool {
	return p.StartU != graph.InvalidNode && p.StartV != graph.InvalidNode &&
		p.TargetU != graph.InvalidNode && p.TargetV != graph.InvalidNode
}

// sameEdge reports whether both phantoms project onto the same ordered
// node pair.
func (p PhantomNodes) sameEdge() bool {
	return p.StartU == p.TargetU && p.StartV == p.TargetV
}

// PhantomResolver maps coordinates onto the road network. It is the
// engine's only dependency on spatial search — ingestion and the index
// backing it live entirely outside the query core.
type PhantomResolver interface {
	FindRoutingStarts(start, target Coordinate) PhantomNodes
	NearestNode(c Coordinate) Coordinate
	NumberOfNodes() uint32
}
