// Package graph defines the CSR multigraph that underlies both the raw
// road network parsed from OSM and the Contraction Hierarchies overlay
// produced by pkg/ch. A single representation serves both stages: every
// edge carries a Forward/Backward usability pair plus an optional
// Shortcut/Middle annotation, so the routing engine's bidirectional
// search can walk one adjacency list per node regardless of direction.
package graph

// NodeID identifies a graph vertex. The zero value is a valid node;
// InvalidNode is the dedicated sentinel for "no such node".
type NodeID = uint32

// EdgeID identifies a directed adjacency-list entry.
type EdgeID = uint32

const (
	// InvalidNode marks the absence of a node, e.g. an unresolved phantom endpoint.
	InvalidNode NodeID = ^NodeID(0)
	// InvalidEdge marks the absence of an edge, e.g. a failed FindEdge.
	InvalidEdge EdgeID = ^EdgeID(0)
)

// EdgeData is the per-edge payload described in spec §3: a positive
// weight, independent forward/backward usability flags, and — for
// edges synthesized during contraction — the shortcut's middle node.
type EdgeData struct {
	Weight   uint32
	Forward  bool
	Backward bool
	Shortcut bool
	Middle   NodeID // only meaningful when Shortcut is true
}

// Graph is a directed multigraph in CSR (Compressed Sparse Row) form.
//
// Every physical road segment contributes two adjacency-list entries:
// one rooted at its source node (Forward/Backward as tagged) and a
// mirrored one rooted at its target node with the flags swapped. This
// lets both the forward and the backward search walk "outgoing" edges
// from any node and simply filter on the flag that matches their
// direction (spec §4.3) — no separate backward graph is needed.
type Graph struct {
	NumNodes uint32
	FirstOut []uint32 // len NumNodes+1; FirstOut[i]..FirstOut[i+1] are edge indices from node i
	Head     []NodeID // len NumEdges; target node of each edge
	Data     []EdgeData

	NodeLat []float64
	NodeLon []float64

	// Geometry: intermediate shape points for rendering, indexed in
	// parallel with Head/Data. Present only on non-shortcut edges of
	// the base graph handed to ch.Contract; nil once a graph carries
	// no geometry, e.g. graphs built directly in tests.
	GeoFirstOut []uint32
	GeoShapeLat []float64
	GeoShapeLon []float64
}

// NumEdges returns the total number of directed adjacency-list entries.
func (g *Graph) NumEdges() int { return len(g.Head) }

// NumberOfNodes implements the node-count capability shared by C2/C3.
func (g *Graph) NumberOfNodes() uint32 { return g.NumNodes }

// BeginEdges returns the first edge index of node n's outgoing list.
func (g *Graph) BeginEdges(n NodeID) EdgeID { return g.FirstOut[n] }

// EndEdges returns one past the last edge index of node n's outgoing list.
func (g *Graph) EndEdges(n NodeID) EdgeID { return g.FirstOut[n+1] }

// EdgesFrom is a convenience pair of BeginEdges/EndEdges.
func (g *Graph) EdgesFrom(n NodeID) (start, end EdgeID) {
	return g.FirstOut[n], g.FirstOut[n+1]
}

// Target returns the head node of edge e.
func (g *Graph) Target(e EdgeID) NodeID { return g.Head[e] }

// EdgeDataAt returns the payload of edge e.
func (g *Graph) EdgeDataAt(e EdgeID) EdgeData { return g.Data[e] }

// FindEdge returns the minimum-weight edge from u to v, or InvalidEdge
// if none exists. Parallel edges between the same ordered pair are
// resolved by taking the lightest (spec §3 invariant 3).
func (g *Graph) FindEdge(u, v NodeID) EdgeID {
	best := InvalidEdge
	bestWeight := ^uint32(0)
	start, end := g.FirstOut[u], g.FirstOut[u+1]
	for e := start; e < end; e++ {
		if g.Head[e] == v && g.Data[e].Weight < bestWeight {
			best = e
			bestWeight = g.Data[e].Weight
		}
	}
	return best
}
