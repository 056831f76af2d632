package routing

import "github.com/azybler/chroute/pkg/graph"

// maxUnpackDepth bounds the shortcut recursion. A real contraction
// hierarchy never nests anywhere close to this; tripping it means the
// overlay is corrupt.
const maxUnpackDepth = 100

// unpackEdge expands the overlay edge (u,v) into the original-graph
// node sequence it represents, appending to out. It tries the
// minimum-weight forward edge u→v first; failing that, the
// minimum-weight backward edge v→u, read in reverse — the overlay only
// stores each upward edge once, rooted at its lower-rank endpoint, so
// one of the two always exists for a genuine contraction output. A
// shortcut recurses through its middle node; an original edge just
// appends v.
func unpackEdge(g GraphView, u, v graph.NodeID, out *[]graph.NodeID) {
	unpackEdgeDepth(g, u, v, out, 0)
}

func unpackEdgeDepth(g GraphView, u, v graph.NodeID, out *[]graph.NodeID, depth int) {
	if depth > maxUnpackDepth {
		panic("routing: unpackEdge recursion depth exceeded — corrupt shortcut chain")
	}

	eid, ok := findDirectedEdge(g, u, v, true)
	if !ok {
		eid, ok = findDirectedEdge(g, v, u, false)
		if !ok {
			panic("routing: no edge between consecutive path nodes")
		}
	}

	d := g.EdgeDataAt(eid)
	if !d.Shortcut {
		*out = append(*out, v)
		return
	}
	unpackEdgeDepth(g, u, d.Middle, out, depth+1)
	unpackEdgeDepth(g, d.Middle, v, out, depth+1)
}

// unpackPath expands a packed overlay path (node IDs, possibly
// separated by shortcut edges) into the full original-graph node
// sequence.
func unpackPath(g GraphView, packed []graph.NodeID) []graph.NodeID {
	if len(packed) == 0 {
		return nil
	}
	out := make([]graph.NodeID, 0, len(packed)*2)
	out = append(out, packed[0])
	for i := 0; i+1 < len(packed); i++ {
		unpackEdge(g, packed[i], packed[i+1], &out)
	}
	return out
}
