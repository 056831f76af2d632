package graph

import (
	"sort"

	"github.com/paulmach/osm"

	osmparser "github.com/azybler/chroute/pkg/osm"
)

// Build creates a CSR Graph from parsed OSM way segments. Each parsed
// segment becomes two mirrored adjacency-list entries (§3: an edge's
// forward/backward flags are independent, so a single physical segment
// is visible as an outgoing edge from both of its endpoints — see the
// Graph doc comment for why).
func Build(result *osmparser.ParseResult) *Graph {
	edges := result.Edges
	if len(edges) == 0 {
		return &Graph{FirstOut: []uint32{0}}
	}

	// Step 1: Collect all unique node IDs and build a compact mapping.
	nodeSet := make(map[osm.NodeID]uint32)
	var nodeIDs []osm.NodeID

	addNode := func(id osm.NodeID) uint32 {
		if idx, ok := nodeSet[id]; ok {
			return idx
		}
		idx := uint32(len(nodeIDs))
		nodeSet[id] = idx
		nodeIDs = append(nodeIDs, id)
		return idx
	}

	for i := range edges {
		addNode(edges[i].FromNodeID)
		addNode(edges[i].ToNodeID)
	}

	numNodes := uint32(len(nodeIDs))

	// Step 2: Expand each parsed segment into its two mirrored CSR entries.
	type compactEdge struct {
		from, to  uint32
		weight    uint32
		forward   bool
		backward  bool
		shapeLats []float64
		shapeLons []float64
	}

	compact := make([]compactEdge, 0, len(edges)*2)
	for _, e := range edges {
		from, to := nodeSet[e.FromNodeID], nodeSet[e.ToNodeID]
		compact = append(compact,
			compactEdge{from: from, to: to, weight: e.Weight, forward: e.Forward, backward: e.Backward,
				shapeLats: e.ShapeLats, shapeLons: e.ShapeLons},
			compactEdge{from: to, to: from, weight: e.Weight, forward: e.Backward, backward: e.Forward,
				shapeLats: reverseFloats(e.ShapeLats), shapeLons: reverseFloats(e.ShapeLons)},
		)
	}

	// Step 3: Sort by source node so CSR construction is a single pass.
	sort.Slice(compact, func(i, j int) bool {
		if compact[i].from != compact[j].from {
			return compact[i].from < compact[j].from
		}
		return compact[i].to < compact[j].to
	})

	// Step 4: Build CSR arrays.
	numEdges := uint32(len(compact))
	firstOut := make([]uint32, numNodes+1)
	head := make([]uint32, numEdges)
	data := make([]EdgeData, numEdges)

	geoFirstOut := make([]uint32, numEdges+1)
	var geoShapeLat, geoShapeLon []float64

	for i, e := range compact {
		head[i] = e.to
		data[i] = EdgeData{Weight: e.weight, Forward: e.forward, Backward: e.backward, Middle: InvalidNode}
		geoFirstOut[i] = uint32(len(geoShapeLat))
		geoShapeLat = append(geoShapeLat, e.shapeLats...)
		geoShapeLon = append(geoShapeLon, e.shapeLons...)
		firstOut[e.from+1]++
	}
	geoFirstOut[numEdges] = uint32(len(geoShapeLat))

	for i := uint32(1); i <= numNodes; i++ {
		firstOut[i] += firstOut[i-1]
	}

	// Step 5: Populate node coordinates.
	nodeLat := make([]float64, numNodes)
	nodeLon := make([]float64, numNodes)
	for id, idx := range nodeSet {
		nodeLat[idx] = result.NodeLat[id]
		nodeLon[idx] = result.NodeLon[id]
	}

	return &Graph{
		NumNodes:    numNodes,
		FirstOut:    firstOut,
		Head:        head,
		Data:        data,
		NodeLat:     nodeLat,
		NodeLon:     nodeLon,
		GeoFirstOut: geoFirstOut,
		GeoShapeLat: geoShapeLat,
		GeoShapeLon: geoShapeLon,
	}
}

func reverseFloats(in []float64) []float64 {
	if len(in) == 0 {
		return nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
