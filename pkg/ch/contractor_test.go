package ch

import (
	"math"
	"testing"

	"github.com/paulmach/osm"

	"github.com/azybler/chroute/pkg/graph"
	osmparser "github.com/azybler/chroute/pkg/osm"
)

// buildTestGraph creates a small graph for testing:
//
//	0 ---100--- 1 ---200--- 2
//	|                       |
//	300                    400
//	|                       |
//	3 ---500--- 5 ---600--- 4
//
// All edges are bidirectional. Node indices follow graph.Build's
// first-seen order, so OSM node 60 becomes 4 and OSM node 50 becomes 5.
func buildTestGraph() *graph.Graph {
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			// Row 1: 0-1-2
			{FromNodeID: 10, ToNodeID: 20, Weight: 100, Forward: true, Backward: true},
			{FromNodeID: 20, ToNodeID: 30, Weight: 200, Forward: true, Backward: true},
			// Columns: 0-3, 2-4
			{FromNodeID: 10, ToNodeID: 40, Weight: 300, Forward: true, Backward: true},
			{FromNodeID: 30, ToNodeID: 60, Weight: 400, Forward: true, Backward: true},
			// Row 2: 3-5-4
			{FromNodeID: 40, ToNodeID: 50, Weight: 500, Forward: true, Backward: true},
			{FromNodeID: 50, ToNodeID: 60, Weight: 600, Forward: true, Backward: true},
		},
		NodeLat: map[osm.NodeID]float64{10: 1.0, 20: 1.0, 30: 1.0, 40: 1.1, 50: 1.1, 60: 1.1},
		NodeLon: map[osm.NodeID]float64{10: 103.0, 20: 103.1, 30: 103.2, 40: 103.0, 50: 103.1, 60: 103.2},
	}
	return graph.Build(result)
}

// plainDijkstra runs standard Dijkstra on the original CSR graph, only
// relaxing edges usable in the forward direction.
func plainDijkstra(g *graph.Graph, source, target uint32) uint32 {
	dist := make([]uint32, g.NumNodes)
	for i := range dist {
		dist[i] = math.MaxUint32
	}
	dist[source] = 0

	type item struct {
		node uint32
		dist uint32
	}
	var pq []item
	pq = append(pq, item{source, 0})

	for len(pq) > 0 {
		minIdx := 0
		for i := 1; i < len(pq); i++ {
			if pq[i].dist < pq[minIdx].dist {
				minIdx = i
			}
		}
		cur := pq[minIdx]
		pq[minIdx] = pq[len(pq)-1]
		pq = pq[:len(pq)-1]

		if cur.dist > dist[cur.node] {
			continue
		}
		if cur.node == target {
			return cur.dist
		}

		start, end := g.EdgesFrom(cur.node)
		for e := start; e < end; e++ {
			d := g.Data[e]
			if !d.Forward {
				continue
			}
			v := g.Head[e]
			newDist := cur.dist + d.Weight
			if newDist < dist[v] {
				dist[v] = newDist
				pq = append(pq, item{v, newDist})
			}
		}
	}

	return dist[target]
}

// chDijkstra runs bidirectional Dijkstra on the unified CH overlay: a
// single CSR where each relaxation step filters on Forward for the
// forward search and Backward for the backward search.
func chDijkstra(ch *graph.Graph, source, target uint32) uint32 {
	distFwd := make([]uint32, ch.NumNodes)
	distBwd := make([]uint32, ch.NumNodes)
	for i := range distFwd {
		distFwd[i] = math.MaxUint32
		distBwd[i] = math.MaxUint32
	}
	distFwd[source] = 0
	distBwd[target] = 0

	type item struct {
		node uint32
		dist uint32
	}

	var fwdPQ, bwdPQ []item
	fwdPQ = append(fwdPQ, item{source, 0})
	bwdPQ = append(bwdPQ, item{target, 0})

	mu := uint32(math.MaxUint32)

	popMin := func(pq *[]item) item {
		minIdx := 0
		for i := 1; i < len(*pq); i++ {
			if (*pq)[i].dist < (*pq)[minIdx].dist {
				minIdx = i
			}
		}
		cur := (*pq)[minIdx]
		(*pq)[minIdx] = (*pq)[len(*pq)-1]
		*pq = (*pq)[:len(*pq)-1]
		return cur
	}

	peekMin := func(pq []item) uint32 {
		if len(pq) == 0 {
			return math.MaxUint32
		}
		min := pq[0].dist
		for _, it := range pq[1:] {
			if it.dist < min {
				min = it.dist
			}
		}
		return min
	}

	for len(fwdPQ) > 0 || len(bwdPQ) > 0 {
		if len(fwdPQ) > 0 && peekMin(fwdPQ) < mu {
			cur := popMin(&fwdPQ)
			if cur.dist <= distFwd[cur.node] {
				if distBwd[cur.node] < math.MaxUint32 {
					if cand := cur.dist + distBwd[cur.node]; cand < mu {
						mu = cand
					}
				}
				start, end := ch.EdgesFrom(cur.node)
				for e := start; e < end; e++ {
					d := ch.Data[e]
					if !d.Forward {
						continue
					}
					v := ch.Head[e]
					newDist := cur.dist + d.Weight
					if newDist < distFwd[v] {
						distFwd[v] = newDist
						fwdPQ = append(fwdPQ, item{v, newDist})
					}
				}
			}
		}

		if len(bwdPQ) > 0 && peekMin(bwdPQ) < mu {
			cur := popMin(&bwdPQ)
			if cur.dist <= distBwd[cur.node] {
				if distFwd[cur.node] < math.MaxUint32 {
					if cand := distFwd[cur.node] + cur.dist; cand < mu {
						mu = cand
					}
				}
				start, end := ch.EdgesFrom(cur.node)
				for e := start; e < end; e++ {
					d := ch.Data[e]
					if !d.Backward {
						continue
					}
					v := ch.Head[e]
					newDist := cur.dist + d.Weight
					if newDist < distBwd[v] {
						distBwd[v] = newDist
						bwdPQ = append(bwdPQ, item{v, newDist})
					}
				}
			}
		}

		fwdMin := peekMin(fwdPQ)
		bwdMin := peekMin(bwdPQ)
		if fwdMin >= mu && bwdMin >= mu {
			break
		}
	}

	return mu
}

func TestContractSmallGraph(t *testing.T) {
	g := buildTestGraph()

	if g.NumNodes != 6 {
		t.Fatalf("test graph has %d nodes, want 6", g.NumNodes)
	}

	chg := Contract(g)

	if chg.NumNodes != 6 {
		t.Fatalf("CH has %d nodes, want 6", chg.NumNodes)
	}

	// No overlay edge may loop back to its own source node: an upward
	// edge always joins two nodes of different rank, so a self-loop
	// here would be a contraction bug.
	for u := uint32(0); u < chg.NumNodes; u++ {
		start, end := chg.EdgesFrom(u)
		for e := start; e < end; e++ {
			if chg.Head[e] == u {
				t.Errorf("self-loop at node %d", u)
			}
		}
	}
}

func TestCHCorrectnessAllPairs(t *testing.T) {
	g := buildTestGraph()
	chg := Contract(g)

	for s := uint32(0); s < g.NumNodes; s++ {
		for d := uint32(0); d < g.NumNodes; d++ {
			if s == d {
				continue
			}
			plainDist := plainDijkstra(g, s, d)
			chDist := chDijkstra(chg, s, d)
			if chDist != plainDist {
				t.Errorf("s=%d d=%d: CH=%d, Dijkstra=%d", s, d, chDist, plainDist)
			}
		}
	}
}

func TestContractEmptyGraph(t *testing.T) {
	result := &osmparser.ParseResult{
		Edges:   nil,
		NodeLat: map[osm.NodeID]float64{},
		NodeLon: map[osm.NodeID]float64{},
	}
	g := graph.Build(result)
	chg := Contract(g)
	if chg.NumNodes != 0 {
		t.Errorf("NumNodes=%d, want 0 for empty graph", chg.NumNodes)
	}
}

func TestContractLinearGraph(t *testing.T) {
	// Linear chain: 1 -> 2 -> 3 -> 4 -> 5, all one-way.
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 1, ToNodeID: 2, Weight: 100, Forward: true},
			{FromNodeID: 2, ToNodeID: 3, Weight: 200, Forward: true},
			{FromNodeID: 3, ToNodeID: 4, Weight: 300, Forward: true},
			{FromNodeID: 4, ToNodeID: 5, Weight: 400, Forward: true},
		},
		NodeLat: map[osm.NodeID]float64{1: 1.0, 2: 1.1, 3: 1.2, 4: 1.3, 5: 1.4},
		NodeLon: map[osm.NodeID]float64{1: 103.0, 2: 103.1, 3: 103.2, 4: 103.3, 5: 103.4},
	}
	g := graph.Build(result)
	chg := Contract(g)

	// 0 -> 4 distance = 100+200+300+400 = 1000.
	dist := chDijkstra(chg, 0, 4)
	expected := plainDijkstra(g, 0, 4)
	if dist != expected {
		t.Errorf("linear chain: CH=%d, Dijkstra=%d", dist, expected)
	}
}
