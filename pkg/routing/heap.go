package routing

import "github.com/azybler/chroute/pkg/graph"

// Heap is an addressable min-heap over node IDs keyed by tentative
// distance. Unlike a plain binary heap, a node's key, parent, and
// insertion history stay readable after DeleteMin removes it — the
// opposite search direction needs to ask "was n ever settled, and at
// what distance" during the meet-in-the-middle check.
type Heap struct {
	nodes    []graph.NodeID // heap array
	pos      []int32        // pos[n] = index in nodes, or -1 if not currently queued
	key      []uint32       // key[n], frozen at the value held when n was last touched
	parent   []graph.NodeID
	inserted []bool
	touched  []graph.NodeID // nodes this heap has ever seen, for O(touched) Reset
}

// NewHeap allocates a Heap sized for a graph with numNodes nodes.
func NewHeap(numNodes uint32) *Heap {
	h := &Heap{
		pos:      make([]int32, numNodes),
		key:      make([]uint32, numNodes),
		parent:   make([]graph.NodeID, numNodes),
		inserted: make([]bool, numNodes),
	}
	for i := range h.pos {
		h.pos[i] = -1
	}
	return h
}

// Reset clears the heap for reuse by a new query, touching only the
// nodes this instance actually saw rather than the whole graph.
func (h *Heap) Reset() {
	for _, n := range h.touched {
		h.pos[n] = -1
		h.inserted[n] = false
	}
	h.touched = h.touched[:0]
	h.nodes = h.nodes[:0]
}

// Size returns the number of entries currently queued.
func (h *Heap) Size() int { return len(h.nodes) }

// WasInserted reports whether n has ever been Insert-ed in this heap's
// current life, even if it has since been removed by DeleteMin.
func (h *Heap) WasInserted(n graph.NodeID) bool { return h.inserted[n] }

// InHeap reports whether n is currently queued. This is distinct from
// WasInserted, which never un-sets once a node has been touched.
func (h *Heap) InHeap(n graph.NodeID) bool { return h.pos[n] >= 0 }

// GetKey returns n's key: current if still queued, frozen at removal
// time otherwise.
func (h *Heap) GetKey(n graph.NodeID) uint32 { return h.key[n] }

// GetData returns a mutable reference to n's parent pointer, so callers
// can repoint it after a DecreaseKey without a separate setter method.
func (h *Heap) GetData(n graph.NodeID) *graph.NodeID { return &h.parent[n] }

// Insert adds a fresh node with the given key and parent. The caller
// must not insert a node already present.
func (h *Heap) Insert(n graph.NodeID, key uint32, parent graph.NodeID) {
	if !h.inserted[n] {
		h.touched = append(h.touched, n)
	}
	h.inserted[n] = true
	h.key[n] = key
	h.parent[n] = parent
	h.nodes = append(h.nodes, n)
	h.pos[n] = int32(len(h.nodes) - 1)
	h.siftUp(len(h.nodes) - 1)
}

// DecreaseKey lowers n's key. The parent is updated separately by the
// caller through GetData.
func (h *Heap) DecreaseKey(n graph.NodeID, key uint32) {
	h.key[n] = key
	h.siftUp(int(h.pos[n]))
}

// DeleteMin removes and returns the minimum-key node. Its inserted
// flag, key, and parent remain readable afterward.
func (h *Heap) DeleteMin() (graph.NodeID, uint32) {
	n := h.nodes[0]
	key := h.key[n]
	last := len(h.nodes) - 1
	h.nodes[0] = h.nodes[last]
	h.nodes = h.nodes[:last]
	h.pos[n] = -1
	if last > 0 {
		h.pos[h.nodes[0]] = 0
		h.siftDown(0)
	}
	return n, key
}

// DeleteAll empties the queue. Keys, parents, and the inserted log are
// untouched, so WasInserted/GetKey/GetData keep answering for every
// node this heap has seen — Reset is the only thing that forgets them.
func (h *Heap) DeleteAll() {
	for _, n := range h.nodes {
		h.pos[n] = -1
	}
	h.nodes = h.nodes[:0]
}

func (h *Heap) siftUp(i int) {
	n := h.nodes[i]
	k := h.key[n]
	for i > 0 {
		parent := (i - 1) / 2
		pn := h.nodes[parent]
		if k >= h.key[pn] {
			break
		}
		h.nodes[i] = pn
		h.pos[pn] = int32(i)
		i = parent
	}
	h.nodes[i] = n
	h.pos[n] = int32(i)
}

func (h *Heap) siftDown(i int) {
	count := len(h.nodes)
	n := h.nodes[i]
	k := h.key[n]
	for {
		child := 2*i + 1
		if child >= count {
			break
		}
		if right := child + 1; right < count && h.key[h.nodes[right]] < h.key[h.nodes[child]] {
			child = right
		}
		if k <= h.key[h.nodes[child]] {
			break
		}
		h.nodes[i] = h.nodes[child]
		h.pos[h.nodes[i]] = int32(i)
		i = child
	}
	h.nodes[i] = n
	h.pos[n] = int32(i)
}
