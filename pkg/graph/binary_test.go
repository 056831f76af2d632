package graph_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/osm"

	"github.com/azybler/chroute/pkg/ch"
	"github.com/azybler/chroute/pkg/graph"
	osmparser "github.com/azybler/chroute/pkg/osm"
)

func buildTestCH(t *testing.T) *graph.Graph {
	t.Helper()
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 10, ToNodeID: 20, Weight: 100, Forward: true, Backward: true},
			{FromNodeID: 20, ToNodeID: 30, Weight: 200, Forward: true, Backward: true},
			{FromNodeID: 10, ToNodeID: 40, Weight: 300, Forward: true, Backward: true},
		},
		NodeLat: map[osm.NodeID]float64{10: 1.0, 20: 1.1, 30: 1.2, 40: 1.3},
		NodeLon: map[osm.NodeID]float64{10: 103.0, 20: 103.1, 30: 103.2, 40: 103.3},
	}
	g := graph.Build(result)
	return ch.Contract(g)
}

func TestBinaryRoundTrip(t *testing.T) {
	original := buildTestCH(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "test.graph.bin")

	if err := graph.WriteBinary(path, original); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}

	loaded, err := graph.ReadBinary(path)
	if err != nil {
		t.Fatalf("ReadBinary: %v", err)
	}

	if loaded.NumNodes != original.NumNodes {
		t.Errorf("NumNodes: got %d, want %d", loaded.NumNodes, original.NumNodes)
	}

	for i := uint32(0); i < original.NumNodes; i++ {
		if loaded.NodeLat[i] != original.NodeLat[i] {
			t.Errorf("NodeLat[%d]: got %f, want %f", i, loaded.NodeLat[i], original.NodeLat[i])
		}
	}

	if len(loaded.Head) != len(original.Head) {
		t.Fatalf("Head length: got %d, want %d", len(loaded.Head), len(original.Head))
	}
	for i := range original.Head {
		if loaded.Head[i] != original.Head[i] {
			t.Errorf("Head[%d]: got %d, want %d", i, loaded.Head[i], original.Head[i])
		}
		if loaded.Data[i] != original.Data[i] {
			t.Errorf("Data[%d]: got %+v, want %+v", i, loaded.Data[i], original.Data[i])
		}
	}

	if len(loaded.FirstOut) != len(original.FirstOut) {
		t.Fatalf("FirstOut length: got %d, want %d", len(loaded.FirstOut), len(original.FirstOut))
	}
}

func TestBinaryInvalidMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.graph.bin")
	os.WriteFile(path, []byte("NOT_CHROUTE_HEADER_BLAH_BLAH_BLAH_MORE_DATA"), 0644)

	_, err := graph.ReadBinary(path)
	if err == nil {
		t.Fatal("expected error for invalid magic bytes")
	}
}

func TestBinaryTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "truncated.graph.bin")
	os.WriteFile(path, []byte("CHROUTE1"), 0644)

	_, err := graph.ReadBinary(path)
	if err == nil {
		t.Fatal("expected error for truncated file")
	}
}
