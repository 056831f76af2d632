package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/azybler/chroute/pkg/api"
	"github.com/azybler/chroute/pkg/graph"
	"github.com/azybler/chroute/pkg/routing"
)

func main() {
	graphPath := flag.String("graph", "graph.bin", "Path to preprocessed CH overlay binary")
	origPath := flag.String("orig", "", "Path to the base graph binary (default: <graph>.orig)")
	port := flag.Int("port", 8080, "HTTP port")
	corsOrigin := flag.String("cors-origin", "", "CORS allowed origin (empty = same-origin)")
	flag.Parse()

	if *origPath == "" {
		*origPath = *graphPath + ".orig"
	}

	start := time.Now()

	// Load the CH overlay and the base graph — preprocess writes them as
	// two files sharing the same binary format.
	log.Printf("Loading CH overlay from %s...", *graphPath)
	chg, err := graph.ReadBinary(*graphPath)
	if err != nil {
		log.Fatalf("Failed to load CH overlay: %v", err)
	}
	log.Printf("Loading base graph from %s...", *origPath)
	origGraph, err := graph.ReadBinary(*origPath)
	if err != nil {
		log.Fatalf("Failed to load base graph: %v", err)
	}
	log.Printf("Loaded: %d nodes, %d overlay edges, %d base edges",
		chg.NumNodes, chg.NumEdges(), origGraph.NumEdges())

	// Build routing engine.
	log.Println("Building spatial index...")
	engine := routing.NewEngine(chg, origGraph)

	// Reclaim memory from init-time temporaries. Without this, Go's heap
	// retains peak RSS from index construction (GC doubles heap each cycle:
	// 120→240→480→960→1920 MB). This returns unused pages to the OS.
	runtime.GC()
	debug.FreeOSMemory()

	loadTime := time.Since(start)
	log.Printf("Ready in %s", loadTime.Round(time.Millisecond))

	// Setup HTTP server.
	addr := fmt.Sprintf(":%d", *port)
	cfg := api.DefaultConfig(addr)
	cfg.CORSOrigin = *corsOrigin

	stats := api.StatsResponse{
		NumNodes:   chg.NumNodes,
		NumEdges:   origGraph.NumEdges(),
		NumCHEdges: chg.NumEdges(),
	}

	handlers := api.NewHandlers(engine, stats)
	srv := api.NewServer(cfg, handlers)

	if err := api.ListenAndServe(srv); err != nil {
		log.Printf("Server stopped: %v", err)
		os.Exit(1)
	}
}
