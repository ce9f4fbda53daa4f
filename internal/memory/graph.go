package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alvmarrod/webgraph/internal/storage"
	"github.com/sirupsen/logrus"
)

type edgeKey struct {
	from     int
	relation storage.Relation
	to       int
}

// Graph holds the deduplicated site graph in memory.
// Nodes are unique per canonical key and edges per (from, relation, to).
type Graph struct {
	nodes       map[string]*storage.Node // canonical key -> node
	nodesById   map[int]*storage.Node    // nodeID -> node
	edges       map[edgeKey]*storage.Edge
	outgoing    map[int][]*storage.Edge // nodeID -> edges in creation order
	nodeOrder   []*storage.Node
	edgeOrder   []*storage.Edge
	nodeCounter int
	edgeCounter int
	mu          sync.RWMutex
}

// NewGraph creates an empty in-memory graph
func NewGraph() *Graph {
	return &Graph{
		nodes:     make(map[string]*storage.Node),
		nodesById: make(map[int]*storage.Node),
		edges:     make(map[edgeKey]*storage.Edge),
		outgoing:  make(map[int][]*storage.Edge),
	}
}

// FindNode returns the node stored under key, or nil
func (g *Graph) FindNode(key string) *storage.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[key]
}

// Node returns the node with the given ID, or nil
func (g *Graph) Node(id int) *storage.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodesById[id]
}

// AddNode inserts node under node.Key unless a node with that key already exists.
// It returns the stored node and whether this call created it; a losing caller
// receives the winner. Stored nodes must not be modified.
func (g *Graph) AddNode(node storage.Node) (*storage.Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, exists := g.nodes[node.Key]; exists {
		return existing, false
	}

	g.nodeCounter++
	stored := node
	stored.NodeID = g.nodeCounter
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	g.nodes[stored.Key] = &stored
	g.nodesById[stored.NodeID] = &stored
	g.nodeOrder = append(g.nodeOrder, &stored)

	return &stored, true
}

// FindEdge returns a copy of the edge for the triple and whether it exists
func (g *Graph) FindEdge(fromID int, relation storage.Relation, toID int) (storage.Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if edge, exists := g.edges[edgeKey{fromID, relation, toID}]; exists {
		return *edge, true
	}
	return storage.Edge{}, false
}

// LinkEdge creates the edge with weight 1 or increments the weight of the
// existing one. It returns the edge after the update and whether it was created.
func (g *Graph) LinkEdge(fromID int, relation storage.Relation, toID int) (storage.Edge, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodesById[fromID]; !exists {
		return storage.Edge{}, false, fmt.Errorf("source node %d not found", fromID)
	}
	if _, exists := g.nodesById[toID]; !exists {
		return storage.Edge{}, false, fmt.Errorf("target node %d not found", toID)
	}

	key := edgeKey{fromID, relation, toID}
	if edge, exists := g.edges[key]; exists {
		edge.Weight++
		return *edge, false, nil
	}

	g.edgeCounter++
	edge := &storage.Edge{
		EdgeID:     g.edgeCounter,
		FromNodeID: fromID,
		Relation:   relation,
		ToNodeID:   toID,
		Weight:     1,
	}
	g.edges[key] = edge
	g.outgoing[fromID] = append(g.outgoing[fromID], edge)
	g.edgeOrder = append(g.edgeOrder, edge)

	return *edge, true, nil
}

// OutEdges returns a snapshot of the edges leaving a node
func (g *Graph) OutEdges(nodeID int) []storage.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]storage.Edge, 0, len(g.outgoing[nodeID]))
	for _, edge := range g.outgoing[nodeID] {
		out = append(out, *edge)
	}
	return out
}

// Nodes returns copies of all nodes in creation order
func (g *Graph) Nodes() []storage.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]storage.Node, 0, len(g.nodeOrder))
	for _, node := range g.nodeOrder {
		nodes = append(nodes, *node)
	}
	return nodes
}

// Edges returns copies of all edges in creation order
func (g *Graph) Edges() []storage.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edges := make([]storage.Edge, 0, len(g.edgeOrder))
	for _, edge := range g.edgeOrder {
		edges = append(edges, *edge)
	}
	return edges
}

// GetStats returns current graph statistics
func (g *Graph) GetStats() (nodeCount, edgeCount int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.nodes), len(g.edges)
}

// Flush writes the whole graph to sink
func (g *Graph) Flush(ctx context.Context, sink storage.GraphSink, run storage.CrawlRun) error {
	startTime := time.Now()
	logrus.Info("Starting flush of site graph...")

	nodes := g.Nodes()
	edges := g.Edges()
	if err := sink.WriteAll(ctx, run, nodes, edges); err != nil {
		return fmt.Errorf("failed to flush graph: %w", err)
	}

	logrus.Infof("Flush complete: %d nodes, %d edges written in %v", len(nodes), len(edges), time.Since(startTime))
	return nil
}
