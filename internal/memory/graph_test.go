package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvmarrod/webgraph/internal/storage"
)

func TestGraph_AddNodeIsAtMostOnce(t *testing.T) {
	g := NewGraph()

	first, created := g.AddNode(storage.Node{Key: "http://a.test/", URL: "http://a.test/", Kind: storage.KindSite})
	require.True(t, created)
	require.Equal(t, 1, first.NodeID)

	second, created := g.AddNode(storage.Node{Key: "http://a.test/", URL: "http://a.test/", Kind: storage.KindBrokenSite})
	require.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, storage.KindSite, second.Kind)

	assert.Same(t, first, g.FindNode("http://a.test/"))
	assert.Same(t, first, g.Node(1))
	assert.Nil(t, g.FindNode("http://a.test/missing"))
}

func TestGraph_AddNodeConcurrent(t *testing.T) {
	g := NewGraph()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, created := g.AddNode(storage.Node{Key: "k", URL: "http://a.test/"}); created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	nodes, _ := g.GetStats()
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, nodes)
}

func TestGraph_LinkEdgeIncrementsWeight(t *testing.T) {
	g := NewGraph()
	a, _ := g.AddNode(storage.Node{Key: "a"})
	b, _ := g.AddNode(storage.Node{Key: "b"})

	edge, created, err := g.LinkEdge(a.NodeID, storage.RelationHref, b.NodeID)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 1, edge.Weight)

	edge, created, err = g.LinkEdge(a.NodeID, storage.RelationHref, b.NodeID)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 2, edge.Weight)

	// a different relation is a different edge
	_, created, err = g.LinkEdge(a.NodeID, storage.RelationRedirect, b.NodeID)
	require.NoError(t, err)
	require.True(t, created)

	found, ok := g.FindEdge(a.NodeID, storage.RelationHref, b.NodeID)
	require.True(t, ok)
	assert.Equal(t, 2, found.Weight)

	_, ok = g.FindEdge(b.NodeID, storage.RelationHref, a.NodeID)
	assert.False(t, ok)

	_, edges := g.GetStats()
	assert.Equal(t, 2, edges)
	assert.Len(t, g.OutEdges(a.NodeID), 2)
	assert.Empty(t, g.OutEdges(b.NodeID))
}

func TestGraph_LinkEdgeConcurrentIncrements(t *testing.T) {
	g := NewGraph()
	a, _ := g.AddNode(storage.Node{Key: "a"})
	b, _ := g.AddNode(storage.Node{Key: "b"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = g.LinkEdge(a.NodeID, storage.RelationHref, b.NodeID)
		}()
	}
	wg.Wait()

	edge, ok := g.FindEdge(a.NodeID, storage.RelationHref, b.NodeID)
	require.True(t, ok)
	assert.Equal(t, 50, edge.Weight)
}

func TestGraph_SelfLoop(t *testing.T) {
	g := NewGraph()
	a, _ := g.AddNode(storage.Node{Key: "a", Kind: storage.KindRedirect})

	_, created, err := g.LinkEdge(a.NodeID, storage.RelationRedirect, a.NodeID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []storage.Edge{{EdgeID: 1, FromNodeID: 1, Relation: storage.RelationRedirect, ToNodeID: 1, Weight: 1}}, g.OutEdges(a.NodeID))
}

func TestGraph_LinkEdgeUnknownNode(t *testing.T) {
	g := NewGraph()
	a, _ := g.AddNode(storage.Node{Key: "a"})

	_, _, err := g.LinkEdge(a.NodeID, storage.RelationHref, 42)
	require.Error(t, err)
	_, _, err = g.LinkEdge(42, storage.RelationHref, a.NodeID)
	require.Error(t, err)
}

type recordingSink struct {
	run   storage.CrawlRun
	nodes []storage.Node
	edges []storage.Edge
	err   error
}

func (s *recordingSink) WriteAll(_ context.Context, run storage.CrawlRun, nodes []storage.Node, edges []storage.Edge) error {
	s.run, s.nodes, s.edges = run, nodes, edges
	return s.err
}

func (s *recordingSink) Close() error { return nil }

func TestGraph_Flush(t *testing.T) {
	g := NewGraph()
	a, _ := g.AddNode(storage.Node{Key: "a", URL: "http://a.test/"})
	b, _ := g.AddNode(storage.Node{Key: "b", URL: "http://a.test/b"})
	_, _, err := g.LinkEdge(a.NodeID, storage.RelationHref, b.NodeID)
	require.NoError(t, err)

	sink := &recordingSink{}
	require.NoError(t, g.Flush(context.Background(), sink, storage.CrawlRun{CrawlID: "run"}))
	assert.Equal(t, "run", sink.run.CrawlID)
	require.Len(t, sink.nodes, 2)
	assert.Equal(t, "http://a.test/", sink.nodes[0].URL)
	assert.Equal(t, "http://a.test/b", sink.nodes[1].URL)
	require.Len(t, sink.edges, 1)

	sink.err = errors.New("disk full")
	require.ErrorContains(t, g.Flush(context.Background(), sink, storage.CrawlRun{}), "disk full")
}
