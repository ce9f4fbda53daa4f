package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/alvmarrod/webgraph/internal/content"
	"github.com/alvmarrod/webgraph/internal/memory"
	"github.com/alvmarrod/webgraph/internal/storage"
)

// DefaultMaxRedirectionDepth bounds redirect chains when Options leaves it unset
const DefaultMaxRedirectionDepth = 10

// ErrInvalidSeed is returned when the crawl has no seed URL
var ErrInvalidSeed = errors.New("invalid seed URL")

// Options controls a crawl
type Options struct {
	MaxDepth            int
	MaxRedirectionDepth int
	Workers             int
}

// Recorder receives crawl events; metrics.Tracker implements it
type Recorder interface {
	RecordProbe(failed bool, duration time.Duration)
	RecordFetch(duration time.Duration)
	RecordNode(kind storage.NodeKind)
	RecordEdge(relation storage.Relation, created bool)
	RecordRewalk()
	RecordRedirectCut()
}

// Crawler walks a site depth-first and folds everything it finds into a Graph
type Crawler struct {
	opts      Options
	graph     *memory.Graph
	transport Transport
	scanner   ContentScanner
	recorder  Recorder
	log       *logrus.Logger
	sem       *semaphore.Weighted
	pages     singleflight.Group
}

// visitRequest is the immutable context of one visit
type visitRequest struct {
	parent   *storage.Node
	relation storage.Relation
	target   CanonicalURL
	depth    int
	// hops counts consecutive redirects leading to this visit
	hops int
}

// page is the outcome of probing and scanning a URL that has no node yet
type page struct {
	probe ProbeResult
	info  content.Page
}

// NewCrawler creates a crawler; a nil recorder disables metrics
func NewCrawler(opts Options, graph *memory.Graph, transport Transport, scanner ContentScanner, recorder Recorder, log *logrus.Logger) *Crawler {
	if opts.MaxRedirectionDepth <= 0 {
		opts.MaxRedirectionDepth = DefaultMaxRedirectionDepth
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Crawler{
		opts:      opts,
		graph:     graph,
		transport: transport,
		scanner:   scanner,
		recorder:  recorder,
		log:       log,
		sem:       semaphore.NewWeighted(int64(opts.Workers)),
	}
}

// Crawl visits seedURL with the configured depth budget and returns the graph's
// nodes and edges. Per-URL failures become broken nodes; only cancellation of
// ctx is reported as an error, in which case the partial graph is returned.
func (c *Crawler) Crawl(ctx context.Context, seedURL string) ([]storage.Node, []storage.Edge, error) {
	seedURL = strings.TrimSpace(seedURL)
	if seedURL == "" {
		return nil, nil, ErrInvalidSeed
	}
	if !schemePattern.MatchString(seedURL) {
		seedURL = "http://" + seedURL
	}
	seed := Sanitize(seedURL, seedURL)

	c.log.WithFields(logrus.Fields{
		"seed":      seed.String(),
		"max_depth": c.opts.MaxDepth,
		"workers":   c.opts.Workers,
	}).Info("Starting crawl")

	c.visit(ctx, visitRequest{target: seed, depth: c.opts.MaxDepth})

	nodes, edges := c.graph.GetStats()
	c.log.Infof("Crawl finished: %d nodes, %d edges", nodes, edges)

	if err := ctx.Err(); err != nil {
		return c.graph.Nodes(), c.graph.Edges(), fmt.Errorf("crawl interrupted: %w", err)
	}
	return c.graph.Nodes(), c.graph.Edges(), nil
}

func (c *Crawler) visit(ctx context.Context, req visitRequest) {
	if ctx.Err() != nil {
		return
	}
	log := c.log.WithFields(logrus.Fields{"url": req.target.String(), "depth": req.depth})

	if existing := c.graph.FindNode(req.target.Key()); existing != nil {
		log.Debug(c.indent(req.depth) + "already exists")
		c.revisit(ctx, req, existing)
		return
	}

	log.Debug(c.indent(req.depth) + "fetching data")
	p, err := c.inspect(ctx, req.target)
	if err != nil {
		return
	}

	node, created := c.graph.AddNode(p.node(req.target))
	if !created {
		// another branch created it while we were probing
		c.revisit(ctx, req, node)
		return
	}
	c.recorder.RecordNode(node.Kind)
	if req.parent != nil {
		relation := req.relation
		if node.Kind.Broken() {
			relation = relation.Broken()
		}
		c.link(req.parent, relation, node)
	}

	switch node.Kind {
	case storage.KindSite:
		c.followLinks(ctx, req, node, p.info)
	case storage.KindRedirect:
		if p.probe.Status == ProbeRedirect {
			c.followRedirect(ctx, req, node, p.probe.Location)
		} else {
			c.followMetaRedirect(ctx, req, node, p.info.MetaRedirect)
		}
	}
}

// inspect probes and, for HTML pages, scans the target. Concurrent callers for
// the same identity share one result.
func (c *Crawler) inspect(ctx context.Context, target CanonicalURL) (page, error) {
	v, err, _ := c.pages.Do(target.Key(), func() (any, error) {
		result, err := c.probe(ctx, target)
		if err != nil {
			return page{}, err
		}
		p := page{probe: result}
		if result.Status == ProbeOK {
			p.info = c.scan(ctx, target, result.ContentType)
		}
		return p, nil
	})
	if err != nil {
		return page{}, err
	}
	return v.(page), nil
}

// node builds the graph node for the outcome of inspect
func (p page) node(target CanonicalURL) storage.Node {
	n := storage.Node{
		Key:    target.Key(),
		URL:    target.Path,
		Params: target.Params,
	}
	switch p.probe.Status {
	case ProbeBroken:
		n.Kind = storage.KindBrokenSite
	case ProbeRedirect:
		n.Kind = storage.KindRedirect
		if !p.probe.HasLocation {
			n.Kind = storage.KindBrokenRedirect
		}
	default:
		n.ContentType = p.probe.ContentType
		n.Kind = storage.KindSite
		if p.info.HasRedirect {
			n.Kind = storage.KindRedirect
		} else if p.info.HasTitle {
			n.Title = p.info.Title
		}
	}
	return n
}

// revisit links to a node that already exists, keeping the relation as
// discovered, and with depth left re-walks its known outgoing edges. Every
// re-walked target exists already, so the re-walk does no I/O and runs inline.
func (c *Crawler) revisit(ctx context.Context, req visitRequest, node *storage.Node) {
	if req.parent != nil {
		c.link(req.parent, req.relation, node)
	}
	if req.depth <= 0 {
		return
	}
	c.recorder.RecordRewalk()

	edges := c.graph.OutEdges(node.NodeID)
	children := make([]visitRequest, 0, len(edges))
	for _, edge := range edges {
		hops := 0
		if edge.Relation == storage.RelationRedirect {
			hops = req.hops + 1
		}
		if hops >= c.opts.MaxRedirectionDepth {
			c.recorder.RecordRedirectCut()
			continue
		}
		target := c.graph.Node(edge.ToNodeID)
		if target == nil {
			continue
		}
		children = append(children, visitRequest{
			target: CanonicalURL{Path: target.URL, Params: target.Params},
			depth:  req.depth - 1,
			hops:   hops,
		})
	}
	for _, child := range children {
		c.visit(ctx, child)
	}
}

// followRedirect chases an HTTP redirect at the same depth. A redirect that
// resolves to its own source becomes a self-loop and is not followed.
func (c *Crawler) followRedirect(ctx context.Context, req visitRequest, node *storage.Node, location string) {
	target := Sanitize(req.target.Path, location)
	if target.Equal(req.target) {
		c.link(node, storage.RelationRedirect, node)
		return
	}
	if req.hops >= c.opts.MaxRedirectionDepth {
		c.log.WithField("url", req.target.String()).Debug("redirect chain too long, not following")
		c.recorder.RecordRedirectCut()
		return
	}
	c.visit(ctx, visitRequest{
		parent:   node,
		relation: storage.RelationRedirect,
		target:   target,
		depth:    req.depth,
		hops:     req.hops + 1,
	})
}

// followMetaRedirect chases a meta refresh target at the same depth
func (c *Crawler) followMetaRedirect(ctx context.Context, req visitRequest, node *storage.Node, location string) {
	hops := req.hops + 1
	if hops >= c.opts.MaxRedirectionDepth {
		c.log.WithField("url", req.target.String()).Debug("redirect chain too long, not following")
		c.recorder.RecordRedirectCut()
		return
	}
	c.visit(ctx, visitRequest{
		parent:   node,
		relation: storage.RelationRedirect,
		target:   Sanitize(req.target.Path, location),
		depth:    req.depth,
		hops:     hops,
	})
}

// followLinks visits every anchor of a page one level deeper
func (c *Crawler) followLinks(ctx context.Context, req visitRequest, node *storage.Node, info content.Page) {
	if req.depth <= 0 {
		return
	}
	var children []visitRequest
	for link := range info.Links() {
		child := visitRequest{
			parent:   node,
			relation: storage.RelationHref,
			target:   Sanitize(req.target.Path, link),
			depth:    req.depth - 1,
		}
		if c.opts.Workers == 1 {
			c.visit(ctx, child)
			continue
		}
		children = append(children, child)
	}
	c.visitAll(ctx, children)
}

// visitAll runs the visits in order with one worker, concurrently otherwise
func (c *Crawler) visitAll(ctx context.Context, reqs []visitRequest) {
	if c.opts.Workers == 1 {
		for _, req := range reqs {
			c.visit(ctx, req)
		}
		return
	}
	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.visit(ctx, req)
		}()
	}
	wg.Wait()
}

// link records one discovery of parent -> target
func (c *Crawler) link(parent *storage.Node, relation storage.Relation, target *storage.Node) {
	_, created, err := c.graph.LinkEdge(parent.NodeID, relation, target.NodeID)
	if err != nil {
		c.log.Warnf("Failed to link %s -> %s: %v", parent.URL, target.URL, err)
		return
	}
	c.recorder.RecordEdge(relation, created)
}

func (c *Crawler) acquire(ctx context.Context) error {
	return c.sem.Acquire(ctx, 1)
}

func (c *Crawler) release() {
	c.sem.Release(1)
}

// indent prefixes log lines so the output mirrors the crawl tree
func (c *Crawler) indent(depth int) string {
	if depth >= c.opts.MaxDepth {
		return ""
	}
	return strings.Repeat("  ", c.opts.MaxDepth-depth)
}

type nopRecorder struct{}

func (nopRecorder) RecordProbe(bool, time.Duration)   {}
func (nopRecorder) RecordFetch(time.Duration)         {}
func (nopRecorder) RecordNode(storage.NodeKind)       {}
func (nopRecorder) RecordEdge(storage.Relation, bool) {}
func (nopRecorder) RecordRewalk()                     {}
func (nopRecorder) RecordRedirectCut()                {}
