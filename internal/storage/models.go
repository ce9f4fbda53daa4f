package storage

import (
	"context"
	"fmt"
	"time"
)

// NodeKind classifies a node in the site graph
type NodeKind int

const (
	KindSite NodeKind = iota + 1
	KindBrokenSite
	KindRedirect
	KindBrokenRedirect
)

// String returns the label used in logs and persisted graphs
func (k NodeKind) String() string {
	switch k {
	case KindSite:
		return "site"
	case KindBrokenSite:
		return "broken-site"
	case KindRedirect:
		return "redirect"
	case KindBrokenRedirect:
		return "broken-redirect"
	}
	return "unknown"
}

// MarshalText renders the kind label in JSON documents
func (k NodeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind label
func (k *NodeKind) UnmarshalText(text []byte) error {
	for _, kind := range []NodeKind{KindSite, KindBrokenSite, KindRedirect, KindBrokenRedirect} {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown node kind %q", text)
}

// Broken reports whether the node could not be reached or resolved
func (k NodeKind) Broken() bool {
	return k == KindBrokenSite || k == KindBrokenRedirect
}

// Relation labels an edge between two nodes
type Relation int

const (
	RelationHref Relation = iota + 1
	RelationRedirect
	RelationBrokenHref
	RelationBrokenRedirect
)

// String returns the edge label
func (r Relation) String() string {
	switch r {
	case RelationHref:
		return "href"
	case RelationRedirect:
		return "redirect"
	case RelationBrokenHref:
		return "broken-href"
	case RelationBrokenRedirect:
		return "broken-redirect"
	}
	return "unknown"
}

// MarshalText renders the relation label in JSON documents
func (r Relation) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a relation label
func (r *Relation) UnmarshalText(text []byte) error {
	for _, rel := range []Relation{RelationHref, RelationRedirect, RelationBrokenHref, RelationBrokenRedirect} {
		if rel.String() == string(text) {
			*r = rel
			return nil
		}
	}
	return fmt.Errorf("unknown relation %q", text)
}

// Broken maps a relation to its "broken-" counterpart
func (r Relation) Broken() Relation {
	switch r {
	case RelationHref:
		return RelationBrokenHref
	case RelationRedirect:
		return RelationBrokenRedirect
	}
	return r
}

// Node represents a crawled URL in the site graph
type Node struct {
	NodeID      int               `json:"id"`
	Kind        NodeKind          `json:"kind"`
	Key         string            `json:"-"`
	URL         string            `json:"url"`
	Params      map[string]string `json:"params,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Title       string            `json:"title,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Edge represents a directed, weighted relation between two nodes
type Edge struct {
	EdgeID     int      `json:"id"`
	FromNodeID int      `json:"from"`
	Relation   Relation `json:"relation"`
	ToNodeID   int      `json:"to"`
	Weight     int      `json:"weight"`
}

// CrawlRun describes one invocation of the crawler
type CrawlRun struct {
	CrawlID           string    `json:"crawl_id"`
	SeedURL           string    `json:"seed_url"`
	MaxDepth          int       `json:"max_depth"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	TerminationReason string    `json:"termination_reason"`
}

// Metrics tracks crawl statistics for export on exit
type Metrics struct {
	StartTime         time.Time      `json:"start_time"`
	EndTime           time.Time      `json:"end_time"`
	NodesCreated      int            `json:"nodes_created"`
	NodesByKind       map[string]int `json:"nodes_by_kind"`
	EdgesCreated      int            `json:"edges_created"`
	EdgesReinforced   int            `json:"edges_reinforced"`
	ProbesIssued      int            `json:"probes_issued"`
	ProbesFailed      int            `json:"probes_failed"`
	Rewalks           int            `json:"rewalks"`
	RedirectChainsCut int            `json:"redirect_chains_cut"`
	TotalFetchTimeMs  int64          `json:"total_fetch_time_ms"`
	AvgFetchTimeMs    int64          `json:"avg_fetch_time_ms"`
	TerminationReason string         `json:"termination_reason"`
}

// GraphSink persists a finished graph
type GraphSink interface {
	WriteAll(ctx context.Context, run CrawlRun, nodes []Node, edges []Edge) error
	Close() error
}
