package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alvmarrod/webgraph/internal/storage"
)

// Tracker holds and manages crawl metrics. It keeps a JSON-friendly summary
// and mirrors every event into Prometheus collectors on a private registry.
type Tracker struct {
	mu               sync.Mutex
	data             storage.Metrics
	totalFetchTimeMs int64
	fetchCount       int

	registry      *prometheus.Registry
	probes        *prometheus.CounterVec
	probeDuration prometheus.Histogram
	fetchDuration prometheus.Histogram
	nodes         *prometheus.CounterVec
	edges         *prometheus.CounterVec
	rewalks       prometheus.Counter
	redirectCuts  prometheus.Counter
}

// NewTracker creates a new metrics tracker
func NewTracker() *Tracker {
	t := &Tracker{
		data: storage.Metrics{
			StartTime:   time.Now(),
			NodesByKind: make(map[string]int),
		},
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webgraph_probes_total",
			Help: "Status probes issued, partitioned by result.",
		}, []string{"result"}),
		probeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webgraph_probe_duration_seconds",
			Help:    "Duration of status probes.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webgraph_fetch_duration_seconds",
			Help:    "Duration of page downloads.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webgraph_nodes_total",
			Help: "Nodes added to the graph, partitioned by kind.",
		}, []string{"kind"}),
		edges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webgraph_edge_discoveries_total",
			Help: "Edge discoveries, partitioned by relation and whether the edge was new.",
		}, []string{"relation", "new"}),
		rewalks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webgraph_rewalks_total",
			Help: "Re-walks of already known nodes.",
		}),
		redirectCuts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webgraph_redirect_chains_cut_total",
			Help: "Redirect chains not followed because they reached the hop limit.",
		}),
	}
	t.registry.MustRegister(
		t.probes,
		t.probeDuration,
		t.fetchDuration,
		t.nodes,
		t.edges,
		t.rewalks,
		t.redirectCuts,
	)
	return t
}

// Registry exposes the collectors, e.g. for a textfile exporter or an HTTP handler
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// RecordProbe counts one status probe
func (t *Tracker) RecordProbe(failed bool, duration time.Duration) {
	t.mu.Lock()
	t.data.ProbesIssued++
	if failed {
		t.data.ProbesFailed++
	}
	t.mu.Unlock()

	result := "ok"
	if failed {
		result = "failed"
	}
	t.probes.WithLabelValues(result).Inc()
	t.probeDuration.Observe(duration.Seconds())
}

// RecordFetch records a page download duration
func (t *Tracker) RecordFetch(duration time.Duration) {
	t.mu.Lock()
	t.totalFetchTimeMs += duration.Milliseconds()
	t.fetchCount++
	t.mu.Unlock()

	t.fetchDuration.Observe(duration.Seconds())
}

// RecordNode counts a node added to the graph
func (t *Tracker) RecordNode(kind storage.NodeKind) {
	t.mu.Lock()
	t.data.NodesCreated++
	t.data.NodesByKind[kind.String()]++
	t.mu.Unlock()

	t.nodes.WithLabelValues(kind.String()).Inc()
}

// RecordEdge counts an edge discovery; created is false when an existing
// edge's weight was incremented
func (t *Tracker) RecordEdge(relation storage.Relation, created bool) {
	t.mu.Lock()
	if created {
		t.data.EdgesCreated++
	} else {
		t.data.EdgesReinforced++
	}
	t.mu.Unlock()

	isNew := "false"
	if created {
		isNew = "true"
	}
	t.edges.WithLabelValues(relation.String(), isNew).Inc()
}

func (t *Tracker) RecordRewalk() {
	t.mu.Lock()
	t.data.Rewalks++
	t.mu.Unlock()
	t.rewalks.Inc()
}

func (t *Tracker) RecordRedirectCut() {
	t.mu.Lock()
	t.data.RedirectChainsCut++
	t.mu.Unlock()
	t.redirectCuts.Inc()
}

// GetSnapshot returns a copy of current metrics
func (t *Tracker) GetSnapshot() storage.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshot()
}

// snapshot must be called with t.mu held
func (t *Tracker) snapshot() storage.Metrics {
	snapshot := t.data
	snapshot.NodesByKind = make(map[string]int, len(t.data.NodesByKind))
	for kind, n := range t.data.NodesByKind {
		snapshot.NodesByKind[kind] = n
	}
	snapshot.TotalFetchTimeMs = t.totalFetchTimeMs
	if t.fetchCount > 0 {
		snapshot.AvgFetchTimeMs = t.totalFetchTimeMs / int64(t.fetchCount)
	}
	return snapshot
}

// WriteToFile exports metrics to a JSON file
func (t *Tracker) WriteToFile(path, reason string) error {
	t.mu.Lock()
	t.data.EndTime = time.Now()
	t.data.TerminationReason = reason
	snapshot := t.snapshot()
	t.mu.Unlock()

	jsonData, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}

	return nil
}

// WriteTextfile exports the Prometheus collectors in the text exposition
// format, suitable for the node_exporter textfile collector
func (t *Tracker) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, t.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// LogProgress summarizes current metrics on one line
func (t *Tracker) LogProgress() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return fmt.Sprintf("Nodes: %d | Edges: %d new, %d reinforced | Probes: %d issued, %d failed | Re-walks: %d",
		t.data.NodesCreated,
		t.data.EdgesCreated,
		t.data.EdgesReinforced,
		t.data.ProbesIssued,
		t.data.ProbesFailed,
		t.data.Rewalks,
	)
}
