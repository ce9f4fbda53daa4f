package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Document is the JSON representation of a crawl graph
type Document struct {
	Crawl CrawlRun `json:"crawl"`
	Nodes []Node   `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// JSONSink writes the graph as a single indented JSON document
type JSONSink struct {
	path string
}

// NewJSONSink creates a sink writing to path
func NewJSONSink(path string) *JSONSink {
	return &JSONSink{path: path}
}

// WriteAll marshals the graph and writes it to the sink's path
func (s *JSONSink) WriteAll(ctx context.Context, run CrawlRun, nodes []Node, edges []Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if nodes == nil {
		nodes = []Node{}
	}
	if edges == nil {
		edges = []Edge{}
	}

	jsonData, err := json.MarshalIndent(Document{Crawl: run, Nodes: nodes, Edges: edges}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	if err := os.WriteFile(s.path, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write graph file: %w", err)
	}
	return nil
}

// Close is a no-op; the document is written in one go
func (s *JSONSink) Close() error {
	return nil
}

// ReadDocument loads a graph document written by JSONSink
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse graph JSON: %w", err)
	}
	return &doc, nil
}

// OpenSink replaces any existing file at path and returns the sink matching its
// extension: ".json" yields a JSON document, anything else a SQLite database.
func OpenSink(path string) (GraphSink, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to replace output %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return NewJSONSink(path), nil
	}
	return NewStorage(path)
}
