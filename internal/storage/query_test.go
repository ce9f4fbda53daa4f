package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Read-side queries used to check what WriteAll persisted.

// countRows returns the number of rows in nodes and edges for a crawl
func (s *Storage) countRows(ctx context.Context, crawlID string) (nodeCount, edgeCount int, err error) {
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE crawl_id = ?", crawlID).Scan(&nodeCount)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM edges e
		JOIN nodes n ON n.node_id = e.from_node_id
		WHERE n.crawl_id = ?
	`, crawlID).Scan(&edgeCount)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count edges: %w", err)
	}
	return nodeCount, edgeCount, nil
}

// edgeWeight returns the weight of the edge between two URLs, 0 if absent
func (s *Storage) edgeWeight(ctx context.Context, crawlID, fromURL string, relation Relation, toURL string) (int, error) {
	var weight int
	err := s.db.QueryRowContext(ctx, `
		SELECT e.weight FROM edges e
		JOIN nodes f ON f.node_id = e.from_node_id
		JOIN nodes t ON t.node_id = e.to_node_id
		WHERE f.crawl_id = ? AND f.url = ? AND e.relation = ? AND t.url = ?
	`, crawlID, fromURL, relation.String(), toURL).Scan(&weight)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get edge weight: %w", err)
	}
	return weight, nil
}

// nodeParams returns the stored params of the node with the given key
func (s *Storage) nodeParams(ctx context.Context, crawlID, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.param_key, p.param_value FROM node_params p
		JOIN nodes n ON n.node_id = p.node_id
		WHERE n.crawl_id = ? AND n.node_key = ?
	`, crawlID, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load params: %w", err)
	}
	defer rows.Close()

	params := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan param: %w", err)
		}
		params[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating params: %w", err)
	}
	return params, nil
}
