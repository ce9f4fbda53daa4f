package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

// Storage writes crawl graphs into a SQLite database
type Storage struct {
	db *sql.DB
}

// NewStorage creates a new Storage instance, opening/creating the DB and initializing schema
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

// initSchema creates tables and indices if they don't exist
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS crawls (
		crawl_id TEXT PRIMARY KEY,
		seed_url TEXT NOT NULL,
		max_depth INTEGER NOT NULL,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		termination_reason TEXT
	);

	CREATE TABLE IF NOT EXISTS nodes (
		node_id INTEGER PRIMARY KEY AUTOINCREMENT,
		crawl_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		url TEXT NOT NULL,
		node_key TEXT NOT NULL,
		content_type TEXT,
		title TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (crawl_id) REFERENCES crawls(crawl_id),
		UNIQUE(crawl_id, node_key)
	);

	CREATE TABLE IF NOT EXISTS node_params (
		node_id INTEGER NOT NULL,
		param_key TEXT NOT NULL,
		param_value TEXT NOT NULL,
		FOREIGN KEY (node_id) REFERENCES nodes(node_id),
		UNIQUE(node_id, param_key)
	);

	CREATE TABLE IF NOT EXISTS edges (
		edge_id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_node_id INTEGER NOT NULL,
		relation TEXT NOT NULL,
		to_node_id INTEGER NOT NULL,
		weight INTEGER DEFAULT 1,
		FOREIGN KEY (from_node_id) REFERENCES nodes(node_id),
		FOREIGN KEY (to_node_id) REFERENCES nodes(node_id),
		UNIQUE(from_node_id, relation, to_node_id)
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_url ON nodes(url);
	CREATE INDEX IF NOT EXISTS idx_edges_from ON edges(from_node_id);
	CREATE INDEX IF NOT EXISTS idx_edges_to ON edges(to_node_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// WriteAll stores one crawl run with its nodes and edges in a single transaction.
// In-memory node IDs are remapped to database IDs.
func (s *Storage) WriteAll(ctx context.Context, run CrawlRun, nodes []Node, edges []Edge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO crawls (crawl_id, seed_url, max_depth, started_at, finished_at, termination_reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.CrawlID, run.SeedURL, run.MaxDepth, run.StartedAt, run.FinishedAt, run.TerminationReason)
	if err != nil {
		return fmt.Errorf("failed to insert crawl: %w", err)
	}

	idMap := make(map[int]int64, len(nodes))
	for _, node := range nodes {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (crawl_id, kind, url, node_key, content_type, title, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.CrawlID, node.Kind.String(), node.URL, node.Key,
			nullable(node.ContentType), nullable(node.Title), node.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert node %s: %w", node.URL, err)
		}
		dbID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to retrieve node_id: %w", err)
		}
		idMap[node.NodeID] = dbID

		keys := make([]string, 0, len(node.Params))
		for key := range node.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO node_params (node_id, param_key, param_value) VALUES (?, ?, ?)
			`, dbID, key, node.Params[key])
			if err != nil {
				return fmt.Errorf("failed to insert param %q of %s: %w", key, node.URL, err)
			}
		}
	}

	for _, edge := range edges {
		fromID, fromExists := idMap[edge.FromNodeID]
		toID, toExists := idMap[edge.ToNodeID]
		if !fromExists || !toExists {
			return fmt.Errorf("edge %d references unknown node", edge.EdgeID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO edges (from_node_id, relation, to_node_id, weight)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(from_node_id, relation, to_node_id) DO UPDATE SET
				weight = weight + excluded.weight
		`, fromID, edge.Relation.String(), toID, edge.Weight)
		if err != nil {
			return fmt.Errorf("failed to upsert edge %d->%d: %w", fromID, toID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit graph: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
