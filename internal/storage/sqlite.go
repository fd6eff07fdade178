package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/models"
)

// maxInParams bounds the IN-list size of a single query.
const maxInParams = 400

// SQLiteStore implements GraphStore using SQLite in WAL mode, so readers see the last
// committed state while a commit is in progress.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, storageErr("open", fmt.Errorf("failed to create database directory: %w", err))
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, storageErr("open", fmt.Errorf("failed to open database: %w", err))
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, storageErr("open", fmt.Errorf("failed to enable WAL: %w", err))
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, storageErr("open", fmt.Errorf("failed to initialize schema: %w", err))
	}

	return &SQLiteStore{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		workspace TEXT NOT NULL,
		id TEXT NOT NULL,
		title TEXT,
		tags TEXT,
		modified_at TIMESTAMP,
		PRIMARY KEY (workspace, id)
	);

	CREATE TABLE IF NOT EXISTS edges (
		workspace TEXT NOT NULL,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		type TEXT NOT NULL,
		strength REAL NOT NULL,
		evidence TEXT,
		selected_by_source INTEGER NOT NULL DEFAULT 0,
		selected_by_target INTEGER NOT NULL DEFAULT 0,
		computed_at TIMESTAMP,
		run_id TEXT,
		PRIMARY KEY (workspace, source_id, target_id),
		CHECK (source_id < target_id)
	);

	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(workspace, target_id);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		workspace TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		processed TEXT,
		skipped TEXT,
		failed TEXT,
		error TEXT,
		edges_upserted INTEGER NOT NULL DEFAULT 0,
		edges_deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_workspace_started ON runs(workspace, started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// ApplyCommit writes all changes in one transaction; on any error nothing is written.
func (s *SQLiteStore) ApplyCommit(ctx context.Context, workspace string, changes *Changes) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("commit", err)
	}
	defer tx.Rollback()

	if err := applyChanges(ctx, tx, workspace, changes); err != nil {
		return storageErr("commit", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	return nil
}

func applyChanges(ctx context.Context, tx *sql.Tx, workspace string, c *Changes) error {
	delEdge, err := tx.PrepareContext(ctx,
		`DELETE FROM edges WHERE workspace = ? AND source_id = ? AND target_id = ?`)
	if err != nil {
		return err
	}
	defer delEdge.Close()
	for _, k := range c.DeleteEdges {
		if _, err := delEdge.ExecContext(ctx, workspace, k.A, k.B); err != nil {
			return fmt.Errorf("delete edge %s-%s: %w", k.A, k.B, err)
		}
	}

	for _, id := range c.DeleteNodes {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM edges WHERE workspace = ? AND (source_id = ? OR target_id = ?)`,
			workspace, id, id); err != nil {
			return fmt.Errorf("delete edges of %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM nodes WHERE workspace = ? AND id = ?`, workspace, id); err != nil {
			return fmt.Errorf("delete node %s: %w", id, err)
		}
	}

	upNode, err := tx.PrepareContext(ctx,
		`INSERT INTO nodes (workspace, id, title, tags, modified_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(workspace, id) DO UPDATE SET
			title = excluded.title, tags = excluded.tags, modified_at = excluded.modified_at`)
	if err != nil {
		return err
	}
	defer upNode.Close()
	for _, n := range c.UpsertNodes {
		tags, err := json.Marshal(nonNil(n.Tags))
		if err != nil {
			return fmt.Errorf("failed to marshal tags: %w", err)
		}
		if _, err := upNode.ExecContext(ctx, workspace, n.ID, n.Title, string(tags), n.ModifiedAt.UTC()); err != nil {
			return fmt.Errorf("upsert node %s: %w", n.ID, err)
		}
	}

	upEdge, err := tx.PrepareContext(ctx,
		`INSERT INTO edges (workspace, source_id, target_id, type, strength, evidence,
			selected_by_source, selected_by_target, computed_at, run_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workspace, source_id, target_id) DO UPDATE SET
			type = excluded.type, strength = excluded.strength, evidence = excluded.evidence,
			selected_by_source = excluded.selected_by_source,
			selected_by_target = excluded.selected_by_target,
			computed_at = excluded.computed_at, run_id = excluded.run_id`)
	if err != nil {
		return err
	}
	defer upEdge.Close()
	for _, e := range c.UpsertEdges {
		if e.SourceID >= e.TargetID {
			return fmt.Errorf("edge %s-%s is not canonical", e.SourceID, e.TargetID)
		}
		evidence, err := json.Marshal(nonNil(e.Evidence))
		if err != nil {
			return fmt.Errorf("failed to marshal evidence: %w", err)
		}
		if _, err := upEdge.ExecContext(ctx, workspace, e.SourceID, e.TargetID, e.Type, e.Strength,
			string(evidence), e.SelectedBySource, e.SelectedByTarget, e.ComputedAt.UTC(), e.RunID); err != nil {
			return fmt.Errorf("upsert edge %s-%s: %w", e.SourceID, e.TargetID, err)
		}
	}
	return nil
}

// ReadGraph reads nodes and edges inside one read transaction.
func (s *SQLiteStore) ReadGraph(ctx context.Context, workspace string) (*Graph, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("read graph", err)
	}
	defer tx.Rollback()

	nodes, err := queryNodes(ctx, tx, `SELECT id, title, tags, modified_at FROM nodes
		WHERE workspace = ? ORDER BY id`, workspace)
	if err != nil {
		return nil, storageErr("read graph", err)
	}
	for _, n := range nodes {
		n.Workspace = workspace
	}
	edges, err := queryEdges(ctx, tx, edgeSelect+` WHERE workspace = ? ORDER BY source_id, target_id`, workspace)
	if err != nil {
		return nil, storageErr("read graph", err)
	}
	return &Graph{Nodes: nodes, Edges: edges}, nil
}

// ListNodes returns all node snapshots of a workspace ordered by ID.
func (s *SQLiteStore) ListNodes(ctx context.Context, workspace string) ([]*models.GraphNode, error) {
	nodes, err := queryNodes(ctx, s.db, `SELECT id, title, tags, modified_at FROM nodes
		WHERE workspace = ? ORDER BY id`, workspace)
	if err != nil {
		return nil, storageErr("list nodes", err)
	}
	for _, n := range nodes {
		n.Workspace = workspace
	}
	return nodes, nil
}

// GetNode returns one node snapshot or NotFound.
func (s *SQLiteStore) GetNode(ctx context.Context, workspace, id string) (*models.GraphNode, error) {
	nodes, err := queryNodes(ctx, s.db, `SELECT id, title, tags, modified_at FROM nodes
		WHERE workspace = ? AND id = ?`, workspace, id)
	if err != nil {
		return nil, storageErr("get node", err)
	}
	if len(nodes) == 0 {
		return nil, failure.Newf(failure.NotFound, "get node", "note %s not found in workspace %s", id, workspace)
	}
	nodes[0].Workspace = workspace
	return nodes[0], nil
}

// EdgesTouching returns edges with an endpoint in noteIDs, ordered by (source, target).
func (s *SQLiteStore) EdgesTouching(ctx context.Context, workspace string, noteIDs []string) ([]*models.RelationshipEdge, error) {
	seen := make(map[models.PairKey]*models.RelationshipEdge)
	for start := 0; start < len(noteIDs); start += maxInParams {
		end := start + maxInParams
		if end > len(noteIDs) {
			end = len(noteIDs)
		}
		chunk := noteIDs[start:end]
		in := placeholders(len(chunk))
		args := make([]interface{}, 0, 1+2*len(chunk))
		args = append(args, workspace)
		for _, id := range chunk {
			args = append(args, id)
		}
		for _, id := range chunk {
			args = append(args, id)
		}
		edges, err := queryEdges(ctx, s.db, edgeSelect+
			` WHERE workspace = ? AND (source_id IN (`+in+`) OR target_id IN (`+in+`))`, args...)
		if err != nil {
			return nil, storageErr("edges touching", err)
		}
		for _, e := range edges {
			seen[e.Key()] = e
		}
	}
	out := make([]*models.RelationshipEdge, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

// ReadNeighborhood reads the note, its edges and its neighbors inside one read transaction.
func (s *SQLiteStore) ReadNeighborhood(ctx context.Context, workspace, noteID string) (*Neighborhood, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageErr("read neighborhood", err)
	}
	defer tx.Rollback()

	nodes, err := queryNodes(ctx, tx, `SELECT id, title, tags, modified_at FROM nodes
		WHERE workspace = ? AND id = ?`, workspace, noteID)
	if err != nil {
		return nil, storageErr("read neighborhood", err)
	}
	if len(nodes) == 0 {
		return nil, failure.Newf(failure.NotFound, "read neighborhood", "note %s not found in workspace %s", noteID, workspace)
	}
	edges, err := queryEdges(ctx, tx, edgeSelect+
		` WHERE workspace = ? AND (source_id = ? OR target_id = ?) ORDER BY source_id, target_id`,
		workspace, noteID, noteID)
	if err != nil {
		return nil, storageErr("read neighborhood", err)
	}
	neighbors, err := queryNodes(ctx, tx, `SELECT n.id, n.title, n.tags, n.modified_at FROM nodes n
		JOIN edges e ON e.workspace = n.workspace
			AND ((e.source_id = ? AND e.target_id = n.id) OR (e.target_id = ? AND e.source_id = n.id))
		WHERE n.workspace = ? ORDER BY n.id`, noteID, noteID, workspace)
	if err != nil {
		return nil, storageErr("read neighborhood", err)
	}

	nb := &Neighborhood{Node: nodes[0], Edges: edges, Neighbors: make(map[string]*models.GraphNode, len(neighbors))}
	nb.Node.Workspace = workspace
	for _, n := range neighbors {
		n.Workspace = workspace
		nb.Neighbors[n.ID] = n
	}
	return nb, nil
}

// SaveRun inserts or replaces a run record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *models.AnalysisRun) error {
	processed, err := json.Marshal(nonNil(run.Processed))
	if err != nil {
		return storageErr("save run", err)
	}
	skipped, err := json.Marshal(nonNilMap(run.Skipped))
	if err != nil {
		return storageErr("save run", err)
	}
	failed, err := json.Marshal(nonNilMap(run.Failed))
	if err != nil {
		return storageErr("save run", err)
	}
	var finished interface{}
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, workspace, mode, status, started_at, finished_at,
			processed, skipped, failed, error, edges_upserted, edges_deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workspace, string(run.Mode), string(run.Status), run.StartedAt.UTC(), finished,
		string(processed), string(skipped), string(failed), run.Error, run.EdgesUpserted, run.EdgesDeleted,
	)
	if err != nil {
		return storageErr("save run", err)
	}
	return nil
}

const runSelect = `SELECT id, workspace, mode, status, started_at, finished_at,
	processed, skipped, failed, error, edges_upserted, edges_deleted FROM runs`

// GetRun returns a run by ID or NotFound.
func (s *SQLiteStore) GetRun(ctx context.Context, workspace, id string) (*models.AnalysisRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, runSelect+` WHERE workspace = ? AND id = ?`, workspace, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, failure.Newf(failure.NotFound, "get run", "run %s not found in workspace %s", id, workspace)
	}
	if err != nil {
		return nil, storageErr("get run", err)
	}
	return run, nil
}

// LastSuccessfulRun returns the latest completed or degraded run, or nil if none.
func (s *SQLiteStore) LastSuccessfulRun(ctx context.Context, workspace string) (*models.AnalysisRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, runSelect+
		` WHERE workspace = ? AND status IN (?, ?) ORDER BY started_at DESC LIMIT 1`,
		workspace, string(models.RunCompleted), string(models.RunCompletedWithDegraded)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("last successful run", err)
	}
	return run, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func queryNodes(ctx context.Context, q querier, query string, args ...interface{}) ([]*models.GraphNode, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*models.GraphNode
	for rows.Next() {
		var n models.GraphNode
		var title, tags sql.NullString
		var modified sql.NullTime
		if err := rows.Scan(&n.ID, &title, &tags, &modified); err != nil {
			return nil, err
		}
		n.Title = title.String
		n.ModifiedAt = modified.Time
		n.Tags = []string{}
		if tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &n.Tags); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
			}
		}
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

const edgeSelect = `SELECT workspace, source_id, target_id, type, strength, evidence,
	selected_by_source, selected_by_target, computed_at, run_id FROM edges`

func queryEdges(ctx context.Context, q querier, query string, args ...interface{}) ([]*models.RelationshipEdge, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*models.RelationshipEdge
	for rows.Next() {
		var e models.RelationshipEdge
		var evidence, runID sql.NullString
		var computed sql.NullTime
		if err := rows.Scan(&e.Workspace, &e.SourceID, &e.TargetID, &e.Type, &e.Strength, &evidence,
			&e.SelectedBySource, &e.SelectedByTarget, &computed, &runID); err != nil {
			return nil, err
		}
		e.ComputedAt = computed.Time
		e.RunID = runID.String
		if evidence.String != "" {
			if err := json.Unmarshal([]byte(evidence.String), &e.Evidence); err != nil {
				return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
			}
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

func scanRun(row *sql.Row) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	var mode, status string
	var finished sql.NullTime
	var processed, skipped, failed, runErr sql.NullString
	if err := row.Scan(&run.ID, &run.Workspace, &mode, &status, &run.StartedAt, &finished,
		&processed, &skipped, &failed, &runErr, &run.EdgesUpserted, &run.EdgesDeleted); err != nil {
		return nil, err
	}
	run.Mode = models.RunMode(mode)
	run.Status = models.RunStatus(status)
	run.FinishedAt = finished.Time
	run.Error = runErr.String
	run.Processed = []string{}
	run.Skipped = map[string]string{}
	run.Failed = map[string]string{}
	for _, f := range []struct {
		raw string
		dst interface{}
	}{{processed.String, &run.Processed}, {skipped.String, &run.Skipped}, {failed.String, &run.Failed}} {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run %s: %w", run.ID, err)
		}
	}
	return &run, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func storageErr(op string, err error) error {
	if failure.KindOf(err) != "" {
		return err
	}
	return failure.New(failure.StorageUnavailable, op, err)
}
