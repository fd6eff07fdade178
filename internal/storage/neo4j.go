package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/hyperjump/tsunagu/internal/failure"
	"github.com/hyperjump/tsunagu/internal/models"
)

// Neo4jOptions configures the Neo4j graph store.
type Neo4jOptions struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore implements GraphStore on a Neo4j database. Notes are (:Note) nodes and
// relationships are [:RELATED_TO] from the lexicographically smaller ID to the larger.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

var neo4jSchema = []string{
	`CREATE INDEX note_lookup IF NOT EXISTS FOR (n:Note) ON (n.workspace, n.id)`,
	`CREATE INDEX run_lookup IF NOT EXISTS FOR (r:AnalysisRun) ON (r.workspace, r.id)`,
}

// NewNeo4jStore connects to Neo4j, verifies connectivity, and creates indexes.
func NewNeo4jStore(ctx context.Context, opts Neo4jOptions) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, storageErr("connect neo4j", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, storageErr("connect neo4j", err)
	}
	s := &Neo4jStore{driver: driver, database: opts.Database}
	for _, q := range neo4jSchema {
		if _, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, q, nil)
			return nil, err
		}); err != nil {
			_ = driver.Close(ctx)
			return nil, storageErr("init neo4j schema", err)
		}
	}
	return s, nil
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

func (s *Neo4jStore) write(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

func (s *Neo4jStore) read(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

// ApplyCommit applies all changes in one write transaction.
func (s *Neo4jStore) ApplyCommit(ctx context.Context, workspace string, changes *Changes) error {
	deleteEdges := make([]map[string]any, 0, len(changes.DeleteEdges))
	for _, k := range changes.DeleteEdges {
		deleteEdges = append(deleteEdges, map[string]any{"source": k.A, "target": k.B})
	}
	nodes := make([]map[string]any, 0, len(changes.UpsertNodes))
	for _, n := range changes.UpsertNodes {
		nodes = append(nodes, map[string]any{
			"id":          n.ID,
			"title":       n.Title,
			"tags":        nonNil(n.Tags),
			"modified_at": formatTime(n.ModifiedAt),
		})
	}
	edges := make([]map[string]any, 0, len(changes.UpsertEdges))
	for _, e := range changes.UpsertEdges {
		if e.SourceID >= e.TargetID {
			return storageErr("commit", fmt.Errorf("edge %s-%s is not canonical", e.SourceID, e.TargetID))
		}
		edges = append(edges, map[string]any{
			"source":             e.SourceID,
			"target":             e.TargetID,
			"type":               e.Type,
			"strength":           e.Strength,
			"evidence":           nonNil(e.Evidence),
			"selected_by_source": e.SelectedBySource,
			"selected_by_target": e.SelectedByTarget,
			"computed_at":        formatTime(e.ComputedAt),
			"run_id":             e.RunID,
		})
	}

	_, err := s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		steps := []struct {
			query  string
			params map[string]any
		}{
			{`UNWIND $edges AS e
			  MATCH (:Note {workspace: $ws, id: e.source})-[r:RELATED_TO]->(:Note {workspace: $ws, id: e.target})
			  DELETE r`, map[string]any{"ws": workspace, "edges": deleteEdges}},
			{`UNWIND $ids AS id
			  MATCH (n:Note {workspace: $ws, id: id})
			  DETACH DELETE n`, map[string]any{"ws": workspace, "ids": nonNil(changes.DeleteNodes)}},
			{`UNWIND $nodes AS n
			  MERGE (note:Note {workspace: $ws, id: n.id})
			  SET note.title = n.title, note.tags = n.tags, note.modified_at = n.modified_at`,
				map[string]any{"ws": workspace, "nodes": nodes}},
			{`UNWIND $edges AS e
			  MERGE (a:Note {workspace: $ws, id: e.source})
			  MERGE (b:Note {workspace: $ws, id: e.target})
			  MERGE (a)-[r:RELATED_TO]->(b)
			  SET r.type = e.type,
				r.strength = e.strength,
				r.evidence = e.evidence,
				r.selected_by_source = e.selected_by_source,
				r.selected_by_target = e.selected_by_target,
				r.computed_at = e.computed_at,
				r.run_id = e.run_id`, map[string]any{"ws": workspace, "edges": edges}},
		}
		for _, step := range steps {
			if _, err := tx.Run(ctx, step.query, step.params); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return storageErr("commit", err)
	}
	return nil
}

const neoNodeReturn = `RETURN n.id AS id, n.title AS title, n.tags AS tags, n.modified_at AS modified_at`

const neoEdgeReturn = `RETURN a.id AS source, b.id AS target, r.type AS type, r.strength AS strength,
	r.evidence AS evidence, r.selected_by_source AS selected_by_source,
	r.selected_by_target AS selected_by_target, r.computed_at AS computed_at, r.run_id AS run_id`

// ReadGraph reads nodes and edges inside one read transaction.
func (s *Neo4jStore) ReadGraph(ctx context.Context, workspace string) (*Graph, error) {
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		nodes, err := collectNodes(ctx, tx, workspace,
			`MATCH (n:Note {workspace: $ws}) `+neoNodeReturn+` ORDER BY id`, map[string]any{"ws": workspace})
		if err != nil {
			return nil, err
		}
		edges, err := collectEdges(ctx, tx, workspace,
			`MATCH (a:Note {workspace: $ws})-[r:RELATED_TO]->(b:Note {workspace: $ws}) `+neoEdgeReturn+
				` ORDER BY source, target`, map[string]any{"ws": workspace})
		if err != nil {
			return nil, err
		}
		return &Graph{Nodes: nodes, Edges: edges}, nil
	})
	if err != nil {
		return nil, storageErr("read graph", err)
	}
	return res.(*Graph), nil
}

// ListNodes returns all node snapshots of a workspace ordered by ID.
func (s *Neo4jStore) ListNodes(ctx context.Context, workspace string) ([]*models.GraphNode, error) {
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectNodes(ctx, tx, workspace,
			`MATCH (n:Note {workspace: $ws}) `+neoNodeReturn+` ORDER BY id`, map[string]any{"ws": workspace})
	})
	if err != nil {
		return nil, storageErr("list nodes", err)
	}
	return res.([]*models.GraphNode), nil
}

// GetNode returns one node snapshot or NotFound.
func (s *Neo4jStore) GetNode(ctx context.Context, workspace, id string) (*models.GraphNode, error) {
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectNodes(ctx, tx, workspace,
			`MATCH (n:Note {workspace: $ws, id: $id}) `+neoNodeReturn, map[string]any{"ws": workspace, "id": id})
	})
	if err != nil {
		return nil, storageErr("get node", err)
	}
	nodes := res.([]*models.GraphNode)
	if len(nodes) == 0 {
		return nil, failure.Newf(failure.NotFound, "get node", "note %s not found in workspace %s", id, workspace)
	}
	return nodes[0], nil
}

// EdgesTouching returns edges with an endpoint in noteIDs, ordered by (source, target).
func (s *Neo4jStore) EdgesTouching(ctx context.Context, workspace string, noteIDs []string) ([]*models.RelationshipEdge, error) {
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return collectEdges(ctx, tx, workspace,
			`MATCH (a:Note {workspace: $ws})-[r:RELATED_TO]->(b:Note {workspace: $ws})
			 WHERE a.id IN $ids OR b.id IN $ids `+neoEdgeReturn+` ORDER BY source, target`,
			map[string]any{"ws": workspace, "ids": nonNil(noteIDs)})
	})
	if err != nil {
		return nil, storageErr("edges touching", err)
	}
	return res.([]*models.RelationshipEdge), nil
}

// ReadNeighborhood reads the note, its edges and its neighbors inside one read transaction.
func (s *Neo4jStore) ReadNeighborhood(ctx context.Context, workspace, noteID string) (*Neighborhood, error) {
	params := map[string]any{"ws": workspace, "id": noteID}
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		nodes, err := collectNodes(ctx, tx, workspace,
			`MATCH (n:Note {workspace: $ws, id: $id}) `+neoNodeReturn, params)
		if err != nil {
			return nil, err
		}
		if len(nodes) == 0 {
			return nil, nil
		}
		edges, err := collectEdges(ctx, tx, workspace,
			`MATCH (a:Note {workspace: $ws})-[r:RELATED_TO]->(b:Note {workspace: $ws})
			 WHERE a.id = $id OR b.id = $id `+neoEdgeReturn+` ORDER BY source, target`, params)
		if err != nil {
			return nil, err
		}
		neighbors, err := collectNodes(ctx, tx, workspace,
			`MATCH (:Note {workspace: $ws, id: $id})-[:RELATED_TO]-(n:Note {workspace: $ws})
			 WITH DISTINCT n `+neoNodeReturn+` ORDER BY id`, params)
		if err != nil {
			return nil, err
		}
		nb := &Neighborhood{Node: nodes[0], Edges: edges, Neighbors: make(map[string]*models.GraphNode, len(neighbors))}
		for _, n := range neighbors {
			nb.Neighbors[n.ID] = n
		}
		return nb, nil
	})
	if err != nil {
		return nil, storageErr("read neighborhood", err)
	}
	nb, _ := res.(*Neighborhood)
	if nb == nil {
		return nil, failure.Newf(failure.NotFound, "read neighborhood", "note %s not found in workspace %s", noteID, workspace)
	}
	return nb, nil
}

// SaveRun creates or replaces the run node.
func (s *Neo4jStore) SaveRun(ctx context.Context, run *models.AnalysisRun) error {
	skipped, err := json.Marshal(nonNilMap(run.Skipped))
	if err != nil {
		return storageErr("save run", err)
	}
	failed, err := json.Marshal(nonNilMap(run.Failed))
	if err != nil {
		return storageErr("save run", err)
	}
	finished := ""
	if !run.FinishedAt.IsZero() {
		finished = formatTime(run.FinishedAt)
	}
	_, err = s.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `
			MERGE (r:AnalysisRun {workspace: $ws, id: $id})
			SET r.mode = $mode, r.status = $status,
				r.started_at = $started_at, r.started_at_ns = $started_at_ns,
				r.finished_at = $finished_at,
				r.processed = $processed, r.skipped = $skipped, r.failed = $failed,
				r.error = $error, r.edges_upserted = $edges_upserted, r.edges_deleted = $edges_deleted`,
			map[string]any{
				"ws":             run.Workspace,
				"id":             run.ID,
				"mode":           string(run.Mode),
				"status":         string(run.Status),
				"started_at":     formatTime(run.StartedAt),
				"started_at_ns":  run.StartedAt.UnixNano(),
				"finished_at":    finished,
				"processed":      nonNil(run.Processed),
				"skipped":        string(skipped),
				"failed":         string(failed),
				"error":          run.Error,
				"edges_upserted": int64(run.EdgesUpserted),
				"edges_deleted":  int64(run.EdgesDeleted),
			})
		return nil, err
	})
	if err != nil {
		return storageErr("save run", err)
	}
	return nil
}

const neoRunReturn = `RETURN r.id AS id, r.workspace AS workspace, r.mode AS mode, r.status AS status,
	r.started_at AS started_at, r.finished_at AS finished_at, r.processed AS processed,
	r.skipped AS skipped, r.failed AS failed, r.error AS error,
	r.edges_upserted AS edges_upserted, r.edges_deleted AS edges_deleted`

// GetRun returns a run by ID or NotFound.
func (s *Neo4jStore) GetRun(ctx context.Context, workspace, id string) (*models.AnalysisRun, error) {
	run, err := s.queryRun(ctx, `MATCH (r:AnalysisRun {workspace: $ws, id: $id}) `+neoRunReturn,
		map[string]any{"ws": workspace, "id": id})
	if err != nil {
		return nil, storageErr("get run", err)
	}
	if run == nil {
		return nil, failure.Newf(failure.NotFound, "get run", "run %s not found in workspace %s", id, workspace)
	}
	return run, nil
}

// LastSuccessfulRun returns the latest completed or degraded run, or nil if none.
func (s *Neo4jStore) LastSuccessfulRun(ctx context.Context, workspace string) (*models.AnalysisRun, error) {
	run, err := s.queryRun(ctx, `MATCH (r:AnalysisRun {workspace: $ws})
		WHERE r.status IN $statuses `+neoRunReturn+` ORDER BY r.started_at_ns DESC LIMIT 1`,
		map[string]any{
			"ws":       workspace,
			"statuses": []string{string(models.RunCompleted), string(models.RunCompletedWithDegraded)},
		})
	if err != nil {
		return nil, storageErr("last successful run", err)
	}
	return run, nil
}

func (s *Neo4jStore) queryRun(ctx context.Context, query string, params map[string]any) (*models.AnalysisRun, error) {
	res, err := s.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return (*models.AnalysisRun)(nil), nil
		}
		return runFromRecord(records[0])
	})
	if err != nil {
		return nil, err
	}
	return res.(*models.AnalysisRun), nil
}

// Close closes the driver.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

func collectNodes(ctx context.Context, tx neo4j.ManagedTransaction, workspace, query string, params map[string]any) ([]*models.GraphNode, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make([]*models.GraphNode, 0, len(records))
	for _, rec := range records {
		nodes = append(nodes, &models.GraphNode{
			Workspace:  workspace,
			ID:         getStringFromRecord(rec, "id"),
			Title:      getStringFromRecord(rec, "title"),
			Tags:       getStringSliceFromRecord(rec, "tags"),
			ModifiedAt: parseTime(getStringFromRecord(rec, "modified_at")),
		})
	}
	return nodes, nil
}

func collectEdges(ctx context.Context, tx neo4j.ManagedTransaction, workspace, query string, params map[string]any) ([]*models.RelationshipEdge, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	edges := make([]*models.RelationshipEdge, 0, len(records))
	for _, rec := range records {
		e := &models.RelationshipEdge{
			Workspace:        workspace,
			SourceID:         getStringFromRecord(rec, "source"),
			TargetID:         getStringFromRecord(rec, "target"),
			Type:             getStringFromRecord(rec, "type"),
			Strength:         getFloat64FromRecord(rec, "strength"),
			SelectedBySource: getBoolFromRecord(rec, "selected_by_source"),
			SelectedByTarget: getBoolFromRecord(rec, "selected_by_target"),
			ComputedAt:       parseTime(getStringFromRecord(rec, "computed_at")),
			RunID:            getStringFromRecord(rec, "run_id"),
		}
		if ev := getStringSliceFromRecord(rec, "evidence"); len(ev) > 0 {
			e.Evidence = ev
		}
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Key().Less(edges[j].Key()) })
	return edges, nil
}

func runFromRecord(rec *neo4j.Record) (*models.AnalysisRun, error) {
	run := &models.AnalysisRun{
		ID:            getStringFromRecord(rec, "id"),
		Workspace:     getStringFromRecord(rec, "workspace"),
		Mode:          models.RunMode(getStringFromRecord(rec, "mode")),
		Status:        models.RunStatus(getStringFromRecord(rec, "status")),
		StartedAt:     parseTime(getStringFromRecord(rec, "started_at")),
		FinishedAt:    parseTime(getStringFromRecord(rec, "finished_at")),
		Processed:     getStringSliceFromRecord(rec, "processed"),
		Skipped:       map[string]string{},
		Failed:        map[string]string{},
		Error:         getStringFromRecord(rec, "error"),
		EdgesUpserted: int(getInt64FromRecord(rec, "edges_upserted")),
		EdgesDeleted:  int(getInt64FromRecord(rec, "edges_deleted")),
	}
	if raw := getStringFromRecord(rec, "skipped"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &run.Skipped); err != nil {
			return nil, fmt.Errorf("failed to unmarshal skipped notes of run %s: %w", run.ID, err)
		}
	}
	if raw := getStringFromRecord(rec, "failed"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &run.Failed); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed notes of run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return i
	}
	return 0
}

func getFloat64FromRecord(record *neo4j.Record, key string) float64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func getBoolFromRecord(record *neo4j.Record, key string) bool {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return false
	}
	b, _ := val.(bool)
	return b
}

func getStringSliceFromRecord(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return []string{}
	}
	slice, ok := val.([]interface{})
	if !ok {
		return []string{}
	}
	result := make([]string, 0, len(slice))
	for _, v := range slice {
		if str, ok := v.(string); ok {
			result = append(result, str)
		}
	}
	return result
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
