// Package storage persists the relationship graph and analysis run records.
package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/hyperjump/tsunagu/internal/config"
	"github.com/hyperjump/tsunagu/internal/models"
	"go.uber.org/zap"
)

// GraphStore persists nodes, edges, and runs per workspace. Every error returned is a
// *failure.Error of kind StorageUnavailable, or NotFound for missing records.
type GraphStore interface {
	// ApplyCommit applies all changes in a single transaction.
	ApplyCommit(ctx context.Context, workspace string, changes *Changes) error
	// ReadGraph returns all nodes and edges of a workspace from one consistent snapshot,
	// nodes ordered by ID and edges by (source, target).
	ReadGraph(ctx context.Context, workspace string) (*Graph, error)
	ListNodes(ctx context.Context, workspace string) ([]*models.GraphNode, error)
	GetNode(ctx context.Context, workspace, id string) (*models.GraphNode, error)
	// EdgesTouching returns edges with either endpoint in noteIDs.
	EdgesTouching(ctx context.Context, workspace string, noteIDs []string) ([]*models.RelationshipEdge, error)
	// ReadNeighborhood returns a note, the edges touching it and the notes at their
	// other ends from one consistent snapshot. An unknown note is NotFound.
	ReadNeighborhood(ctx context.Context, workspace, noteID string) (*Neighborhood, error)

	SaveRun(ctx context.Context, run *models.AnalysisRun) error
	GetRun(ctx context.Context, workspace, id string) (*models.AnalysisRun, error)
	// LastSuccessfulRun returns the most recently started completed run, or nil.
	LastSuccessfulRun(ctx context.Context, workspace string) (*models.AnalysisRun, error)

	Close() error
}

// Changes is the write set of one graph commit.
type Changes struct {
	UpsertNodes []*models.GraphNode
	DeleteNodes []string
	UpsertEdges []*models.RelationshipEdge
	DeleteEdges []models.PairKey
}

// Empty reports whether there is nothing to write.
func (c *Changes) Empty() bool {
	return len(c.UpsertNodes) == 0 && len(c.DeleteNodes) == 0 && len(c.UpsertEdges) == 0 && len(c.DeleteEdges) == 0
}

// Graph is a read snapshot of a workspace.
type Graph struct {
	Nodes []*models.GraphNode
	Edges []*models.RelationshipEdge
}

// Neighborhood is a read snapshot of one note and its direct links.
type Neighborhood struct {
	Node      *models.GraphNode
	Edges     []*models.RelationshipEdge
	Neighbors map[string]*models.GraphNode
}

// Open creates the configured graph store.
func Open(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (GraphStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "sqlite", "":
		logger.Info("opening sqlite graph store", zap.String("path", cfg.DatabasePath))
		return NewSQLiteStore(cfg.DatabasePath)
	case "neo4j":
		logger.Info("connecting to neo4j graph store",
			zap.String("uri", cfg.Neo4j.URI),
			zap.String("username", cfg.Neo4j.Username))
		return NewNeo4jStore(ctx, Neo4jOptions{
			URI:      cfg.Neo4j.URI,
			Username: cfg.Neo4j.Username,
			Password: os.Getenv(cfg.Neo4j.PasswordEnv),
			Database: cfg.Neo4j.Database,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
