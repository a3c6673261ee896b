package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MemoryEdge is a typed relation between two chunks.
type MemoryEdge struct {
	ID          string
	FromID      string
	ToID        string
	EdgeType    string
	Description string
	CreatedAt   time.Time
}

// MemoryEdgeRepository persists typed relations between chunks. It gives
// the chunk store its graph edge capability in pg-backed deployments.
type MemoryEdgeRepository struct {
	db dbtx
}

func NewMemoryEdgeRepository(pool *pgxpool.Pool) *MemoryEdgeRepository {
	return &MemoryEdgeRepository{db: pool}
}

func NewMemoryEdgeRepositoryWithTx(tx dbtx) *MemoryEdgeRepository {
	return &MemoryEdgeRepository{db: tx}
}

// AddEdge records one relation. Duplicate (from, to, type) triples refresh
// the description instead of accumulating rows.
func (r *MemoryEdgeRepository) AddEdge(ctx context.Context, fromID, toID, edgeType, description string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO memory_edges (id, from_id, to_id, edge_type, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (from_id, to_id, edge_type) DO UPDATE SET
			description = EXCLUDED.description`,
		uuid.NewString(), fromID, toID, edgeType, description, time.Now().UTC())
	return err
}

// ListFrom returns all edges leaving a chunk.
func (r *MemoryEdgeRepository) ListFrom(ctx context.Context, fromID string) ([]*MemoryEdge, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, from_id, to_id, edge_type, description, created_at
		 FROM memory_edges WHERE from_id = $1 ORDER BY created_at`, fromID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*MemoryEdge
	for rows.Next() {
		var edge MemoryEdge
		if err := rows.Scan(&edge.ID, &edge.FromID, &edge.ToID, &edge.EdgeType, &edge.Description, &edge.CreatedAt); err != nil {
			return nil, err
		}
		edges = append(edges, &edge)
	}
	return edges, rows.Err()
}
