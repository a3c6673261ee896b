package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/recall-labs/recallai/internal/domain"
)

// ChunkIndexRepository is the durable pgvector index over memory chunks. It
// mirrors the file-backed store for deployments that want semantic search
// to survive restarts.
type ChunkIndexRepository struct {
	db dbtx
}

func NewChunkIndexRepository(pool *pgxpool.Pool) *ChunkIndexRepository {
	return &ChunkIndexRepository{db: pool}
}

func NewChunkIndexRepositoryWithTx(tx dbtx) *ChunkIndexRepository {
	return &ChunkIndexRepository{db: tx}
}

// Upsert inserts or refreshes one chunk. A chunk without an embedding is
// stored with a NULL vector and skipped by semantic search.
func (r *ChunkIndexRepository) Upsert(ctx context.Context, chunk *domain.Chunk) error {
	metadata, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return err
	}

	var embedding interface{}
	if len(chunk.Embedding) > 0 {
		embedding = pgvector.NewVector(chunk.Embedding)
	}

	timestamp := chunk.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO memory_chunks (id, title, content, chunk_type, embedding, recorded_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			chunk_type = EXCLUDED.chunk_type,
			embedding = COALESCE(EXCLUDED.embedding, memory_chunks.embedding),
			metadata = EXCLUDED.metadata`,
		chunk.ID,
		chunk.Title,
		chunk.Content,
		string(chunk.Type),
		embedding,
		timestamp,
		metadata,
	)
	return err
}

// UpsertBatch upserts a set of chunks through the same statement.
func (r *ChunkIndexRepository) UpsertBatch(ctx context.Context, chunks []*domain.Chunk) error {
	for _, chunk := range chunks {
		if err := r.Upsert(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// GetByID fetches one chunk from the index.
func (r *ChunkIndexRepository) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, title, content, chunk_type, recorded_at, metadata
		 FROM memory_chunks WHERE id = $1`, id)

	chunk, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return chunk, nil
}

// SearchByEmbedding returns the closest chunks by cosine distance, scored
// as 1/(1+distance) so higher is better.
func (r *ChunkIndexRepository) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]*domain.ScoredChunk, error) {
	if limit <= 0 {
		limit = 20
	}

	vec := pgvector.NewVector(embedding)
	rows, err := r.db.Query(ctx,
		`SELECT id, title, content, chunk_type, recorded_at, metadata,
			1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM memory_chunks
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*domain.ScoredChunk, 0, limit)
	for rows.Next() {
		var (
			chunk     domain.Chunk
			chunkType string
			metadata  []byte
			score     float64
		)
		if err := rows.Scan(&chunk.ID, &chunk.Title, &chunk.Content, &chunkType, &chunk.Timestamp, &metadata, &score); err != nil {
			return nil, err
		}
		chunk.Type = domain.ChunkType(chunkType)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &chunk.Metadata)
		}
		results = append(results, &domain.ScoredChunk{
			Chunk:      &chunk,
			Score:      score,
			SearchType: domain.SearchTypeHybrid,
		})
	}
	return results, rows.Err()
}

// CountEmbedded reports how many indexed chunks carry an embedding.
func (r *ChunkIndexRepository) CountEmbedded(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM memory_chunks WHERE embedding IS NOT NULL`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanChunk reads the non-vector columns; stored embeddings are queried
// through distance expressions, never scanned back.
func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var (
		chunk     domain.Chunk
		chunkType string
		metadata  []byte
	)
	if err := row.Scan(&chunk.ID, &chunk.Title, &chunk.Content, &chunkType, &chunk.Timestamp, &metadata); err != nil {
		return nil, err
	}
	chunk.Type = domain.ChunkType(chunkType)
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &chunk.Metadata)
	}
	return &chunk, nil
}
