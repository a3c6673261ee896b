package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/recall-labs/recallai/internal/domain"
)

const (
	// DefaultBatchLimit caps how many chunks one poll cycle embeds
	DefaultBatchLimit = 16
)

// ChunkSource defines the store surface the backfill worker consumes
type ChunkSource interface {
	// MissingEmbeddings returns up to limit chunks without embeddings
	MissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error)

	// AttachEmbedding sets a late-computed embedding on a stored chunk
	AttachEmbedding(ctx context.Context, chunkID string, embedding []float32) error
}

// Embedder defines the interface for generating embeddings
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// IndexWriter mirrors freshly embedded chunks into a durable index
type IndexWriter interface {
	Upsert(ctx context.Context, chunk *domain.Chunk) error
}

// BackfillWorker fills in embeddings for chunks that were stored without one
type BackfillWorker struct {
	source     ChunkSource
	embedder   Embedder
	index      IndexWriter
	batchLimit int
}

// NewBackfillWorker creates a new BackfillWorker instance
func NewBackfillWorker(source ChunkSource, embedder Embedder, batchLimit int) *BackfillWorker {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	return &BackfillWorker{
		source:     source,
		embedder:   embedder,
		batchLimit: batchLimit,
	}
}

// WithIndex configures an optional durable index that receives every chunk
// after its embedding is attached.
func (w *BackfillWorker) WithIndex(index IndexWriter) *BackfillWorker {
	w.index = index
	return w
}

// ProcessJobs implements the JobProcessor interface
func (w *BackfillWorker) ProcessJobs(ctx context.Context) error {
	chunks, err := w.source.MissingEmbeddings(ctx, w.batchLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch chunks missing embeddings: %w", err)
	}

	if len(chunks) == 0 {
		return nil
	}

	log.Printf("Backfilling embeddings for %d chunks", len(chunks))

	filled := 0
	for _, chunk := range chunks {
		if err := w.backfillChunk(ctx, chunk); err != nil {
			log.Printf("Error backfilling chunk %s: %v", chunk.ID, err)
			continue
		}
		filled++
	}

	if filled > 0 {
		log.Printf("Backfilled %d of %d chunks", filled, len(chunks))
	}
	return nil
}

func (w *BackfillWorker) backfillChunk(ctx context.Context, chunk *domain.Chunk) error {
	embedding, err := w.embedder.Generate(ctx, chunk.Content)
	if err != nil {
		return fmt.Errorf("embedding generation failed: %w", err)
	}
	if err := w.source.AttachEmbedding(ctx, chunk.ID, embedding); err != nil {
		return fmt.Errorf("failed to attach embedding: %w", err)
	}

	if w.index != nil {
		indexed := *chunk
		indexed.Embedding = embedding
		if err := w.index.Upsert(ctx, &indexed); err != nil {
			// The in-memory store already has the embedding; index lag is
			// repaired on the next upsert of the same chunk.
			log.Printf("Error indexing chunk %s: %v", chunk.ID, err)
		}
	}
	return nil
}
