package domain

import (
	"strings"
	"time"
)

// ChunkType tags a chunk with its content category.
type ChunkType string

const (
	ChunkTypeFact              ChunkType = "fact"
	ChunkTypeDocumentation     ChunkType = "documentation"
	ChunkTypeArchitecture      ChunkType = "architecture"
	ChunkTypeCode              ChunkType = "code"
	ChunkTypeConversationTurn  ChunkType = "conversation_turn"
	ChunkTypeResearchSynthesis ChunkType = "research_synthesis"
)

// Chunk is a unit of retrievable knowledge. Chunks are append-only: once
// created they are never mutated except to attach a late-computed embedding.
type Chunk struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title,omitempty"`
	Content   string                 `json:"content"`
	Type      ChunkType              `json:"type,omitempty"`
	Embedding []float32              `json:"embedding,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewChunk creates a Chunk with the current timestamp.
func NewChunk(id, content string, chunkType ChunkType) *Chunk {
	return &Chunk{
		ID:        id,
		Content:   content,
		Type:      chunkType,
		Timestamp: time.Now().UTC(),
	}
}

// ValidateChunk validates a Chunk instance. The expected embedding dimension
// is only enforced when the chunk carries an embedding; chunks without one
// are valid and simply skip the vector leg of retrieval.
func ValidateChunk(c *Chunk, expectedDims int) error {
	if c == nil {
		return ErrInvalidChunk
	}
	if c.ID == "" || strings.TrimSpace(c.Content) == "" {
		return ErrInvalidChunk
	}
	if len(c.Embedding) > 0 && expectedDims > 0 && len(c.Embedding) != expectedDims {
		return NewDimensionMismatchError(expectedDims, len(c.Embedding))
	}
	return nil
}

// Importance returns the stored importance/authority signal from metadata,
// or 0 when absent. Both float and int JSON encodings are accepted.
func (c *Chunk) Importance() float64 {
	if c.Metadata == nil {
		return 0
	}
	switch v := c.Metadata["importance"].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// ScoredChunk pairs a chunk with its retrieval score.
type ScoredChunk struct {
	Chunk      *Chunk
	Score      float64
	SearchType string
}

// Search type markers carried on scored chunks so downstream consumers can
// distinguish degraded keyword-only results from full hybrid results.
const (
	SearchTypeHybrid  = "hybrid"
	SearchTypeKeyword = "keyword"
)
