package domain

import (
	"strings"
	"time"
)

// Interaction is a persisted record of one conversational exchange. It is
// appended synchronously in memory and flushed to the interaction log file
// asynchronously; a crash between append and flush loses the increment.
type Interaction struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Type      string                 `json:"type,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"sessionId,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Embedding []float32              `json:"embedding,omitempty"`
}

// ValidateInteraction validates an Interaction instance
func ValidateInteraction(i *Interaction) error {
	if i == nil {
		return NewDomainError(ErrCodeInvalidInput, "interaction cannot be nil")
	}
	if i.ID == "" {
		return NewDomainError(ErrCodeInvalidInput, "interaction ID is required")
	}
	if strings.TrimSpace(i.Content) == "" {
		return NewDomainError(ErrCodeInvalidInput, "interaction content is required")
	}
	return nil
}

// AsChunk projects the interaction into a retrievable chunk. Only
// interactions that already carry embeddings participate in retrieval.
func (i *Interaction) AsChunk() *Chunk {
	chunkType := ChunkType(i.Type)
	if chunkType == "" {
		chunkType = ChunkTypeConversationTurn
	}
	return &Chunk{
		ID:        i.ID,
		Content:   i.Content,
		Type:      chunkType,
		Embedding: i.Embedding,
		Timestamp: i.Timestamp,
		Metadata:  i.Metadata,
	}
}
