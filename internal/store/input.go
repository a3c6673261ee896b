package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/recall-labs/recallai/internal/domain"
)

// MemoryKind selects the calling convention for AddMemory. The original
// surface accepted several duck-typed argument shapes; here each shape is an
// explicit tagged variant resolved at the call site.
type MemoryKind string

const (
	// KindKeyed supplies an explicit id and chunk type.
	KindKeyed MemoryKind = "keyed"
	// KindLegacy is a bare content string; id and type are filled in.
	KindLegacy MemoryKind = "legacy"
	// KindStateRecord marks a session state snapshot.
	KindStateRecord MemoryKind = "stateRecord"
)

// MemoryInput is the single input type for AddMemory.
type MemoryInput struct {
	Kind      MemoryKind
	ID        string
	Content   string
	Type      domain.ChunkType
	SessionID string
	Metadata  map[string]interface{}
}

// Resolve converts the tagged input into an Interaction ready for append.
func (in MemoryInput) Resolve() (*domain.Interaction, error) {
	interaction := &domain.Interaction{
		Content:   in.Content,
		SessionID: in.SessionID,
		Metadata:  in.Metadata,
		Timestamp: time.Now().UTC(),
	}

	switch in.Kind {
	case KindKeyed:
		interaction.ID = in.ID
		interaction.Type = string(in.Type)
		if interaction.ID == "" {
			interaction.ID = uuid.NewString()
		}
	case KindLegacy:
		interaction.ID = uuid.NewString()
		interaction.Type = string(domain.ChunkTypeConversationTurn)
	case KindStateRecord:
		interaction.ID = uuid.NewString()
		interaction.Type = "state_record"
		if interaction.Metadata == nil {
			interaction.Metadata = map[string]interface{}{}
		}
		interaction.Metadata["state"] = true
	default:
		return nil, domain.ErrInvalidMemoryKind
	}

	if err := domain.ValidateInteraction(interaction); err != nil {
		return nil, err
	}
	return interaction, nil
}
