package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/recall-labs/recallai/internal/domain"
)

// SplitConfig controls how ingested documents are split into chunks.
type SplitConfig struct {
	MaxChars  int
	MinChars  int
	Overlap   int
	MaxChunks int
}

// DefaultSplitConfig provides sane defaults for document ingestion.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		MaxChars:  1200,
		MinChars:  400,
		Overlap:   200,
		MaxChunks: 40,
	}
}

// AddDocument splits a document into overlapping chunks and appends each as
// a keyed memory. It returns the ids of the stored chunks.
func (s *ChunkStore) AddDocument(ctx context.Context, title, content string, chunkType domain.ChunkType) ([]string, error) {
	pieces := splitText(content, DefaultSplitConfig())
	if len(pieces) == 0 {
		return nil, domain.ErrEmptyText
	}

	docID := uuid.NewString()
	ids := make([]string, 0, len(pieces))
	for i, piece := range pieces {
		input := MemoryInput{
			Kind:    KindKeyed,
			ID:      fmt.Sprintf("%s-%d", docID, i),
			Content: piece,
			Type:    chunkType,
			Metadata: map[string]interface{}{
				"title":       title,
				"document_id": docID,
				"chunk_index": i,
			},
		}
		interaction, err := s.AddMemory(ctx, input)
		if err != nil {
			return ids, err
		}
		ids = append(ids, interaction.ID)
	}
	return ids, nil
}

func splitText(text string, cfg SplitConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.MaxChars <= 0 {
		cfg = DefaultSplitConfig()
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChars {
		return []string{clean}
	}

	chunks := make([]string, 0, 8)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := start + cfg.MaxChars
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			cut := end
			minCut := start + cfg.MinChars
			if minCut > end {
				minCut = start
			}
			for i := end; i > minCut; i-- {
				if unicode.IsSpace(runes[i-1]) {
					cut = i
					break
				}
			}
			end = cut
		}

		if end <= start {
			break
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 {
			if end-start > cfg.Overlap {
				nextStart = end - cfg.Overlap
			}
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}
