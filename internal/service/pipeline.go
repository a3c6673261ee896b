package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/recall-labs/recallai/internal/domain"
	"github.com/recall-labs/recallai/internal/openai"
	"github.com/recall-labs/recallai/internal/store"
	"github.com/recall-labs/recallai/internal/telemetry"
)

// MemoryStore defines the chunk store surface the pipeline consumes.
type MemoryStore interface {
	SearchMemories(ctx context.Context, query string, limit int) ([]*domain.ScoredChunk, error)
	AddMemory(ctx context.Context, input store.MemoryInput) (*domain.Interaction, error)
}

// Embedder generates query embeddings for salience scoring.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// LanguageModel is the narrow generation interface.
type LanguageModel interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts openai.GenerateOptions) (string, error)
}

// Config controls the context pipeline.
type Config struct {
	RetrieveLimit     int
	ExpandedLimit     int
	MinCandidates     int
	SimilarityWeight  float64
	RecencyBoostCap   float64
	AuthorityBoost    float64
	MaxSelected       int
	TypeQuotas        map[domain.ChunkType]int
	DefaultQuota      int
	TokenBudget       int
	ResponseMaxTokens int
	MinConfidence     float64
	MinResponseLength int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		RetrieveLimit:    200,
		ExpandedLimit:    500,
		MinCandidates:    5,
		SimilarityWeight: 0.75,
		RecencyBoostCap:  0.15,
		AuthorityBoost:   0.10,
		MaxSelected:      10,
		TypeQuotas: map[domain.ChunkType]int{
			domain.ChunkTypeDocumentation:    4,
			domain.ChunkTypeArchitecture:     3,
			domain.ChunkTypeCode:             2,
			domain.ChunkTypeConversationTurn: 1,
		},
		DefaultQuota:      1,
		TokenBudget:       2200,
		ResponseMaxTokens: 1024,
		MinConfidence:     0.6,
		MinResponseLength: 40,
	}
}

// ContextPipeline assembles a token-budgeted retrieval context for one query,
// generates a response, and conditionally writes the exchange back to memory.
// It is state-free per invocation apart from the exchange deduper.
type ContextPipeline struct {
	memories MemoryStore
	embedder Embedder
	llm      LanguageModel
	dedup    *Deduper
	cfg      Config
}

// NewContextPipeline creates a pipeline with default configuration.
func NewContextPipeline(memories MemoryStore, embedder Embedder, llm LanguageModel) *ContextPipeline {
	return NewContextPipelineWithConfig(memories, embedder, llm, DefaultConfig())
}

// NewContextPipelineWithConfig creates a pipeline with explicit configuration.
func NewContextPipelineWithConfig(memories MemoryStore, embedder Embedder, llm LanguageModel, cfg Config) *ContextPipeline {
	return &ContextPipeline{
		memories: memories,
		embedder: embedder,
		llm:      llm,
		dedup:    NewDeduper(),
		cfg:      cfg,
	}
}

// Response is the pipeline output for one query.
type Response struct {
	Text       string
	Confidence float64
	CardCount  int
	Truncated  bool
	Stored     bool
}

// Respond runs the full pipeline. Failures in retrieval or embedding degrade
// the context instead of failing the request; only an invalid query or a
// language-model failure surfaces as an error.
func (p *ContextPipeline) Respond(ctx context.Context, query, sessionID string) (*Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrInvalidQuery
	}

	ctx, span := telemetry.StartSpan(ctx, "ContextPipeline.Respond", telemetry.SpanAttributes{
		SessionID: sessionID,
		Operation: "respond",
	})
	defer span.End()

	queryEmbedding, err := p.embedder.Generate(ctx, query)
	if err != nil {
		log.Printf("context pipeline: query embedding failed, salience degrades to lexical order: %v", err)
		queryEmbedding = nil
	}

	candidates := p.retrieve(ctx, query)

	scored := scoreSalience(queryEmbedding, candidates, p.cfg)
	selected := diversifyByType(scored, p.cfg)
	cards, total := fillTokenBudget(selected, p.cfg.TokenBudget)

	response, err := p.generate(ctx, query, cards)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	response, truncated := postProcess(response)

	confidence := estimateConfidence(response, averageSalience(scored))
	stored := p.maybeStore(ctx, query, response, sessionID, confidence)

	log.Printf("context pipeline: %d candidates, %d cards (%d tokens), confidence %.2f, stored=%v",
		len(candidates), len(cards), total, confidence, stored)

	return &Response{
		Text:       response,
		Confidence: confidence,
		CardCount:  len(cards),
		Truncated:  truncated,
		Stored:     stored,
	}, nil
}

// retrieve fetches candidates, issuing one expanded search when the first
// pass is too thin. A single retry, not a loop.
func (p *ContextPipeline) retrieve(ctx context.Context, query string) []*domain.ScoredChunk {
	candidates, err := p.memories.SearchMemories(ctx, query, p.cfg.RetrieveLimit)
	if err != nil {
		log.Printf("context pipeline: retrieval failed, continuing without context: %v", err)
		return nil
	}

	if len(candidates) < p.cfg.MinCandidates {
		expanded, err := p.memories.SearchMemories(ctx, query, p.cfg.ExpandedLimit)
		if err == nil && len(expanded) > len(candidates) {
			candidates = expanded
		}
	}
	return candidates
}

func (p *ContextPipeline) generate(ctx context.Context, query string, cards []*domain.ContextCard) (string, error) {
	var sb strings.Builder
	sb.WriteString("You are a memory-augmented assistant. Use the context below when it is relevant; say so when it is not.\n")
	if len(cards) > 0 {
		sb.WriteString("\nContext:\n")
		for i, card := range cards {
			sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, card.Content))
		}
	}

	return p.llm.Generate(ctx, sb.String(), query, openai.GenerateOptions{
		MaxTokens:   p.cfg.ResponseMaxTokens,
		Temperature: 0.7,
	})
}

// maybeStore persists the exchange when it clears the confidence and length
// gates and is not a recent duplicate. Persistence failure never fails the
// request.
func (p *ContextPipeline) maybeStore(ctx context.Context, query, response, sessionID string, confidence float64) bool {
	if confidence < p.cfg.MinConfidence || len(response) < p.cfg.MinResponseLength {
		return false
	}
	if p.dedup.IsDuplicate(query, response) {
		return false
	}

	_, err := p.memories.AddMemory(ctx, store.MemoryInput{
		Kind:      store.KindLegacy,
		Content:   fmt.Sprintf("Q: %s\nA: %s", query, response),
		SessionID: sessionID,
		Metadata: map[string]interface{}{
			"confidence": confidence,
		},
	})
	if err != nil {
		log.Printf("context pipeline: exchange write-back failed: %v", err)
		return false
	}
	return true
}

// fillTokenBudget sorts cards by priority and greedily admits them until the
// budget is exhausted. An O(n) greedy bin-fill, not an optimal knapsack.
func fillTokenBudget(selected []*scoredCandidate, budget int) ([]*domain.ContextCard, int) {
	cards := make([]*domain.ContextCard, 0, len(selected))
	for _, cand := range selected {
		cards = append(cards, &domain.ContextCard{
			CardID:   cand.chunk.Chunk.ID,
			Content:  cand.chunk.Chunk.Content,
			Tokens:   domain.EstimateTokens(cand.chunk.Chunk.Content),
			Priority: cand.salience,
		})
	}

	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].Priority > cards[j].Priority
	})

	admitted := cards[:0]
	total := 0
	for _, card := range cards {
		if total+card.Tokens > budget {
			continue
		}
		admitted = append(admitted, card)
		total += card.Tokens
	}
	return admitted, total
}
