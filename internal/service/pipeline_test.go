package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/recall-labs/recallai/internal/domain"
	"github.com/recall-labs/recallai/internal/openai"
	"github.com/recall-labs/recallai/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockMemoryStore mocks the chunk store surface
type MockMemoryStore struct {
	mock.Mock
}

func (m *MockMemoryStore) SearchMemories(ctx context.Context, query string, limit int) ([]*domain.ScoredChunk, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScoredChunk), args.Error(1)
}

func (m *MockMemoryStore) AddMemory(ctx context.Context, input store.MemoryInput) (*domain.Interaction, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Interaction), args.Error(1)
}

// MockEmbedder mocks the embedding service
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockLanguageModel mocks the generation interface
type MockLanguageModel struct {
	mock.Mock
}

func (m *MockLanguageModel) Generate(ctx context.Context, systemPrompt, userPrompt string, opts openai.GenerateOptions) (string, error) {
	args := m.Called(ctx, systemPrompt, userPrompt, opts)
	return args.String(0), args.Error(1)
}

func scoredChunk(id string, salientType domain.ChunkType, content string, embedding []float32) *domain.ScoredChunk {
	chunk := domain.NewChunk(id, content, salientType)
	chunk.Embedding = embedding
	return &domain.ScoredChunk{Chunk: chunk, Score: 0.5, SearchType: domain.SearchTypeHybrid}
}

func TestContextPipeline_Respond_EmptyQuery(t *testing.T) {
	pipeline := NewContextPipeline(new(MockMemoryStore), new(MockEmbedder), new(MockLanguageModel))

	resp, err := pipeline.Respond(context.Background(), "  ", "session-1")

	assert.Nil(t, resp)
	assert.Equal(t, domain.ErrInvalidQuery, err)
}

func TestContextPipeline_Respond_HappyPath(t *testing.T) {
	memories := new(MockMemoryStore)
	embedder := new(MockEmbedder)
	llm := new(MockLanguageModel)
	pipeline := NewContextPipeline(memories, embedder, llm)

	candidates := []*domain.ScoredChunk{
		scoredChunk("c1", domain.ChunkTypeDocumentation, "deployment uses blue-green rollouts", []float32{1, 0}),
		scoredChunk("c2", domain.ChunkTypeFact, "rollbacks complete in 30 seconds", []float32{0.9, 0.1}),
	}

	embedder.On("Generate", mock.Anything, "how do deployments work?").Return([]float32{1, 0}, nil)
	memories.On("SearchMemories", mock.Anything, "how do deployments work?", 200).Return(candidates, nil)
	memories.On("SearchMemories", mock.Anything, "how do deployments work?", 500).Return(candidates, nil)
	llm.On("Generate", mock.Anything, mock.Anything, "how do deployments work?", mock.Anything).
		Return("Deployments use blue-green rollouts and roll back within 30 seconds when health checks fail.", nil)
	memories.On("AddMemory", mock.Anything, mock.Anything).Return(&domain.Interaction{ID: "i1"}, nil)

	resp, err := pipeline.Respond(context.Background(), "how do deployments work?", "session-1")

	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text)
	assert.Equal(t, 2, resp.CardCount)
	assert.False(t, resp.Truncated)
	assert.True(t, resp.Stored)
	llm.AssertExpectations(t)
}

func TestContextPipeline_Respond_ExpandedRetryOnThinResults(t *testing.T) {
	memories := new(MockMemoryStore)
	embedder := new(MockEmbedder)
	llm := new(MockLanguageModel)
	pipeline := NewContextPipeline(memories, embedder, llm)

	thin := []*domain.ScoredChunk{
		scoredChunk("c1", domain.ChunkTypeFact, "only one result", []float32{1, 0}),
	}
	wide := []*domain.ScoredChunk{
		scoredChunk("c1", domain.ChunkTypeFact, "only one result", []float32{1, 0}),
		scoredChunk("c2", domain.ChunkTypeFact, "a second result", []float32{0.5, 0.5}),
	}

	embedder.On("Generate", mock.Anything, mock.Anything).Return([]float32{1, 0}, nil)
	memories.On("SearchMemories", mock.Anything, "q", 200).Return(thin, nil).Once()
	memories.On("SearchMemories", mock.Anything, "q", 500).Return(wide, nil).Once()
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("short", nil)

	_, err := pipeline.Respond(context.Background(), "q", "")

	require.NoError(t, err)
	memories.AssertExpectations(t)
}

func TestContextPipeline_Respond_RetrievalFailureDegrades(t *testing.T) {
	memories := new(MockMemoryStore)
	embedder := new(MockEmbedder)
	llm := new(MockLanguageModel)
	pipeline := NewContextPipeline(memories, embedder, llm)

	embedder.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("embedder down"))
	memories.On("SearchMemories", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("store down"))
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("best effort answer", nil)

	resp, err := pipeline.Respond(context.Background(), "anything", "")

	require.NoError(t, err)
	assert.Equal(t, "best effort answer", resp.Text)
	assert.Equal(t, 0, resp.CardCount)
}

func TestContextPipeline_Respond_LLMErrorSurfaces(t *testing.T) {
	memories := new(MockMemoryStore)
	embedder := new(MockEmbedder)
	llm := new(MockLanguageModel)
	pipeline := NewContextPipeline(memories, embedder, llm)

	embedder.On("Generate", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	memories.On("SearchMemories", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.ScoredChunk{}, nil)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("model overloaded"))

	resp, err := pipeline.Respond(context.Background(), "q", "")

	assert.Nil(t, resp)
	assert.EqualError(t, err, "model overloaded")
}

func TestContextPipeline_ShortResponseNotStored(t *testing.T) {
	memories := new(MockMemoryStore)
	embedder := new(MockEmbedder)
	llm := new(MockLanguageModel)
	pipeline := NewContextPipeline(memories, embedder, llm)

	embedder.On("Generate", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	memories.On("SearchMemories", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.ScoredChunk{}, nil)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("too short", nil)

	resp, err := pipeline.Respond(context.Background(), "q", "")

	require.NoError(t, err)
	assert.False(t, resp.Stored)
	memories.AssertNotCalled(t, "AddMemory")
}

func TestContextPipeline_DuplicateExchangeNotStoredTwice(t *testing.T) {
	memories := new(MockMemoryStore)
	embedder := new(MockEmbedder)
	llm := new(MockLanguageModel)
	pipeline := NewContextPipeline(memories, embedder, llm)

	answer := "The service retries failed calls 3 times with exponential backoff starting at 300 milliseconds, " +
		"doubles the delay on each attempt, and returns the final error unchanged when every attempt fails. " +
		"Concurrency is limited to 4 in-flight requests so a burst of traffic never overwhelms the upstream provider."

	embedder.On("Generate", mock.Anything, mock.Anything).Return([]float32{1}, nil)
	memories.On("SearchMemories", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.ScoredChunk{}, nil)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(answer, nil)
	memories.On("AddMemory", mock.Anything, mock.Anything).Return(&domain.Interaction{ID: "i1"}, nil).Once()

	first, err := pipeline.Respond(context.Background(), "same question", "")
	require.NoError(t, err)
	assert.True(t, first.Stored)

	second, err := pipeline.Respond(context.Background(), "same question", "")
	require.NoError(t, err)
	assert.False(t, second.Stored)
	memories.AssertExpectations(t)
}

func TestFillTokenBudget_NeverExceedsBudget(t *testing.T) {
	cfg := DefaultConfig()
	var selected []*scoredCandidate
	for i := 0; i < 50; i++ {
		content := ""
		for j := 0; j < 40*(i%7+1); j++ {
			content += "word "
		}
		chunk := domain.NewChunk(fmt.Sprintf("c%d", i), content, domain.ChunkTypeFact)
		selected = append(selected, &scoredCandidate{
			chunk:    &domain.ScoredChunk{Chunk: chunk},
			salience: float64(50 - i),
		})
	}

	cards, total := fillTokenBudget(selected, cfg.TokenBudget)

	assert.LessOrEqual(t, total, cfg.TokenBudget)
	sum := 0
	for _, card := range cards {
		sum += card.Tokens
	}
	assert.Equal(t, total, sum)
}

func TestDiversifyByType_EnforcesQuotasAndCap(t *testing.T) {
	cfg := DefaultConfig()
	var scored []*scoredCandidate
	add := func(id string, chunkType domain.ChunkType, salience float64) {
		scored = append(scored, &scoredCandidate{
			chunk:    &domain.ScoredChunk{Chunk: domain.NewChunk(id, "content "+id, chunkType)},
			salience: salience,
		})
	}
	for i := 0; i < 8; i++ {
		add(fmt.Sprintf("doc%d", i), domain.ChunkTypeDocumentation, float64(100-i))
	}
	for i := 0; i < 5; i++ {
		add(fmt.Sprintf("arch%d", i), domain.ChunkTypeArchitecture, float64(80-i))
	}
	for i := 0; i < 4; i++ {
		add(fmt.Sprintf("code%d", i), domain.ChunkTypeCode, float64(60-i))
	}
	for i := 0; i < 3; i++ {
		add(fmt.Sprintf("conv%d", i), domain.ChunkTypeConversationTurn, float64(40-i))
	}
	add("misc0", domain.ChunkTypeFact, 30)
	add("misc1", domain.ChunkTypeFact, 29)

	selected := diversifyByType(scored, cfg)

	counts := map[domain.ChunkType]int{}
	for _, cand := range selected {
		counts[cand.chunk.Chunk.Type]++
	}
	assert.LessOrEqual(t, len(selected), cfg.MaxSelected)
	assert.Equal(t, 4, counts[domain.ChunkTypeDocumentation])
	assert.Equal(t, 3, counts[domain.ChunkTypeArchitecture])
	assert.Equal(t, 2, counts[domain.ChunkTypeCode])
	assert.Equal(t, 1, counts[domain.ChunkTypeConversationTurn])
	assert.Equal(t, 0, counts[domain.ChunkTypeFact])
}

func TestRecencyBoost_Tiers(t *testing.T) {
	now := time.Now().UTC()

	assert.Equal(t, 0.10, recencyBoost(now.Add(-24*time.Hour), now, 0.15))
	assert.Equal(t, 0.05, recencyBoost(now.Add(-10*24*time.Hour), now, 0.15))
	assert.Equal(t, 0.0, recencyBoost(now.Add(-60*24*time.Hour), now, 0.15))
	assert.Equal(t, 0.0, recencyBoost(time.Time{}, now, 0.15))
}

func TestAuthorityBoost_Threshold(t *testing.T) {
	chunk := domain.NewChunk("c1", "content", domain.ChunkTypeFact)
	assert.Equal(t, 0.0, authorityBoost(chunk, 0.10))

	chunk.Metadata = map[string]interface{}{"importance": 0.9}
	assert.Equal(t, 0.10, authorityBoost(chunk, 0.10))

	chunk.Metadata = map[string]interface{}{"importance": 0.8}
	assert.Equal(t, 0.0, authorityBoost(chunk, 0.10))
}
