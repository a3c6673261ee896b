package research

import (
	"context"
	"errors"
	"testing"

	"github.com/recall-labs/recallai/internal/domain"
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

// MockGovernance mocks the governance collaborator
type MockGovernance struct {
	mock.Mock
}

func (m *MockGovernance) PlanAspects(ctx context.Context, query string, maxAspects int) ([]Aspect, error) {
	args := m.Called(ctx, query, maxAspects)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Aspect), args.Error(1)
}

func (m *MockGovernance) RerankSources(ctx context.Context, aspect Aspect, sources []Source, limit int) ([]Source, error) {
	args := m.Called(ctx, aspect, sources, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Source), args.Error(1)
}

func (m *MockGovernance) CheckCoverage(ctx context.Context, aspect Aspect, summary string) (*CoverageResult, error) {
	args := m.Called(ctx, aspect, summary)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CoverageResult), args.Error(1)
}

func (m *MockGovernance) MineConnections(ctx context.Context, summaries []Summary) (*MiningResult, error) {
	args := m.Called(ctx, summaries)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MiningResult), args.Error(1)
}

// MockGraphWriter mocks the optional graph edge capability
type MockGraphWriter struct {
	mock.Mock
}

func (m *MockGraphWriter) AddEdge(ctx context.Context, fromID, toID, edgeType, description string) error {
	args := m.Called(ctx, fromID, toID, edgeType, description)
	return args.Error(0)
}

func candidateChunks(ids ...string) []*domain.ScoredChunk {
	out := make([]*domain.ScoredChunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, &domain.ScoredChunk{
			Chunk: domain.NewChunk(id, "content of "+id, domain.ChunkTypeFact),
			Score: 0.7,
		})
	}
	return out
}

func passthroughRerank(gov *MockGovernance) {
	gov.On("RerankSources", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("rerank unavailable"))
}

func TestOrchestrator_Start_RejectsEmptyQuery(t *testing.T) {
	orch := NewOrchestrator(new(MockMemoryStore), new(MockGovernance), new(MockLanguageModel), nil)

	_, err := orch.Start("   ")

	assert.Equal(t, domain.ErrInvalidQuery, err)
}

func TestOrchestrator_Get_UnknownWorkspace(t *testing.T) {
	orch := NewOrchestrator(new(MockMemoryStore), new(MockGovernance), new(MockLanguageModel), nil)

	_, err := orch.Get("nope")

	assert.Equal(t, domain.ErrWorkspaceNotFound, err)
}

func TestOrchestrator_Run_FullPipeline(t *testing.T) {
	memories := new(MockMemoryStore)
	gov := new(MockGovernance)
	llm := new(MockLanguageModel)
	graph := new(MockGraphWriter)
	orch := NewOrchestrator(memories, gov, llm, graph)

	aspects := []Aspect{
		{Name: "performance", MustCover: []string{"latency"}},
		{Name: "cost"},
	}
	gov.On("PlanAspects", mock.Anything, "compare engines", 6).Return(aspects, nil)
	memories.On("SearchMemories", mock.Anything, "performance", 60).Return(candidateChunks("p1", "p2"), nil)
	memories.On("SearchMemories", mock.Anything, "cost", 60).Return(candidateChunks("c1"), nil)
	gov.On("RerankSources", mock.Anything, mock.Anything, mock.Anything, 40).
		Return(nil, errors.New("rerank unavailable"))
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("generated text", nil)
	gov.On("CheckCoverage", mock.Anything, mock.Anything, "generated text").
		Return(&CoverageResult{Passed: true, Confidence: 0.9}, nil)
	gov.On("MineConnections", mock.Anything, mock.Anything).Return(&MiningResult{
		Connections: []Connection{{From: "p1", To: "c1", Type: "tradeoff", Description: "speed vs price"}},
	}, nil)
	memories.On("AddMemory", mock.Anything, mock.MatchedBy(func(in store.MemoryInput) bool {
		return in.Type == domain.ChunkTypeResearchSynthesis && in.Kind == store.KindKeyed
	})).Return(&domain.Interaction{ID: "i1"}, nil)
	graph.On("AddEdge", mock.Anything, "p1", "c1", "tradeoff", "speed vs price").Return(nil)

	ws, err := orch.Start("compare engines")
	require.NoError(t, err)

	done, err := orch.Run(context.Background(), ws.ID)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 2, done.Progress.AspectsPlanned)
	assert.Equal(t, 3, done.Progress.SourcesGathered)
	assert.Equal(t, 2, done.Progress.SummariesProduced)
	assert.Equal(t, 1, done.Progress.ConnectionsFound)
	assert.Equal(t, "generated text", done.Synthesis)
	assert.GreaterOrEqual(t, done.Quality.CompletenessScore, 0.0)
	assert.LessOrEqual(t, done.Quality.CompletenessScore, 1.0)
	graph.AssertExpectations(t)
	memories.AssertExpectations(t)
}

func TestOrchestrator_Run_PlanningFailureFallsBackToGeneralAnalysis(t *testing.T) {
	memories := new(MockMemoryStore)
	gov := new(MockGovernance)
	llm := new(MockLanguageModel)
	orch := NewOrchestrator(memories, gov, llm, nil)

	gov.On("PlanAspects", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("model down"))
	memories.On("SearchMemories", mock.Anything, "General analysis", 60).Return(candidateChunks("g1"), nil)
	passthroughRerank(gov)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("text", nil)
	gov.On("CheckCoverage", mock.Anything, mock.Anything, mock.Anything).
		Return(&CoverageResult{Passed: true, Confidence: 0.5}, nil)
	gov.On("MineConnections", mock.Anything, mock.Anything).Return(&MiningResult{}, nil)
	memories.On("AddMemory", mock.Anything, mock.Anything).Return(&domain.Interaction{ID: "i1"}, nil)

	ws, err := orch.Start("anything")
	require.NoError(t, err)

	done, err := orch.Run(context.Background(), ws.ID)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.Len(t, done.Aspects, 1)
	assert.Equal(t, "General analysis", done.Aspects[0].Name)
}

func TestOrchestrator_Run_CoverageFailureTriggersSingleRemediation(t *testing.T) {
	memories := new(MockMemoryStore)
	gov := new(MockGovernance)
	llm := new(MockLanguageModel)
	orch := NewOrchestrator(memories, gov, llm, nil)

	aspect := Aspect{Name: "durability", MustCover: []string{"fsync"}}
	gov.On("PlanAspects", mock.Anything, mock.Anything, mock.Anything).Return([]Aspect{aspect}, nil)
	memories.On("SearchMemories", mock.Anything, "durability", 60).Return(candidateChunks("d1", "d2"), nil)
	passthroughRerank(gov)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("summary text", nil)

	// First audit fails naming a missing item, the post-remediation audit passes.
	gov.On("CheckCoverage", mock.Anything, mock.Anything, mock.Anything).
		Return(&CoverageResult{Passed: false, Confidence: 0.3, Missing: []string{"fsync"}}, nil).Once()
	gov.On("CheckCoverage", mock.Anything, mock.Anything, mock.Anything).
		Return(&CoverageResult{Passed: true, Confidence: 0.85}, nil).Once()

	memories.On("SearchMemories", mock.Anything, "durability fsync", 3).
		Return(candidateChunks("extra1"), nil).Once()

	gov.On("MineConnections", mock.Anything, mock.Anything).Return(&MiningResult{}, nil)
	memories.On("AddMemory", mock.Anything, mock.Anything).Return(&domain.Interaction{ID: "i1"}, nil)

	ws, err := orch.Start("durability research")
	require.NoError(t, err)

	done, err := orch.Run(context.Background(), ws.ID)

	require.NoError(t, err)
	require.Len(t, done.Summaries, 1)
	assert.True(t, done.Summaries[0].Enhanced)
	assert.InDelta(t, 0.85, done.Summaries[0].Coverage, 1e-9)
	assert.Contains(t, done.Summaries[0].SourceIDs, "extra1")
	memories.AssertExpectations(t)
	gov.AssertExpectations(t)
}

func TestOrchestrator_GatherRemediation_TriesQueryVariants(t *testing.T) {
	memories := new(MockMemoryStore)
	orch := NewOrchestrator(memories, new(MockGovernance), new(MockLanguageModel), nil)

	aspect := Aspect{Name: "replication"}
	batch := []Source{{ChunkID: "r1"}}

	// The comma in the missing item splits the remediation query into clause
	// variants, each searched in turn; sources already in the batch are skipped.
	memories.On("SearchMemories", mock.Anything, "replication quorum writes", 3).
		Return(candidateChunks("extra1"), nil).Once()
	memories.On("SearchMemories", mock.Anything, "leader election", 3).
		Return(candidateChunks("r1", "extra2"), nil).Once()
	memories.On("SearchMemories", mock.Anything, "replication quorum writes, leader election", 3).
		Return(nil, nil).Once()

	extra := orch.gatherRemediation(context.Background(), aspect, batch, []string{"quorum writes, leader election"})

	ids := make([]string, 0, len(extra))
	for _, src := range extra {
		ids = append(ids, src.ChunkID)
	}
	assert.Equal(t, []string{"extra1", "extra2"}, ids)
	memories.AssertExpectations(t)
}

func TestOrchestrator_Run_DegradesToEmptyWithoutSources(t *testing.T) {
	memories := new(MockMemoryStore)
	gov := new(MockGovernance)
	llm := new(MockLanguageModel)
	orch := NewOrchestrator(memories, gov, llm, nil)

	gov.On("PlanAspects", mock.Anything, mock.Anything, mock.Anything).
		Return([]Aspect{{Name: "a"}}, nil)
	memories.On("SearchMemories", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("store offline"))
	gov.On("MineConnections", mock.Anything, mock.Anything).Return(&MiningResult{}, nil)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("best effort synthesis", nil)
	memories.On("AddMemory", mock.Anything, mock.Anything).Return(&domain.Interaction{ID: "i1"}, nil)

	ws, err := orch.Start("q")
	require.NoError(t, err)

	done, err := orch.Run(context.Background(), ws.ID)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Empty(t, done.Sources)
	assert.Empty(t, done.Summaries)
	assert.Equal(t, "best effort synthesis", done.Synthesis)
}

func TestOrchestrator_Run_RejectsSecondRun(t *testing.T) {
	memories := new(MockMemoryStore)
	gov := new(MockGovernance)
	llm := new(MockLanguageModel)
	orch := NewOrchestrator(memories, gov, llm, nil)

	gov.On("PlanAspects", mock.Anything, mock.Anything, mock.Anything).Return([]Aspect{{Name: "a"}}, nil)
	memories.On("SearchMemories", mock.Anything, mock.Anything, mock.Anything).Return(candidateChunks("c1"), nil)
	passthroughRerank(gov)
	llm.On("Generate", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("text", nil)
	gov.On("CheckCoverage", mock.Anything, mock.Anything, mock.Anything).
		Return(&CoverageResult{Passed: true, Confidence: 0.7}, nil)
	gov.On("MineConnections", mock.Anything, mock.Anything).Return(&MiningResult{}, nil)
	memories.On("AddMemory", mock.Anything, mock.Anything).Return(&domain.Interaction{ID: "i1"}, nil)

	ws, err := orch.Start("q")
	require.NoError(t, err)

	_, err = orch.Run(context.Background(), ws.ID)
	require.NoError(t, err)

	_, err = orch.Run(context.Background(), ws.ID)
	assert.Error(t, err)
}

func TestOrchestrator_ExportImport_Roundtrip(t *testing.T) {
	orch := NewOrchestrator(new(MockMemoryStore), new(MockGovernance), new(MockLanguageModel), nil)

	ws, err := orch.Start("persisted research")
	require.NoError(t, err)

	data, err := orch.Export(ws.ID)
	require.NoError(t, err)

	restored, err := orch.Import(data)
	require.NoError(t, err)
	assert.Equal(t, ws.ID, restored.ID)

	fetched, err := orch.Get(ws.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted research", fetched.Query)
}

func TestQualityScore_Composite(t *testing.T) {
	ws := NewWorkspace("q")
	ws.Aspects = []Aspect{{Name: "a"}, {Name: "b"}}
	ws.Summaries = []Summary{
		{Aspect: "a", Coverage: 0.8},
		{Aspect: "b", Coverage: 0.6},
	}
	ws.Connections = []Connection{{From: "x", To: "y"}}
	ws.Synthesis = string(make([]byte, 500))

	// 0.3*0.7 + 0.3*1.0 + 0.2*(1/1) + 0.2*0.5 = 0.81
	assert.InDelta(t, 0.81, qualityScore(ws), 1e-9)
}

func TestQualityScore_EmptyWorkspace(t *testing.T) {
	ws := NewWorkspace("q")
	assert.Equal(t, 0.0, qualityScore(ws))
}
