package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/recall-labs/recallai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
	mu    sync.Mutex
	calls int
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockJobProcessor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockChunkSource is a mock implementation of ChunkSource
type MockChunkSource struct {
	mock.Mock
}

func (m *MockChunkSource) MissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chunk), args.Error(1)
}

func (m *MockChunkSource) AttachEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	args := m.Called(ctx, chunkID, embedding)
	return args.Error(0)
}

// MockEmbedder is a mock implementation of Embedder
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

func TestWorker_StartAndStop(t *testing.T) {
	processor := new(MockJobProcessor)
	processor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(processor, 10*time.Millisecond)
	go worker.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	worker.Stop()

	assert.GreaterOrEqual(t, processor.callCount(), 2)
}

func TestWorker_ContextCancellation(t *testing.T) {
	processor := new(MockJobProcessor)
	processor.On("ProcessJobs", mock.Anything).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	worker := NewWorker(processor, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestWorker_ContinuesAfterProcessorError(t *testing.T) {
	processor := new(MockJobProcessor)
	processor.On("ProcessJobs", mock.Anything).Return(errors.New("transient"))

	worker := NewWorker(processor, 10*time.Millisecond)
	go worker.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	worker.Stop()

	assert.GreaterOrEqual(t, processor.callCount(), 2)
}

func TestBackfillWorker_FillsMissingEmbeddings(t *testing.T) {
	source := new(MockChunkSource)
	embedder := new(MockEmbedder)

	chunks := []*domain.Chunk{
		domain.NewChunk("c1", "first content", domain.ChunkTypeFact),
		domain.NewChunk("c2", "second content", domain.ChunkTypeFact),
	}
	source.On("MissingEmbeddings", mock.Anything, DefaultBatchLimit).Return(chunks, nil)
	embedder.On("Generate", mock.Anything, "first content").Return([]float32{0.1, 0.2}, nil)
	embedder.On("Generate", mock.Anything, "second content").Return([]float32{0.3, 0.4}, nil)
	source.On("AttachEmbedding", mock.Anything, "c1", []float32{0.1, 0.2}).Return(nil)
	source.On("AttachEmbedding", mock.Anything, "c2", []float32{0.3, 0.4}).Return(nil)

	worker := NewBackfillWorker(source, embedder, 0)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	source.AssertExpectations(t)
	embedder.AssertExpectations(t)
}

func TestBackfillWorker_NoWorkIsQuiet(t *testing.T) {
	source := new(MockChunkSource)
	embedder := new(MockEmbedder)
	source.On("MissingEmbeddings", mock.Anything, 4).Return([]*domain.Chunk{}, nil)

	worker := NewBackfillWorker(source, embedder, 4)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	embedder.AssertNotCalled(t, "Generate")
}

func TestBackfillWorker_FetchFailureSurfaces(t *testing.T) {
	source := new(MockChunkSource)
	source.On("MissingEmbeddings", mock.Anything, mock.Anything).Return(nil, errors.New("store offline"))

	worker := NewBackfillWorker(source, new(MockEmbedder), 8)
	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
}

// MockIndexWriter is a mock implementation of IndexWriter
type MockIndexWriter struct {
	mock.Mock
}

func (m *MockIndexWriter) Upsert(ctx context.Context, chunk *domain.Chunk) error {
	args := m.Called(ctx, chunk)
	return args.Error(0)
}

func TestBackfillWorker_MirrorsToIndex(t *testing.T) {
	source := new(MockChunkSource)
	embedder := new(MockEmbedder)
	index := new(MockIndexWriter)

	chunks := []*domain.Chunk{
		domain.NewChunk("c1", "indexed content", domain.ChunkTypeFact),
	}
	source.On("MissingEmbeddings", mock.Anything, mock.Anything).Return(chunks, nil)
	embedder.On("Generate", mock.Anything, "indexed content").Return([]float32{0.7, 0.1}, nil)
	source.On("AttachEmbedding", mock.Anything, "c1", []float32{0.7, 0.1}).Return(nil)
	index.On("Upsert", mock.Anything, mock.MatchedBy(func(c *domain.Chunk) bool {
		return c.ID == "c1" && len(c.Embedding) == 2
	})).Return(nil)

	worker := NewBackfillWorker(source, embedder, 8).WithIndex(index)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	index.AssertExpectations(t)
}

func TestBackfillWorker_IndexErrorDoesNotFailJob(t *testing.T) {
	source := new(MockChunkSource)
	embedder := new(MockEmbedder)
	index := new(MockIndexWriter)

	chunks := []*domain.Chunk{
		domain.NewChunk("c1", "some content", domain.ChunkTypeFact),
	}
	source.On("MissingEmbeddings", mock.Anything, mock.Anything).Return(chunks, nil)
	embedder.On("Generate", mock.Anything, "some content").Return([]float32{0.2}, nil)
	source.On("AttachEmbedding", mock.Anything, "c1", []float32{0.2}).Return(nil)
	index.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("index offline"))

	worker := NewBackfillWorker(source, embedder, 8).WithIndex(index)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	source.AssertExpectations(t)
}

func TestBackfillWorker_PerChunkFailureSkips(t *testing.T) {
	source := new(MockChunkSource)
	embedder := new(MockEmbedder)

	chunks := []*domain.Chunk{
		domain.NewChunk("bad", "bad content", domain.ChunkTypeFact),
		domain.NewChunk("good", "good content", domain.ChunkTypeFact),
	}
	source.On("MissingEmbeddings", mock.Anything, mock.Anything).Return(chunks, nil)
	embedder.On("Generate", mock.Anything, "bad content").Return(nil, errors.New("model error"))
	embedder.On("Generate", mock.Anything, "good content").Return([]float32{0.5}, nil)
	source.On("AttachEmbedding", mock.Anything, "good", []float32{0.5}).Return(nil)

	worker := NewBackfillWorker(source, embedder, 8)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	source.AssertNotCalled(t, "AttachEmbedding", mock.Anything, "bad", mock.Anything)
}
