package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/recall-labs/recallai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	embedding []float32
	err       error
}

func (s *stubEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	return s.embedding, s.err
}

func chunkWithEmbedding(id, content string, embedding []float32) *domain.Chunk {
	chunk := domain.NewChunk(id, content, domain.ChunkTypeFact)
	chunk.Embedding = embedding
	return chunk
}

func TestCosineSimilarity_SelfIsOne(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.01}

	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_MismatchedDimensionsIsZero(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2}))
}

func TestCosineSimilarity_ZeroVectorIsZero(t *testing.T) {
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, []float32{1}))
}

func TestCosineSimilarity_OppositeVectors(t *testing.T) {
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}

func TestSearch_RespectsLimit(t *testing.T) {
	docs := []*domain.Chunk{
		chunkWithEmbedding("a", "postgres connection pooling", []float32{1, 0}),
		chunkWithEmbedding("b", "postgres vacuum tuning", []float32{0.9, 0.1}),
		chunkWithEmbedding("c", "postgres index design", []float32{0.8, 0.2}),
	}

	results := Search(context.Background(), Params{
		Query:        "postgres",
		Documents:    docs,
		VectorSearch: &stubEmbedder{embedding: []float32{1, 0}},
		Limit:        2,
	})

	assert.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, domain.SearchTypeHybrid, r.SearchType)
	}
}

func TestSearch_VectorLegRanksBySimilarity(t *testing.T) {
	docs := []*domain.Chunk{
		chunkWithEmbedding("far", "unrelated words entirely", []float32{0, 1}),
		chunkWithEmbedding("near", "unrelated words entirely", []float32{1, 0}),
	}

	results := Search(context.Background(), Params{
		Query:        "similarity ranking",
		Documents:    docs,
		VectorSearch: &stubEmbedder{embedding: []float32{1, 0}},
		Limit:        10,
	})

	require.NotEmpty(t, results)
	assert.Equal(t, "near", results[0].Chunk.ID)
}

func TestSearch_FallsBackToKeywordOnVectorFailure(t *testing.T) {
	docs := []*domain.Chunk{
		chunkWithEmbedding("a", "the deploy pipeline uses blue-green rollouts", []float32{1, 0}),
		chunkWithEmbedding("b", "nothing relevant here", []float32{0, 1}),
	}

	results := Search(context.Background(), Params{
		Query:        "deploy pipeline",
		Documents:    docs,
		VectorSearch: &stubEmbedder{err: errors.New("embedding service down")},
		Limit:        10,
	})

	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.Equal(t, domain.SearchTypeKeyword, results[0].SearchType)
	assert.Equal(t, 0.5, results[0].Score)
}

func TestSearch_EmptyInputs(t *testing.T) {
	assert.Empty(t, Search(context.Background(), Params{Query: "  ", Documents: []*domain.Chunk{domain.NewChunk("a", "x", "")}}))
	assert.Empty(t, Search(context.Background(), Params{Query: "q", Documents: nil}))
}

func TestSearch_LexicalOnlyWithoutEmbedder(t *testing.T) {
	docs := []*domain.Chunk{
		domain.NewChunk("match", "token budget assembly for retrieval context", domain.ChunkTypeDocumentation),
		domain.NewChunk("miss", "grocery list apples bananas", domain.ChunkTypeFact),
	}

	results := Search(context.Background(), Params{
		Query:     "token budget",
		Documents: docs,
		Limit:     5,
	})

	require.Len(t, results, 1)
	assert.Equal(t, "match", results[0].Chunk.ID)
}

func TestTokenize_FiltersStopwords(t *testing.T) {
	tokens := Tokenize("What is the token budget for this pipeline?")

	assert.Equal(t, []string{"token", "budget", "pipeline"}, tokens)
}

func TestKeywordQuery_PreservesCase(t *testing.T) {
	assert.Equal(t, "Token Budget", KeywordQuery("the Token Budget"))
}

func TestQueryVariants_SplitsAndDeduplicates(t *testing.T) {
	variants := QueryVariants("caching strategy, eviction policy and TTL handling", 6)

	assert.Contains(t, variants, "caching strategy")
	assert.Contains(t, variants, "eviction policy")
	assert.Contains(t, variants, "TTL handling")
	assert.LessOrEqual(t, len(variants), 6)

	assert.Nil(t, QueryVariants("anything", 0))
	assert.Nil(t, QueryVariants("   ", 3))
}
