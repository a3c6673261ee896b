package retrieval

import (
	"context"
	"log"
	"sort"
	"strings"

	"github.com/recall-labs/recallai/internal/domain"
)

const (
	// DefaultBM25Weight is the lexical share of the fused score
	DefaultBM25Weight = 0.4
	// DefaultVectorWeight is the vector share of the fused score
	DefaultVectorWeight = 0.6
	// keywordFallbackScore is the uniform score assigned to degraded
	// keyword-only matches so consumers can recognize them
	keywordFallbackScore = 0.5
)

// QueryEmbedder produces a query embedding for the vector leg.
type QueryEmbedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Params configures one hybrid search invocation.
type Params struct {
	Query        string
	Documents    []*domain.Chunk
	VectorSearch QueryEmbedder // nil disables the vector leg
	Limit        int
	BM25Weight   float64
	VectorWeight float64
}

// Search fuses a lexical term-frequency score with cosine similarity over
// stored embeddings. Any failure in the vector leg degrades to a pure
// keyword match tagged SearchTypeKeyword; Search itself never fails.
func Search(ctx context.Context, p Params) []*domain.ScoredChunk {
	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.BM25Weight == 0 && p.VectorWeight == 0 {
		p.BM25Weight = DefaultBM25Weight
		p.VectorWeight = DefaultVectorWeight
	}

	query := strings.TrimSpace(p.Query)
	if query == "" || len(p.Documents) == 0 {
		return []*domain.ScoredChunk{}
	}

	var queryEmbedding []float32
	if p.VectorSearch != nil {
		var err error
		queryEmbedding, err = p.VectorSearch.Generate(ctx, query)
		if err != nil {
			log.Printf("hybrid search: vector leg unavailable, falling back to keyword match: %v", err)
			return keywordFallback(query, p.Documents, p.Limit)
		}
	}

	queryTerms := Tokenize(query)
	scored := make([]*domain.ScoredChunk, 0, len(p.Documents))

	for _, doc := range p.Documents {
		if doc == nil {
			continue
		}

		lexical := lexicalScore(queryTerms, doc)

		vector := 0.0
		if len(queryEmbedding) > 0 && len(doc.Embedding) > 0 {
			vector = CosineSimilarity(queryEmbedding, doc.Embedding)
		}

		fused := p.BM25Weight*lexical + p.VectorWeight*vector
		if fused <= 0 {
			continue
		}

		scored = append(scored, &domain.ScoredChunk{
			Chunk:      doc,
			Score:      fused,
			SearchType: domain.SearchTypeHybrid,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > p.Limit {
		scored = scored[:p.Limit]
	}
	return scored
}

// lexicalScore is a term-frequency relevance score: the share of the
// document's terms matching each query term, summed and clamped to 1.
func lexicalScore(queryTerms []string, doc *domain.Chunk) float64 {
	if len(queryTerms) == 0 {
		return 0
	}

	docTerms := Tokenize(doc.Title + " " + doc.Content)
	if len(docTerms) == 0 {
		return 0
	}

	counts := make(map[string]int, len(docTerms))
	for _, term := range docTerms {
		counts[term]++
	}

	score := 0.0
	for _, term := range queryTerms {
		score += float64(counts[term]) / float64(len(docTerms))
	}

	// Reward matching a larger share of distinct query terms.
	matched := 0
	for _, term := range queryTerms {
		if counts[term] > 0 {
			matched++
		}
	}
	score += 0.5 * float64(matched) / float64(len(queryTerms))

	if score > 1 {
		score = 1
	}
	return score
}

func keywordFallback(query string, documents []*domain.Chunk, limit int) []*domain.ScoredChunk {
	needle := strings.ToLower(strings.TrimSpace(query))
	keyword := strings.ToLower(KeywordQuery(query))

	results := make([]*domain.ScoredChunk, 0, limit)
	for _, doc := range documents {
		if doc == nil {
			continue
		}
		haystack := strings.ToLower(doc.Title + " " + doc.Content)
		if !strings.Contains(haystack, needle) && !containsAnyTerm(haystack, keyword) {
			continue
		}
		results = append(results, &domain.ScoredChunk{
			Chunk:      doc,
			Score:      keywordFallbackScore,
			SearchType: domain.SearchTypeKeyword,
		})
		if len(results) >= limit {
			break
		}
	}
	return results
}

func containsAnyTerm(haystack, keyword string) bool {
	if keyword == "" {
		return false
	}
	for _, term := range strings.Fields(keyword) {
		if strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}
