package service

import (
	"sort"
	"time"

	"github.com/recall-labs/recallai/internal/domain"
	"github.com/recall-labs/recallai/internal/retrieval"
)

type scoredCandidate struct {
	chunk    *domain.ScoredChunk
	salience float64
}

// scoreSalience computes the fast salience score for each candidate:
// similarityWeight·cosine + recency boost + authority boost.
func scoreSalience(queryEmbedding []float32, candidates []*domain.ScoredChunk, cfg Config) []*scoredCandidate {
	now := time.Now().UTC()
	scored := make([]*scoredCandidate, 0, len(candidates))
	for _, cand := range candidates {
		if cand == nil || cand.Chunk == nil {
			continue
		}

		similarity := 0.0
		if len(queryEmbedding) > 0 && len(cand.Chunk.Embedding) > 0 {
			similarity = retrieval.CosineSimilarity(queryEmbedding, cand.Chunk.Embedding)
		} else {
			// Without a vector leg the fused retrieval score is the
			// best similarity signal available.
			similarity = cand.Score
		}

		salience := cfg.SimilarityWeight * similarity
		salience += recencyBoost(cand.Chunk.Timestamp, now, cfg.RecencyBoostCap)
		salience += authorityBoost(cand.Chunk, cfg.AuthorityBoost)

		scored = append(scored, &scoredCandidate{chunk: cand, salience: salience})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].salience > scored[j].salience
	})
	return scored
}

// recencyBoost is 0.10 for content under 7 days old, 0.05 under 30 days,
// otherwise 0, clamped by the configured cap.
func recencyBoost(timestamp, now time.Time, limit float64) float64 {
	if timestamp.IsZero() {
		return 0
	}
	age := now.Sub(timestamp)

	boost := 0.0
	switch {
	case age < 7*24*time.Hour:
		boost = 0.10
	case age < 30*24*time.Hour:
		boost = 0.05
	}
	if boost > limit {
		boost = limit
	}
	return boost
}

// authorityBoost grants the configured maximum when the stored importance
// signal exceeds 0.8.
func authorityBoost(chunk *domain.Chunk, max float64) float64 {
	if chunk.Importance() > 0.8 {
		return max
	}
	return 0
}

// diversifyByType enforces small per-type quotas in descending salience
// order, honoring the hard cap on total selected candidates.
func diversifyByType(scored []*scoredCandidate, cfg Config) []*scoredCandidate {
	taken := make(map[domain.ChunkType]int)
	selected := make([]*scoredCandidate, 0, cfg.MaxSelected)

	for _, cand := range scored {
		if len(selected) >= cfg.MaxSelected {
			break
		}

		chunkType := cand.chunk.Chunk.Type
		quota, ok := cfg.TypeQuotas[chunkType]
		if !ok {
			quota = cfg.DefaultQuota
		}
		if taken[chunkType] >= quota {
			continue
		}

		taken[chunkType]++
		selected = append(selected, cand)
	}
	return selected
}

func averageSalience(scored []*scoredCandidate) float64 {
	if len(scored) == 0 {
		return 0
	}
	sum := 0.0
	for _, cand := range scored {
		sum += cand.salience
	}
	return sum / float64(len(scored))
}
