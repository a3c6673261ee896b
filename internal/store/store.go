package store

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/recall-labs/recallai/internal/domain"
	"github.com/recall-labs/recallai/internal/retrieval"
)

// Embedder is the narrow embedding interface the store consumes for
// best-effort embedding of new conversational turns.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// GraphEdgeWriter is an optional capability for persisting typed relations
// between chunks. The pgvector-backed repository implements it; the
// file-backed store works without one.
type GraphEdgeWriter interface {
	AddEdge(ctx context.Context, fromID, toID, edgeType, description string) error
}

// Config controls the chunk store's backing files.
type Config struct {
	ChunkSourcePaths   []string
	EmbeddingsPath     string
	InteractionLogPath string
	// OverrideSourcePath, when set, replaces the configured sources and
	// bypasses the cache on every load.
	OverrideSourcePath string
	// MinEmbeddingsWarn logs a warning when fewer chunks carry embeddings.
	MinEmbeddingsWarn int
}

// ChunkStore loads, caches, and appends chunk records. Chunks are
// append-only; the interaction log is flushed asynchronously through a
// single-writer queue so concurrent appends serialize on one rewrite at a
// time. Reads always see the latest in-memory state, including
// not-yet-flushed writes.
type ChunkStore struct {
	cfg      Config
	embedder Embedder

	mu           sync.RWMutex
	chunks       []*domain.Chunk
	loaded       bool
	interactions []*domain.Interaction

	graph GraphEdgeWriter

	flushCh  chan struct{}
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewChunkStore creates a ChunkStore and starts its flush worker. The
// embedder may be nil; new records then stay without embeddings.
func NewChunkStore(cfg Config, embedder Embedder) *ChunkStore {
	s := &ChunkStore{
		cfg:      cfg,
		embedder: embedder,
		flushCh:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// SetGraphWriter attaches the optional graph edge capability.
func (s *ChunkStore) SetGraphWriter(w GraphEdgeWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = w
}

// GraphWriter returns the attached graph edge capability, or nil.
func (s *ChunkStore) GraphWriter() GraphEdgeWriter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// GetAllChunks returns the full chunk set, loading and merging the backing
// files on first use. The cache is returned on subsequent calls unless
// reload is requested or an override source is configured.
func (s *ChunkStore) GetAllChunks(ctx context.Context, reload bool) ([]*domain.Chunk, error) {
	s.mu.RLock()
	if s.loaded && !reload && s.cfg.OverrideSourcePath == "" {
		cached := make([]*domain.Chunk, len(s.chunks))
		copy(cached, s.chunks)
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	return s.load(ctx)
}

// Invalidate drops the cache; the next read reloads from the backing files.
func (s *ChunkStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.chunks = nil
}

func (s *ChunkStore) load(ctx context.Context) ([]*domain.Chunk, error) {
	sources := s.cfg.ChunkSourcePaths
	if s.cfg.OverrideSourcePath != "" {
		sources = []string{s.cfg.OverrideSourcePath}
	}

	var chunks []*domain.Chunk
	seen := make(map[string]int)
	for _, path := range sources {
		loaded, err := loadChunkFile(path)
		if err != nil {
			log.Printf("chunk store: failed to read source %s: %v", path, err)
			continue
		}
		for _, chunk := range loaded {
			if idx, ok := seen[chunk.ID]; ok {
				// Later files may supply embeddings for records
				// defined in earlier files.
				if len(chunks[idx].Embedding) == 0 && len(chunk.Embedding) > 0 {
					chunks[idx].Embedding = chunk.Embedding
				}
				continue
			}
			seen[chunk.ID] = len(chunks)
			chunks = append(chunks, chunk)
		}
	}

	embeddings, err := loadEmbeddingsFile(s.cfg.EmbeddingsPath)
	if err != nil {
		log.Printf("chunk store: failed to read embeddings sidecar %s: %v", s.cfg.EmbeddingsPath, err)
	}
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			if embedding, ok := embeddings[chunk.ID]; ok {
				chunk.Embedding = embedding
			}
		}
	}

	persisted, err := loadInteractionLog(s.cfg.InteractionLogPath)
	if err != nil {
		log.Printf("chunk store: failed to read interaction log %s: %v", s.cfg.InteractionLogPath, err)
	}

	s.mu.Lock()
	if len(s.interactions) == 0 && len(persisted) > 0 {
		s.interactions = persisted
	}
	for _, interaction := range s.interactions {
		if len(interaction.Embedding) == 0 {
			continue
		}
		if _, ok := seen[interaction.ID]; ok {
			continue
		}
		seen[interaction.ID] = len(chunks)
		chunks = append(chunks, interaction.AsChunk())
	}

	s.chunks = chunks
	s.loaded = true

	withEmbeddings := 0
	for _, chunk := range chunks {
		if len(chunk.Embedding) > 0 {
			withEmbeddings++
		}
	}
	s.mu.Unlock()

	if s.cfg.MinEmbeddingsWarn > 0 && withEmbeddings < s.cfg.MinEmbeddingsWarn {
		log.Printf("chunk store: only %d of %d chunks carry embeddings (threshold %d); vector retrieval will be weak",
			withEmbeddings, len(chunks), s.cfg.MinEmbeddingsWarn)
	}

	result := make([]*domain.Chunk, len(chunks))
	copy(result, chunks)
	return result, nil
}

// SearchMemories runs hybrid retrieval over the cached chunk set. An empty
// store yields an empty result set, not an error.
func (s *ChunkStore) SearchMemories(ctx context.Context, query string, limit int) ([]*domain.ScoredChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrInvalidQuery
	}
	if limit <= 0 {
		limit = 10
	}

	chunks, err := s.GetAllChunks(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return []*domain.ScoredChunk{}, nil
	}

	return retrieval.Search(ctx, retrieval.Params{
		Query:        query,
		Documents:    chunks,
		VectorSearch: s.embedder,
		Limit:        limit,
	}), nil
}

// AddMemory resolves the tagged input and appends it as an interaction.
func (s *ChunkStore) AddMemory(ctx context.Context, input MemoryInput) (*domain.Interaction, error) {
	interaction, err := input.Resolve()
	if err != nil {
		return nil, err
	}
	if err := s.AddInteraction(ctx, interaction); err != nil {
		return nil, err
	}
	return interaction, nil
}

// AddInteraction appends an interaction to the in-memory state, makes it
// immediately searchable, and queues an asynchronous rewrite of the
// interaction log. Embedding generation is best-effort: its failure never
// blocks storage.
func (s *ChunkStore) AddInteraction(ctx context.Context, interaction *domain.Interaction) error {
	if err := domain.ValidateInteraction(interaction); err != nil {
		return err
	}

	if len(interaction.Embedding) == 0 && s.embedder != nil {
		embedding, err := s.embedder.Generate(ctx, interaction.Content)
		if err != nil {
			log.Printf("chunk store: embedding for interaction %s failed, storing without one: %v", interaction.ID, err)
		} else {
			interaction.Embedding = embedding
		}
	}

	s.mu.Lock()
	s.interactions = append(s.interactions, interaction)
	if s.loaded {
		s.chunks = append(s.chunks, interaction.AsChunk())
	}
	s.mu.Unlock()

	s.requestFlush()
	return nil
}

// MissingEmbeddings returns up to limit loaded chunks that carry no
// embedding. The cache is populated on first use.
func (s *ChunkStore) MissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidLimit
	}

	chunks, err := s.GetAllChunks(ctx, false)
	if err != nil {
		return nil, err
	}

	var missing []*domain.Chunk
	for _, chunk := range chunks {
		if len(chunk.Embedding) > 0 {
			continue
		}
		missing = append(missing, chunk)
		if len(missing) >= limit {
			break
		}
	}
	return missing, nil
}

// AttachEmbedding sets a late-computed embedding on a stored chunk. Records
// handed out in snapshots are never mutated in place: the embedding lands on
// a replacement copy, so concurrent readers keep seeing the old record until
// their next read. An interaction with the same id is replaced the same way,
// and the log rewrite is queued.
func (s *ChunkStore) AttachEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	if chunkID == "" || len(embedding) == 0 {
		return domain.ErrInvalidChunk
	}

	s.mu.Lock()
	found := false
	for i, chunk := range s.chunks {
		if chunk.ID == chunkID {
			updated := *chunk
			updated.Embedding = embedding
			s.chunks[i] = &updated
			found = true
			break
		}
	}
	interactionUpdated := false
	for i, interaction := range s.interactions {
		if interaction.ID == chunkID {
			updated := *interaction
			updated.Embedding = embedding
			s.interactions[i] = &updated
			interactionUpdated = true
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return domain.ErrChunkNotFound
	}
	if interactionUpdated {
		s.requestFlush()
	}
	return nil
}

// Interactions returns a snapshot of the in-memory interaction list.
func (s *ChunkStore) Interactions() []*domain.Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Interaction, len(s.interactions))
	copy(out, s.interactions)
	return out
}

// Close stops the flush worker after one final synchronous flush.
func (s *ChunkStore) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
}

func (s *ChunkStore) requestFlush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
		// A flush is already queued; the pending rewrite will pick up
		// this append too.
	}
}

// flushLoop is the single writer for the interaction log. Every rewrite
// persists the full list, so the last completed rewrite determines the
// durable content.
func (s *ChunkStore) flushLoop() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.flushCh:
			s.persistInteractions()
		case <-s.stopCh:
			select {
			case <-s.flushCh:
				s.persistInteractions()
			default:
			}
			return
		}
	}
}

// persistInteractions rewrites the whole interaction log. Failures are
// logged and swallowed; durability here is best-effort.
func (s *ChunkStore) persistInteractions() {
	if s.cfg.InteractionLogPath == "" {
		return
	}

	snapshot := s.Interactions()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		log.Printf("chunk store: failed to encode interaction log: %v", err)
		return
	}

	tmp := s.cfg.InteractionLogPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Printf("chunk store: failed to write interaction log: %v", err)
		return
	}
	if err := os.Rename(tmp, s.cfg.InteractionLogPath); err != nil {
		log.Printf("chunk store: failed to replace interaction log: %v", err)
	}
}
