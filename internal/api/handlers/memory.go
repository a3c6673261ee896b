package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/recall-labs/recallai/internal/api"
	"github.com/recall-labs/recallai/internal/domain"
	"github.com/recall-labs/recallai/internal/pagination"
	"github.com/recall-labs/recallai/internal/store"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
	defaultListLimit   = 20
	maxListLimit       = 200
)

type MemoryService interface {
	AddMemory(ctx context.Context, input store.MemoryInput) (*domain.Interaction, error)
	AddDocument(ctx context.Context, title, content string, chunkType domain.ChunkType) ([]string, error)
	SearchMemories(ctx context.Context, query string, limit int) ([]*domain.ScoredChunk, error)
	Interactions() []*domain.Interaction
}

type MemoryHandler struct {
	svc MemoryService
}

func NewMemoryHandler(svc MemoryService) *MemoryHandler {
	return &MemoryHandler{svc: svc}
}

type AddMemoryRequest struct {
	ID        string                 `json:"id,omitempty"`
	Content   string                 `json:"content"`
	Type      string                 `json:"type,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type MemoryResponse struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Type      string                 `json:"type,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func interactionToResponse(i *domain.Interaction) *MemoryResponse {
	return &MemoryResponse{
		ID:        i.ID,
		Content:   i.Content,
		Type:      i.Type,
		SessionID: i.SessionID,
		Timestamp: i.Timestamp.UTC().Format(time.RFC3339),
		Metadata:  i.Metadata,
	}
}

func (h *MemoryHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req AddMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	input := store.MemoryInput{
		Kind:      store.KindLegacy,
		Content:   req.Content,
		SessionID: req.SessionID,
		Metadata:  req.Metadata,
	}
	if req.ID != "" || req.Type != "" {
		input.Kind = store.KindKeyed
		input.ID = req.ID
		input.Type = domain.ChunkType(req.Type)
	}

	interaction, err := h.svc.AddMemory(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, interactionToResponse(interaction))
}

type AddDocumentRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Type    string `json:"type,omitempty"`
}

type AddDocumentResponse struct {
	ChunkIDs []string `json:"chunk_ids"`
	Count    int      `json:"count"`
}

// AddDocument splits a long document into overlapping chunks before storage,
// unlike Add which stores the content as a single memory.
func (h *MemoryHandler) AddDocument(w http.ResponseWriter, r *http.Request) {
	var req AddDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	chunkType := domain.ChunkTypeDocumentation
	if req.Type != "" {
		chunkType = domain.ChunkType(req.Type)
	}

	ids, err := h.svc.AddDocument(r.Context(), req.Title, req.Content, chunkType)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, AddDocumentResponse{ChunkIDs: ids, Count: len(ids)})
}

type SearchMemoryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type SearchResultResponse struct {
	ID         string  `json:"id"`
	Title      string  `json:"title,omitempty"`
	Content    string  `json:"content"`
	Type       string  `json:"type,omitempty"`
	Score      float64 `json:"score"`
	SearchType string  `json:"search_type"`
}

type SearchMemoryResponse struct {
	Results []*SearchResultResponse `json:"results"`
	Count   int                     `json:"count"`
}

func (h *MemoryHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	scored, err := h.svc.SearchMemories(r.Context(), req.Query, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	results := make([]*SearchResultResponse, 0, len(scored))
	for _, sc := range scored {
		results = append(results, &SearchResultResponse{
			ID:         sc.Chunk.ID,
			Title:      sc.Chunk.Title,
			Content:    sc.Chunk.Content,
			Type:       string(sc.Chunk.Type),
			Score:      sc.Score,
			SearchType: sc.SearchType,
		})
	}

	api.Success(w, http.StatusOK, SearchMemoryResponse{Results: results, Count: len(results)})
}

// List returns stored interactions newest first with cursor pagination.
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	cursor, err := pagination.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	interactions := h.svc.Interactions()
	sort.SliceStable(interactions, func(i, j int) bool {
		return interactions[i].Timestamp.After(interactions[j].Timestamp)
	})

	start := 0
	if cursor != nil {
		for i, interaction := range interactions {
			if interaction.ID == cursor.LastID {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(interactions) {
		end = len(interactions)
	}
	page := interactions[start:end]

	items := make([]*MemoryResponse, 0, len(page))
	for _, interaction := range page {
		items = append(items, interactionToResponse(interaction))
	}

	next := pagination.CreateNextCursor(page, limit,
		func(i *domain.Interaction) string { return i.ID },
		func(i *domain.Interaction) time.Time { return i.Timestamp })

	api.Success(w, http.StatusOK, pagination.PageResult[*MemoryResponse]{
		Items:   items,
		Cursor:  next,
		HasMore: end < len(interactions),
	})
}
