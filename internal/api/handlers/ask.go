package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/recall-labs/recallai/internal/api"
	"github.com/recall-labs/recallai/internal/service"
)

type AskService interface {
	Respond(ctx context.Context, query, sessionID string) (*service.Response, error)
}

type AskHandler struct {
	svc AskService
}

func NewAskHandler(svc AskService) *AskHandler {
	return &AskHandler{svc: svc}
}

type AskRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type AskResponse struct {
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
	CardCount  int     `json:"card_count"`
	Truncated  bool    `json:"truncated"`
	Stored     bool    `json:"stored"`
}

func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	resp, err := h.svc.Respond(r.Context(), req.Query, req.SessionID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, AskResponse{
		Response:   resp.Text,
		Confidence: resp.Confidence,
		CardCount:  resp.CardCount,
		Truncated:  resp.Truncated,
		Stored:     resp.Stored,
	})
}
