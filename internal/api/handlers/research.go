package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/recall-labs/recallai/internal/api"
	"github.com/recall-labs/recallai/internal/research"
	"github.com/recall-labs/recallai/internal/telemetry"
)

type ResearchService interface {
	Start(query string) (*research.Workspace, error)
	Run(ctx context.Context, id string) (*research.Workspace, error)
	Get(id string) (*research.Workspace, error)
	Export(id string) ([]byte, error)
}

// WorkspaceArchiver persists exported workspaces to object storage.
type WorkspaceArchiver interface {
	PutWorkspace(ctx context.Context, workspaceID string, data []byte) error
}

type ResearchHandler struct {
	svc      ResearchService
	archiver WorkspaceArchiver
}

// NewResearchHandler creates a research handler. archiver may be nil, which
// disables the archive endpoint.
func NewResearchHandler(svc ResearchService, archiver WorkspaceArchiver) *ResearchHandler {
	return &ResearchHandler{svc: svc, archiver: archiver}
}

type StartResearchRequest struct {
	Query string `json:"query"`
}

// Start creates a workspace and runs the pipeline in the background. The
// run uses a detached context so it survives the originating request.
func (h *ResearchHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}

	ws, err := h.svc.Start(req.Query)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	// Snapshot before the run starts; the live workspace mutates underneath
	// the background goroutine.
	snapshot, err := h.svc.Get(ws.ID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	go func(id string) {
		// Detached from the request, so failures are reported here instead
		// of through the HTTP middleware.
		ctx := context.Background()
		if _, err := h.svc.Run(ctx, id); err != nil {
			log.Printf("research run %s failed: %v", id, err)
			telemetry.CaptureError(ctx, err)
		}
	}(ws.ID)

	api.Success(w, http.StatusAccepted, snapshot)
}

func (h *ResearchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ws, err := h.svc.Get(id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ws)
}

// Export returns the raw workspace document.
func (h *ResearchHandler) Export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	data, err := h.svc.Export(id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Archive exports the workspace and writes it to object storage.
func (h *ResearchHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		api.Error(w, http.StatusNotImplemented, "workspace archival is not configured")
		return
	}

	id := chi.URLParam(r, "id")

	data, err := h.svc.Export(id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if err := h.archiver.PutWorkspace(r.Context(), id, data); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"workspace_id": id, "status": "archived"})
}
