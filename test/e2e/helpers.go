//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/recall-labs/recallai/internal/api/handlers"
	recallopenai "github.com/recall-labs/recallai/internal/openai"
	"github.com/recall-labs/recallai/internal/research"
	"github.com/recall-labs/recallai/internal/server"
	"github.com/recall-labs/recallai/internal/service"
	"github.com/recall-labs/recallai/internal/store"
)

const testAPIKey = "rcl_e2e_key"

// scriptedModel answers governance calls with canned strict-JSON payloads so
// the full pipeline runs without a model provider.
type scriptedModel struct{}

func (m *scriptedModel) Generate(ctx context.Context, systemPrompt, userPrompt string, opts recallopenai.GenerateOptions) (string, error) {
	switch {
	case strings.Contains(systemPrompt, "decompose research queries"):
		return `{"aspects":[{"name":"compaction write amplification","mustCover":["write cost"]},{"name":"bloom filters read amplification","mustCover":["read cost"]}]}`, nil
	case strings.Contains(systemPrompt, "rank sources"):
		return `{"order":[0]}`, nil
	case strings.Contains(systemPrompt, "audit a summary"):
		return `{"passed":true,"confidence":0.9}`, nil
	case strings.Contains(systemPrompt, "extract relations"):
		return `{"connections":[],"contradictions":[],"clusters":[]}`, nil
	default:
		return "The retrieval layer ranks memories by combined semantic and keyword relevance, " +
			"then fills a fixed token budget with the highest-salience cards before generation.", nil
	}
}

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T          *testing.T
	Ctx        context.Context
	Store      *store.ChunkStore
	ServerURL  string
	HTTPClient *http.Client
	closer     func()
}

// SetupE2EEnv starts an in-process server with a file-backed store, no
// embedding provider, and a scripted language model.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	t.Helper()

	dir := t.TempDir()
	memories := store.NewChunkStore(store.Config{
		InteractionLogPath: filepath.Join(dir, "interactions.json"),
	}, nil)

	llm := &scriptedModel{}
	pipeline := service.NewContextPipeline(memories, failingEmbedder{}, llm)
	governance := research.NewModelGovernance(llm)
	orchestrator := research.NewOrchestrator(memories, governance, llm, nil)

	router := server.NewRouter(server.RouterConfig{
		APIKey:          testAPIKey,
		MemoryHandler:   handlers.NewMemoryHandler(memories),
		AskHandler:      handlers.NewAskHandler(pipeline),
		ResearchHandler: handlers.NewResearchHandler(orchestrator, nil),
	})

	srv := httptest.NewServer(router)

	return &E2ETestEnv{
		T:          t,
		Ctx:        context.Background(),
		Store:      memories,
		ServerURL:  srv.URL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		closer: func() {
			srv.Close()
			memories.Close()
		},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.closer != nil {
		e.closer()
	}
}

// failingEmbedder forces the pipeline down its lexical degradation path.
type failingEmbedder struct{}

func (failingEmbedder) Generate(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("no embedding provider in e2e")
}

// APIResponse mirrors the server's response envelope.
type APIResponse struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Post sends an authenticated POST. An empty token sends no auth header.
func (e *E2ETestEnv) Post(path string, body interface{}, token string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(http.MethodPost, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	return e.send(req, token)
}

// Get sends an authenticated GET.
func (e *E2ETestEnv) Get(path, token string) (*APIResponse, error) {
	req, err := http.NewRequest(http.MethodGet, e.ServerURL+path, nil)
	if err != nil {
		return nil, err
	}
	return e.send(req, token)
}

// GetRaw sends an authenticated GET and returns the body verbatim.
func (e *E2ETestEnv) GetRaw(path, token string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, e.ServerURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func (e *E2ETestEnv) send(req *http.Request, token string) (*APIResponse, error) {
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("status %d: unparseable body %q", resp.StatusCode, body)
	}
	if resp.StatusCode >= 400 {
		return &apiResp, fmt.Errorf("status %d: %s", resp.StatusCode, apiResp.Error)
	}
	return &apiResp, nil
}
