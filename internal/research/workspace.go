package research

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/recall-labs/recallai/internal/domain"
)

// Status is the workspace lifecycle state.
type Status string

const (
	StatusPlanning     Status = "planning"
	StatusGathering    Status = "gathering"
	StatusSummarizing  Status = "summarizing"
	StatusConnecting   Status = "connecting"
	StatusSynthesizing Status = "synthesizing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// validTransitions is the forward edge set of the workspace state machine.
// failed is reachable from any non-terminal state and is not listed.
var validTransitions = map[Status]Status{
	StatusPlanning:     StatusGathering,
	StatusGathering:    StatusSummarizing,
	StatusSummarizing:  StatusConnecting,
	StatusConnecting:   StatusSynthesizing,
	StatusSynthesizing: StatusCompleted,
}

// Aspect is one facet of the research query the pipeline must address.
type Aspect struct {
	Name      string   `json:"name"`
	MustCover []string `json:"mustCover,omitempty"`
	Gaps      []string `json:"gaps,omitempty"`
}

// Source is one retrieved chunk assigned to an aspect.
type Source struct {
	ChunkID string  `json:"chunkId"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Aspect  string  `json:"aspect"`
}

// Summary is one batch summary with its coverage verdict.
type Summary struct {
	Aspect    string   `json:"aspect"`
	Text      string   `json:"text"`
	Coverage  float64  `json:"coverage"`
	Enhanced  bool     `json:"enhanced"`
	SourceIDs []string `json:"sourceIds,omitempty"`
}

// Connection is a typed relation mined between two sources or summaries.
type Connection struct {
	From        string `json:"from"`
	To          string `json:"to"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Contradiction records two statements in tension.
type Contradiction struct {
	A           string `json:"a"`
	B           string `json:"b"`
	Description string `json:"description"`
}

// ContradictionCluster groups contradictions under one topic.
type ContradictionCluster struct {
	Topic   string   `json:"topic"`
	Members []string `json:"members"`
}

// Progress holds per-pass counters for status reporting.
type Progress struct {
	AspectsPlanned    int `json:"aspectsPlanned"`
	SourcesGathered   int `json:"sourcesGathered"`
	SummariesProduced int `json:"summariesProduced"`
	ConnectionsFound  int `json:"connectionsFound"`
}

// Quality is the composite completeness score, computed once at completion.
type Quality struct {
	CompletenessScore float64 `json:"completenessScore"`
}

// Workspace is the aggregate root for one research query. It is owned by the
// orchestrator for its lifetime and mutated by each pass in sequence.
type Workspace struct {
	ID                    string                 `json:"id"`
	Query                 string                 `json:"query"`
	Status                Status                 `json:"status"`
	Error                 string                 `json:"error,omitempty"`
	Aspects               []Aspect               `json:"aspects,omitempty"`
	Sources               []Source               `json:"sources,omitempty"`
	Summaries             []Summary              `json:"summaries,omitempty"`
	Connections           []Connection           `json:"connections,omitempty"`
	Contradictions        []Contradiction        `json:"contradictions,omitempty"`
	ContradictionClusters []ContradictionCluster `json:"contradictionClusters,omitempty"`
	Synthesis             string                 `json:"synthesis,omitempty"`
	Progress              Progress               `json:"progress"`
	Quality               Quality                `json:"quality"`
	CreatedAt             time.Time              `json:"createdAt"`
	UpdatedAt             time.Time              `json:"updatedAt"`
}

// NewWorkspace creates a workspace in the planning state.
func NewWorkspace(query string) *Workspace {
	now := time.Now().UTC()
	return &Workspace{
		ID:        uuid.NewString(),
		Query:     query,
		Status:    StatusPlanning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the workspace has reached a final state.
func (w *Workspace) Terminal() bool {
	return w.Status == StatusCompleted || w.Status == StatusFailed
}

// advance moves the workspace to the next state. Only the single forward
// edge from the current state is legal.
func (w *Workspace) advance(next Status) error {
	if w.Terminal() {
		return fmt.Errorf("workspace %s is terminal in state %s", w.ID, w.Status)
	}
	if validTransitions[w.Status] != next {
		return fmt.Errorf("illegal transition %s -> %s", w.Status, next)
	}
	w.Status = next
	w.UpdatedAt = time.Now().UTC()
	return nil
}

// fail moves the workspace to the failed terminal state from any
// non-terminal state, recording the originating error.
func (w *Workspace) fail(err error) {
	if w.Terminal() {
		return
	}
	w.Status = StatusFailed
	if err != nil {
		w.Error = err.Error()
	}
	w.UpdatedAt = time.Now().UTC()
}

// Export serializes the workspace for persistence across restarts.
func (w *Workspace) Export() ([]byte, error) {
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return nil, &domain.DomainError{
			Code:    domain.ErrCodePersistence,
			Message: "failed to export workspace",
			Err:     err,
		}
	}
	return data, nil
}

// ImportWorkspace deserializes a previously exported workspace.
func ImportWorkspace(data []byte) (*Workspace, error) {
	var w Workspace
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &domain.DomainError{
			Code:    domain.ErrCodeInvalidInput,
			Message: "failed to import workspace",
			Err:     err,
		}
	}
	if w.ID == "" || w.Query == "" {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidInput, "imported workspace is missing id or query")
	}
	if w.Status == "" {
		w.Status = StatusPlanning
	}
	return &w, nil
}
