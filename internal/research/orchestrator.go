package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/recall-labs/recallai/internal/domain"
	"github.com/recall-labs/recallai/internal/openai"
	"github.com/recall-labs/recallai/internal/retrieval"
	"github.com/recall-labs/recallai/internal/store"
	"github.com/recall-labs/recallai/internal/telemetry"
)

func openaiOptions(maxTokens int, temperature float32) openai.GenerateOptions {
	return openai.GenerateOptions{MaxTokens: maxTokens, Temperature: temperature}
}

// MemoryStore is the chunk store surface the orchestrator consumes.
type MemoryStore interface {
	SearchMemories(ctx context.Context, query string, limit int) ([]*domain.ScoredChunk, error)
	AddMemory(ctx context.Context, input store.MemoryInput) (*domain.Interaction, error)
}

// Config controls the research pipeline.
type Config struct {
	MaxAspects           int
	TargetSources        int
	GatherFactor         float64
	BatchSize            int
	SummaryMinTokens     int
	SummaryMaxTokens     int
	MaxExtraSources      int
	MaxBatchSources      int
	SynthesisTokenBudget int
	SynthesisMaxTokens   int
}

// DefaultConfig returns the default research configuration.
func DefaultConfig() Config {
	return Config{
		MaxAspects:           6,
		TargetSources:        40,
		GatherFactor:         1.5,
		BatchSize:            8,
		SummaryMinTokens:     400,
		SummaryMaxTokens:     600,
		MaxExtraSources:      3,
		MaxBatchSources:      10,
		SynthesisTokenBudget: 3500,
		SynthesisMaxTokens:   2048,
	}
}

// Orchestrator runs the multi-pass research pipeline and owns the live
// workspace registry. Passes run sequentially; each catches its own error
// and substitutes a documented default so a research query never aborts
// mid-pipeline.
type Orchestrator struct {
	memories   MemoryStore
	governance Governance
	llm        LanguageModel
	graph      store.GraphEdgeWriter
	cfg        Config

	mu         sync.RWMutex
	workspaces map[string]*Workspace
}

// NewOrchestrator creates an orchestrator with default configuration.
// graph may be nil; connection write-back is skipped without it.
func NewOrchestrator(memories MemoryStore, governance Governance, llm LanguageModel, graph store.GraphEdgeWriter) *Orchestrator {
	return NewOrchestratorWithConfig(memories, governance, llm, graph, DefaultConfig())
}

// NewOrchestratorWithConfig creates an orchestrator with explicit
// configuration.
func NewOrchestratorWithConfig(memories MemoryStore, governance Governance, llm LanguageModel, graph store.GraphEdgeWriter, cfg Config) *Orchestrator {
	return &Orchestrator{
		memories:   memories,
		governance: governance,
		llm:        llm,
		graph:      graph,
		cfg:        cfg,
		workspaces: make(map[string]*Workspace),
	}
}

// Start registers a new workspace for the query. The caller decides whether
// to Run it inline or in the background.
func (o *Orchestrator) Start(query string) (*Workspace, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrInvalidQuery
	}

	ws := NewWorkspace(query)

	o.mu.Lock()
	o.workspaces[ws.ID] = ws
	o.mu.Unlock()

	return ws, nil
}

// Get returns a snapshot of a registered workspace. The copy shares backing
// arrays with the live workspace; passes replace slices wholesale and never
// mutate them in place, so the snapshot is safe to read concurrently.
func (o *Orchestrator) Get(id string) (*Workspace, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ws, ok := o.workspaces[id]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	snapshot := *ws
	return &snapshot, nil
}

// Export serializes a registered workspace to JSON.
func (o *Orchestrator) Export(id string) ([]byte, error) {
	ws, err := o.Get(id)
	if err != nil {
		return nil, err
	}
	return ws.Export()
}

// Import registers a previously exported workspace, replacing any existing
// workspace with the same id.
func (o *Orchestrator) Import(data []byte) (*Workspace, error) {
	ws, err := ImportWorkspace(data)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.workspaces[ws.ID] = ws
	o.mu.Unlock()

	return ws, nil
}

// Run executes the full pipeline for a registered workspace. Only a missing
// workspace or an illegal state transition is unrecoverable; every pass
// failure degrades the inputs of later passes instead of aborting.
func (o *Orchestrator) Run(ctx context.Context, id string) (*Workspace, error) {
	o.mu.RLock()
	live, ok := o.workspaces[id]
	var query string
	var status Status
	if ok {
		query, status = live.Query, live.Status
	}
	o.mu.RUnlock()
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	if status != StatusPlanning {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidInput,
			fmt.Sprintf("workspace %s already ran (state %s)", id, status))
	}

	ctx, span := telemetry.StartSpan(ctx, "Orchestrator.Run", telemetry.SpanAttributes{
		WorkspaceID: id,
		Operation:   "research",
	})
	defer span.End()

	failPass := func(err error) (*Workspace, error) {
		span.SetError(err)
		return live, err
	}

	aspects := o.planAspects(ctx, query)
	if err := o.apply(live, StatusGathering, func(ws *Workspace) {
		ws.Aspects = aspects
		ws.Progress.AspectsPlanned = len(aspects)
	}); err != nil {
		return failPass(err)
	}

	sources := o.gatherSources(ctx, aspects)
	if err := o.apply(live, StatusSummarizing, func(ws *Workspace) {
		ws.Sources = sources
		ws.Progress.SourcesGathered = len(sources)
	}); err != nil {
		return failPass(err)
	}

	summaries := o.summarize(ctx, aspects, sources)
	if err := o.apply(live, StatusConnecting, func(ws *Workspace) {
		ws.Summaries = summaries
		ws.Progress.SummariesProduced = len(summaries)
	}); err != nil {
		return failPass(err)
	}

	mined := o.mineConnections(ctx, summaries)
	if err := o.apply(live, StatusSynthesizing, func(ws *Workspace) {
		ws.Connections = mined.Connections
		ws.Contradictions = mined.Contradictions
		ws.ContradictionClusters = mined.Clusters
		ws.Progress.ConnectionsFound = len(mined.Connections)
	}); err != nil {
		return failPass(err)
	}

	synthesis := o.synthesize(ctx, live, aspects, summaries, mined)
	o.writeBack(ctx, live.ID, query, synthesis, aspects, summaries, mined.Connections)

	if err := o.apply(live, StatusCompleted, func(ws *Workspace) {
		ws.Synthesis = synthesis
		// All passes have applied; the composite reads the final content.
		ws.Quality.CompletenessScore = qualityScore(ws)
	}); err != nil {
		return failPass(err)
	}

	log.Printf("research: workspace %s completed, %d aspects, %d sources, %d summaries, %d connections",
		live.ID, len(aspects), len(sources), len(summaries), len(mined.Connections))
	return o.Get(id)
}

// apply mutates the live workspace and advances it to the next state under
// the registry lock. A transition failure moves the workspace to failed.
func (o *Orchestrator) apply(ws *Workspace, next Status, mutate func(*Workspace)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	mutate(ws)
	if err := ws.advance(next); err != nil {
		ws.fail(err)
		return err
	}
	return nil
}

// planAspects delegates to governance, falling back to a single generic
// aspect so the pipeline always has at least one aspect to pursue.
func (o *Orchestrator) planAspects(ctx context.Context, query string) []Aspect {
	aspects, err := o.governance.PlanAspects(ctx, query, o.cfg.MaxAspects)
	if err != nil {
		log.Printf("research: aspect planning failed, falling back to general analysis: %v", err)
		return []Aspect{{Name: "General analysis"}}
	}
	if len(aspects) > o.cfg.MaxAspects {
		aspects = aspects[:o.cfg.MaxAspects]
	}
	return aspects
}

// gatherSources retrieves an oversampled candidate pool per aspect, reranks
// it through governance, and truncates to the target count. Retrieval or
// rerank failure for one aspect skips or keeps retrieval order for that
// aspect only.
func (o *Orchestrator) gatherSources(ctx context.Context, aspects []Aspect) []Source {
	oversample := int(float64(o.cfg.TargetSources) * o.cfg.GatherFactor)

	var all []Source
	for _, aspect := range aspects {
		candidates, err := o.memories.SearchMemories(ctx, aspect.Name, oversample)
		if err != nil {
			log.Printf("research: gathering failed for aspect %q: %v", aspect.Name, err)
			continue
		}

		sources := make([]Source, 0, len(candidates))
		for _, cand := range candidates {
			if cand == nil || cand.Chunk == nil {
				continue
			}
			sources = append(sources, Source{
				ChunkID: cand.Chunk.ID,
				Content: cand.Chunk.Content,
				Score:   cand.Score,
				Aspect:  aspect.Name,
			})
		}

		ranked, err := o.governance.RerankSources(ctx, aspect, sources, o.cfg.TargetSources)
		if err != nil {
			log.Printf("research: rerank failed for aspect %q, keeping retrieval order: %v", aspect.Name, err)
			if len(sources) > o.cfg.TargetSources {
				sources = sources[:o.cfg.TargetSources]
			}
			ranked = sources
		}
		all = append(all, ranked...)
	}
	return all
}

// summarize processes each aspect's sources in fixed-size batches. A failed
// coverage check with named missing items triggers a single remediation:
// a few extra targeted sources and one re-summarization.
func (o *Orchestrator) summarize(ctx context.Context, aspects []Aspect, sources []Source) []Summary {
	byAspect := make(map[string][]Source)
	for _, src := range sources {
		byAspect[src.Aspect] = append(byAspect[src.Aspect], src)
	}

	var summaries []Summary
	for _, aspect := range aspects {
		batch := byAspect[aspect.Name]
		for start := 0; start < len(batch); start += o.cfg.BatchSize {
			end := start + o.cfg.BatchSize
			if end > len(batch) {
				end = len(batch)
			}
			if summary, ok := o.summarizeBatch(ctx, aspect, batch[start:end]); ok {
				summaries = append(summaries, summary)
			}
		}
	}
	return summaries
}

func (o *Orchestrator) summarizeBatch(ctx context.Context, aspect Aspect, batch []Source) (Summary, bool) {
	text, err := o.generateSummary(ctx, aspect, batch)
	if err != nil {
		log.Printf("research: summarization failed for aspect %q: %v", aspect.Name, err)
		return Summary{}, false
	}

	coverage := o.checkCoverage(ctx, aspect, text)
	enhanced := false

	if !coverage.Passed && len(coverage.Missing) > 0 {
		extra := o.gatherRemediation(ctx, aspect, batch, coverage.Missing)
		if len(extra) > 0 {
			enhanced = true
			enlarged := append(append([]Source{}, batch...), extra...)
			if retext, err := o.generateSummary(ctx, aspect, enlarged); err == nil {
				text = retext
				batch = enlarged
				coverage = o.checkCoverage(ctx, aspect, text)
			} else {
				log.Printf("research: re-summarization failed for aspect %q, keeping first summary: %v", aspect.Name, err)
			}
		}
	}

	ids := make([]string, 0, len(batch))
	for _, src := range batch {
		ids = append(ids, src.ChunkID)
	}
	return Summary{
		Aspect:    aspect.Name,
		Text:      text,
		Coverage:  coverage.Confidence,
		Enhanced:  enhanced,
		SourceIDs: ids,
	}, true
}

func (o *Orchestrator) generateSummary(ctx context.Context, aspect Aspect, batch []Source) (string, error) {
	system := fmt.Sprintf(
		"You summarize research sources for the aspect %q. Target %d-%d tokens. Preserve concrete facts and figures.",
		aspect.Name, o.cfg.SummaryMinTokens, o.cfg.SummaryMaxTokens)
	if len(aspect.MustCover) > 0 {
		system += " Cover: " + strings.Join(aspect.MustCover, "; ") + "."
	}

	var sb strings.Builder
	for i, src := range batch {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, src.Content)
	}

	return o.llm.Generate(ctx, system, sb.String(), openaiOptions(o.cfg.SummaryMaxTokens, 0.3))
}

// checkCoverage returns a neutral pass when governance fails; a broken
// auditor must not block summarization.
func (o *Orchestrator) checkCoverage(ctx context.Context, aspect Aspect, summary string) *CoverageResult {
	result, err := o.governance.CheckCoverage(ctx, aspect, summary)
	if err != nil {
		log.Printf("research: coverage check failed for aspect %q: %v", aspect.Name, err)
		return &CoverageResult{Passed: true, Confidence: 0.5}
	}
	return result
}

// remediationQueryVariants caps the alternate phrasings tried per remediation
// pass.
const remediationQueryVariants = 3

// gatherRemediation retrieves a few extra sources targeted at the missing
// coverage items, trying variant phrasings of the remediation query, capped so
// the enlarged batch stays bounded.
func (o *Orchestrator) gatherRemediation(ctx context.Context, aspect Aspect, batch []Source, missing []string) []Source {
	budget := o.cfg.MaxExtraSources
	if room := o.cfg.MaxBatchSources - len(batch); room < budget {
		budget = room
	}
	if budget <= 0 {
		return nil
	}

	have := make(map[string]struct{}, len(batch))
	for _, src := range batch {
		have[src.ChunkID] = struct{}{}
	}

	query := aspect.Name + " " + strings.Join(missing, " ")
	queries := retrieval.QueryVariants(query, remediationQueryVariants)
	if len(queries) == 0 {
		queries = []string{query}
	}

	var extra []Source
	for _, q := range queries {
		candidates, err := o.memories.SearchMemories(ctx, q, budget)
		if err != nil {
			log.Printf("research: remediation gathering failed for aspect %q: %v", aspect.Name, err)
			continue
		}
		for _, cand := range candidates {
			if cand == nil || cand.Chunk == nil {
				continue
			}
			if _, ok := have[cand.Chunk.ID]; ok {
				continue
			}
			have[cand.Chunk.ID] = struct{}{}
			extra = append(extra, Source{
				ChunkID: cand.Chunk.ID,
				Content: cand.Chunk.Content,
				Score:   cand.Score,
				Aspect:  aspect.Name,
			})
			if len(extra) >= budget {
				return extra
			}
		}
	}
	return extra
}

func (o *Orchestrator) mineConnections(ctx context.Context, summaries []Summary) *MiningResult {
	result, err := o.governance.MineConnections(ctx, summaries)
	if err != nil {
		log.Printf("research: connection mining failed: %v", err)
		return &MiningResult{}
	}
	if result == nil {
		return &MiningResult{}
	}
	return result
}

// synthesize builds a token-budgeted prompt over the summaries and asks the
// model once for the final synthesis. With no summaries it degrades to a
// best-effort answer to the raw query.
func (o *Orchestrator) synthesize(ctx context.Context, ws *Workspace, aspects []Aspect, summaries []Summary, mined *MiningResult) string {
	system, user := o.synthesisPrompt(ws.Query, aspects, summaries, len(mined.Clusters))

	text, err := o.llm.Generate(ctx, system, user, openaiOptions(o.cfg.SynthesisMaxTokens, 0.5))
	if err != nil {
		log.Printf("research: synthesis failed for workspace %s: %v", ws.ID, err)
		return ""
	}
	return strings.TrimSpace(text)
}

func (o *Orchestrator) synthesisPrompt(query string, aspects []Aspect, summaries []Summary, clusterCount int) (string, string) {
	if len(summaries) == 0 {
		return "You write research syntheses. No source material survived analysis; give a best-effort synthesis from general knowledge and say so.",
			query
	}

	names := make([]string, 0, len(aspects))
	var mustCover []string
	for _, aspect := range aspects {
		names = append(names, aspect.Name)
		mustCover = append(mustCover, aspect.MustCover...)
	}

	var system strings.Builder
	fmt.Fprintf(&system, "You write research syntheses. Address every aspect: %s.", strings.Join(names, "; "))
	if len(mustCover) > 0 {
		fmt.Fprintf(&system, " Required items: %s.", strings.Join(mustCover, "; "))
	}
	if clusterCount > 0 {
		fmt.Fprintf(&system, " The material contains %d clusters of contradictory claims; reconcile or flag them.", clusterCount)
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Research query: %s\n\nSummaries:\n", query)

	budget := o.cfg.SynthesisTokenBudget
	used := domain.EstimateTokens(system.String()) + domain.EstimateTokens(user.String())
	for _, summary := range summaries {
		block := fmt.Sprintf("[%s] %s\n\n", summary.Aspect, summary.Text)
		cost := domain.EstimateTokens(block)
		if used+cost > budget {
			break
		}
		user.WriteString(block)
		used += cost
	}

	return system.String(), user.String()
}

// writeBack persists the synthesis as a research_synthesis chunk and, when
// the store exposes the capability, records mined connections as graph
// edges. Persistence failure never fails the pipeline.
func (o *Orchestrator) writeBack(ctx context.Context, workspaceID, query, synthesis string, aspects []Aspect, summaries []Summary, connections []Connection) {
	if synthesis == "" {
		return
	}

	_, err := o.memories.AddMemory(ctx, store.MemoryInput{
		Kind:    store.KindKeyed,
		ID:      "research-" + workspaceID,
		Content: synthesis,
		Type:    domain.ChunkTypeResearchSynthesis,
		Metadata: map[string]interface{}{
			"workspaceId":     workspaceID,
			"query":           query,
			"aspectCount":     len(aspects),
			"summaryCount":    len(summaries),
			"connectionCount": len(connections),
		},
	})
	if err != nil {
		log.Printf("research: synthesis write-back failed for workspace %s: %v", workspaceID, err)
	}

	if o.graph == nil {
		return
	}
	for _, conn := range connections {
		if err := o.graph.AddEdge(ctx, conn.From, conn.To, conn.Type, conn.Description); err != nil {
			log.Printf("research: graph edge write failed (%s -> %s): %v", conn.From, conn.To, err)
		}
	}
}

// qualityScore is the composite completeness score in [0,1]:
// 0.3·avg coverage + 0.3·summary yield + 0.2·connection density +
// 0.2·synthesis length, each component capped at 1.
func qualityScore(ws *Workspace) float64 {
	coverage := 0.0
	if len(ws.Summaries) > 0 {
		sum := 0.0
		for _, s := range ws.Summaries {
			sum += s.Coverage
		}
		coverage = sum / float64(len(ws.Summaries))
	}

	yield := 0.0
	if len(ws.Aspects) > 0 {
		yield = capAtOne(float64(len(ws.Summaries)) / float64(len(ws.Aspects)))
	}

	density := 0.0
	if n := len(ws.Summaries); n > 1 {
		maxPairs := float64(n*(n-1)) / 2
		density = capAtOne(float64(len(ws.Connections)) / maxPairs)
	}

	length := capAtOne(float64(len(ws.Synthesis)) / 1000)

	return 0.3*coverage + 0.3*yield + 0.2*density + 0.2*length
}

func capAtOne(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
