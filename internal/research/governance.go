package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/recall-labs/recallai/internal/openai"
)

// LanguageModel is the narrow generation interface the research pipeline
// consumes.
type LanguageModel interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts openai.GenerateOptions) (string, error)
}

// CoverageResult is the verdict of a coverage check against an aspect's
// must-cover items.
type CoverageResult struct {
	Passed     bool     `json:"passed"`
	Confidence float64  `json:"confidence"`
	Missing    []string `json:"missing,omitempty"`
}

// MiningResult bundles the connections, contradictions, and contradiction
// clusters extracted in one pass over a workspace's summaries.
type MiningResult struct {
	Connections    []Connection           `json:"connections,omitempty"`
	Contradictions []Contradiction        `json:"contradictions,omitempty"`
	Clusters       []ContradictionCluster `json:"clusters,omitempty"`
}

// Governance is the collaborator the orchestrator delegates judgment calls
// to: aspect planning, source reranking, coverage checking, and connection
// mining. Callers handle errors by substituting documented defaults.
type Governance interface {
	PlanAspects(ctx context.Context, query string, maxAspects int) ([]Aspect, error)
	RerankSources(ctx context.Context, aspect Aspect, sources []Source, limit int) ([]Source, error)
	CheckCoverage(ctx context.Context, aspect Aspect, summary string) (*CoverageResult, error)
	MineConnections(ctx context.Context, summaries []Summary) (*MiningResult, error)
}

// ModelGovernance implements Governance over a chat language model. Every
// call requests strict JSON and parses it after stripping code fences.
type ModelGovernance struct {
	llm LanguageModel
}

// NewModelGovernance creates a model-backed governance collaborator.
func NewModelGovernance(llm LanguageModel) *ModelGovernance {
	return &ModelGovernance{llm: llm}
}

const planSystemPrompt = `You decompose research queries into distinct aspects.
Respond with strict JSON only, no prose:
{"aspects":[{"name":"...","mustCover":["..."],"gaps":["..."]}]}`

// PlanAspects asks the model for a bounded list of aspects to pursue.
func (g *ModelGovernance) PlanAspects(ctx context.Context, query string, maxAspects int) ([]Aspect, error) {
	user := fmt.Sprintf("Decompose this research query into at most %d aspects:\n\n%s", maxAspects, query)
	raw, err := g.llm.Generate(ctx, planSystemPrompt, user, openai.GenerateOptions{MaxTokens: 512, Temperature: 0.3})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Aspects []Aspect `json:"aspects"`
	}
	if err := unmarshalResponse(raw, &parsed); err != nil {
		return nil, err
	}

	aspects := make([]Aspect, 0, len(parsed.Aspects))
	for _, a := range parsed.Aspects {
		if strings.TrimSpace(a.Name) == "" {
			continue
		}
		aspects = append(aspects, a)
		if len(aspects) >= maxAspects {
			break
		}
	}
	if len(aspects) == 0 {
		return nil, fmt.Errorf("aspect planning returned no usable aspects")
	}
	return aspects, nil
}

const rerankSystemPrompt = `You rank sources by relevance to a research aspect.
Respond with strict JSON only, no prose:
{"order":[0,2,1]}
where order lists zero-based source indexes, most relevant first.`

// RerankSources reorders sources by model judgment for one aspect and
// truncates to the limit. Indexes outside the input range are ignored;
// sources the model omits keep their retrieval order at the tail.
func (g *ModelGovernance) RerankSources(ctx context.Context, aspect Aspect, sources []Source, limit int) ([]Source, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Aspect: %s\n", aspect.Name)
	if len(aspect.MustCover) > 0 {
		fmt.Fprintf(&sb, "Must cover: %s\n", strings.Join(aspect.MustCover, "; "))
	}
	sb.WriteString("\nSources:\n")
	for i, src := range sources {
		fmt.Fprintf(&sb, "[%d] %s\n", i, snippet(src.Content, 300))
	}

	raw, err := g.llm.Generate(ctx, rerankSystemPrompt, sb.String(), openai.GenerateOptions{MaxTokens: 256, Temperature: 0})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Order []int `json:"order"`
	}
	if err := unmarshalResponse(raw, &parsed); err != nil {
		return nil, err
	}

	seen := make(map[int]struct{}, len(sources))
	ranked := make([]Source, 0, len(sources))
	for _, idx := range parsed.Order {
		if idx < 0 || idx >= len(sources) {
			continue
		}
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		ranked = append(ranked, sources[idx])
	}
	for i, src := range sources {
		if _, ok := seen[i]; !ok {
			ranked = append(ranked, src)
		}
	}

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

const coverageSystemPrompt = `You audit a summary against required coverage items.
Respond with strict JSON only, no prose:
{"passed":true,"confidence":0.8,"missing":["..."]}`

// CheckCoverage audits one summary against the aspect's must-cover items.
func (g *ModelGovernance) CheckCoverage(ctx context.Context, aspect Aspect, summary string) (*CoverageResult, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Aspect: %s\n", aspect.Name)
	if len(aspect.MustCover) > 0 {
		fmt.Fprintf(&sb, "Required items: %s\n", strings.Join(aspect.MustCover, "; "))
	}
	fmt.Fprintf(&sb, "\nSummary:\n%s", summary)

	raw, err := g.llm.Generate(ctx, coverageSystemPrompt, sb.String(), openai.GenerateOptions{MaxTokens: 256, Temperature: 0})
	if err != nil {
		return nil, err
	}

	var result CoverageResult
	if err := unmarshalResponse(raw, &result); err != nil {
		return nil, err
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return &result, nil
}

const miningSystemPrompt = `You extract relations across research summaries.
Respond with strict JSON only, no prose:
{"connections":[{"from":"...","to":"...","type":"...","description":"..."}],
"contradictions":[{"a":"...","b":"...","description":"..."}],
"clusters":[{"topic":"...","members":["..."]}]}`

// MineConnections extracts typed connections, contradictions, and clusters
// across all summaries in one call.
func (g *ModelGovernance) MineConnections(ctx context.Context, summaries []Summary) (*MiningResult, error) {
	if len(summaries) == 0 {
		return &MiningResult{}, nil
	}

	var sb strings.Builder
	sb.WriteString("Summaries:\n")
	for i, s := range summaries {
		fmt.Fprintf(&sb, "[%s #%d] %s\n", s.Aspect, i, snippet(s.Text, 600))
	}

	raw, err := g.llm.Generate(ctx, miningSystemPrompt, sb.String(), openai.GenerateOptions{MaxTokens: 1024, Temperature: 0.2})
	if err != nil {
		return nil, err
	}

	var result MiningResult
	if err := unmarshalResponse(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// unmarshalResponse parses model output as JSON, tolerating markdown code
// fences around the payload.
func unmarshalResponse(raw string, v interface{}) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return nil
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
