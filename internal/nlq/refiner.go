package nlq

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fieldatlas/backend/internal/llm"
	"github.com/fieldatlas/backend/internal/storage/models"
	"github.com/fieldatlas/backend/pkg/logger"
)

// Confidence labels attached to candidates during refinement.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// Refinement strategy names, selectable via config.
const (
	StrategyConfidence = "confidence"
	StrategyReselect   = "reselect"
	StrategyHeuristic  = "heuristic"
)

type RefinementDetails struct {
	InitialCount int    `json:"initialCount"`
	RefinedCount int    `json:"refinedCount"`
	Applied      bool   `json:"applied"`
	Reason       string `json:"reason,omitempty"`
}

// Refiner narrows and reorders executor candidates toward the most relevant
// subset. Implementations must never return records absent from the input,
// never exceed their configured return cap, and never fail the pipeline:
// a provider outage degrades to the deterministic heuristic or to a
// pass-through of the candidates.
type Refiner interface {
	Refine(ctx context.Context, query string, plan *SearchPlan, candidates []models.FieldRecord) ([]models.FieldRecord, RefinementDetails)
}

// NewRefiner builds the configured strategy. Unknown names get the
// confidence scorer.
func NewRefiner(strategy string, client Completer, maxToScore, maxToReturn int) Refiner {
	switch strategy {
	case StrategyHeuristic:
		return &HeuristicRefiner{MaxToReturn: maxToReturn}
	case StrategyReselect:
		return &ReselectRefiner{client: client, maxToScore: maxToScore, maxToReturn: maxToReturn}
	default:
		return &ConfidenceRefiner{client: client, maxToScore: maxToScore, maxToReturn: maxToReturn}
	}
}

// ConfidenceRefiner asks the model to rate each candidate High/Medium/Low
// against the query and plan. Calls are independent and issued concurrently,
// bounded by maxToScore; candidates beyond the cap keep a nil confidence.
type ConfidenceRefiner struct {
	client      Completer
	maxToScore  int
	maxToReturn int
}

func (r *ConfidenceRefiner) Refine(ctx context.Context, query string, plan *SearchPlan, candidates []models.FieldRecord) ([]models.FieldRecord, RefinementDetails) {
	details := RefinementDetails{InitialCount: len(candidates)}
	if len(candidates) == 0 {
		return candidates, details
	}

	scored := make([]models.FieldRecord, len(candidates))
	copy(scored, candidates)

	toScore := r.maxToScore
	if toScore > len(scored) {
		toScore = len(scored)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := 0

	for i := 0; i < toScore; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			confidence, err := r.scoreField(ctx, query, plan, scored[idx])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				return
			}
			scored[idx].MatchConfidence = confidence
		}(i)
	}
	wg.Wait()

	if failures == toScore {
		logger.Warn("Confidence scoring unavailable, degrading to heuristic ranking",
			zap.Int("candidates", len(candidates)),
		)
		fallback := &HeuristicRefiner{MaxToReturn: r.maxToReturn}
		out, d := fallback.Refine(ctx, query, plan, candidates)
		d.Reason = "confidence scoring unavailable"
		return out, d
	}

	sortByConfidence(scored)

	if len(scored) > r.maxToReturn {
		scored = scored[:r.maxToReturn]
	}

	details.RefinedCount = len(scored)
	details.Applied = true
	return scored, details
}

func (r *ConfidenceRefiner) scoreField(ctx context.Context, query string, plan *SearchPlan, field models.FieldRecord) (*string, error) {
	planJSON, _ := json.Marshal(plan)

	hasFormula := "No"
	if field.Formula != "" {
		hasFormula = "Yes"
	}

	prompt := fmt.Sprintf(`Context: You are an AI assistant evaluating the relevance of a Salesforce field to a user's query and the derived search plan.
Original User Query: %q
Derived Search Plan: %s
Current Field Details:
  - Label: %q
  - API Name: %q
  - Object: %q
  - Data Type: %q
  - Description: %q
  - Help Text: %q
  - Tags: %q
  - Formula: %s

Task: Assess how well this specific field matches the user's likely intent.
Return ONLY one of the following confidence scores as a single word: "High", "Medium", or "Low".

Guidelines:
- "High": Strong, direct match. Query keywords appear in critical attributes (Label, API Name, Tags), and the object and type are highly relevant.
- "Medium": Good partial or conceptual match, or keywords appear only in Description/Help Text.
- "Low": Weak or indirect match; the field seems tangential to the query.

Output Example:
High`,
		query, planJSON, field.FieldLabel, field.FieldAPIName, field.ObjectLabel,
		field.DataType, orNA(field.Description), orNA(field.HelpText), orNA(field.TagIDs), hasFormula)

	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  prompt,
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		return nil, err
	}

	label := strings.TrimSpace(resp.Content)
	switch label {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return &label, nil
	}

	// Anything else counts as no confidence, not as an error.
	return nil, nil
}

// ReselectRefiner presents the whole candidate batch in one call and asks
// the model to pick the best matches by exact (fieldApiName, objectApiName)
// identity. Identifiers not present in the batch are discarded.
type ReselectRefiner struct {
	client      Completer
	maxToScore  int
	maxToReturn int
}

type reselection struct {
	Selections []struct {
		FieldAPIName  string `json:"fieldApiName"`
		ObjectAPIName string `json:"objectApiName"`
	} `json:"selections"`
}

func (r *ReselectRefiner) Refine(ctx context.Context, query string, plan *SearchPlan, candidates []models.FieldRecord) ([]models.FieldRecord, RefinementDetails) {
	details := RefinementDetails{InitialCount: len(candidates)}
	if len(candidates) == 0 {
		return candidates, details
	}

	batch := candidates
	if len(batch) > r.maxToScore {
		batch = batch[:r.maxToScore]
	}

	var sb strings.Builder
	for i, f := range batch {
		fmt.Fprintf(&sb, "%d. fieldApiName=%q objectApiName=%q label=%q type=%q description=%q\n",
			i+1, f.FieldAPIName, f.ObjectAPIName, f.FieldLabel, f.DataType,
			truncate(f.Description, 150))
	}

	prompt := fmt.Sprintf(`You are ranking Salesforce metadata fields against a user query.

User query: %q

Candidate fields:
%s
Pick up to %d fields that best answer the query. Respond with JSON only, in
this exact shape, copying fieldApiName and objectApiName verbatim from the
candidates:
{"selections": [{"fieldApiName": "...", "objectApiName": "..."}]}`,
		query, sb.String(), r.maxToReturn)

	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  prompt,
		Temperature: 0.1,
		MaxTokens:   400,
		JSONMode:    true,
	})
	if err != nil {
		logger.Warn("Reselection unavailable, degrading to heuristic ranking", zap.Error(err))
		fallback := &HeuristicRefiner{MaxToReturn: r.maxToReturn}
		out, d := fallback.Refine(ctx, query, plan, candidates)
		d.Reason = "reselection unavailable"
		return out, d
	}

	var parsed reselection
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil || len(parsed.Selections) == 0 {
		out := candidates
		if len(out) > r.maxToReturn {
			out = out[:r.maxToReturn]
		}
		details.RefinedCount = len(out)
		details.Reason = "reselection returned no usable picks"
		return out, details
	}

	byIdentity := make(map[string]models.FieldRecord, len(batch))
	for _, f := range batch {
		byIdentity[f.Identity()] = f
	}

	var out []models.FieldRecord
	seen := make(map[string]bool)
	for _, sel := range parsed.Selections {
		key := sel.FieldAPIName + "|" + sel.ObjectAPIName
		f, ok := byIdentity[key]
		if !ok || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
		if len(out) == r.maxToReturn {
			break
		}
	}

	if len(out) == 0 {
		out = candidates
		if len(out) > r.maxToReturn {
			out = out[:r.maxToReturn]
		}
		details.RefinedCount = len(out)
		details.Reason = "reselection matched no candidates"
		return out, details
	}

	details.RefinedCount = len(out)
	details.Applied = true
	return out, details
}

// HeuristicRefiner ranks candidates with a deterministic documentation and
// relevance score. It is both a standalone strategy and the degradation
// target for the model-backed ones.
type HeuristicRefiner struct {
	MaxToReturn int
}

var deprecationMarkers = []string{"old", "legacy", "archive"}

func (r *HeuristicRefiner) Refine(ctx context.Context, query string, plan *SearchPlan, candidates []models.FieldRecord) ([]models.FieldRecord, RefinementDetails) {
	details := RefinementDetails{InitialCount: len(candidates)}
	if len(candidates) == 0 {
		return candidates, details
	}

	scored := make([]models.FieldRecord, len(candidates))
	copy(scored, candidates)

	sort.SliceStable(scored, func(i, j int) bool {
		si, sj := heuristicScore(scored[i], plan), heuristicScore(scored[j], plan)
		if si != sj {
			return si > sj
		}
		if scored[i].FieldLabel != scored[j].FieldLabel {
			return scored[i].FieldLabel < scored[j].FieldLabel
		}
		return scored[i].FieldAPIName < scored[j].FieldAPIName
	})

	if len(scored) > r.MaxToReturn {
		scored = scored[:r.MaxToReturn]
	}

	details.RefinedCount = len(scored)
	details.Applied = true
	return scored, details
}

func heuristicScore(f models.FieldRecord, plan *SearchPlan) int {
	score := 0

	if len(f.Description) > 50 {
		score += 3
	}
	if len(f.HelpText) > 20 {
		score += 2
	}

	nameBlob := strings.ToLower(f.FieldLabel + " " + f.FieldAPIName)
	for _, marker := range deprecationMarkers {
		if strings.Contains(nameBlob, marker) {
			score -= 5
			break
		}
	}

	if plan != nil && plan.TargetObject != nil {
		target := strings.ToLower(*plan.TargetObject)
		if strings.Contains(strings.ToLower(f.ObjectLabel), target) ||
			strings.Contains(strings.ToLower(f.ObjectAPIName), target) {
			score += 2
		}
	}

	if f.PopulationPercentage != nil && *f.PopulationPercentage > 50 {
		score++
	} else if strings.EqualFold(f.UsageStatus, "active") {
		score++
	}

	return score
}

func confidenceRank(c *string) int {
	if c == nil {
		return 4
	}
	switch *c {
	case ConfidenceHigh:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 3
	}
	return 4
}

func docRichness(f models.FieldRecord) int {
	score := 0
	if len(f.Description) > 50 {
		score += 3
	}
	if len(f.HelpText) > 20 {
		score += 2
	}
	return score
}

// sortByConfidence orders by confidence rank, then documentation richness,
// then label, so equal-confidence fields have a stable, explainable order.
func sortByConfidence(records []models.FieldRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ri, rj := confidenceRank(records[i].MatchConfidence), confidenceRank(records[j].MatchConfidence)
		if ri != rj {
			return ri < rj
		}
		di, dj := docRichness(records[i]), docRichness(records[j])
		if di != dj {
			return di > dj
		}
		return records[i].FieldLabel < records[j].FieldLabel
	})
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
