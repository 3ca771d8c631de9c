package nlq

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldatlas/backend/internal/llm"
	"github.com/fieldatlas/backend/internal/storage/models"
	"github.com/fieldatlas/backend/pkg/logger"
)

// Fixed responses for the narrative path. The empty-result message is part
// of the API contract and must not change casually.
const (
	NoResultsNarrative   = "No specific fields found to summarize for this query."
	NarrativeUnavailable = "Unable to generate summary at this time."
)

// Per-attribute character budgets when embedding fields in the narrative
// prompt, to bound token cost.
const (
	descriptionBudget = 150
	helpTextBudget    = 100
	formulaBudget     = 200
)

// BuildFilterSummary composes the deterministic one-line summary:
// "Found {n} field(s)[ on {target} object][ of type {v}][ matching "kw, kw"]".
// Clauses whose source is absent are omitted; no model call is involved.
func BuildFilterSummary(plan *SearchPlan, resultCount int) string {
	var parts []string

	if plan.TargetObject != nil {
		parts = append(parts, fmt.Sprintf("on %s object", *plan.TargetObject))
	}

	if plan.DataTypeFilter != nil && len(plan.DataTypeFilter.Value) > 0 {
		parts = append(parts, fmt.Sprintf("of type %s", plan.DataTypeFilter.Value[0]))
	}

	keywords := plan.RawKeywords
	if len(keywords) == 0 {
		for _, g := range plan.FilterGroups {
			for _, cond := range g.Conditions {
				for _, v := range cond.Value {
					if v != "" {
						keywords = append(keywords, v)
					}
				}
			}
		}
	}
	if len(keywords) > 0 {
		parts = append(parts, fmt.Sprintf("matching %q", strings.Join(keywords, ", ")))
	}

	plural := "s"
	if resultCount == 1 {
		plural = ""
	}

	summary := fmt.Sprintf("Found %d field%s", resultCount, plural)
	if len(parts) > 0 {
		summary += " " + strings.Join(parts, " ")
	}
	return summary
}

// BuildNarrative asks the model for a 2-4 sentence synthesis of the final
// result set. Empty results and provider failures both resolve to fixed
// strings; this function never fails the pipeline.
func BuildNarrative(ctx context.Context, client Completer, query string, results []models.FieldRecord, maxToConsider int) string {
	if len(results) == 0 {
		return NoResultsNarrative
	}

	fields := results
	if len(fields) > maxToConsider {
		fields = fields[:maxToConsider]
	}

	summaries := make([]string, 0, len(fields))
	for i, f := range fields {
		parts := []string{
			fmt.Sprintf("Field: %s (%s) on %s", f.FieldLabel, f.FieldAPIName, f.ObjectLabel),
			fmt.Sprintf("Type: %s", f.DataType),
		}
		if f.Description != "" {
			parts = append(parts, "Description: "+truncate(f.Description, descriptionBudget))
		}
		if f.HelpText != "" {
			parts = append(parts, "Help: "+truncate(f.HelpText, helpTextBudget))
		}
		if f.Formula != "" {
			parts = append(parts, "Formula: "+truncate(f.Formula, formulaBudget))
		}
		summaries = append(summaries, fmt.Sprintf("%d. %s", i+1, strings.Join(parts, ", ")))
	}

	prompt := fmt.Sprintf(`You are an expert Salesforce data analyst. Provide a concise, helpful summary explaining how the provided Salesforce fields answer the user's original query.

Given the user's query: %q
And the most relevant fields found:
%s

Generate a natural language summary (2-4 sentences) that directly addresses the user's query using information from these fields.

Guidelines:
- If the query asks how to calculate something, explain the logic and mention formulas if present
- If the query asks what or which fields exist, briefly state the purpose of key fields and the primary objects
- If the fields don't fully answer the query, acknowledge that while summarizing what was found
- Do not just list fields; synthesize the information into a coherent explanation
- Base your response only on the provided field data

Return only the summary text, no additional formatting.`,
		query, strings.Join(summaries, "\n"))

	resp, err := client.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  prompt,
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		logger.Warn("Narrative summary unavailable", zap.Error(err))
		return NarrativeUnavailable
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return NarrativeUnavailable
	}
	return content
}
