package nlq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	prose "github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/fieldatlas/backend/internal/llm"
	"github.com/fieldatlas/backend/internal/metrics"
	"github.com/fieldatlas/backend/pkg/logger"
)

// Completer is the narrow slice of the LLM client the query pipeline needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Planner turns a natural-language query into a SearchPlan. It never fails:
// when the model is unavailable or returns garbage, planning degrades to a
// keyword plan built from the query text itself.
type Planner struct {
	client Completer
}

func NewPlanner(client Completer) *Planner {
	return &Planner{client: client}
}

const planPrompt = `You are an expert at analyzing natural language queries about Salesforce metadata fields stored in a relational database.

Available queryable columns in the salesforce_fields table:
- fieldLabel: The display name of the field
- fieldApiName: The API name of the field
- objectLabel: The Salesforce object name (Account, Contact, Opportunity, etc.)
- objectApiName: The API name of the object
- description: Field description text
- helpText: Help text for the field
- complianceCategory: Compliance/regulatory categories (PII, GDPR, etc.)
- tagIds: Comma-separated tags
- owners: Field owners
- stakeholders: Field stakeholders
- dataType: Field data type (Text, Currency, Picklist, etc.)
- picklistValues: Available picklist options
- ingestedBy: Systems that populate this field

CRITICAL: Object Inference Rules for targetObject (MUST follow these rules):
1. ALWAYS check for business terms and infer the most appropriate Salesforce object:
   - "customer," "client," "company," "organization," "account" -> "Account"
   - "person," "individual," "people," "contact" -> "Contact"
   - "prospect," "lead," "new inquiry," "potential customer" -> "Lead"
   - "deal," "sale," "opportunity," "revenue," "pipeline" -> "Opportunity"
   - "issue," "ticket," "problem," "support," "case" -> "Case"
2. Explicit object names ALWAYS override inference (e.g., "customer fields on Lead object" -> "Lead")
3. When multiple business terms appear, prioritize the most specific or recent one
4. Only set targetObject to null if truly no business context can be inferred

CRITICAL: DataType Inference Rules based on Keywords (for populating dataTypeFilter):
1. Monetary terms ("money", "cost", "price", "revenue", "amount", "budget", "salary", "fee") -> "%%Currency%%"
2. Temporal terms ("when", "date", "day", "month", "year", "deadline", "timestamp") -> "%%Date%%"
3. Count terms ("how many", "count", "quantity", "number of", "total") -> "%%Number%%"
4. Percentage terms ("percent", "percentage", "rate", "ratio") -> "%%Percent%%"
5. Boolean terms ("yes/no", "true/false", "active?", "enabled?", "flag", "checked?") -> "Checkbox"
6. Location terms ("where", "location", "address", "city", "country") -> "%%Address%%"
7. Email terms -> "%%Email%%"; phone terms -> "%%Phone%%"; URL/link terms -> "%%URL%%"
8. Selection terms ("option", "choice", "status", "category", "dropdown") -> "%%Picklist%%"
9. Formula terms ("calculated", "formula", "derived", "computed") -> "%%Formula%%"
The dataTypeFilter.field is always "dataType" and the operator is usually "ilike".
If no strong type is implied, set dataTypeFilter to null. These rules complement,
not replace, keyword conditions in filterGroups.

CRITICAL: User Lookup / Ownership Inference Rules:
When queries contain "who", "owner", "manager", "responsible for", "created by",
"modified by", "assigned to", or "my" (referring to owned records), set
dataTypeFilter to {"field": "dataType", "operator": "ilike", "value": "%%Lookup(User)%%"}
and add keywords like "owner", "user", "created" to the filterGroups targeting
fieldLabel and description.

Generate a structured search plan in this exact JSON format:

{
  "intent": "find_fields",
  "targetObject": "string or null",
  "filterGroups": [
    {
      "logicalOperator": "AND|OR",
      "conditions": [
        { "field": "column_name", "operator": "ilike|equals_ignore_case|contains_in_array_field", "value": "%%search_term%%" }
      ]
    }
  ],
  "dataTypeFilter": { "field": "dataType", "operator": "ilike", "value": "%%type%%" } or null,
  "rawKeywords": ["extracted", "keywords"]
}

Use intent "find_objects" only when the user asks about Salesforce objects
themselves rather than their fields; conditions may then reference objectLabel,
objectApiName, description, pluralLabel, tags, sharingModel, keyPrefix.

Examples:

Query: "Show me deal size fields on Opportunity"
{
  "intent": "find_fields",
  "targetObject": "Opportunity",
  "filterGroups": [
    {
      "logicalOperator": "OR",
      "conditions": [
        { "field": "fieldLabel", "operator": "ilike", "value": "%%deal size%%" },
        { "field": "description", "operator": "ilike", "value": "%%deal size%%" },
        { "field": "fieldLabel", "operator": "ilike", "value": "%%amount%%" },
        { "field": "description", "operator": "ilike", "value": "%%amount%%" }
      ]
    }
  ],
  "dataTypeFilter": { "field": "dataType", "operator": "ilike", "value": "%%Currency%%" },
  "rawKeywords": ["deal size", "Opportunity"]
}

Query: "PII fields on Contact"
{
  "intent": "find_fields",
  "targetObject": "Contact",
  "filterGroups": [
    {
      "logicalOperator": "OR",
      "conditions": [
        { "field": "fieldLabel", "operator": "ilike", "value": "%%PII%%" },
        { "field": "description", "operator": "ilike", "value": "%%PII%%" },
        { "field": "complianceCategory", "operator": "ilike", "value": "%%PII%%" },
        { "field": "tagIds", "operator": "ilike", "value": "%%PII%%" },
        { "field": "description", "operator": "ilike", "value": "%%sensitive data%%" }
      ]
    }
  ],
  "dataTypeFilter": null,
  "rawKeywords": ["PII", "Contact"]
}

Query: "Show me my open opportunities"
{
  "intent": "find_fields",
  "targetObject": "Opportunity",
  "filterGroups": [
    {
      "logicalOperator": "OR",
      "conditions": [
        { "field": "fieldLabel", "operator": "ilike", "value": "%%owner%%" },
        { "field": "description", "operator": "ilike", "value": "%%owner%%" }
      ]
    },
    {
      "logicalOperator": "OR",
      "conditions": [
        { "field": "fieldLabel", "operator": "ilike", "value": "%%open%%" },
        { "field": "description", "operator": "ilike", "value": "%%open%%" }
      ]
    }
  ],
  "dataTypeFilter": { "field": "dataType", "operator": "ilike", "value": "%%Lookup(User)%%" },
  "rawKeywords": ["my", "open", "opportunities"]
}

Query: "What are the status options for leads?"
{
  "intent": "find_fields",
  "targetObject": "Lead",
  "filterGroups": [
    {
      "logicalOperator": "OR",
      "conditions": [
        { "field": "fieldLabel", "operator": "ilike", "value": "%%status%%" },
        { "field": "description", "operator": "ilike", "value": "%%status options%%" }
      ]
    }
  ],
  "dataTypeFilter": { "field": "dataType", "operator": "ilike", "value": "%%Picklist%%" },
  "rawKeywords": ["status", "options", "leads"]
}

Query: %q
Return only the JSON response:`

// GeneratePlan builds a plan from the query, falling back to naive keyword
// search when the model call, JSON parse, or validation fails.
func (p *Planner) GeneratePlan(ctx context.Context, query string) *SearchPlan {
	resp, err := p.client.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  fmt.Sprintf(planPrompt, query),
		Temperature: 0.1,
		MaxTokens:   800,
		JSONMode:    true,
	})
	if err != nil {
		logger.Warn("Plan generation failed, using keyword fallback", zap.Error(err))
		metrics.PlanFallbackTotal.Inc()
		return p.FallbackPlan(query)
	}

	var plan SearchPlan
	if err := json.Unmarshal([]byte(resp.Content), &plan); err != nil {
		logger.Warn("Plan JSON did not parse, using keyword fallback",
			zap.Error(err),
			zap.String("content", truncate(resp.Content, 200)),
		)
		metrics.PlanFallbackTotal.Inc()
		return p.FallbackPlan(query)
	}

	dropped := plan.Normalize()
	if dropped > 0 {
		logger.Warn("Plan conditions rejected during validation",
			zap.Int("dropped", dropped),
			zap.String("query", query),
		)
	}

	logger.Debug("Search plan generated",
		zap.String("intent", plan.Intent),
		zap.Int("filter_groups", len(plan.FilterGroups)),
	)

	return &plan
}

// FallbackPlan tokenizes the query into lowercase words longer than two
// characters and builds one OR group of substring matches over fieldLabel
// and description per token.
func (p *Planner) FallbackPlan(query string) *SearchPlan {
	tokens := tokenize(query)

	var conditions []SearchCondition
	for _, token := range tokens {
		pattern := "%" + token + "%"
		conditions = append(conditions,
			SearchCondition{Field: "fieldLabel", Operator: OpILike, Value: ConditionValue{pattern}},
			SearchCondition{Field: "description", Operator: OpILike, Value: ConditionValue{pattern}},
		)
	}

	plan := &SearchPlan{
		Intent:      IntentFindFields,
		RawKeywords: tokens,
	}
	if len(conditions) > 0 {
		plan.FilterGroups = []FilterGroup{{LogicalOperator: "OR", Conditions: conditions}}
	}
	plan.Normalize()

	return plan
}

func tokenize(query string) []string {
	var words []string

	doc, err := prose.NewDocument(query,
		prose.WithSegmentation(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err == nil {
		for _, tok := range doc.Tokens() {
			words = append(words, tok.Text)
		}
	} else {
		words = strings.Fields(query)
	}

	tokens := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, `.,!?"'`))
		if len(w) > 2 {
			tokens = append(tokens, w)
		}
	}
	return tokens
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
