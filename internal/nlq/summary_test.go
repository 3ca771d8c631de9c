package nlq

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldatlas/backend/internal/storage/models"
)

func TestBuildFilterSummaryAllClauses(t *testing.T) {
	target := "Opportunity"
	plan := &SearchPlan{
		Intent:         IntentFindFields,
		TargetObject:   &target,
		DataTypeFilter: &SearchCondition{Field: "dataType", Operator: OpILike, Value: ConditionValue{"%Currency%"}},
		RawKeywords:    []string{"deal size"},
	}

	summary := BuildFilterSummary(plan, 3)

	assert.Equal(t, `Found 3 fields on Opportunity object of type %Currency% matching "deal size"`, summary)
}

func TestBuildFilterSummarySingular(t *testing.T) {
	plan := &SearchPlan{Intent: IntentFindFields}
	assert.Equal(t, "Found 1 field", BuildFilterSummary(plan, 1))
	assert.Equal(t, "Found 0 fields", BuildFilterSummary(plan, 0))
}

func TestBuildFilterSummaryKeywordsFromConditions(t *testing.T) {
	plan := &SearchPlan{
		Intent: IntentFindFields,
		FilterGroups: []FilterGroup{
			{
				LogicalOperator: "OR",
				Conditions: []SearchCondition{
					{Field: "fieldLabel", Operator: OpILike, Value: ConditionValue{"%revenue%"}},
					{Field: "description", Operator: OpILike, Value: ConditionValue{"%forecast%"}},
				},
			},
		},
	}

	summary := BuildFilterSummary(plan, 2)

	assert.Equal(t, `Found 2 fields matching "%revenue%, %forecast%"`, summary)
}

func TestBuildNarrativeEmptyResults(t *testing.T) {
	narrative := BuildNarrative(context.Background(), failingCompleter(), "anything", nil, 5)
	assert.Equal(t, NoResultsNarrative, narrative)
}

func TestBuildNarrativeProviderFailure(t *testing.T) {
	results := []models.FieldRecord{{FieldLabel: "Amount", FieldAPIName: "Amount__c", ObjectLabel: "Opportunity", DataType: "Currency"}}

	narrative := BuildNarrative(context.Background(), failingCompleter(), "deal size", results, 5)

	assert.Equal(t, NarrativeUnavailable, narrative)
}

func TestBuildNarrativeBlankModelOutput(t *testing.T) {
	results := []models.FieldRecord{{FieldLabel: "Amount", FieldAPIName: "Amount__c", ObjectLabel: "Opportunity", DataType: "Currency"}}

	narrative := BuildNarrative(context.Background(), staticCompleter("   "), "deal size", results, 5)

	assert.Equal(t, NarrativeUnavailable, narrative)
}

func TestBuildNarrativeReturnsModelContent(t *testing.T) {
	results := []models.FieldRecord{
		{FieldLabel: "Amount", FieldAPIName: "Amount__c", ObjectLabel: "Opportunity", DataType: "Currency", Formula: "Quantity__c * UnitPrice__c"},
	}

	narrative := BuildNarrative(context.Background(), staticCompleter("The Amount field holds the deal value."), "deal size", results, 5)

	assert.Equal(t, "The Amount field holds the deal value.", narrative)
}
