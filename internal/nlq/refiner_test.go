package nlq

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldatlas/backend/internal/llm"
	"github.com/fieldatlas/backend/internal/storage/models"
)

func candidateFields() []models.FieldRecord {
	return []models.FieldRecord{
		{FieldLabel: "Alpha Field", FieldAPIName: "Alpha__c", ObjectLabel: "Account", ObjectAPIName: "Account"},
		{FieldLabel: "Beta Field", FieldAPIName: "Beta__c", ObjectLabel: "Account", ObjectAPIName: "Account"},
		{FieldLabel: "Gamma Field", FieldAPIName: "Gamma__c", ObjectLabel: "Account", ObjectAPIName: "Account"},
		{FieldLabel: "Delta Field", FieldAPIName: "Delta__c", ObjectLabel: "Account", ObjectAPIName: "Account"},
	}
}

// labelCompleter answers confidence prompts based on which field label
// appears in the prompt.
func labelCompleter(byLabel map[string]string) *fakeCompleter {
	return &fakeCompleter{fn: func(req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		for label, answer := range byLabel {
			if strings.Contains(req.UserPrompt, fmt.Sprintf("Label: %q", label)) {
				return &llm.CompletionResponse{Content: answer}, nil
			}
		}
		return &llm.CompletionResponse{Content: "shrug"}, nil
	}}
}

func TestConfidenceRefinerOrdersByConfidence(t *testing.T) {
	client := labelCompleter(map[string]string{
		"Alpha Field": "Low",
		"Beta Field":  "High",
		"Gamma Field": "Medium",
	})
	refiner := &ConfidenceRefiner{client: client, maxToScore: 10, maxToReturn: 10}

	out, details := refiner.Refine(context.Background(), "beta things", &SearchPlan{Intent: IntentFindFields}, candidateFields())

	require.Len(t, out, 4)
	assert.Equal(t, "Beta Field", out[0].FieldLabel)
	assert.Equal(t, "Gamma Field", out[1].FieldLabel)
	assert.Equal(t, "Alpha Field", out[2].FieldLabel)
	// Delta got a non-label answer and sorts last with no confidence.
	assert.Equal(t, "Delta Field", out[3].FieldLabel)
	assert.Nil(t, out[3].MatchConfidence)

	assert.True(t, details.Applied)
	assert.Equal(t, 4, details.InitialCount)
	assert.Equal(t, 4, details.RefinedCount)
}

func TestConfidenceRefinerHonorsReturnCap(t *testing.T) {
	client := staticCompleter("High")
	refiner := &ConfidenceRefiner{client: client, maxToScore: 10, maxToReturn: 2}

	out, details := refiner.Refine(context.Background(), "anything", &SearchPlan{}, candidateFields())

	assert.Len(t, out, 2)
	assert.Equal(t, 2, details.RefinedCount)
}

func TestConfidenceRefinerNeverFabricates(t *testing.T) {
	client := staticCompleter("High")
	refiner := &ConfidenceRefiner{client: client, maxToScore: 10, maxToReturn: 10}

	in := candidateFields()
	out, _ := refiner.Refine(context.Background(), "anything", &SearchPlan{}, in)

	known := make(map[string]bool)
	for _, f := range in {
		known[f.Identity()] = true
	}
	for _, f := range out {
		assert.True(t, known[f.Identity()], "refiner returned a record not in the input: %s", f.Identity())
	}
}

func TestConfidenceRefinerDoesNotMutateInput(t *testing.T) {
	client := staticCompleter("High")
	refiner := &ConfidenceRefiner{client: client, maxToScore: 10, maxToReturn: 10}

	in := candidateFields()
	refiner.Refine(context.Background(), "anything", &SearchPlan{}, in)

	for _, f := range in {
		assert.Nil(t, f.MatchConfidence)
	}
}

func TestConfidenceRefinerFallsBackWhenScoringFails(t *testing.T) {
	refiner := &ConfidenceRefiner{client: failingCompleter(), maxToScore: 10, maxToReturn: 3}

	out, details := refiner.Refine(context.Background(), "anything", &SearchPlan{}, candidateFields())

	assert.Len(t, out, 3)
	assert.True(t, details.Applied)
	assert.Equal(t, "confidence scoring unavailable", details.Reason)
}

func TestConfidenceRefinerEmptyInput(t *testing.T) {
	refiner := &ConfidenceRefiner{client: failingCompleter(), maxToScore: 10, maxToReturn: 5}

	out, details := refiner.Refine(context.Background(), "anything", &SearchPlan{}, nil)

	assert.Empty(t, out)
	assert.False(t, details.Applied)
}

func TestReselectRefinerMapsSelections(t *testing.T) {
	client := staticCompleter(`{"selections": [
		{"fieldApiName": "Gamma__c", "objectApiName": "Account"},
		{"fieldApiName": "Alpha__c", "objectApiName": "Account"},
		{"fieldApiName": "Invented__c", "objectApiName": "Account"}
	]}`)
	refiner := &ReselectRefiner{client: client, maxToScore: 10, maxToReturn: 5}

	out, details := refiner.Refine(context.Background(), "gamma stuff", &SearchPlan{}, candidateFields())

	require.Len(t, out, 2)
	assert.Equal(t, "Gamma__c", out[0].FieldAPIName)
	assert.Equal(t, "Alpha__c", out[1].FieldAPIName)
	assert.True(t, details.Applied)
}

func TestReselectRefinerPassThroughOnUnparseableOutput(t *testing.T) {
	refiner := &ReselectRefiner{client: staticCompleter("I cannot pick."), maxToScore: 10, maxToReturn: 2}

	out, details := refiner.Refine(context.Background(), "anything", &SearchPlan{}, candidateFields())

	assert.Len(t, out, 2)
	assert.False(t, details.Applied)
	assert.Equal(t, "reselection returned no usable picks", details.Reason)
	assert.Equal(t, "Alpha Field", out[0].FieldLabel)
}

func TestReselectRefinerFallsBackOnProviderError(t *testing.T) {
	refiner := &ReselectRefiner{client: failingCompleter(), maxToScore: 10, maxToReturn: 3}

	out, details := refiner.Refine(context.Background(), "anything", &SearchPlan{}, candidateFields())

	assert.Len(t, out, 3)
	assert.Equal(t, "reselection unavailable", details.Reason)
}

func TestHeuristicRefinerPrefersDocumentedFields(t *testing.T) {
	refiner := &HeuristicRefiner{MaxToReturn: 5}

	fields := []models.FieldRecord{
		{FieldLabel: "Bare Amount", FieldAPIName: "Bare__c"},
		{
			FieldLabel:   "Documented Amount",
			FieldAPIName: "Documented__c",
			Description:  strings.Repeat("explains the amount thoroughly ", 3),
			HelpText:     "enter the total contract amount",
		},
	}

	out, details := refiner.Refine(context.Background(), "amount", &SearchPlan{}, fields)

	require.Len(t, out, 2)
	assert.Equal(t, "Documented Amount", out[0].FieldLabel)
	assert.True(t, details.Applied)
}

func TestHeuristicRefinerPenalizesDeprecatedNames(t *testing.T) {
	refiner := &HeuristicRefiner{MaxToReturn: 5}

	fields := []models.FieldRecord{
		{FieldLabel: "Legacy Amount", FieldAPIName: "LegacyAmount__c"},
		{FieldLabel: "Amount", FieldAPIName: "Amount__c"},
	}

	out, _ := refiner.Refine(context.Background(), "amount", &SearchPlan{}, fields)

	assert.Equal(t, "Amount", out[0].FieldLabel)
	assert.Equal(t, "Legacy Amount", out[1].FieldLabel)
}

func TestHeuristicRefinerBoostsTargetObject(t *testing.T) {
	refiner := &HeuristicRefiner{MaxToReturn: 5}
	target := "Opportunity"

	fields := []models.FieldRecord{
		{FieldLabel: "Amount", FieldAPIName: "AccountAmount__c", ObjectLabel: "Account", ObjectAPIName: "Account"},
		{FieldLabel: "Amount", FieldAPIName: "OppAmount__c", ObjectLabel: "Opportunity", ObjectAPIName: "Opportunity"},
	}

	out, _ := refiner.Refine(context.Background(), "amount", &SearchPlan{TargetObject: &target}, fields)

	assert.Equal(t, "OppAmount__c", out[0].FieldAPIName)
}

func TestHeuristicRefinerDeterministic(t *testing.T) {
	refiner := &HeuristicRefiner{MaxToReturn: 3}
	plan := &SearchPlan{}

	first, _ := refiner.Refine(context.Background(), "anything", plan, candidateFields())
	second, _ := refiner.Refine(context.Background(), "anything", plan, candidateFields())

	assert.Equal(t, first, second)
}

func TestNewRefinerStrategySelection(t *testing.T) {
	assert.IsType(t, &HeuristicRefiner{}, NewRefiner(StrategyHeuristic, nil, 10, 5))
	assert.IsType(t, &ReselectRefiner{}, NewRefiner(StrategyReselect, nil, 10, 5))
	assert.IsType(t, &ConfidenceRefiner{}, NewRefiner(StrategyConfidence, nil, 10, 5))
	assert.IsType(t, &ConfidenceRefiner{}, NewRefiner("unknown", nil, 10, 5))
}
