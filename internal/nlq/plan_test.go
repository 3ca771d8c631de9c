package nlq

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionValueUnmarshalString(t *testing.T) {
	var v ConditionValue
	err := json.Unmarshal([]byte(`"%currency%"`), &v)
	require.NoError(t, err)
	assert.Equal(t, ConditionValue{"%currency%"}, v)
}

func TestConditionValueUnmarshalArray(t *testing.T) {
	var v ConditionValue
	err := json.Unmarshal([]byte(`["%a%", "%b%"]`), &v)
	require.NoError(t, err)
	assert.Equal(t, ConditionValue{"%a%", "%b%"}, v)
}

func TestConditionValueMarshalSingleAsString(t *testing.T) {
	data, err := json.Marshal(ConditionValue{"%a%"})
	require.NoError(t, err)
	assert.Equal(t, `"%a%"`, string(data))

	data, err = json.Marshal(ConditionValue{"%a%", "%b%"})
	require.NoError(t, err)
	assert.Equal(t, `["%a%","%b%"]`, string(data))
}

func TestNormalizeDropsUnknownColumns(t *testing.T) {
	plan := &SearchPlan{
		Intent: IntentFindFields,
		FilterGroups: []FilterGroup{
			{
				LogicalOperator: "OR",
				Conditions: []SearchCondition{
					{Field: "fieldLabel", Operator: OpILike, Value: ConditionValue{"%amount%"}},
					{Field: "id; DROP TABLE salesforce_fields", Operator: OpILike, Value: ConditionValue{"%x%"}},
				},
			},
		},
	}

	dropped := plan.Normalize()

	assert.Equal(t, 1, dropped)
	require.Len(t, plan.FilterGroups, 1)
	require.Len(t, plan.FilterGroups[0].Conditions, 1)
	assert.Equal(t, "fieldLabel", plan.FilterGroups[0].Conditions[0].Field)
}

func TestNormalizeRemovesEmptiedGroups(t *testing.T) {
	plan := &SearchPlan{
		Intent: IntentFindFields,
		FilterGroups: []FilterGroup{
			{
				LogicalOperator: "OR",
				Conditions: []SearchCondition{
					{Field: "nonsense", Operator: OpILike, Value: ConditionValue{"%x%"}},
					{Field: "fieldLabel", Operator: OpILike, Value: ConditionValue{"  "}},
				},
			},
		},
	}

	dropped := plan.Normalize()

	assert.Equal(t, 2, dropped)
	assert.Empty(t, plan.FilterGroups)
}

func TestNormalizeCoercesUnknownIntent(t *testing.T) {
	plan := &SearchPlan{Intent: "summon_fields"}
	plan.Normalize()
	assert.Equal(t, IntentFindFields, plan.Intent)
	assert.NotNil(t, plan.RawKeywords)
}

func TestNormalizeOperators(t *testing.T) {
	plan := &SearchPlan{
		Intent: IntentFindFields,
		FilterGroups: []FilterGroup{
			{
				LogicalOperator: "and",
				Conditions: []SearchCondition{
					{Field: "description", Operator: "LIKE", Value: ConditionValue{"%a%"}},
				},
			},
			{
				LogicalOperator: "maybe",
				Conditions: []SearchCondition{
					{Field: "fieldLabel", Operator: OpEqualsIgnoreCase, Value: ConditionValue{"amount"}},
				},
			},
		},
	}

	plan.Normalize()

	assert.Equal(t, "AND", plan.FilterGroups[0].LogicalOperator)
	assert.Equal(t, OpILike, plan.FilterGroups[0].Conditions[0].Operator)
	assert.Equal(t, "OR", plan.FilterGroups[1].LogicalOperator)
	assert.Equal(t, OpEqualsIgnoreCase, plan.FilterGroups[1].Conditions[0].Operator)
}

func TestNormalizeDataTypeFilter(t *testing.T) {
	plan := &SearchPlan{
		Intent: IntentFindFields,
		DataTypeFilter: &SearchCondition{
			Field:    "description",
			Operator: "bogus",
			Value:    ConditionValue{"%Currency%"},
		},
	}

	plan.Normalize()

	require.NotNil(t, plan.DataTypeFilter)
	assert.Equal(t, "dataType", plan.DataTypeFilter.Field)
	assert.Equal(t, OpILike, plan.DataTypeFilter.Operator)
}

func TestNormalizeDropsDataTypeFilterForObjectSearch(t *testing.T) {
	plan := &SearchPlan{
		Intent:         IntentFindObjects,
		DataTypeFilter: &SearchCondition{Field: "dataType", Operator: OpILike, Value: ConditionValue{"%Currency%"}},
	}

	dropped := plan.Normalize()

	assert.Nil(t, plan.DataTypeFilter)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, IntentFindObjects, plan.Intent)
}

func TestNormalizeDropsEmptyDataTypeFilter(t *testing.T) {
	plan := &SearchPlan{
		Intent:         IntentFindFields,
		DataTypeFilter: &SearchCondition{Field: "dataType", Operator: OpILike, Value: ConditionValue{""}},
	}

	dropped := plan.Normalize()

	assert.Nil(t, plan.DataTypeFilter)
	assert.Equal(t, 1, dropped)
}

func TestNormalizeBlankTargetObject(t *testing.T) {
	blank := "   "
	plan := &SearchPlan{Intent: IntentFindFields, TargetObject: &blank}
	plan.Normalize()
	assert.Nil(t, plan.TargetObject)
}

func TestColumnsFollowIntent(t *testing.T) {
	fieldPlan := &SearchPlan{Intent: IntentFindFields}
	objectPlan := &SearchPlan{Intent: IntentFindObjects}

	assert.Contains(t, fieldPlan.Columns(), "helpText")
	assert.Contains(t, objectPlan.Columns(), "pluralLabel")
	assert.NotContains(t, objectPlan.Columns(), "helpText")
}
