package nlq

import (
	"encoding/json"
	"strings"
)

// Intents understood by the planner. Only find_fields and find_objects have
// their own execution paths; the rest behave as find_fields.
const (
	IntentFindFields   = "find_fields"
	IntentFindObjects  = "find_objects"
	IntentDescribe     = "describe_field"
	IntentListObjects  = "list_objects"
	IntentFilterByType = "filter_by_type"
)

// Condition operators.
const (
	OpILike            = "ilike"
	OpEqualsIgnoreCase = "equals_ignore_case"
	OpContainsInArray  = "contains_in_array_field"
)

// FieldColumns is the whitelist of queryable field-table columns, mapping
// the plan-level name to the store column. Model output may only reference
// these names; anything else is dropped during Normalize. This mapping is
// the injection boundary between the LLM and the store.
var FieldColumns = map[string]string{
	"fieldLabel":         "field_label",
	"fieldApiName":       "field_api_name",
	"objectLabel":        "object_label",
	"objectApiName":      "object_api_name",
	"dataType":           "data_type",
	"description":        "description",
	"helpText":           "help_text",
	"formula":            "formula",
	"picklistValues":     "picklist_values",
	"complianceCategory": "compliance_category",
	"tagIds":             "tag_ids",
	"owners":             "owners",
	"stakeholders":       "stakeholders",
	"ingestedBy":         "ingested_by",
}

// ObjectColumns is the object-table counterpart of FieldColumns.
var ObjectColumns = map[string]string{
	"objectLabel":   "object_label",
	"objectApiName": "object_api_name",
	"description":   "description",
	"pluralLabel":   "plural_label",
	"tags":          "tags",
	"sharingModel":  "sharing_model",
	"keyPrefix":     "key_prefix",
}

// ConditionValue accepts either a JSON string or an array of strings, since
// the model emits both shapes.
type ConditionValue []string

func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*v = ConditionValue{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*v = ConditionValue(many)
	return nil
}

func (v ConditionValue) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

type SearchCondition struct {
	Field    string         `json:"field"`
	Operator string         `json:"operator"`
	Value    ConditionValue `json:"value"`
}

type FilterGroup struct {
	LogicalOperator string            `json:"logicalOperator"`
	Conditions      []SearchCondition `json:"conditions"`
}

// SearchPlan is the validated, structured form of a natural-language query.
// Groups combine with AND at the top level; conditions inside a group
// combine with the group's own operator.
type SearchPlan struct {
	Intent         string           `json:"intent"`
	TargetObject   *string          `json:"targetObject"`
	FilterGroups   []FilterGroup    `json:"filterGroups"`
	DataTypeFilter *SearchCondition `json:"dataTypeFilter"`
	RawKeywords    []string         `json:"rawKeywords"`
}

// Columns returns the column whitelist matching the plan's intent.
func (p *SearchPlan) Columns() map[string]string {
	if p.Intent == IntentFindObjects {
		return ObjectColumns
	}
	return FieldColumns
}

// Normalize validates the plan in place and returns how many conditions
// were rejected. Unknown intents collapse to find_fields, unknown operators
// to ilike, and any condition naming a column outside the whitelist is
// dropped here rather than deep in the executor, so a bad plan fails fast
// and observably.
func (p *SearchPlan) Normalize() int {
	switch p.Intent {
	case IntentFindFields, IntentFindObjects:
	case IntentDescribe, IntentListObjects, IntentFilterByType:
		// Recognized but not separately executed.
	default:
		p.Intent = IntentFindFields
	}

	if p.TargetObject != nil && strings.TrimSpace(*p.TargetObject) == "" {
		p.TargetObject = nil
	}

	columns := p.Columns()
	dropped := 0

	groups := p.FilterGroups[:0]
	for _, g := range p.FilterGroups {
		g.LogicalOperator = normalizeOperatorWord(g.LogicalOperator)

		conditions := g.Conditions[:0]
		for _, cond := range g.Conditions {
			if !validCondition(cond, columns) {
				dropped++
				continue
			}
			cond.Operator = normalizeConditionOperator(cond.Operator)
			conditions = append(conditions, cond)
		}
		g.Conditions = conditions

		if len(g.Conditions) > 0 {
			groups = append(groups, g)
		}
	}
	p.FilterGroups = groups

	if p.DataTypeFilter != nil {
		// Only the fields table has a data type column; an object search
		// carrying this filter would query a column that doesn't exist.
		if p.Intent == IntentFindObjects {
			p.DataTypeFilter = nil
			dropped++
		} else if len(p.DataTypeFilter.Value) == 0 || allEmpty(p.DataTypeFilter.Value) {
			p.DataTypeFilter = nil
			dropped++
		} else {
			// The data-type filter only ever targets the dataType column,
			// whatever the model claimed.
			p.DataTypeFilter.Field = "dataType"
			p.DataTypeFilter.Operator = normalizeConditionOperator(p.DataTypeFilter.Operator)
		}
	}

	if p.RawKeywords == nil {
		p.RawKeywords = []string{}
	}

	return dropped
}

func validCondition(cond SearchCondition, columns map[string]string) bool {
	if _, ok := columns[cond.Field]; !ok {
		return false
	}
	return len(cond.Value) > 0 && !allEmpty(cond.Value)
}

func allEmpty(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func normalizeOperatorWord(op string) string {
	if strings.EqualFold(op, "AND") {
		return "AND"
	}
	return "OR"
}

func normalizeConditionOperator(op string) string {
	switch op {
	case OpILike, OpEqualsIgnoreCase, OpContainsInArray:
		return op
	default:
		return OpILike
	}
}
