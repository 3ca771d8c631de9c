package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldatlas/backend/internal/nlq"
	"github.com/fieldatlas/backend/internal/storage/sqlite"
)

func TestBuildPredicateTargetObject(t *testing.T) {
	target := "Opportunity"
	plan := &nlq.SearchPlan{Intent: nlq.IntentFindFields, TargetObject: &target}

	where, args := buildPredicate(plan, nlq.FieldColumns, fieldObjectMatchColumns)

	assert.Equal(t, "(LOWER(object_label) LIKE ? OR LOWER(object_api_name) LIKE ?)", where)
	assert.Equal(t, []interface{}{"%opportunity%", "%opportunity%"}, args)
}

func TestBuildPredicateSkipsUnknownColumns(t *testing.T) {
	plan := &nlq.SearchPlan{
		Intent: nlq.IntentFindFields,
		FilterGroups: []nlq.FilterGroup{
			{
				LogicalOperator: "OR",
				Conditions: []nlq.SearchCondition{
					{Field: "not_a_column", Operator: nlq.OpILike, Value: nlq.ConditionValue{"%x%"}},
					{Field: "fieldLabel", Operator: nlq.OpILike, Value: nlq.ConditionValue{"%revenue%"}},
				},
			},
		},
	}

	where, args := buildPredicate(plan, nlq.FieldColumns, fieldObjectMatchColumns)

	assert.Equal(t, "(LOWER(field_label) LIKE ?)", where)
	assert.Equal(t, []interface{}{"%revenue%"}, args)
}

func TestBuildPredicateGroupsJoinWithAnd(t *testing.T) {
	plan := &nlq.SearchPlan{
		Intent: nlq.IntentFindFields,
		FilterGroups: []nlq.FilterGroup{
			{
				LogicalOperator: "OR",
				Conditions: []nlq.SearchCondition{
					{Field: "fieldLabel", Operator: nlq.OpILike, Value: nlq.ConditionValue{"%owner%"}},
					{Field: "description", Operator: nlq.OpILike, Value: nlq.ConditionValue{"%owner%"}},
				},
			},
			{
				LogicalOperator: "AND",
				Conditions: []nlq.SearchCondition{
					{Field: "usageStatus", Operator: nlq.OpEqualsIgnoreCase, Value: nlq.ConditionValue{"Active"}},
				},
			},
		},
	}
	plan.Normalize()

	where, args := buildPredicate(plan, nlq.FieldColumns, fieldObjectMatchColumns)

	assert.Equal(t,
		"(LOWER(field_label) LIKE ? OR LOWER(description) LIKE ?) AND (LOWER(usage_status) = ?)",
		where)
	assert.Equal(t, []interface{}{"%owner%", "%owner%", "active"}, args)
}

func TestBuildPredicateDataTypeFilter(t *testing.T) {
	plan := &nlq.SearchPlan{
		Intent:         nlq.IntentFindFields,
		DataTypeFilter: &nlq.SearchCondition{Field: "dataType", Operator: nlq.OpILike, Value: nlq.ConditionValue{"%Currency%"}},
	}

	where, args := buildPredicate(plan, nlq.FieldColumns, fieldObjectMatchColumns)

	assert.Equal(t, "LOWER(data_type) LIKE ?", where)
	assert.Equal(t, []interface{}{"%currency%"}, args)
}

func TestBuildPredicateMultiValueCondition(t *testing.T) {
	plan := &nlq.SearchPlan{
		Intent: nlq.IntentFindFields,
		FilterGroups: []nlq.FilterGroup{
			{
				LogicalOperator: "OR",
				Conditions: []nlq.SearchCondition{
					{Field: "tagIds", Operator: nlq.OpContainsInArray, Value: nlq.ConditionValue{"pii", "gdpr"}},
				},
			},
		},
	}

	where, args := buildPredicate(plan, nlq.FieldColumns, fieldObjectMatchColumns)

	assert.Equal(t, "((LOWER(tag_ids) LIKE ? OR LOWER(tag_ids) LIKE ?))", where)
	assert.Equal(t, []interface{}{"%pii%", "%gdpr%"}, args)
}

func TestBuildPredicateEmptyPlan(t *testing.T) {
	plan := &nlq.SearchPlan{Intent: nlq.IntentFindFields}

	where, args := buildPredicate(plan, nlq.FieldColumns, fieldObjectMatchColumns)

	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%revenue%", likePattern("Revenue"))
	assert.Equal(t, "%currency%", likePattern("%Currency%"))
}

func TestExecuteFieldsReturnsEmptyOnStoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM salesforce_fields").WillReturnError(errors.New("disk I/O error"))

	executor := NewExecutor(sqlite.NewClientWithDB(db), 100, 50)
	result := executor.Execute(context.Background(), &nlq.SearchPlan{Intent: nlq.IntentFindFields})

	assert.Empty(t, result.Fields)
	assert.False(t, result.Unfiltered)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteFieldsFlagsUnfilteredListing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM salesforce_fields LIMIT \\?").
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	executor := NewExecutor(sqlite.NewClientWithDB(db), 100, 50)
	result := executor.Execute(context.Background(), &nlq.SearchPlan{Intent: nlq.IntentFindFields})

	assert.True(t, result.Unfiltered)
	assert.Empty(t, result.Fields)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildPredicateIgnoresDataTypeFilterForObjects(t *testing.T) {
	target := "Account"
	plan := &nlq.SearchPlan{
		Intent:         nlq.IntentFindObjects,
		TargetObject:   &target,
		DataTypeFilter: &nlq.SearchCondition{Field: "dataType", Operator: nlq.OpILike, Value: nlq.ConditionValue{"%Currency%"}},
	}

	where, args := buildPredicate(plan, nlq.ObjectColumns, objectMatchColumns)

	assert.Equal(t, "(LOWER(object_label) LIKE ? OR LOWER(object_api_name) LIKE ?)", where)
	assert.Equal(t, []interface{}{"%account%", "%account%"}, args)
}

func TestExecuteObjectsWithDataTypeFilterStillMatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	target := "Account"
	now := time.Now().Unix()
	rows := sqlmock.NewRows([]string{
		"id", "object_label", "object_api_name", "description", "plural_label",
		"key_prefix", "sharing_model", "tags", "is_custom", "created_at",
	}).AddRow(1, "Account", "Account", "Companies we do business with", "Accounts", "001", "Private", "", 0, now)

	// The predicate must not reference the fields table's data type column.
	mock.ExpectQuery("FROM salesforce_objects WHERE \\(LOWER\\(object_label\\) LIKE \\? OR LOWER\\(object_api_name\\) LIKE \\?\\) LIMIT \\?").
		WithArgs("%account%", "%account%", 50).
		WillReturnRows(rows)

	executor := NewExecutor(sqlite.NewClientWithDB(db), 100, 50)
	result := executor.Execute(context.Background(), &nlq.SearchPlan{
		Intent:         nlq.IntentFindObjects,
		TargetObject:   &target,
		DataTypeFilter: &nlq.SearchCondition{Field: "dataType", Operator: nlq.OpILike, Value: nlq.ConditionValue{"%Currency%"}},
	})

	require.Len(t, result.Objects, 1)
	assert.Equal(t, "Account", result.Objects[0].ObjectAPIName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteObjectsUsesObjectTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	target := "Account"
	mock.ExpectQuery("FROM salesforce_objects WHERE (.+) LIMIT \\?").
		WithArgs("%account%", "%account%", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	executor := NewExecutor(sqlite.NewClientWithDB(db), 100, 50)
	result := executor.Execute(context.Background(), &nlq.SearchPlan{
		Intent:       nlq.IntentFindObjects,
		TargetObject: &target,
	})

	assert.Empty(t, result.Objects)
	assert.False(t, result.Unfiltered)
	assert.NoError(t, mock.ExpectationsWereMet())
}
