package search

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fieldatlas/backend/internal/nlq"
	"github.com/fieldatlas/backend/internal/storage/models"
	"github.com/fieldatlas/backend/internal/storage/sqlite"
	"github.com/fieldatlas/backend/pkg/logger"
)

// Executor translates a validated SearchPlan into a bounded, parameterized
// query against the metadata store. Column names resolve only through the
// plan whitelists; a store failure yields an empty result set, never an
// error to the caller.
type Executor struct {
	db          *sqlite.Client
	fieldLimit  int
	objectLimit int
}

func NewExecutor(db *sqlite.Client, fieldLimit, objectLimit int) *Executor {
	if fieldLimit <= 0 {
		fieldLimit = 100
	}
	if objectLimit <= 0 {
		objectLimit = 50
	}
	return &Executor{db: db, fieldLimit: fieldLimit, objectLimit: objectLimit}
}

// Result carries whichever table the plan's intent selected, plus whether
// the query degraded to an unfiltered listing (no conditions survived
// validation), which downstream confidence scoring should treat as
// low precision.
type Result struct {
	Fields     []models.FieldRecord
	Objects    []models.ObjectRecord
	Unfiltered bool
}

func (e *Executor) Execute(ctx context.Context, plan *nlq.SearchPlan) Result {
	if plan.Intent == nlq.IntentFindObjects {
		return e.executeObjects(ctx, plan)
	}
	return e.executeFields(ctx, plan)
}

func (e *Executor) executeFields(ctx context.Context, plan *nlq.SearchPlan) Result {
	where, args := buildPredicate(plan, nlq.FieldColumns, fieldObjectMatchColumns)

	records, err := e.db.SearchFields(ctx, where, args, e.fieldLimit)
	if err != nil {
		logger.Warn("Field search failed, returning empty result set", zap.Error(err))
		return Result{Fields: []models.FieldRecord{}}
	}

	logger.Debug("Field search executed",
		zap.Int("results", len(records)),
		zap.Bool("unfiltered", where == ""),
	)

	return Result{Fields: records, Unfiltered: where == ""}
}

func (e *Executor) executeObjects(ctx context.Context, plan *nlq.SearchPlan) Result {
	where, args := buildPredicate(plan, nlq.ObjectColumns, objectMatchColumns)

	records, err := e.db.SearchObjects(ctx, where, args, e.objectLimit)
	if err != nil {
		logger.Warn("Object search failed, returning empty result set", zap.Error(err))
		return Result{Objects: []models.ObjectRecord{}}
	}

	return Result{Objects: records, Unfiltered: where == ""}
}

// Columns used for the target-object predicate on each table.
var (
	fieldObjectMatchColumns = []string{"object_label", "object_api_name"}
	objectMatchColumns      = []string{"object_label", "object_api_name"}
)

// buildPredicate assembles the WHERE clause: target-object OR-clause AND
// data-type filter AND each filter group, with group-internal conditions
// joined by the group's own operator. Conditions naming columns outside the
// whitelist are skipped without error.
func buildPredicate(plan *nlq.SearchPlan, columns map[string]string, targetColumns []string) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if plan.TargetObject != nil {
		var parts []string
		for _, col := range targetColumns {
			parts = append(parts, "LOWER("+col+") LIKE ?")
			args = append(args, likePattern(*plan.TargetObject))
		}
		clauses = append(clauses, "("+strings.Join(parts, " OR ")+")")
	}

	// The data type column only exists on the fields table.
	if plan.DataTypeFilter != nil && plan.Intent != nlq.IntentFindObjects {
		if clause, condArgs, ok := conditionClause(*plan.DataTypeFilter, nlq.FieldColumns); ok {
			clauses = append(clauses, clause)
			args = append(args, condArgs...)
		}
	}

	for _, group := range plan.FilterGroups {
		var parts []string
		for _, cond := range group.Conditions {
			clause, condArgs, ok := conditionClause(cond, columns)
			if !ok {
				continue
			}
			parts = append(parts, clause)
			args = append(args, condArgs...)
		}
		if len(parts) == 0 {
			continue
		}
		op := " " + group.LogicalOperator + " "
		clauses = append(clauses, "("+strings.Join(parts, op)+")")
	}

	return strings.Join(clauses, " AND "), args
}

func conditionClause(cond nlq.SearchCondition, columns map[string]string) (string, []interface{}, bool) {
	col, ok := columns[cond.Field]
	if !ok {
		return "", nil, false
	}

	var parts []string
	var args []interface{}
	for _, value := range cond.Value {
		if strings.TrimSpace(value) == "" {
			continue
		}
		switch cond.Operator {
		case nlq.OpEqualsIgnoreCase:
			parts = append(parts, "LOWER("+col+") = ?")
			args = append(args, strings.ToLower(value))
		case nlq.OpContainsInArray:
			// Multi-value columns are stored comma-serialized; a substring
			// match over the serialized form covers membership.
			parts = append(parts, "LOWER("+col+") LIKE ?")
			args = append(args, likePattern(value))
		default:
			parts = append(parts, "LOWER("+col+") LIKE ?")
			args = append(args, likePattern(value))
		}
	}

	if len(parts) == 0 {
		return "", nil, false
	}
	if len(parts) == 1 {
		return parts[0], args, true
	}
	return "(" + strings.Join(parts, " OR ") + ")", args, true
}

// likePattern lowercases the value and guarantees substring semantics when
// the planner didn't supply wildcards itself.
func likePattern(value string) string {
	v := strings.ToLower(value)
	if !strings.Contains(v, "%") {
		v = "%" + v + "%"
	}
	return v
}
