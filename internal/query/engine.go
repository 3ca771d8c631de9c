package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldatlas/backend/internal/metrics"
	"github.com/fieldatlas/backend/internal/nlq"
	"github.com/fieldatlas/backend/internal/search"
	"github.com/fieldatlas/backend/internal/storage/models"
	"github.com/fieldatlas/backend/internal/storage/sqlite"
	"github.com/fieldatlas/backend/pkg/logger"
	"github.com/fieldatlas/backend/pkg/utils"
)

// Pipeline stage names emitted to stream subscribers.
const (
	StagePlanning    = "planning"
	StageSearching   = "searching"
	StageRefining    = "refining"
	StageSummarizing = "summarizing"
	StageDone        = "done"
)

// Cache stores whole responses keyed by query hash. Satisfied by the
// redis client; nil means caching is disabled.
type Cache interface {
	GetQuery(ctx context.Context, queryHash string, response interface{}) (bool, error)
	SetQuery(ctx context.Context, queryHash string, response interface{}, ttl time.Duration) error
}

// Engine runs one query through the full pipeline: plan, execute, refine,
// summarize, log. Every stage after input validation degrades on failure
// instead of aborting, so Process never returns an error.
type Engine struct {
	db           *sqlite.Client
	cache        Cache
	llm          nlq.Completer
	planner      *nlq.Planner
	executor     *search.Executor
	refiner      nlq.Refiner
	narrativeMax int
	cacheTTL     time.Duration
}

type Options struct {
	FieldLimit   int
	ObjectLimit  int
	NarrativeMax int
	CacheTTL     time.Duration
}

func NewEngine(db *sqlite.Client, cache Cache, llmClient nlq.Completer, refiner nlq.Refiner, opts Options) *Engine {
	if opts.NarrativeMax <= 0 {
		opts.NarrativeMax = 5
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	return &Engine{
		db:           db,
		cache:        cache,
		llm:          llmClient,
		planner:      nlq.NewPlanner(llmClient),
		executor:     search.NewExecutor(db, opts.FieldLimit, opts.ObjectLimit),
		refiner:      refiner,
		narrativeMax: opts.NarrativeMax,
		cacheTTL:     opts.CacheTTL,
	}
}

// Response is the envelope returned to the HTTP layer.
type Response struct {
	Query             string                `json:"query"`
	Plan              *nlq.SearchPlan       `json:"plan"`
	FieldResults      []models.FieldRecord  `json:"fieldResults"`
	ObjectResults     []models.ObjectRecord `json:"objectResults"`
	ResultCount       int                   `json:"resultCount"`
	Summary           string                `json:"summary"`
	NarrativeSummary  string                `json:"narrativeSummary"`
	ProcessingTimeMs  int                   `json:"processingTimeMs"`
	RefinementDetails nlq.RefinementDetails `json:"refinementDetails"`
}

// Process runs the pipeline to completion for one query.
func (e *Engine) Process(ctx context.Context, query string) *Response {
	return e.ProcessStream(ctx, query, nil)
}

// ProcessStream is Process with optional stage notifications for streaming
// clients. notify may be nil.
func (e *Engine) ProcessStream(ctx context.Context, query string, notify func(stage string)) *Response {
	startTime := time.Now()
	queryID := uuid.New().String()

	logger.Info("Processing search query",
		zap.String("query_id", queryID),
		zap.String("query", query),
	)

	if cached := e.cacheLookup(ctx, query); cached != nil {
		logger.Debug("Returning cached response", zap.String("query_id", queryID))

		// A cache hit is still a request: it gets its own log entry and
		// counts toward the totals.
		e.logQuery(ctx, queryID, query, cached.Plan, cached.ResultCount,
			int(time.Since(startTime).Milliseconds()), true, "")
		metrics.QueryTotal.WithLabelValues("success").Inc()

		emit(notify, StageDone)
		return cached
	}

	emit(notify, StagePlanning)
	plan := e.planner.GeneratePlan(ctx, query)

	emit(notify, StageSearching)
	result := e.executor.Execute(ctx, plan)

	fieldResults := result.Fields
	objectResults := result.Objects

	details := nlq.RefinementDetails{InitialCount: len(fieldResults), RefinedCount: len(fieldResults)}
	if plan.Intent == nlq.IntentFindObjects {
		details = nlq.RefinementDetails{
			InitialCount: len(objectResults),
			RefinedCount: len(objectResults),
			Reason:       "object search is not refined",
		}
	} else if len(fieldResults) > 0 {
		emit(notify, StageRefining)
		fieldResults, details = e.refiner.Refine(ctx, query, plan, fieldResults)
	}

	if result.Unfiltered {
		if details.Reason == "" {
			details.Reason = "unfiltered listing"
		} else {
			details.Reason += "; unfiltered listing"
		}
	}

	resultCount := len(fieldResults)
	if plan.Intent == nlq.IntentFindObjects {
		resultCount = len(objectResults)
	}

	emit(notify, StageSummarizing)

	var summary, narrative string
	if plan.Intent == nlq.IntentFindObjects {
		summary = objectSummary(plan, resultCount)
		if resultCount == 0 {
			narrative = nlq.NoResultsNarrative
		}
	} else {
		summary = nlq.BuildFilterSummary(plan, resultCount)
		narrative = nlq.BuildNarrative(ctx, e.llm, query, fieldResults, e.narrativeMax)
	}

	processingTime := int(time.Since(startTime).Milliseconds())

	if fieldResults == nil {
		fieldResults = []models.FieldRecord{}
	}
	if objectResults == nil {
		objectResults = []models.ObjectRecord{}
	}

	response := &Response{
		Query:             query,
		Plan:              plan,
		FieldResults:      fieldResults,
		ObjectResults:     objectResults,
		ResultCount:       resultCount,
		Summary:           summary,
		NarrativeSummary:  narrative,
		ProcessingTimeMs:  processingTime,
		RefinementDetails: details,
	}

	e.logQuery(ctx, queryID, query, plan, resultCount, processingTime, true, "")
	e.cacheStore(ctx, query, response)

	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryDuration.WithLabelValues(plan.Intent).Observe(time.Since(startTime).Seconds())
	if details.Applied {
		metrics.RefinementApplied.Inc()
	}

	logger.Info("Search query processed",
		zap.String("query_id", queryID),
		zap.String("intent", plan.Intent),
		zap.Int("result_count", resultCount),
		zap.Int("processing_time_ms", processingTime),
	)

	emit(notify, StageDone)
	return response
}

// LogRejected records a request that failed input validation. Rejections
// never reach the pipeline, but they still belong in the query log.
func (e *Engine) LogRejected(ctx context.Context, query, errMsg string, latency time.Duration) {
	metrics.QueryTotal.WithLabelValues("rejected").Inc()
	e.logQuery(ctx, uuid.New().String(), query, nil, 0, int(latency.Milliseconds()), false, errMsg)
}

// RecentLogs exposes the query log for the analytics endpoint.
func (e *Engine) RecentLogs(ctx context.Context, limit int) ([]models.QueryLogEntry, error) {
	return e.db.RecentQueryLogs(ctx, limit)
}

// Health reports store connectivity and the loaded record count.
func (e *Engine) Health(ctx context.Context) (int, error) {
	if err := e.db.Ping(ctx); err != nil {
		return 0, err
	}
	return e.db.CountFields(ctx)
}

// logQuery is best-effort: a log-sink failure must never fail an
// otherwise-successful search.
func (e *Engine) logQuery(ctx context.Context, id, query string, plan *nlq.SearchPlan, resultCount, processingTime int, success bool, errMsg string) {
	planJSON := ""
	if plan != nil {
		if data, err := json.Marshal(plan); err == nil {
			planJSON = string(data)
		}
	}

	entry := &models.QueryLogEntry{
		ID:               id,
		Query:            query,
		Plan:             planJSON,
		ResultCount:      resultCount,
		ProcessingTimeMs: processingTime,
		Success:          success,
		ErrorMessage:     errMsg,
		CreatedAt:        time.Now(),
	}

	if err := e.db.InsertQueryLog(ctx, entry); err != nil {
		logger.Warn("Query log write failed", zap.Error(err), zap.String("query_id", id))
	}
}

func (e *Engine) cacheLookup(ctx context.Context, query string) *Response {
	if e.cache == nil {
		return nil
	}

	var cached Response
	hit, err := e.cache.GetQuery(ctx, utils.HashQuery(query), &cached)
	if err != nil {
		logger.Warn("Cache lookup failed", zap.Error(err))
		return nil
	}
	if !hit {
		metrics.CacheMisses.Inc()
		return nil
	}

	metrics.CacheHits.Inc()
	return &cached
}

func (e *Engine) cacheStore(ctx context.Context, query string, response *Response) {
	if e.cache == nil {
		return
	}
	if err := e.cache.SetQuery(ctx, utils.HashQuery(query), response, e.cacheTTL); err != nil {
		logger.Warn("Cache write failed", zap.Error(err))
	}
}

func objectSummary(plan *nlq.SearchPlan, resultCount int) string {
	plural := "s"
	if resultCount == 1 {
		plural = ""
	}
	summary := fmt.Sprintf("Found %d object%s", resultCount, plural)
	if len(plan.RawKeywords) > 0 {
		summary += fmt.Sprintf(" matching %q", strings.Join(plan.RawKeywords, ", "))
	}
	return summary
}

func emit(notify func(stage string), stage string) {
	if notify != nil {
		notify(stage)
	}
}
