package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fieldatlas/backend/internal/query"
	"github.com/fieldatlas/backend/pkg/logger"
)

// Canned queries surfaced to the UI so first-time users have something to
// click on.
var exampleQueries = []string{
	"Show me all picklist fields on the Account object",
	"What fields contain sensitive customer information?",
	"Find formula fields related to revenue calculation",
	"Show me address fields on Contact object",
	"What date fields are available on Case object?",
	"Find all custom fields on Opportunity",
}

type SearchHandler struct {
	engine *query.Engine
}

func NewSearchHandler(engine *query.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

func (h *SearchHandler) HandleSearch(c *fiber.Ctx) error {
	start := time.Now()

	var req struct {
		Query string `json:"query"`
	}

	if sanitized, ok := c.Locals("sanitized_body").(map[string]interface{}); ok {
		req.Query, _ = sanitized["query"].(string)
	} else if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse search request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Query == "" {
		h.engine.LogRejected(c.Context(), req.Query, "query is required", time.Since(start))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	response := h.engine.Process(c.Context(), req.Query)
	return c.JSON(response)
}

func (h *SearchHandler) GetRecentQueries(c *fiber.Ctx) error {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	entries, err := h.engine.RecentLogs(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to fetch recent queries", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch recent queries",
		})
	}

	return c.JSON(fiber.Map{
		"queries": entries,
	})
}

func (h *SearchHandler) GetExamples(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"examples": exampleQueries,
	})
}

func (h *SearchHandler) HandleHealth(c *fiber.Ctx) error {
	fieldCount, err := h.engine.Health(c.Context())
	if err != nil {
		logger.Error("Health check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":       "healthy",
		"fieldsLoaded": fieldCount,
	})
}
