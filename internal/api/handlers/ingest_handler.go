package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fieldatlas/backend/internal/ingestion"
	"github.com/fieldatlas/backend/pkg/logger"
)

type IngestHandler struct {
	processor *ingestion.Processor
	flush     func() // nil when caching is disabled
}

func NewIngestHandler(processor *ingestion.Processor, flush func()) *IngestHandler {
	return &IngestHandler{processor: processor, flush: flush}
}

func (h *IngestHandler) HandleFieldUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A CSV file is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer file.Close()

	ingestedBy := c.Get("X-User-ID")

	loaded, skipped, err := h.processor.ProcessFieldCSV(c.Context(), file, ingestedBy)
	if err != nil {
		logger.Error("Field dictionary load failed", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if h.flush != nil {
		h.flush()
	}

	return c.JSON(fiber.Map{
		"loaded":  loaded,
		"skipped": skipped,
	})
}

func (h *IngestHandler) HandleObjectUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A CSV file is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Failed to read uploaded file",
		})
	}
	defer file.Close()

	loaded, skipped, err := h.processor.ProcessObjectCSV(c.Context(), file)
	if err != nil {
		logger.Error("Object dictionary load failed", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if h.flush != nil {
		h.flush()
	}

	return c.JSON(fiber.Map{
		"loaded":  loaded,
		"skipped": skipped,
	})
}
