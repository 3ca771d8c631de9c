package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fieldatlas/backend/internal/query"
	"github.com/fieldatlas/backend/pkg/logger"
)

// WebSocketHandler streams pipeline stage events to the client while a
// search runs, then sends the full response. Stage messages let the UI
// show "planning / searching / refining" progress for slow model calls.
type WebSocketHandler struct {
	engine *query.Engine
}

func NewWebSocketHandler(engine *query.Engine) *WebSocketHandler {
	return &WebSocketHandler{engine: engine}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type  string `json:"type"`
			Query string `json:"query"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "search" {
			continue
		}

		if msg.Query == "" {
			h.sendError(c, "Query is required")
			continue
		}

		logger.Info("Processing WebSocket search", zap.String("query", msg.Query))
		h.streamSearch(c, msg.Query)
	}
}

func (h *WebSocketHandler) streamSearch(c *websocket.Conn, queryText string) {
	ctx := context.Background()

	response := h.engine.ProcessStream(ctx, queryText, func(stage string) {
		c.WriteJSON(map[string]interface{}{
			"type":  "stage",
			"stage": stage,
		})
	})

	if err := c.WriteJSON(map[string]interface{}{
		"type":     "complete",
		"response": response,
	}); err != nil {
		logger.Error("Failed to write WebSocket response", zap.Error(err))
	}
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
