package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/metrics"
	"github.com/support-agent/backend/internal/query"
	"github.com/support-agent/backend/pkg/logger"
)

type WebSocketHandler struct {
	engine *query.Engine
}

func NewWebSocketHandler(engine *query.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")
	metrics.WebsocketConnections.Inc()

	defer func() {
		c.Close()
		metrics.WebsocketConnections.Dec()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type           string `json:"type"`
			Question       string `json:"question"`
			CustomerID     string `json:"customer_id"`
			ConversationID string `json:"conversation_id"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Info("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "query" || msg.Question == "" {
			continue
		}

		req := query.Request{
			Question:       msg.Question,
			CustomerID:     msg.CustomerID,
			ConversationID: msg.ConversationID,
		}

		if err := h.streamResponse(c, req); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process question")
		}
	}
}

// streamResponse sends the answer word by word, then a complete frame
// carrying the structured response. The pipeline itself is not streaming;
// chunking happens after the full answer is available.
func (h *WebSocketHandler) streamResponse(c *websocket.Conn, req query.Request) error {
	h.send(c, "status", "Processing question...")

	response, err := h.engine.ProcessQuery(context.Background(), req)
	if err != nil {
		return err
	}

	words := strings.Fields(response.Answer)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}
		if err := h.send(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":                "complete",
		"conversation_id":     response.ConversationID,
		"sources":             response.Sources,
		"reasoning_steps":     response.ReasoningSteps,
		"from_cache":          response.FromCache,
		"suggested_questions": response.SuggestedQuestions,
		"sentiment":           response.Sentiment,
		"latency_ms":          response.LatencyMS,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
