package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/query"
	"github.com/support-agent/backend/pkg/logger"
)

type QueryHandler struct {
	engine *query.Engine
}

func NewQueryHandler(engine *query.Engine) *QueryHandler {
	return &QueryHandler{
		engine: engine,
	}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Question       string `json:"question"`
		CustomerID     string `json:"customer_id"`
		ConversationID string `json:"conversation_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}

	response, err := h.engine.ProcessQuery(c.Context(), query.Request{
		Question:       req.Question,
		CustomerID:     req.CustomerID,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		logger.Error("Failed to process question", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process question",
		})
	}

	return c.JSON(fiber.Map{
		"conversation_id":     response.ConversationID,
		"response":            response.Answer,
		"sources":             response.Sources,
		"reasoning_steps":     response.ReasoningSteps,
		"timestamp":           response.Timestamp,
		"from_cache":          response.FromCache,
		"suggested_questions": response.SuggestedQuestions,
		"sentiment":           response.Sentiment,
		"latency_ms":          response.LatencyMS,
	})
}
