package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/agent"
	"github.com/support-agent/backend/pkg/logger"
)

type TranslateHandler struct {
	reasoner *agent.Reasoner
}

func NewTranslateHandler(reasoner *agent.Reasoner) *TranslateHandler {
	return &TranslateHandler{reasoner: reasoner}
}

func (h *TranslateHandler) Translate(c *fiber.Ctx) error {
	var req struct {
		Text           string `json:"text"`
		TargetLanguage string `json:"target_language"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Text == "" || req.TargetLanguage == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Text and target language are required",
		})
	}

	translation, err := h.reasoner.Translate(c.Context(), req.Text, req.TargetLanguage)
	if err != nil {
		logger.Error("Failed to translate text", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to translate text",
		})
	}

	return c.JSON(fiber.Map{
		"original_text":   translation.OriginalText,
		"translated_text": translation.TranslatedText,
		"source_language": translation.SourceLanguage,
		"target_language": translation.TargetLanguage,
	})
}
