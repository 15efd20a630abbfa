package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/storage/sqlite"
	"github.com/support-agent/backend/pkg/logger"
)

type ConversationHandler struct {
	db *sqlite.Client
}

func NewConversationHandler(db *sqlite.Client) *ConversationHandler {
	return &ConversationHandler{db: db}
}

func (h *ConversationHandler) GetConversation(c *fiber.Ctx) error {
	id := c.Params("id")

	conv, err := h.db.GetConversation(id)
	if errors.Is(err, sqlite.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Conversation not found",
		})
	}
	if err != nil {
		logger.Error("Failed to load conversation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load conversation",
		})
	}

	return c.JSON(conv)
}

func (h *ConversationHandler) DeleteConversation(c *fiber.Ctx) error {
	id := c.Params("id")

	if err := h.db.DeleteConversation(id); err != nil {
		logger.Error("Failed to delete conversation", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete conversation",
		})
	}

	return c.JSON(fiber.Map{
		"status":          "deleted",
		"conversation_id": id,
	})
}
