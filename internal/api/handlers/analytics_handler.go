package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/analytics"
	"github.com/support-agent/backend/pkg/logger"
)

type AnalyticsHandler struct {
	service *analytics.Service
}

func NewAnalyticsHandler(service *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

func (h *AnalyticsHandler) GetSummary(c *fiber.Ctx) error {
	summary, err := h.service.Summary(c.Context())
	if err != nil {
		logger.Error("Failed to compute analytics summary", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute analytics summary",
		})
	}

	return c.JSON(summary)
}

func (h *AnalyticsHandler) GetSentimentTrend(c *fiber.Ctx) error {
	days := c.QueryInt("days", 7)

	trend, err := h.service.SentimentTrend(c.Context(), days)
	if err != nil {
		logger.Error("Failed to compute sentiment trend", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute sentiment trend",
		})
	}

	return c.JSON(fiber.Map{
		"days":  days,
		"trend": trend,
	})
}

func (h *AnalyticsHandler) GetFeedbackDistribution(c *fiber.Ctx) error {
	dist, err := h.service.FeedbackDistribution(c.Context())
	if err != nil {
		logger.Error("Failed to compute feedback distribution", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute feedback distribution",
		})
	}

	return c.JSON(dist)
}

func (h *AnalyticsHandler) GetCacheStats(c *fiber.Ctx) error {
	stats, err := h.service.CacheStats(c.Context())
	if err != nil {
		logger.Error("Failed to read cache stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read cache stats",
		})
	}

	return c.JSON(stats)
}
