package analytics

import (
	"context"
	"fmt"
	"time"

	rediscache "github.com/support-agent/backend/internal/cache/redis"
	"github.com/support-agent/backend/internal/storage/sqlite"
)

// CacheInspector reports aggregate answer-cache state.
type CacheInspector interface {
	Stats(ctx context.Context) (*rediscache.Stats, error)
}

// CacheStats is the cache analytics view: durable-tier counters plus the
// freshness window they were evaluated against.
type CacheStats struct {
	Entries     int     `json:"entries"`
	LiveEntries int     `json:"live_entries"`
	TotalHits   int     `json:"total_hits"`
	TTLHours    float64 `json:"ttl_hours"`
}

// Service aggregates operational reporting over the analytics tables and
// the answer cache.
type Service struct {
	db    *sqlite.Client
	cache CacheInspector
	ttl   time.Duration
}

func NewService(db *sqlite.Client, cache CacheInspector, ttl time.Duration) *Service {
	return &Service{db: db, cache: cache, ttl: ttl}
}

func (s *Service) Summary(ctx context.Context) (*sqlite.AnalyticsSummary, error) {
	summary, err := s.db.GetAnalyticsSummary()
	if err != nil {
		return nil, fmt.Errorf("failed to compute analytics summary: %w", err)
	}
	return summary, nil
}

func (s *Service) SentimentTrend(ctx context.Context, days int) ([]sqlite.SentimentTrendPoint, error) {
	if days <= 0 {
		days = 7
	}
	trend, err := s.db.GetSentimentTrend(days)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sentiment trend: %w", err)
	}
	return trend, nil
}

func (s *Service) FeedbackDistribution(ctx context.Context) (*sqlite.FeedbackDistribution, error) {
	dist, err := s.db.GetFeedbackDistribution()
	if err != nil {
		return nil, fmt.Errorf("failed to compute feedback distribution: %w", err)
	}
	return dist, nil
}

func (s *Service) CacheStats(ctx context.Context) (*CacheStats, error) {
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache stats: %w", err)
	}

	return &CacheStats{
		Entries:     stats.Entries,
		LiveEntries: stats.LiveEntries,
		TotalHits:   stats.TotalHits,
		TTLHours:    s.ttl.Hours(),
	}, nil
}
