package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	rediscache "github.com/support-agent/backend/internal/cache/redis"
	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/pkg/logger"
	"github.com/support-agent/backend/pkg/utils"
)

// DurableStore is the source-of-truth tier; the Redis client satisfies it
// and tests substitute an in-memory fake.
type DurableStore interface {
	Get(ctx context.Context, key string) (*models.CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry *models.CacheEntry) error
	RecordHit(ctx context.Context, key string, at time.Time) error
	Scan(ctx context.Context, ttl time.Duration) (*rediscache.Stats, error)
}

// Store is the two-tier answer cache. The in-process map is a write-through
// read-aside accelerator over the durable tier: it never disagrees with the
// durable tier while both are unexpired and is invalidated strictly by
// expiry, never by eviction signals. It is unbounded by design; a process
// serving enough distinct questions without restart grows it without bound.
type Store struct {
	durable DurableStore
	ttl     time.Duration

	mu  sync.Mutex
	mem map[string]*models.CacheEntry
}

func NewStore(durable DurableStore, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		durable: durable,
		ttl:     ttl,
		mem:     make(map[string]*models.CacheEntry),
	}
}

// Key derives the cache key from the question text alone: identical
// questions from different customers share one cached answer.
func Key(question string) string {
	return utils.HashString(utils.NormalizeQuestion(question))
}

// Get returns the cached entry for a question, or false on a miss. Each
// successful retrieval records exactly one durable hit. A durable-tier
// failure degrades to a miss; the caller recomputes the answer.
func (s *Store) Get(ctx context.Context, question string) (*models.CacheEntry, bool) {
	key := Key(question)
	now := time.Now()

	s.mu.Lock()
	entry, ok := s.mem[key]
	if ok && now.Sub(entry.CreatedAt) >= s.ttl {
		// Read-through eviction: the only way memory entries leave.
		delete(s.mem, key)
		ok = false
	}
	s.mu.Unlock()

	if ok {
		if err := s.durable.RecordHit(ctx, key, now); err != nil {
			logger.Warn("Failed to record cache hit", zap.Error(err))
		}
		return entry, true
	}

	entry, found, err := s.durable.Get(ctx, key)
	if err != nil {
		logger.Warn("Durable cache lookup failed, treating as miss", zap.Error(err))
		return nil, false
	}
	if !found || now.Sub(entry.CreatedAt) >= s.ttl {
		// Stale durable entries stay in place until overwritten.
		return nil, false
	}

	if err := s.durable.RecordHit(ctx, key, now); err != nil {
		logger.Warn("Failed to record cache hit", zap.Error(err))
	}

	s.mu.Lock()
	s.mem[key] = entry
	s.mu.Unlock()

	return entry, true
}

// Set writes through: durable tier first, then the in-process tier.
func (s *Store) Set(ctx context.Context, question, answer string, sources []models.Source) error {
	key := Key(question)
	now := time.Now()

	entry := &models.CacheEntry{
		Question:     question,
		Answer:       answer,
		Sources:      sources,
		CreatedAt:    now,
		HitCount:     0,
		LastAccessed: now,
	}

	if err := s.durable.Set(ctx, key, entry); err != nil {
		return err
	}

	s.mu.Lock()
	s.mem[key] = entry
	s.mu.Unlock()

	return nil
}

// Stats reports durable-tier counters for the analytics cache view.
func (s *Store) Stats(ctx context.Context) (*rediscache.Stats, error) {
	return s.durable.Scan(ctx, s.ttl)
}
