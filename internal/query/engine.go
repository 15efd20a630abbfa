package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/agent"
	"github.com/support-agent/backend/internal/llm"
	"github.com/support-agent/backend/internal/metrics"
	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/internal/vector/milvus"
	"github.com/support-agent/backend/pkg/logger"
)

const (
	defaultTopK   = 3
	previewLength = 200
	maxRewrites   = 1 // one rewrite-and-retry per request, never more
)

// Oracles is the decision surface the engine delegates to. Production uses
// *agent.Reasoner; tests script a deterministic fake.
type Oracles interface {
	RouteQuery(ctx context.Context, question string) (agent.Route, error)
	GradeContext(ctx context.Context, question, contextBlock string) (bool, error)
	RewriteQuery(ctx context.Context, original string) (string, error)
	GenerateAnswer(ctx context.Context, question, contextBlock string) (string, llm.Usage, error)
	AnalyzeSentiment(ctx context.Context, text string) agent.Sentiment
	DetectLanguage(ctx context.Context, text string) string
	SuggestFollowUps(ctx context.Context, question, answer string) []string
}

// Retriever is the opaque nearest-neighbor service.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]milvus.SearchResult, error)
}

// AnswerCache is the two-tier answer cache.
type AnswerCache interface {
	Get(ctx context.Context, question string) (*models.CacheEntry, bool)
	Set(ctx context.Context, question, answer string, sources []models.Source) error
}

// Store covers the engine's persistence writes.
type Store interface {
	UpsertConversation(conv *models.Conversation) error
	InsertSentimentObservation(obs *models.SentimentObservation) error
	InsertAnalyticsEvent(event *models.AnalyticsEvent) error
}

type Request struct {
	Question       string
	CustomerID     string
	ConversationID string
}

type Response struct {
	ConversationID     string
	Answer             string
	Sources            []models.Source
	ReasoningSteps     []string
	Timestamp          time.Time
	FromCache          bool
	SuggestedQuestions []string
	Sentiment          string
	LatencyMS          int
}

// Engine sequences one question through the answer pipeline: cache lookup,
// routing, retrieval, relevance grading with at most one rewrite-and-retry,
// generation, advisory enrichment and persistence.
type Engine struct {
	cache     AnswerCache
	retriever Retriever
	oracles   Oracles
	store     Store
	topK      int
}

func NewEngine(cache AnswerCache, retriever Retriever, oracles Oracles, store Store, topK int) *Engine {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Engine{
		cache:     cache,
		retriever: retriever,
		oracles:   oracles,
		store:     store,
		topK:      topK,
	}
}

func (e *Engine) ProcessQuery(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	logger.Info("Processing question",
		zap.String("conversation_id", conversationID),
		zap.String("question", req.Question),
	)

	trace := make([]string, 0, 8)

	// Step 1: cache lookup short-circuits everything except follow-up
	// generation (never cached) and the analytics insert.
	if entry, ok := e.cache.Get(ctx, req.Question); ok {
		metrics.CacheHits.Inc()
		trace = append(trace, "Cache hit: returning stored answer")

		followUps := e.oracles.SuggestFollowUps(ctx, req.Question, entry.Answer)

		latency := int(time.Since(start).Milliseconds())
		if err := e.store.InsertAnalyticsEvent(&models.AnalyticsEvent{
			Question:          req.Question,
			LatencyMS:         latency,
			PassagesRetrieved: len(entry.Sources),
			FromCache:         true,
			CreatedAt:         time.Now(),
		}); err != nil {
			return nil, fmt.Errorf("failed to record analytics event: %w", err)
		}

		metrics.QueryTotal.WithLabelValues("cache_hit").Inc()
		metrics.QueryDuration.Observe(time.Since(start).Seconds())

		return &Response{
			ConversationID:     conversationID,
			Answer:             entry.Answer,
			Sources:            entry.Sources,
			ReasoningSteps:     trace,
			Timestamp:          time.Now(),
			FromCache:          true,
			SuggestedQuestions: followUps,
			LatencyMS:          latency,
		}, nil
	}
	metrics.CacheMisses.Inc()

	// Step 2: advisory classification. Failures default and never abort.
	questionSentiment := e.oracles.AnalyzeSentiment(ctx, req.Question)
	trace = append(trace, fmt.Sprintf("Question sentiment: %s (%.2f)", questionSentiment.Label, questionSentiment.Score))

	language := e.oracles.DetectLanguage(ctx, req.Question)
	trace = append(trace, fmt.Sprintf("Detected language: %s", language))

	// Step 3: routing. The reply is taken literally even when it names no
	// known route; unknown routes fall through to the no-retrieval path.
	route, err := e.oracles.RouteQuery(ctx, req.Question)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	trace = append(trace, fmt.Sprintf("Routed to: %s", route))
	metrics.RouteTotal.WithLabelValues(string(route)).Inc()

	// Steps 4-5: retrieval and relevance. The single guarded branch below
	// enforces maxRewrites; grading runs once and is not repeated on the
	// retried context.
	contextBlock := ""
	var sources []models.Source

	if route.UsesRetrieval() {
		results := e.retrieve(ctx, req.Question, &trace)

		if len(results) > 0 {
			contextBlock, sources = buildContext(results)

			relevant, err := e.oracles.GradeContext(ctx, req.Question, contextBlock)
			if err != nil {
				metrics.QueryTotal.WithLabelValues("error").Inc()
				return nil, err
			}

			if relevant {
				trace = append(trace, "Context relevance: relevant")
			} else {
				trace = append(trace, "Context relevance: not relevant")
			}

			if !relevant {
				metrics.RelevanceRetries.Inc()

				rewritten, err := e.oracles.RewriteQuery(ctx, req.Question)
				if err != nil {
					metrics.QueryTotal.WithLabelValues("error").Inc()
					return nil, err
				}
				trace = append(trace, fmt.Sprintf("Query rewritten: %s", rewritten))

				// The second retrieval's results replace the first's even
				// when empty; there is no third attempt.
				second := e.retrieve(ctx, rewritten, &trace)
				contextBlock, sources = buildRetryContext(second)
			}
		} else {
			trace = append(trace, "No documents found in knowledge base")
		}
	} else {
		trace = append(trace, "Skipping knowledge base retrieval")
	}

	// Step 6: answer generation is the one fatal oracle on every path.
	answer, usage, err := e.oracles.GenerateAnswer(ctx, req.Question, contextBlock)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	trace = append(trace, "Response generated")
	latency := int(time.Since(start).Milliseconds())

	if usage.TotalTokens > 0 {
		metrics.LLMTokensUsed.Add(float64(usage.TotalTokens))
	}

	// Steps 7-8: advisory enrichment of the generated answer.
	answerSentiment := e.oracles.AnalyzeSentiment(ctx, answer)
	followUps := e.oracles.SuggestFollowUps(ctx, req.Question, answer)

	// Step 9: persistence. Single-statement writes, no transaction; a
	// failure here aborts the request and partial writes are possible.
	now := time.Now()

	if err := e.store.UpsertConversation(&models.Conversation{
		ID:         conversationID,
		CustomerID: req.CustomerID,
		CreatedAt:  now,
		Messages: []models.Message{
			{Role: "user", Content: req.Question},
			{Role: "assistant", Content: answer},
		},
		SourcesUsed: sources,
	}); err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to store conversation: %w", err)
	}

	if err := e.store.InsertSentimentObservation(&models.SentimentObservation{
		ConversationID: conversationID,
		QuestionLabel:  questionSentiment.Label,
		QuestionScore:  questionSentiment.Score,
		AnswerLabel:    answerSentiment.Label,
		AnswerScore:    answerSentiment.Score,
		CreatedAt:      now,
	}); err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to store sentiment observation: %w", err)
	}

	if err := e.cache.Set(ctx, req.Question, answer, sources); err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to write answer cache: %w", err)
	}

	if err := e.store.InsertAnalyticsEvent(&models.AnalyticsEvent{
		Question:          req.Question,
		LatencyMS:         latency,
		TokenCount:        usage.TotalTokens,
		PassagesRetrieved: len(sources),
		FromCache:         false,
		CreatedAt:         now,
	}); err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to record analytics event: %w", err)
	}

	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryDuration.Observe(time.Since(start).Seconds())

	logger.Info("Question answered",
		zap.String("conversation_id", conversationID),
		zap.String("route", string(route)),
		zap.Int("sources", len(sources)),
		zap.Int("latency_ms", latency),
	)

	return &Response{
		ConversationID:     conversationID,
		Answer:             answer,
		Sources:            sources,
		ReasoningSteps:     trace,
		Timestamp:          now,
		FromCache:          false,
		SuggestedQuestions: followUps,
		Sentiment:          questionSentiment.Label,
		LatencyMS:          latency,
	}, nil
}

// retrieve degrades a retrieval failure to an empty result set: the
// pipeline continues without context rather than failing the request.
func (e *Engine) retrieve(ctx context.Context, query string, trace *[]string) []milvus.SearchResult {
	results, err := e.retriever.Retrieve(ctx, query, e.topK)
	if err != nil {
		logger.Warn("Retrieval failed, continuing without context", zap.Error(err))
		*trace = append(*trace, "Retrieval unavailable, continuing without context")
		return nil
	}
	return results
}

func buildContext(results []milvus.SearchResult) (string, []models.Source) {
	var blocks []string
	sources := make([]models.Source, 0, len(results))

	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("%s (Score: %.2f)\n%s", r.Source, r.Score, r.Text))
		sources = append(sources, models.Source{
			Source:    r.Source,
			Relevance: float64(r.Score),
			Preview:   preview(r.Text),
		})
	}

	return strings.Join(blocks, "\n\n"), sources
}

// buildRetryContext shapes results of the second retrieval; their scores
// answer a different query than the user's, so relevance is reported as
// zero.
func buildRetryContext(results []milvus.SearchResult) (string, []models.Source) {
	var blocks []string
	sources := make([]models.Source, 0, len(results))

	for _, r := range results {
		blocks = append(blocks, fmt.Sprintf("%s\n%s", r.Source, r.Text))
		sources = append(sources, models.Source{
			Source:    r.Source,
			Relevance: 0.0,
			Preview:   preview(r.Text),
		})
	}

	return strings.Join(blocks, "\n\n"), sources
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength])
}
