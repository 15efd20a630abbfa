package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-agent/backend/internal/agent"
	"github.com/support-agent/backend/internal/llm"
	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/internal/vector/milvus"
)

type fakeOracles struct {
	route        agent.Route
	routeErr     error
	grade        bool
	gradeErr     error
	gradeCalls   int
	rewritten    string
	rewriteErr   error
	rewriteCalls int
	answer       string
	answerErr    error
	answerCtx    string
	sentiment    agent.Sentiment
	followUps    []string
}

func (f *fakeOracles) RouteQuery(ctx context.Context, question string) (agent.Route, error) {
	return f.route, f.routeErr
}

func (f *fakeOracles) GradeContext(ctx context.Context, question, contextBlock string) (bool, error) {
	f.gradeCalls++
	return f.grade, f.gradeErr
}

func (f *fakeOracles) RewriteQuery(ctx context.Context, original string) (string, error) {
	f.rewriteCalls++
	return f.rewritten, f.rewriteErr
}

func (f *fakeOracles) GenerateAnswer(ctx context.Context, question, contextBlock string) (string, llm.Usage, error) {
	f.answerCtx = contextBlock
	return f.answer, llm.Usage{TotalTokens: 42}, f.answerErr
}

func (f *fakeOracles) AnalyzeSentiment(ctx context.Context, text string) agent.Sentiment {
	return f.sentiment
}

func (f *fakeOracles) DetectLanguage(ctx context.Context, text string) string {
	return "en"
}

func (f *fakeOracles) SuggestFollowUps(ctx context.Context, question, answer string) []string {
	return f.followUps
}

type retrievalStep struct {
	results []milvus.SearchResult
	err     error
}

type fakeRetriever struct {
	steps   []retrievalStep
	queries []string
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, topK int) ([]milvus.SearchResult, error) {
	f.queries = append(f.queries, query)
	if len(f.steps) == 0 {
		return nil, nil
	}
	step := f.steps[0]
	f.steps = f.steps[1:]
	return step.results, step.err
}

type fakeCache struct {
	entry    *models.CacheEntry
	setCalls int
	setQ     string
	setA     string
}

func (f *fakeCache) Get(ctx context.Context, question string) (*models.CacheEntry, bool) {
	if f.entry == nil {
		return nil, false
	}
	return f.entry, true
}

func (f *fakeCache) Set(ctx context.Context, question, answer string, sources []models.Source) error {
	f.setCalls++
	f.setQ = question
	f.setA = answer
	return nil
}

type fakeStore struct {
	conversations []*models.Conversation
	sentiments    []*models.SentimentObservation
	events        []*models.AnalyticsEvent
}

func (f *fakeStore) UpsertConversation(conv *models.Conversation) error {
	f.conversations = append(f.conversations, conv)
	return nil
}

func (f *fakeStore) InsertSentimentObservation(obs *models.SentimentObservation) error {
	f.sentiments = append(f.sentiments, obs)
	return nil
}

func (f *fakeStore) InsertAnalyticsEvent(event *models.AnalyticsEvent) error {
	f.events = append(f.events, event)
	return nil
}

func relevantResults() []milvus.SearchResult {
	return []milvus.SearchResult{
		{ChunkID: "doc_chunk_0", Text: "Passwords reset via the account page.", Source: "manual.pdf", Score: 0.93},
		{ChunkID: "doc_chunk_1", Text: "Reset links expire after one hour.", Source: "manual.pdf", Score: 0.88},
	}
}

func newTestEngine(cache *fakeCache, retriever *fakeRetriever, oracles *fakeOracles, store *fakeStore) *Engine {
	return NewEngine(cache, retriever, oracles, store, 3)
}

func TestCacheHitShortCircuitsPipeline(t *testing.T) {
	cached := &models.CacheEntry{
		Question:  "how do i reset my password?",
		Answer:    "Use the reset link.",
		Sources:   []models.Source{{Source: "manual.pdf", Relevance: 0.9}},
		CreatedAt: time.Now(),
	}
	cache := &fakeCache{entry: cached}
	retriever := &fakeRetriever{}
	oracles := &fakeOracles{followUps: []string{"How long is the link valid?"}}
	store := &fakeStore{}
	engine := newTestEngine(cache, retriever, oracles, store)

	resp, err := engine.ProcessQuery(context.Background(), Request{Question: "How do I reset my password?"})
	require.NoError(t, err)

	assert.True(t, resp.FromCache)
	assert.Equal(t, "Use the reset link.", resp.Answer)
	assert.Equal(t, cached.Sources, resp.Sources)
	assert.Empty(t, resp.Sentiment)

	// Follow-ups are generated fresh even on a hit.
	assert.Equal(t, []string{"How long is the link valid?"}, resp.SuggestedQuestions)

	// The only side effect is the analytics event.
	assert.Empty(t, retriever.queries)
	assert.Empty(t, store.conversations)
	assert.Empty(t, store.sentiments)
	require.Len(t, store.events, 1)
	assert.True(t, store.events[0].FromCache)
	assert.Equal(t, 0, cache.setCalls)
}

func TestRelevantContextAnswersWithoutRewrite(t *testing.T) {
	cache := &fakeCache{}
	retriever := &fakeRetriever{steps: []retrievalStep{{results: relevantResults()}}}
	oracles := &fakeOracles{
		route:     agent.RouteKnowledgeBase,
		grade:     true,
		answer:    "Reset it from the account page.",
		sentiment: agent.Sentiment{Label: "neutral", Score: 0.0},
	}
	store := &fakeStore{}
	engine := newTestEngine(cache, retriever, oracles, store)

	resp, err := engine.ProcessQuery(context.Background(), Request{
		Question:   "How do I reset my password?",
		CustomerID: "cust-1",
	})
	require.NoError(t, err)

	assert.False(t, resp.FromCache)
	assert.Equal(t, "Reset it from the account page.", resp.Answer)
	assert.Len(t, retriever.queries, 1)
	assert.Equal(t, 0, oracles.rewriteCalls)

	require.Len(t, resp.Sources, 2)
	assert.InDelta(t, 0.93, resp.Sources[0].Relevance, 0.001)

	require.Len(t, store.conversations, 1)
	conv := store.conversations[0]
	assert.Equal(t, "cust-1", conv.CustomerID)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "user", conv.Messages[0].Role)
	assert.Equal(t, "assistant", conv.Messages[1].Role)

	assert.Equal(t, 1, cache.setCalls)
	require.Len(t, store.events, 1)
	assert.False(t, store.events[0].FromCache)
	assert.Equal(t, 42, store.events[0].TokenCount)
}

func TestNotRelevantTriggersExactlyOneRewrite(t *testing.T) {
	cache := &fakeCache{}
	retriever := &fakeRetriever{steps: []retrievalStep{
		{results: relevantResults()},
		{results: []milvus.SearchResult{
			{ChunkID: "other_chunk_0", Text: "Billing cycles run monthly.", Source: "billing.txt", Score: 0.40},
		}},
	}}
	oracles := &fakeOracles{
		route:     agent.RouteKnowledgeBase,
		grade:     false,
		rewritten: "password reset procedure",
		answer:    "answer",
		sentiment: agent.NeutralSentiment(),
	}
	store := &fakeStore{}
	engine := newTestEngine(cache, retriever, oracles, store)

	resp, err := engine.ProcessQuery(context.Background(), Request{Question: "pw?"})
	require.NoError(t, err)

	require.Len(t, retriever.queries, 2)
	assert.Equal(t, "pw?", retriever.queries[0])
	assert.Equal(t, "password reset procedure", retriever.queries[1])
	assert.Equal(t, 1, oracles.rewriteCalls)

	// The second batch is never graded; one retry is the ceiling.
	assert.Equal(t, 1, oracles.gradeCalls)

	// Retry sources report zero relevance.
	require.Len(t, resp.Sources, 1)
	assert.Zero(t, resp.Sources[0].Relevance)
}

func TestEmptyRetryReplacesFirstResults(t *testing.T) {
	cache := &fakeCache{}
	retriever := &fakeRetriever{steps: []retrievalStep{
		{results: relevantResults()},
		{results: nil},
	}}
	oracles := &fakeOracles{
		route:     agent.RouteKnowledgeBase,
		grade:     false,
		rewritten: "rewritten",
		answer:    "answer without context",
		sentiment: agent.NeutralSentiment(),
	}
	store := &fakeStore{}
	engine := newTestEngine(cache, retriever, oracles, store)

	resp, err := engine.ProcessQuery(context.Background(), Request{Question: "q"})
	require.NoError(t, err)

	assert.Empty(t, resp.Sources)
	assert.Empty(t, oracles.answerCtx)
}

func TestRetrievalFailureContinuesWithoutContext(t *testing.T) {
	cache := &fakeCache{}
	retriever := &fakeRetriever{steps: []retrievalStep{
		{err: errors.New("vector store unavailable")},
	}}
	oracles := &fakeOracles{
		route:     agent.RouteKnowledgeBase,
		answer:    "best-effort answer",
		sentiment: agent.NeutralSentiment(),
	}
	store := &fakeStore{}
	engine := newTestEngine(cache, retriever, oracles, store)

	resp, err := engine.ProcessQuery(context.Background(), Request{Question: "q"})
	require.NoError(t, err)

	assert.Equal(t, "best-effort answer", resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, oracles.answerCtx)
	assert.Equal(t, 0, oracles.gradeCalls)
	assert.Contains(t, resp.ReasoningSteps, "Retrieval unavailable, continuing without context")
}

func TestWebSearchRouteSkipsRetrieval(t *testing.T) {
	cache := &fakeCache{}
	retriever := &fakeRetriever{}
	oracles := &fakeOracles{
		route:     agent.RouteWebSearch,
		answer:    "general knowledge answer",
		sentiment: agent.NeutralSentiment(),
	}
	store := &fakeStore{}
	engine := newTestEngine(cache, retriever, oracles, store)

	resp, err := engine.ProcessQuery(context.Background(), Request{Question: "q"})
	require.NoError(t, err)

	assert.Empty(t, retriever.queries)
	assert.Empty(t, resp.Sources)
	assert.Contains(t, resp.ReasoningSteps, "Skipping knowledge base retrieval")
}

func TestRoutingFailureIsFatal(t *testing.T) {
	cache := &fakeCache{}
	oracles := &fakeOracles{routeErr: errors.New("routing oracle down")}
	store := &fakeStore{}
	engine := newTestEngine(cache, &fakeRetriever{}, oracles, store)

	_, err := engine.ProcessQuery(context.Background(), Request{Question: "q"})
	require.Error(t, err)
	assert.Empty(t, store.conversations)
	assert.Equal(t, 0, cache.setCalls)
}

func TestGenerationFailureIsFatal(t *testing.T) {
	cache := &fakeCache{}
	oracles := &fakeOracles{
		route:     agent.RouteDirectAnswer,
		grade:     true,
		answerErr: errors.New("generation failed"),
		sentiment: agent.NeutralSentiment(),
	}
	store := &fakeStore{}
	engine := newTestEngine(cache, &fakeRetriever{}, oracles, store)

	_, err := engine.ProcessQuery(context.Background(), Request{Question: "q"})
	require.Error(t, err)
	assert.Empty(t, store.conversations)
	assert.Empty(t, store.events)
	assert.Equal(t, 0, cache.setCalls)
}

func TestConversationIDPreservedOrGenerated(t *testing.T) {
	oracles := &fakeOracles{
		route:     agent.RouteDirectAnswer,
		answer:    "a",
		sentiment: agent.NeutralSentiment(),
	}
	engine := newTestEngine(&fakeCache{}, &fakeRetriever{}, oracles, &fakeStore{})

	resp, err := engine.ProcessQuery(context.Background(), Request{Question: "q", ConversationID: "conv-7"})
	require.NoError(t, err)
	assert.Equal(t, "conv-7", resp.ConversationID)

	resp, err = engine.ProcessQuery(context.Background(), Request{Question: "q"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ConversationID)
}

func TestSentimentObservationPersisted(t *testing.T) {
	oracles := &fakeOracles{
		route:     agent.RouteDirectAnswer,
		answer:    "a",
		sentiment: agent.Sentiment{Label: "negative", Score: -0.7},
	}
	store := &fakeStore{}
	engine := newTestEngine(&fakeCache{}, &fakeRetriever{}, oracles, store)

	resp, err := engine.ProcessQuery(context.Background(), Request{Question: "this is terrible"})
	require.NoError(t, err)

	assert.Equal(t, "negative", resp.Sentiment)
	require.Len(t, store.sentiments, 1)
	assert.Equal(t, "negative", store.sentiments[0].QuestionLabel)
	assert.InDelta(t, -0.7, store.sentiments[0].QuestionScore, 0.001)
}
