package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-agent/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func TestConversationRoundTrip(t *testing.T) {
	client := newTestClient(t)

	conv := &models.Conversation{
		ID:         "conv-1",
		CustomerID: "cust-1",
		CreatedAt:  time.Now(),
		Messages: []models.Message{
			{Role: "user", Content: "How do I reset my password?"},
			{Role: "assistant", Content: "Use the reset link."},
		},
		SourcesUsed: []models.Source{{Source: "manual.pdf", Relevance: 0.9, Preview: "..."}},
	}
	require.NoError(t, client.UpsertConversation(conv))

	got, err := client.GetConversation("conv-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.CustomerID)
	assert.Equal(t, conv.Messages, got.Messages)
	assert.Equal(t, conv.SourcesUsed, got.SourcesUsed)
}

func TestConversationUpsertOverwrites(t *testing.T) {
	client := newTestClient(t)

	first := &models.Conversation{
		ID:        "conv-1",
		CreatedAt: time.Now(),
		Messages:  []models.Message{{Role: "user", Content: "first"}},
	}
	require.NoError(t, client.UpsertConversation(first))

	second := &models.Conversation{
		ID:        "conv-1",
		CreatedAt: time.Now(),
		Messages:  []models.Message{{Role: "user", Content: "second"}},
	}
	require.NoError(t, client.UpsertConversation(second))

	got, err := client.GetConversation("conv-1")
	require.NoError(t, err)

	// Same id replaces the history wholesale, it does not append.
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "second", got.Messages[0].Content)
}

func TestGetConversationNotFound(t *testing.T) {
	client := newTestClient(t)

	_, err := client.GetConversation("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversationIdempotent(t *testing.T) {
	client := newTestClient(t)

	conv := &models.Conversation{ID: "conv-1", CreatedAt: time.Now(), Messages: []models.Message{}}
	require.NoError(t, client.UpsertConversation(conv))

	require.NoError(t, client.DeleteConversation("conv-1"))
	require.NoError(t, client.DeleteConversation("conv-1"))

	_, err := client.GetConversation("conv-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKnowledgeBaseStatusCountsProcessedOnly(t *testing.T) {
	client := newTestClient(t)

	docs := []*models.KnowledgeDocument{
		{ID: "d1", Filename: "a.pdf", UploadDate: time.Now(), Status: "processed", ChunkCount: 5},
		{ID: "d2", Filename: "b.pdf", UploadDate: time.Now(), Status: "processed", ChunkCount: 3},
		{ID: "d3", Filename: "c.png", UploadDate: time.Now(), Status: "unsupported"},
		{ID: "d4", Filename: "d.pdf", UploadDate: time.Now(), Status: "failed"},
	}
	for _, doc := range docs {
		require.NoError(t, client.InsertKnowledgeDocument(doc))
	}

	status, err := client.GetKnowledgeBaseStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalDocuments)
	assert.Equal(t, 8, status.TotalChunks)

	// Recent listing spans all statuses.
	assert.Len(t, status.RecentDocuments, 4)
}

func TestKnowledgeDocumentDelete(t *testing.T) {
	client := newTestClient(t)

	doc := &models.KnowledgeDocument{ID: "d1", Filename: "a.pdf", UploadDate: time.Now(), Status: "processed"}
	require.NoError(t, client.InsertKnowledgeDocument(doc))

	require.NoError(t, client.DeleteKnowledgeDocument("d1"))

	_, err := client.GetKnowledgeDocument("d1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFeedbackDistribution(t *testing.T) {
	client := newTestClient(t)

	ratings := []int{5, 5, 4, 1}
	for i, rating := range ratings {
		fb := &models.FeedbackRecord{
			ID:             string(rune('a' + i)),
			ConversationID: "conv-1",
			Rating:         rating,
			CreatedAt:      time.Now(),
		}
		require.NoError(t, client.InsertFeedback(fb))
	}

	dist, err := client.GetFeedbackDistribution()
	require.NoError(t, err)
	assert.Equal(t, 4, dist.Total)
	assert.InDelta(t, 3.75, dist.AverageRating, 0.001)
	assert.Equal(t, 2, dist.ByRating[5])
	assert.Equal(t, 1, dist.ByRating[4])
	assert.Equal(t, 1, dist.ByRating[1])
}

func TestAnalyticsSummary(t *testing.T) {
	client := newTestClient(t)

	events := []*models.AnalyticsEvent{
		{Question: "q1", LatencyMS: 100, TokenCount: 50, PassagesRetrieved: 3, FromCache: false, CreatedAt: time.Now()},
		{Question: "q2", LatencyMS: 300, TokenCount: 150, PassagesRetrieved: 1, FromCache: false, CreatedAt: time.Now()},
		{Question: "q1", LatencyMS: 2, FromCache: true, CreatedAt: time.Now()},
	}
	for _, event := range events {
		require.NoError(t, client.InsertAnalyticsEvent(event))
	}

	summary, err := client.GetAnalyticsSummary()
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalQueries)
	assert.Equal(t, 1, summary.CacheHits)
	assert.InDelta(t, 1.0/3.0, summary.CacheHitRatio, 0.001)
	assert.InDelta(t, 134.0, summary.AvgLatencyMS, 0.5)
}

func TestAnalyticsSummaryEmpty(t *testing.T) {
	client := newTestClient(t)

	summary, err := client.GetAnalyticsSummary()
	require.NoError(t, err)
	assert.Zero(t, summary.TotalQueries)
	assert.Zero(t, summary.CacheHitRatio)
}

func TestSentimentTrend(t *testing.T) {
	client := newTestClient(t)

	observations := []*models.SentimentObservation{
		{ConversationID: "c1", QuestionLabel: "negative", QuestionScore: -0.8, AnswerLabel: "neutral", CreatedAt: time.Now()},
		{ConversationID: "c2", QuestionLabel: "positive", QuestionScore: 0.6, AnswerLabel: "positive", AnswerScore: 0.7, CreatedAt: time.Now()},
	}
	for _, obs := range observations {
		require.NoError(t, client.InsertSentimentObservation(obs))
	}

	trend, err := client.GetSentimentTrend(7)
	require.NoError(t, err)
	require.Len(t, trend, 1)
	assert.Equal(t, 2, trend[0].Observations)
	assert.Equal(t, 1, trend[0].NegativeCount)
	assert.InDelta(t, -0.1, trend[0].AvgQuestionScore, 0.001)
}
