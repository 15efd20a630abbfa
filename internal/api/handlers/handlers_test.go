package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/internal/storage/sqlite"
)

func newTestDB(t *testing.T) *sqlite.Client {
	t.Helper()

	client, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.InitSchema())
	return client
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]interface{}
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded))
	}
	return resp, decoded
}

func TestSubmitFeedbackValidatesRating(t *testing.T) {
	db := newTestDB(t)
	handler := NewFeedbackHandler(db)

	app := fiber.New()
	app.Post("/feedback", handler.SubmitFeedback)

	for _, rating := range []int{0, 6, -1} {
		resp, body := doJSON(t, app, "POST", "/feedback",
			`{"conversation_id":"c1","rating":`+strconv.Itoa(rating)+`}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body["error"], "Rating")
	}

	resp, body := doJSON(t, app, "POST", "/feedback",
		`{"conversation_id":"c1","rating":4,"comment":"helpful"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["feedback_id"])
	assert.Equal(t, "recorded", body["status"])

	dist, err := db.GetFeedbackDistribution()
	require.NoError(t, err)
	assert.Equal(t, 1, dist.ByRating[4])
}

func TestGetConversationNotFound(t *testing.T) {
	db := newTestDB(t)
	handler := NewConversationHandler(db)

	app := fiber.New()
	app.Get("/conversations/:id", handler.GetConversation)

	resp, body := doJSON(t, app, "GET", "/conversations/missing", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Conversation not found", body["error"])
}

func TestGetAndDeleteConversation(t *testing.T) {
	db := newTestDB(t)
	handler := NewConversationHandler(db)

	app := fiber.New()
	app.Get("/conversations/:id", handler.GetConversation)
	app.Delete("/conversations/:id", handler.DeleteConversation)

	conv := &models.Conversation{
		ID:        "conv-1",
		CreatedAt: time.Now(),
		Messages: []models.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	}
	require.NoError(t, db.UpsertConversation(conv))

	resp, _ := doJSON(t, app, "GET", "/conversations/conv-1", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, "DELETE", "/conversations/conv-1", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, "GET", "/conversations/conv-1", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	// Deleting again still succeeds.
	resp, _ = doJSON(t, app, "DELETE", "/conversations/conv-1", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

type failingVectorDeleter struct {
	err     error
	sources []string
}

func (f *failingVectorDeleter) DeleteBySource(_ context.Context, source string) error {
	f.sources = append(f.sources, source)
	return f.err
}

func TestDeleteDocumentVectorFailureIsBestEffort(t *testing.T) {
	db := newTestDB(t)
	vectors := &failingVectorDeleter{err: errors.New("collection unavailable")}
	handler := NewDocumentHandler(nil, db, vectors)

	app := fiber.New()
	app.Delete("/kb/documents/:id", handler.DeleteDocument)

	doc := &models.KnowledgeDocument{
		ID:         "doc-1",
		Filename:   "guide.pdf",
		FileSize:   2048,
		UploadDate: time.Now(),
		Status:     "processed",
		ChunkCount: 4,
	}
	require.NoError(t, db.InsertKnowledgeDocument(doc))

	resp, body := doJSON(t, app, "DELETE", "/kb/documents/doc-1", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// The catalog row is gone even though the vector delete failed.
	assert.Equal(t, "deleted", body["status"])
	assert.Equal(t, false, body["vector_store_deleted"])
	assert.Equal(t, []string{"guide.pdf"}, vectors.sources)

	_, err := db.GetKnowledgeDocument("doc-1")
	assert.ErrorIs(t, err, sqlite.ErrNotFound)
}

func TestDeleteDocumentNotFound(t *testing.T) {
	db := newTestDB(t)
	handler := NewDocumentHandler(nil, db, &failingVectorDeleter{})

	app := fiber.New()
	app.Delete("/kb/documents/:id", handler.DeleteDocument)

	resp, body := doJSON(t, app, "DELETE", "/kb/documents/missing", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Document not found", body["error"])
}
