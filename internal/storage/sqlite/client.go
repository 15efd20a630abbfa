package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/storage/models"
	"github.com/support-agent/backend/pkg/logger"
)

// ErrNotFound distinguishes a missing row from a storage fault so the HTTP
// layer can answer 404 instead of 500.
var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		customer_id TEXT,
		created_at INTEGER NOT NULL,
		messages TEXT NOT NULL,
		sources_used TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_customer ON conversations(customer_id);

	CREATE TABLE IF NOT EXISTS knowledge_documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		upload_date INTEGER NOT NULL,
		status TEXT NOT NULL,
		chunk_count INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kb_status ON knowledge_documents(status);
	CREATE INDEX IF NOT EXISTS idx_kb_upload ON knowledge_documents(upload_date);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		query TEXT NOT NULL,
		response TEXT NOT NULL,
		rating INTEGER NOT NULL,
		comment TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_conversation ON feedback(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		question TEXT NOT NULL,
		latency_ms INTEGER NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		passages_retrieved INTEGER NOT NULL DEFAULT 0,
		rating INTEGER,
		from_cache INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_analytics_created ON analytics_events(created_at);

	CREATE TABLE IF NOT EXISTS sentiment_observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		question_label TEXT NOT NULL,
		question_score REAL NOT NULL,
		answer_label TEXT NOT NULL,
		answer_score REAL NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sentiment_created ON sentiment_observations(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// UpsertConversation replaces any prior conversation stored under the same
// id. Overwrite, not append, is the documented behavior.
func (c *Client) UpsertConversation(conv *models.Conversation) error {
	messagesJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	sourcesJSON, err := json.Marshal(conv.SourcesUsed)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	query := `INSERT OR REPLACE INTO conversations (id, customer_id, created_at, messages, sources_used) VALUES (?, ?, ?, ?, ?)`

	_, err = c.db.Exec(
		query,
		conv.ID,
		conv.CustomerID,
		conv.CreatedAt.Unix(),
		string(messagesJSON),
		string(sourcesJSON),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	logger.Debug("Conversation stored", zap.String("conversation_id", conv.ID))
	return nil
}

func (c *Client) GetConversation(id string) (*models.Conversation, error) {
	query := `SELECT id, customer_id, created_at, messages, sources_used FROM conversations WHERE id = ?`

	var conv models.Conversation
	var customerID sql.NullString
	var createdAt int64
	var messagesJSON, sourcesJSON string

	err := c.db.QueryRow(query, id).Scan(&conv.ID, &customerID, &createdAt, &messagesJSON, &sourcesJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	conv.CustomerID = customerID.String
	conv.CreatedAt = time.Unix(createdAt, 0)

	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &conv.SourcesUsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
	}

	return &conv, nil
}

// DeleteConversation removes the conversation row only. Feedback rows keep
// their own lifecycle and are not cascaded.
func (c *Client) DeleteConversation(id string) error {
	_, err := c.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (c *Client) InsertKnowledgeDocument(doc *models.KnowledgeDocument) error {
	query := `INSERT INTO knowledge_documents (id, filename, file_size, upload_date, status, chunk_count) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		doc.ID,
		doc.Filename,
		doc.FileSize,
		doc.UploadDate.Unix(),
		doc.Status,
		doc.ChunkCount,
	)

	if err != nil {
		return fmt.Errorf("failed to insert knowledge document: %w", err)
	}

	logger.Info("Knowledge document recorded",
		zap.String("file_id", doc.ID),
		zap.String("filename", doc.Filename),
		zap.String("status", doc.Status),
		zap.Int("chunks", doc.ChunkCount),
	)

	return nil
}

func (c *Client) GetKnowledgeDocument(id string) (*models.KnowledgeDocument, error) {
	query := `SELECT id, filename, file_size, upload_date, status, chunk_count FROM knowledge_documents WHERE id = ?`

	var doc models.KnowledgeDocument
	var uploadDate int64

	err := c.db.QueryRow(query, id).Scan(&doc.ID, &doc.Filename, &doc.FileSize, &uploadDate, &doc.Status, &doc.ChunkCount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge document: %w", err)
	}

	doc.UploadDate = time.Unix(uploadDate, 0)
	return &doc, nil
}

func (c *Client) ListKnowledgeDocuments() ([]models.KnowledgeDocument, error) {
	query := `SELECT id, filename, file_size, upload_date, status, chunk_count FROM knowledge_documents ORDER BY upload_date DESC`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge documents: %w", err)
	}
	defer rows.Close()

	var docs []models.KnowledgeDocument
	for rows.Next() {
		var doc models.KnowledgeDocument
		var uploadDate int64

		err := rows.Scan(&doc.ID, &doc.Filename, &doc.FileSize, &uploadDate, &doc.Status, &doc.ChunkCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.UploadDate = time.Unix(uploadDate, 0)
		docs = append(docs, doc)
	}

	return docs, nil
}

func (c *Client) DeleteKnowledgeDocument(id string) error {
	_, err := c.db.Exec(`DELETE FROM knowledge_documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete knowledge document: %w", err)
	}
	return nil
}

type KnowledgeBaseStatus struct {
	TotalDocuments  int                        `json:"total_documents"`
	TotalChunks     int                        `json:"total_chunks"`
	RecentDocuments []models.KnowledgeDocument `json:"recent_documents"`
}

func (c *Client) GetKnowledgeBaseStatus() (*KnowledgeBaseStatus, error) {
	var status KnowledgeBaseStatus
	var totalChunks sql.NullInt64

	err := c.db.QueryRow(`SELECT COUNT(*), SUM(chunk_count) FROM knowledge_documents WHERE status = 'processed'`).
		Scan(&status.TotalDocuments, &totalChunks)
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge base status: %w", err)
	}
	status.TotalChunks = int(totalChunks.Int64)

	rows, err := c.db.Query(`SELECT id, filename, file_size, upload_date, status, chunk_count FROM knowledge_documents ORDER BY upload_date DESC LIMIT 10`)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc models.KnowledgeDocument
		var uploadDate int64

		err := rows.Scan(&doc.ID, &doc.Filename, &doc.FileSize, &uploadDate, &doc.Status, &doc.ChunkCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.UploadDate = time.Unix(uploadDate, 0)
		status.RecentDocuments = append(status.RecentDocuments, doc)
	}

	return &status, nil
}

func (c *Client) InsertFeedback(fb *models.FeedbackRecord) error {
	query := `INSERT INTO feedback (id, conversation_id, query, response, rating, comment, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		fb.ID,
		fb.ConversationID,
		fb.Query,
		fb.Response,
		fb.Rating,
		fb.Comment,
		fb.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	logger.Info("Feedback stored",
		zap.String("feedback_id", fb.ID),
		zap.String("conversation_id", fb.ConversationID),
		zap.Int("rating", fb.Rating),
	)

	return nil
}

type FeedbackDistribution struct {
	Total         int
	AverageRating float64
	ByRating      map[int]int
}

func (c *Client) GetFeedbackDistribution() (*FeedbackDistribution, error) {
	dist := &FeedbackDistribution{ByRating: make(map[int]int)}

	rows, err := c.db.Query(`SELECT rating, COUNT(*) FROM feedback GROUP BY rating`)
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback distribution: %w", err)
	}
	defer rows.Close()

	sum := 0
	for rows.Next() {
		var rating, count int
		if err := rows.Scan(&rating, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		dist.ByRating[rating] = count
		dist.Total += count
		sum += rating * count
	}

	if dist.Total > 0 {
		dist.AverageRating = float64(sum) / float64(dist.Total)
	}

	return dist, nil
}

func (c *Client) InsertAnalyticsEvent(event *models.AnalyticsEvent) error {
	query := `INSERT INTO analytics_events (question, latency_ms, token_count, passages_retrieved, rating, from_cache, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`

	fromCache := 0
	if event.FromCache {
		fromCache = 1
	}

	var rating interface{}
	if event.Rating != nil {
		rating = *event.Rating
	}

	_, err := c.db.Exec(
		query,
		event.Question,
		event.LatencyMS,
		event.TokenCount,
		event.PassagesRetrieved,
		rating,
		fromCache,
		event.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert analytics event: %w", err)
	}

	return nil
}

type AnalyticsSummary struct {
	TotalQueries      int
	AvgLatencyMS      float64
	AvgTokenCount     float64
	AvgPassages       float64
	CacheHits         int
	CacheHitRatio     float64
}

func (c *Client) GetAnalyticsSummary() (*AnalyticsSummary, error) {
	var summary AnalyticsSummary
	var avgLatency, avgTokens, avgPassages sql.NullFloat64
	var cacheHits sql.NullInt64

	err := c.db.QueryRow(`
		SELECT COUNT(*), AVG(latency_ms), AVG(token_count), AVG(passages_retrieved), SUM(from_cache)
		FROM analytics_events
	`).Scan(&summary.TotalQueries, &avgLatency, &avgTokens, &avgPassages, &cacheHits)
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics summary: %w", err)
	}

	summary.AvgLatencyMS = avgLatency.Float64
	summary.AvgTokenCount = avgTokens.Float64
	summary.AvgPassages = avgPassages.Float64
	summary.CacheHits = int(cacheHits.Int64)
	if summary.TotalQueries > 0 {
		summary.CacheHitRatio = float64(summary.CacheHits) / float64(summary.TotalQueries)
	}

	return &summary, nil
}

func (c *Client) InsertSentimentObservation(obs *models.SentimentObservation) error {
	query := `INSERT INTO sentiment_observations (conversation_id, question_label, question_score, answer_label, answer_score, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		obs.ConversationID,
		obs.QuestionLabel,
		obs.QuestionScore,
		obs.AnswerLabel,
		obs.AnswerScore,
		obs.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert sentiment observation: %w", err)
	}

	return nil
}

type SentimentTrendPoint struct {
	Day              string
	Observations     int
	AvgQuestionScore float64
	AvgAnswerScore   float64
	NegativeCount    int
}

func (c *Client) GetSentimentTrend(days int) ([]SentimentTrendPoint, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().AddDate(0, 0, -days).Unix()

	rows, err := c.db.Query(`
		SELECT date(created_at, 'unixepoch') AS day,
			COUNT(*),
			AVG(question_score),
			AVG(answer_score),
			SUM(CASE WHEN question_label = 'negative' THEN 1 ELSE 0 END)
		FROM sentiment_observations
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get sentiment trend: %w", err)
	}
	defer rows.Close()

	var points []SentimentTrendPoint
	for rows.Next() {
		var p SentimentTrendPoint
		if err := rows.Scan(&p.Day, &p.Observations, &p.AvgQuestionScore, &p.AvgAnswerScore, &p.NegativeCount); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		points = append(points, p)
	}

	return points, nil
}
