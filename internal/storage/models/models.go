package models

import "time"

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Source describes a cited passage in a response.
type Source struct {
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance"`
	Preview   string  `json:"preview"`
}

// Conversation holds the stored turns for one conversation id. A new
// request with the same id overwrites the stored message list rather than
// appending to it.
type Conversation struct {
	ID          string    `json:"conversation_id"`
	CustomerID  string    `json:"customer_id"`
	CreatedAt   time.Time `json:"created_at"`
	Messages    []Message `json:"messages"`
	SourcesUsed []Source  `json:"sources_used"`
}

// KnowledgeDocument is one catalog row per uploaded file. Status is one of
// processed, failed, no_content, unsupported or error:<detail>.
type KnowledgeDocument struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FileSize   int64     `json:"file_size"`
	UploadDate time.Time `json:"upload_date"`
	Status     string    `json:"status"`
	ChunkCount int       `json:"chunk_count"`
}

// FeedbackRecord outlives its conversation; deleting a conversation does
// not cascade here.
type FeedbackRecord struct {
	ID             string
	ConversationID string
	Query          string
	Response       string
	Rating         int
	Comment        string
	CreatedAt      time.Time
}

// AnalyticsEvent is an append-only log row, one per answered question.
// TokenCount is zero when the model call did not report usage.
type AnalyticsEvent struct {
	ID                int64
	Question          string
	LatencyMS         int
	TokenCount        int
	PassagesRetrieved int
	Rating            *int
	FromCache         bool
	CreatedAt         time.Time
}

// SentimentObservation records the sentiment of both the incoming question
// and the generated answer for one request.
type SentimentObservation struct {
	ID             int64
	ConversationID string
	QuestionLabel  string
	QuestionScore  float64
	AnswerLabel    string
	AnswerScore    float64
	CreatedAt      time.Time
}

// CacheEntry is a durable cached answer keyed by the normalized question
// hash. Expired entries are excluded by the lookup's time filter rather
// than actively purged.
type CacheEntry struct {
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	Sources      []Source  `json:"sources"`
	CreatedAt    time.Time `json:"created_at"`
	HitCount     int       `json:"hit_count"`
	LastAccessed time.Time `json:"last_accessed"`
}
