package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/support-agent/backend/internal/llm"
	"github.com/support-agent/backend/pkg/logger"
)

// Route names the strategy selected for a question. The router's reply is
// taken literally even when it names no known route; callers compare
// against the constants and treat everything else like RouteWebSearch.
type Route string

const (
	RouteKnowledgeBase Route = "knowledge_base"
	RouteWebSearch     Route = "web_search"
	RouteDirectAnswer  Route = "direct_answer"
)

// UsesRetrieval reports whether the knowledge base should be consulted for
// this route.
func (r Route) UsesRetrieval() bool {
	return r == RouteKnowledgeBase || r == RouteDirectAnswer
}

type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func NeutralSentiment() Sentiment {
	return Sentiment{Label: "neutral", Score: 0.0}
}

type Translation struct {
	OriginalText   string
	TranslatedText string
	SourceLanguage string
	TargetLanguage string
}

// CompletionClient is the single dependency of the reasoner; tests
// substitute a deterministic fake.
type CompletionClient interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Reasoner turns free-text model replies into strictly typed decisions.
// Each method issues exactly one completion with a fixed template.
type Reasoner struct {
	llm CompletionClient
}

func NewReasoner(client CompletionClient) *Reasoner {
	return &Reasoner{llm: client}
}

// RouteQuery decides which strategy handles the question. The single-token
// reply is lower-cased, trimmed and returned as-is; an unrecognized reply
// becomes an unrecognized route rather than an error.
func (r *Reasoner) RouteQuery(ctx context.Context, question string) (Route, error) {
	userPrompt := fmt.Sprintf(`Determine which tool to use for this support question:
"%s"

Tools available:
- knowledge_base: For product info, FAQs, policies, procedures
- web_search: For current information, external resources
- direct_answer: For general questions

Respond with ONLY one tool name.`, question)

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  userPrompt,
		Temperature: 0.1,
		MaxTokens:   20,
	})
	if err != nil {
		return "", fmt.Errorf("failed to route question: %w", err)
	}

	route := Route(strings.ToLower(strings.TrimSpace(resp.Content)))
	logger.Debug("Question routed", zap.String("route", string(route)))
	return route, nil
}

// GradeContext judges whether retrieved context is adequate for the
// question. Any reply containing "yes" counts as relevant.
func (r *Reasoner) GradeContext(ctx context.Context, question, context_ string) (bool, error) {
	userPrompt := fmt.Sprintf(`Question: %s

Retrieved context:
%s

Is this context relevant and helpful for answering the question?
Respond with ONLY: yes or no`, question, context_)

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  userPrompt,
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		return false, fmt.Errorf("failed to grade context: %w", err)
	}

	relevant := strings.Contains(strings.ToLower(resp.Content), "yes")
	return relevant, nil
}

// RewriteQuery produces one alternative phrasing for a second retrieval
// attempt after irrelevant context.
func (r *Reasoner) RewriteQuery(ctx context.Context, original string) (string, error) {
	userPrompt := fmt.Sprintf(`The initial search for "%s" didn't return relevant results.

Rewrite this query to be more specific or use different keywords.
Respond with ONLY the rewritten query (no explanation).`, original)

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  userPrompt,
		Temperature: 0.3,
		MaxTokens:   100,
	})
	if err != nil {
		return "", fmt.Errorf("failed to rewrite query: %w", err)
	}

	return strings.TrimSpace(resp.Content), nil
}

// GenerateAnswer produces the final answer from the question and possibly
// empty context. Token usage is reported as-is and may be zero.
func (r *Reasoner) GenerateAnswer(ctx context.Context, question, context_ string) (string, llm.Usage, error) {
	contextSection := ""
	if context_ != "" {
		contextSection = fmt.Sprintf("Knowledge Base:\n%s", context_)
	}

	systemPrompt := `You are a helpful support agent. Answer clearly and concisely.

Guidelines:
- Use the provided context if available
- Be clear and helpful
- If you don't have sufficient information, acknowledge it
- Provide actionable steps when relevant`

	userPrompt := fmt.Sprintf("Question: %s\n\n%s", question, contextSection)

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("failed to generate answer: %w", err)
	}

	return resp.Content, resp.Usage, nil
}

// AnalyzeSentiment classifies text as positive, negative or neutral with a
// score in [-1, 1]. Advisory: any failure yields the neutral default, never
// an error.
func (r *Reasoner) AnalyzeSentiment(ctx context.Context, text string) Sentiment {
	userPrompt := fmt.Sprintf(`Classify the sentiment of this text:
"%s"

Respond with ONLY: <label>|<score>
where label is one of positive, negative, neutral
and score is a number between -1.0 and 1.0`, text)

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  userPrompt,
		Temperature: 0.1,
		MaxTokens:   20,
	})
	if err != nil {
		logger.Warn("Sentiment analysis failed, defaulting to neutral", zap.Error(err))
		return NeutralSentiment()
	}

	return parseSentiment(resp.Content)
}

func parseSentiment(content string) Sentiment {
	parts := strings.SplitN(strings.TrimSpace(content), "|", 2)
	if len(parts) != 2 {
		return NeutralSentiment()
	}

	label := strings.ToLower(strings.TrimSpace(parts[0]))
	if label != "positive" && label != "negative" && label != "neutral" {
		return NeutralSentiment()
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || score < -1.0 || score > 1.0 {
		return NeutralSentiment()
	}

	return Sentiment{Label: label, Score: score}
}

// DetectLanguage returns a two-letter language code, defaulting to "en" on
// any failure or malformed reply.
func (r *Reasoner) DetectLanguage(ctx context.Context, text string) string {
	userPrompt := fmt.Sprintf(`What language is this text written in?
"%s"

Respond with ONLY the two-letter ISO 639-1 code (e.g. en, es, de).`, text)

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  userPrompt,
		Temperature: 0.1,
		MaxTokens:   5,
	})
	if err != nil {
		logger.Warn("Language detection failed, defaulting to en", zap.Error(err))
		return "en"
	}

	code := strings.ToLower(strings.TrimSpace(resp.Content))
	if len(code) != 2 || !isAlpha(code) {
		return "en"
	}
	return code
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// SuggestFollowUps proposes up to three follow-up questions for the
// answered question. A malformed reply yields an empty list, never an
// error.
func (r *Reasoner) SuggestFollowUps(ctx context.Context, question, answer string) []string {
	userPrompt := fmt.Sprintf(`A customer asked: "%s"
The agent answered: "%s"

Suggest up to 3 short follow-up questions the customer might ask next.
Respond with ONLY a JSON array of strings.`, question, answer)

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  userPrompt,
		Temperature: 0.5,
		MaxTokens:   200,
	})
	if err != nil {
		logger.Warn("Follow-up suggestion failed", zap.Error(err))
		return nil
	}

	return parseFollowUps(resp.Content)
}

func parseFollowUps(content string) []string {
	content = strings.TrimSpace(content)

	// Models sometimes wrap JSON in a code fence.
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil
	}

	var questions []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &questions); err != nil {
		return nil
	}

	var cleaned []string
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		cleaned = append(cleaned, q)
		if len(cleaned) == 3 {
			break
		}
	}

	return cleaned
}

// Translate renders text into the target language, auto-detecting the
// source language first.
func (r *Reasoner) Translate(ctx context.Context, text, targetLanguage string) (*Translation, error) {
	sourceLanguage := r.DetectLanguage(ctx, text)

	userPrompt := fmt.Sprintf(`Translate the following text into %s.
Respond with ONLY the translation, no explanation.

%s`, targetLanguage, text)

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		UserPrompt:  userPrompt,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to translate: %w", err)
	}

	return &Translation{
		OriginalText:   text,
		TranslatedText: strings.TrimSpace(resp.Content),
		SourceLanguage: sourceLanguage,
		TargetLanguage: targetLanguage,
	}, nil
}
