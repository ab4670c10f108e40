package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/myrhythm/rhythmd/internal/action"
)

// Default configuration values.
const (
	defaultBaseURL     = "https://api.openai.com"
	defaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 2048
	defaultTimeout     = 45 * time.Second
	defaultMaxRetries  = 2
	defaultBaseBackoff = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// toolName is the function the model is required to call.
const toolName = "capture_commitments"

// LLMConfig holds provider configuration for the LLM extractor.
type LLMConfig struct {
	APIKey    string `json:"api_key,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	Model     string `json:"model,omitempty"`
	MaxTokens int    `json:"max_tokens,omitempty"`
	Timeout   int    `json:"timeout,omitempty"` // seconds
}

// LLMExtractor extracts actions by asking a hosted chat-completion API to
// emit a structured tool call. It is deliberately lossy on failure: any
// network error, non-2xx status, or malformed payload collapses to a
// (nil, nil) result so the caller falls back to the rule-based extractor.
// No error propagates past this adapter.
type LLMExtractor struct {
	model      string
	apiKey     string `json:"-"` // Never serialize API keys
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	logger     *zap.Logger
	clock      func() time.Time
}

// NewLLMExtractor creates an LLM-backed extractor. An empty API key is
// allowed; Available reports false and Extract degrades immediately.
func NewLLMExtractor(cfg LLMConfig, logger *zap.Logger) *LLMExtractor {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMExtractor{
		model:      model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
		logger:     logger,
		clock:      time.Now,
	}
}

// Available returns true if the extractor is configured with an API key.
func (l *LLMExtractor) Available() bool {
	return l.apiKey != ""
}

// systemPrompt instructs the model to summarize and extract commitments.
const systemPrompt = `You analyze conversation transcripts from people working on recovery and personal goals.

First summarize the conversation: key topics, main decisions, participants mentioned, overall tone, and one empowering takeaway.

Then extract every concrete commitment or promise as an action. Each action must:
1. Start with an imperative verb in UPPERCASE (e.g. "CALL Dr. Smith").
2. Be categorized as one of: action, watch_out, depends_on, note.
3. Name who it is assigned to ("me", "team", or a person's name).
4. Infer due dates relative to the current date given below.
5. Include a suggested time of day when one is evident.

Report everything through the %s tool. Do not reply with prose.

Current date: %s`

// chatRequest is the request body for the chat-completion endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Tools       []chatTool    `json:"tools"`
	ToolChoice  any           `json:"tool_choice"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// chatResponse is the subset of the response we consume.
type chatResponse struct {
	Choices []struct {
		Message struct {
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// toolSchema is the fixed parameter schema for the capture tool.
func toolSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"conversation_summary": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"key_topics":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"main_decisions":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"participants_mentioned": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"overall_tone":           map[string]any{"type": "string"},
					"empowering_takeaway":    map[string]any{"type": "string"},
				},
				"required": []string{"key_topics", "overall_tone"},
			},
			"actions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"action_text":          map[string]any{"type": "string"},
						"category":             map[string]any{"type": "string", "enum": []string{"action", "watch_out", "depends_on", "note"}},
						"assigned_to":          map[string]any{"type": "string"},
						"due_context":          map[string]any{"type": "string"},
						"completion_date":      map[string]any{"type": "string", "description": "YYYY-MM-DD"},
						"priority_level":       map[string]any{"type": "integer", "minimum": 1, "maximum": 5},
						"confidence_score":     map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						"suggested_time":       map[string]any{"type": "string", "description": "HH:MM"},
						"success_criteria":     map[string]any{"type": "string"},
						"motivation_statement": map[string]any{"type": "string"},
						"micro_tasks":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					},
					"required": []string{"action_text", "category", "assigned_to", "priority_level", "confidence_score"},
				},
			},
		},
		"required": []string{"conversation_summary", "actions"},
	}
}

// Extract asks the LLM for a structured extraction. It returns (nil, nil)
// on every failure mode so the strategy chain can fall through.
func (l *LLMExtractor) Extract(ctx context.Context, transcript string) (*Result, error) {
	if !l.Available() {
		return nil, nil
	}

	if err := l.limiter.Wait(ctx); err != nil {
		l.logger.Warn("llm rate limiter wait failed", zap.Error(err))
		return nil, nil
	}

	req := chatRequest{
		Model:       l.model,
		MaxTokens:   l.maxTokens,
		Temperature: 0.3, // Low temperature for consistent extraction
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, toolName, l.clock().Format("2006-01-02"))},
			{Role: "user", Content: scrubSecrets(transcript)},
		},
		Tools: []chatTool{{
			Type: "function",
			Function: toolFunction{
				Name:        toolName,
				Description: "Record the conversation summary and every extracted commitment.",
				Parameters:  toolSchema(),
			},
		}},
		ToolChoice: map[string]any{
			"type":     "function",
			"function": map[string]any{"name": toolName},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				l.logger.Warn("llm extraction cancelled", zap.Error(ctx.Err()))
				return nil, nil
			}
		}

		result, err := l.doRequest(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}

	l.logger.Warn("llm extraction failed, falling back", zap.Error(lastErr))
	return nil, nil
}

// doRequest performs one HTTP round trip and parses the tool call.
func (l *LLMExtractor) doRequest(ctx context.Context, req chatRequest) (*Result, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", l.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+l.apiKey)

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return nil, &retryableError{err: fmt.Errorf("server error (%d)", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp chatError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d)", resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 || len(chatResp.Choices[0].Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("no tool call in response")
	}

	call := chatResp.Choices[0].Message.ToolCalls[0]
	if call.Function.Name != toolName {
		return nil, fmt.Errorf("unexpected tool call %q", call.Function.Name)
	}

	return l.parsePayload(call.Function.Arguments)
}

// toolPayload is the expected shape of the tool-call arguments. Upstream
// JSON is untrusted: every action is validated field by field before it
// enters the typed model, and malformed actions are dropped, not fatal.
type toolPayload struct {
	ConversationSummary struct {
		KeyTopics             []string `json:"key_topics"`
		MainDecisions         []string `json:"main_decisions"`
		ParticipantsMentioned []string `json:"participants_mentioned"`
		OverallTone           string   `json:"overall_tone"`
		EmpoweringTakeaway    string   `json:"empowering_takeaway"`
	} `json:"conversation_summary"`
	Actions []toolAction `json:"actions"`
}

type toolAction struct {
	ActionText      string   `json:"action_text"`
	Category        string   `json:"category"`
	AssignedTo      string   `json:"assigned_to"`
	DueContext      string   `json:"due_context"`
	CompletionDate  string   `json:"completion_date"`
	PriorityLevel   int      `json:"priority_level"`
	ConfidenceScore float64  `json:"confidence_score"`
	SuggestedTime   string   `json:"suggested_time"`
	SuccessCriteria string   `json:"success_criteria"`
	Motivation      string   `json:"motivation_statement"`
	MicroTasks      []string `json:"micro_tasks"`
}

// parsePayload converts the tool-call arguments into a Result. An
// unparseable payload or one with zero well-formed actions is an error,
// which Extract converts into a fallback.
func (l *LLMExtractor) parsePayload(arguments string) (*Result, error) {
	var payload toolPayload
	if err := json.Unmarshal([]byte(arguments), &payload); err != nil {
		return nil, fmt.Errorf("unparseable tool payload: %w", err)
	}

	actions := make([]action.Candidate, 0, len(payload.Actions))
	for i, raw := range payload.Actions {
		c, err := convertToolAction(raw)
		if err != nil {
			l.logger.Warn("dropping malformed llm action",
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		actions = append(actions, c)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("tool payload contained no well-formed actions")
	}

	summary := action.ConversationSummary{
		KeyTopics:             emptyIfNil(payload.ConversationSummary.KeyTopics),
		MainDecisions:         emptyIfNil(payload.ConversationSummary.MainDecisions),
		ParticipantsMentioned: emptyIfNil(payload.ConversationSummary.ParticipantsMentioned),
		OverallTone:           payload.ConversationSummary.OverallTone,
		EmpoweringTakeaway:    payload.ConversationSummary.EmpoweringTakeaway,
	}

	return &Result{Actions: actions, Summary: summary, Method: MethodLLM}, nil
}

// convertToolAction validates the required subset of one raw action and
// coerces it into the typed model.
func convertToolAction(raw toolAction) (action.Candidate, error) {
	text := strings.TrimSpace(raw.ActionText)
	if text == "" {
		return action.Candidate{}, fmt.Errorf("empty action_text")
	}
	if len(text) > 200 {
		return action.Candidate{}, fmt.Errorf("action_text exceeds 200 characters")
	}
	if !action.ValidCategory(action.Category(raw.Category)) {
		return action.Candidate{}, fmt.Errorf("unknown category %q", raw.Category)
	}
	if strings.TrimSpace(raw.AssignedTo) == "" {
		return action.Candidate{}, fmt.Errorf("empty assigned_to")
	}
	if raw.PriorityLevel < 1 || raw.PriorityLevel > 5 {
		return action.Candidate{}, fmt.Errorf("priority_level %d outside 1-5", raw.PriorityLevel)
	}
	if raw.ConfidenceScore < 0 || raw.ConfidenceScore > 1 {
		return action.Candidate{}, fmt.Errorf("confidence_score %.2f outside [0,1]", raw.ConfidenceScore)
	}

	c := action.Candidate{
		Text:            text,
		Category:        action.Category(raw.Category),
		AssignedTo:      strings.TrimSpace(raw.AssignedTo),
		DueContext:      raw.DueContext,
		Priority:        raw.PriorityLevel,
		Confidence:      raw.ConfidenceScore,
		SuccessCriteria: raw.SuccessCriteria,
		Motivation:      raw.Motivation,
	}
	if c.DueContext == "" {
		c.DueContext = "unspecified"
	}
	if d, err := time.Parse("2006-01-02", raw.CompletionDate); err == nil {
		c.CompletionDate = &d
		c.EndDate = &d
	}
	for _, mt := range raw.MicroTasks {
		if mt = strings.TrimSpace(mt); mt != "" {
			c.MicroTasks = append(c.MicroTasks, action.MicroTask{Text: mt})
		}
	}
	return c, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError checks if an error should be retried.
func isRetryableError(err error) bool {
	for e := err; e != nil; {
		if _, ok := e.(*retryableError); ok {
			return true
		}
		if unwrapper, ok := e.(interface{ Unwrap() error }); ok {
			e = unwrapper.Unwrap()
		} else {
			break
		}
	}
	return false
}

var _ Extractor = (*LLMExtractor)(nil)
