package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxTokens        = 1024
	defaultTimeout          = 60 * time.Second
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute for both APIs.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// refinePrompt is the system prompt for pattern refinement.
const refinePrompt = `You are helping a golf simulator facility build an SMS auto-response library from real staff conversations.

Given a customer question and the staff answer, produce a reusable pattern:
1. "trigger": the customer question normalized into a canonical, reusable form (lowercase, no names or dates)
2. "response_template": the staff answer with concrete values replaced by template variables like {{customer_name}}, {{location}}, {{hours}}, {{booking_link}} where they appear
3. "type": one of gift_cards, hours, booking, tech_issue, membership, access, faq, general
4. "confidence": how reusable this pattern is for future customers (0.0 to 1.0)

Answers that are one-off (specific to this customer's situation) should get low confidence.
Respond ONLY with the JSON object, no additional text.`

// anthropicRefiner implements Refiner using Anthropic's Claude API.
type anthropicRefiner struct {
	model      string
	apiKey     string `json:"-"` // Never serialize API keys
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// newAnthropicRefiner creates a new Anthropic refiner.
func newAnthropicRefiner(cfg ExtractionConfig) (Refiner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &anthropicRefiner{
		model:      model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Refine improves a candidate using Claude.
func (a *anthropicRefiner) Refine(ctx context.Context, candidate PatternCandidate) (PatternCandidate, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return candidate, fmt.Errorf("rate limiter error: %w", err)
	}

	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.3, // Low temperature for consistent extraction
		System:      refinePrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: buildRefineContent(candidate)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return candidate, ctx.Err()
			}
		}

		refined, err := a.doRequest(ctx, req, candidate)
		if err == nil {
			return refined, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return candidate, err
		}
	}

	return candidate, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs the actual HTTP request to the Claude API.
func (a *anthropicRefiner) doRequest(ctx context.Context, req anthropicRequest, fallback PatternCandidate) (candidate PatternCandidate, err error) {
	start := time.Now()
	defer func() { observeLLMRequest("anthropic", time.Since(start).Seconds(), err) }()

	jsonData, err := json.Marshal(req)
	if err != nil {
		return fallback, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return fallback, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return fallback, &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fallback, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fallback, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return fallback, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp anthropicError
		if err := json.Unmarshal(body, &errResp); err == nil {
			return fallback, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return fallback, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var claudeResp anthropicResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return fallback, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(claudeResp.Content) == 0 {
		return fallback, fmt.Errorf("empty response from API")
	}

	return parsePatternJSON(claudeResp.Content[0].Text, fallback), nil
}

// Available returns true if the refiner is configured.
func (a *anthropicRefiner) Available() bool {
	return a.apiKey != ""
}

// openAIRefiner implements Refiner using OpenAI's chat API.
type openAIRefiner struct {
	model      string
	apiKey     string `json:"-"` // Never serialize API keys
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// newOpenAIRefiner creates a new OpenAI refiner.
func newOpenAIRefiner(cfg ExtractionConfig) (Refiner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &openAIRefiner{
		model:      model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
	}, nil
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Refine improves a candidate using GPT.
func (o *openAIRefiner) Refine(ctx context.Context, candidate PatternCandidate) (PatternCandidate, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return candidate, fmt.Errorf("rate limiter error: %w", err)
	}

	req := openAIRequest{
		Model:       o.model,
		MaxTokens:   defaultMaxTokens,
		Temperature: 0.3, // Low temperature for consistent extraction
		Messages: []openAIMessage{
			{Role: "system", Content: refinePrompt},
			{Role: "user", Content: buildRefineContent(candidate)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return candidate, ctx.Err()
			}
		}

		refined, err := o.doRequest(ctx, req, candidate)
		if err == nil {
			return refined, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return candidate, err
		}
	}

	return candidate, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs the actual HTTP request to the OpenAI API.
func (o *openAIRefiner) doRequest(ctx context.Context, req openAIRequest, fallback PatternCandidate) (candidate PatternCandidate, err error) {
	start := time.Now()
	defer func() { observeLLMRequest("openai", time.Since(start).Seconds(), err) }()

	jsonData, err := json.Marshal(req)
	if err != nil {
		return fallback, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return fallback, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return fallback, &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fallback, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fallback, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return fallback, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp openAIError
		if err := json.Unmarshal(body, &errResp); err == nil {
			return fallback, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return fallback, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return fallback, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(openAIResp.Choices) == 0 {
		return fallback, fmt.Errorf("empty response from API")
	}

	return parsePatternJSON(openAIResp.Choices[0].Message.Content, fallback), nil
}

// Available returns true if the refiner is configured.
func (o *openAIRefiner) Available() bool {
	return o.apiKey != ""
}

// buildRefineContent formats the candidate for the LLM, scrubbing secrets
// from outbound content first.
func buildRefineContent(candidate PatternCandidate) string {
	contextStr := ""
	if len(candidate.Context) > 0 {
		scrubbed := make([]string, len(candidate.Context))
		for i, c := range candidate.Context {
			scrubbed[i] = scrubSecrets(c)
		}
		contextStr = "\n\nConversation context:\n" + strings.Join(scrubbed, "\n")
	}

	return fmt.Sprintf("Customer question: %s\nStaff answer: %s\nHeuristic type: %s (confidence %.2f)%s",
		scrubSecrets(candidate.TriggerText),
		scrubSecrets(candidate.ResponseTemplate),
		candidate.Type, candidate.Confidence, contextStr)
}

// patternResponse represents the expected JSON response from LLMs.
type patternResponse struct {
	Trigger          string  `json:"trigger"`
	ResponseTemplate string  `json:"response_template"`
	Type             string  `json:"type"`
	Confidence       float64 `json:"confidence"`
}

// parsePatternJSON parses the LLM reply into a refined candidate.
// Unparseable or incomplete replies degrade to the heuristic candidate.
func parsePatternJSON(content string, fallback PatternCandidate) PatternCandidate {
	// LLMs sometimes wrap JSON in markdown code blocks.
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var resp patternResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return fallback
	}
	if resp.Trigger == "" || resp.ResponseTemplate == "" {
		return fallback
	}

	refined := fallback
	refined.TriggerText = NormalizeTrigger(resp.Trigger)
	refined.ResponseTemplate = resp.ResponseTemplate
	refined.NeedsLLMRefine = false

	if ValidPatternType(PatternType(resp.Type)) {
		refined.Type = PatternType(resp.Type)
	}
	if resp.Confidence > 0 && resp.Confidence <= 1.0 {
		refined.Confidence = resp.Confidence
	}
	return refined
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

// scrubSecrets removes common secret patterns from content before sending
// to an external API.
func scrubSecrets(content string) string {
	patterns := []struct {
		regex       *regexp.Regexp
		replacement string
	}{
		// Environment variables with sensitive data, checked first.
		{
			regexp.MustCompile(`(OPENAI_API_KEY|ANTHROPIC_API_KEY|GITHUB_TOKEN|AWS_SECRET_ACCESS_KEY)\s*=\s*([^\s]+)`),
			"$1=[REDACTED:ENV_SECRET]",
		},
		{
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`),
			"[REDACTED:ANTHROPIC_KEY]",
		},
		{
			regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
			"[REDACTED:OPENAI_KEY]",
		},
		{
			regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[:=]\s*["']?\s*([^"'\s]{8,})["']?`),
			"$1=[REDACTED:API_KEY]",
		},
		{
			regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.=]{20,}`),
			"[REDACTED:BEARER_TOKEN]",
		},
		{
			regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["']?\s*([^"'\s]{4,})["']?`),
			"$1=[REDACTED:PASSWORD]",
		},
		// Door and gate codes show up in access conversations.
		{
			regexp.MustCompile(`(?i)(door|gate|access|entry) code (is\s*)?[:#]?\s*\d{4,8}`),
			"$1 code [REDACTED:ACCESS_CODE]",
		},
	}

	result := content
	for _, p := range patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// Ensure interfaces are implemented.
var _ Refiner = (*anthropicRefiner)(nil)
var _ Refiner = (*openAIRefiner)(nil)
