// Package openai implements the engine port against the OpenAI
// chat-completions API and compatible endpoints.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/engine"
)

const providerName = "openai"

const defaultBaseURL = "https://api.openai.com/v1"

// In-call HTTP retry tuning, applied by retryablehttp to 429s, 5xxs, and
// network errors within a single pipeline attempt.
const (
	maxHTTPRetries = 2
	retryWaitMin   = 1 * time.Second
	retryWaitMax   = 4 * time.Second
)

// maxResponseBytes caps how much of a response body is read. Completions
// are bounded by MaxOutputTokens, so anything past this is garbage.
const maxResponseBytes = 4 << 20

// OpenAIEngine generates completions through an OpenAI-compatible
// chat-completions endpoint. Safe for concurrent use.
type OpenAIEngine struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

var _ engine.Engine = (*OpenAIEngine)(nil)

// NewOpenAIEngine creates an engine for the given API key and base URL. An
// empty baseURL selects the public OpenAI endpoint.
func NewOpenAIEngine(logger *slog.Logger, apiKey, baseURL string) (*OpenAIEngine, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", engine.ErrInvalidConfig)
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = maxHTTPRetries
	retryClient.RetryWaitMin = retryWaitMin
	retryClient.RetryWaitMax = retryWaitMax
	retryClient.Logger = nil

	return &OpenAIEngine{
		logger:     logger.With(slog.String("component", "openai_engine")),
		httpClient: retryClient.StandardClient(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}, nil
}

// Provider implements engine.Engine.
func (o *OpenAIEngine) Provider() string {
	return providerName
}

// Complete implements engine.Engine.
func (o *OpenAIEngine) Complete(ctx context.Context, prompt string, cfg domain.EngineConfig) (*engine.Completion, error) {
	if prompt == "" {
		return nil, engine.ErrEmptyPrompt
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model cannot be empty", engine.ErrInvalidConfig)
	}

	started := time.Now()

	body, err := json.Marshal(chatRequest{
		Model:       cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build openai request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: openai request failed: %v", engine.ErrTransientFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read openai response: %v", engine.ErrTransientFailure, err)
	}

	completion, err := parseResponse(resp.StatusCode, raw, cfg)
	if err != nil {
		return nil, err
	}
	completion.LatencyMs = time.Since(started).Milliseconds()

	o.logger.Debug("openai completion finished",
		slog.String("model", completion.Model),
		slog.Int("total_tokens", completion.Usage.TotalTokens),
		slog.Int64("latency_ms", completion.LatencyMs))

	return completion, nil
}

// Wire types for the chat-completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// parseResponse maps a chat-completions HTTP response to a completion.
// Non-2xx statuses reaching here already survived in-call retries.
func parseResponse(status int, raw []byte, cfg domain.EngineConfig) (*engine.Completion, error) {
	if status != http.StatusOK {
		msg := apiErrorMessage(raw)
		switch {
		case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
			return nil, fmt.Errorf("%w: openai returned status %d: %s", engine.ErrTransientFailure, status, msg)
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return nil, fmt.Errorf("%w: openai rejected credentials (status %d): %s", engine.ErrInvalidConfig, status, msg)
		default:
			return nil, fmt.Errorf("openai call failed with status %d: %s", status, msg)
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed openai response: %v", engine.ErrInvalidResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", engine.ErrInvalidResponse)
	}

	choice := parsed.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, fmt.Errorf("%w: completion stopped by content filter", engine.ErrContentBlocked)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return nil, fmt.Errorf("%w: empty completion text", engine.ErrInvalidResponse)
	}

	completion := &engine.Completion{
		Text:         choice.Message.Content,
		Model:        cfg.Model,
		CompletionID: parsed.ID,
		Usage: domain.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}
	if parsed.Model != "" {
		completion.Model = parsed.Model
	}

	return completion, nil
}

// apiErrorMessage extracts the provider's error message from an error body,
// falling back to a trimmed slice of the raw body.
func apiErrorMessage(raw []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	const maxLen = 200
	s := strings.TrimSpace(string(raw))
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
