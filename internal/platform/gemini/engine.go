// Package gemini implements the engine port against Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/engine"
)

const providerName = "gemini"

// In-call retry tuning. Retries here smooth over momentary API hiccups
// within a single pipeline attempt; attempt-level retries belong to the
// task queue.
const (
	maxCallRetries = 2
	baseRetryDelay = 1 * time.Second
)

// GeminiEngine generates completions through the Gemini API. Safe for
// concurrent use.
type GeminiEngine struct {
	logger *slog.Logger
	client *genai.Client
}

var _ engine.Engine = (*GeminiEngine)(nil)

// NewGeminiEngine creates a Gemini-backed engine. The context is used only
// while constructing the API client.
func NewGeminiEngine(ctx context.Context, logger *slog.Logger, apiKey string) (*GeminiEngine, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", engine.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiEngine{
		logger: logger.With(slog.String("component", "gemini_engine")),
		client: client,
	}, nil
}

// Provider implements engine.Engine.
func (g *GeminiEngine) Provider() string {
	return providerName
}

// Complete implements engine.Engine.
func (g *GeminiEngine) Complete(ctx context.Context, prompt string, cfg domain.EngineConfig) (*engine.Completion, error) {
	if prompt == "" {
		return nil, engine.ErrEmptyPrompt
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model cannot be empty", engine.ErrInvalidConfig)
	}

	started := time.Now()

	resp, err := g.callWithRetry(ctx, prompt, cfg)
	if err != nil {
		return nil, err
	}

	completion, err := parseResponse(resp, cfg)
	if err != nil {
		return nil, err
	}
	completion.LatencyMs = time.Since(started).Milliseconds()

	g.logger.Debug("gemini completion finished",
		slog.String("model", completion.Model),
		slog.Int("total_tokens", completion.Usage.TotalTokens),
		slog.Int64("latency_ms", completion.LatencyMs))

	return completion, nil
}

// callWithRetry calls the Gemini API, retrying transient failures with
// exponential backoff and jitter. Permanent failures return immediately.
func (g *GeminiEngine) callWithRetry(ctx context.Context, prompt string, cfg domain.EngineConfig) (*genai.GenerateContentResponse, error) {
	genCfg := &genai.GenerateContentConfig{}
	if cfg.Temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(cfg.Temperature))
	}
	if cfg.MaxOutputTokens > 0 {
		genCfg.MaxOutputTokens = int32(cfg.MaxOutputTokens)
	}

	var lastErr error
	for attempt := 0; attempt <= maxCallRetries; attempt++ {
		if attempt > 0 {
			delay := retryBackoff(attempt)
			g.logger.Warn("retrying gemini call",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: context ended during retry wait: %v", engine.ErrTransientFailure, ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := g.client.Models.GenerateContent(ctx, cfg.Model, genai.Text(prompt), genCfg)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isTransient(err) {
			return nil, fmt.Errorf("gemini call failed: %w", err)
		}
	}

	return nil, fmt.Errorf("%w: gemini call failed after %d attempts: %v", engine.ErrTransientFailure, maxCallRetries+1, lastErr)
}

// isTransient reports whether an API call error is worth retrying within
// this attempt. Rate limits and server-side errors are; context errors and
// request-shape errors are not.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	// Non-API errors are network-level failures.
	return true
}

// retryBackoff returns the wait before the given retry attempt, doubling
// each time with 50-100% jitter.
func retryBackoff(attempt int) time.Duration {
	backoff := baseRetryDelay * time.Duration(1<<uint(attempt-1))
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(backoff) * jitter)
}

// parseResponse maps an API response to a completion, rejecting blocked or
// empty results.
func parseResponse(resp *genai.GenerateContentResponse, cfg domain.EngineConfig) (*engine.Completion, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", engine.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked: %s", engine.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates returned", engine.ErrInvalidResponse)
	}

	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: completion stopped for safety", engine.ErrContentBlocked)
	}
	if cand.Content == nil {
		return nil, fmt.Errorf("%w: candidate has no content", engine.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := sb.String()
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty completion text", engine.ErrInvalidResponse)
	}

	completion := &engine.Completion{
		Text:         text,
		Model:        cfg.Model,
		CompletionID: resp.ResponseID,
	}
	if resp.ModelVersion != "" {
		completion.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		completion.Usage = domain.TokenUsage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return completion, nil
}
