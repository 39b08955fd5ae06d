package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/engine"
	"github.com/auspexhq/insight-api/internal/platform/logger"
)

// Orchestrator fans one generation request out to the primary and
// secondary engines and merges the results. Safe for concurrent use.
type Orchestrator struct {
	logger     *slog.Logger
	registry   *engine.Registry
	similarity Similarity
}

// NewOrchestrator creates an orchestrator over the given engine registry.
// A nil similarity selects DefaultSimilarity.
func NewOrchestrator(log *slog.Logger, registry *engine.Registry, sim Similarity) (*Orchestrator, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if registry == nil {
		return nil, errors.New("engine registry cannot be nil")
	}
	if sim == nil {
		sim = DefaultSimilarity()
	}

	return &Orchestrator{
		logger:     log.With(slog.String("component", "orchestrator")),
		registry:   registry,
		similarity: sim,
	}, nil
}

// Generate runs one generation attempt. configs must hold exactly the
// primary and secondary engine configs, in that order, as snapshotted in
// the job payload. The context should carry the job-scoped logger; each
// engine call is additionally time-boxed by its own config.
func (o *Orchestrator) Generate(ctx context.Context, params domain.InsightParams, configs []domain.EngineConfig) (*domain.ConsensusResult, error) {
	if len(configs) != 2 {
		return nil, fmt.Errorf("%w: got %d", ErrEngineCount, len(configs))
	}

	prompt, err := renderPrompt(params)
	if err != nil {
		return nil, fmt.Errorf("failed to render prompt: %w", err)
	}

	log := logger.FromContextOrDefault(ctx, o.logger)

	var (
		wg      sync.WaitGroup
		outputs [2]*domain.EngineOutput
		errs    [2]error
	)
	for i := range configs {
		wg.Add(1)
		go func(i int, cfg domain.EngineConfig) {
			defer wg.Done()
			outputs[i], errs[i] = o.runEngine(ctx, prompt, cfg)
		}(i, configs[i])
	}
	wg.Wait()

	switch {
	case errs[0] == nil && errs[1] == nil:
		result := mergeOutputs(outputs[0], outputs[1], o.similarity)
		log.Debug("consensus merge complete",
			slog.Float64("agreement_ratio", result.AgreementRatio),
			slog.Float64("confidence_score", result.ConfidenceScore),
			slog.Int("insights", len(result.Insights)),
			slog.Int("recommendations", len(result.Recommendations)))
		return result, nil

	case errs[0] == nil || errs[1] == nil:
		survivor := outputs[0]
		failedCfg, failedErr := configs[1], errs[1]
		if errs[0] != nil {
			survivor = outputs[1]
			failedCfg, failedErr = configs[0], errs[0]
		}
		log.Warn("engine failed, continuing with failover result",
			slog.String("failed_engine_id", failedCfg.ID),
			slog.String("surviving_engine_id", survivor.EngineID),
			slog.String("error", failedErr.Error()))
		return failoverResult(survivor), nil

	default:
		var merr *multierror.Error
		merr = multierror.Append(merr, fmt.Errorf("engine %s: %w", configs[0].ID, errs[0]))
		merr = multierror.Append(merr, fmt.Errorf("engine %s: %w", configs[1].ID, errs[1]))
		log.Warn("all engines failed", slog.String("error", merr.Error()))
		return nil, &OrchestrationError{Err: merr.ErrorOrNil()}
	}
}

// runEngine performs one engine call, time-boxed by the engine's own
// timeout, and parses the completion. A non-parseable completion is the
// engine's failure, not the pipeline's.
func (o *Orchestrator) runEngine(ctx context.Context, prompt string, cfg domain.EngineConfig) (*domain.EngineOutput, error) {
	eng, err := o.registry.Get(cfg.Provider)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	completion, err := eng.Complete(callCtx, prompt, cfg)
	if err != nil {
		return nil, err
	}

	return parseEngineOutput(completion, cfg)
}

// reportPayload is the JSON shape every engine is prompted to return.
type reportPayload struct {
	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// parseEngineOutput decodes a completion into an engine output,
// attributing the configured engine ID and the usage-derived cost.
func parseEngineOutput(completion *engine.Completion, cfg domain.EngineConfig) (*domain.EngineOutput, error) {
	text := stripCodeFence(completion.Text)

	var parsed reportPayload
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: completion is not valid report JSON: %v", engine.ErrInvalidResponse, err)
	}

	return &domain.EngineOutput{
		EngineID:        cfg.ID,
		Model:           completion.Model,
		CompletionID:    completion.CompletionID,
		Title:           strings.TrimSpace(parsed.Title),
		Summary:         strings.TrimSpace(parsed.Summary),
		Insights:        cleanList(parsed.Insights),
		Recommendations: cleanList(parsed.Recommendations),
		Usage:           completion.Usage,
		LatencyMs:       completion.LatencyMs,
		CostUSD:         cfg.Cost(completion.Usage),
	}, nil
}

// stripCodeFence unwraps a completion that arrived inside a markdown code
// fence, which models emit even when told to return bare JSON.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line ("json", "JSON", or empty).
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// cleanList trims entries and drops empty ones, preserving order.
func cleanList(items []string) []string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
