package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for Insight
var (
	ErrEmptyInsightID     = errors.New("insight ID cannot be empty")
	ErrEmptyInsightJobID  = errors.New("insight job ID cannot be empty")
	ErrEmptyInsightUserID = errors.New("insight user ID cannot be empty")
	ErrInvalidScore       = errors.New("consensus scores must be within [0, 1]")
)

// TokenUsage is the token accounting reported by an engine for one
// completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EngineOutput is the parsed result of one engine invocation, kept in
// the artifact metadata for auditability.
type EngineOutput struct {
	EngineID        string     `json:"engine_id"`
	Model           string     `json:"model"`
	CompletionID    string     `json:"completion_id,omitempty"`
	Title           string     `json:"title"`
	Summary         string     `json:"summary"`
	Insights        []string   `json:"insights"`
	Recommendations []string   `json:"recommendations"`
	Usage           TokenUsage `json:"usage"`
	LatencyMs       int64      `json:"latency_ms"`
	CostUSD         float64    `json:"cost_usd"`
}

// Disagreements lists the items only one engine produced, grouped by
// category.
type Disagreements struct {
	Insights        []string `json:"insights,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ConsensusResult is the merged outcome of a dual-engine run: the
// content that becomes the artifact plus the agreement accounting.
// When FailoverUsed is set, Engines holds the single surviving output
// and AgreementRatio is zero.
type ConsensusResult struct {
	Title           string         `json:"title"`
	Summary         string         `json:"summary"`
	Insights        []string       `json:"insights"`
	Recommendations []string       `json:"recommendations"`
	AgreementRatio  float64        `json:"agreement_ratio"`
	ConfidenceScore float64        `json:"confidence_score"`
	FailoverUsed    bool           `json:"failover_used"`
	Disagreements   Disagreements  `json:"disagreements"`
	Engines         []EngineOutput `json:"engines"`
}

// ConsensusMeta is the artifact-side record of how the content was
// produced.
type ConsensusMeta struct {
	AgreementRatio  float64        `json:"agreement_ratio"`
	ConfidenceScore float64        `json:"confidence_score"`
	FailoverUsed    bool           `json:"failover_used"`
	Disagreements   Disagreements  `json:"disagreements"`
	Engines         []EngineOutput `json:"engines"`
}

// Insight is the persisted artifact produced by a succeeded job.
type Insight struct {
	ID              uuid.UUID     `json:"id"`
	JobID           uuid.UUID     `json:"job_id"`
	UserID          uuid.UUID     `json:"user_id"`
	Title           string        `json:"title"`
	Summary         string        `json:"summary"`
	Insights        []string      `json:"insights"`
	Recommendations []string      `json:"recommendations"`
	Meta            ConsensusMeta `json:"meta"`
	CreatedAt       time.Time     `json:"created_at"`
}

// NewInsight creates the artifact for a job from a consensus result.
// Returns an error if validation fails.
func NewInsight(jobID, userID uuid.UUID, result ConsensusResult) (*Insight, error) {
	insight := &Insight{
		ID:              uuid.New(),
		JobID:           jobID,
		UserID:          userID,
		Title:           result.Title,
		Summary:         result.Summary,
		Insights:        result.Insights,
		Recommendations: result.Recommendations,
		Meta: ConsensusMeta{
			AgreementRatio:  result.AgreementRatio,
			ConfidenceScore: result.ConfidenceScore,
			FailoverUsed:    result.FailoverUsed,
			Disagreements:   result.Disagreements,
			Engines:         result.Engines,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := insight.Validate(); err != nil {
		return nil, err
	}

	return insight, nil
}

// Validate checks if the Insight has valid data.
func (i *Insight) Validate() error {
	if i.ID == uuid.Nil {
		return ErrEmptyInsightID
	}

	if i.JobID == uuid.Nil {
		return ErrEmptyInsightJobID
	}

	if i.UserID == uuid.Nil {
		return ErrEmptyInsightUserID
	}

	if i.Meta.AgreementRatio < 0 || i.Meta.AgreementRatio > 1 ||
		i.Meta.ConfidenceScore < 0 || i.Meta.ConfidenceScore > 1 {
		return ErrInvalidScore
	}

	return nil
}
