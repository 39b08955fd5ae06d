package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an insight job
type JobStatus string

// Possible job status values
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// JobTypeInsightGeneration labels the background task kind recorded on
// task metadata rows and emitted in dead-letter alerts.
const JobTypeInsightGeneration = "insight-generation"

// Machine-readable error codes recorded on failed jobs
const (
	ErrorCodeProviderFailure = "INSIGHT_PROVIDER_FAILURE"
	ErrorCodeInternal        = "INTERNAL_ERROR"
)

// JobPayloadSchemaVersion is the current payload shape version. Rows
// written by older builds carry their own version and are rejected on
// read when the version is newer than this build understands.
const JobPayloadSchemaVersion = 1

// Common validation errors for InsightJob
var (
	ErrEmptyJobID           = errors.New("job ID cannot be empty")
	ErrEmptyJobRequestedBy  = errors.New("job requester ID cannot be empty")
	ErrInvalidJobStatus     = errors.New("invalid job status")
	ErrEmptyInsightSubject  = errors.New("insight subject cannot be empty")
	ErrNoEngineConfigs      = errors.New("job payload must configure at least one engine")
	ErrUnknownSchemaVersion = errors.New("unknown job payload schema version")
)

// InsightJob represents one asynchronous insight-generation request.
// It tracks the request parameters, the engine configuration snapshot
// taken at admission time, and the full processing history.
type InsightJob struct {
	ID           uuid.UUID  `json:"id"`
	RequestedBy  uuid.UUID  `json:"requested_by"`
	Status       JobStatus  `json:"status"`
	Payload      JobPayload `json:"payload"`
	ArtifactID   *uuid.UUID `json:"artifact_id,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// JobPayload is the JSONB document persisted alongside a job row.
// Engines is the configuration snapshot the job will run with, so a
// later config change never alters an already-admitted job.
type JobPayload struct {
	SchemaVersion int             `json:"schema_version"`
	Params        InsightParams   `json:"params"`
	Engines       []EngineConfig  `json:"engines"`
	Attempts      []AttemptRecord `json:"attempts,omitempty"`
	Metrics       *JobMetrics     `json:"metrics,omitempty"`
}

// InsightParams are the user-supplied generation parameters.
type InsightParams struct {
	Subject   string `json:"subject"`
	Timeframe string `json:"timeframe,omitempty"`
	Context   string `json:"context,omitempty"`
}

// AttemptOutcome classifies a single processing attempt.
type AttemptOutcome string

// Possible attempt outcomes
const (
	AttemptOutcomeOK    AttemptOutcome = "ok"
	AttemptOutcomeError AttemptOutcome = "error"
)

// AttemptRecord captures one processing attempt of a job. Records are
// append-only: exactly one is added per worker invocation.
type AttemptRecord struct {
	EngineID     string         `json:"engine_id"`
	Outcome      AttemptOutcome `json:"outcome"`
	LatencyMs    int64          `json:"latency_ms"`
	ErrorMessage string         `json:"error_message,omitempty"`
	At           time.Time      `json:"at"`
}

// JobMetrics summarizes how a job was processed once it reaches a
// terminal state.
type JobMetrics struct {
	RetryCount   int  `json:"retry_count"`
	FailoverUsed bool `json:"failover_used"`
}

// NewInsightJob creates a queued job for the given requester with a
// snapshot of the engine configuration it will run with.
// Returns an error if validation fails.
func NewInsightJob(requestedBy uuid.UUID, params InsightParams, engines []EngineConfig) (*InsightJob, error) {
	now := time.Now().UTC()
	job := &InsightJob{
		ID:          uuid.New(),
		RequestedBy: requestedBy,
		Status:      JobStatusQueued,
		Payload: JobPayload{
			SchemaVersion: JobPayloadSchemaVersion,
			Params:        params,
			Engines:       engines,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the InsightJob has valid data.
// Returns an error if any field fails validation.
func (j *InsightJob) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.RequestedBy == uuid.Nil {
		return ErrEmptyJobRequestedBy
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	return j.Payload.Validate()
}

// Validate checks the payload shape, including its schema version.
func (p *JobPayload) Validate() error {
	if p.SchemaVersion < 1 || p.SchemaVersion > JobPayloadSchemaVersion {
		return ErrUnknownSchemaVersion
	}

	if p.Params.Subject == "" {
		return ErrEmptyInsightSubject
	}

	if len(p.Engines) == 0 {
		return ErrNoEngineConfigs
	}

	for _, e := range p.Engines {
		if err := e.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// RecordAttempt appends an attempt record and bumps UpdatedAt.
func (j *InsightJob) RecordAttempt(rec AttemptRecord) {
	j.Payload.Attempts = append(j.Payload.Attempts, rec)
	j.UpdatedAt = time.Now().UTC()
}

// IsTerminal reports whether the status is a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// IsActive reports whether a job in this status blocks new admissions
// for the same user.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusQueued, JobStatusRunning, JobStatusSucceeded, JobStatusFailed:
		return true
	default:
		return false
	}
}
