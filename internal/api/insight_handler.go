package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/auspexhq/insight-api/internal/api/shared"
	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/platform/logger"
	"github.com/auspexhq/insight-api/internal/service"
)

// CreateInsightRequest represents the request body for requesting a new
// insight generation job.
type CreateInsightRequest struct {
	Subject   string `json:"subject" validate:"required,min=1,max=500"`
	Timeframe string `json:"timeframe" validate:"omitempty,max=100"`
	Context   string `json:"context" validate:"omitempty,max=4000"`
}

// JobResponse represents the response data for an insight job.
type JobResponse struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	ArtifactID   *string    `json:"artifact_id,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// InsightResponse represents the response data for a generated insight
// artifact.
type InsightResponse struct {
	ID              string    `json:"id"`
	JobID           string    `json:"job_id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Insights        []string  `json:"insights"`
	Recommendations []string  `json:"recommendations"`
	AgreementRatio  float64   `json:"agreement_ratio"`
	ConfidenceScore float64   `json:"confidence_score"`
	FailoverUsed    bool      `json:"failover_used"`
	CreatedAt       time.Time `json:"created_at"`
}

// InsightHandler handles insight-related HTTP requests.
type InsightHandler struct {
	insightService service.InsightService
	logger         *slog.Logger
}

// NewInsightHandler creates a new InsightHandler.
func NewInsightHandler(insightService service.InsightService, log *slog.Logger) *InsightHandler {
	if log == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for InsightHandler")
	}

	return &InsightHandler{
		insightService: insightService,
		logger:         log.With(slog.String("component", "insight_handler")),
	}
}

// CreateInsight handles POST /api/insights requests. Admission failures
// come back synchronously; once the job is accepted the caller polls
// the job read path for its progress.
func (h *InsightHandler) CreateInsight(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := handleUserIDFromContext(w, r, log)
	if !ok {
		return
	}

	var req CreateInsightRequest
	if !parseAndValidateRequest(w, r, &req, log) {
		return
	}

	params := domain.InsightParams{
		Subject:   req.Subject,
		Timeframe: req.Timeframe,
		Context:   req.Context,
	}

	job, err := h.insightService.RequestInsight(r.Context(), userID, params)
	if err != nil {
		statusCode := MapErrorToStatusCode(err)
		safeMessage := GetSafeErrorMessage(err)

		if statusCode == http.StatusTooManyRequests {
			shared.RespondWithErrorAndLog(w, r, statusCode, safeMessage, err,
				shared.WithElevatedLogLevel())
			return
		}

		shared.RespondWithErrorAndLog(w, r, statusCode, safeMessage, err)
		return
	}

	log.Debug("insight job accepted",
		slog.String("user_id", userID.String()),
		slog.String("job_id", job.ID.String()))

	// 202: the job runs asynchronously; the response carries the ID the
	// caller polls.
	shared.RespondWithJSON(w, r, http.StatusAccepted, jobToResponse(job))
}

// GetJob handles GET /api/insights/jobs/{id} requests.
func (h *InsightHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, jobID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	job, err := h.insightService.GetJob(r.Context(), userID, jobID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// GetInsight handles GET /api/insights/{id} requests.
func (h *InsightHandler) GetInsight(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, insightID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	insight, err := h.insightService.GetInsight(r.Context(), userID, insightID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, insightToResponse(insight))
}

// jobToResponse converts a domain.InsightJob to a JobResponse.
func jobToResponse(job *domain.InsightJob) JobResponse {
	resp := JobResponse{
		ID:           job.ID.String(),
		Status:       string(job.Status),
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		DispatchedAt: job.DispatchedAt,
		CompletedAt:  job.CompletedAt,
	}
	if job.ArtifactID != nil {
		artifactID := job.ArtifactID.String()
		resp.ArtifactID = &artifactID
	}
	return resp
}

// insightToResponse converts a domain.Insight to an InsightResponse.
func insightToResponse(insight *domain.Insight) InsightResponse {
	return InsightResponse{
		ID:              insight.ID.String(),
		JobID:           insight.JobID.String(),
		Title:           insight.Title,
		Summary:         insight.Summary,
		Insights:        insight.Insights,
		Recommendations: insight.Recommendations,
		AgreementRatio:  insight.Meta.AgreementRatio,
		ConfidenceScore: insight.Meta.ConfidenceScore,
		FailoverUsed:    insight.Meta.FailoverUsed,
		CreatedAt:       insight.CreatedAt,
	}
}
