package postgres

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/auspexhq/insight-api/internal/domain"
	"github.com/auspexhq/insight-api/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPostgresInsightStore(t *testing.T) {
	t.Run("nil_db_panics", func(t *testing.T) {
		assert.Panics(t, func() {
			NewPostgresInsightStore(nil, slog.Default())
		})
	})

	t.Run("nil_logger_uses_default", func(t *testing.T) {
		s := NewPostgresInsightStore(&mockDBTX{}, nil)
		assert.NotNil(t, s)
		assert.NotNil(t, s.logger)
	})
}

func TestPostgresInsightStore_WithTx(t *testing.T) {
	original := NewPostgresInsightStore(&mockDBTX{}, slog.Default())

	tx := &sql.Tx{}
	bound := original.WithTx(tx)

	require.NotNil(t, bound)
	assert.Equal(t, store.DBTX(tx), bound.(*PostgresInsightStore).db)
}

func TestScanInsight(t *testing.T) {
	id := uuid.New()
	jobID := uuid.New()
	userID := uuid.New()
	created := time.Now().UTC()

	meta := domain.ConsensusMeta{
		AgreementRatio:  0.667,
		ConfidenceScore: 0.8,
		Disagreements:   domain.Disagreements{Insights: []string{"only engine A saw this"}},
		Engines: []domain.EngineOutput{
			{EngineID: "primary", Model: "gemini-2.0-flash", LatencyMs: 1200},
			{EngineID: "secondary", Model: "gpt-4o-mini", LatencyMs: 900},
		},
	}
	metaRaw, err := json.Marshal(meta)
	require.NoError(t, err)

	row := &fakeRow{vals: []any{
		id,
		jobID,
		userID,
		"Churn drivers",
		"Churn is concentrated in the annual plan cohort.",
		[]byte(`["pricing friction","support latency"]`),
		[]byte(`["simplify plan matrix"]`),
		metaRaw,
		created,
	}}

	insight, err := scanInsight(row)
	require.NoError(t, err)
	assert.Equal(t, id, insight.ID)
	assert.Equal(t, jobID, insight.JobID)
	assert.Equal(t, userID, insight.UserID)
	assert.Equal(t, []string{"pricing friction", "support latency"}, insight.Insights)
	assert.Equal(t, []string{"simplify plan matrix"}, insight.Recommendations)
	assert.InDelta(t, 0.667, insight.Meta.AgreementRatio, 0.0001)
	assert.Len(t, insight.Meta.Engines, 2)
}

func TestScanInsightMalformedColumns(t *testing.T) {
	created := time.Now().UTC()

	row := &fakeRow{vals: []any{
		uuid.New(),
		uuid.New(),
		uuid.New(),
		"title",
		"summary",
		[]byte(`not json`),
		[]byte(`[]`),
		[]byte(`{}`),
		created,
	}}

	_, err := scanInsight(row)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}
