package alerting

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookSinkValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWebhookSink(nil, "https://hooks.example.com/alerts")
	assert.Error(t, err)

	_, err = NewWebhookSink(newTestAlertLogger(), "")
	assert.Error(t, err)
}

func TestWebhookSinkPostsEvent(t *testing.T) {
	t.Parallel()

	var (
		gotContentType string
		gotBody        []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(newTestAlertLogger(), server.URL)
	require.NoError(t, err)

	require.NoError(t, sink.Notify(context.Background(), deadLetterEvent()))

	assert.Equal(t, "application/json", gotContentType)

	var payload webhookPayload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, EventDeadLetter, payload.Kind)
	assert.Equal(t, "insight job exhausted its retry budget", payload.Message)
	assert.Equal(t, "insight-generate-abc", payload.Fields["task_name"])
	assert.False(t, payload.At.IsZero())
}

func TestWebhookSinkRejectedDelivery(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sink, err := NewWebhookSink(newTestAlertLogger(), server.URL)
	require.NoError(t, err)

	err = sink.Notify(context.Background(), deadLetterEvent())
	assert.ErrorContains(t, err, "status 400")

	// Client errors are not retried.
	assert.Equal(t, int32(1), requests.Load())
}
