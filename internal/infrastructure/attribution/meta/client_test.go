package meta

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/attribution"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

func newTestMetaClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)

	client := NewClient(&config.Settings{
		MetaPixelID:     "1170692121796734",
		MetaAccessToken: "test-token",
		MetaAPIVersion:  "v18.0",
	}, logger, performance.NewTracker(nil))
	client.graphURL = srv.URL
	return client
}

func purchaseEvent() *attribution.Event {
	return &attribution.Event{
		EventName:    attribution.EventPurchase,
		EventTime:    1724900000,
		EventID:      "order_01hx",
		ActionSource: "website",
		UserData: attribution.UserData{
			Em:              "aabbcc",
			ClientIPAddress: "0.0.0.0",
			ClientUserAgent: "Unknown",
		},
		CustomData: map[string]any{"currency": "CLP", "value": 5000},
	}
}

func TestSendEventPostsTokenInBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v18.0/1170692121796734/events", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data        []map[string]any `json:"data"`
			AccessToken string           `json:"access_token"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-token", body.AccessToken)
		require.Len(t, body.Data, 1)
		assert.Equal(t, "Purchase", body.Data[0]["event_name"])
		assert.Equal(t, "order_01hx", body.Data[0]["event_id"])

		w.Write([]byte(`{"events_received":1,"fbtrace_id":"trace-1"}`))
	})

	client := newTestMetaClient(t, mux)
	receipt, err := client.SendEvent(purchaseEvent())
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.EventsReceived)
	assert.Equal(t, "trace-1", receipt.FBTraceID)
}

func TestSendEventRejectionWrapsForwardingFailed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v18.0/1170692121796734/events", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Invalid parameter: user_data","type":"OAuthException","code":100}}`))
	})

	client := newTestMetaClient(t, mux)
	_, err := client.SendEvent(purchaseEvent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrForwardingFailed))
	assert.Contains(t, err.Error(), "Invalid parameter")
}

func TestSendEventMissingCredentials(t *testing.T) {
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)

	client := NewClient(&config.Settings{}, logger, performance.NewTracker(nil))
	_, err = client.SendEvent(purchaseEvent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrForwardingFailed))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v18.0/1170692121796734/events", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"service unavailable"}}`))
	})

	client := newTestMetaClient(t, mux)
	for i := 0; i < 5; i++ {
		_, err := client.SendEvent(purchaseEvent())
		require.Error(t, err)
	}

	// Breaker is open now: the failure is local and still forwarding-failed.
	_, err := client.SendEvent(purchaseEvent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrForwardingFailed))
}
