package flow

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/payments"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/purchase"
)

func TestParseCallbackFormBody(t *testing.T) {
	adapter := NewAdapter(nil, testSettings(""))

	cb, err := adapter.ParseCallback("application/x-www-form-urlencoded", []byte("token=tok123"))
	require.NoError(t, err)
	assert.Equal(t, "tok123", cb.Token)
}

func TestParseCallbackJSONBody(t *testing.T) {
	adapter := NewAdapter(nil, testSettings(""))

	cb, err := adapter.ParseCallback("application/json", []byte(`{"token":"tok456"}`))
	require.NoError(t, err)
	assert.Equal(t, "tok456", cb.Token)
}

func TestParseCallbackRejectsMissingToken(t *testing.T) {
	adapter := NewAdapter(nil, testSettings(""))

	_, err := adapter.ParseCallback("application/x-www-form-urlencoded", []byte("foo=bar"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrValidation))

	_, err = adapter.ParseCallback("application/json", []byte(``))
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrValidation))
}

func TestVerifyAndFetchStatusMapsConfirmation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payment/getStatus", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"commerceOrder": "order_abc",
			"status": 2,
			"amount": "5000",
			"currency": "CLP",
			"payer": "buyer@example.cl",
			"subject": "Pago de Servicio",
			"requestDate": "2026-08-29 10:30:00",
			"optional": {"tracking_id": "3f1c7a9e-0000-4000-8000-000000000001"}
		}`))
	})

	client := newTestFlowClient(t, mux)
	adapter := NewAdapter(client, client.settings)

	conf, err := adapter.VerifyAndFetchStatus(callbackWithToken(t, adapter, "tok123"))
	require.NoError(t, err)

	assert.True(t, conf.Paid)
	assert.Equal(t, purchase.ProviderFlow, conf.Provider)
	assert.Equal(t, "paid", conf.StatusLabel)
	assert.Equal(t, "order_abc", conf.OrderID)
	assert.Equal(t, "tok123", conf.Token)
	assert.Equal(t, float64(5000), conf.Amount)
	assert.Equal(t, "3f1c7a9e-0000-4000-8000-000000000001", conf.TrackingID)
	assert.Equal(t, "buyer@example.cl", conf.Payer.Email)
	assert.Equal(t, "buyer@example.cl", conf.Identity.Email)
	assert.Equal(t, 2026, conf.EventTime.Year())
}

func TestVerifyAndFetchStatusNotPaid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payment/getStatus", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"commerceOrder":"order_abc","status":3,"amount":5000,"currency":"CLP"}`))
	})

	client := newTestFlowClient(t, mux)
	adapter := NewAdapter(client, client.settings)

	conf, err := adapter.VerifyAndFetchStatus(callbackWithToken(t, adapter, "tok123"))
	require.NoError(t, err)
	assert.False(t, conf.Paid)
	assert.Equal(t, "rejected", conf.StatusLabel)
}

func callbackWithToken(t *testing.T, adapter *Adapter, token string) *payments.Callback {
	t.Helper()
	cb, err := adapter.ParseCallback("application/x-www-form-urlencoded", []byte("token="+token))
	require.NoError(t, err)
	return cb
}
