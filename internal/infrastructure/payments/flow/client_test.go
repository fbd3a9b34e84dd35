package flow

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

func testSettings(apiURL string) *config.Settings {
	return &config.Settings{
		FlowAPIKey:      "api-key",
		FlowSecretKey:   "secret-key",
		FlowAPIURL:      apiURL,
		FlowPaidStatus:  2,
		PaymentSubject:  "Pago de Servicio",
		PaymentCurrency: "CLP",
		DefaultAmount:   5000,
		PaymentTimeout:  time.Hour,
		ReturnURL:       "https://shop.example.cl/api/v1/payment-return",
		ConfirmationURL: "https://shop.example.cl/api/v1/webhook/flow",
		EventSourceURL:  "https://shop.example.cl",
	}
}

func newTestFlowClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)

	return NewClient(testSettings(srv.URL), logger, performance.NewTracker(nil))
}

func TestCreateSessionSignsAndBuildsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payment/create", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		params := map[string]string{}
		for k := range r.PostForm {
			if k != "s" {
				params[k] = r.PostForm.Get(k)
			}
		}
		expected, err := security.SignParams(params, "secret-key")
		require.NoError(t, err)
		assert.Equal(t, expected, r.PostForm.Get("s"))

		assert.Equal(t, "api-key", r.PostForm.Get("apiKey"))
		assert.Equal(t, "5000", r.PostForm.Get("amount"))
		assert.Equal(t, "CLP", r.PostForm.Get("currency"))
		assert.Equal(t, "3600", r.PostForm.Get("timeout"))
		assert.Equal(t, `{"tracking_id":"3f1c7a9e-0000-4000-8000-000000000001"}`, r.PostForm.Get("optional"))
		assert.Regexp(t, `^order_[0-9a-z]{26}$`, r.PostForm.Get("commerceOrder"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"https://www.flow.cl/app/web/pay.php","token":"tok123","flowOrder":99}`))
	})

	client := newTestFlowClient(t, mux)
	session, err := client.CreateSession("buyer@example.cl", 5000, "3f1c7a9e-0000-4000-8000-000000000001")
	require.NoError(t, err)
	assert.Equal(t, "tok123", session.Token)
	assert.Equal(t, "https://www.flow.cl/app/web/pay.php?token=tok123", session.RedirectURL)
	assert.Regexp(t, `^order_`, session.OrderID)
}

func TestCreateSessionRoundsFractionalAmount(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payment/create", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "5000", r.PostForm.Get("amount"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"https://www.flow.cl/app/web/pay.php","token":"tok789"}`))
	})

	client := newTestFlowClient(t, mux)
	_, err := client.CreateSession("buyer@example.cl", 4999.6, "")
	require.NoError(t, err)
}

func TestCreateSessionToleratesFormEncodedResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payment/create", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("url=https%3A%2F%2Fwww.flow.cl%2Fapp%2Fweb%2Fpay.php&token=tok456"))
	})

	client := newTestFlowClient(t, mux)
	session, err := client.CreateSession("buyer@example.cl", 5000, "")
	require.NoError(t, err)
	assert.Equal(t, "tok456", session.Token)
}

func TestCreateSessionRejectsInvalidEmail(t *testing.T) {
	client := newTestFlowClient(t, http.NewServeMux())

	_, err := client.CreateSession("not-an-email", 5000, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrInvalidEmail))
}

func TestCreateSessionGatewayErrorIsProviderUnavailable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payment/create", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":101,"message":"invalid api key"}`))
	})

	client := newTestFlowClient(t, mux)
	_, err := client.CreateSession("buyer@example.cl", 5000, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrProviderUnavailable))
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestGetStatusPaid(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/payment/getStatus", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		params := map[string]string{"apiKey": q.Get("apiKey"), "token": q.Get("token")}
		expected, err := security.SignParams(params, "secret-key")
		require.NoError(t, err)
		assert.Equal(t, expected, q.Get("s"))

		w.Write([]byte(`{"commerceOrder":"order_abc","status":2,"amount":"5000","currency":"CLP","payer":"buyer@example.cl"}`))
	})

	client := newTestFlowClient(t, mux)
	st, err := client.GetStatus("tok123")
	require.NoError(t, err)
	assert.True(t, st.Paid)
	assert.Equal(t, "order_abc", st.OrderID)
	assert.Equal(t, float64(5000), st.Amount)
	assert.Equal(t, 2, st.StatusCode)
}

func TestGetStatusStringAndNumericAmounts(t *testing.T) {
	var f FlexFloat
	require.NoError(t, f.UnmarshalJSON([]byte(`"5000"`)))
	assert.Equal(t, FlexFloat(5000), f)
	require.NoError(t, f.UnmarshalJSON([]byte(`4990.5`)))
	assert.Equal(t, FlexFloat(4990.5), f)
}

func TestOptionalTrackingIDShapes(t *testing.T) {
	var o Optional
	require.NoError(t, o.UnmarshalJSON([]byte(`{"tracking_id":"abc"}`)))
	assert.Equal(t, "abc", o.TrackingID())

	require.NoError(t, o.UnmarshalJSON([]byte(`"{\"tracking_id\":\"nested\"}"`)))
	assert.Equal(t, "nested", o.TrackingID())

	require.NoError(t, o.UnmarshalJSON([]byte(`null`)))
	assert.Equal(t, "", o.TrackingID())
}
