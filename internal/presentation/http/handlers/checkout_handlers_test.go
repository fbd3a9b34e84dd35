package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AtRiskMedia/funnelgate-go/internal/application/services"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/payments"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkoutRouter(gw *fakeGateway) *gin.Engine {
	gin.SetMode(gin.TestMode)

	svc := services.NewPaymentService(gw, testSettings(), testLogger())
	h := NewCheckoutHandlers(svc, testLogger(), testPerf())

	r := gin.New()
	r.POST("/api/v1/checkout", h.PostCheckout)
	r.GET("/api/v1/payment-status", h.GetPaymentStatus)
	r.POST("/api/v1/payment-return", h.PaymentReturn)
	r.GET("/api/v1/payment-return", h.PaymentReturn)
	return r
}

func TestCheckoutCreatesSession(t *testing.T) {
	gw := &fakeGateway{session: &payments.Session{
		OrderID:     "order_01hx",
		Token:       "tok_test",
		RedirectURL: "https://pay.example.cl/pay?token=tok_test",
	}}
	r := checkoutRouter(gw)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout",
		strings.NewReader(`{"email":"buyer@example.cl","amount":5000}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "https://pay.example.cl/pay?token=tok_test", body["redirect_url"])
	assert.Equal(t, "tok_test", body["token"])
	assert.Equal(t, "order_01hx", body["commerce_order"])
}

func TestCheckoutMalformedBodyReturns400(t *testing.T) {
	r := checkoutRouter(&fakeGateway{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutInvalidEmailReturns400(t *testing.T) {
	gw := &fakeGateway{createErr: fmt.Errorf("%w: %q", failure.ErrInvalidEmail, "not-an-email")}
	r := checkoutRouter(gw)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout",
		strings.NewReader(`{"email":"not-an-email"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckoutProviderFailureReturns500(t *testing.T) {
	gw := &fakeGateway{createErr: fmt.Errorf("%w: connection refused", failure.ErrProviderUnavailable)}
	r := checkoutRouter(gw)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout",
		strings.NewReader(`{"email":"buyer@example.cl"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPaymentStatusReportsFlowVocabulary(t *testing.T) {
	gw := &fakeGateway{status: &payments.StatusInfo{
		OrderID:    "order_01hx",
		Paid:       true,
		StatusCode: 2,
		Amount:     5000,
		Currency:   "CLP",
		Date:       "2024-08-29 03:33:20",
	}}
	r := checkoutRouter(gw)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payment-status?token=tok_test", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "order_01hx", body["commerceOrder"])
	assert.Equal(t, float64(2), body["status"])
	assert.Equal(t, float64(5000), body["amount"])
	assert.Equal(t, "CLP", body["currency"])
	assert.Equal(t, "2024-08-29 03:33:20", body["date"])
}

func TestPaymentStatusRequiresToken(t *testing.T) {
	r := checkoutRouter(&fakeGateway{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payment-status", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentReturnRedirectsToSuccess(t *testing.T) {
	gw := &fakeGateway{status: &payments.StatusInfo{OrderID: "order_01hx", Paid: true, StatusCode: 2}}
	r := checkoutRouter(gw)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-return",
		strings.NewReader("token=tok_test"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://funnel.example.cl/gracias?token=tok_test", w.Header().Get("Location"))
	assert.Equal(t, []string{"tok_test"}, gw.statusSeen)
}

func TestPaymentReturnRedirectsToRetryOnFailure(t *testing.T) {
	gw := &fakeGateway{statusErr: fmt.Errorf("%w: gateway timed out", failure.ErrProviderUnavailable)}
	r := checkoutRouter(gw)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment-return",
		strings.NewReader("token=tok_test"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://funnel.example.cl/try", w.Header().Get("Location"))
}

func TestPaymentReturnWithoutTokenRedirectsToRetry(t *testing.T) {
	gw := &fakeGateway{}
	r := checkoutRouter(gw)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payment-return", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://funnel.example.cl/try", w.Header().Get("Location"))
	assert.Empty(t, gw.statusSeen, "the gateway must not be queried without a token")
}
