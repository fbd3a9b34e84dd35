package services

import (
	"net/url"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/payments"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

// CheckoutRequest is the browser payload starting a hosted payment.
type CheckoutRequest struct {
	Email      string  `json:"email"`
	Amount     float64 `json:"amount"`
	TrackingID string  `json:"tracking_id"`
}

// PaymentService drives the hosted-checkout lifecycle: session creation,
// status lookups and the browser's return from the gateway.
type PaymentService struct {
	gateway  payments.Gateway
	settings *config.Settings
	logger   *logging.ChanneledLogger
}

// NewPaymentService creates the payment service.
func NewPaymentService(gateway payments.Gateway, settings *config.Settings, logger *logging.ChanneledLogger) *PaymentService {
	return &PaymentService{
		gateway:  gateway,
		settings: settings,
		logger:   logger,
	}
}

// CreateCheckout opens a hosted payment session. The tracking id, when the
// frontend has one, travels inside the session so the confirmation webhook
// can correlate the purchase with its lead without relying on the payer
// retyping their email.
func (s *PaymentService) CreateCheckout(req *CheckoutRequest) (*payments.Session, error) {
	return s.gateway.CreateSession(req.Email, req.Amount, req.TrackingID)
}

// GetStatus resolves the current state of a payment token.
func (s *PaymentService) GetStatus(token string) (*payments.StatusInfo, error) {
	return s.gateway.GetStatus(token)
}

// ResolveReturn decides where to send the buyer's browser after the gateway
// redirects back. The webhook is the source of truth for fulfillment; this
// only picks between the thank-you and retry pages, and a status lookup
// failure defaults to retry rather than a false success.
func (s *PaymentService) ResolveReturn(token string) string {
	if token == "" {
		s.logger.Payments().Warn("Return redirect without token")
		return s.settings.BaseURL + s.settings.RetryPath
	}

	st, err := s.gateway.GetStatus(token)
	if err != nil {
		s.logger.Payments().Error("Return status lookup failed", "error", err.Error())
		return s.settings.BaseURL + s.settings.RetryPath
	}

	if st.Paid {
		s.logger.Payments().Info("Buyer returned from paid session", "orderId", st.OrderID)
		// The thank-you page polls payment-status with this token.
		return s.settings.BaseURL + s.settings.SuccessPath + "?token=" + url.QueryEscape(token)
	}

	s.logger.Payments().Info("Buyer returned from unpaid session",
		"orderId", st.OrderID, "statusCode", st.StatusCode)
	return s.settings.BaseURL + s.settings.RetryPath
}
