package handlers

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/funnelgate-go/internal/application/services"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// CheckoutHandlers creates payment sessions and reports their status
type CheckoutHandlers struct {
	paymentService *services.PaymentService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewCheckoutHandlers creates checkout handlers with injected dependencies
func NewCheckoutHandlers(paymentService *services.PaymentService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *CheckoutHandlers {
	return &CheckoutHandlers{
		paymentService: paymentService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// PostCheckout handles POST /api/v1/checkout - creates a hosted payment session
func (h *CheckoutHandlers) PostCheckout(c *gin.Context) {
	start := time.Now()
	marker := h.perfTracker.StartOperation("post_checkout_request", "flow")
	defer marker.Complete()

	var req services.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(failure.HTTPStatus(failure.ErrValidation), gin.H{"error": "invalid request body"})
		return
	}

	session, err := h.paymentService.CreateCheckout(&req)
	if err != nil {
		marker.SetError(err)
		h.logger.Payments().Error("Checkout creation failed",
			"email", logging.SanitizeEmail(req.Email), "error", err.Error(), "duration", time.Since(start))
		c.JSON(failure.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	marker.SetSuccess(true)
	h.logger.Payments().Info("Checkout session created",
		"orderId", session.OrderID, "duration", time.Since(start))
	c.JSON(http.StatusOK, session)
}

// GetPaymentStatus handles GET /api/v1/payment-status?token=
func (h *CheckoutHandlers) GetPaymentStatus(c *gin.Context) {
	marker := h.perfTracker.StartOperation("get_payment_status_request", "flow")
	defer marker.Complete()

	token := c.Query("token")
	if token == "" {
		c.JSON(failure.HTTPStatus(failure.ErrValidation), gin.H{"error": "token query parameter is required"})
		return
	}

	status, err := h.paymentService.GetStatus(token)
	if err != nil {
		marker.SetError(err)
		c.JSON(failure.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, status)
}

// PaymentReturn handles the browser coming back from the hosted payment page.
// Flow posts the token as a form field; the handler resolves the payment state
// and sends the buyer to the success or retry page with a 303 so the browser
// re-requests with GET.
func (h *CheckoutHandlers) PaymentReturn(c *gin.Context) {
	token := c.PostForm("token")
	if token == "" {
		token = c.Query("token")
	}

	target := h.paymentService.ResolveReturn(token)
	c.Redirect(http.StatusSeeOther, target)
}
