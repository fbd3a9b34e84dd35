package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/AtRiskMedia/funnelgate-go/internal/application/services"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// WebhookHandlers receives payment confirmation callbacks from providers
type WebhookHandlers struct {
	webhookService *services.WebhookService
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
}

// NewWebhookHandlers creates webhook handlers with injected dependencies
func NewWebhookHandlers(webhookService *services.WebhookService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *WebhookHandlers {
	return &WebhookHandlers{
		webhookService: webhookService,
		logger:         logger,
		perfTracker:    perfTracker,
	}
}

// PostWebhook handles POST /api/v1/webhook/:provider
func (h *WebhookHandlers) PostWebhook(c *gin.Context) {
	start := time.Now()
	provider := c.Param("provider")
	marker := h.perfTracker.StartOperation("post_webhook_request", provider)
	defer marker.Complete()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(failure.HTTPStatus(failure.ErrValidation), gin.H{"error": "failed to read request body"})
		return
	}

	outcome, err := h.webhookService.ProcessCallback(provider, c.ContentType(), body)
	if err != nil {
		marker.SetError(err)
		h.logger.Webhook().Error("Webhook processing failed",
			"provider", provider, "error", err.Error(), "duration", time.Since(start))
		c.JSON(failure.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	marker.SetSuccess(true)
	h.logger.Webhook().Info("Webhook acknowledged",
		"provider", provider, "outcome", outcome.Outcome, "orderId", outcome.OrderID, "duration", time.Since(start))
	c.JSON(http.StatusOK, outcome)
}

// GetWebhookProbe handles GET /api/v1/webhook/:provider. Some providers issue
// a GET against the callback URL when the endpoint is registered; anything but
// a 200 blocks the registration.
func (h *WebhookHandlers) GetWebhookProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "provider": c.Param("provider")})
}
