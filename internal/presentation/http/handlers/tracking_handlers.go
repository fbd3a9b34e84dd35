// Package handlers provides HTTP request handlers for the presentation layer.
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

// TrackingHandlers receives browser tracking beacons
type TrackingHandlers struct {
	trackingService *services.TrackingService
	logger          *logging.ChanneledLogger
	perfTracker     *performance.Tracker
}

// NewTrackingHandlers creates tracking handlers with injected dependencies
func NewTrackingHandlers(trackingService *services.TrackingService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *TrackingHandlers {
	return &TrackingHandlers{
		trackingService: trackingService,
		logger:          logger,
		perfTracker:     perfTracker,
	}
}

// PostPageView handles POST /api/v1/track/pageview
func (h *TrackingHandlers) PostPageView(c *gin.Context) {
	h.handle(c, "post_pageview_request", h.trackingService.ProcessPageView)
}

// PostInitiateCheckout handles POST /api/v1/track/initiate-checkout
func (h *TrackingHandlers) PostInitiateCheckout(c *gin.Context) {
	h.handle(c, "post_initiate_checkout_request", h.trackingService.ProcessInitiateCheckout)
}

func (h *TrackingHandlers) handle(c *gin.Context, operation string, process func(*services.TrackingRequest) (*services.TrackingResult, error)) {
	start := time.Now()
	marker := h.perfTracker.StartOperation(operation, "")
	defer marker.Complete()

	var req services.TrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Tracking().Debug("Rejected unparseable tracking payload", "error", err.Error(), "path", c.Request.URL.Path)
		c.JSON(failure.HTTPStatus(failure.ErrValidation), gin.H{"error": "invalid request body"})
		return
	}

	// The browser payload rarely carries its own network identity; fill it
	// from the connection so advanced matching still has something to hash.
	if req.IP == "" {
		req.IP = c.ClientIP()
	}
	if req.UserAgent == "" {
		req.UserAgent = c.Request.UserAgent()
	}

	result, err := process(&req)
	if err != nil {
		marker.SetError(err)
		h.logger.Tracking().Warn("Tracking request failed", "operation", operation, "error", err.Error(), "duration", time.Since(start))
		c.JSON(failure.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	marker.SetSuccess(true)
	c.JSON(http.StatusOK, result)
}
