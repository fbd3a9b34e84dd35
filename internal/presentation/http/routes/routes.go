// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"net/http"

	"github.com/AtRiskMedia/funnelgate-go/internal/application/container"
	"github.com/AtRiskMedia/funnelgate-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/funnelgate-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware(container.Settings))

	// Initialize handlers
	trackingHandlers := handlers.NewTrackingHandlers(container.TrackingService, container.Logger, container.Perf)
	checkoutHandlers := handlers.NewCheckoutHandlers(container.PaymentService, container.Logger, container.Perf)
	webhookHandlers := handlers.NewWebhookHandlers(container.WebhookService, container.Logger, container.Perf)
	sysopHandlers := handlers.NewSysOpHandlers(container)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// SysOp API endpoints
	sysopAPI := r.Group("/api/sysop")
	{
		sysopAPI.POST("/login", sysopHandlers.Login)

		// SysOp Authenticated endpoints
		sysopAPI.Use(sysopHandlers.SysOpAuthMiddleware())
		{
			sysopAPI.GET("/health", sysopHandlers.GetHealth)
			sysopAPI.GET("/activity", sysopHandlers.GetActivity)
			sysopAPI.GET("/journal", sysopHandlers.GetJournal)
			sysopAPI.GET("/logs/levels", sysopHandlers.GetLogLevels)
			sysopAPI.POST("/logs/levels", sysopHandlers.SetLogLevel)
		}
	}

	api := r.Group("/api/v1")
	{
		// Browser tracking beacons
		track := api.Group("/track")
		{
			track.POST("/pageview", trackingHandlers.PostPageView)
			track.POST("/initiate-checkout", trackingHandlers.PostInitiateCheckout)
		}

		// Checkout and payment status
		api.POST("/checkout", checkoutHandlers.PostCheckout)
		api.GET("/payment-status", checkoutHandlers.GetPaymentStatus)

		// The hosted payment page sends the buyer back with a POST; some
		// gateways use GET when the buyer abandons.
		api.POST("/payment-return", checkoutHandlers.PaymentReturn)
		api.GET("/payment-return", checkoutHandlers.PaymentReturn)

		// Provider confirmation callbacks
		api.POST("/webhook/:provider", webhookHandlers.PostWebhook)
		api.GET("/webhook/:provider", webhookHandlers.GetWebhookProbe)
	}

	return r
}
