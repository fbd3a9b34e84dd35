package middleware

import (
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware provides CORS configuration for the funnel frontend.
// Tracking beacons and checkout calls come from the landing pages, so the
// deployed funnel origin is allowed alongside local development hosts.
func CORSMiddleware(settings *config.Settings) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowOrigins: []string{
			settings.BaseURL,
			"http://localhost:3000",
			"http://localhost:4321",
			"http://127.0.0.1:3000",
			"http://127.0.0.1:4321",
		},
		AllowMethods: []string{
			"GET", "POST", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			"X-Requested-With",
		},
		AllowCredentials: true,
		ExposeHeaders: []string{
			"Content-Type",
		},
	}

	return cors.New(corsConfig)
}
