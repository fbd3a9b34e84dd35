// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/funnelgate-go/internal/application/container"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/funnelgate-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete startup sequence
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	log.Println("\033[32m" + `

  ▄█████ ▄▄ ▄▄ ▄▄ ▄▄ ▄▄ ▄▄ ▄▄▄▄ ▄▄    ▄████ ▄▄▄▄ ▄▄▄▄▄ ▄▄▄▄
  ██▄▄   ██ ██ ██▀██ ██▀██ ██▄▄ ██    ██ ▄█ ██▄█  ██  ██▄▄
  ██     ██▄██ ██ ██ ██ ██ ██▄▄ ██▄▄  ██▄██ ██ ██ ██  ██▄▄
` + "\033[97m" + `
  made by At Risk Media
` + "\033[0m")

	// Step 1: Load settings
	log.Println("Loading configuration...")
	settings := config.New()

	// Step 2: Create the channeled logger
	loggerConfig := logging.DefaultLoggerConfig()
	loggerConfig.OutputToFile = config.LogToFile
	loggerConfig.LogDirectory = config.LogDirectory
	loggerConfig.JSONFormat = config.LogJSON

	logger, err := logging.NewChanneledLogger(loggerConfig)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Startup().Info("Channeled logging initialized",
		"toFile", config.LogToFile, "json", config.LogJSON)

	// Step 3: Ensure a JWT secret exists. An ephemeral secret invalidates
	// sysop sessions on restart, which is acceptable for a missing config.
	if settings.JWTSecret == "" {
		secret, err := security.GenerateSecureKey(64)
		if err != nil {
			return fmt.Errorf("failed to generate ephemeral JWT secret: %w", err)
		}
		settings.JWTSecret = secret
		logger.Startup().Warn("JWT_SECRET not set, generated ephemeral secret; sysop tokens will not survive a restart")
	}

	// Step 4: Create dependency injection container
	containerStart := time.Now()
	appContainer, err := container.NewContainer(settings, logger)
	if err != nil {
		logger.LogStartupPhase("container", time.Since(containerStart), false, map[string]any{"error": err.Error()})
		return fmt.Errorf("failed to create container: %w", err)
	}
	logger.LogStartupPhase("container", time.Since(containerStart), true, nil)

	// Step 5: Start HTTP server
	port := config.Port
	httpServer := server.New(port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	logger.Shutdown().Info("Closing forward journal...")
	if err := appContainer.Close(); err != nil {
		logger.Shutdown().Error("Error closing forward journal", "error", err.Error())
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return logger.Close()
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
