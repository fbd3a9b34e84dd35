package services

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

const sysopTokenTTL = 12 * time.Hour

// AuthService guards the sysop dashboard with a single bcrypt-hashed
// password and short-lived JWTs.
type AuthService struct {
	settings *config.Settings
	logger   *logging.ChanneledLogger
}

// NewAuthService creates the auth service.
func NewAuthService(settings *config.Settings, logger *logging.ChanneledLogger) *AuthService {
	return &AuthService{settings: settings, logger: logger}
}

// Login verifies the operator password and issues a sysop token.
func (s *AuthService) Login(password string) (string, error) {
	if s.settings.SysopPasswordHash == "" {
		return "", fmt.Errorf("%w: sysop password is not configured", failure.ErrConfiguration)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.settings.SysopPasswordHash), []byte(password)); err != nil {
		s.logger.Auth().Warn("Sysop login rejected")
		return "", fmt.Errorf("%w: invalid credentials", failure.ErrValidation)
	}

	token, err := security.GenerateSysopToken(s.settings.JWTSecret, sysopTokenTTL)
	if err != nil {
		return "", err
	}

	s.logger.Auth().Info("Sysop login accepted")
	return token, nil
}

// Verify checks a bearer token and confirms the sysop role.
func (s *AuthService) Verify(token string) error {
	claims, err := security.ValidateJWT(token, s.settings.JWTSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", failure.ErrValidation, err)
	}
	if !security.IsSysopClaims(claims) {
		return fmt.Errorf("%w: token lacks sysop role", failure.ErrValidation)
	}
	return nil
}
