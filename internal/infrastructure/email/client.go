// Package email provides the email client for operator notifications.
package email

import (
	"fmt"
	"html"
	"time"

	"github.com/resendlabs/resend-go"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/purchase"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

// Service defines the interface for operator notifications, allowing for mock
// implementations in tests.
type Service interface {
	SendSaleNotification(p *purchase.Purchase) error
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	client    *resend.Client
	fromEmail string
	toEmail   string
	logger    *logging.ChanneledLogger
}

// NewService creates a new email service client. It returns (nil, nil) when
// notifications are not configured; callers treat a nil Service as disabled.
func NewService(settings *config.Settings, logger *logging.ChanneledLogger) (Service, error) {
	if settings.ResendAPIKey == "" || settings.NotifyEmailTo == "" {
		return nil, nil
	}

	return &ResendClient{
		client:    resend.NewClient(settings.ResendAPIKey),
		fromEmail: settings.NotifyEmailFrom,
		toEmail:   settings.NotifyEmailTo,
		logger:    logger,
	}, nil
}

// saleNotificationHTML renders the operator email body. Order ids and payer
// emails come from gateway callbacks, so they are escaped before landing in
// markup.
func saleNotificationHTML(p *purchase.Purchase, at time.Time) string {
	return fmt.Sprintf(
		`<h2>Nueva venta registrada</h2>
<table>
<tr><td>Proveedor</td><td>%s</td></tr>
<tr><td>Orden</td><td>%s</td></tr>
<tr><td>Monto</td><td>%s %.0f</td></tr>
<tr><td>Comprador</td><td>%s</td></tr>
<tr><td>Fecha</td><td>%s</td></tr>
</table>`,
		html.EscapeString(string(p.Provider)),
		html.EscapeString(p.OrderID),
		html.EscapeString(p.Currency), p.Amount,
		html.EscapeString(p.PayerEmail),
		at.UTC().Format(time.RFC3339),
	)
}

// SendSaleNotification emails the operator about a newly recorded purchase.
func (c *ResendClient) SendSaleNotification(p *purchase.Purchase) error {
	subject := fmt.Sprintf("Nueva venta %s: %s %.0f", p.Provider, p.Currency, p.Amount)

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("FunnelGate <%s>", c.fromEmail),
		To:      []string{c.toEmail},
		Subject: subject,
		Html:    saleNotificationHTML(p, time.Now()),
	}

	if _, err := c.client.Emails.Send(params); err != nil {
		return fmt.Errorf("failed to send sale notification via Resend: %w", err)
	}

	c.logger.System().Info("Sale notification sent",
		"provider", p.Provider, "orderId", p.OrderID)
	return nil
}
