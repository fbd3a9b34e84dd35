// Package payments defines the provider-neutral payment types plus the two
// seams per provider: a Gateway for outbound calls and a ProviderAdapter for
// inbound callbacks. All provider-specific field names and verification
// schemes stay behind these interfaces.
package payments

import (
	"encoding/json"
	"time"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/attribution"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/purchase"
)

// Payer carries whatever identity the provider discloses about the buyer.
type Payer struct {
	Email       string
	FullName    string
	FirstName   string
	LastName    string
	Phone       string
	DateOfBirth string
	City        string
	State       string
	Country     string
	ZipCode     string
}

// Session is the result of creating a hosted checkout with a provider.
// The JSON keys are part of the checkout contract the storefront consumes.
type Session struct {
	OrderID     string `json:"commerce_order"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// StatusInfo is a provider-neutral view of a payment's current state, used
// by the status endpoint and the return handler. The serialized shape
// mirrors Flow's getStatus vocabulary (commerceOrder, numeric status) so the
// thank-you page can poll it directly; fields marked "-" only feed server-side
// decisions.
type StatusInfo struct {
	OrderID    string         `json:"commerceOrder"`
	StatusCode int            `json:"status"`
	Amount     float64        `json:"amount"`
	Currency   string         `json:"currency"`
	Date       string         `json:"date,omitempty"`
	Token      string         `json:"-"`
	Paid       bool           `json:"-"`
	PayerEmail string         `json:"-"`
	Raw        map[string]any `json:"-"`
}

// Gateway creates checkout sessions and reads payment status from a provider
// that supports server-initiated lookups.
type Gateway interface {
	CreateSession(email string, amount float64, trackingID string) (*Session, error)
	GetStatus(token string) (*StatusInfo, error)
}

// Confirmation is the canonical outcome of verifying one provider callback.
// Paid=false with a StatusLabel still produces a 200 acknowledgement; the
// label only drives logging.
type Confirmation struct {
	Provider    purchase.Provider
	Paid        bool
	StatusLabel string

	OrderID  string
	Token    string
	Amount   float64
	Currency string

	TrackingID string
	Payer      Payer
	Identity   attribution.Trigger

	EventTime time.Time
	SourceURL string

	ContentID   string
	ContentName string
	NumItems    int

	// UTM carries campaign parameters echoed back by the provider. They win
	// over whatever the matched lead recorded.
	UTM map[string]string

	Raw json.RawMessage
}

// Callback is a provider callback after body parsing but before any outbound
// verification call.
type Callback struct {
	Token string
	Raw   json.RawMessage
}

// ProviderAdapter normalizes one provider's callback flow. ParseCallback
// failures map to a 400; VerifyAndFetchStatus failures map to a 500 so the
// provider retries.
type ProviderAdapter interface {
	Provider() purchase.Provider
	ParseCallback(contentType string, body []byte) (*Callback, error)
	VerifyAndFetchStatus(cb *Callback) (*Confirmation, error)
}

// ToPurchase maps a paid confirmation onto a ledger row.
func (c *Confirmation) ToPurchase() *purchase.Purchase {
	return &purchase.Purchase{
		Provider:   c.Provider,
		OrderID:    c.OrderID,
		Token:      c.Token,
		TrackingID: c.TrackingID,
		Amount:     c.Amount,
		Currency:   c.Currency,
		Status:     purchase.StatusPaid,
		PayerEmail: c.Payer.Email,
		PayerName:  c.Payer.FullName,
		PayerPhone: c.Payer.Phone,
		RawData:    c.Raw,
	}
}
