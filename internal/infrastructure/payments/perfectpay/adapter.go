// Package perfectpay implements the Perfect Pay callback adapter. Perfect Pay
// pushes the full sale in the webhook body and offers no status lookup, so
// verification is local: an optional shared-token check plus the approval
// flag carried by the payload.
package perfectpay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/attribution"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/payments"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/purchase"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

// flexAmount tolerates sale amounts sent as JSON numbers or quoted strings.
type flexAmount float64

func (f *flexAmount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing sale amount %q: %w", s, err)
	}
	*f = flexAmount(v)
	return nil
}

type customer struct {
	Email         string `json:"email"`
	PhoneNumber   string `json:"phone_number"`
	PhoneFormated string `json:"phone_formated"`
	FullName      string `json:"full_name"`
	DateBirth     string `json:"date_birth"`
	Birthday      string `json:"birthday"`
	City          string `json:"city"`
	State         string `json:"state"`
	Country       string `json:"country"`
	ZipCode       string `json:"zip_code"`
	IP            string `json:"ip"`
	UserAgent     string `json:"user_agent"`
}

type product struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// salePayload is the Perfect Pay webhook body. Field aliases cover the
// payload variants observed across account configurations.
type salePayload struct {
	Token             string     `json:"token"`
	Code              string     `json:"code"`
	SaleCode          string     `json:"sale_code"`
	OrderID           string     `json:"order_id"`
	SaleStatusEnumKey string     `json:"sale_status_enum_key"`
	SaleAmount        flexAmount `json:"sale_amount"`
	Currency          string     `json:"currency_enum_key"`
	DateApproved      string     `json:"date_approved"`
	URLTracking       string     `json:"url_tracking"`
	Quantity          int        `json:"quantity"`

	SaleTrackingSource string `json:"sale_tracking_source"`
	SCK                string `json:"sck"`
	TrackingSource     string `json:"tracking_source"`

	FBP string `json:"fbp"`
	FBC string `json:"fbc"`

	Customer customer          `json:"customer"`
	Product  product           `json:"product"`
	Metadata map[string]string `json:"metadata"`
}

func (p *salePayload) orderID() string {
	switch {
	case p.Code != "":
		return p.Code
	case p.SaleCode != "":
		return p.SaleCode
	case p.OrderID != "":
		return p.OrderID
	}
	return fmt.Sprintf("perfect_%d", time.Now().UnixMilli())
}

func (p *salePayload) trackingSource() string {
	switch {
	case p.SaleTrackingSource != "":
		return p.SaleTrackingSource
	case p.SCK != "":
		return p.SCK
	}
	return p.TrackingSource
}

// Adapter normalizes Perfect Pay webhook callbacks.
type Adapter struct {
	settings *config.Settings
	logger   *logging.ChanneledLogger
}

// NewAdapter creates the Perfect Pay callback adapter.
func NewAdapter(settings *config.Settings, logger *logging.ChanneledLogger) *Adapter {
	return &Adapter{settings: settings, logger: logger}
}

func (a *Adapter) Provider() purchase.Provider {
	return purchase.ProviderPerfectPay
}

// ParseCallback decodes the JSON webhook body.
func (a *Adapter) ParseCallback(contentType string, body []byte) (*payments.Callback, error) {
	var payload salePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: undecodable callback body: %v", failure.ErrValidation, err)
	}
	return &payments.Callback{Token: payload.Token, Raw: json.RawMessage(body)}, nil
}

// VerifyAndFetchStatus authenticates the callback against the shared public
// token (when one is configured) and maps the sale onto a canonical
// confirmation. A token mismatch is answered like an unapproved sale: the
// caller acknowledges with 200 and takes no action, so a probing sender
// learns nothing, and the mismatch is raised on the alert channel.
func (a *Adapter) VerifyAndFetchStatus(cb *payments.Callback) (*payments.Confirmation, error) {
	var payload salePayload
	if err := json.Unmarshal(cb.Raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: undecodable callback body: %v", failure.ErrValidation, err)
	}

	if a.settings.PerfectPayToken != "" && !tokenMatches(payload.Token, a.settings.PerfectPayToken) {
		a.logger.Alert().Warn("Callback token mismatch",
			"provider", "perfectpay", "orderId", payload.orderID(), "tokenPresent", payload.Token != "")
		return &payments.Confirmation{
			Provider:    purchase.ProviderPerfectPay,
			Paid:        false,
			StatusLabel: "signature_mismatch",
			OrderID:     payload.orderID(),
			Raw:         cb.Raw,
		}, nil
	}

	approved := payload.SaleStatusEnumKey == "approved"
	label := payload.SaleStatusEnumKey
	if label == "" {
		label = "unknown"
	}
	if approved {
		label = "paid"
	}

	trackingID := payload.trackingSource()
	if _, err := uuid.Parse(trackingID); err != nil {
		trackingID = ""
	}

	eventTime := time.Now().UTC()
	if payload.DateApproved != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
			if parsed, perr := time.Parse(layout, payload.DateApproved); perr == nil {
				eventTime = parsed.UTC()
				break
			}
		}
	}

	phone := payload.Customer.PhoneNumber
	if phone == "" {
		phone = payload.Customer.PhoneFormated
	}

	sourceURL := payload.URLTracking
	if sourceURL == "" {
		sourceURL = a.settings.EventSourceURL
	}

	numItems := payload.Quantity
	if numItems <= 0 {
		numItems = 1
	}

	return &payments.Confirmation{
		Provider:    purchase.ProviderPerfectPay,
		Paid:        approved,
		StatusLabel: label,
		OrderID:     payload.orderID(),
		Token:       payload.Token,
		Amount:      float64(payload.SaleAmount),
		// Forced: Perfect Pay reports BRL for sales actually charged in CLP.
		Currency:   a.settings.PaymentCurrency,
		TrackingID: trackingID,
		Payer: payments.Payer{
			Email:    payload.Customer.Email,
			FullName: payload.Customer.FullName,
			Phone:    phone,
		},
		Identity: attribution.Trigger{
			Email:       payload.Customer.Email,
			Phone:       phone,
			FullName:    payload.Customer.FullName,
			DateOfBirth: normalizeDateOfBirth(firstNonEmpty(payload.Customer.DateBirth, payload.Customer.Birthday)),
			City:        payload.Customer.City,
			State:       payload.Customer.State,
			Country:     payload.Customer.Country,
			ZipCode:     payload.Customer.ZipCode,
			IP:          payload.Customer.IP,
			UserAgent:   payload.Customer.UserAgent,
			FBP:         payload.FBP,
			FBC:         payload.FBC,
		},
		EventTime:   eventTime,
		SourceURL:   sourceURL,
		ContentID:   firstNonEmpty(payload.Product.Code, payload.orderID()),
		ContentName: firstNonEmpty(payload.Product.Name, "Product"),
		NumItems:    numItems,
		UTM:         utmFromMetadata(payload.Metadata),
		Raw:         cb.Raw,
	}, nil
}

func utmFromMetadata(metadata map[string]string) map[string]string {
	var utm map[string]string
	for k, v := range metadata {
		if strings.HasPrefix(k, "utm_") && v != "" {
			if utm == nil {
				utm = make(map[string]string)
			}
			utm[k] = v
		}
	}
	return utm
}

// tokenMatches compares the callback token with the configured one in
// constant time.
func tokenMatches(got, want string) bool {
	return security.ConstantTimeEquals(got, want)
}

// normalizeDateOfBirth converts DD/MM/YYYY dates to the YYYY-MM-DD form the
// hasher expects; other shapes pass through unchanged.
func normalizeDateOfBirth(dob string) string {
	parts := strings.Split(dob, "/")
	if len(parts) != 3 {
		return dob
	}
	return parts[2] + "-" + parts[1] + "-" + parts[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
