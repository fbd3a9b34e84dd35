// Package flow implements the Flow.cl payment gateway client and its
// callback adapter. Every Flow request is HMAC-signed; every Flow response
// may arrive as JSON or as a form-encoded body depending on endpoint and
// error path, so decoding sniffs both.
package flow

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/payments"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// FlexFloat tolerates Flow's habit of returning numeric fields as either
// JSON numbers or quoted strings.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing amount %q: %w", s, err)
	}
	*f = FlexFloat(v)
	return nil
}

// Optional mirrors Flow's "optional" field, which echoes back whatever the
// session creation sent: an object, a JSON-encoded string, or nothing.
type Optional struct {
	raw json.RawMessage
}

func (o *Optional) UnmarshalJSON(data []byte) error {
	o.raw = append(o.raw[:0], data...)
	return nil
}

func (o Optional) MarshalJSON() ([]byte, error) {
	if len(o.raw) == 0 {
		return []byte("null"), nil
	}
	return o.raw, nil
}

// TrackingID digs the tracking_id out of the optional payload regardless of
// which encoding Flow chose.
func (o *Optional) TrackingID() string {
	if len(o.raw) == 0 {
		return ""
	}

	var obj map[string]string
	if err := json.Unmarshal(o.raw, &obj); err == nil {
		return obj["tracking_id"]
	}

	// Double-encoded: a JSON string containing a JSON object.
	var inner string
	if err := json.Unmarshal(o.raw, &inner); err == nil && inner != "" {
		if err := json.Unmarshal([]byte(inner), &obj); err == nil {
			return obj["tracking_id"]
		}
	}
	return ""
}

// statusResponse is Flow's payment/getStatus payload.
type statusResponse struct {
	FlowOrder     int64     `json:"flowOrder"`
	CommerceOrder string    `json:"commerceOrder"`
	RequestDate   string    `json:"requestDate"`
	Status        int       `json:"status"`
	Subject       string    `json:"subject"`
	Currency      string    `json:"currency"`
	Amount        FlexFloat `json:"amount"`
	Payer         string    `json:"payer"`
	Optional      Optional  `json:"optional"`
	Code          int       `json:"code"`
	Message       string    `json:"message"`
}

// Client talks to the Flow.cl REST API.
type Client struct {
	settings   *config.Settings
	httpClient *http.Client
	logger     *logging.ChanneledLogger
	perf       *performance.Tracker
}

// NewClient creates a Flow API client.
func NewClient(settings *config.Settings, logger *logging.ChanneledLogger, perf *performance.Tracker) *Client {
	return &Client{
		settings:   settings,
		httpClient: &http.Client{Timeout: config.OutboundCallTimeout},
		logger:     logger,
		perf:       perf,
	}
}

func (c *Client) checkCredentials() error {
	if c.settings.FlowAPIKey == "" || c.settings.FlowSecretKey == "" {
		return fmt.Errorf("%w: missing payment gateway credentials", failure.ErrConfiguration)
	}
	return nil
}

// CreateSession creates a hosted checkout at Flow and returns the redirect
// URL for the buyer. A non-empty trackingID rides along in the "optional"
// field so the confirmation webhook can correlate the purchase with its lead.
func (c *Client) CreateSession(email string, amount float64, trackingID string) (*payments.Session, error) {
	marker := c.perf.StartOperation("gateway:create_session", "flow")
	defer c.perf.CompleteOperation(marker)

	if err := c.checkCredentials(); err != nil {
		marker.SetError(err)
		return nil, err
	}
	if !emailPattern.MatchString(email) {
		err := fmt.Errorf("%w: %q is not a valid email address", failure.ErrInvalidEmail, email)
		marker.SetError(err)
		return nil, err
	}
	if amount <= 0 {
		amount = float64(c.settings.DefaultAmount)
	}

	orderID := security.GenerateOrderID()
	marker.AddMetadata("orderId", orderID)

	params := map[string]string{
		"apiKey":          c.settings.FlowAPIKey,
		"amount":          strconv.Itoa(int(math.Round(amount))),
		"commerceOrder":   orderID,
		"currency":        c.settings.PaymentCurrency,
		"email":           email,
		"subject":         c.settings.PaymentSubject,
		"timeout":         strconv.Itoa(int(c.settings.PaymentTimeout.Seconds())),
		"urlConfirmation": c.settings.ConfirmationURL,
		"urlReturn":       c.settings.ReturnURL,
	}
	if trackingID != "" {
		optional, _ := json.Marshal(map[string]string{"tracking_id": trackingID})
		params["optional"] = string(optional)
	}

	signature, err := security.SignParams(params, c.settings.FlowSecretKey)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set("s", signature)

	c.logger.Payments().Info("Creating payment session",
		"provider", "flow", "orderId", orderID, "amount", params["amount"],
		"email", logging.SanitizeEmail(email), "hasTrackingId", trackingID != "")

	resp, err := c.httpClient.PostForm(c.settings.FlowAPIURL+"/payment/create", form)
	if err != nil {
		wrapped := fmt.Errorf("%w: payment create request failed: %v", failure.ErrProviderUnavailable, err)
		marker.SetError(wrapped)
		return nil, wrapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		wrapped := fmt.Errorf("%w: reading payment create response: %v", failure.ErrProviderUnavailable, err)
		marker.SetError(wrapped)
		return nil, wrapped
	}

	fields, err := decodeFlexibleBody(resp.Header.Get("Content-Type"), body)
	if err != nil {
		wrapped := fmt.Errorf("%w: undecodable payment create response: %v", failure.ErrProviderUnavailable, err)
		marker.SetError(wrapped)
		return nil, wrapped
	}

	if resp.StatusCode != http.StatusOK || fields["url"] == "" || fields["token"] == "" {
		c.logger.Payments().Error("Payment session rejected",
			"provider", "flow", "status", resp.StatusCode,
			"code", fields["code"], "message", fields["message"], "orderId", orderID)
		wrapped := fmt.Errorf("%w: payment create rejected (code=%s message=%s)",
			failure.ErrProviderUnavailable, fields["code"], fields["message"])
		marker.SetError(wrapped)
		return nil, wrapped
	}

	session := &payments.Session{
		OrderID:     orderID,
		Token:       fields["token"],
		RedirectURL: fields["url"] + "?token=" + fields["token"],
	}
	c.logger.Payments().Info("Payment session created",
		"provider", "flow", "orderId", orderID, "duration", time.Since(marker.StartTime))
	return session, nil
}

// GetStatus retrieves the current payment state of a Flow token.
func (c *Client) GetStatus(token string) (*payments.StatusInfo, error) {
	st, err := c.fetchStatus(token)
	if err != nil {
		return nil, err
	}

	return &payments.StatusInfo{
		OrderID:    st.CommerceOrder,
		Token:      token,
		Paid:       st.Status == c.settings.FlowPaidStatus,
		StatusCode: st.Status,
		Amount:     float64(st.Amount),
		Currency:   st.Currency,
		Date:       st.RequestDate,
		PayerEmail: st.Payer,
	}, nil
}

// fetchStatus signs and executes the payment/getStatus call.
func (c *Client) fetchStatus(token string) (*statusResponse, error) {
	marker := c.perf.StartOperation("gateway:get_status", "flow")
	defer c.perf.CompleteOperation(marker)

	if err := c.checkCredentials(); err != nil {
		marker.SetError(err)
		return nil, err
	}
	if token == "" {
		err := fmt.Errorf("%w: missing payment token", failure.ErrValidation)
		marker.SetError(err)
		return nil, err
	}

	params := map[string]string{
		"apiKey": c.settings.FlowAPIKey,
		"token":  token,
	}
	signature, err := security.SignParams(params, c.settings.FlowSecretKey)
	if err != nil {
		marker.SetError(err)
		return nil, err
	}

	query := url.Values{}
	query.Set("apiKey", c.settings.FlowAPIKey)
	query.Set("token", token)
	query.Set("s", signature)

	resp, err := c.httpClient.Get(c.settings.FlowAPIURL + "/payment/getStatus?" + query.Encode())
	if err != nil {
		wrapped := fmt.Errorf("%w: status request failed: %v", failure.ErrProviderUnavailable, err)
		marker.SetError(wrapped)
		return nil, wrapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		wrapped := fmt.Errorf("%w: reading status response: %v", failure.ErrProviderUnavailable, err)
		marker.SetError(wrapped)
		return nil, wrapped
	}

	var st statusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		wrapped := fmt.Errorf("%w: undecodable status response: %v", failure.ErrProviderUnavailable, err)
		marker.SetError(wrapped)
		return nil, wrapped
	}

	if resp.StatusCode != http.StatusOK || st.CommerceOrder == "" {
		c.logger.Payments().Error("Status lookup rejected",
			"provider", "flow", "status", resp.StatusCode, "code", st.Code, "message", st.Message)
		wrapped := fmt.Errorf("%w: status lookup rejected (code=%d message=%s)",
			failure.ErrProviderUnavailable, st.Code, st.Message)
		marker.SetError(wrapped)
		return nil, wrapped
	}

	marker.AddMetadata("orderId", st.CommerceOrder)
	marker.AddMetadata("statusCode", st.Status)
	return &st, nil
}

// decodeFlexibleBody handles Flow responses that may be JSON or
// form-encoded. Content-Type is the first hint; the body shape decides when
// the header lies.
func decodeFlexibleBody(contentType string, body []byte) (map[string]string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("empty body")
	}

	looksJSON := strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
	if strings.Contains(contentType, "application/json") || looksJSON {
		var raw map[string]any
		if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
			return nil, err
		}
		fields := make(map[string]string, len(raw))
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				fields[k] = val
			case float64:
				fields[k] = strconv.FormatFloat(val, 'f', -1, 64)
			}
		}
		return fields, nil
	}

	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	return fields, nil
}
