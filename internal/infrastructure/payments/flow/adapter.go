package flow

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/attribution"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/payments"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/purchase"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

// statusLabels maps Flow's numeric payment states to ledger labels.
var statusLabels = map[int]string{
	1: "pending",
	2: "paid",
	3: "rejected",
	4: "annulled",
}

// Adapter normalizes Flow confirmation callbacks. Flow's webhook carries only
// a token; the authoritative payment state always comes from a signed
// getStatus call, which doubles as callback authentication.
type Adapter struct {
	client   *Client
	settings *config.Settings
}

// NewAdapter creates the Flow callback adapter.
func NewAdapter(client *Client, settings *config.Settings) *Adapter {
	return &Adapter{client: client, settings: settings}
}

func (a *Adapter) Provider() purchase.Provider {
	return purchase.ProviderFlow
}

// ParseCallback extracts the payment token from a confirmation body. Flow
// documents form-encoded callbacks but some integrations relay them as JSON,
// so both shapes are accepted.
func (a *Adapter) ParseCallback(contentType string, body []byte) (*payments.Callback, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty callback body", failure.ErrValidation)
	}

	token := ""
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
			return nil, fmt.Errorf("%w: undecodable callback body: %v", failure.ErrValidation, err)
		}
		token = payload.Token
	} else {
		values, err := url.ParseQuery(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: undecodable callback body: %v", failure.ErrValidation, err)
		}
		token = values.Get("token")
	}

	if token == "" {
		return nil, fmt.Errorf("%w: callback carries no payment token", failure.ErrValidation)
	}

	raw, _ := json.Marshal(map[string]string{"token": token})
	return &payments.Callback{Token: token, Raw: raw}, nil
}

// VerifyAndFetchStatus resolves the callback token against the Flow API and
// maps the result onto a canonical confirmation.
func (a *Adapter) VerifyAndFetchStatus(cb *payments.Callback) (*payments.Confirmation, error) {
	st, err := a.client.fetchStatus(cb.Token)
	if err != nil {
		return nil, err
	}

	label := statusLabels[st.Status]
	if label == "" {
		label = fmt.Sprintf("unknown_%d", st.Status)
	}

	eventTime := time.Now().UTC()
	if st.RequestDate != "" {
		if parsed, perr := time.Parse("2006-01-02 15:04:05", st.RequestDate); perr == nil {
			eventTime = parsed.UTC()
		}
	}

	raw, _ := json.Marshal(st)

	return &payments.Confirmation{
		Provider:    purchase.ProviderFlow,
		Paid:        st.Status == a.settings.FlowPaidStatus,
		StatusLabel: label,
		OrderID:     st.CommerceOrder,
		Token:       cb.Token,
		Amount:      float64(st.Amount),
		Currency:    st.Currency,
		TrackingID:  st.Optional.TrackingID(),
		Payer:       payments.Payer{Email: st.Payer},
		Identity: attribution.Trigger{
			Email: st.Payer,
		},
		EventTime:   eventTime,
		SourceURL:   a.settings.EventSourceURL,
		ContentName: st.Subject,
		NumItems:    1,
		Raw:         raw,
	}, nil
}
