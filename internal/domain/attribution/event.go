// Package attribution defines the canonical event sent to the ad platform's
// conversions API and the identity-merging rules used to build it.
package attribution

import (
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/lead"
	"github.com/AtRiskMedia/funnelgate-go/pkg/identity"
)

// Event names forwarded by this system.
const (
	EventPageView         = "PageView"
	EventInitiateCheckout = "InitiateCheckout"
	EventPurchase         = "Purchase"
)

// Sentinels substituted for the two fields the remote API requires; a send
// with degraded identity beats no send, the platform scores match quality
// itself.
const (
	FallbackIP        = "0.0.0.0"
	FallbackUserAgent = "Unknown"
)

// UserData is the advanced-matching identity block. Hashed fields carry
// lowercase-hex SHA-256 values; fbp/fbc/ip/ua travel in clear text per the
// platform contract.
type UserData struct {
	Em      string `json:"em,omitempty"`
	Ph      string `json:"ph,omitempty"`
	Fn      string `json:"fn,omitempty"`
	Ln      string `json:"ln,omitempty"`
	Db      string `json:"db,omitempty"`
	Ct      string `json:"ct,omitempty"`
	St      string `json:"st,omitempty"`
	Country string `json:"country,omitempty"`
	Zp      string `json:"zp,omitempty"`

	FBP             string `json:"fbp,omitempty"`
	FBC             string `json:"fbc,omitempty"`
	ClientIPAddress string `json:"client_ip_address,omitempty"`
	ClientUserAgent string `json:"client_user_agent,omitempty"`
}

// HasIdentifier reports whether at least one matching signal is present.
// The remote API rejects events without any identifier.
func (u *UserData) HasIdentifier() bool {
	return u.Em != "" || u.Ph != "" || u.Fn != "" || u.Ln != "" ||
		u.FBP != "" || u.FBC != "" || u.ClientIPAddress != "" || u.ClientUserAgent != ""
}

// Event is the payload forwarded to the conversions API. EventID must be
// derived from a business key (order id, payment token), never wall-clock
// time, so the platform's own dedup is a second line of defense behind the
// ledger's unique constraint.
type Event struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	ActionSource   string         `json:"action_source"`
	UserData       UserData       `json:"user_data"`
	CustomData     map[string]any `json:"custom_data,omitempty"`
}

// Trigger holds the plain-text identity carried by the immediate payload
// (tracking request or provider callback) before hashing.
type Trigger struct {
	Email       string
	Phone       string
	FullName    string
	FirstName   string
	LastName    string
	DateOfBirth string
	City        string
	State       string
	Country     string
	ZipCode     string
	IP          string
	UserAgent   string
	FBP         string
	FBC         string
}

// BuildUserData merges trigger identity with lead-store data, trigger first,
// never overwriting a present field. Missing ip/ua are substituted with the
// documented sentinels.
func BuildUserData(t Trigger, l *lead.Lead) UserData {
	u := UserData{
		Em:              identity.NormalizeAndHash(t.Email),
		Ph:              identity.HashPhone(t.Phone),
		Db:              identity.NormalizeAndHash(t.DateOfBirth),
		Ct:              identity.NormalizeAndHash(t.City),
		St:              identity.NormalizeAndHash(t.State),
		Country:         identity.NormalizeAndHash(t.Country),
		Zp:              identity.NormalizeAndHash(t.ZipCode),
		FBP:             t.FBP,
		FBC:             t.FBC,
		ClientIPAddress: t.IP,
		ClientUserAgent: t.UserAgent,
	}

	first, last := t.FirstName, t.LastName
	if first == "" && last == "" && t.FullName != "" {
		first, last = identity.SplitName(t.FullName)
	}
	u.Fn = identity.NormalizeAndHash(first)
	u.Ln = identity.NormalizeAndHash(last)

	if l != nil {
		fillGap(&u.Em, identity.NormalizeAndHash(l.Email))
		fillGap(&u.Ph, identity.HashPhone(l.Phone))
		fillGap(&u.Fn, identity.NormalizeAndHash(l.FirstName))
		fillGap(&u.Ln, identity.NormalizeAndHash(l.LastName))
		fillGap(&u.Db, identity.NormalizeAndHash(l.DateOfBirth))
		fillGap(&u.Ct, identity.NormalizeAndHash(l.City))
		fillGap(&u.St, identity.NormalizeAndHash(l.State))
		fillGap(&u.Country, identity.NormalizeAndHash(l.Country))
		fillGap(&u.Zp, identity.NormalizeAndHash(l.ZipCode))
		fillGap(&u.FBP, l.FBP)
		fillGap(&u.FBC, l.FBC)
		fillGap(&u.ClientIPAddress, l.IP)
		fillGap(&u.ClientUserAgent, l.UserAgent)
	}

	if u.ClientIPAddress == "" {
		u.ClientIPAddress = FallbackIP
	}
	if u.ClientUserAgent == "" {
		u.ClientUserAgent = FallbackUserAgent
	}

	return u
}

func fillGap(dst *string, value string) {
	if *dst == "" && value != "" {
		*dst = value
	}
}

// MergeUTM copies the lead's campaign attribution into custom_data without
// overwriting values already present from the trigger payload.
func MergeUTM(custom map[string]any, l *lead.Lead) {
	if l == nil {
		return
	}
	utms := map[string]string{
		"utm_source":   l.UTMSource,
		"utm_medium":   l.UTMMedium,
		"utm_campaign": l.UTMCampaign,
		"utm_term":     l.UTMTerm,
		"utm_content":  l.UTMContent,
	}
	for k, v := range utms {
		if v == "" {
			continue
		}
		if _, ok := custom[k]; !ok {
			custom[k] = v
		}
	}
}

// Forwarder sends a canonical event to the ad platform. Implementations wrap
// every failure in failure.ErrForwardingFailed; a failed forward never fails
// the webhook that triggered it.
type Forwarder interface {
	SendEvent(ev *Event) (*Receipt, error)
}

// Receipt is the remote platform's acknowledgement.
type Receipt struct {
	EventsReceived int    `json:"events_received"`
	FBTraceID      string `json:"fbtrace_id,omitempty"`
}
