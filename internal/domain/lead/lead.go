// Package lead defines the anonymous visitor record captured at page-view
// time and the repository contract for the external lead store.
package lead

import "time"

// Lead is the visitor record keyed by the generated tracking id. It is
// written once by the page-view handler and never mutated; checkout attaches
// its id to the payment session and the webhook reads it back to enrich a
// purchase. JSON tags match the lead store columns.
type Lead struct {
	ID          string `json:"id,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Country     string `json:"country,omitempty"`
	ZipCode     string `json:"zip_code,omitempty"`

	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	FBP       string `json:"fbp,omitempty"`
	FBC       string `json:"fbc,omitempty"`
	FBCLID    string `json:"fbclid,omitempty"`
	GCLID     string `json:"gclid,omitempty"`

	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`

	PageURL   string `json:"page_url,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	Language  string `json:"language,omitempty"`
	EventType string `json:"event_type,omitempty"`
	EventID   string `json:"event_id,omitempty"`

	Timestamp time.Time  `json:"timestamp,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Repository is the lead store contract. Lookups are read-only; a miss is a
// normal anonymous-purchase case expressed as (nil, nil), never an error.
type Repository interface {
	// Insert stores a new lead and returns the store-assigned tracking id.
	// Single attempt, no retry: callers log and swallow failures so a store
	// outage never surfaces to the visitor.
	Insert(l *Lead) (string, error)

	// FindByID resolves a lead by tracking id.
	FindByID(id string) (*Lead, error)

	// FindByEmailOrPhone tries the most recent lead by email first, then by
	// normalized phone. Used only when the stronger tracking-id correlation
	// is unavailable.
	FindByEmailOrPhone(email, phone string) (*Lead, error)
}
