// Package purchase defines the confirmed-payment record and the ledger
// contract that acts as the pipeline's idempotency gate.
package purchase

import (
	"encoding/json"
	"time"
)

// Provider identifies the payment provider that produced an order.
type Provider string

const (
	ProviderFlow       Provider = "flow"
	ProviderPerfectPay Provider = "perfectpay"
)

// StatusPaid is the gateway's numeric code for a completed payment. Ledger
// rows from every provider use it so the table stays queryable by one
// convention.
const StatusPaid = 2

// Purchase is one confirmed payment. The ledger enforces uniqueness on
// (provider, order_id); a webhook delivered N times for the same order still
// yields exactly one row. JSON tags match the ledger columns.
type Purchase struct {
	ID         string          `json:"id,omitempty"`
	Provider   Provider        `json:"provider"`
	OrderID    string          `json:"order_id"`
	Token      string          `json:"token,omitempty"`
	TrackingID string          `json:"tracking_id,omitempty"`
	Amount     float64         `json:"amount"`
	Currency   string          `json:"currency"`
	Status     int             `json:"status"`
	PayerEmail string          `json:"payer_email,omitempty"`
	PayerName  string          `json:"payer_name,omitempty"`
	PayerPhone string          `json:"payer_phone,omitempty"`
	RawData    json.RawMessage `json:"raw_data,omitempty"`
	CreatedAt  time.Time       `json:"created_at,omitempty"`
}

// InsertResult reports whether InsertIfAbsent created a new row. Inserted
// false means a duplicate delivery: the existing record is returned and
// nothing downstream may forward again.
type InsertResult struct {
	Inserted bool
	Record   *Purchase
}

// Ledger is the purchase store contract. The store's unique constraint is
// the sole mutual-exclusion mechanism between concurrent duplicate webhook
// deliveries; implementations must treat a constraint violation as the
// expected duplicate signal, not an exceptional error.
type Ledger interface {
	InsertIfAbsent(p *Purchase) (*InsertResult, error)
}
