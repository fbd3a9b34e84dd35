package supabase

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/purchase"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
)

// PurchaseRepository is the PostgREST-backed implementation of
// purchase.Ledger. The table's unique constraint on (provider, order_id) is
// the only mutual exclusion in the pipeline; no advisory locks, no
// read-before-write.
type PurchaseRepository struct {
	client *Client
	table  string
	logger *logging.ChanneledLogger
}

// NewPurchaseRepository creates a new instance of the repository.
func NewPurchaseRepository(client *Client, table string, logger *logging.ChanneledLogger) *PurchaseRepository {
	return &PurchaseRepository{
		client: client,
		table:  table,
		logger: logger,
	}
}

// InsertIfAbsent attempts to record the purchase. A unique-constraint
// conflict means another delivery won the race: the existing row is fetched
// and returned with Inserted=false. A transport error gets one re-query
// before giving up, since the insert may have landed before the connection
// dropped.
func (r *PurchaseRepository) InsertIfAbsent(p *purchase.Purchase) (*purchase.InsertResult, error) {
	start := time.Now()
	r.logger.Store().Debug("Recording purchase", "provider", p.Provider, "orderId", p.OrderID)

	var inserted []purchase.Purchase
	err := r.client.insert(r.table, p, &inserted)
	if err == nil {
		rec := p
		if len(inserted) > 0 {
			rec = &inserted[0]
		}
		r.logger.Store().Info("Purchase recorded",
			"provider", p.Provider, "orderId", p.OrderID, "duration", time.Since(start))
		return &purchase.InsertResult{Inserted: true, Record: rec}, nil
	}

	if IsUniqueViolation(err) {
		r.logger.Store().Info("Purchase already recorded, fetching existing row",
			"provider", p.Provider, "orderId", p.OrderID)

		existing, findErr := r.findByProviderOrder(p.Provider, p.OrderID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			// A conflict without a visible row means the ledger cannot be
			// trusted as an idempotency gate right now.
			return nil, fmt.Errorf("ledger conflict for %s/%s but existing row not found", p.Provider, p.OrderID)
		}
		return &purchase.InsertResult{Inserted: false, Record: existing}, nil
	}

	if errors.Is(err, failure.ErrProviderUnavailable) {
		r.logger.Store().Warn("Purchase insert failed in transit, re-querying ledger",
			"provider", p.Provider, "orderId", p.OrderID, "error", err.Error())

		existing, findErr := r.findByProviderOrder(p.Provider, p.OrderID)
		if findErr == nil && existing != nil {
			return &purchase.InsertResult{Inserted: false, Record: existing}, nil
		}
		return nil, err
	}

	r.logger.Store().Error("Failed to record purchase",
		"error", err.Error(), "provider", p.Provider, "orderId", p.OrderID)
	return nil, err
}

func (r *PurchaseRepository) findByProviderOrder(provider purchase.Provider, orderID string) (*purchase.Purchase, error) {
	query := url.Values{}
	query.Set("provider", "eq."+string(provider))
	query.Set("order_id", "eq."+orderID)
	query.Set("limit", "1")

	var rows []purchase.Purchase
	if err := r.client.get(r.table, query, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
