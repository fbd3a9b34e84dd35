package supabase

import (
	"net/url"
	"time"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/lead"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/pkg/identity"
)

// LeadRepository is the PostgREST-backed implementation of lead.Repository.
type LeadRepository struct {
	client *Client
	table  string
	logger *logging.ChanneledLogger
}

// NewLeadRepository creates a new instance of the repository.
func NewLeadRepository(client *Client, table string, logger *logging.ChanneledLogger) *LeadRepository {
	return &LeadRepository{
		client: client,
		table:  table,
		logger: logger,
	}
}

// Insert stores a new lead and returns its assigned id.
func (r *LeadRepository) Insert(l *lead.Lead) (string, error) {
	start := time.Now()
	r.logger.Store().Debug("Inserting lead", "eventType", l.EventType, "email", logging.SanitizeEmail(l.Email))

	var inserted []lead.Lead
	if err := r.client.insert(r.table, l, &inserted); err != nil {
		r.logger.Store().Error("Failed to insert lead", "error", err.Error(), "eventType", l.EventType)
		return "", err
	}

	id := ""
	if len(inserted) > 0 {
		id = inserted[0].ID
	}
	r.logger.Store().Info("Lead inserted", "leadId", id, "duration", time.Since(start))
	return id, nil
}

// FindByID retrieves a lead by its unique identifier. Returns (nil, nil) when
// no row matches.
func (r *LeadRepository) FindByID(id string) (*lead.Lead, error) {
	start := time.Now()
	r.logger.Store().Debug("Loading lead by ID", "leadId", id)

	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("limit", "1")

	var rows []lead.Lead
	if err := r.client.get(r.table, query, &rows); err != nil {
		r.logger.Store().Error("Failed to load lead by ID", "error", err.Error(), "leadId", id)
		return nil, err
	}
	if len(rows) == 0 {
		r.logger.Store().Debug("Lead not found by ID", "leadId", id)
		return nil, nil
	}

	r.logger.Store().Info("Lead loaded by ID", "leadId", id, "duration", time.Since(start))
	return &rows[0], nil
}

// FindByEmailOrPhone retrieves the most recent lead matching the email, or
// failing that, the normalized phone. Returns (nil, nil) when neither hits.
func (r *LeadRepository) FindByEmailOrPhone(email, phone string) (*lead.Lead, error) {
	if email != "" {
		l, err := r.findLatest("email", email)
		if err != nil || l != nil {
			return l, err
		}
	}
	if normalized := identity.NormalizePhone(phone); normalized != "" {
		return r.findLatest("phone", normalized)
	}
	return nil, nil
}

func (r *LeadRepository) findLatest(column, value string) (*lead.Lead, error) {
	start := time.Now()
	r.logger.Store().Debug("Loading latest lead", "column", column)

	query := url.Values{}
	query.Set(column, "eq."+value)
	query.Set("order", "timestamp.desc")
	query.Set("limit", "1")

	var rows []lead.Lead
	if err := r.client.get(r.table, query, &rows); err != nil {
		r.logger.Store().Error("Failed to load lead", "error", err.Error(), "column", column)
		return nil, err
	}
	if len(rows) == 0 {
		r.logger.Store().Debug("Lead not found", "column", column)
		return nil, nil
	}

	r.logger.Store().Info("Lead loaded", "column", column, "leadId", rows[0].ID, "duration", time.Since(start))
	return &rows[0], nil
}
