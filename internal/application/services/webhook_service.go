package services

import (
	"fmt"
	"log/slog"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/attribution"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/lead"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/payments"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/purchase"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

// Journal is the dead-letter sink for events that could not be forwarded.
type Journal interface {
	Record(provider, orderID string, ev *attribution.Event, sendErr error)
}

// WebhookOutcome summarizes one processed callback. It is returned to the
// provider in the 200 body; providers ignore it, humans reading delivery logs
// do not.
type WebhookOutcome struct {
	Provider string `json:"provider"`
	OrderID  string `json:"order_id,omitempty"`
	Outcome  string `json:"outcome"`

	LeadMatched bool   `json:"lead_matched"`
	MatchMethod string `json:"match_method,omitempty"`

	Forwarded    bool   `json:"forwarded"`
	ForwardError string `json:"forward_error,omitempty"`
}

// Outcome labels.
const (
	OutcomeNotPaid          = "not_paid"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeNewPurchase      = "new_purchase"
)

// WebhookService processes provider payment confirmations. The pipeline is
// strictly ordered: parse, verify, gate through the ledger, enrich, forward.
// Everything after the ledger insert must degrade to a 200 because the
// purchase row already exists and a provider retry would be rejected as a
// duplicate, permanently losing whatever leg failed.
type WebhookService struct {
	adapters  map[purchase.Provider]payments.ProviderAdapter
	leads     lead.Repository
	ledger    purchase.Ledger
	forwarder attribution.Forwarder
	journal   Journal
	notifier  email.Service
	settings  *config.Settings
	logger    *logging.ChanneledLogger
	perf      *performance.Tracker
}

// NewWebhookService creates the webhook orchestrator. notifier may be nil.
func NewWebhookService(
	adapters []payments.ProviderAdapter,
	leads lead.Repository,
	ledger purchase.Ledger,
	forwarder attribution.Forwarder,
	journal Journal,
	notifier email.Service,
	settings *config.Settings,
	logger *logging.ChanneledLogger,
	perf *performance.Tracker,
) *WebhookService {
	byProvider := make(map[purchase.Provider]payments.ProviderAdapter, len(adapters))
	for _, a := range adapters {
		byProvider[a.Provider()] = a
	}

	return &WebhookService{
		adapters:  byProvider,
		leads:     leads,
		ledger:    ledger,
		forwarder: forwarder,
		journal:   journal,
		notifier:  notifier,
		settings:  settings,
		logger:    logger,
		perf:      perf,
	}
}

// ProcessCallback runs one provider callback through the pipeline. Errors
// returned before the ledger insert map to non-200 responses so the provider
// retries; after the insert, failures are embedded in the outcome instead.
func (s *WebhookService) ProcessCallback(providerName, contentType string, body []byte) (*WebhookOutcome, error) {
	marker := s.perf.StartOperation("webhook:process", providerName)
	defer s.perf.CompleteOperation(marker)

	adapter, ok := s.adapters[purchase.Provider(providerName)]
	if !ok {
		err := fmt.Errorf("%w: unknown provider %q", failure.ErrValidation, providerName)
		marker.SetError(err)
		return nil, err
	}

	log := s.logger.WithProvider(logging.ChannelWebhook, providerName)
	log.Info("Callback received", "contentType", contentType, "bytes", len(body))

	cb, err := adapter.ParseCallback(contentType, body)
	if err != nil {
		log.Warn("Callback body rejected", "error", err.Error())
		marker.SetError(err)
		return nil, err
	}

	conf, err := adapter.VerifyAndFetchStatus(cb)
	if err != nil {
		log.Error("Callback verification failed", "error", err.Error())
		marker.SetError(err)
		return nil, err
	}

	outcome := &WebhookOutcome{Provider: providerName, OrderID: conf.OrderID}
	marker.AddMetadata("orderId", conf.OrderID)

	if !conf.Paid {
		log.Info("Callback acknowledged without action",
			"orderId", conf.OrderID, "statusLabel", conf.StatusLabel)
		outcome.Outcome = OutcomeNotPaid
		return outcome, nil
	}

	result, err := s.ledger.InsertIfAbsent(conf.ToPurchase())
	if err != nil {
		log.Error("Ledger insert failed", "error", err.Error(), "orderId", conf.OrderID)
		marker.SetError(err)
		return nil, fmt.Errorf("%w: ledger unavailable: %v", failure.ErrProviderUnavailable, err)
	}

	if !result.Inserted {
		// A concurrent or repeated delivery already owns this purchase; it
		// forwarded (or journaled) the event. Re-forwarding here would
		// double-count the conversion.
		log.Info("Duplicate delivery suppressed", "orderId", conf.OrderID)
		outcome.Outcome = OutcomeAlreadyProcessed
		return outcome, nil
	}

	outcome.Outcome = OutcomeNewPurchase
	log.Info("New purchase recorded", "orderId", conf.OrderID, "amount", conf.Amount, "currency", conf.Currency)

	matched, method := s.correlateLead(conf, log)
	outcome.LeadMatched = matched != nil
	outcome.MatchMethod = method

	s.forward(conf, matched, outcome, log)
	s.notify(result.Record, log)

	return outcome, nil
}

// correlateLead resolves the lead behind a paid confirmation: tracking id
// first, then email, then phone. Lookup failures only cost enrichment, so
// they are logged and treated as a miss.
func (s *WebhookService) correlateLead(conf *payments.Confirmation, log *slog.Logger) (*lead.Lead, string) {
	if conf.TrackingID != "" {
		l, err := s.leads.FindByID(conf.TrackingID)
		if err != nil {
			log.Warn("Lead lookup by tracking id failed", "error", err.Error(), "trackingId", conf.TrackingID)
		} else if l != nil {
			log.Info("Lead matched by tracking id", "trackingId", conf.TrackingID)
			return l, "tracking_id"
		}
	}

	payerEmail := conf.Payer.Email
	payerPhone := conf.Payer.Phone
	if payerEmail == "" && payerPhone == "" {
		return nil, ""
	}

	l, err := s.leads.FindByEmailOrPhone(payerEmail, payerPhone)
	if err != nil {
		log.Warn("Lead lookup by contact failed", "error", err.Error())
		return nil, ""
	}
	if l == nil {
		log.Info("No lead matched, forwarding with payer identity only")
		return nil, ""
	}

	method := "email"
	if payerEmail == "" {
		method = "phone"
	}
	log.Info("Lead matched by contact", "method", method, "leadId", l.ID)
	return l, method
}

// forward builds and sends the Purchase event. The event id is the order id:
// deterministic across redeliveries, so even if two processes raced past the
// ledger the platform dedups the conversion.
func (s *WebhookService) forward(conf *payments.Confirmation, matched *lead.Lead, outcome *WebhookOutcome, log *slog.Logger) {
	custom := map[string]any{
		"currency":     conf.Currency,
		"value":        conf.Amount,
		"content_type": "product",
		"content_ids":  []string{firstNonEmptyString(conf.ContentID, conf.OrderID)},
		"content_name": conf.ContentName,
		"order_id":     conf.OrderID,
		"num_items":    conf.NumItems,
	}
	for k, v := range conf.UTM {
		custom[k] = v
	}
	attribution.MergeUTM(custom, matched)

	ev := &attribution.Event{
		EventName:      attribution.EventPurchase,
		EventTime:      conf.EventTime.Unix(),
		EventID:        conf.OrderID,
		EventSourceURL: firstNonEmptyString(conf.SourceURL, s.settings.EventSourceURL),
		ActionSource:   "website",
		UserData:       attribution.BuildUserData(conf.Identity, matched),
		CustomData:     custom,
	}

	receipt, err := s.forwarder.SendEvent(ev)
	if err != nil {
		log.Error("Purchase forward failed, journaling", "error", err.Error(), "orderId", conf.OrderID)
		outcome.ForwardError = err.Error()
		if s.journal != nil {
			s.journal.Record(string(conf.Provider), conf.OrderID, ev, err)
		}
		return
	}

	outcome.Forwarded = receipt.EventsReceived > 0
	log.Info("Purchase forwarded", "orderId", conf.OrderID, "eventsReceived", receipt.EventsReceived)
}

func (s *WebhookService) notify(p *purchase.Purchase, log *slog.Logger) {
	if s.notifier == nil || p == nil {
		return
	}
	if err := s.notifier.SendSaleNotification(p); err != nil {
		log.Error("Sale notification failed", "error", err.Error(), "orderId", p.OrderID)
	}
}
