package handlers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/attribution"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/lead"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/payments"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/purchase"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

func testLogger() *logging.ChanneledLogger {
	cfg := logging.DefaultLoggerConfig()
	cfg.DefaultLevel = slog.LevelError
	logger, err := logging.NewChanneledLogger(cfg)
	if err != nil {
		panic(err)
	}
	return logger
}

func testSettings() *config.Settings {
	return &config.Settings{
		FlowPaidStatus:  2,
		PaymentCurrency: "CLP",
		DefaultAmount:   5000,
		BaseURL:         "https://funnel.example.cl",
		SuccessPath:     "/gracias",
		RetryPath:       "/try",
		EventSourceURL:  "https://funnel.example.cl",
	}
}

func testPerf() *performance.Tracker {
	return performance.NewTracker(nil)
}

// fakeGateway implements payments.Gateway with canned responses.
type fakeGateway struct {
	session    *payments.Session
	createErr  error
	status     *payments.StatusInfo
	statusErr  error
	statusSeen []string
}

func (f *fakeGateway) CreateSession(email string, amount float64, trackingID string) (*payments.Session, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.session, nil
}

func (f *fakeGateway) GetStatus(token string) (*payments.StatusInfo, error) {
	f.statusSeen = append(f.statusSeen, token)
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

// fakeAdapter implements payments.ProviderAdapter for one provider.
type fakeAdapter struct {
	provider  purchase.Provider
	conf      *payments.Confirmation
	verifyErr error
}

func (f *fakeAdapter) Provider() purchase.Provider { return f.provider }

func (f *fakeAdapter) ParseCallback(contentType string, body []byte) (*payments.Callback, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty callback body", failure.ErrValidation)
	}
	return &payments.Callback{Token: "tok_test", Raw: body}, nil
}

func (f *fakeAdapter) VerifyAndFetchStatus(cb *payments.Callback) (*payments.Confirmation, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.conf, nil
}

// fakeLedger keys rows by provider/order.
type fakeLedger struct {
	rows map[string]*purchase.Purchase
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[string]*purchase.Purchase)}
}

func (f *fakeLedger) InsertIfAbsent(p *purchase.Purchase) (*purchase.InsertResult, error) {
	key := string(p.Provider) + "/" + p.OrderID
	if existing, ok := f.rows[key]; ok {
		return &purchase.InsertResult{Inserted: false, Record: existing}, nil
	}
	f.rows[key] = p
	return &purchase.InsertResult{Inserted: true, Record: p}, nil
}

// fakeLeadRepo returns misses for everything unless primed.
type fakeLeadRepo struct {
	inserted []*lead.Lead
}

func (f *fakeLeadRepo) Insert(l *lead.Lead) (string, error) {
	f.inserted = append(f.inserted, l)
	return "lead_1", nil
}

func (f *fakeLeadRepo) FindByID(id string) (*lead.Lead, error) { return nil, nil }

func (f *fakeLeadRepo) FindByEmailOrPhone(email, phone string) (*lead.Lead, error) {
	return nil, nil
}

// fakeForwarder records forwarded events.
type fakeForwarder struct {
	events  []*attribution.Event
	sendErr error
}

func (f *fakeForwarder) SendEvent(ev *attribution.Event) (*attribution.Receipt, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.events = append(f.events, ev)
	return &attribution.Receipt{EventsReceived: 1}, nil
}

// fakeJournal records dead-lettered events.
type fakeJournal struct {
	entries []string
}

func (f *fakeJournal) Record(provider, orderID string, ev *attribution.Event, sendErr error) {
	f.entries = append(f.entries, provider+"/"+orderID)
}

func paidConfirmation() *payments.Confirmation {
	return &payments.Confirmation{
		Provider:    purchase.ProviderFlow,
		Paid:        true,
		StatusLabel: "paid",
		OrderID:     "order_01hx",
		Token:       "tok_test",
		Amount:      5000,
		Currency:    "CLP",
		Payer:       payments.Payer{Email: "buyer@example.cl"},
		Identity:    attribution.Trigger{Email: "buyer@example.cl"},
		EventTime:   time.Unix(1724900000, 0),
	}
}
