// Package container provides dependency injection for all singleton services
package container

import (
	"fmt"

	"github.com/AtRiskMedia/funnelgate-go/internal/application/services"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/payments"
	metaclient "github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/attribution/meta"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/payments/flow"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/payments/perfectpay"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/persistence/journal"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/persistence/supabase"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	Settings *config.Settings
	Logger   *logging.ChanneledLogger
	Perf     *performance.Tracker

	// Infrastructure
	FlowClient     *flow.Client
	MetaClient     *metaclient.Client
	Journal        *journal.Journal
	NotifyService  email.Service
	LeadRepository *supabase.LeadRepository
	PurchaseLedger *supabase.PurchaseRepository

	// Application services
	TrackingService *services.TrackingService
	PaymentService  *services.PaymentService
	WebhookService  *services.WebhookService
	AuthService     *services.AuthService
}

// NewContainer creates and wires all singleton services
func NewContainer(settings *config.Settings, logger *logging.ChanneledLogger) (*Container, error) {
	perf := performance.NewTracker(nil)

	storeClient, err := supabase.NewClient(
		settings.SupabaseURL,
		settings.SupabaseServiceKey,
		settings.SupabaseAnonKey,
		config.OutboundCallTimeout,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create store client: %w", err)
	}

	leadRepo := supabase.NewLeadRepository(storeClient, settings.LeadTable, logger)
	purchaseLedger := supabase.NewPurchaseRepository(storeClient, settings.PurchaseTable, logger)

	fwdJournal, err := journal.New(settings.JournalPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open forward journal: %w", err)
	}

	notifier, err := email.NewService(settings, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create email service: %w", err)
	}

	flowClient := flow.NewClient(settings, logger, perf)
	metaClient := metaclient.NewClient(settings, logger, perf)

	adapters := []payments.ProviderAdapter{
		flow.NewAdapter(flowClient, settings),
		perfectpay.NewAdapter(settings, logger),
	}

	return &Container{
		Settings: settings,
		Logger:   logger,
		Perf:     perf,

		FlowClient:     flowClient,
		MetaClient:     metaClient,
		Journal:        fwdJournal,
		NotifyService:  notifier,
		LeadRepository: leadRepo,
		PurchaseLedger: purchaseLedger,

		TrackingService: services.NewTrackingService(leadRepo, metaClient, settings, logger, perf),
		PaymentService:  services.NewPaymentService(flowClient, settings, logger),
		WebhookService: services.NewWebhookService(
			adapters, leadRepo, purchaseLedger, metaClient, fwdJournal, notifier,
			settings, logger, perf,
		),
		AuthService: services.NewAuthService(settings, logger),
	}, nil
}

// Close releases infrastructure resources held by the container.
func (c *Container) Close() error {
	if c.Journal != nil {
		return c.Journal.Close()
	}
	return nil
}
