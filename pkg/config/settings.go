package config

import (
	"strings"
	"time"
)

// Settings carries all credentials and endpoints for the external services
// FunnelGate talks to. It is constructed once at process start and injected
// into each component constructor; nothing reads these from the environment
// after boot. Missing secrets are not fatal at construction time -- each
// client reports a configuration error on first use instead, so a deploy
// with a partial configuration still serves the endpoints it can.
type Settings struct {
	// Flow.cl payment gateway
	FlowAPIKey      string
	FlowSecretKey   string
	FlowAPIURL      string
	FlowPaidStatus  int
	PaymentSubject  string
	PaymentCurrency string
	DefaultAmount   int
	PaymentTimeout  time.Duration

	// Browser-facing URLs handed to Flow when a session is created.
	BaseURL         string
	ReturnURL       string
	ConfirmationURL string
	SuccessPath     string
	RetryPath       string

	// Perfect Pay
	PerfectPayToken string

	// Meta Conversions API
	MetaPixelID     string
	MetaAccessToken string
	MetaAPIVersion  string
	EventSourceURL  string

	// Supabase REST (lead store + purchase ledger)
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	LeadTable          string
	PurchaseTable      string

	// Sysop surface
	JWTSecret         string
	SysopPasswordHash string

	// Operator notifications (Resend)
	ResendAPIKey    string
	NotifyEmailTo   string
	NotifyEmailFrom string

	// Local forward journal
	JournalPath string
}

// New builds Settings from the environment (plus .env overlay).
func New() *Settings {
	loadEnvFile()

	baseURL := normalizeURL(getEnvString("FUNNEL_BASE_URL", "https://hackermillon.online"))

	s := &Settings{
		FlowAPIKey:      getEnvSecret("FLOW_API_KEY"),
		FlowSecretKey:   getEnvSecret("FLOW_SECRET_KEY"),
		FlowAPIURL:      getEnvString("FLOW_API_URL", "https://www.flow.cl/api"),
		FlowPaidStatus:  getEnvInt("FLOW_PAID_STATUS", 2),
		PaymentSubject:  getEnvString("PAYMENT_SUBJECT", "Pago de Servicio"),
		PaymentCurrency: getEnvString("PAYMENT_CURRENCY", "CLP"),
		DefaultAmount:   getEnvInt("PAYMENT_DEFAULT_AMOUNT", 5000),
		PaymentTimeout:  getEnvDuration("PAYMENT_LINK_TIMEOUT", time.Hour),

		BaseURL:     baseURL,
		SuccessPath: getEnvString("PAYMENT_SUCCESS_PATH", "/gracias"),
		RetryPath:   getEnvString("PAYMENT_RETRY_PATH", "/try"),

		PerfectPayToken: getEnvSecret("PERFECT_PAY_PUBLIC_TOKEN"),

		MetaPixelID:     getEnvSecret("META_PIXEL_ID"),
		MetaAccessToken: getEnvSecret("META_ACCESS_TOKEN"),
		MetaAPIVersion:  getEnvString("META_API_VERSION", "v18.0"),
		EventSourceURL:  getEnvString("EVENT_SOURCE_URL", baseURL),

		SupabaseURL:        strings.TrimRight(getEnvSecret("SUPABASE_URL"), "/"),
		SupabaseAnonKey:    getEnvSecret("SUPABASE_ANON_KEY"),
		SupabaseServiceKey: getEnvSecret("SUPABASE_SERVICE_ROLE_KEY"),
		LeadTable:          getEnvString("SUPABASE_LEAD_TABLE", "funnel_leads"),
		PurchaseTable:      getEnvString("SUPABASE_PURCHASE_TABLE", "funnel_purchases"),

		JWTSecret:         getEnvSecret("JWT_SECRET"),
		SysopPasswordHash: getEnvSecret("SYSOP_PASSWORD_HASH"),

		ResendAPIKey:    getEnvSecret("RESEND_API_KEY"),
		NotifyEmailTo:   getEnvString("NOTIFY_EMAIL_TO", ""),
		NotifyEmailFrom: getEnvString("NOTIFY_EMAIL_FROM", "sales@funnelgate.local"),

		JournalPath: getEnvString("FORWARD_JOURNAL_PATH", "forward_journal.db"),
	}

	s.ReturnURL = normalizeURL(getEnvString("FLOW_URL_RETURN", baseURL+"/api/v1/payment-return"))
	s.ConfirmationURL = normalizeURL(getEnvString("FLOW_URL_CONFIRMATION", baseURL+"/api/v1/webhook/flow"))

	return s
}

// normalizeURL guarantees an https scheme on operator-supplied URLs; Flow
// rejects payment sessions whose callback URLs are missing a scheme.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	return strings.TrimRight(raw, "/")
}
