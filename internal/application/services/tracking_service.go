// Package services contains the application services orchestrating tracking,
// checkout, webhook processing and the sysop surface.
package services

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/attribution"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/lead"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

// TrackingRequest is the browser-side tracking payload shared by PageView and
// InitiateCheckout.
type TrackingRequest struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`

	FBP    string `json:"fbp"`
	FBC    string `json:"fbc"`
	FBCLID string `json:"fbclid"`
	GCLID  string `json:"gclid"`

	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMTerm     string `json:"utm_term"`
	UTMContent  string `json:"utm_content"`

	PageURL   string `json:"page_url"`
	Referrer  string `json:"referrer"`
	Language  string `json:"language"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`

	Currency string  `json:"currency"`
	Value    float64 `json:"value"`

	Timestamp string `json:"timestamp"`
	EventID   string `json:"event_id"`
}

// TrackingResult reports what happened to each leg of a tracking request.
// Partial failures still produce a 200; the per-leg reports let the frontend
// observe them without depending on them.
type TrackingResult struct {
	EventID  string        `json:"event_id"`
	Meta     ForwardReport `json:"meta"`
	Supabase StoreReport   `json:"supabase"`
}

// ForwardReport is the ad-platform leg of a tracking result.
type ForwardReport struct {
	Sent  bool   `json:"sent"`
	Error string `json:"error,omitempty"`
}

// StoreReport is the lead-store leg of a tracking result.
type StoreReport struct {
	Saved  bool   `json:"saved"`
	LeadID string `json:"lead_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// TrackingService records visitor events and forwards them to the ad
// platform.
type TrackingService struct {
	leads     lead.Repository
	forwarder attribution.Forwarder
	settings  *config.Settings
	logger    *logging.ChanneledLogger
	perf      *performance.Tracker
}

// NewTrackingService creates the tracking service.
func NewTrackingService(leads lead.Repository, forwarder attribution.Forwarder, settings *config.Settings, logger *logging.ChanneledLogger, perf *performance.Tracker) *TrackingService {
	return &TrackingService{
		leads:     leads,
		forwarder: forwarder,
		settings:  settings,
		logger:    logger,
		perf:      perf,
	}
}

// ProcessPageView stores the visitor as a lead and forwards a PageView event.
// The store insert and the forward fail independently; neither failure is
// allowed to mask the other or fail the request.
func (s *TrackingService) ProcessPageView(req *TrackingRequest) (*TrackingResult, error) {
	marker := s.perf.StartOperation("tracking:pageview", "")
	defer s.perf.CompleteOperation(marker)

	if req.IP == "" && req.UserAgent == "" {
		err := fmt.Errorf("%w: at least ip or user_agent is required", failure.ErrValidation)
		marker.SetError(err)
		return nil, err
	}

	eventTime := s.resolveEventTime(req.Timestamp)
	eventID := req.EventID
	if eventID == "" {
		eventID = generateTrackingEventID("pageview", req, eventTime)
	}

	result := &TrackingResult{EventID: eventID}

	leadID, err := s.leads.Insert(s.buildLead(req, attribution.EventPageView, eventID, eventTime))
	if err != nil {
		// Attribution still runs on a dead lead store.
		s.logger.Tracking().Error("Failed to store pageview lead", "error", err.Error(), "eventId", eventID)
		result.Supabase.Error = err.Error()
	} else {
		result.Supabase.Saved = true
		result.Supabase.LeadID = leadID
	}

	userData := attribution.BuildUserData(s.triggerFrom(req), nil)
	if !userData.HasIdentifier() {
		s.logger.Tracking().Warn("Pageview carries no matching identifiers, skipping forward", "eventId", eventID)
		return result, nil
	}

	custom := map[string]any{
		"content_name":     firstNonEmptyString(req.PageURL, "Landing Page"),
		"content_category": "landing_page",
	}
	s.mergeRequestUTM(custom, req)

	receipt, err := s.forwarder.SendEvent(&attribution.Event{
		EventName:      attribution.EventPageView,
		EventTime:      eventTime.Unix(),
		EventID:        eventID,
		EventSourceURL: firstNonEmptyString(req.PageURL, s.settings.EventSourceURL),
		ActionSource:   "website",
		UserData:       userData,
		CustomData:     custom,
	})
	if err != nil {
		s.logger.Tracking().Error("Failed to forward pageview", "error", err.Error(), "eventId", eventID)
		result.Meta.Error = err.Error()
		return result, nil
	}

	result.Meta.Sent = receipt.EventsReceived > 0
	s.logger.Tracking().Info("Pageview processed",
		"eventId", eventID, "leadId", result.Supabase.LeadID, "forwarded", result.Meta.Sent)
	return result, nil
}

// ProcessInitiateCheckout forwards an InitiateCheckout event. No lead row is
// written; the visitor was already captured by the pageview.
func (s *TrackingService) ProcessInitiateCheckout(req *TrackingRequest) (*TrackingResult, error) {
	marker := s.perf.StartOperation("tracking:initiate_checkout", "")
	defer s.perf.CompleteOperation(marker)

	eventTime := s.resolveEventTime(req.Timestamp)
	eventID := req.EventID
	if eventID == "" {
		eventID = generateTrackingEventID("initiatecheckout", req, eventTime)
	}

	result := &TrackingResult{EventID: eventID}

	currency := firstNonEmptyString(req.Currency, s.settings.PaymentCurrency)

	receipt, err := s.forwarder.SendEvent(&attribution.Event{
		EventName:      attribution.EventInitiateCheckout,
		EventTime:      eventTime.Unix(),
		EventID:        eventID,
		EventSourceURL: firstNonEmptyString(req.PageURL, s.settings.EventSourceURL),
		ActionSource:   "website",
		UserData:       attribution.BuildUserData(s.triggerFrom(req), nil),
		CustomData: map[string]any{
			"content_name":     "Checkout",
			"content_category": "checkout",
			"currency":         currency,
			"value":            req.Value,
		},
	})
	if err != nil {
		s.logger.Tracking().Error("Failed to forward initiate checkout", "error", err.Error(), "eventId", eventID)
		result.Meta.Error = err.Error()
		return result, nil
	}

	result.Meta.Sent = receipt.EventsReceived > 0
	s.logger.Tracking().Info("Initiate checkout processed", "eventId", eventID, "forwarded", result.Meta.Sent)
	return result, nil
}

func (s *TrackingService) resolveEventTime(timestamp string) time.Time {
	if timestamp != "" {
		if parsed, err := time.Parse(time.RFC3339, timestamp); err == nil {
			return parsed.UTC()
		}
	}
	return time.Now().UTC()
}

func (s *TrackingService) triggerFrom(req *TrackingRequest) attribution.Trigger {
	return attribution.Trigger{
		Email:     req.Email,
		Phone:     req.Phone,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IP:        req.IP,
		UserAgent: req.UserAgent,
		FBP:       req.FBP,
		FBC:       req.FBC,
	}
}

func (s *TrackingService) buildLead(req *TrackingRequest, eventType, eventID string, eventTime time.Time) *lead.Lead {
	return &lead.Lead{
		Email:       req.Email,
		Phone:       req.Phone,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		IP:          req.IP,
		UserAgent:   req.UserAgent,
		FBP:         req.FBP,
		FBC:         req.FBC,
		FBCLID:      req.FBCLID,
		GCLID:       req.GCLID,
		UTMSource:   req.UTMSource,
		UTMMedium:   req.UTMMedium,
		UTMCampaign: req.UTMCampaign,
		UTMTerm:     req.UTMTerm,
		UTMContent:  req.UTMContent,
		PageURL:     req.PageURL,
		Referrer:    req.Referrer,
		Language:    req.Language,
		EventType:   eventType,
		EventID:     eventID,
		Timestamp:   eventTime,
	}
}

func (s *TrackingService) mergeRequestUTM(custom map[string]any, req *TrackingRequest) {
	utms := map[string]string{
		"utm_source":   req.UTMSource,
		"utm_medium":   req.UTMMedium,
		"utm_campaign": req.UTMCampaign,
		"utm_term":     req.UTMTerm,
		"utm_content":  req.UTMContent,
	}
	for k, v := range utms {
		if v != "" {
			custom[k] = v
		}
	}
}

// generateTrackingEventID derives a deduplication id from the strongest
// available identifier, the timestamp and the page. Browser-side pixels
// generating the same id suppress the duplicate at the platform.
func generateTrackingEventID(prefix string, req *TrackingRequest, eventTime time.Time) string {
	identifier := firstNonEmptyString(req.Email, req.Phone, req.IP, "anonymous")
	ms := eventTime.UnixMilli()

	sum := md5.Sum([]byte(fmt.Sprintf("%s-%d-%s", identifier, ms, req.PageURL)))
	return fmt.Sprintf("%s_%d_%s", prefix, ms, hex.EncodeToString(sum[:])[:16])
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
