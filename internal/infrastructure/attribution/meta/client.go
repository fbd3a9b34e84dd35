// Package meta forwards conversion events to the Meta Conversions API. The
// client sits behind a circuit breaker so a platform outage degrades to fast
// local failures that land in the forward journal instead of stalling
// webhook handling.
package meta

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/attribution"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

const defaultGraphURL = "https://graph.facebook.com"

// Client sends events to one pixel.
type Client struct {
	settings   *config.Settings
	graphURL   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logging.ChanneledLogger
	perf       *performance.Tracker
}

// NewClient creates a Conversions API client.
func NewClient(settings *config.Settings, logger *logging.ChanneledLogger, perf *performance.Tracker) *Client {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "meta-capi",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Alert().Warn("Circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		settings:   settings,
		graphURL:   defaultGraphURL,
		httpClient: &http.Client{Timeout: config.OutboundCallTimeout},
		breaker:    breaker,
		logger:     logger,
		perf:       perf,
	}
}

// envelope is the request body shape the Conversions API expects: the events
// array plus the access token inline, not as a header.
type envelope struct {
	Data        []*attribution.Event `json:"data"`
	AccessToken string               `json:"access_token"`
}

type apiError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

type apiResponse struct {
	EventsReceived int       `json:"events_received"`
	FBTraceID      string    `json:"fbtrace_id"`
	Error          *apiError `json:"error"`
}

// SendEvent forwards one event. Every failure, including breaker rejections
// and configuration gaps, wraps failure.ErrForwardingFailed so callers can
// acknowledge the webhook and journal the event.
func (c *Client) SendEvent(ev *attribution.Event) (*attribution.Receipt, error) {
	marker := c.perf.StartOperation("attribution:send_event", "meta")
	defer c.perf.CompleteOperation(marker)
	marker.AddMetadata("eventName", ev.EventName)
	marker.AddMetadata("eventId", ev.EventID)

	if c.settings.MetaPixelID == "" || c.settings.MetaAccessToken == "" {
		err := fmt.Errorf("%w: pixel id or access token not configured", failure.ErrForwardingFailed)
		marker.SetError(err)
		return nil, err
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.send(ev)
	})
	if err != nil {
		wrapped := err
		if !errors.Is(err, failure.ErrForwardingFailed) {
			wrapped = fmt.Errorf("%w: %v", failure.ErrForwardingFailed, err)
		}
		marker.SetError(wrapped)
		return nil, wrapped
	}

	receipt := result.(*attribution.Receipt)
	c.logger.Attribution().Info("Event forwarded",
		"eventName", ev.EventName, "eventId", ev.EventID,
		"eventsReceived", receipt.EventsReceived, "duration", time.Since(marker.StartTime))
	return receipt, nil
}

func (c *Client) send(ev *attribution.Event) (*attribution.Receipt, error) {
	body, err := json.Marshal(envelope{
		Data:        []*attribution.Event{ev},
		AccessToken: c.settings.MetaAccessToken,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding event: %v", failure.ErrForwardingFailed, err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events", c.graphURL, c.settings.MetaAPIVersion, c.settings.MetaPixelID)
	resp, err := c.httpClient.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", failure.ErrForwardingFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", failure.ErrForwardingFailed, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: undecodable response (status %d)", failure.ErrForwardingFailed, resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		// The full error body matters here: Meta's 4xx responses name the
		// exact rejected field.
		c.logger.Attribution().Error("Platform rejected event",
			"status", resp.StatusCode, "eventName", ev.EventName, "eventId", ev.EventID,
			"body", string(data))
		msg := string(data)
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("%w: platform rejected event (status %d): %s",
			failure.ErrForwardingFailed, resp.StatusCode, msg)
	}

	return &attribution.Receipt{
		EventsReceived: parsed.EventsReceived,
		FBTraceID:      parsed.FBTraceID,
	}, nil
}
