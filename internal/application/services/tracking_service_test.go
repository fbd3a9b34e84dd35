package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/domain/lead"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/funnelgate-go/pkg/config"
)

type insertRecorder struct {
	inserted  []*lead.Lead
	insertErr error
}

func (r *insertRecorder) Insert(l *lead.Lead) (string, error) {
	if r.insertErr != nil {
		return "", r.insertErr
	}
	r.inserted = append(r.inserted, l)
	return "lead-1", nil
}

func (r *insertRecorder) FindByID(string) (*lead.Lead, error)              { return nil, nil }
func (r *insertRecorder) FindByEmailOrPhone(_, _ string) (*lead.Lead, error) { return nil, nil }

func newTrackingFixture(t *testing.T, leads lead.Repository, fwd *fakeForwarder) *TrackingService {
	t.Helper()
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)

	return NewTrackingService(leads, fwd,
		&config.Settings{EventSourceURL: "https://shop.example.cl", PaymentCurrency: "CLP"},
		logger, performance.NewTracker(nil))
}

func TestProcessPageViewStoresLeadAndForwards(t *testing.T) {
	repo := &insertRecorder{}
	fwd := &fakeForwarder{}
	svc := newTrackingFixture(t, repo, fwd)

	result, err := svc.ProcessPageView(&TrackingRequest{
		Email:     "Visitor@Example.cl",
		IP:        "200.1.2.3",
		UserAgent: "Mozilla/5.0",
		PageURL:   "https://shop.example.cl/lp1",
		UTMSource: "meta",
	})
	require.NoError(t, err)

	assert.True(t, result.Supabase.Saved)
	assert.Equal(t, "lead-1", result.Supabase.LeadID)
	assert.True(t, result.Meta.Sent)
	assert.Regexp(t, `^pageview_\d+_[0-9a-f]{16}$`, result.EventID)

	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "PageView", repo.inserted[0].EventType)
	assert.Equal(t, result.EventID, repo.inserted[0].EventID)

	require.Len(t, fwd.events, 1)
	ev := fwd.events[0]
	assert.Equal(t, "PageView", ev.EventName)
	assert.Equal(t, result.EventID, ev.EventID)
	assert.Equal(t, "https://shop.example.cl/lp1", ev.EventSourceURL)
	assert.Equal(t, "meta", ev.CustomData["utm_source"])
	assert.Equal(t, "200.1.2.3", ev.UserData.ClientIPAddress)
	assert.NotEmpty(t, ev.UserData.Em, "email must arrive hashed")
	assert.NotEqual(t, "Visitor@Example.cl", ev.UserData.Em)
}

func TestProcessPageViewRequiresIPOrUserAgent(t *testing.T) {
	svc := newTrackingFixture(t, &insertRecorder{}, &fakeForwarder{})

	_, err := svc.ProcessPageView(&TrackingRequest{Email: "visitor@example.cl"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrValidation))
}

func TestProcessPageViewStoreOutageStillForwards(t *testing.T) {
	repo := &insertRecorder{insertErr: errors.New("store down")}
	fwd := &fakeForwarder{}
	svc := newTrackingFixture(t, repo, fwd)

	result, err := svc.ProcessPageView(&TrackingRequest{IP: "200.1.2.3", UserAgent: "Mozilla/5.0"})
	require.NoError(t, err)
	assert.False(t, result.Supabase.Saved)
	assert.Equal(t, "store down", result.Supabase.Error)
	assert.True(t, result.Meta.Sent)
	assert.Len(t, fwd.events, 1)
}

func TestProcessPageViewKeepsClientEventID(t *testing.T) {
	fwd := &fakeForwarder{}
	svc := newTrackingFixture(t, &insertRecorder{}, fwd)

	result, err := svc.ProcessPageView(&TrackingRequest{
		IP: "200.1.2.3", EventID: "pageview_123_abcdef0123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "pageview_123_abcdef0123456789", result.EventID)
	assert.Equal(t, "pageview_123_abcdef0123456789", fwd.events[0].EventID)
}

func TestProcessInitiateCheckoutForwardsOnly(t *testing.T) {
	repo := &insertRecorder{}
	fwd := &fakeForwarder{}
	svc := newTrackingFixture(t, repo, fwd)

	result, err := svc.ProcessInitiateCheckout(&TrackingRequest{
		Email: "visitor@example.cl",
		IP:    "200.1.2.3",
		Value: 5000,
	})
	require.NoError(t, err)

	assert.Empty(t, repo.inserted, "initiate checkout must not write a lead")
	assert.True(t, result.Meta.Sent)
	assert.Regexp(t, `^initiatecheckout_\d+_[0-9a-f]{16}$`, result.EventID)

	require.Len(t, fwd.events, 1)
	assert.Equal(t, "InitiateCheckout", fwd.events[0].EventName)
	assert.Equal(t, "CLP", fwd.events[0].CustomData["currency"])
	assert.Equal(t, float64(5000), fwd.events[0].CustomData["value"])
}

func TestProcessInitiateCheckoutForwardErrorIsSoft(t *testing.T) {
	fwd := &fakeForwarder{sendErr: errors.New("platform down")}
	svc := newTrackingFixture(t, &insertRecorder{}, fwd)

	result, err := svc.ProcessInitiateCheckout(&TrackingRequest{IP: "200.1.2.3"})
	require.NoError(t, err)
	assert.False(t, result.Meta.Sent)
	assert.Equal(t, "platform down", result.Meta.Error)
}
