// Package supabase provides the PostgREST-backed implementations of the lead
// store and the purchase ledger.
package supabase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AtRiskMedia/funnelgate-go/internal/domain/failure"
	"github.com/AtRiskMedia/funnelgate-go/internal/infrastructure/observability/logging"
)

// Client is a thin PostgREST client scoped to one project. The service key is
// preferred for writes; the anon key is the fallback.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.ChanneledLogger
}

// NewClient builds a REST client for the given Supabase project.
func NewClient(baseURL, serviceKey, anonKey string, timeout time.Duration, logger *logging.ChanneledLogger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: store URL is not configured", failure.ErrConfiguration)
	}
	key := serviceKey
	if key == "" {
		key = anonKey
	}
	if key == "" {
		return nil, fmt.Errorf("%w: store API key is not configured", failure.ErrConfiguration)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     key,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// restError carries a PostgREST error body so callers can classify conflicts.
type restError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
}

func (e *restError) Error() string {
	return fmt.Sprintf("store request failed: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}

// IsUniqueViolation classifies an error as a unique-constraint conflict.
// PostgREST reports these as 409 or as Postgres error 23505; message matching
// covers proxy deployments that rewrite the body.
func IsUniqueViolation(err error) bool {
	re, ok := err.(*restError)
	if !ok {
		return false
	}
	if re.StatusCode == http.StatusConflict || re.Code == "23505" {
		return true
	}
	msg := strings.ToLower(re.Message + " " + re.Details)
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "already exists")
}

// get performs a GET against /rest/v1/<table> with the given query and
// decodes the JSON array response into out.
func (c *Client) get(table string, query url.Values, out any) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, table, query.Encode())

	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, "")

	return c.do(req, out)
}

// insert performs a POST against /rest/v1/<table> asking PostgREST to return
// the inserted representation.
func (c *Client) insert(table string, record any, out any) error {
	body, err := json.Marshal(record)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req, "return=representation")

	return c.do(req, out)
}

func (c *Client) setHeaders(req *http.Request, prefer string) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", failure.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading store response: %v", failure.ErrProviderUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		re := &restError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(data, re); err != nil {
			re.Message = string(data)
		}
		return re
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding store response: %w", err)
		}
	}
	return nil
}
