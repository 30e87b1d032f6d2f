package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/platinummonkey/usher/pkg/observability"
)

// Config configures the management API client.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	// Audience is sent as an endpoint parameter on token requests when set.
	Audience string
	Timeout  time.Duration
}

// Validate checks the config for required fields.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.TokenURL == "" {
		return fmt.Errorf("token_url is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	return nil
}

// HTTPClient talks to the identity provider management API with OAuth2
// client-credentials auth.
type HTTPClient struct {
	baseURL  string
	http     *http.Client
	tokenCfg clientcredentials.Config
	metrics  *observability.Metrics
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds the client. The underlying http.Client injects and
// refreshes the access token on every request. A nil metrics registry
// disables instrumentation.
func NewHTTPClient(config Config, metrics *observability.Metrics) (*HTTPClient, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	cc := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     config.TokenURL,
	}
	if config.Audience != "" {
		cc.EndpointParams = url.Values{"audience": {config.Audience}}
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := cc.Client(context.Background())
	httpClient.Timeout = timeout

	return &HTTPClient{
		baseURL:  strings.TrimRight(config.BaseURL, "/"),
		http:     httpClient,
		tokenCfg: cc,
		metrics:  metrics,
	}, nil
}

// observe records one management API round trip. A zero status code means
// the request never got an HTTP response.
func (c *HTTPClient) observe(op string, start time.Time, statusCode int) {
	if c.metrics == nil {
		return
	}
	code := "error"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	c.metrics.IdPRequestsTotal.WithLabelValues(op, code).Inc()
	c.metrics.IdPRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// CreateOrganization provisions an organization for an enterprise.
func (c *HTTPClient) CreateOrganization(ctx context.Context, name string, branding Branding) (*Organization, error) {
	payload := map[string]interface{}{
		"name": name,
	}
	if branding.LogoURL != "" {
		payload["logo_url"] = branding.LogoURL
	}
	if branding.PrimaryColor != "" {
		payload["primary_color"] = branding.PrimaryColor
	}
	if branding.BackgroundColor != "" {
		payload["background_color"] = branding.BackgroundColor
	}

	var org Organization
	if err := c.post(ctx, "CreateOrganization", "/api/v2/organizations", payload, &org); err != nil {
		return nil, err
	}
	if org.ID == "" {
		return nil, &UpstreamError{Op: "CreateOrganization", Detail: "response carried no organization id"}
	}
	return &org, nil
}

// CreateSsoTicket asks the identity provider for a one-time SSO setup URL
// scoped to an organization.
func (c *HTTPClient) CreateSsoTicket(ctx context.Context, name string, branding Branding, organizationID string) (string, error) {
	payload := map[string]interface{}{
		"name":            name,
		"organization_id": organizationID,
	}
	if branding.IconURL != "" {
		payload["icon_url"] = branding.IconURL
	}
	if len(branding.DomainAliases) > 0 {
		payload["domain_aliases"] = branding.DomainAliases
	}

	var resp struct {
		Ticket string `json:"ticket"`
	}
	if err := c.post(ctx, "CreateSsoTicket", "/api/v2/sso-tickets", payload, &resp); err != nil {
		return "", err
	}
	if resp.Ticket == "" {
		return "", &UpstreamError{Op: "CreateSsoTicket", Detail: "response carried no ticket"}
	}
	return resp.Ticket, nil
}

// DeleteOrganizationConnection tears down the SSO connection of an
// organization. Compensation after a lost onboard race and part of
// enterprise deletion.
func (c *HTTPClient) DeleteOrganizationConnection(ctx context.Context, organizationID string) error {
	endpoint := fmt.Sprintf("/api/v2/organizations/%s/connection", url.PathEscape(organizationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe("DeleteOrganizationConnection", start, 0)
		return &UpstreamError{Op: "DeleteOrganizationConnection", Detail: err.Error()}
	}
	defer resp.Body.Close()
	c.observe("DeleteOrganizationConnection", start, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{
			Op:         "DeleteOrganizationConnection",
			StatusCode: resp.StatusCode,
			Detail:     readErrorDetail(resp.Body),
		}
	}
	return nil
}

// Ping exchanges a fresh set of client credentials against the token
// endpoint. Readiness probes use it, so a revoked secret or an unreachable
// IdP surfaces as degraded before the next onboarding call fails.
func (c *HTTPClient) Ping(ctx context.Context) error {
	start := time.Now()
	_, err := c.tokenCfg.Token(ctx)
	if err == nil {
		c.observe("Ping", start, http.StatusOK)
		return nil
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		c.observe("Ping", start, retrieveErr.Response.StatusCode)
		return &UpstreamError{Op: "Ping", StatusCode: retrieveErr.Response.StatusCode, Detail: "token request rejected"}
	}
	c.observe("Ping", start, 0)
	return &UpstreamError{Op: "Ping", Detail: err.Error()}
}

// post sends a JSON payload and decodes a JSON response into out.
func (c *HTTPClient) post(ctx context.Context, op, endpoint string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(op, start, 0)
		return &UpstreamError{Op: op, Detail: err.Error()}
	}
	defer resp.Body.Close()
	c.observe(op, start, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Detail: readErrorDetail(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode, Detail: fmt.Sprintf("undecodable response body: %v", err)}
	}
	return nil
}

// readErrorDetail pulls a short description out of a failure response body.
func readErrorDetail(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return "no response body"
	}

	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return strings.TrimSpace(string(body))
}
