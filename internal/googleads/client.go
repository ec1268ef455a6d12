package googleads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/leozw/ads-guardian/internal/core"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Querier runs read-only queries against one ads account.
type Querier interface {
	Query(ctx context.Context, query string) (*QueryResult, error)
}

type QueryResult struct {
	Rows      []Row
	RequestID string
}

// Observer receives query and token refresh outcomes, typically a metrics collector.
type Observer interface {
	ObserveQuery(tenantID string, attempts int, err error)
	ObserveTokenRefresh(tenantID string, err error)
}

type Options struct {
	BaseURL           string
	APIVersion        string
	TokenURL          string
	RetryAttempts     int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Observer          Observer
	Logger            *zap.Logger
}

// Client is bound to a single tenant: it owns that tenant's token cache and is
// never shared across tenants.
type Client struct {
	tenantID   string
	accountID  string
	creds      core.Credentials
	opts       Options
	httpClient *http.Client
	tokens     *TokenSource
	limiter    *rate.Limiter
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewClient(tenant *core.TenantConfig, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.APIVersion == "" {
		opts.APIVersion = "v18"
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	c := &Client{
		tenantID:   tenant.TenantID,
		accountID:  core.NormalizeAccountID(tenant.AccountID),
		creds:      tenant.Credentials,
		opts:       opts,
		httpClient: opts.HTTPClient,
		tokens: NewTokenSource(opts.TokenURL, tenant.Credentials.OAuthClientID,
			tenant.Credentials.OAuthClientSecret, tenant.Credentials.RefreshToken, opts.HTTPClient),
		limiter: rate.NewLimiter(limit, 1),
		logger:  opts.Logger.With(zap.String("tenant_id", tenant.TenantID), zap.String("account_id", tenant.AccountID)),
		sleep:   sleepContext,
	}
	if opts.Observer != nil {
		c.tokens.onRefresh = func(err error) {
			opts.Observer.ObserveTokenRefresh(tenant.TenantID, err)
		}
	}
	return c
}

// Query runs a GAQL query through searchStream, retrying transient failures
// with exponential backoff.
func (c *Client) Query(ctx context.Context, query string) (*QueryResult, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		attempts++
		result, err := c.searchStream(ctx, query)
		if err == nil {
			c.observe(attempts, nil)
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsRetryable(err) || attempt == c.opts.RetryAttempts {
			break
		}

		delay := c.opts.RetryBaseDelay * time.Duration(1<<attempt)
		c.logger.Warn("Query failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			break
		}
	}

	c.observe(attempts, lastErr)
	return nil, lastErr
}

// VerifyConnection issues a trivial one-row query so broken credentials fail
// the tenant once instead of failing every check.
func (c *Client) VerifyConnection(ctx context.Context) error {
	if _, err := c.Query(ctx, "SELECT customer.id FROM customer LIMIT 1"); err != nil {
		return fmt.Errorf("connection check for account %s failed: %w", c.accountID, err)
	}
	return nil
}

func (c *Client) observe(attempts int, err error) {
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveQuery(c.tenantID, attempts, err)
	}
}

func (c *Client) searchStream(ctx context.Context, query string) (*QueryResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/customers/%s/googleAds:searchStream",
		strings.TrimRight(c.opts.BaseURL, "/"), c.opts.APIVersion, c.accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("developer-token", c.creds.DeveloperToken)
	if loginID := core.NormalizeAccountID(c.creds.LoginCustomerID); loginID != "" {
		req.Header.Set("login-customer-id", loginID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: opSearchStream, StatusCode: resp.StatusCode, Body: string(body)}
	}

	result, skipped, err := ParseStream(body)
	if err != nil {
		return nil, &APIError{Op: opSearchStream, StatusCode: resp.StatusCode, Body: err.Error()}
	}
	if skipped > 0 {
		c.logger.Warn("Skipped malformed search stream chunks",
			zap.Int("skipped", skipped),
			zap.Int("rows", len(result.Rows)),
		)
	}
	if result.RequestID == "" {
		result.RequestID = resp.Header.Get("request-id")
	}
	return result, nil
}

// ParseStream flattens a searchStream body into rows. The body is either a
// sequence of newline delimited JSON chunks or a single JSON array of chunks;
// each chunk may carry a "results" array. Unparseable lines are skipped and
// counted; a non-empty body without a single parseable chunk is an error.
func ParseStream(body []byte) (*QueryResult, int, error) {
	result := &QueryResult{Rows: []Row{}}

	collect := func(chunk gjson.Result) {
		for _, r := range chunk.Get("results").Array() {
			result.Rows = append(result.Rows, NewRow(r.Raw))
		}
		if id := chunk.Get("requestId").String(); id != "" {
			result.RequestID = id
		}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return result, 0, nil
	}
	if trimmed[0] == '[' && gjson.ValidBytes(trimmed) {
		for _, chunk := range gjson.ParseBytes(trimmed).Array() {
			collect(chunk)
		}
		return result, 0, nil
	}

	parsed, skipped := 0, 0
	for _, line := range bytes.Split(trimmed, []byte("\n")) {
		line = bytes.TrimSpace(line)
		line = bytes.TrimPrefix(line, []byte("["))
		line = bytes.TrimSuffix(line, []byte("]"))
		line = bytes.TrimSuffix(line, []byte(","))
		line = bytes.TrimPrefix(line, []byte(","))
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			skipped++
			continue
		}
		chunk := gjson.ParseBytes(line)
		if !chunk.IsObject() {
			skipped++
			continue
		}
		parsed++
		collect(chunk)
	}

	if parsed == 0 && skipped > 0 {
		return nil, skipped, fmt.Errorf("malformed search stream: none of %d chunks could be parsed", skipped)
	}
	return result, skipped, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
