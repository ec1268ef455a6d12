package googleads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenRefreshMargin is how long a cached token must stay valid to be reused.
const tokenRefreshMargin = 60 * time.Second

// TokenSource exchanges a long lived refresh token for short lived access
// tokens and caches the current one. It belongs to exactly one tenant.
type TokenSource struct {
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string
	httpClient   *http.Client
	now          func() time.Time
	onRefresh    func(err error)

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenSource(tokenURL, clientID, clientSecret, refreshToken string, httpClient *http.Client) *TokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenSource{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// AccessToken returns the cached token while it is valid for at least another
// minute and performs a refresh token exchange otherwise.
func (ts *TokenSource) AccessToken(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.expiresAt.Sub(ts.now()) >= tokenRefreshMargin {
		return ts.token, nil
	}

	token, expiresIn, err := ts.refresh(ctx)
	if ts.onRefresh != nil {
		ts.onRefresh(err)
	}
	if err != nil {
		return "", err
	}

	ts.token = token
	ts.expiresAt = ts.now().Add(time.Duration(expiresIn) * time.Second)
	return ts.token, nil
}

func (ts *TokenSource) refresh(ctx context.Context) (string, int64, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", ts.clientID)
	form.Set("client_secret", ts.clientSecret)
	form.Set("refresh_token", ts.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", 0, &APIError{Op: opTokenRefresh, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, &APIError{Op: opTokenRefresh, StatusCode: resp.StatusCode, Body: "undecodable token response: " + err.Error()}
	}
	if tr.AccessToken == "" {
		return "", 0, &APIError{Op: opTokenRefresh, StatusCode: resp.StatusCode, Body: "response did not contain an access token"}
	}

	return tr.AccessToken, tr.ExpiresIn, nil
}
