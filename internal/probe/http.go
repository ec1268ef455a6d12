package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

type httpResult struct {
	StatusCode int
	FinalURL   string
}

type httpChecker struct {
	client    *http.Client
	userAgent string
}

func newHTTPChecker(timeout time.Duration, maxRedirects int, userAgent string, tlsConfig *tls.Config) *httpChecker {
	return &httpChecker{
		userAgent: userAgent,
		client: &http.Client{
			Timeout:   timeout,
			Transport: newHTTPTransport(tlsConfig),
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

func (h *httpChecker) check(ctx context.Context, rawURL string) (*httpResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// drain a bounded amount so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024*1024))

	return &httpResult{
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
	}, nil
}
