package probe

import (
	"fmt"
	"strings"
	"time"

	"github.com/likexian/whois"
	"golang.org/x/net/publicsuffix"
)

type WhoisResult struct {
	Domain       string    `json:"domain"`
	ExpiresAt    time.Time `json:"expires_at"`
	DaysToExpiry int       `json:"days_to_expiry"`
}

type whoisChecker struct {
	client *whois.Client
}

func newWhoisChecker(timeout time.Duration) *whoisChecker {
	c := whois.NewClient()
	c.SetTimeout(timeout)
	return &whoisChecker{client: c}
}

func (w *whoisChecker) check(host string, now time.Time) (*WhoisResult, error) {
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return nil, fmt.Errorf("no registrable domain for %s: %w", host, err)
	}

	raw, err := w.client.Whois(domain)
	if err != nil {
		return nil, fmt.Errorf("whois lookup failed: %w", err)
	}

	expiry := extractExpiryDate(raw)
	if expiry.IsZero() {
		return nil, fmt.Errorf("could not extract expiry date for %s", domain)
	}

	return &WhoisResult{
		Domain:       domain,
		ExpiresAt:    expiry,
		DaysToExpiry: int(expiry.Sub(now).Hours() / 24),
	}, nil
}

var expiryPrefixes = []string{
	"registry expiry date:",
	"registrar registration expiration date:",
	"expiry date:",
	"expiration date:",
	"expires:",
	"expiry:",
	"paid-till:",
}

var whoisDateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05.0Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
	"2006/01/02",
}

func extractExpiryDate(raw string) time.Time {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		for _, prefix := range expiryPrefixes {
			if !strings.HasPrefix(lower, prefix) {
				continue
			}
			value := strings.TrimSpace(line[len(prefix):])
			for _, format := range whoisDateFormats {
				if t, err := time.Parse(format, value); err == nil {
					return t
				}
			}
		}
	}
	return time.Time{}
}
