package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Prober inspects one landing page URL. Failures are reported inside the
// report, never as an error.
type Prober interface {
	Probe(ctx context.Context, rawURL string) *Report
}

// Report is the outcome of probing a landing page.
type Report struct {
	URL            string       `json:"url"`
	Domain         string       `json:"domain"`
	Reachable      bool         `json:"reachable"`
	StatusCode     int          `json:"status_code,omitempty"`
	FinalURL       string       `json:"final_url,omitempty"`
	ResponseTimeMs float64      `json:"response_time_ms"`
	DNS            *DNSResult   `json:"dns,omitempty"`
	TLS            *TLSResult   `json:"tls,omitempty"`
	Whois          *WhoisResult `json:"whois,omitempty"`
	Errors         []string     `json:"errors,omitempty"`
}

// Broken reports whether a visitor following the URL would not reach a page.
func (r *Report) Broken() bool {
	if r.DNS != nil && !r.DNS.Resolved {
		return true
	}
	return !r.Reachable || r.StatusCode >= 400
}

func (r *Report) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

type Options struct {
	HTTPTimeout  time.Duration
	DNSTimeout   time.Duration
	TLSTimeout   time.Duration
	WhoisTimeout time.Duration
	DNSServer    string
	UserAgent    string
	TLSConfig    *tls.Config
	SkipWhois    bool
	MaxRedirects int
	Logger       *zap.Logger
}

// Inspector combines the DNS, HTTP, TLS and WHOIS probes.
type Inspector struct {
	dns    *dnsChecker
	http   *httpChecker
	tls    *tlsChecker
	whois  *whoisChecker
	logger *zap.Logger
	now    func() time.Time
}

func NewInspector(opts Options) *Inspector {
	if opts.HTTPTimeout == 0 {
		opts.HTTPTimeout = 15 * time.Second
	}
	if opts.DNSTimeout == 0 {
		opts.DNSTimeout = 5 * time.Second
	}
	if opts.TLSTimeout == 0 {
		opts.TLSTimeout = 10 * time.Second
	}
	if opts.WhoisTimeout == 0 {
		opts.WhoisTimeout = 15 * time.Second
	}
	if opts.DNSServer == "" {
		opts.DNSServer = "8.8.8.8:53"
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "AdsGuardian/1.0"
	}
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = 10
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	i := &Inspector{
		dns:    newDNSChecker(opts.DNSServer, opts.DNSTimeout),
		http:   newHTTPChecker(opts.HTTPTimeout, opts.MaxRedirects, opts.UserAgent, opts.TLSConfig),
		tls:    newTLSChecker(opts.TLSTimeout, opts.TLSConfig),
		logger: opts.Logger,
		now:    time.Now,
	}
	if !opts.SkipWhois {
		i.whois = newWhoisChecker(opts.WhoisTimeout)
	}
	return i
}

// Session returns a prober that caches domain level results (DNS, TLS, WHOIS)
// for its lifetime, so many URLs on one domain cost one lookup each.
func (i *Inspector) Session() Prober {
	return &session{
		inspector: i,
		domains:   make(map[string]*domainInfo),
	}
}

// Probe runs a single uncached probe.
func (i *Inspector) Probe(ctx context.Context, rawURL string) *Report {
	return i.Session().Probe(ctx, rawURL)
}

type domainInfo struct {
	once  sync.Once
	dns   *DNSResult
	tls   *TLSResult
	whois *WhoisResult
	errs  []string
}

type session struct {
	inspector *Inspector
	mu        sync.Mutex
	domains   map[string]*domainInfo
}

func (s *session) Probe(ctx context.Context, rawURL string) *Report {
	report := &Report{URL: rawURL}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		report.addError("invalid url: %s", rawURL)
		return report
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		report.addError("unsupported scheme %q", u.Scheme)
		return report
	}
	host := strings.ToLower(u.Hostname())
	report.Domain = host

	info := s.domain(host)
	info.once.Do(func() {
		s.inspectDomain(ctx, u, info)
	})
	report.DNS = info.dns
	report.TLS = info.tls
	report.Whois = info.whois
	report.Errors = append(report.Errors, info.errs...)

	if info.dns != nil && !info.dns.Resolved {
		return report
	}

	start := time.Now()
	res, err := s.inspector.http.check(ctx, u.String())
	report.ResponseTimeMs = float64(time.Since(start).Milliseconds())
	if err != nil {
		report.addError("%v", err)
		return report
	}
	report.Reachable = true
	report.StatusCode = res.StatusCode
	report.FinalURL = res.FinalURL
	if res.StatusCode >= 400 {
		report.addError("HTTP %d", res.StatusCode)
	}

	s.inspector.logger.Debug("Landing page probed",
		zap.String("url", rawURL),
		zap.Int("status_code", res.StatusCode),
		zap.Float64("response_time_ms", report.ResponseTimeMs),
	)
	return report
}

func (s *session) domain(host string) *domainInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.domains[host]
	if !ok {
		info = &domainInfo{}
		s.domains[host] = info
	}
	return info
}

func (s *session) inspectDomain(ctx context.Context, u *url.URL, info *domainInfo) {
	host := u.Hostname()
	isIP := net.ParseIP(host) != nil
	now := s.inspector.now()

	if !isIP {
		info.dns = s.inspector.dns.check(ctx, host)
		if !info.dns.Resolved {
			info.errs = append(info.errs, info.dns.Error)
			return
		}
	}

	if u.Scheme == "https" {
		tlsRes, err := s.inspector.tls.check(ctx, u.Host, host, now)
		if err != nil {
			info.errs = append(info.errs, err.Error())
		} else {
			info.tls = tlsRes
		}
	}

	if !isIP && s.inspector.whois != nil {
		whoisRes, err := s.inspector.whois.check(host, now)
		if err != nil {
			// registration data is best effort; many TLDs rate limit or hide it
			s.inspector.logger.Debug("WHOIS lookup failed", zap.String("domain", host), zap.Error(err))
		} else {
			info.whois = whoisRes
		}
	}
}

func newHTTPTransport(tlsConfig *tls.Config) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConfig != nil {
		t.TLSClientConfig = tlsConfig.Clone()
	}
	return t
}
