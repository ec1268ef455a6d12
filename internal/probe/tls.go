package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

type TLSResult struct {
	Subject      string    `json:"subject"`
	Issuer       string    `json:"issuer"`
	ValidTo      time.Time `json:"valid_to"`
	DaysToExpiry int       `json:"days_to_expiry"`
	Protocol     string    `json:"protocol"`
}

type tlsChecker struct {
	timeout time.Duration
	config  *tls.Config
}

func newTLSChecker(timeout time.Duration, config *tls.Config) *tlsChecker {
	return &tlsChecker{timeout: timeout, config: config}
}

// check dials hostport (port 443 when absent) and inspects the leaf certificate.
func (t *tlsChecker) check(ctx context.Context, hostport, serverName string, now time.Time) (*TLSResult, error) {
	if _, _, err := net.SplitHostPort(hostport); err != nil {
		hostport = net.JoinHostPort(hostport, "443")
	}

	cfg := &tls.Config{}
	if t.config != nil {
		cfg = t.config.Clone()
	}
	cfg.ServerName = serverName

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: t.timeout},
		Config:    cfg,
	}
	conn, err := dialer.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return nil, fmt.Errorf("tls handshake failed: %w", err)
	}
	defer conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("no certificates found")
	}
	cert := state.PeerCertificates[0]

	return &TLSResult{
		Subject:      cert.Subject.String(),
		Issuer:       cert.Issuer.String(),
		ValidTo:      cert.NotAfter,
		DaysToExpiry: int(cert.NotAfter.Sub(now).Hours() / 24),
		Protocol:     tlsVersionString(state.Version),
	}, nil
}

func tlsVersionString(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "Unknown"
	}
}
