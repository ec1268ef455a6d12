package probe

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

type DNSResult struct {
	Resolved    bool     `json:"resolved"`
	ARecords    []string `json:"a_records,omitempty"`
	AAAARecords []string `json:"aaaa_records,omitempty"`
	CNAME       string   `json:"cname,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type dnsChecker struct {
	server   string
	client   *dns.Client
	resolver *net.Resolver
}

func newDNSChecker(server string, timeout time.Duration) *dnsChecker {
	return &dnsChecker{
		server: server,
		client: &dns.Client{Timeout: timeout},
		resolver: &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				d := net.Dialer{Timeout: timeout}
				return d.DialContext(ctx, network, address)
			},
		},
	}
}

// check resolves host against the configured server and falls back to the
// system resolver when that server is unreachable. NXDOMAIN is final.
func (d *dnsChecker) check(ctx context.Context, host string) *DNSResult {
	result := &DNSResult{}

	nxdomain := false
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), qtype)
		m.RecursionDesired = true

		r, _, err := d.client.ExchangeContext(ctx, m, d.server)
		if err != nil || r == nil {
			continue
		}
		if r.Rcode == dns.RcodeNameError {
			nxdomain = true
			break
		}
		for _, ans := range r.Answer {
			switch rr := ans.(type) {
			case *dns.A:
				result.ARecords = append(result.ARecords, rr.A.String())
			case *dns.AAAA:
				result.AAAARecords = append(result.AAAARecords, rr.AAAA.String())
			case *dns.CNAME:
				result.CNAME = strings.TrimSuffix(rr.Target, ".")
			}
		}
	}

	if nxdomain {
		result.Error = "domain does not exist (NXDOMAIN)"
		return result
	}

	if len(result.ARecords) == 0 && len(result.AAAARecords) == 0 {
		ips, err := d.resolver.LookupHost(ctx, host)
		if err != nil {
			result.Error = "dns lookup failed: " + err.Error()
			return result
		}
		for _, ip := range ips {
			if strings.Contains(ip, ":") {
				result.AAAARecords = append(result.AAAARecords, ip)
			} else {
				result.ARecords = append(result.ARecords, ip)
			}
		}
	}

	if len(result.ARecords) == 0 && len(result.AAAARecords) == 0 {
		result.Error = "no A or AAAA records found"
		return result
	}

	result.Resolved = true
	return result
}
