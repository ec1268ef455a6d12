package probe

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbe_ReachablePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AdsGuardian/1.0", r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	report := NewInspector(Options{SkipWhois: true}).Probe(context.Background(), srv.URL+"/landing")

	assert.False(t, report.Broken())
	assert.Equal(t, http.StatusOK, report.StatusCode)
	assert.Equal(t, "127.0.0.1", report.Domain)
	assert.Empty(t, report.Errors)
}

func TestProbe_NotFoundIsBroken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	report := NewInspector(Options{SkipWhois: true}).Probe(context.Background(), srv.URL+"/gone")

	assert.True(t, report.Broken())
	assert.Equal(t, http.StatusNotFound, report.StatusCode)
	assert.Contains(t, report.Errors, "HTTP 404")
}

func TestProbe_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	report := NewInspector(Options{SkipWhois: true}).Probe(context.Background(), srv.URL+"/old")

	assert.False(t, report.Broken())
	assert.Equal(t, srv.URL+"/new", report.FinalURL)
}

func TestProbe_UnreachableHostIsBroken(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	report := NewInspector(Options{SkipWhois: true, HTTPTimeout: 2 * time.Second}).Probe(context.Background(), addr)

	assert.True(t, report.Broken())
	assert.NotEmpty(t, report.Errors)
}

func TestProbe_InvalidURL(t *testing.T) {
	inspector := NewInspector(Options{SkipWhois: true})

	for _, raw := range []string{"", "not a url", "ftp://example.com/file"} {
		report := inspector.Probe(context.Background(), raw)
		assert.True(t, report.Broken(), raw)
		assert.NotEmpty(t, report.Errors, raw)
	}
}

func TestProbe_InspectsCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rootCAs := srv.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs
	inspector := NewInspector(Options{
		SkipWhois: true,
		TLSConfig: &tls.Config{RootCAs: rootCAs},
	})

	report := inspector.Probe(context.Background(), srv.URL)

	assert.False(t, report.Broken())
	require.NotNil(t, report.TLS)
	assert.Greater(t, report.TLS.DaysToExpiry, 14)
	assert.True(t, srv.Certificate().NotAfter.Equal(report.TLS.ValidTo))
}

func TestSession_CachesDomainResults(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rootCAs := srv.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs
	session := NewInspector(Options{
		SkipWhois: true,
		TLSConfig: &tls.Config{RootCAs: rootCAs},
	}).Session()

	first := session.Probe(context.Background(), srv.URL+"/a")
	second := session.Probe(context.Background(), srv.URL+"/b")

	require.NotNil(t, first.TLS)
	assert.Same(t, first.TLS, second.TLS)
}

func TestExtractExpiryDate(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{
			name: "verisign style",
			raw:  "Domain Name: EXAMPLE.COM\n   Registry Expiry Date: 2027-08-13T04:00:00Z\n",
			want: time.Date(2027, 8, 13, 4, 0, 0, 0, time.UTC),
		},
		{
			name: "registrar style",
			raw:  "Registrar Registration Expiration Date: 2026-11-02\n",
			want: time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "ru style",
			raw:  "domain: EXAMPLE.RU\npaid-till: 2026-12-01T21:00:00Z\n",
			want: time.Date(2026, 12, 1, 21, 0, 0, 0, time.UTC),
		},
		{
			name: "missing",
			raw:  "No match for domain\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(extractExpiryDate(tt.raw)))
		})
	}
}
