package keycloak

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/leozw/ads-guardian/internal/config"
)

type realm struct {
	key     *rsa.PrivateKey
	fetches atomic.Int32
	server  *httptest.Server
}

func newRealm(t *testing.T) *realm {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	r := &realm{key: key}
	r.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/realms/ads/protocol/openid-connect/certs", req.URL.Path)
		r.fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"keys": []map[string]interface{}{{
			"kid": "k1",
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	t.Cleanup(r.server.Close)
	return r
}

func (r *realm) client(t *testing.T) *Client {
	return NewClient(config.KeycloakConfig{URL: r.server.URL, Realm: "ads"}, zaptest.NewLogger(t))
}

func (r *realm) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(r.key)
	require.NoError(t, err)
	return s
}

func (r *realm) claims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":          r.server.URL + "/realms/ads",
		"exp":          time.Now().Add(time.Hour).Unix(),
		"email":        "ops@example.com",
		"organization": "tenant-a",
	}
}

func TestValidateToken(t *testing.T) {
	r := newRealm(t)
	c := r.client(t)

	claims, err := c.ValidateToken(context.Background(), r.sign(t, "k1", r.claims()))
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", claims["organization"])

	_, err = c.ValidateToken(context.Background(), r.sign(t, "k1", r.claims()))
	require.NoError(t, err)
	assert.Equal(t, int32(1), r.fetches.Load())
}

func TestValidateToken_Rejects(t *testing.T) {
	r := newRealm(t)
	c := r.client(t)

	expired := r.claims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()

	wrongIssuer := r.claims()
	wrongIssuer["iss"] = "https://evil.example.com/realms/ads"

	noExpiry := r.claims()
	delete(noExpiry, "exp")

	for name, token := range map[string]string{
		"expired":      r.sign(t, "k1", expired),
		"wrong issuer": r.sign(t, "k1", wrongIssuer),
		"no expiry":    r.sign(t, "k1", noExpiry),
		"unknown kid":  r.sign(t, "k2", r.claims()),
		"garbage":      "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.ValidateToken(context.Background(), token)
			assert.Error(t, err)
		})
	}
}

func TestValidateToken_ThrottlesUnknownKidRefetch(t *testing.T) {
	r := newRealm(t)
	c := r.client(t)

	for i := 0; i < 3; i++ {
		_, err := c.ValidateToken(context.Background(), r.sign(t, "rotated", r.claims()))
		assert.Error(t, err)
	}
	assert.Equal(t, int32(1), r.fetches.Load())
}
