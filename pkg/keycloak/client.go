package keycloak

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/leozw/ads-guardian/internal/config"
)

// minRefreshInterval throttles JWKS refetches triggered by unknown key ids.
const minRefreshInterval = time.Minute

type Client struct {
	config     config.KeycloakConfig
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastFetched time.Time
}

func NewClient(cfg config.KeycloakConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

func (c *Client) issuer() string {
	return fmt.Sprintf("%s/realms/%s", c.config.URL, c.config.Realm)
}

// ValidateToken verifies signature, expiry and issuer of a realm access token.
func (c *Client) ValidateToken(ctx context.Context, tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		return c.key(ctx, kid)
	},
		jwt.WithIssuer(c.issuer()),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// key returns the signing key for kid, refetching the JWKS when kid is
// unknown. An empty kid matches any single cached key.
func (c *Client) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k := c.cachedKey(kid); k != nil {
		return k, nil
	}

	c.mu.RLock()
	recent := !c.lastFetched.IsZero() && time.Since(c.lastFetched) < minRefreshInterval
	c.mu.RUnlock()
	if recent {
		return nil, fmt.Errorf("unknown signing key %q", kid)
	}

	if err := c.fetchKeys(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch public key: %w", err)
	}
	if k := c.cachedKey(kid); k != nil {
		return k, nil
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}

func (c *Client) cachedKey(kid string) *rsa.PublicKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if kid != "" {
		return c.keys[kid]
	}
	if len(c.keys) == 1 {
		for _, k := range c.keys {
			return k
		}
	}
	return nil
}

func (c *Client) fetchKeys(ctx context.Context) error {
	url := c.issuer() + "/protocol/openid-connect/certs"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch jwks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Alg string `json:"alg"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return fmt.Errorf("failed to decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || (key.Use != "" && key.Use != "sig") {
			continue
		}
		publicKey, err := parseJWK(key.N, key.E)
		if err != nil {
			c.logger.Warn("Skipping unparseable JWKS key", zap.String("kid", key.Kid), zap.Error(err))
			continue
		}
		keys[key.Kid] = publicKey
	}

	c.mu.Lock()
	c.lastFetched = time.Now()
	if len(keys) > 0 {
		c.keys = keys
	}
	c.mu.Unlock()

	if len(keys) == 0 {
		return errors.New("no suitable RSA signing key found")
	}
	c.logger.Debug("Loaded realm signing keys", zap.Int("keys", len(keys)), zap.String("realm", c.config.Realm))
	return nil
}

func parseJWK(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("failed to decode n: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("failed to decode e: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
