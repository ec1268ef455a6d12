package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	runSummaryKey    = "ads-guardian:run:latest"
	runSummaryTenant = "ads-guardian:run:latest:%s"
	runSummaryTTL    = 7 * 24 * time.Hour
)

var ErrNotFound = errors.New("not found in cache")

type Client struct {
	*redis.Client
}

func NewClient(redisURL string) *Client {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{
			Addr: redisURL,
		}
	}

	return &Client{redis.NewClient(opt)}
}

func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return c.Set(ctx, key, data, expiration).Err()
}

func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}

	return json.Unmarshal(data, dest)
}

// CacheRunSummary stores the summary of the latest full run.
func (c *Client) CacheRunSummary(ctx context.Context, summary interface{}) error {
	if err := c.SetJSON(ctx, runSummaryKey, summary, runSummaryTTL); err != nil {
		return fmt.Errorf("failed to cache run summary: %w", err)
	}
	return nil
}

// CacheTenantRunSummary stores the latest run as seen by one tenant, so tenant
// scoped readers never see other tenants' results.
func (c *Client) CacheTenantRunSummary(ctx context.Context, tenantID string, summary interface{}) error {
	if err := c.SetJSON(ctx, fmt.Sprintf(runSummaryTenant, tenantID), summary, runSummaryTTL); err != nil {
		return fmt.Errorf("failed to cache run summary for tenant %s: %w", tenantID, err)
	}
	return nil
}

func (c *Client) GetRunSummary(ctx context.Context, dest interface{}) error {
	return c.GetJSON(ctx, runSummaryKey, dest)
}

func (c *Client) GetTenantRunSummary(ctx context.Context, tenantID string, dest interface{}) error {
	return c.GetJSON(ctx, fmt.Sprintf(runSummaryTenant, tenantID), dest)
}
