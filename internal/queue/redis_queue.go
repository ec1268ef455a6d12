package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTimeout = errors.New("queue timeout")

const defaultQueueName = "ads-guardian:run-requests"

// RunRequest asks the scheduler for an immediate run outside the regular
// interval, typically for one tenant after it reconnected its account.
type RunRequest struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	CheckIDs    []string  `json:"check_ids,omitempty"`
	DryRun      bool      `json:"dry_run"`
	RequestedBy string    `json:"requested_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type RedisQueue struct {
	client    *redis.Client
	queueName string
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{
		client:    client,
		queueName: defaultQueueName,
	}
}

// Push enqueues a request; requests are served oldest first.
func (q *RedisQueue) Push(ctx context.Context, req *RunRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal run request: %w", err)
	}

	err = q.client.ZAdd(ctx, q.queueName, redis.Z{
		Score:  float64(req.CreatedAt.UnixMilli()),
		Member: data,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to push run request: %w", err)
	}

	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*RunRequest, error) {
	result, err := q.client.BZPopMin(ctx, timeout, q.queueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("failed to pop run request: %w", err)
	}

	member, ok := result.Member.(string)
	if !ok {
		return nil, errors.New("invalid result from queue")
	}

	var req RunRequest
	if err := json.Unmarshal([]byte(member), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run request: %w", err)
	}

	return &req, nil
}

func (q *RedisQueue) Length(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.queueName).Result()
}
