package dragonfly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/searchandrescuegg/firstaid/internal/emergency"
)

const (
	callKeyPrefix  = "firstaid:call:"
	endedKeyPrefix = "firstaid:ended:"
)

type DragonflyClient struct {
	client         *redis.Client
	requestTimeout time.Duration
}

func NewClient(ctx context.Context, opts *redis.Options, requestTimeout time.Duration) (*DragonflyClient, error) {
	redisClient := redis.NewClient(opts)
	_, err := redisClient.Ping(ctx).Result()
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &DragonflyClient{client: redisClient, requestTimeout: requestTimeout}, nil
}

func (d *DragonflyClient) Close() error {
	return d.client.Close()
}

func callKey(callID string) string {
	return callKeyPrefix + callID
}

func (d *DragonflyClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.requestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.requestTimeout)
}

// GetCall returns the cached snapshot for callID, or nil when none is stored.
func (d *DragonflyClient) GetCall(ctx context.Context, callID string) (*emergency.CallHandle, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	value, err := d.client.Get(ctx, callKey(callID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value for call %s: %w", callID, err)
	}

	var handle emergency.CallHandle
	if err := json.Unmarshal(value, &handle); err != nil {
		return nil, fmt.Errorf("failed to decode cached call %s: %w", callID, err)
	}

	return &handle, nil
}

// PutCall stores a final snapshot, replacing any earlier one.
func (d *DragonflyClient) PutCall(ctx context.Context, handle *emergency.CallHandle, ttl time.Duration) error {
	payload, err := json.Marshal(handle)
	if err != nil {
		return fmt.Errorf("failed to encode call %s: %w", handle.CallID, err)
	}

	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.client.Set(ctx, callKey(handle.CallID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set value for call %s: %w", handle.CallID, err)
	}

	return nil
}

// ClaimEnded reports whether this is the first claim on callID's ended
// notification within ttl.
func (d *DragonflyClient) ClaimEnded(ctx context.Context, callID string, ttl time.Duration) (bool, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()

	claimed, err := d.client.SetNX(ctx, endedKeyPrefix+callID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim ended call %s: %w", callID, err)
	}

	return claimed, nil
}
