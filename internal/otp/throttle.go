package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle limits how often a code can be (re)sent to one phone.
type Throttle interface {
	Allow(ctx context.Context, phone string) (bool, error)
	Release(ctx context.Context, phone string) error
}

type RedisThrottle struct {
	client *redis.Client
	window time.Duration
	prefix string
}

func NewRedisThrottle(client *redis.Client, window time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, window: window, prefix: "otp:resend:"}
}

// Allow claims the phone's send slot for the window. A second call inside the
// window is refused.
func (t *RedisThrottle) Allow(ctx context.Context, phone string) (bool, error) {
	if t.window <= 0 {
		return true, nil
	}
	ok, err := t.client.SetNX(ctx, t.prefix+phone, time.Now().Unix(), t.window).Result()
	if err != nil {
		return false, fmt.Errorf("otp throttle: %w", err)
	}
	return ok, nil
}

// Release frees the phone's slot, used when the send was rejected downstream.
func (t *RedisThrottle) Release(ctx context.Context, phone string) error {
	return t.client.Del(ctx, t.prefix+phone).Err()
}

type NopThrottle struct{}

func (NopThrottle) Allow(context.Context, string) (bool, error) { return true, nil }

func (NopThrottle) Release(context.Context, string) error { return nil }
