package ratelimit

import (
	"context"
	"errors"
)

// ErrThrottled is returned when a send slot did not open within the wait budget.
var ErrThrottled = errors.New("send throttled")

// RateLimiter gates provider calls per delivery channel.
type RateLimiter interface {
	Wait(ctx context.Context, channel string) error
}

// Unlimited never throttles.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context, _ string) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
