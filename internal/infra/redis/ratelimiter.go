package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLimitPerSec int64 = 100
	defaultMaxWait           = 5 * time.Second
	backoffStep              = 10 * time.Millisecond
	backoffMax               = 50 * time.Millisecond
	windowSeconds            = 1
)

// Increments the window counter, setting its expiry on first use.
var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*SendThrottle)(nil)

// SendThrottle is a fixed-window per-second limiter shared by every
// dispatcher instance through Redis. Windows are keyed by channel.
type SendThrottle struct {
	client      goredis.Scripter
	limitPerSec int64
	maxWait     time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewSendThrottle(client goredis.Scripter, limitPerSec int, maxWait time.Duration) (*SendThrottle, error) {
	return newSendThrottle(client, int64(limitPerSec), maxWait, time.Now, sleepWithContext)
}

func newSendThrottle(
	client goredis.Scripter,
	limitPerSec int64,
	maxWait time.Duration,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*SendThrottle, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limitPerSec <= 0 {
		limitPerSec = defaultLimitPerSec
	}
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &SendThrottle{
		client:      client,
		limitPerSec: limitPerSec,
		maxWait:     maxWait,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

// Allow takes one slot in the current window if any remain.
func (s *SendThrottle) Allow(ctx context.Context, channel string) (bool, error) {
	if s == nil || s.client == nil {
		return false, fmt.Errorf("send throttle is not initialized")
	}

	normalized := strings.ToLower(strings.TrimSpace(channel))
	if normalized == "" {
		return false, fmt.Errorf("channel is required")
	}

	key := fmt.Sprintf("throttle:%s:%d", normalized, s.now().UTC().Unix())
	result, err := allowScript.Run(ctx, s.client, []string{key}, s.limitPerSec, windowSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate send throttle: %w", err)
	}

	return result == 1, nil
}

// Wait blocks until a slot is free, ctx ends, or maxWait has elapsed.
func (s *SendThrottle) Wait(ctx context.Context, channel string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	deadline := s.now().Add(s.maxWait)
	backoff := backoffStep
	for {
		allowed, err := s.Allow(ctx, channel)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if !s.now().Before(deadline) {
			return fmt.Errorf("%w: no %s slot within %s", ratelimit.ErrThrottled, channel, s.maxWait)
		}

		if err := s.sleep(ctx, backoff); err != nil {
			return err
		}

		backoff = min(backoff+backoffStep, backoffMax)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
