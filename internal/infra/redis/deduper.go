package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultDedupTTL = 24 * time.Hour

// MessageDeduper remembers queue message ids that were fully handled so
// at-least-once redeliveries of them are skipped. A message id is only
// remembered after its handler succeeded; a crash mid-handle leaves no key
// and the redelivery is processed.
type MessageDeduper struct {
	client goredis.Cmdable
	ttl    time.Duration
}

func NewMessageDeduper(client goredis.Cmdable, ttl time.Duration) (*MessageDeduper, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &MessageDeduper{client: client, ttl: ttl}, nil
}

func dedupKey(scope, messageID string) string {
	return fmt.Sprintf("dedup:%s:%s", scope, messageID)
}

// Seen reports whether (scope, messageID) was already handled.
// An empty messageID cannot be deduplicated and is never seen.
func (d *MessageDeduper) Seen(ctx context.Context, scope, messageID string) (bool, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return false, nil
	}

	_, err := d.client.Get(ctx, dedupKey(scope, messageID)).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}
	return true, nil
}

// Remember marks (scope, messageID) as handled for the dedup TTL.
func (d *MessageDeduper) Remember(ctx context.Context, scope, messageID string) error {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil
	}
	if err := d.client.Set(ctx, dedupKey(scope, messageID), 1, d.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store dedup key: %w", err)
	}
	return nil
}
