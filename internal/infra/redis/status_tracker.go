package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// AccountStatusTracker keeps the last notified status per account.
type AccountStatusTracker struct {
	client goredis.Cmdable
}

func NewAccountStatusTracker(client goredis.Cmdable) (*AccountStatusTracker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &AccountStatusTracker{client: client}, nil
}

func accountStatusKey(accountID int64) string {
	return fmt.Sprintf("account:status:%d", accountID)
}

// Last returns the recorded status for the account. found is false when
// nothing was recorded yet.
func (t *AccountStatusTracker) Last(ctx context.Context, accountID int64) (status string, found bool, err error) {
	status, err = t.client.Get(ctx, accountStatusKey(accountID)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read account status: %w", err)
	}
	return status, true, nil
}

// Record stores status as the last notified status for the account.
func (t *AccountStatusTracker) Record(ctx context.Context, accountID int64, status string) error {
	if err := t.client.Set(ctx, accountStatusKey(accountID), status, 0).Err(); err != nil {
		return fmt.Errorf("failed to record account status: %w", err)
	}
	return nil
}
