package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultReclaimStaleAfter = 15 * time.Minute
	defaultReclaimInterval   = time.Minute

	// ReclaimedErrorMessage is stored on records whose delivery outcome was lost.
	ReclaimedErrorMessage = "delivery outcome unknown"
)

// PendingReclaimer fails records left PENDING by a crash between delivery
// and the final status write, so the resweep picks them up.
type PendingReclaimer struct {
	notifications repository.NotificationRepository
	metrics       *observability.Metrics
	logger        *zap.Logger
	staleAfter    time.Duration
	interval      time.Duration
	now           func() time.Time
}

func NewPendingReclaimer(
	notifications repository.NotificationRepository,
	staleAfter time.Duration,
	interval time.Duration,
	logger *zap.Logger,
) (*PendingReclaimer, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if staleAfter <= 0 {
		staleAfter = defaultReclaimStaleAfter
	}
	if interval <= 0 {
		interval = defaultReclaimInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PendingReclaimer{
		notifications: notifications,
		logger:        logger,
		staleAfter:    staleAfter,
		interval:      interval,
		now:           time.Now,
	}, nil
}

func (r *PendingReclaimer) SetMetrics(metrics *observability.Metrics) { r.metrics = metrics }

func (r *PendingReclaimer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := r.reclaim(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("pending reclaimer initial scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.reclaim(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("pending reclaimer scan failed", zap.Error(err))
			}
		}
	}
}

func (r *PendingReclaimer) reclaim(ctx context.Context) (int64, error) {
	now := r.now().UTC()
	cutoff := now.Add(-r.staleAfter)

	reclaimed, err := r.notifications.ReclaimStalePending(ctx, cutoff, ReclaimedErrorMessage, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale pending notifications: %w", err)
	}
	if reclaimed > 0 {
		r.metrics.AddPendingReclaimed(reclaimed)
		r.logger.Warn("reclaimed stale pending notifications",
			zap.Int64("count", reclaimed),
			zap.Time("cutoff", cutoff),
		)
	}
	return reclaimed, nil
}
