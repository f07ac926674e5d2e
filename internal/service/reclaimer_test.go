package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"go.uber.org/zap"
)

func TestNewPendingReclaimerAppliesDefaults(t *testing.T) {
	t.Parallel()

	reclaimer, err := NewPendingReclaimer(repository.NewMemoryNotificationRepo(), 0, 0, nil)
	if err != nil {
		t.Fatalf("NewPendingReclaimer() error = %v", err)
	}
	if reclaimer.staleAfter != defaultReclaimStaleAfter {
		t.Fatalf("staleAfter = %s, want %s", reclaimer.staleAfter, defaultReclaimStaleAfter)
	}
	if reclaimer.interval != defaultReclaimInterval {
		t.Fatalf("interval = %s, want %s", reclaimer.interval, defaultReclaimInterval)
	}

	if _, err := NewPendingReclaimer(nil, 0, 0, nil); err == nil {
		t.Fatal("expected error when notification repository is nil")
	}
}

func TestPendingReclaimerFailsStaleRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := repository.NewMemoryNotificationRepo()

	created := testNow
	repo.SetClock(func() time.Time { return created })
	newPending := func() string {
		n := &domain.Notification{
			RecipientEmail: "jo***@example.com",
			Kind:           domain.KindHighValueTransaction,
			Channel:        domain.ChannelEmail,
			Subject:        "High-Value Transaction Alert - ₹50000",
			Message:        "Dear John",
			Status:         domain.StatusPending,
		}
		if err := repo.Create(ctx, n); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		return n.ID
	}

	stale := newPending()
	sent := newPending()
	if err := repo.MarkSent(ctx, sent, testNow); err != nil {
		t.Fatalf("MarkSent() error = %v", err)
	}
	created = testNow.Add(20 * time.Minute)
	fresh := newPending()

	reclaimer, err := NewPendingReclaimer(repo, 15*time.Minute, time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPendingReclaimer() error = %v", err)
	}
	reclaimer.now = func() time.Time { return testNow.Add(30 * time.Minute) }

	count, err := reclaimer.reclaim(ctx)
	if err != nil {
		t.Fatalf("reclaim() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("reclaimed = %d, want 1", count)
	}

	n, _ := repo.GetByID(ctx, stale)
	if n.Status != domain.StatusFailed || n.ErrorMessage == nil || *n.ErrorMessage != ReclaimedErrorMessage {
		t.Fatalf("stale record = %+v, want FAILED with %q", n, ReclaimedErrorMessage)
	}
	if n, _ := repo.GetByID(ctx, sent); n.Status != domain.StatusSent {
		t.Fatalf("sent record Status = %s, want SENT", n.Status)
	}
	if n, _ := repo.GetByID(ctx, fresh); n.Status != domain.StatusPending {
		t.Fatalf("fresh record Status = %s, want PENDING", n.Status)
	}
}

func TestPendingReclaimerPassesCutoff(t *testing.T) {
	t.Parallel()

	var gotCutoff, gotFailedAt time.Time
	repo := newFakeNotificationRepo()
	repo.reclaimFn = func(ctx context.Context, cutoff time.Time, errorMessage string, failedAt time.Time) (int64, error) {
		gotCutoff, gotFailedAt = cutoff, failedAt
		return 0, nil
	}

	reclaimer, _ := NewPendingReclaimer(repo, 10*time.Minute, time.Minute, zap.NewNop())
	reclaimer.now = func() time.Time { return testNow }

	if _, err := reclaimer.reclaim(context.Background()); err != nil {
		t.Fatalf("reclaim() error = %v", err)
	}
	if !gotCutoff.Equal(testNow.Add(-10 * time.Minute)) {
		t.Fatalf("cutoff = %s, want %s", gotCutoff, testNow.Add(-10*time.Minute))
	}
	if !gotFailedAt.Equal(testNow) {
		t.Fatalf("failedAt = %s, want %s", gotFailedAt, testNow)
	}
}

func TestPendingReclaimerStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := newFakeNotificationRepo()
	repo.reclaimFn = func(ctx context.Context, cutoff time.Time, errorMessage string, failedAt time.Time) (int64, error) {
		return 0, errors.New("db down")
	}

	reclaimer, _ := NewPendingReclaimer(repo, time.Minute, 10*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := reclaimer.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}
