package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
)

func TestQueryServiceReads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	td := newTestDispatcher(t)
	query, err := NewQueryService(td.repo, td.attempts)
	if err != nil {
		t.Fatalf("NewQueryService() error = %v", err)
	}

	result, err := td.SubmitTransaction(ctx, transactionEvent("50000"))
	if err != nil {
		t.Fatalf("SubmitTransaction() error = %v", err)
	}

	got, err := query.GetByID(ctx, " "+result.NotificationID+" ")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ID != result.NotificationID {
		t.Fatalf("GetByID() id = %q, want %q", got.ID, result.NotificationID)
	}

	attempts, err := query.Attempts(ctx, result.NotificationID)
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("Attempts() = %d, want 1", len(attempts))
	}

	recent, err := query.Recent(ctx)
	if err != nil || len(recent) != 1 {
		t.Fatalf("Recent() = %d, %v, want 1 record", len(recent), err)
	}

	stats, err := query.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats[domain.StatusSent] != 1 || stats[domain.StatusFailed] != 0 || stats[domain.StatusPending] != 0 {
		t.Fatalf("Stats() = %v, want one SENT", stats)
	}

	sent := domain.StatusSent
	listed, err := query.List(ctx, repository.ListParams{Status: &sent})
	if err != nil || len(listed) != 1 {
		t.Fatalf("List(SENT) = %d, %v, want 1 record", len(listed), err)
	}
}

func TestQueryServiceErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	query, _ := NewQueryService(repository.NewMemoryNotificationRepo(), repository.NewMemoryAttemptRepo())

	if _, err := query.GetByID(ctx, "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("GetByID(blank) error = %v, want ErrValidation", err)
	}
	if _, err := query.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := query.Attempts(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Attempts(missing) error = %v, want ErrNotFound", err)
	}

	from := testNow
	to := testNow.Add(-time.Hour)
	if _, err := query.List(ctx, repository.ListParams{From: &from, To: &to}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("List(from after to) error = %v, want ErrValidation", err)
	}
	bogus := domain.Status("QUEUED")
	if _, err := query.List(ctx, repository.ListParams{Status: &bogus}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("List(bad status) error = %v, want ErrValidation", err)
	}

	if _, err := NewQueryService(nil, repository.NewMemoryAttemptRepo()); err == nil {
		t.Fatal("expected error when notification repository is nil")
	}
}
