package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/customer"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/policy"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"github.com/kursadbilgin/notification-dispatcher/internal/queue"
	"github.com/kursadbilgin/notification-dispatcher/internal/render"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/retry"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

// fakeNotificationRepo delegates to an in-memory store unless a function
// field overrides the call.
type fakeNotificationRepo struct {
	repository.NotificationRepository

	createFn       func(ctx context.Context, n *domain.Notification) error
	listByStatusFn func(ctx context.Context, status domain.Status, limit int) ([]domain.Notification, error)
	markSentFn     func(ctx context.Context, id string, sentAt time.Time) error
	markResentFn   func(ctx context.Context, id string, sentAt time.Time) error
	reclaimFn      func(ctx context.Context, cutoff time.Time, errorMessage string, failedAt time.Time) (int64, error)
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{NotificationRepository: repository.NewMemoryNotificationRepo()}
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return f.NotificationRepository.Create(ctx, n)
}

func (f *fakeNotificationRepo) ListByStatus(ctx context.Context, status domain.Status, limit int) ([]domain.Notification, error) {
	if f.listByStatusFn != nil {
		return f.listByStatusFn(ctx, status, limit)
	}
	return f.NotificationRepository.ListByStatus(ctx, status, limit)
}

func (f *fakeNotificationRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id, sentAt)
	}
	return f.NotificationRepository.MarkSent(ctx, id, sentAt)
}

func (f *fakeNotificationRepo) MarkResent(ctx context.Context, id string, sentAt time.Time) error {
	if f.markResentFn != nil {
		return f.markResentFn(ctx, id, sentAt)
	}
	return f.NotificationRepository.MarkResent(ctx, id, sentAt)
}

func (f *fakeNotificationRepo) ReclaimStalePending(ctx context.Context, cutoff time.Time, errorMessage string, failedAt time.Time) (int64, error) {
	if f.reclaimFn != nil {
		return f.reclaimFn(ctx, cutoff, errorMessage, failedAt)
	}
	return f.NotificationRepository.ReclaimStalePending(ctx, cutoff, errorMessage, failedAt)
}

type fakeProvider struct {
	mu     sync.Mutex
	sendFn func(ctx context.Context, msg provider.Message) (*provider.ProviderResponse, error)
	sent   []provider.Message
}

func (f *fakeProvider) Send(ctx context.Context, msg provider.Message) (*provider.ProviderResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.sendFn != nil {
		return f.sendFn(ctx, msg)
	}
	return &provider.ProviderResponse{StatusCode: 250, MessageID: "<msg@banking.com>"}, nil
}

func (f *fakeProvider) calls() []provider.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Message(nil), f.sent...)
}

type fakePublisher struct {
	mu        sync.Mutex
	publishFn func(ctx context.Context, msg queue.Outgoing) error
	published []queue.Outgoing
}

func (f *fakePublisher) Publish(ctx context.Context, msg queue.Outgoing) error {
	f.mu.Lock()
	f.published = append(f.published, msg)
	f.mu.Unlock()
	if f.publishFn != nil {
		return f.publishFn(ctx, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) messages() []queue.Outgoing {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.Outgoing(nil), f.published...)
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeDirectory struct {
	lookupFn func(ctx context.Context, customerID int64) (*customer.Details, error)
}

func (f *fakeDirectory) Lookup(ctx context.Context, customerID int64) (*customer.Details, error) {
	if f.lookupFn != nil {
		return f.lookupFn(ctx, customerID)
	}
	return &customer.Details{ID: customerID, Name: "John Doe", Email: "john.doe@example.com", Phone: "+919876543210"}, nil
}

// fakeTracker keeps account statuses in a map.
type fakeTracker struct {
	mu       sync.Mutex
	statuses map[int64]string
	lastErr  error
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{statuses: map[int64]string{}}
}

func (f *fakeTracker) Last(_ context.Context, accountID int64) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastErr != nil {
		return "", false, f.lastErr
	}
	status, found := f.statuses[accountID]
	return status, found, nil
}

func (f *fakeTracker) Record(_ context.Context, accountID int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[accountID] = status
	return nil
}

func (f *fakeTracker) status(accountID int64) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.statuses[accountID]
	return s, ok
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	<-ctx.Done()
	return nil
}

func (f *fakeConsumer) Close() error { return nil }

type fakeDispatcher struct {
	submitTransactionFn   func(ctx context.Context, event domain.TransactionEvent) (*domain.DispatchResult, error)
	submitAccountStatusFn func(ctx context.Context, event domain.AccountStatusEvent) (*domain.DispatchResult, error)
	processAccountUpdate  func(ctx context.Context, event domain.AccountUpdateEvent) (*domain.DispatchResult, error)
}

func (f *fakeDispatcher) SubmitTransaction(ctx context.Context, event domain.TransactionEvent) (*domain.DispatchResult, error) {
	if f.submitTransactionFn != nil {
		return f.submitTransactionFn(ctx, event)
	}
	return &domain.DispatchResult{}, nil
}

func (f *fakeDispatcher) SubmitAccountStatus(ctx context.Context, event domain.AccountStatusEvent) (*domain.DispatchResult, error) {
	if f.submitAccountStatusFn != nil {
		return f.submitAccountStatusFn(ctx, event)
	}
	return &domain.DispatchResult{}, nil
}

func (f *fakeDispatcher) ProcessAccountUpdate(ctx context.Context, event domain.AccountUpdateEvent) (*domain.DispatchResult, error) {
	if f.processAccountUpdate != nil {
		return f.processAccountUpdate(ctx, event)
	}
	return &domain.DispatchResult{}, nil
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type testDispatcher struct {
	*Dispatcher
	repo     *fakeNotificationRepo
	attempts *repository.MemoryAttemptRepo
	provider *fakeProvider
	sleeps   *sleepRecorder
}

func newTestDispatcher(t testing.TB) *testDispatcher {
	t.Helper()

	gate, err := policy.NewGate(domain.MustParseAmount("50000"))
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}

	sleeps := &sleepRecorder{}
	rp := retry.DefaultPolicy()
	rp.Sleep = sleeps.sleep

	repo := newFakeNotificationRepo()
	attempts := repository.NewMemoryAttemptRepo()
	p := &fakeProvider{}

	d, err := NewDispatcher(repo, attempts, p, gate, render.NewRenderer("₹"), rp, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	d.now = func() time.Time { return testNow }

	return &testDispatcher{Dispatcher: d, repo: repo, attempts: attempts, provider: p, sleeps: sleeps}
}

func transactionEvent(amount string) domain.TransactionEvent {
	occurredAt := testNow
	return domain.TransactionEvent{
		TransactionID:   1001,
		AccountID:       7,
		AccountNumber:   "1234567890",
		Amount:          domain.MustParseAmount(amount),
		TransactionType: domain.TransactionTypeWithdrawal,
		RecipientEmail:  "john.doe@example.com",
		RecipientPhone:  "+919876543210",
		CustomerName:    "John Doe",
		OccurredAt:      &occurredAt,
	}
}

func accountStatusEvent(oldStatus, newStatus domain.AccountStatus) domain.AccountStatusEvent {
	return domain.AccountStatusEvent{
		AccountID:      7,
		AccountNumber:  "1234567890",
		OldStatus:      oldStatus,
		NewStatus:      newStatus,
		CustomerName:   "John Doe",
		RecipientEmail: "john.doe@example.com",
		RecipientPhone: "+919876543210",
	}
}
