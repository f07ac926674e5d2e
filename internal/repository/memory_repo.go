package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// MemoryNotificationRepo is a process-local NotificationRepository backing
// the service and HTTP tests.
type MemoryNotificationRepo struct {
	mu      sync.RWMutex
	records map[string]*memoryRecord
	seq     int64
	now     func() time.Time
}

type memoryRecord struct {
	seq          int64
	notification domain.Notification
}

func NewMemoryNotificationRepo() *MemoryNotificationRepo {
	return &MemoryNotificationRepo{
		records: make(map[string]*memoryRecord),
		now:     time.Now,
	}
}

// SetClock replaces the creation-time source.
func (r *MemoryNotificationRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryNotificationRepo) Create(_ context.Context, n *domain.Notification) error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if _, exists := r.records[n.ID]; exists {
		return fmt.Errorf("%w: notification %s already exists", domain.ErrConflict, n.ID)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now().UTC()
	}

	r.seq++
	r.records[n.ID] = &memoryRecord{seq: r.seq, notification: cloneNotification(*n)}
	return nil
}

func (r *MemoryNotificationRepo) GetByID(_ context.Context, id string) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	n := cloneNotification(rec.notification)
	return &n, nil
}

func (r *MemoryNotificationRepo) List(_ context.Context, params ListParams) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.sorted(func(n *domain.Notification) bool {
		if params.Status != nil && n.Status != *params.Status {
			return false
		}
		if params.From != nil && n.CreatedAt.Before(*params.From) {
			return false
		}
		if params.To != nil && n.CreatedAt.After(*params.To) {
			return false
		}
		return true
	})
	return matched, nil
}

func (r *MemoryNotificationRepo) ListRecent(_ context.Context, limit int) ([]domain.Notification, error) {
	if limit < 1 || limit > RecentLimit {
		limit = RecentLimit
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.sorted(nil)
	out := make([]domain.Notification, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (r *MemoryNotificationRepo) ListByStatus(_ context.Context, status domain.Status, limit int) ([]domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.sorted(func(n *domain.Notification) bool { return n.Status == status })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemoryNotificationRepo) CountByStatus(_ context.Context) (map[domain.Status]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := map[domain.Status]int64{
		domain.StatusPending: 0,
		domain.StatusSent:    0,
		domain.StatusFailed:  0,
	}
	for _, rec := range r.records {
		counts[rec.notification.Status]++
	}
	return counts, nil
}

func (r *MemoryNotificationRepo) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	return r.transition(id, domain.StatusPending, func(n *domain.Notification) {
		n.Status = domain.StatusSent
		n.SentAt = timePtr(sentAt)
		n.FailedAt = nil
	})
}

func (r *MemoryNotificationRepo) MarkFailed(_ context.Context, id string, errorMessage string, failedAt time.Time) error {
	return r.transition(id, domain.StatusPending, func(n *domain.Notification) {
		n.Status = domain.StatusFailed
		n.ErrorMessage = &errorMessage
		n.FailedAt = timePtr(failedAt)
		n.SentAt = nil
	})
}

func (r *MemoryNotificationRepo) MarkResent(_ context.Context, id string, sentAt time.Time) error {
	return r.transition(id, domain.StatusFailed, func(n *domain.Notification) {
		n.Status = domain.StatusSent
		n.SentAt = timePtr(sentAt)
		n.FailedAt = nil
		n.ErrorMessage = nil
	})
}

func (r *MemoryNotificationRepo) ReclaimStalePending(_ context.Context, cutoff time.Time, errorMessage string, failedAt time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var reclaimed int64
	for _, rec := range r.records {
		n := &rec.notification
		if n.Status != domain.StatusPending || !n.CreatedAt.Before(cutoff) {
			continue
		}
		msg := errorMessage
		n.Status = domain.StatusFailed
		n.ErrorMessage = &msg
		n.FailedAt = timePtr(failedAt)
		reclaimed++
	}
	return reclaimed, nil
}

func (r *MemoryNotificationRepo) transition(id string, from domain.Status, apply func(n *domain.Notification)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if rec.notification.Status != from {
		return fmt.Errorf("%w: notification %s is no longer %s", domain.ErrConflict, id, from)
	}
	apply(&rec.notification)
	return nil
}

// sorted returns matching records by creation time, then insertion order.
// Callers must hold the lock.
func (r *MemoryNotificationRepo) sorted(match func(n *domain.Notification) bool) []domain.Notification {
	recs := make([]*memoryRecord, 0, len(r.records))
	for _, rec := range r.records {
		if match == nil || match(&rec.notification) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.notification.CreatedAt.Equal(b.notification.CreatedAt) {
			return a.notification.CreatedAt.Before(b.notification.CreatedAt)
		}
		return a.seq < b.seq
	})

	out := make([]domain.Notification, 0, len(recs))
	for _, rec := range recs {
		out = append(out, cloneNotification(rec.notification))
	}
	return out
}

func cloneNotification(n domain.Notification) domain.Notification {
	if n.ErrorMessage != nil {
		msg := *n.ErrorMessage
		n.ErrorMessage = &msg
	}
	if n.CustomerID != nil {
		id := *n.CustomerID
		n.CustomerID = &id
	}
	if n.SentAt != nil {
		n.SentAt = timePtr(*n.SentAt)
	}
	if n.FailedAt != nil {
		n.FailedAt = timePtr(*n.FailedAt)
	}
	return n
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// MemoryAttemptRepo is the in-process AttemptRepository.
type MemoryAttemptRepo struct {
	mu       sync.RWMutex
	attempts map[string][]domain.DeliveryAttempt
}

func NewMemoryAttemptRepo() *MemoryAttemptRepo {
	return &MemoryAttemptRepo{attempts: make(map[string][]domain.DeliveryAttempt)}
}

func (r *MemoryAttemptRepo) Create(_ context.Context, a *domain.DeliveryAttempt) error {
	if a == nil {
		return fmt.Errorf("%w: attempt is required", domain.ErrValidation)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[a.NotificationID] = append(r.attempts[a.NotificationID], *a)
	return nil
}

func (r *MemoryAttemptRepo) ListByNotificationID(_ context.Context, notificationID string) ([]domain.DeliveryAttempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]domain.DeliveryAttempt(nil), r.attempts[notificationID]...), nil
}
