// Package memory keeps orders, subscriptions and their outbox in process.
// All access is serialized by one mutex, which gives the per-key atomic
// read-modify-write the callback path relies on.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
	"github.com/dmehra2102/payapp-backend/pkg/outbox"
	"github.com/dmehra2102/payapp-backend/pkg/tracing"
)

var errDuplicateKey = errors.New("duplicate key")

type Store struct {
	log *slog.Logger

	mu      sync.Mutex
	orders  map[string]domain.Order
	byMulNo map[string]string
	subs    map[string]domain.Subscription
	events  []outbox.Event
	nextID  int64
}

func NewStore(log *slog.Logger) *Store {
	return &Store{
		log:     log,
		orders:  map[string]domain.Order{},
		byMulNo: map[string]string{},
		subs:    map[string]domain.Subscription{},
	}
}

func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("order %s: %w", o.ID, errDuplicateKey)
	}
	if _, ok := s.byMulNo[o.MulNo]; ok && o.MulNo != "" {
		return fmt.Errorf("mul_no %s: %w", o.MulNo, errDuplicateKey)
	}
	s.orders[o.ID] = o
	if o.MulNo != "" {
		s.byMulNo[o.MulNo] = o.ID
	}
	s.enqueue(ctx, domain.OrderCreatedMessage(o))
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.orders[id]; ok {
		return o, nil
	}
	if oid, ok := s.byMulNo[id]; ok {
		return s.orders[oid], nil
	}
	return domain.Order{}, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
}

func (s *Store) ListOrders(ctx context.Context, f domain.OrderFilter) (domain.OrderPage, error) {
	f = f.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.Status == "" || o.Status == f.Status {
			matched = append(matched, o)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	page := domain.OrderPage{Total: len(matched), Page: f.Page, Limit: f.Limit, Orders: []domain.Order{}}
	if off := f.Offset(); off < len(matched) {
		end := min(off+f.Limit, len(matched))
		page.Orders = append(page.Orders, matched[off:end]...)
	}
	return page, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, mulNo string, u domain.StatusUpdate) (domain.Order, domain.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byMulNo[mulNo]
	if !ok {
		return domain.Order{}, "", fmt.Errorf("order mul_no %s: %w", mulNo, apperr.ErrNotFound)
	}
	o := s.orders[id]
	prev := o.Status
	outcome := o.Apply(u)
	if outcome != domain.OutcomeApplied {
		return o, outcome, nil
	}
	s.orders[id] = o
	s.enqueue(ctx, domain.OrderStatusMessage(prev, o))
	return o, outcome, nil
}

func (s *Store) CreateSubscription(ctx context.Context, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.RebillNo]; ok {
		return fmt.Errorf("rebill %s: %w", sub.RebillNo, errDuplicateKey)
	}
	s.subs[sub.RebillNo] = sub
	s.enqueue(ctx, domain.SubscriptionCreatedMessage(sub))
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, rebillNo string) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[rebillNo]
	if !ok {
		return domain.Subscription{}, fmt.Errorf("rebill %s: %w", rebillNo, apperr.ErrNotFound)
	}
	return sub, nil
}

func (s *Store) UpdateSubscriptionStatus(ctx context.Context, rebillNo string, status domain.SubscriptionStatus, at time.Time) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[rebillNo]
	if !ok {
		return domain.Subscription{}, fmt.Errorf("rebill %s: %w", rebillNo, apperr.ErrNotFound)
	}
	if sub.Status == status {
		return sub, nil
	}
	prev := sub.Status
	sub.Status = status
	sub.UpdatedAt = at.UTC()
	s.subs[rebillNo] = sub
	s.enqueue(ctx, domain.SubscriptionStatusMessage(prev, sub))
	return sub, nil
}

func (s *Store) RecordBilling(ctx context.Context, rebillNo string, b domain.Billing) (domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[rebillNo]
	if !ok {
		return domain.Subscription{}, fmt.Errorf("rebill %s: %w", rebillNo, apperr.ErrNotFound)
	}
	if sub.LastMulNo == b.MulNo && sub.LastPayState == b.PayState {
		return sub, nil
	}
	sub.RecordBilling(b)
	s.subs[rebillNo] = sub
	s.enqueue(ctx, domain.SubscriptionBilledMessage(sub))
	return sub, nil
}

// enqueue must be called with mu held.
func (s *Store) enqueue(ctx context.Context, m outbox.Message) {
	s.nextID++
	s.events = append(s.events, outbox.Event{
		ID:            s.nextID,
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		Type:          m.Type,
		Payload:       m.Payload,
		Headers:       m.Headers,
		Traceparent:   tracing.Traceparent(ctx),
		CreatedAt:     time.Now().UTC(),
		Status:        outbox.StatusPending,
	})
	s.log.DebugContext(ctx, "outbox event queued", "type", m.Type, "aggregate_id", m.AggregateID)
}

// Events returns a copy of the outbox, oldest first.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.events...)
}

func (s *Store) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []outbox.Event
	for i := range s.events {
		e := &s.events[i]
		if len(out) == batchSize {
			break
		}
		if e.Status == outbox.StatusPending || (e.Status == outbox.StatusFailed && e.RetryCount < outbox.MaxRetries) {
			e.Status = outbox.StatusInProgress
			e.RelayID = relayID
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *Store) MarkSent(ctx context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range s.events {
		if want[s.events[i].ID] {
			s.events[i].Status = outbox.StatusSent
		}
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if s.events[i].ID == id {
			msg := errMsg
			s.events[i].Status = outbox.StatusFailed
			s.events[i].RetryCount++
			s.events[i].LastError = &msg
			return nil
		}
	}
	return fmt.Errorf("outbox event %d: %w", id, apperr.ErrNotFound)
}
