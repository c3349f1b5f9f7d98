package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
	"github.com/dmehra2102/payapp-backend/pkg/outbox"
)

func newStore() *Store { return NewStore(slog.New(slog.NewTextHandler(io.Discard, nil))) }

func TestStore_OrderLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	now := time.Now()

	o := domain.NewOrder("ORDER_1", "555", 10000, "01012345678", "Widget", "", "ORDER_1", "", now)
	if err := s.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if err := s.CreateOrder(ctx, o); err == nil {
		t.Fatal("expected duplicate id error")
	}

	byID, err := s.GetOrder(ctx, "ORDER_1")
	if err != nil {
		t.Fatalf("GetOrder by id: %v", err)
	}
	byMulNo, err := s.GetOrder(ctx, "555")
	if err != nil || byMulNo.ID != byID.ID {
		t.Fatalf("GetOrder by mul_no: %+v, %v", byMulNo, err)
	}
	if _, err := s.GetOrder(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	updated, outcome, err := s.UpdateOrderStatus(ctx, "555", domain.StatusUpdate{Status: domain.StatusCompleted, PayState: "4", At: now})
	if err != nil || outcome != domain.OutcomeApplied || updated.Status != domain.StatusCompleted {
		t.Fatalf("UpdateOrderStatus: %+v %s %v", updated, outcome, err)
	}
	if _, _, err := s.UpdateOrderStatus(ctx, "999", domain.StatusUpdate{Status: domain.StatusCompleted}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	events := s.Events()
	if len(events) != 2 || events[0].Type != domain.EventPaymentRequested || events[1].Type != domain.EventPaymentStatusChanged {
		t.Fatalf("unexpected outbox %+v", events)
	}
}

func TestStore_ConcurrentRedeliveryAppliesOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	if err := s.CreateOrder(ctx, domain.NewOrder("ORDER_1", "555", 1, "p", "n", "", "", "", time.Now())); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome, err := s.UpdateOrderStatus(ctx, "555", domain.StatusUpdate{Status: domain.StatusCompleted, PayState: "4", At: time.Now()})
			if err != nil {
				t.Errorf("UpdateOrderStatus: %v", err)
				return
			}
			if outcome == domain.OutcomeApplied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Fatalf("expected exactly one applied update, got %d", applied)
	}
	if n := len(s.Events()); n != 2 {
		t.Fatalf("expected 2 outbox events, got %d", n)
	}
}

func TestStore_ListOrders(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		o := domain.NewOrder(fmt.Sprintf("ORDER_%d", i), fmt.Sprintf("%d", 100+i), 1, "p", "n", "", "", "", base.Add(time.Duration(i)*time.Minute))
		if err := s.CreateOrder(ctx, o); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}
	if _, _, err := s.UpdateOrderStatus(ctx, "101", domain.StatusUpdate{Status: domain.StatusFailed, PayState: "2", At: base}); err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}

	page, err := s.ListOrders(ctx, domain.OrderFilter{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if page.Total != 5 || len(page.Orders) != 2 || page.Orders[0].ID != "ORDER_4" {
		t.Fatalf("unexpected first page %+v", page)
	}

	page, _ = s.ListOrders(ctx, domain.OrderFilter{Page: 3, Limit: 2})
	if len(page.Orders) != 1 || page.Orders[0].ID != "ORDER_0" {
		t.Fatalf("unexpected last page %+v", page)
	}

	page, _ = s.ListOrders(ctx, domain.OrderFilter{Page: 9, Limit: 2})
	if len(page.Orders) != 0 || page.Orders == nil {
		t.Fatalf("expected empty non-nil page, got %+v", page.Orders)
	}

	page, _ = s.ListOrders(ctx, domain.OrderFilter{Status: domain.StatusFailed})
	if page.Total != 1 || page.Orders[0].ID != "ORDER_1" {
		t.Fatalf("unexpected filtered page %+v", page)
	}
}

func TestStore_Subscriptions(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	sub := domain.Subscription{RebillNo: "R1", OrderID: "REBILL_1", Status: domain.SubscriptionActive}

	if err := s.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	got, err := s.UpdateSubscriptionStatus(ctx, "R1", domain.SubscriptionStopped, time.Now())
	if err != nil || got.Status != domain.SubscriptionStopped {
		t.Fatalf("UpdateSubscriptionStatus: %+v %v", got, err)
	}
	got, err = s.RecordBilling(ctx, "R1", domain.Billing{MulNo: "900", PayState: "4", At: time.Now()})
	if err != nil || got.LastMulNo != "900" {
		t.Fatalf("RecordBilling: %+v %v", got, err)
	}
	if _, err := s.RecordBilling(ctx, "R1", domain.Billing{MulNo: "900", PayState: "4", At: time.Now()}); err != nil {
		t.Fatalf("repeat RecordBilling: %v", err)
	}
	if _, err := s.GetSubscription(ctx, "R2"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// registered, status changed, billed once
	if n := len(s.Events()); n != 3 {
		t.Fatalf("expected 3 outbox events, got %d", n)
	}
}

func TestStore_OutboxBatching(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	for i := 0; i < 3; i++ {
		_ = s.CreateOrder(ctx, domain.NewOrder(fmt.Sprintf("O%d", i), fmt.Sprintf("M%d", i), 1, "p", "n", "", "", "", time.Now()))
	}

	batch, _ := s.LockBatch(ctx, "relay", 2, time.Second)
	if len(batch) != 2 {
		t.Fatalf("expected 2 locked, got %d", len(batch))
	}
	if err := s.MarkSent(ctx, []int64{batch[0].ID}); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := s.MarkFailed(ctx, batch[1].ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	next, _ := s.LockBatch(ctx, "relay", 10, time.Second)
	if len(next) != 2 {
		t.Fatalf("expected failed + remaining pending, got %d", len(next))
	}
	for _, e := range s.Events() {
		if e.ID == batch[0].ID && e.Status != outbox.StatusSent {
			t.Fatalf("event %d should be sent, is %s", e.ID, e.Status)
		}
	}
}
