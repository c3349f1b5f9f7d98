//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
	paykafka "github.com/dmehra2102/payapp-backend/internal/payment/infrastructure/kafka"
	"github.com/dmehra2102/payapp-backend/pkg/outbox"
	"github.com/dmehra2102/payapp-backend/test/integration"
)

func setup(t *testing.T, withKafka bool) (*integration.Env, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	env, err := integration.Setup(ctx, withKafka)
	if err != nil {
		t.Fatalf("containers: %v", err)
	}
	t.Cleanup(func() { env.Teardown(context.Background()) })

	pool, err := pgxpool.New(ctx, env.PGURL)
	if err != nil {
		t.Fatalf("pgxpool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return env, pool
}

func TestRepository_OrderLifecycle(t *testing.T) {
	_, pool := setup(t, false)
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := NewRepository(log, pool)
	now := time.Now().UTC().Truncate(time.Millisecond)

	o := domain.NewOrder("ORDER_1", "555", 10000, "01012345678", "Widget", "memo", "ORDER_1", "v2", now)
	if err := repo.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	got, err := repo.GetOrder(ctx, "555")
	if err != nil || got.ID != "ORDER_1" || got.Amount != 10000 || got.Status != domain.StatusPending {
		t.Fatalf("GetOrder: %+v %v", got, err)
	}
	if _, err := repo.GetOrder(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, outcome, err := repo.UpdateOrderStatus(ctx, "555", domain.StatusUpdate{
				Status:   domain.StatusCompleted,
				PayState: "4",
				Details:  domain.PaymentDetails{PayType: "card", CardName: "Shinhan"},
				At:       now.Add(time.Second),
			})
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

	got, _ = repo.GetOrder(ctx, "ORDER_1")
	if got.Status != domain.StatusCompleted || got.PayState != "4" || got.Details.CardName != "Shinhan" {
		t.Fatalf("unexpected order after callback: %+v", got)
	}

	_, outcome, err := repo.UpdateOrderStatus(ctx, "555", domain.StatusUpdate{Status: domain.StatusPending, PayState: "1", At: now})
	if err != nil || outcome != domain.OutcomeRejected {
		t.Fatalf("expected rejected regression, got %s %v", outcome, err)
	}

	var events int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE aggregate_id = 'ORDER_1'`).Scan(&events); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if events != 2 {
		t.Fatalf("expected 2 outbox rows, got %d", events)
	}

	page, err := repo.ListOrders(ctx, domain.OrderFilter{Status: domain.StatusCompleted})
	if err != nil || page.Total != 1 || len(page.Orders) != 1 {
		t.Fatalf("ListOrders: %+v %v", page, err)
	}
}

func TestRepository_Subscription(t *testing.T) {
	_, pool := setup(t, false)
	ctx := context.Background()
	repo := NewRepository(slog.New(slog.NewTextHandler(io.Discard, nil)), pool)
	now := time.Now().UTC()

	s := domain.Subscription{
		RebillNo:    "R1",
		OrderID:     "REBILL_1",
		CycleType:   domain.CycleMonth,
		CycleValue:  15,
		ExpireDate:  time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		Amount:      9900,
		Phone:       "01012345678",
		ProductName: "Plan",
		Status:      domain.SubscriptionActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.CreateSubscription(ctx, s); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	got, err := repo.UpdateSubscriptionStatus(ctx, "R1", domain.SubscriptionStopped, now)
	if err != nil || got.Status != domain.SubscriptionStopped {
		t.Fatalf("UpdateSubscriptionStatus: %+v %v", got, err)
	}

	b := domain.Billing{MulNo: "777", PayState: "4", PaidAt: "2030-01-01 10:00:00", At: now}
	for i := 0; i < 2; i++ {
		if _, err := repo.RecordBilling(ctx, "R1", b); err != nil {
			t.Fatalf("RecordBilling: %v", err)
		}
	}

	got, err = repo.GetSubscription(ctx, "R1")
	if err != nil || got.LastMulNo != "777" || !got.ExpireDate.Equal(s.ExpireDate) {
		t.Fatalf("GetSubscription: %+v %v", got, err)
	}

	var billed int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE type = $1`, domain.EventSubscriptionBilled).Scan(&billed); err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if billed != 1 {
		t.Fatalf("expected one billing event, got %d", billed)
	}
	if _, err := repo.GetSubscription(ctx, "R404"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOutboxRelay_PublishesToKafka(t *testing.T) {
	env, pool := setup(t, true)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := NewRepository(log, pool)
	o := domain.NewOrder("ORDER_9", "909", 500, "010", "Widget", "", "", "", time.Now())
	if err := repo.CreateOrder(ctx, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	const topic = "payapp.events.test"
	writer := paykafka.NewWriter(env.KAddr)
	defer writer.Close()

	relay := outbox.NewRelay(log, NewOutboxStore(log, pool), outbox.NewDispatcher(log, writer, topic), "test-relay")
	go func() { _ = relay.Run(ctx) }()

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: env.KAddr, Topic: topic, GroupID: "payapp-test"})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg.Key) != "ORDER_9" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	var payload domain.PaymentRequested
	if err := json.Unmarshal(msg.Value, &payload); err != nil || payload.MulNo != "909" {
		t.Fatalf("unexpected payload %s: %v", msg.Value, err)
	}
}
