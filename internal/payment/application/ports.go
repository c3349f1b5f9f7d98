package application

import (
	"context"
	"time"

	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
)

type Gateway interface {
	IssuePayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentReceipt, error)
	IssueRebill(ctx context.Context, req domain.RebillRequest) (domain.RebillReceipt, error)
	CancelPayment(ctx context.Context, mulNo, memo string) error
	RebillControl(ctx context.Context, rebillNo string, action domain.RebillAction) error
}

// OrderRepository persists orders. Writes that change state also record the
// matching outbox event in the same transaction.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o domain.Order) error
	// GetOrder resolves either the local order id or the gateway mul_no.
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, f domain.OrderFilter) (domain.OrderPage, error)
	UpdateOrderStatus(ctx context.Context, mulNo string, u domain.StatusUpdate) (domain.Order, domain.Outcome, error)
}

type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, s domain.Subscription) error
	GetSubscription(ctx context.Context, rebillNo string) (domain.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, rebillNo string, status domain.SubscriptionStatus, at time.Time) (domain.Subscription, error)
	RecordBilling(ctx context.Context, rebillNo string, b domain.Billing) (domain.Subscription, error)
}

// Deduper short-circuits callback re-deliveries. It is an optimisation only.
type Deduper interface {
	Key(scope string, parts ...string) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}
