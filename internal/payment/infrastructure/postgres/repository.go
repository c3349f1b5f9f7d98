package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
	"github.com/dmehra2102/payapp-backend/pkg/outbox"
	"github.com/dmehra2102/payapp-backend/pkg/tracing"
)

const orderColumns = `id, COALESCE(mul_no, ''), amount, phone, product_name, memo, status, COALESCE(pay_state, ''),
	var1, var2, pay_type, pay_date, card_name, vbank, vbank_no, pay_memo, created_at, updated_at`

const subscriptionColumns = `rebill_no, order_id, cycle_type, cycle_value, expire_date, amount, phone, email,
	product_name, memo, status, last_mul_no, last_pay_state, last_paid_at, created_at, updated_at`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) CreateOrder(ctx context.Context, o domain.Order) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO orders (id, mul_no, amount, phone, product_name, memo, status, pay_state,
				var1, var2, created_at, updated_at)
			VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12)`,
			o.ID, o.MulNo, o.Amount, o.Phone, o.ProductName, o.Memo, o.Status, o.PayState,
			o.Var1, o.Var2, o.CreatedAt, o.UpdatedAt)
		if err != nil {
			return err
		}
		return insertOutbox(ctx, tx, domain.OrderCreatedMessage(o))
	})
}

func (r *Repository) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 OR mul_no = $1
		ORDER BY (id = $1) DESC LIMIT 1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	return o, err
}

func (r *Repository) ListOrders(ctx context.Context, f domain.OrderFilter) (domain.OrderPage, error) {
	f = f.Normalize()
	page := domain.OrderPage{Page: f.Page, Limit: f.Limit, Orders: []domain.Order{}}

	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE ($1 = '' OR status = $1)`,
		string(f.Status)).Scan(&page.Total); err != nil {
		return domain.OrderPage{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, string(f.Status), f.Limit, f.Offset())
	if err != nil {
		return domain.OrderPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return domain.OrderPage{}, err
		}
		page.Orders = append(page.Orders, o)
	}
	return page, rows.Err()
}

// UpdateOrderStatus locks the order row, applies the transition and records
// the change event. Duplicate and rejected updates write nothing.
func (r *Repository) UpdateOrderStatus(ctx context.Context, mulNo string, u domain.StatusUpdate) (domain.Order, domain.Outcome, error) {
	var (
		o       domain.Order
		outcome domain.Outcome
	)
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		o, err = scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE mul_no = $1 FOR UPDATE`, mulNo))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("order mul_no %s: %w", mulNo, apperr.ErrNotFound)
		}
		if err != nil {
			return err
		}

		prev := o.Status
		if outcome = o.Apply(u); outcome != domain.OutcomeApplied {
			return nil
		}

		_, err = tx.Exec(ctx, `UPDATE orders SET status = $2, pay_state = NULLIF($3, ''), pay_type = $4, pay_date = $5,
				card_name = $6, vbank = $7, vbank_no = $8, pay_memo = $9, updated_at = $10
			WHERE id = $1`,
			o.ID, o.Status, o.PayState, o.Details.PayType, o.Details.PayDate,
			o.Details.CardName, o.Details.VBank, o.Details.VBankNo, o.Details.PayMemo, o.UpdatedAt)
		if err != nil {
			return err
		}
		return insertOutbox(ctx, tx, domain.OrderStatusMessage(prev, o))
	})
	if err != nil {
		return domain.Order{}, "", err
	}
	return o, outcome, nil
}

func (r *Repository) CreateSubscription(ctx context.Context, s domain.Subscription) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO subscriptions (rebill_no, order_id, cycle_type, cycle_value, expire_date,
				amount, phone, email, product_name, memo, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			s.RebillNo, s.OrderID, s.CycleType, s.CycleValue, s.ExpireDate,
			s.Amount, s.Phone, s.Email, s.ProductName, s.Memo, s.Status, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return err
		}
		return insertOutbox(ctx, tx, domain.SubscriptionCreatedMessage(s))
	})
}

func (r *Repository) GetSubscription(ctx context.Context, rebillNo string) (domain.Subscription, error) {
	s, err := scanSubscription(r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE rebill_no = $1`, rebillNo))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, fmt.Errorf("rebill %s: %w", rebillNo, apperr.ErrNotFound)
	}
	return s, err
}

func (r *Repository) UpdateSubscriptionStatus(ctx context.Context, rebillNo string, status domain.SubscriptionStatus, at time.Time) (domain.Subscription, error) {
	return r.mutateSubscription(ctx, rebillNo, func(s *domain.Subscription) (outbox.Message, bool) {
		if s.Status == status {
			return outbox.Message{}, false
		}
		prev := s.Status
		s.Status = status
		s.UpdatedAt = at.UTC()
		return domain.SubscriptionStatusMessage(prev, *s), true
	})
}

func (r *Repository) RecordBilling(ctx context.Context, rebillNo string, b domain.Billing) (domain.Subscription, error) {
	return r.mutateSubscription(ctx, rebillNo, func(s *domain.Subscription) (outbox.Message, bool) {
		if s.LastMulNo == b.MulNo && s.LastPayState == b.PayState {
			return outbox.Message{}, false
		}
		s.RecordBilling(b)
		return domain.SubscriptionBilledMessage(*s), true
	})
}

func (r *Repository) mutateSubscription(ctx context.Context, rebillNo string, fn func(*domain.Subscription) (outbox.Message, bool)) (domain.Subscription, error) {
	var s domain.Subscription
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		s, err = scanSubscription(tx.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE rebill_no = $1 FOR UPDATE`, rebillNo))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("rebill %s: %w", rebillNo, apperr.ErrNotFound)
		}
		if err != nil {
			return err
		}

		msg, changed := fn(&s)
		if !changed {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE subscriptions SET status = $2, last_mul_no = $3, last_pay_state = $4,
				last_paid_at = $5, updated_at = $6
			WHERE rebill_no = $1`,
			s.RebillNo, s.Status, s.LastMulNo, s.LastPayState, s.LastPaidAt, s.UpdatedAt)
		if err != nil {
			return err
		}
		return insertOutbox(ctx, tx, msg)
	})
	if err != nil {
		return domain.Subscription{}, err
	}
	return s, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertOutbox(ctx context.Context, tx pgx.Tx, m outbox.Message) error {
	traceparent := m.Traceparent
	if traceparent == "" {
		traceparent = tracing.Traceparent(ctx)
	}
	_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, traceparent, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')`,
		m.AggregateType, m.AggregateID, m.Type, m.Payload, m.Headers, traceparent)
	return err
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.MulNo, &o.Amount, &o.Phone, &o.ProductName, &o.Memo, &o.Status, &o.PayState,
		&o.Var1, &o.Var2, &o.Details.PayType, &o.Details.PayDate, &o.Details.CardName,
		&o.Details.VBank, &o.Details.VBankNo, &o.Details.PayMemo, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanSubscription(row pgx.Row) (domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(&s.RebillNo, &s.OrderID, &s.CycleType, &s.CycleValue, &s.ExpireDate, &s.Amount, &s.Phone, &s.Email,
		&s.ProductName, &s.Memo, &s.Status, &s.LastMulNo, &s.LastPayState, &s.LastPaidAt, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
