package application

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
)

// Credentials are the shared secrets every callback must echo back.
type Credentials struct {
	UserID  string
	LinkKey string
	LinkVal string
}

// Dispatcher authenticates gateway callbacks and reconciles the stored
// records with the reported status.
type Dispatcher struct {
	log    *slog.Logger
	creds  Credentials
	orders OrderRepository
	subs   SubscriptionRepository
	dedupe Deduper
	now    func() time.Time
}

// NewDispatcher builds a Dispatcher. dedupe may be nil.
func NewDispatcher(log *slog.Logger, creds Credentials, orders OrderRepository, subs SubscriptionRepository, dedupe Deduper) *Dispatcher {
	return &Dispatcher{
		log:    log,
		creds:  creds,
		orders: orders,
		subs:   subs,
		dedupe: dedupe,
		now:    time.Now,
	}
}

func (d *Dispatcher) Authenticate(cb domain.Callback) error {
	if !equal(cb.UserID, d.creds.UserID) || !equal(cb.LinkKey, d.creds.LinkKey) || !equal(cb.LinkVal, d.creds.LinkVal) {
		return apperr.ErrUnauthorized
	}
	return nil
}

func equal(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Handle processes one callback. A nil error means the gateway should be told
// SUCCESS, including when no local record matches.
func (d *Dispatcher) Handle(ctx context.Context, cb domain.Callback) error {
	if err := d.Authenticate(cb); err != nil {
		d.log.WarnContext(ctx, "callback authentication failed", "mul_no", cb.MulNo, "userid", cb.UserID)
		return err
	}

	key, seen := d.claim(ctx, cb)
	if seen {
		d.log.InfoContext(ctx, "duplicate callback skipped", "mul_no", cb.MulNo, "pay_state", cb.PayState)
		return nil
	}

	if err := d.apply(ctx, cb); err != nil {
		d.release(ctx, key)
		return err
	}
	return nil
}

func (d *Dispatcher) apply(ctx context.Context, cb domain.Callback) error {
	now := d.now()
	if cb.MulNo == "" && cb.RebillNo == "" {
		d.log.WarnContext(ctx, "callback without mul_no or rebill_no", "pay_state", cb.PayState)
		return nil
	}

	if cb.MulNo != "" {
		status := domain.StatusFromCode(cb.PayState)
		o, outcome, err := d.orders.UpdateOrderStatus(ctx, cb.MulNo, domain.StatusUpdate{
			Status:   status,
			PayState: cb.PayState,
			Details:  cb.Details,
			At:       now,
		})
		if err == nil {
			d.checkAmount(ctx, o, cb.Price)
		}
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			d.log.WarnContext(ctx, "callback for unknown order", "mul_no", cb.MulNo, "pay_state", cb.PayState, "var1", cb.Var1)
		case err != nil:
			d.log.ErrorContext(ctx, "callback apply failed", "mul_no", cb.MulNo, "err", err)
			return apperr.Persistence("update order status", err)
		case outcome == domain.OutcomeRejected:
			d.log.WarnContext(ctx, "callback transition rejected", "order_id", o.ID, "mul_no", cb.MulNo, "current", o.Status, "reported", status)
		default:
			d.log.InfoContext(ctx, "callback applied", "order_id", o.ID, "mul_no", cb.MulNo, "status", o.Status, "outcome", outcome)
		}
	}

	if cb.RebillNo != "" {
		_, err := d.subs.RecordBilling(ctx, cb.RebillNo, domain.Billing{
			MulNo:    cb.MulNo,
			PayState: cb.PayState,
			PaidAt:   cb.Details.PayDate,
			At:       now,
		})
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			d.log.WarnContext(ctx, "callback for unknown subscription", "rebill_no", cb.RebillNo)
		case err != nil:
			d.log.ErrorContext(ctx, "rebill billing record failed", "rebill_no", cb.RebillNo, "err", err)
			return apperr.Persistence("record billing", err)
		default:
			d.log.InfoContext(ctx, "rebill billing recorded", "rebill_no", cb.RebillNo, "mul_no", cb.MulNo, "pay_state", cb.PayState)
		}
	}
	return nil
}

// checkAmount logs when the gateway reports a price other than the one the
// order was issued with. The status is still applied.
func (d *Dispatcher) checkAmount(ctx context.Context, o domain.Order, price string) {
	price = strings.ReplaceAll(strings.TrimSpace(price), ",", "")
	if price == "" {
		return
	}
	got, err := strconv.ParseInt(price, 10, 64)
	if err != nil || got != o.Amount {
		d.log.WarnContext(ctx, "callback amount mismatch", "order_id", o.ID, "mul_no", o.MulNo, "expected", o.Amount, "reported", price)
	}
}

// claim marks the callback as in flight. Dedupe store failures fall through
// to normal processing.
func (d *Dispatcher) claim(ctx context.Context, cb domain.Callback) (string, bool) {
	if d.dedupe == nil {
		return "", false
	}
	key := d.dedupe.Key("callback", cb.MulNo, cb.PayState, cb.RebillNo)
	seen, err := d.dedupe.Seen(ctx, key)
	if err != nil {
		d.log.WarnContext(ctx, "callback dedupe unavailable", "err", err)
		return "", false
	}
	return key, seen
}

func (d *Dispatcher) release(ctx context.Context, key string) {
	if d.dedupe == nil || key == "" {
		return
	}
	if err := d.dedupe.Forget(ctx, key); err != nil {
		d.log.WarnContext(ctx, "callback dedupe release failed", "key", key, "err", err)
	}
}
