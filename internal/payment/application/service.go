package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
)

const defaultCancelMemo = "cancelled by merchant"

// Service orchestrates outbound gateway calls and the records they create.
type Service struct {
	log      *slog.Logger
	gateway  Gateway
	orders   OrderRepository
	subs     SubscriptionRepository
	validate *validator.Validate
	now      func() time.Time
}

func NewService(log *slog.Logger, gateway Gateway, orders OrderRepository, subs SubscriptionRepository) *Service {
	return &Service{
		log:      log,
		gateway:  gateway,
		orders:   orders,
		subs:     subs,
		validate: newValidator(),
		now:      time.Now,
	}
}

type PaymentResult struct {
	OrderID string
	PayURL  string
	QRURL   string
	MulNo   string
}

// RequestPayment validates the input, opens the payment at the gateway and
// stores one pending order. Nothing is stored when the gateway call fails.
func (s *Service) RequestPayment(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	in.normalize()
	if err := checkStruct(s.validate, in); err != nil {
		return PaymentResult{}, err
	}

	now := s.now()
	orderID := in.Var1
	if orderID == "" {
		orderID = correlationID(orderIDPrefix, now)
	}
	if err := s.ensureNewOrder(ctx, orderID); err != nil {
		return PaymentResult{}, err
	}

	receipt, err := s.gateway.IssuePayment(ctx, domain.PaymentRequest{
		Amount:      in.Amount,
		Phone:       in.Phone,
		Email:       in.Email,
		ProductName: in.ProductName,
		Memo:        in.Memo,
		Var1:        orderID,
		Var2:        in.Var2,
		OpenPayType: in.OpenPayType,
	})
	if err != nil {
		s.log.WarnContext(ctx, "payment request failed", "order_id", orderID, "kind", apperr.Kind(err), "err", err)
		return PaymentResult{}, err
	}

	o := domain.NewOrder(orderID, receipt.MulNo, in.Amount, in.Phone, in.ProductName, in.Memo, orderID, in.Var2, now)
	if err := s.orders.CreateOrder(ctx, o); err != nil {
		// the gateway now holds an order the store does not; reconcile by mul_no
		s.log.ErrorContext(ctx, "order persist failed after gateway accepted",
			"order_id", orderID, "mul_no", receipt.MulNo, "err", err)
		return PaymentResult{}, apperr.Persistence("create order", err)
	}

	s.log.InfoContext(ctx, "payment requested", "order_id", orderID, "mul_no", receipt.MulNo, "amount", in.Amount)
	return PaymentResult{
		OrderID: orderID,
		PayURL:  receipt.PayURL,
		QRURL:   receipt.QRURL,
		MulNo:   receipt.MulNo,
	}, nil
}

func (s *Service) ensureNewOrder(ctx context.Context, orderID string) error {
	_, err := s.orders.GetOrder(ctx, orderID)
	switch {
	case err == nil:
		return apperr.ErrDuplicateOrder
	case errors.Is(err, apperr.ErrNotFound):
		return nil
	default:
		return apperr.Persistence("lookup order", err)
	}
}

// CancelPayment asks the gateway for a full cancel. The order itself changes
// only when the gateway reports the cancellation by callback.
func (s *Service) CancelPayment(ctx context.Context, in CancelInput) error {
	if err := checkStruct(s.validate, in); err != nil {
		return err
	}
	if in.Memo == "" {
		in.Memo = defaultCancelMemo
	}
	if err := s.gateway.CancelPayment(ctx, in.MulNo, in.Memo); err != nil {
		s.log.WarnContext(ctx, "payment cancel failed", "mul_no", in.MulNo, "kind", apperr.Kind(err), "err", err)
		return err
	}
	s.log.InfoContext(ctx, "payment cancel requested", "mul_no", in.MulNo)
	return nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if id == "" {
		return domain.Order{}, apperr.Invalid("orderId", "is required")
	}
	o, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return domain.Order{}, err
		}
		return domain.Order{}, apperr.Persistence("get order", err)
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, f domain.OrderFilter) (domain.OrderPage, error) {
	page, err := s.orders.ListOrders(ctx, f.Normalize())
	if err != nil {
		return domain.OrderPage{}, apperr.Persistence("list orders", err)
	}
	return page, nil
}
