package application

import (
	"context"
	"errors"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
	"github.com/dmehra2102/payapp-backend/internal/payment/domain"
)

type RebillResult struct {
	OrderID  string
	RebillNo string
	PayURL   string
}

// RegisterRebill registers a recurring mandate and stores it as active.
func (s *Service) RegisterRebill(ctx context.Context, in RebillInput) (RebillResult, error) {
	in.normalize()
	now := s.now()
	expire, err := validateRebill(s.validate, in, now)
	if err != nil {
		return RebillResult{}, err
	}

	orderID := in.OrderID
	if orderID == "" {
		orderID = correlationID(rebillIDPrefix, now)
	}

	receipt, err := s.gateway.IssueRebill(ctx, domain.RebillRequest{
		Amount:      in.Amount,
		Phone:       in.Phone,
		Email:       in.Email,
		ProductName: in.ProductName,
		Memo:        in.Memo,
		CycleType:   domain.CycleType(in.CycleType),
		CycleValue:  in.CycleValue,
		ExpireDate:  in.ExpireDate,
		Var1:        orderID,
		Var2:        in.Var2,
		OpenPayType: in.OpenPayType,
	})
	if err != nil {
		s.log.WarnContext(ctx, "rebill register failed", "order_id", orderID, "kind", apperr.Kind(err), "err", err)
		return RebillResult{}, err
	}

	sub := domain.Subscription{
		RebillNo:    receipt.RebillNo,
		OrderID:     orderID,
		CycleType:   domain.CycleType(in.CycleType),
		CycleValue:  in.CycleValue,
		ExpireDate:  expire,
		Amount:      in.Amount,
		Phone:       in.Phone,
		Email:       in.Email,
		ProductName: in.ProductName,
		Memo:        in.Memo,
		Status:      domain.SubscriptionActive,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
	if err := s.subs.CreateSubscription(ctx, sub); err != nil {
		s.log.ErrorContext(ctx, "subscription persist failed after gateway accepted",
			"order_id", orderID, "rebill_no", receipt.RebillNo, "err", err)
		return RebillResult{}, apperr.Persistence("create subscription", err)
	}

	s.log.InfoContext(ctx, "rebill registered", "order_id", orderID, "rebill_no", receipt.RebillNo)
	return RebillResult{OrderID: orderID, RebillNo: receipt.RebillNo, PayURL: receipt.PayURL}, nil
}

// ControlRebill cancels, stops or restarts a mandate. The gateway is the
// source of truth, so a mandate unknown locally is still forwarded.
func (s *Service) ControlRebill(ctx context.Context, in RebillControlInput) (domain.SubscriptionStatus, error) {
	if err := checkStruct(s.validate, in); err != nil {
		return "", err
	}
	if _, ok := domain.ParseRebillAction(string(in.Action)); !ok {
		return "", apperr.Invalid("action", "must be one of cancel stop start")
	}

	sub, err := s.subs.GetSubscription(ctx, in.RebillNo)
	known := err == nil
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return "", apperr.Persistence("get subscription", err)
	}

	var next domain.SubscriptionStatus
	if known {
		if next, err = sub.Next(in.Action); err != nil {
			return "", err
		}
	}

	if err := s.gateway.RebillControl(ctx, in.RebillNo, in.Action); err != nil {
		s.log.WarnContext(ctx, "rebill control failed", "rebill_no", in.RebillNo, "action", in.Action, "kind", apperr.Kind(err), "err", err)
		return "", err
	}

	if !known {
		s.log.WarnContext(ctx, "rebill control for unknown subscription", "rebill_no", in.RebillNo, "action", in.Action)
		return "", nil
	}

	if _, err := s.subs.UpdateSubscriptionStatus(ctx, in.RebillNo, next, s.now()); err != nil {
		s.log.ErrorContext(ctx, "subscription status persist failed after gateway accepted",
			"rebill_no", in.RebillNo, "status", next, "err", err)
		return "", apperr.Persistence("update subscription", err)
	}
	s.log.InfoContext(ctx, "rebill status changed", "rebill_no", in.RebillNo, "from", sub.Status, "to", next)
	return next, nil
}

func (s *Service) GetSubscription(ctx context.Context, rebillNo string) (domain.Subscription, error) {
	sub, err := s.subs.GetSubscription(ctx, rebillNo)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return domain.Subscription{}, err
		}
		return domain.Subscription{}, apperr.Persistence("get subscription", err)
	}
	return sub, nil
}
