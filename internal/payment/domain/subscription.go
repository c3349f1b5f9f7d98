package domain

import (
	"time"

	"github.com/dmehra2102/payapp-backend/internal/apperr"
)

type CycleType string

const (
	CycleMonth CycleType = "Month"
	CycleWeek  CycleType = "Week"
	CycleDay   CycleType = "Day"
)

// RequiresValue reports whether the cycle needs a day-of-month or day-of-week.
func (c CycleType) RequiresValue() bool {
	return c == CycleMonth || c == CycleWeek
}

// ValueRange is the inclusive range of cycleValue for c.
func (c CycleType) ValueRange() (int, int) {
	switch c {
	case CycleMonth:
		return 1, 31
	case CycleWeek:
		return 1, 7
	}
	return 0, 0
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionStopped   SubscriptionStatus = "stopped"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type RebillAction string

const (
	RebillCancel RebillAction = "cancel"
	RebillStop   RebillAction = "stop"
	RebillStart  RebillAction = "start"
)

func ParseRebillAction(s string) (RebillAction, bool) {
	switch a := RebillAction(s); a {
	case RebillCancel, RebillStop, RebillStart:
		return a, true
	}
	return "", false
}

// DateLayout is the calendar date format used for expireDate.
const DateLayout = "2006-01-02"

type Subscription struct {
	RebillNo     string
	OrderID      string
	CycleType    CycleType
	CycleValue   int
	ExpireDate   time.Time
	Amount       int64
	Phone        string
	Email        string
	ProductName  string
	Memo         string
	Status       SubscriptionStatus
	LastMulNo    string
	LastPayState string
	LastPaidAt   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Next returns the status an administrative action leads to. A cancelled
// mandate accepts nothing.
func (s Subscription) Next(a RebillAction) (SubscriptionStatus, error) {
	if s.Status == SubscriptionCancelled {
		return "", apperr.ErrSubscriptionCancelled
	}
	switch a {
	case RebillCancel:
		return SubscriptionCancelled, nil
	case RebillStop:
		return SubscriptionStopped, nil
	case RebillStart:
		return SubscriptionActive, nil
	}
	return "", apperr.Invalid("action", "unknown rebill action")
}

// Billing is a recurring charge reported by a callback.
type Billing struct {
	MulNo    string
	PayState string
	PaidAt   string
	At       time.Time
}

func (s *Subscription) RecordBilling(b Billing) {
	s.LastMulNo = b.MulNo
	s.LastPayState = b.PayState
	if b.PaidAt != "" {
		s.LastPaidAt = b.PaidAt
	}
	s.UpdatedAt = b.At.UTC()
}
