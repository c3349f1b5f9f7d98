package domain

import "time"

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusWaiting   OrderStatus = "waiting"
	StatusCompleted OrderStatus = "completed"
	StatusFailed    OrderStatus = "failed"
	StatusCancelled OrderStatus = "cancelled"
	StatusRefunded  OrderStatus = "refunded"
)

func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case StatusPending, StatusWaiting, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return st, true
	}
	return "", false
}

// PaymentDetails are the metadata fields the gateway echoes on callbacks.
type PaymentDetails struct {
	PayType  string `json:"payType,omitempty"`
	PayDate  string `json:"payDate,omitempty"`
	CardName string `json:"cardName,omitempty"`
	VBank    string `json:"vbank,omitempty"`
	VBankNo  string `json:"vbankNo,omitempty"`
	PayMemo  string `json:"payMemo,omitempty"`
}

type Order struct {
	ID          string
	MulNo       string
	Amount      int64
	Phone       string
	ProductName string
	Memo        string
	Status      OrderStatus
	PayState    string
	Var1        string
	Var2        string
	Details     PaymentDetails
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewOrder(id, mulNo string, amount int64, phone, productName, memo, var1, var2 string, now time.Time) Order {
	now = now.UTC()
	return Order{
		ID:          id,
		MulNo:       mulNo,
		Amount:      amount,
		Phone:       phone,
		ProductName: productName,
		Memo:        memo,
		Status:      StatusPending,
		Var1:        var1,
		Var2:        var2,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// StatusUpdate is one callback's effect on an order.
type StatusUpdate struct {
	Status   OrderStatus
	PayState string
	Details  PaymentDetails
	At       time.Time
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// Apply moves the order along the state machine and records the raw code
// with the echoed details. A non-terminal order that reports its current
// status with a new code still records it. Re-applying a known code is a
// no-op, and an undefined transition leaves the order untouched.
func (o *Order) Apply(u StatusUpdate) Outcome {
	if u.Status == o.Status {
		if IsTerminal(o.Status) || u.PayState == o.PayState {
			return OutcomeDuplicate
		}
	} else if !CanTransition(o.Status, u.Status) {
		return OutcomeRejected
	}
	o.Status = u.Status
	o.PayState = u.PayState
	o.Details = u.Details
	o.UpdatedAt = u.At.UTC()
	return OutcomeApplied
}

type OrderFilter struct {
	Status OrderStatus
	Page   int
	Limit  int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps paging to sane bounds.
func (f OrderFilter) Normalize() OrderFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

func (f OrderFilter) Offset() int { return (f.Page - 1) * f.Limit }

type OrderPage struct {
	Orders []Order
	Total  int
	Page   int
	Limit  int
}
