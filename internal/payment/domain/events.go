package domain

import (
	"encoding/json"

	"github.com/dmehra2102/payapp-backend/pkg/outbox"
)

const (
	EventPaymentRequested          = "PaymentRequested"
	EventPaymentStatusChanged      = "PaymentStatusChanged"
	EventSubscriptionRegistered    = "SubscriptionRegistered"
	EventSubscriptionStatusChanged = "SubscriptionStatusChanged"
	EventSubscriptionBilled        = "SubscriptionBilled"
)

type PaymentRequested struct {
	OrderID string `json:"orderId"`
	MulNo   string `json:"mulNo"`
	Amount  int64  `json:"amount"`
}

type PaymentStatusChanged struct {
	OrderID  string      `json:"orderId"`
	MulNo    string      `json:"mulNo"`
	From     OrderStatus `json:"from"`
	To       OrderStatus `json:"to"`
	PayState string      `json:"payState"`
	Var1     string      `json:"var1,omitempty"`
	Var2     string      `json:"var2,omitempty"`
}

type SubscriptionRegistered struct {
	RebillNo string `json:"rebillNo"`
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
}

type SubscriptionStatusChanged struct {
	RebillNo string             `json:"rebillNo"`
	From     SubscriptionStatus `json:"from"`
	To       SubscriptionStatus `json:"to"`
}

type SubscriptionBilled struct {
	RebillNo string `json:"rebillNo"`
	MulNo    string `json:"mulNo"`
	PayState string `json:"payState"`
}

func OrderCreatedMessage(o Order) outbox.Message {
	return message("order", o.ID, EventPaymentRequested, PaymentRequested{OrderID: o.ID, MulNo: o.MulNo, Amount: o.Amount})
}

func OrderStatusMessage(prev OrderStatus, o Order) outbox.Message {
	return message("order", o.ID, EventPaymentStatusChanged, PaymentStatusChanged{
		OrderID:  o.ID,
		MulNo:    o.MulNo,
		From:     prev,
		To:       o.Status,
		PayState: o.PayState,
		Var1:     o.Var1,
		Var2:     o.Var2,
	})
}

func SubscriptionCreatedMessage(s Subscription) outbox.Message {
	return message("subscription", s.RebillNo, EventSubscriptionRegistered, SubscriptionRegistered{RebillNo: s.RebillNo, OrderID: s.OrderID, Amount: s.Amount})
}

func SubscriptionStatusMessage(prev SubscriptionStatus, s Subscription) outbox.Message {
	return message("subscription", s.RebillNo, EventSubscriptionStatusChanged, SubscriptionStatusChanged{RebillNo: s.RebillNo, From: prev, To: s.Status})
}

func SubscriptionBilledMessage(s Subscription) outbox.Message {
	return message("subscription", s.RebillNo, EventSubscriptionBilled, SubscriptionBilled{RebillNo: s.RebillNo, MulNo: s.LastMulNo, PayState: s.LastPayState})
}

func message(aggregateType, aggregateID, eventType string, v any) outbox.Message {
	// the payload types above contain only strings and integers
	payload, _ := json.Marshal(v)
	return outbox.Message{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       payload,
		Headers:       map[string]string{"source": "payapp-service"},
	}
}
