package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated     = "order.created"
	EventPaymentConfirmed = "payment.confirmed"
	EventPaymentFailed    = "payment.failed"
)

// OrderEvent is the payload written to the outbox and published to Kafka.
type OrderEvent struct {
	EventType   string          `json:"event_type"`
	OrderNumber string          `json:"order_number"`
	UserID      string          `json:"user_id"`
	Status      OrderStatus     `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaymentID   string          `json:"payment_id,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func NewOrderEvent(eventType string, o *Order, now time.Time) OrderEvent {
	return OrderEvent{
		EventType:   eventType,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		PaymentID:   o.PaymentID,
		Reason:      o.FailureReason,
		OccurredAt:  now,
	}
}
