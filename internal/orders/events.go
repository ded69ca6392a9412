package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated        = "OrderCreated"
	EventOrderPaid           = "OrderPaid"
	EventOrderFailed         = "OrderFailed"
	EventOrderCancelled      = "OrderCancelled"
	EventReservationReleased = "ReservationReleased"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order number
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID   int64     `json:"order_id"`
	Number    string    `json:"number"`
	UserID    string    `json:"user_id"`
	Items     []ItemQty `json:"items"`
	Total     string    `json:"total"`
	Currency  string    `json:"currency"`
	PaymentID string    `json:"payment_id"`
}

type OrderPaidPayload struct {
	OrderID   int64  `json:"order_id"`
	Number    string `json:"number"`
	PaymentID string `json:"payment_id"`
}

type OrderFailedPayload struct {
	OrderID int64  `json:"order_id"`
	Number  string `json:"number"`
	Reason  string `json:"reason,omitempty"`
}

type OrderCancelledPayload struct {
	OrderID int64  `json:"order_id"`
	Number  string `json:"number"`
}

type ReservationReleasedPayload struct {
	OrderID int64     `json:"order_id"`
	Items   []ItemQty `json:"items"`
}
