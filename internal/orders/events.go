package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventPaymentReconciled  = "PaymentReconciled"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCreatedPayload struct {
	OrderID         string       `json:"order_id"`
	ProductID       string       `json:"product_id"`
	BuyerID         string       `json:"buyer_id"`
	SellerID        string       `json:"seller_id"`
	TotalPrice      string       `json:"total_price"`
	DeliveryType    DeliveryType `json:"delivery_type"`
	TransactionUUID string       `json:"transaction_uuid"`
}

type PaymentReconciledPayload struct {
	OrderID         string        `json:"order_id"`
	TransactionUUID string        `json:"transaction_uuid"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	ProviderStatus  string        `json:"provider_status"`
	OrderStatus     Status        `json:"order_status,omitempty"`
	BuyerID         string        `json:"buyer_id"`
	SellerID        string        `json:"seller_id,omitempty"`
}

type OrderStatusChangedPayload struct {
	OrderID  string `json:"order_id"`
	From     Status `json:"from"`
	To       Status `json:"to"`
	BuyerID  string `json:"buyer_id"`
	SellerID string `json:"seller_id"`
}
