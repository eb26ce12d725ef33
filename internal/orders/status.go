package orders

import "github.com/digikrishi/krishi-market/internal/esewa"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPlaced    Status = "placed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPlaced, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// pending -> placed is applied by payment reconciliation only, so it is not
// listed here.
var sellerNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCancelled: true},
	StatusPlaced:    {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered: {},
	StatusCancelled: {},
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Stage orders statuses along the lifecycle.
func (s Status) Stage() int {
	switch s {
	case StatusPlaced:
		return 1
	case StatusShipped:
		return 2
	case StatusDelivered, StatusCancelled:
		return 3
	}
	return 0
}

// CanTransition reports whether a seller may move an order from -> to.
func CanTransition(from, to Status) bool {
	return sellerNext[from][to]
}

// PaymentStatusFor maps a provider status onto the payment lifecycle.
func PaymentStatusFor(providerStatus string) PaymentStatus {
	switch providerStatus {
	case esewa.StatusComplete:
		return PaymentSuccess
	case esewa.StatusPending, esewa.StatusAmbient:
		return PaymentPending
	default:
		return PaymentFailed
	}
}
