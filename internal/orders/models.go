package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleGeneral Role = "GENERAL"
	RoleFarmer  Role = "FARMER"
	RoleExpert  Role = "EXPERT"
	RoleAdmin   Role = "ADMIN"
)

type DeliveryType string

const (
	DeliveryHome   DeliveryType = "delivery"
	DeliveryPickup DeliveryType = "pickup"
)

func (d DeliveryType) Valid() bool {
	return d == DeliveryHome || d == DeliveryPickup
}

type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       Role   `json:"role"`
	IsVerified bool   `json:"isVerified"`
}

type Product struct {
	ID                   string          `json:"id"`
	SellerID             string          `json:"seller"`
	Name                 string          `json:"name"`
	Description          string          `json:"description,omitempty"`
	Price                decimal.Decimal `json:"price"`
	Quantity             int             `json:"quantity"`
	AvailableForDelivery bool            `json:"availableForDelivery"`
	IsVerified           bool            `json:"isVerified"`
	CreatedAt            time.Time       `json:"createdAt"`
	UpdatedAt            time.Time       `json:"updatedAt"`
}

type Order struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product"`
	BuyerID      string          `json:"buyer"`
	SellerID     string          `json:"seller"`
	Quantity     int             `json:"quantity"` // always 1
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	Status       Status          `json:"orderStatus"`
	DeliveryType DeliveryType    `json:"deliveryType"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentSuccess PaymentStatus = "success"
	PaymentFailed  PaymentStatus = "failed"
)

type Payment struct {
	ID              string
	MerchantCode    string
	Amount          decimal.Decimal // total including tax
	TaxAmount       decimal.Decimal
	TransactionUUID string
	ProductCode     string
	BuyerID         string
	ProductID       string
	OrderID         string
	Status          PaymentStatus
	ProviderStatus  string
	ProviderRef     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderView is an order with its collaborators embedded for listings.
type OrderView struct {
	Order
	Product *Product `json:"productDetails,omitempty"`
	Seller  *User    `json:"sellerDetails,omitempty"`
	Buyer   *User    `json:"buyerDetails,omitempty"`
}
