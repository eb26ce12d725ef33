package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/digikrishi/krishi-market/internal/esewa"
	kafkax "github.com/digikrishi/krishi-market/internal/kafka"
	"github.com/digikrishi/krishi-market/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

type Store interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	SetProductQuantity(ctx context.Context, productID, sellerID string, qty int) error

	CreateOrderWithPayment(ctx context.Context, o *Order, p *Payment) error
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]OrderView, error)
	ListOrdersByProduct(ctx context.Context, sellerID, productID string) ([]OrderView, error)
	UpdateOrderStatus(ctx context.Context, orderID, sellerID string, from, to Status) (bool, error)

	RecordPaymentStatus(ctx context.Context, txUUID string, status PaymentStatus, providerStatus, providerRef string) (*Payment, error)
	CompletePayment(ctx context.Context, txUUID, providerStatus, providerRef string) (*Completion, error)
}

// Completion is the result of applying a confirmed payment.
type Completion struct {
	Payment     Payment
	OrderStatus Status
	BuyerID     string
	SellerID    string
	Applied     bool // false when the payment had already been applied
	Oversold    bool // stock was already zero; nothing decremented
	OrderClosed bool // order was no longer pending; payment recorded, stock untouched
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Store       Store
	Gateway     *esewa.Gateway
	Producer    Publisher
	Redis       *redis.Client
	Log         zerolog.Logger
	ServiceName string

	NewID func() string
}

// Checkout is returned to the buyer after ordering; the form is posted to
// the payment provider.
type Checkout struct {
	OrderID  string         `json:"orderId"`
	FormData esewa.FormData `json:"formData"`
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

// CreateOrder places a pending order for one unit of productID and opens a
// payment session for it.
func (s *Service) CreateOrder(ctx context.Context, buyerID, productID string, delivery DeliveryType) (*Checkout, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	if delivery == "" {
		delivery = DeliveryHome
	}
	if !delivery.Valid() {
		return nil, fmt.Errorf("%w: invalid delivery type %q", ErrInvalidInput, delivery)
	}

	buyer, err := s.Store.GetUser(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	product, err := s.Store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.Quantity <= 0 {
		return nil, fmt.Errorf("%w: product is out of stock", ErrInvalidInput)
	}
	if product.SellerID == buyer.ID {
		return nil, fmt.Errorf("%w: cannot order your own product", ErrInvalidInput)
	}
	if delivery == DeliveryHome && !product.AvailableForDelivery {
		return nil, fmt.Errorf("%w: product is not available for delivery", ErrInvalidInput)
	}

	order := &Order{
		ID:           s.newID(),
		ProductID:    product.ID,
		BuyerID:      buyer.ID,
		SellerID:     product.SellerID,
		Quantity:     1,
		TotalPrice:   product.Price,
		Status:       StatusPending,
		DeliveryType: delivery,
	}
	session := s.Gateway.NewSession(order.TotalPrice)
	payment := &Payment{
		ID:              s.newID(),
		MerchantCode:    s.Gateway.MerchantCode,
		Amount:          session.Total,
		TaxAmount:       session.Tax,
		TransactionUUID: session.TransactionUUID,
		ProductCode:     s.Gateway.ProductCode,
		BuyerID:         buyer.ID,
		ProductID:       product.ID,
		OrderID:         order.ID,
		Status:          PaymentPending,
	}

	if err := s.Store.CreateOrderWithPayment(ctx, order, payment); err != nil {
		return nil, err
	}

	s.cacheStatus(ctx, order)
	s.publish(ctx, TopicOrderCreated, EventOrderCreated, order.ID, OrderCreatedPayload{
		OrderID:         order.ID,
		ProductID:       order.ProductID,
		BuyerID:         order.BuyerID,
		SellerID:        order.SellerID,
		TotalPrice:      order.TotalPrice.String(),
		DeliveryType:    order.DeliveryType,
		TransactionUUID: payment.TransactionUUID,
	})
	s.Log.Info().Str("order_id", order.ID).Str("transaction_uuid", payment.TransactionUUID).
		Str("total", session.Total.String()).Msg("order created")

	return &Checkout{OrderID: order.ID, FormData: session.Form}, nil
}

func (s *Service) ListMine(ctx context.Context, buyerID string) ([]OrderView, error) {
	return s.Store.ListOrdersByBuyer(ctx, buyerID)
}

func (s *Service) ListForProduct(ctx context.Context, sellerID, productID string) ([]OrderView, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	return s.Store.ListOrdersByProduct(ctx, sellerID, productID)
}

// UpdateStatus lets the owning seller move an order along the shipping flow.
func (s *Service) UpdateStatus(ctx context.Context, sellerID, orderID string, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: invalid order status %q", ErrInvalidInput, to)
	}
	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != sellerID {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	if order.Status == to {
		return order, nil
	}
	if !CanTransition(order.Status, to) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidInput, order.Status, to)
	}

	from := order.Status
	ok, err := s.Store.UpdateOrderStatus(ctx, orderID, sellerID, from, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: order status changed concurrently", ErrConflict)
	}
	order.Status = to

	s.cacheStatus(ctx, order)
	s.publish(ctx, TopicOrderStatusChanged, EventOrderStatusChanged, order.ID, OrderStatusChangedPayload{
		OrderID:  order.ID,
		From:     from,
		To:       to,
		BuyerID:  order.BuyerID,
		SellerID: order.SellerID,
	})
	return order, nil
}

// StatusEntry is what the status cache holds per order.
type StatusEntry struct {
	Status Status `json:"status"`
	Buyer  string `json:"buyer"`
	Seller string `json:"seller"`
}

// LoadStatus reads an order's status cache entry.
func LoadStatus(ctx context.Context, rdb *redis.Client, orderID string) (*StatusEntry, bool) {
	raw, err := rdb.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Bytes()
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	var e StatusEntry
	if json.Unmarshal(raw, &e) != nil || e.Status == "" {
		return nil, false
	}
	return &e, true
}

// GetStatus returns an order's status to its buyer or seller, from cache when
// possible.
func (s *Service) GetStatus(ctx context.Context, userID, orderID string) (Status, error) {
	if e, ok := LoadStatus(ctx, s.Redis, orderID); ok {
		if e.Buyer != userID && e.Seller != userID {
			return "", fmt.Errorf("%w: order", ErrNotFound)
		}
		return e.Status, nil
	}

	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.BuyerID != userID && order.SellerID != userID {
		return "", fmt.Errorf("%w: order", ErrNotFound)
	}
	s.cacheStatus(ctx, order)
	return order.Status, nil
}

func (s *Service) cacheStatus(ctx context.Context, o *Order) {
	ProjectStatus(ctx, s.Redis, o.ID, o.Status, o.BuyerID, o.SellerID)
}

// ProjectStatus writes an order's status into the read cache used by
// GetStatus.
func ProjectStatus(ctx context.Context, rdb *redis.Client, orderID string, st Status, buyerID, sellerID string) {
	b, _ := json.Marshal(StatusEntry{Status: st, Buyer: buyerID, Seller: sellerID})
	_ = rdb.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID), b, redisx.TTLStatusCache).Err()
}

func (s *Service) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	publishEvent(ctx, s.Producer, s.ServiceName, topic, eventType, orderID, payload)
}

func publishEvent(ctx context.Context, p Publisher, producer, topic, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       TraceID(ctx),
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(topic, PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// CreateProduct lists a new product for sellerID.
func (s *Service) CreateProduct(ctx context.Context, sellerID string, p Product) (*Product, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if !p.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidInput)
	}
	if p.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	if _, err := s.Store.GetUser(ctx, sellerID); err != nil {
		return nil, err
	}
	p.ID = s.newID()
	p.SellerID = sellerID
	p.Price = p.Price.Round(2)
	if err := s.Store.CreateProduct(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) Restock(ctx context.Context, sellerID, productID string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidInput)
	}
	return s.Store.SetProductQuantity(ctx, productID, sellerID, qty)
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.Store.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.Store.GetProduct(ctx, id)
}
