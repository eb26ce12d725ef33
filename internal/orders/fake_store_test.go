package orders

import (
	"context"
	"fmt"
	"sort"
	"sync"

	kafkago "github.com/segmentio/kafka-go"
)

// memStore is an in-memory Store with the same semantics as Repo.
type memStore struct {
	mu       sync.Mutex
	users    map[string]User
	products map[string]Product
	orders   map[string]Order
	payments map[string]Payment // by transaction uuid

	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]User{},
		products: map[string]Product{},
		orders:   map[string]Order{},
		payments: map[string]Payment{},
	}
}

func (m *memStore) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	return &u, nil
}

func (m *memStore) GetProduct(_ context.Context, id string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product", ErrNotFound)
	}
	return &p, nil
}

func (m *memStore) ListProducts(_ context.Context) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Product{}
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateProduct(_ context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = *p
	return nil
}

func (m *memStore) SetProductQuantity(_ context.Context, productID, sellerID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.SellerID != sellerID {
		return fmt.Errorf("%w: product", ErrNotFound)
	}
	p.Quantity = qty
	m.products[productID] = p
	return nil
}

func (m *memStore) CreateOrderWithPayment(_ context.Context, o *Order, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, dup := m.payments[p.TransactionUUID]; dup {
		return fmt.Errorf("duplicate transaction uuid %s", p.TransactionUUID)
	}
	m.orders[o.ID] = *o
	m.payments[p.TransactionUUID] = *p
	return nil
}

func (m *memStore) GetOrder(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	return &o, nil
}

func (m *memStore) ListOrdersByBuyer(_ context.Context, buyerID string) ([]OrderView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []OrderView{}
	for _, o := range m.orders {
		if o.BuyerID != buyerID {
			continue
		}
		p := m.products[o.ProductID]
		s := m.users[o.SellerID]
		out = append(out, OrderView{Order: o, Product: &p, Seller: &s})
	}
	return out, nil
}

func (m *memStore) ListOrdersByProduct(_ context.Context, sellerID, productID string) ([]OrderView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []OrderView{}
	for _, o := range m.orders {
		if o.ProductID != productID || o.SellerID != sellerID {
			continue
		}
		b := m.users[o.BuyerID]
		out = append(out, OrderView{Order: o, Buyer: &b})
	}
	return out, nil
}

func (m *memStore) UpdateOrderStatus(_ context.Context, orderID, sellerID string, from, to Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.SellerID != sellerID || o.Status != from {
		return false, nil
	}
	o.Status = to
	m.orders[orderID] = o
	return true, nil
}

func (m *memStore) RecordPaymentStatus(_ context.Context, txUUID string, status PaymentStatus, providerStatus, providerRef string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[txUUID]
	if !ok || p.Status == PaymentSuccess {
		return nil, nil
	}
	p.Status = status
	p.ProviderStatus = providerStatus
	if providerRef != "" {
		p.ProviderRef = providerRef
	}
	m.payments[txUUID] = p
	return &p, nil
}

func (m *memStore) CompletePayment(_ context.Context, txUUID, providerStatus, providerRef string) (*Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[txUUID]
	if !ok {
		return nil, fmt.Errorf("%w: payment", ErrNotFound)
	}
	res := &Completion{Payment: p}
	if p.Status == PaymentSuccess {
		return res, nil
	}
	o, ok := m.orders[p.OrderID]
	if !ok {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}

	p.Status = PaymentSuccess
	p.ProviderStatus = providerStatus
	if providerRef != "" {
		p.ProviderRef = providerRef
	}
	m.payments[txUUID] = p
	res.Payment = p

	if o.Status != StatusPending {
		res.OrderClosed = true
	} else {
		o.Status = StatusPlaced
		prod := m.products[p.ProductID]
		if prod.Quantity > 0 {
			prod.Quantity--
		} else {
			res.Oversold = true
		}
		m.orders[o.ID] = o
		m.products[prod.ID] = prod
	}

	res.OrderStatus = o.Status
	res.BuyerID, res.SellerID = o.BuyerID, o.SellerID
	res.Applied = true
	return res, nil
}

func (m *memStore) payment(txUUID string) Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[txUUID]
}

func (m *memStore) order(id string) Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *memStore) product(id string) Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id]
}

type published struct {
	Topic string
	Key   string
	Value []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(topic string, key, value []byte, _ ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{Topic: topic, Key: string(key), Value: value})
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		out = append(out, m.Topic)
	}
	return out
}
