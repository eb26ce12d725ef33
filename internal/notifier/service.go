// Package notifier consumes order events, keeps the order status cache warm
// and tells buyers and sellers what happened to their orders.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	kafkax "github.com/digikrishi/krishi-market/internal/kafka"
	"github.com/digikrishi/krishi-market/internal/orders"
	"github.com/digikrishi/krishi-market/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

type Notification struct {
	UserID  string
	OrderID string
	Kind    string
	Text    string
}

const (
	KindNewOrder       = "new_order"
	KindPaymentOK      = "payment_received"
	KindPaymentFailed  = "payment_failed"
	KindOrderPaid      = "order_paid"
	KindOrderProgress  = "order_progress"
	KindOrderCancelled = "order_cancelled"
)

// Sink delivers notifications. LogSink is the only one shipped.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

type LogSink struct {
	Log zerolog.Logger
}

func (s LogSink) Notify(_ context.Context, n Notification) error {
	s.Log.Info().Str("user_id", n.UserID).Str("order_id", n.OrderID).
		Str("kind", n.Kind).Msg(n.Text)
	return nil
}

type Service struct {
	Redis *redis.Client
	Sink  Sink
	Log   zerolog.Logger
}

// Handle is installed as the consumer handler. Events are deduplicated by
// event id; a failed event is not marked and will be retried.
func (s *Service) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, "notifier", env.EventID)
	if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
		return nil
	}

	var notes []Notification
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			return err
		}
		notes = append(notes, Notification{
			UserID: p.SellerID, OrderID: p.OrderID, Kind: KindNewOrder,
			Text: fmt.Sprintf("new order for %s (Rs. %s), awaiting payment", p.ProductID, p.TotalPrice),
		})

	case orders.EventPaymentReconciled:
		p, err := kafkax.UnwrapPayload[orders.PaymentReconciledPayload](env.Payload)
		if err != nil {
			return err
		}
		notes = paymentNotes(p)
		if p.OrderStatus != "" && p.SellerID != "" {
			s.project(ctx, p.OrderID, p.OrderStatus, p.BuyerID, p.SellerID)
		}

	case orders.EventOrderStatusChanged:
		p, err := kafkax.UnwrapPayload[orders.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			return err
		}
		s.project(ctx, p.OrderID, p.To, p.BuyerID, p.SellerID)
		kind := KindOrderProgress
		if p.To == orders.StatusCancelled {
			kind = KindOrderCancelled
		}
		notes = append(notes, Notification{
			UserID: p.BuyerID, OrderID: p.OrderID, Kind: kind,
			Text: fmt.Sprintf("your order is now %s", p.To),
		})

	default:
		s.Log.Debug().Str("event_type", env.EventType).Msg("ignoring event")
	}

	for _, n := range notes {
		if err := s.Sink.Notify(ctx, n); err != nil {
			return err
		}
	}
	_, _ = redisx.MarkOnce(ctx, s.Redis, dkey, redisx.TTLDedup)
	return nil
}

// project only moves the cached status forward. Events for one order arrive
// on different topics, so an older one may be handled after a newer one.
func (s *Service) project(ctx context.Context, orderID string, st orders.Status, buyerID, sellerID string) {
	if cur, ok := orders.LoadStatus(ctx, s.Redis, orderID); ok {
		if cur.Status.Stage() > st.Stage() || (cur.Status.Terminal() && cur.Status != st) {
			return
		}
	}
	orders.ProjectStatus(ctx, s.Redis, orderID, st, buyerID, sellerID)
}

func paymentNotes(p orders.PaymentReconciledPayload) []Notification {
	switch p.PaymentStatus {
	case orders.PaymentSuccess:
		out := []Notification{{
			UserID: p.BuyerID, OrderID: p.OrderID, Kind: KindPaymentOK,
			Text: "payment received, your order is placed",
		}}
		if p.SellerID != "" {
			out = append(out, Notification{
				UserID: p.SellerID, OrderID: p.OrderID, Kind: KindOrderPaid,
				Text: "order paid, ready to ship",
			})
		}
		return out
	case orders.PaymentFailed:
		return []Notification{{
			UserID: p.BuyerID, OrderID: p.OrderID, Kind: KindPaymentFailed,
			Text: fmt.Sprintf("payment was not completed (%s)", p.ProviderStatus),
		}}
	}
	// still pending at the provider
	return nil
}
