package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/digikrishi/krishi-market/internal/esewa"
	"github.com/digikrishi/krishi-market/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	ErrBadSignature       = errors.New("callback signature mismatch")
	ErrPaymentNotComplete = errors.New("payment not complete")
	ErrOrderClosed        = errors.New("order closed before payment completed")
)

// StatusChecker is satisfied by *esewa.StatusClient.
type StatusChecker interface {
	Check(ctx context.Context, productCode, totalAmount, transactionUUID string) (*esewa.StatusResponse, error)
}

// Reconciler applies provider callbacks to payments, orders and stock.
type Reconciler struct {
	Store       Store
	Gateway     *esewa.Gateway
	Status      StatusChecker
	Producer    Publisher
	Redis       *redis.Client
	Log         zerolog.Logger
	ServiceName string
}

// HandleCallback reconciles one callback. A nil error means the payment is
// confirmed and applied (now or by an earlier delivery of the same callback);
// any error means the buyer goes to the failure page.
func (r *Reconciler) HandleCallback(ctx context.Context, data string) error {
	cb, err := esewa.DecodeCallback(data)
	if err != nil {
		return err
	}
	log := r.Log.With().Str("transaction_uuid", cb.TransactionUUID).Logger()

	if cb.Signature != "" && !r.Gateway.VerifyCallback(cb) {
		return ErrBadSignature
	}
	if cb.ProductCode != "" && cb.ProductCode != r.Gateway.ProductCode {
		return fmt.Errorf("%w: unexpected product code %q", ErrInvalidInput, cb.ProductCode)
	}

	// An unsigned status is not trusted; the provider is asked instead.
	status, ref := cb.Status, cb.TransactionCode
	if status == "" || cb.Signature == "" {
		productCode := cb.ProductCode
		if productCode == "" {
			productCode = r.Gateway.ProductCode
		}
		resp, err := r.Status.Check(ctx, productCode, string(cb.TotalAmount), cb.TransactionUUID)
		if err != nil {
			return err
		}
		status = resp.Status
		if resp.RefID != "" {
			ref = resp.RefID
		}
		log.Debug().Str("status", status).Msg("status resolved via provider api")
	}

	if status != esewa.StatusComplete {
		p, err := r.Store.RecordPaymentStatus(ctx, cb.TransactionUUID, PaymentStatusFor(status), status, ref)
		if err != nil {
			return err
		}
		if p != nil {
			publishEvent(ctx, r.Producer, r.ServiceName, TopicPaymentReconciled, EventPaymentReconciled, p.OrderID,
				PaymentReconciledPayload{
					OrderID:         p.OrderID,
					TransactionUUID: p.TransactionUUID,
					PaymentStatus:   p.Status,
					ProviderStatus:  status,
					BuyerID:         p.BuyerID,
				})
		}
		return fmt.Errorf("%w: provider status %q", ErrPaymentNotComplete, status)
	}

	dedupKey := fmt.Sprintf(redisx.KeyDedup, "callback", cb.TransactionUUID)
	if seen, _ := redisx.Exists(ctx, r.Redis, dedupKey); seen {
		log.Info().Msg("callback already reconciled")
		return nil
	}

	res, err := r.Store.CompletePayment(ctx, cb.TransactionUUID, status, ref)
	if err != nil {
		return err
	}
	_ = r.Redis.Set(ctx, dedupKey, res.Payment.OrderID, redisx.TTLDedup).Err()

	if !res.Applied {
		log.Info().Str("order_id", res.Payment.OrderID).Msg("payment already applied")
		return nil
	}
	if res.OrderClosed {
		log.Warn().Str("order_id", res.Payment.OrderID).Str("order_status", string(res.OrderStatus)).
			Str("provider_ref", res.Payment.ProviderRef).Msg("payment received for closed order, refund required")
		return fmt.Errorf("%w: order is %s", ErrOrderClosed, res.OrderStatus)
	}
	if res.Oversold {
		log.Warn().Str("product_id", res.Payment.ProductID).Str("order_id", res.Payment.OrderID).
			Msg("paid order against product with no stock left")
	}

	ProjectStatus(ctx, r.Redis, res.Payment.OrderID, res.OrderStatus, res.BuyerID, res.SellerID)
	publishEvent(ctx, r.Producer, r.ServiceName, TopicPaymentReconciled, EventPaymentReconciled, res.Payment.OrderID,
		PaymentReconciledPayload{
			OrderID:         res.Payment.OrderID,
			TransactionUUID: res.Payment.TransactionUUID,
			PaymentStatus:   PaymentSuccess,
			ProviderStatus:  status,
			OrderStatus:     res.OrderStatus,
			BuyerID:         res.BuyerID,
			SellerID:        res.SellerID,
		})
	log.Info().Str("order_id", res.Payment.OrderID).Msg("payment reconciled")
	return nil
}
