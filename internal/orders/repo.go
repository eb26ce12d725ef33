package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repo is the Postgres-backed Store.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

const productColumns = `p.id, p.seller_id, p.name, p.description, p.price::text, p.quantity,
	p.available_for_delivery, p.is_verified, p.created_at, p.updated_at`

const orderColumns = `o.id, o.product_id, o.buyer_id, o.seller_id, o.quantity, o.total_price::text,
	o.status, o.delivery_type, o.created_at, o.updated_at`

const paymentColumns = `id, merchant_code, amount::text, tax_amount::text, transaction_uuid, product_code,
	buyer_id, product_id, order_id, status, provider_status, provider_ref, created_at, updated_at`

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func (r *Repo) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := r.DB.QueryRow(ctx, `SELECT id, username, email, role, is_verified FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.IsVerified)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

func scanProduct(row pgx.Row, p *Product) error {
	var price string
	if err := row.Scan(&p.ID, &p.SellerID, &p.Name, &p.Description, &price, &p.Quantity,
		&p.AvailableForDelivery, &p.IsVerified, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return fmt.Errorf("product %s price: %w", p.ID, err)
	}
	p.Price = d
	return nil
}

func (r *Repo) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	row := r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id=$1`, id)
	if err := scanProduct(row, &p); err != nil {
		return nil, notFound(err, "product")
	}
	return &p, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products p ORDER BY p.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Product{}
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) CreateProduct(ctx context.Context, p *Product) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO products (id, seller_id, name, description, price, quantity, available_for_delivery)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		RETURNING created_at, updated_at`,
		p.ID, p.SellerID, p.Name, p.Description, p.Price.String(), p.Quantity, p.AvailableForDelivery,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *Repo) SetProductQuantity(ctx context.Context, productID, sellerID string, qty int) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET quantity=$3, updated_at=now()
		WHERE id=$1 AND seller_id=$2`, productID, sellerID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: product", ErrNotFound)
	}
	return nil
}

// CreateOrderWithPayment inserts the order and its pending payment together.
func (r *Repo) CreateOrderWithPayment(ctx context.Context, o *Order, p *Payment) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, `
		INSERT INTO orders (id, product_id, buyer_id, seller_id, quantity, total_price, status, delivery_type)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)
		RETURNING created_at, updated_at`,
		o.ID, o.ProductID, o.BuyerID, o.SellerID, o.Quantity, o.TotalPrice.String(), o.Status, o.DeliveryType,
	).Scan(&o.CreatedAt, &o.UpdatedAt); err != nil {
		return err
	}

	if err := tx.QueryRow(ctx, `
		INSERT INTO payments (id, merchant_code, amount, tax_amount, transaction_uuid, product_code,
			buyer_id, product_id, order_id, status)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		p.ID, p.MerchantCode, p.Amount.String(), p.TaxAmount.String(), p.TransactionUUID, p.ProductCode,
		p.BuyerID, p.ProductID, p.OrderID, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// orderDest lists scan targets for orderColumns; total_price lands in total.
func orderDest(o *Order, total *string) []any {
	return []any{&o.ID, &o.ProductID, &o.BuyerID, &o.SellerID, &o.Quantity, total,
		&o.Status, &o.DeliveryType, &o.CreatedAt, &o.UpdatedAt}
}

func (r *Repo) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	var total string
	if err := r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id=$1`, id).
		Scan(orderDest(&o, &total)...); err != nil {
		return nil, notFound(err, "order")
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return nil, err
	}
	o.TotalPrice = d
	return &o, nil
}

// ListOrdersByBuyer returns the buyer's orders with product and seller.
func (r *Repo) ListOrdersByBuyer(ctx context.Context, buyerID string) ([]OrderView, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+`, `+productColumns+`, u.id, u.username, u.email, u.role, u.is_verified
		FROM orders o
		JOIN products p ON p.id = o.product_id
		JOIN users u ON u.id = o.seller_id
		WHERE o.buyer_id=$1
		ORDER BY o.created_at DESC`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []OrderView{}
	for rows.Next() {
		var v OrderView
		var p Product
		var seller User
		var total, price string
		dest := orderDest(&v.Order, &total)
		dest = append(dest, &p.ID, &p.SellerID, &p.Name, &p.Description, &price, &p.Quantity,
			&p.AvailableForDelivery, &p.IsVerified, &p.CreatedAt, &p.UpdatedAt,
			&seller.ID, &seller.Username, &seller.Email, &seller.Role, &seller.IsVerified)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if v.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		v.Product, v.Seller = &p, &seller
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListOrdersByProduct returns orders against a product owned by sellerID,
// with the buyer embedded.
func (r *Repo) ListOrdersByProduct(ctx context.Context, sellerID, productID string) ([]OrderView, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+`, u.id, u.username, u.email, u.role, u.is_verified
		FROM orders o
		JOIN users u ON u.id = o.buyer_id
		WHERE o.product_id=$1 AND o.seller_id=$2
		ORDER BY o.created_at DESC`, productID, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []OrderView{}
	for rows.Next() {
		var v OrderView
		var buyer User
		var total string
		dest := orderDest(&v.Order, &total)
		dest = append(dest, &buyer.ID, &buyer.Username, &buyer.Email, &buyer.Role, &buyer.IsVerified)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if v.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		v.Buyer = &buyer
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateOrderStatus moves the order only if it is still in from. It reports
// whether a row changed.
func (r *Repo) UpdateOrderStatus(ctx context.Context, orderID, sellerID string, from, to Status) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$4, updated_at=now()
		WHERE id=$1 AND seller_id=$2 AND status=$3`, orderID, sellerID, from, to)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var amount, tax string
	if err := row.Scan(&p.ID, &p.MerchantCode, &amount, &tax, &p.TransactionUUID, &p.ProductCode,
		&p.BuyerID, &p.ProductID, &p.OrderID, &p.Status, &p.ProviderStatus, &p.ProviderRef,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	if p.TaxAmount, err = decimal.NewFromString(tax); err != nil {
		return nil, err
	}
	return &p, nil
}

// RecordPaymentStatus stores a non-final provider result. A payment that
// already succeeded is never downgraded. Unknown uuids are a no-op and
// return (nil, nil).
func (r *Repo) RecordPaymentStatus(ctx context.Context, txUUID string, status PaymentStatus, providerStatus, providerRef string) (*Payment, error) {
	row := r.DB.QueryRow(ctx, `
		UPDATE payments
		SET status=$2, provider_status=$3, provider_ref=COALESCE(NULLIF($4, ''), provider_ref), updated_at=now()
		WHERE transaction_uuid=$1 AND status <> 'success'
		RETURNING `+paymentColumns, txUUID, status, providerStatus, providerRef)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// CompletePayment applies a confirmed payment in one transaction: payment to
// success, order to placed, product stock down by one. The payment row is
// locked first; if it already succeeded nothing changes and Applied is false.
// If the order is no longer pending only the payment is updated and
// OrderClosed is set.
func (r *Repo) CompletePayment(ctx context.Context, txUUID, providerStatus, providerRef string) (*Completion, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := scanPayment(tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE transaction_uuid=$1 FOR UPDATE`, txUUID))
	if err != nil {
		return nil, notFound(err, "payment")
	}
	res := &Completion{Payment: *p}
	if p.Status == PaymentSuccess {
		return res, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE payments
		SET status='success', provider_status=$2, provider_ref=COALESCE(NULLIF($3, ''), provider_ref), updated_at=now()
		WHERE id=$1`, p.ID, providerStatus, providerRef); err != nil {
		return nil, err
	}
	res.Payment.Status = PaymentSuccess
	res.Payment.ProviderStatus = providerStatus
	if providerRef != "" {
		res.Payment.ProviderRef = providerRef
	}

	var st Status
	err = tx.QueryRow(ctx,
		`SELECT status, buyer_id, seller_id FROM orders WHERE id=$1 FOR UPDATE`, p.OrderID).
		Scan(&st, &res.BuyerID, &res.SellerID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	res.OrderStatus = st
	if st != StatusPending {
		// paid after the seller closed the order: keep the money trail, leave stock alone
		res.OrderClosed = true
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		res.Applied = true
		return res, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE orders SET status='placed', updated_at=now() WHERE id=$1`, p.OrderID); err != nil {
		return nil, err
	}
	res.OrderStatus = StatusPlaced

	ct, err := tx.Exec(ctx, `
		UPDATE products SET quantity = quantity - 1, updated_at=now()
		WHERE id=$1 AND quantity > 0`, p.ProductID)
	if err != nil {
		return nil, err
	}
	res.Oversold = ct.RowsAffected() == 0

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	res.Applied = true
	return res, nil
}
