package orders

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/digikrishi/krishi-market/internal/postgres"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Runs against a real database only when ORDERS_TEST_DSN is set.
func testRepo(t *testing.T) *Repo {
	t.Helper()
	dsn := os.Getenv("ORDERS_TEST_DSN")
	if dsn == "" {
		t.Skip("ORDERS_TEST_DSN not set")
	}
	ctx := context.Background()
	db, err := postgres.Connect(ctx, dsn, 16)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(db.Close)
	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &Repo{DB: db}
}

func seed(t *testing.T, r *Repo, qty int) (buyer, seller, product string) {
	t.Helper()
	ctx := context.Background()
	buyer, seller, product = uuid.NewString(), uuid.NewString(), uuid.NewString()
	for _, u := range []struct{ id, role string }{{buyer, "GENERAL"}, {seller, "FARMER"}} {
		if _, err := r.DB.Exec(ctx, `INSERT INTO users (id, username, email, role) VALUES ($1, $1, $1 || '@test', $2)`,
			u.id, u.role); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.CreateProduct(ctx, &Product{
		ID: product, SellerID: seller, Name: "Maize", Price: decimal.RequireFromString("100.00"),
		Quantity: qty, AvailableForDelivery: true,
	}); err != nil {
		t.Fatal(err)
	}
	return buyer, seller, product
}

func pendingOrder(t *testing.T, r *Repo, buyer, seller, product string) (*Order, *Payment) {
	t.Helper()
	o := &Order{
		ID: uuid.NewString(), ProductID: product, BuyerID: buyer, SellerID: seller, Quantity: 1,
		TotalPrice: decimal.NewFromInt(100), Status: StatusPending, DeliveryType: DeliveryHome,
	}
	p := &Payment{
		ID: uuid.NewString(), MerchantCode: "EPAYTEST", Amount: decimal.NewFromInt(113), TaxAmount: decimal.NewFromInt(13),
		TransactionUUID: uuid.NewString(), ProductCode: "EPAYTEST", BuyerID: buyer, ProductID: product,
		OrderID: o.ID, Status: PaymentPending,
	}
	if err := r.CreateOrderWithPayment(context.Background(), o, p); err != nil {
		t.Fatalf("CreateOrderWithPayment: %v", err)
	}
	return o, p
}

func TestRepoCompletePaymentConcurrent(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	buyer, seller, product := seed(t, r, 3)
	o, p := pendingOrder(t, r, buyer, seller, product)

	var wg sync.WaitGroup
	results := make(chan *Completion, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.CompletePayment(ctx, p.TransactionUUID, "COMPLETE", "REF1")
			if err != nil {
				t.Error(err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for res := range results {
		if res.Applied {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("applied %d times, want 1", applied)
	}

	got, err := r.GetOrder(ctx, o.ID)
	if err != nil || got.Status != StatusPlaced || !got.TotalPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("order = %+v, %v", got, err)
	}
	prod, _ := r.GetProduct(ctx, product)
	if prod.Quantity != 2 {
		t.Errorf("quantity = %d, want 2", prod.Quantity)
	}

	if res, err := r.RecordPaymentStatus(ctx, p.TransactionUUID, PaymentFailed, "CANCELED", ""); err != nil || res != nil {
		t.Errorf("success payment was downgraded: %+v, %v", res, err)
	}
}

func TestRepoOrderQueries(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	buyer, seller, product := seed(t, r, 0)
	o, p := pendingOrder(t, r, buyer, seller, product)

	res, err := r.CompletePayment(ctx, p.TransactionUUID, "COMPLETE", "")
	if err != nil || !res.Applied || !res.Oversold {
		t.Fatalf("CompletePayment = %+v, %v", res, err)
	}

	mine, err := r.ListOrdersByBuyer(ctx, buyer)
	if err != nil || len(mine) != 1 || mine[0].Seller.ID != seller || mine[0].Product.ID != product {
		t.Fatalf("ListOrdersByBuyer = %+v, %v", mine, err)
	}
	forSeller, err := r.ListOrdersByProduct(ctx, seller, product)
	if err != nil || len(forSeller) != 1 || forSeller[0].Buyer.ID != buyer {
		t.Fatalf("ListOrdersByProduct = %+v, %v", forSeller, err)
	}
	if other, _ := r.ListOrdersByProduct(ctx, buyer, product); len(other) != 0 {
		t.Errorf("non-owner sees %d orders", len(other))
	}

	ok, err := r.UpdateOrderStatus(ctx, o.ID, seller, StatusPending, StatusCancelled)
	if err != nil || ok {
		t.Errorf("stale compare-and-set succeeded: %v, %v", ok, err)
	}
	ok, err = r.UpdateOrderStatus(ctx, o.ID, seller, StatusPlaced, StatusShipped)
	if err != nil || !ok {
		t.Errorf("UpdateOrderStatus = %v, %v", ok, err)
	}

	if _, err := r.GetOrder(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetOrder(missing) err = %v", err)
	}
	if _, err := r.CompletePayment(ctx, "missing", "COMPLETE", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("CompletePayment(missing) err = %v", err)
	}
	if err := r.SetProductQuantity(ctx, product, buyer, 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner restock err = %v", err)
	}
}

func TestRepoCompletePaymentClosedOrder(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	buyer, seller, product := seed(t, r, 3)
	o, p := pendingOrder(t, r, buyer, seller, product)

	if ok, err := r.UpdateOrderStatus(ctx, o.ID, seller, StatusPending, StatusCancelled); err != nil || !ok {
		t.Fatalf("cancel = %v, %v", ok, err)
	}
	res, err := r.CompletePayment(ctx, p.TransactionUUID, "COMPLETE", "REF2")
	if err != nil || !res.Applied || !res.OrderClosed || res.OrderStatus != StatusCancelled {
		t.Fatalf("CompletePayment = %+v, %v", res, err)
	}
	if res.Payment.Status != PaymentSuccess || res.Payment.ProviderRef != "REF2" {
		t.Errorf("payment = %+v", res.Payment)
	}
	if got, _ := r.GetOrder(ctx, o.ID); got.Status != StatusCancelled {
		t.Errorf("order status = %s", got.Status)
	}
	if prod, _ := r.GetProduct(ctx, product); prod.Quantity != 3 {
		t.Errorf("quantity = %d, want 3", prod.Quantity)
	}
}
