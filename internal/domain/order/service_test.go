package order

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teespace/storefront/internal/domain/catalog"
	"github.com/teespace/storefront/internal/domain/coupon"
	"github.com/teespace/storefront/internal/domain/wallet"
)

// --- Mock implementations ---

type mockCatalog struct {
	products   map[string]catalog.Product
	reserved   [][]catalog.StockDelta
	reserveErr error
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	out := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockCatalog) ReserveStock(_ context.Context, deltas []catalog.StockDelta) error {
	if m.reserveErr != nil {
		return m.reserveErr
	}
	m.reserved = append(m.reserved, deltas)
	return nil
}

type mockCoupons struct {
	coupons  []coupon.Coupon
	consumed [][]string
}

func (m *mockCoupons) FindValid(_ context.Context, _ []string, _ time.Time) ([]coupon.Coupon, error) {
	return m.coupons, nil
}

func (m *mockCoupons) Consume(_ context.Context, codes []string) error {
	m.consumed = append(m.consumed, codes)
	return nil
}

type mockOrders struct {
	stored    *Order
	created   *Order
	saveCount int
	createErr error
	saveErr   error
}

func (m *mockOrders) GetByOrderID(_ context.Context, orderID string) (*Order, error) {
	if m.stored == nil || m.stored.OrderID != orderID {
		return nil, ErrNotFound
	}
	return m.stored, nil
}

func (m *mockOrders) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = o
	return nil
}

func (m *mockOrders) Save(_ context.Context, o *Order) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saveCount++
	m.stored = o
	return nil
}

func (m *mockOrders) SalesSummary(_ context.Context, _, _ time.Time) (SalesReport, error) {
	return SalesReport{}, nil
}

type mockRefunds struct {
	calls   int
	order   *Order
	credit  *wallet.Entry
	restock []catalog.StockDelta
}

func (m *mockRefunds) ApplyRefund(_ context.Context, o *Order, credit *wallet.Entry, restock []catalog.StockDelta) error {
	m.calls++
	m.order = o
	m.credit = credit
	m.restock = restock
	return nil
}

type mockWallet struct {
	debits   []wallet.Entry
	credits  []wallet.Entry
	debitErr error
}

func (m *mockWallet) GetOrCreate(_ context.Context, userID string) (*wallet.Wallet, error) {
	return &wallet.Wallet{UserID: userID}, nil
}

func (m *mockWallet) Credit(_ context.Context, e wallet.Entry) error {
	m.credits = append(m.credits, e)
	return nil
}

func (m *mockWallet) Debit(_ context.Context, e wallet.Entry) error {
	if m.debitErr != nil {
		return m.debitErr
	}
	m.debits = append(m.debits, e)
	return nil
}

type mockSequences struct {
	invoiceCalls int
}

func (m *mockSequences) NextOrderID(_ context.Context) (string, error) {
	return "ORD2026000100", nil
}

func (m *mockSequences) NextInvoiceNumber(_ context.Context) (string, error) {
	m.invoiceCalls++
	return "INV-2026-7", nil
}

// --- Helpers ---

type deps struct {
	catalog *mockCatalog
	coupons *mockCoupons
	orders  *mockOrders
	refunds *mockRefunds
	wallets *mockWallet
	seq     *mockSequences
}

const gatewaySecret = "gateway-secret"

var errTestCreate = errors.New("create failed")

func newTestService(t *testing.T) (*Service, *deps) {
	t.Helper()
	d := &deps{
		catalog: &mockCatalog{products: map[string]catalog.Product{
			"tshirt": {
				ID: "tshirt", Name: "Classic T-Shirt", CategoryID: "apparel",
				RegularPrice: dec("600"), SalePrice: dec("500"), Quantity: 10,
			},
			"hoodie": {
				ID: "hoodie", Name: "Zip Hoodie", CategoryID: "apparel",
				RegularPrice: dec("900"), SalePrice: dec("700"), Quantity: 10,
			},
		}},
		coupons: &mockCoupons{},
		orders:  &mockOrders{},
		refunds: &mockRefunds{},
		wallets: &mockWallet{},
		seq:     &mockSequences{},
	}
	s := NewService(
		Config{GatewaySecret: []byte(gatewaySecret), CODLimit: dec("1000")},
		d.catalog, d.coupons, d.orders, d.refunds, d.wallets, d.seq,
	)
	s.now = func() time.Time { return testNow }
	return s, d
}

func dec(s string) decimal.Decimal { return d(s) }

func placeRequest(method PaymentMethod, lines ...CartLine) PlaceOrderRequest {
	if len(lines) == 0 {
		lines = []CartLine{{ProductID: "tshirt", Quantity: 1}, {ProductID: "hoodie", Quantity: 1}}
	}
	return PlaceOrderRequest{
		UserID:        "u1",
		PaymentMethod: method,
		Lines:         lines,
	}
}

func sign(gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(gatewaySecret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// --- PlaceOrder ---

func TestPlaceOrder_CashOnDelivery(t *testing.T) {
	s, d := newTestService(t)

	o, err := s.PlaceOrder(context.Background(), placeRequest(CashOnDelivery,
		CartLine{ProductID: "tshirt", Quantity: 1}))
	require.NoError(t, err)

	assert.Equal(t, "ORD2026000100", o.OrderID)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.True(t, o.TotalAmount.Equal(dec("500")))

	// Stock reserved at placement, nothing touches the wallet.
	require.Len(t, d.catalog.reserved, 1)
	assert.Equal(t, []catalog.StockDelta{{ProductID: "tshirt", Delta: -1}}, d.catalog.reserved[0])
	assert.Empty(t, d.wallets.debits)
	require.NotNil(t, d.orders.created)
}

func TestPlaceOrder_CODAboveLimit(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.PlaceOrder(context.Background(), placeRequest(CashOnDelivery))

	var limitErr *CODLimitError
	require.ErrorAs(t, err, &limitErr)
}

func TestPlaceOrder_WalletPaymentDebitsUpfront(t *testing.T) {
	s, d := newTestService(t)

	o, err := s.PlaceOrder(context.Background(), placeRequest(WalletPayment))
	require.NoError(t, err)

	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	require.Len(t, d.wallets.debits, 1)
	assert.True(t, d.wallets.debits[0].Amount.Equal(dec("1200")))
	assert.Equal(t, wallet.Debit, d.wallets.debits[0].Kind)
	require.Len(t, d.catalog.reserved, 1)
}

func TestPlaceOrder_WalletInsufficientBalance(t *testing.T) {
	s, d := newTestService(t)
	d.wallets.debitErr = wallet.ErrInsufficientBalance

	_, err := s.PlaceOrder(context.Background(), placeRequest(WalletPayment))
	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	assert.Nil(t, d.orders.created)
}

func TestPlaceOrder_OnlineDefersStockToVerification(t *testing.T) {
	s, d := newTestService(t)

	o, err := s.PlaceOrder(context.Background(), placeRequest(OnlinePayment))
	require.NoError(t, err)

	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Empty(t, d.catalog.reserved)
	require.NotNil(t, d.orders.created)
}

func TestPlaceOrder_StockShortfallLeavesNoTrace(t *testing.T) {
	s, d := newTestService(t)
	d.catalog.reserveErr = &catalog.InsufficientStockError{ProductID: "tshirt"}

	_, err := s.PlaceOrder(context.Background(), placeRequest(CashOnDelivery,
		CartLine{ProductID: "tshirt", Quantity: 1}))

	var stockErr *catalog.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Nil(t, d.orders.created, "no order may be created when reservation fails")
	assert.Empty(t, d.wallets.debits)
}

func TestPlaceOrder_WalletDebitFailureReleasesStock(t *testing.T) {
	s, d := newTestService(t)
	d.wallets.debitErr = wallet.ErrInsufficientBalance

	_, err := s.PlaceOrder(context.Background(), placeRequest(WalletPayment,
		CartLine{ProductID: "tshirt", Quantity: 1}))

	assert.ErrorIs(t, err, wallet.ErrInsufficientBalance)
	assert.Nil(t, d.orders.created)
	require.Len(t, d.catalog.reserved, 2)
	assert.Equal(t, []catalog.StockDelta{{ProductID: "tshirt", Delta: -1}}, d.catalog.reserved[0])
	assert.Equal(t, []catalog.StockDelta{{ProductID: "tshirt", Delta: 1}}, d.catalog.reserved[1])
}

func TestPlaceOrder_CreateFailureReversesWalletCharge(t *testing.T) {
	s, d := newTestService(t)
	d.orders.createErr = errTestCreate

	_, err := s.PlaceOrder(context.Background(), placeRequest(WalletPayment,
		CartLine{ProductID: "tshirt", Quantity: 1}))

	require.Error(t, err)
	require.Len(t, d.wallets.debits, 1)
	require.Len(t, d.wallets.credits, 1, "the upfront charge must be reversed")
	assert.True(t, d.wallets.credits[0].Amount.Equal(d.wallets.debits[0].Amount))
	assert.Equal(t, wallet.Credit, d.wallets.credits[0].Kind)
	require.Len(t, d.catalog.reserved, 2, "the reservation must be released")
	assert.Equal(t, []catalog.StockDelta{{ProductID: "tshirt", Delta: 1}}, d.catalog.reserved[1])
}

func TestPlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*deps, *PlaceOrderRequest)
		check  func(*testing.T, error)
	}{
		{
			name:   "empty cart",
			mutate: func(_ *deps, r *PlaceOrderRequest) { r.Lines = nil },
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrEmptyCart)
			},
		},
		{
			name: "zero quantity",
			mutate: func(_ *deps, r *PlaceOrderRequest) {
				r.Lines = []CartLine{{ProductID: "tshirt", Quantity: 0}}
			},
			check: func(t *testing.T, err error) {
				var e *ZeroQuantityError
				assert.ErrorAs(t, err, &e)
			},
		},
		{
			name: "unknown product",
			mutate: func(_ *deps, r *PlaceOrderRequest) {
				r.Lines = []CartLine{{ProductID: "ghost", Quantity: 1}}
			},
			check: func(t *testing.T, err error) {
				var e *ProductNotFoundError
				assert.ErrorAs(t, err, &e)
			},
		},
		{
			name: "blocked product",
			mutate: func(d *deps, _ *PlaceOrderRequest) {
				p := d.catalog.products["tshirt"]
				p.Blocked = true
				d.catalog.products["tshirt"] = p
			},
			check: func(t *testing.T, err error) {
				var e *BlockedProductError
				assert.ErrorAs(t, err, &e)
			},
		},
		{
			name: "out of stock",
			mutate: func(d *deps, r *PlaceOrderRequest) {
				r.Lines = []CartLine{{ProductID: "tshirt", Quantity: 11}}
			},
			check: func(t *testing.T, err error) {
				var e *OutOfStockError
				assert.ErrorAs(t, err, &e)
			},
		},
		{
			name: "coupon selection mismatch",
			mutate: func(_ *deps, r *PlaceOrderRequest) {
				r.CartCouponCodes = []string{"TEN"}
				r.ClaimedCouponCodes = []string{"TWENTY"}
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrCouponMismatch)
			},
		},
		{
			name: "stale coupon rejected wholesale",
			mutate: func(_ *deps, r *PlaceOrderRequest) {
				r.CartCouponCodes = []string{"GONE"}
				r.ClaimedCouponCodes = []string{"GONE"}
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, coupon.ErrInvalidCoupon)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d := newTestService(t)
			req := placeRequest(OnlinePayment)
			tt.mutate(d, &req)

			_, err := s.PlaceOrder(context.Background(), req)
			tt.check(t, err)
			assert.Nil(t, d.orders.created, "no order may be created on rejection")
		})
	}
}

func TestPlaceOrder_ReferralCouponConsumed(t *testing.T) {
	s, d := newTestService(t)
	d.coupons.coupons = []coupon.Coupon{{
		ID: "ref1", Code: "FRIEND50", DiscountType: coupon.DiscountFixed,
		Value: dec("50"), Active: true, ReferralUserID: "u2",
		StartDate:  testNow.AddDate(0, -1, 0),
		ExpiryDate: testNow.AddDate(0, 1, 0),
	}}

	req := placeRequest(CashOnDelivery, CartLine{ProductID: "tshirt", Quantity: 1})
	req.CartCouponCodes = []string{"FRIEND50"}
	req.ClaimedCouponCodes = []string{"FRIEND50"}

	o, err := s.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, o.TotalAmount.Equal(dec("450")))
	require.Len(t, d.coupons.consumed, 1)
	assert.Equal(t, []string{"FRIEND50"}, d.coupons.consumed[0])
}

// --- VerifyPayment ---

func TestVerifyPayment_Success(t *testing.T) {
	s, d := newTestService(t)
	o, err := s.PlaceOrder(context.Background(), placeRequest(OnlinePayment))
	require.NoError(t, err)
	d.orders.stored = o

	got, err := s.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:           "u1",
		OrderID:          o.OrderID,
		GatewayOrderID:   "pg_1",
		GatewayPaymentID: "pay_1",
		Signature:        sign("pg_1", "pay_1"),
	})
	require.NoError(t, err)

	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, "pg_1", got.GatewayOrderID)
	require.Len(t, d.catalog.reserved, 1)
	assert.Len(t, d.catalog.reserved[0], 2)
}

func TestVerifyPayment_BadSignature(t *testing.T) {
	s, d := newTestService(t)
	o, err := s.PlaceOrder(context.Background(), placeRequest(OnlinePayment))
	require.NoError(t, err)
	d.orders.stored = o

	_, err = s.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:           "u1",
		OrderID:          o.OrderID,
		GatewayOrderID:   "pg_1",
		GatewayPaymentID: "pay_1",
		Signature:        "deadbeef",
	})

	assert.ErrorIs(t, err, ErrSignatureMismatch)
	assert.Empty(t, d.catalog.reserved, "no stock may be reserved on a bad signature")
	assert.Equal(t, PaymentPending, o.PaymentStatus)
}

func TestVerifyPayment_WrongUser(t *testing.T) {
	s, d := newTestService(t)
	o, err := s.PlaceOrder(context.Background(), placeRequest(OnlinePayment))
	require.NoError(t, err)
	d.orders.stored = o

	_, err = s.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:    "intruder",
		OrderID:   o.OrderID,
		Signature: sign("pg_1", "pay_1"),
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyPayment_ReplayedCallbackRejected(t *testing.T) {
	s, d := newTestService(t)
	o, err := s.PlaceOrder(context.Background(), placeRequest(OnlinePayment))
	require.NoError(t, err)
	d.orders.stored = o

	req := VerifyPaymentRequest{
		UserID:           "u1",
		OrderID:          o.OrderID,
		GatewayOrderID:   "pg_1",
		GatewayPaymentID: "pay_1",
		Signature:        sign("pg_1", "pay_1"),
	}
	_, err = s.VerifyPayment(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, d.catalog.reserved, 1)

	// A gateway retry of the same signed callback must not settle again.
	_, err = s.VerifyPayment(context.Background(), req)
	assert.ErrorIs(t, err, ErrPaymentNotPending)
	assert.Len(t, d.catalog.reserved, 1, "stock must be reserved exactly once")
}

func TestVerifyPayment_NonOnlineOrderRejected(t *testing.T) {
	s, d := newTestService(t)
	o, err := s.PlaceOrder(context.Background(), placeRequest(CashOnDelivery,
		CartLine{ProductID: "tshirt", Quantity: 1}))
	require.NoError(t, err)
	d.orders.stored = o

	_, err = s.VerifyPayment(context.Background(), VerifyPaymentRequest{
		UserID:           "u1",
		OrderID:          o.OrderID,
		GatewayOrderID:   "pg_1",
		GatewayPaymentID: "pay_1",
		Signature:        sign("pg_1", "pay_1"),
	})
	assert.ErrorIs(t, err, ErrPaymentNotPending)
	assert.Len(t, d.catalog.reserved, 1, "only the placement reservation may exist")
}

func TestMarkPaymentFailed(t *testing.T) {
	s, d := newTestService(t)
	o, err := s.PlaceOrder(context.Background(), placeRequest(OnlinePayment))
	require.NoError(t, err)
	d.orders.stored = o

	got, err := s.MarkPaymentFailed(context.Background(), o.OrderID, "u1", "card declined")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, PaymentFailed, got.PaymentStatus)
	for _, it := range got.Items {
		assert.Equal(t, StatusPaymentFailed, it.Status)
	}
	assert.True(t, got.RefundedAmount.IsZero())
	assert.Empty(t, d.wallets.credits)
}

func TestMarkPaymentFailed_PaidWalletOrderRejected(t *testing.T) {
	s, d := newTestService(t)
	o, err := s.PlaceOrder(context.Background(), placeRequest(WalletPayment))
	require.NoError(t, err)
	d.orders.stored = o

	// The wallet was debited and stock reserved at placement; marking the
	// payment failed would strand both.
	_, err = s.MarkPaymentFailed(context.Background(), o.OrderID, "u1", "oops")
	assert.ErrorIs(t, err, ErrPaymentNotPending)
	assert.Equal(t, PaymentPaid, o.PaymentStatus)
	assert.NotEqual(t, StatusCancelled, o.Status)
	assert.Equal(t, 0, d.orders.saveCount)
}

// --- UpdateItemStatus ---

func paidOnlineOrder(t *testing.T, s *Service, d *deps) *Order {
	t.Helper()
	o, err := s.PlaceOrder(context.Background(), placeRequest(OnlinePayment))
	require.NoError(t, err)
	o.PaymentStatus = PaymentPaid
	d.orders.stored = o
	return o
}

func TestUpdateItemStatus_ShippedGeneratesInvoiceOnce(t *testing.T) {
	s, d := newTestService(t)
	o := paidOnlineOrder(t, s, d)

	got, err := s.UpdateItemStatus(context.Background(), o.OrderID, o.Items[0].ID, StatusShipped)
	require.NoError(t, err)

	assert.True(t, got.Invoice.Generated)
	assert.Equal(t, "INV-2026-7", got.Invoice.Number)
	assert.Equal(t, 1, d.seq.invoiceCalls)

	// Second item shipping must not mint a second invoice.
	_, err = s.UpdateItemStatus(context.Background(), o.OrderID, o.Items[1].ID, StatusShipped)
	require.NoError(t, err)
	assert.Equal(t, 1, d.seq.invoiceCalls)
}

func TestUpdateItemStatus_InvalidTransition(t *testing.T) {
	s, d := newTestService(t)
	o := paidOnlineOrder(t, s, d)

	_, err := s.UpdateItemStatus(context.Background(), o.OrderID, o.Items[0].ID, StatusDelivered)

	var e *InvalidTransitionError
	require.ErrorAs(t, err, &e)
	assert.Equal(t, StatusPending, e.From)
}

func TestUpdateItemStatus_AllDeliveredRollsUp(t *testing.T) {
	s, d := newTestService(t)
	o := paidOnlineOrder(t, s, d)
	for i := range o.Items {
		o.Items[i].Status = StatusOutForDelivery
	}
	o.Items[0].Status = StatusDelivered
	now := testNow
	o.Items[0].DeliveredOn = &now

	got, err := s.UpdateItemStatus(context.Background(), o.OrderID, o.Items[1].ID, StatusDelivered)
	require.NoError(t, err)

	assert.Equal(t, StatusDelivered, got.Status)
	require.NotNil(t, got.DeliveredOn)
}

// --- Cancellation ---

func TestCancelItem_PrepaidRefundsToWallet(t *testing.T) {
	s, d := newTestService(t)
	d.coupons.coupons = []coupon.Coupon{tenPercent("500")}

	o, err := s.PlaceOrder(context.Background(), PlaceOrderRequest{
		UserID:             "u1",
		PaymentMethod:      OnlinePayment,
		Lines:              []CartLine{{ProductID: "tshirt", Quantity: 1}, {ProductID: "hoodie", Quantity: 1}},
		CartCouponCodes:    []string{"TEN"},
		ClaimedCouponCodes: []string{"TEN"},
	})
	require.NoError(t, err)
	o.PaymentStatus = PaymentPaid
	d.orders.stored = o

	got, err := s.CancelItem(context.Background(), o.OrderID, "u1", o.Items[0].ID, "changed my mind")
	require.NoError(t, err)

	require.Equal(t, 1, d.refunds.calls)
	require.NotNil(t, d.refunds.credit)
	assert.True(t, d.refunds.credit.Amount.Equal(dec("450")), "got %s", d.refunds.credit.Amount)
	assert.Equal(t, []catalog.StockDelta{{ProductID: "tshirt", Delta: 1}}, d.refunds.restock)

	it := got.FindItem(o.Items[0].ID)
	assert.Equal(t, StatusCancelled, it.Status)
	assert.Equal(t, RefundedToWallet, it.RefundStatus)
	assert.True(t, got.FinalTotalAmount.Equal(dec("630")))
	assert.True(t, got.RefundedAmount.Equal(dec("450")))
}

func TestCancelItem_CODIsBookkeepingOnly(t *testing.T) {
	s, d := newTestService(t)
	o, err := s.PlaceOrder(context.Background(), placeRequest(CashOnDelivery,
		CartLine{ProductID: "tshirt", Quantity: 1}))
	require.NoError(t, err)
	d.orders.stored = o

	got, err := s.CancelItem(context.Background(), o.OrderID, "u1", o.Items[0].ID, "n/a")
	require.NoError(t, err)

	assert.Nil(t, d.refunds.credit, "COD cancellation must not credit the wallet")
	assert.True(t, got.RefundedAmount.IsZero())
	assert.Equal(t, []catalog.StockDelta{{ProductID: "tshirt", Delta: 1}}, d.refunds.restock)
}

func TestCancelItem_UnpaidOnlineSkipsRestock(t *testing.T) {
	s, d := newTestService(t)
	o, err := s.PlaceOrder(context.Background(), placeRequest(OnlinePayment))
	require.NoError(t, err)
	d.orders.stored = o
	require.Empty(t, d.catalog.reserved)

	got, err := s.CancelItem(context.Background(), o.OrderID, "u1", o.Items[0].ID, "abandoned checkout")
	require.NoError(t, err)

	// Payment never settled, so no stock was reserved and none may return.
	assert.Empty(t, d.refunds.restock)
	assert.Nil(t, d.refunds.credit)
	assert.True(t, got.RefundedAmount.IsZero())
}

func TestCancelItem_NonPendingRejected(t *testing.T) {
	s, d := newTestService(t)
	o := paidOnlineOrder(t, s, d)
	o.Items[0].Status = StatusShipped

	_, err := s.CancelItem(context.Background(), o.OrderID, "u1", o.Items[0].ID, "late")

	var e *InvalidTransitionError
	assert.ErrorAs(t, err, &e)
	assert.Equal(t, 0, d.refunds.calls)
}

func TestCancelOrder_RejectedAfterShipping(t *testing.T) {
	s, d := newTestService(t)
	o := paidOnlineOrder(t, s, d)
	o.Items[1].Status = StatusShipped

	_, err := s.CancelOrder(context.Background(), o.OrderID, "u1", "too slow")
	assert.ErrorIs(t, err, ErrCancelNotAllowed)
}

func TestCancelOrder_PrepaidFullRefund(t *testing.T) {
	s, d := newTestService(t)
	o := paidOnlineOrder(t, s, d)

	got, err := s.CancelOrder(context.Background(), o.OrderID, "u1", "changed plans")
	require.NoError(t, err)

	require.NotNil(t, d.refunds.credit)
	assert.True(t, d.refunds.credit.Amount.Equal(dec("1200")))
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Equal(t, RefundRefunded, got.RefundStatus)
	assert.True(t, got.FinalTotalAmount.IsZero())
	assert.True(t, got.RefundedAmount.Equal(got.TotalAmount))
	assert.Len(t, d.refunds.restock, 2)
}

func TestCancelOrder_UnpaidOnlineSkipsRestock(t *testing.T) {
	s, d := newTestService(t)
	o, err := s.PlaceOrder(context.Background(), placeRequest(OnlinePayment))
	require.NoError(t, err)
	d.orders.stored = o

	got, err := s.CancelOrder(context.Background(), o.OrderID, "u1", "never paid")
	require.NoError(t, err)

	assert.Empty(t, d.refunds.restock)
	assert.Nil(t, d.refunds.credit)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.True(t, got.RefundedAmount.IsZero())
}

// --- Returns ---

func deliveredOrder(t *testing.T, s *Service, d *deps) *Order {
	t.Helper()
	o := paidOnlineOrder(t, s, d)
	now := testNow
	for i := range o.Items {
		o.Items[i].Status = StatusDelivered
		o.Items[i].DeliveredOn = &now
	}
	o.Status = StatusDelivered
	return o
}

func TestRequestReturn_OnlyDeliveredItems(t *testing.T) {
	s, d := newTestService(t)
	o := paidOnlineOrder(t, s, d)

	_, err := s.RequestReturn(context.Background(), o.OrderID, "u1", o.Items[0].ID, "wrong size")
	assert.ErrorIs(t, err, ErrNotReturnable)
}

func TestReturnFlow_RequestApproveRefund(t *testing.T) {
	s, d := newTestService(t)
	o := deliveredOrder(t, s, d)
	itemID := o.Items[0].ID

	_, err := s.RequestReturn(context.Background(), o.OrderID, "u1", itemID, "wrong size")
	require.NoError(t, err)
	assert.Equal(t, ReturnRequested, o.FindItem(itemID).ReturnStatus)

	_, err = s.ResolveReturn(context.Background(), o.OrderID, itemID, true, "")
	require.NoError(t, err)
	assert.Equal(t, ReturnApproved, o.FindItem(itemID).ReturnStatus)

	got, err := s.RefundReturn(context.Background(), o.OrderID, itemID)
	require.NoError(t, err)

	it := got.FindItem(itemID)
	assert.Equal(t, ReturnRefunded, it.ReturnStatus)
	assert.Equal(t, RefundedToWallet, it.RefundStatus)

	require.Equal(t, 1, d.refunds.calls)
	require.NotNil(t, d.refunds.credit)
	assert.True(t, d.refunds.credit.Amount.Equal(dec("500")))
	assert.Contains(t, d.refunds.credit.Description, "Classic T-Shirt")

	// Stock back exactly once.
	assert.Equal(t, []catalog.StockDelta{{ProductID: "tshirt", Delta: 1}}, d.refunds.restock)
}

func TestRefundReturn_RequiresApproval(t *testing.T) {
	s, d := newTestService(t)
	o := deliveredOrder(t, s, d)
	itemID := o.Items[0].ID

	_, err := s.RequestReturn(context.Background(), o.OrderID, "u1", itemID, "wrong size")
	require.NoError(t, err)

	_, err = s.RefundReturn(context.Background(), o.OrderID, itemID)
	assert.ErrorIs(t, err, ErrReturnNotApproved)
	assert.Equal(t, 0, d.refunds.calls)
}

func TestResolveReturn_RejectRecordsReason(t *testing.T) {
	s, d := newTestService(t)
	o := deliveredOrder(t, s, d)
	itemID := o.Items[0].ID

	_, err := s.RequestReturn(context.Background(), o.OrderID, "u1", itemID, "wrong size")
	require.NoError(t, err)

	got, err := s.ResolveReturn(context.Background(), o.OrderID, itemID, false, "worn item")
	require.NoError(t, err)

	it := got.FindItem(itemID)
	assert.Equal(t, ReturnRejected, it.ReturnStatus)
	assert.Equal(t, "worn item", it.RejectionReason)
}

func TestRefundReturn_DoubleRefundRejected(t *testing.T) {
	s, d := newTestService(t)
	o := deliveredOrder(t, s, d)
	itemID := o.Items[0].ID

	_, err := s.RequestReturn(context.Background(), o.OrderID, "u1", itemID, "wrong size")
	require.NoError(t, err)
	_, err = s.ResolveReturn(context.Background(), o.OrderID, itemID, true, "")
	require.NoError(t, err)
	_, err = s.RefundReturn(context.Background(), o.OrderID, itemID)
	require.NoError(t, err)

	_, err = s.RefundReturn(context.Background(), o.OrderID, itemID)
	assert.ErrorIs(t, err, ErrAlreadyRefunded)
	assert.Equal(t, 1, d.refunds.calls)
}
