package order

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/teespace/storefront/internal/domain/catalog"
	"github.com/teespace/storefront/internal/domain/coupon"
	"github.com/teespace/storefront/internal/domain/wallet"
)

// Repository is the order persistence contract. Save performs a
// compare-and-swap on Order.Version and returns ErrVersionConflict when the
// row changed underneath, so concurrent admin/shopper mutations cannot
// silently overwrite each other.
type Repository interface {
	GetByOrderID(ctx context.Context, orderID string) (*Order, error)
	Create(ctx context.Context, o *Order) error
	Save(ctx context.Context, o *Order) error
	SalesSummary(ctx context.Context, from, to time.Time) (SalesReport, error)
}

// SalesReport aggregates delivered revenue over a reporting window. Amounts
// use the current (final) totals so cancellations and refunds inside the
// window are already netted out.
type SalesReport struct {
	Orders         int64           `json:"orders"`
	ItemsSold      int64           `json:"itemsSold"`
	GrossSales     decimal.Decimal `json:"grossSales"`
	OfferDiscount  decimal.Decimal `json:"offerDiscount"`
	CouponDiscount decimal.Decimal `json:"couponDiscount"`
	NetSales       decimal.Decimal `json:"netSales"`
	Refunded       decimal.Decimal `json:"refunded"`
}

// RefundStore persists a reconciliation outcome atomically: the order save
// (CAS), the wallet credit, and the stock restoration commit or roll back
// together. credit may be nil (Cash on Delivery), restock may be empty
// (approved returns restock separately from cancellations).
type RefundStore interface {
	ApplyRefund(ctx context.Context, o *Order, credit *wallet.Entry, restock []catalog.StockDelta) error
}

// Sequences issues monotonic business identifiers.
type Sequences interface {
	NextOrderID(ctx context.Context) (string, error)
	NextInvoiceNumber(ctx context.Context) (string, error)
}

// Config carries the service's non-dependency settings.
type Config struct {
	// GatewaySecret is the HMAC key for payment gateway signature checks.
	GatewaySecret []byte
	// CODLimit is the maximum post-discount amount accepted for Cash on
	// Delivery orders. Zero disables the ceiling.
	CODLimit decimal.Decimal
}

// Service implements every order lifecycle operation: checkout pricing,
// payment verification, fulfillment status updates, cancellation, returns,
// and refund reconciliation.
type Service struct {
	cfg      Config
	products catalog.Repository
	coupons  coupon.Repository
	orders   Repository
	refunds  RefundStore
	wallets  wallet.Ledger
	seq      Sequences
	now      func() time.Time
}

// NewService creates a Service with the required collaborators.
func NewService(
	cfg Config,
	products catalog.Repository,
	coupons coupon.Repository,
	orders Repository,
	refunds RefundStore,
	wallets wallet.Ledger,
	seq Sequences,
) *Service {
	return &Service{
		cfg:      cfg,
		products: products,
		coupons:  coupons,
		orders:   orders,
		refunds:  refunds,
		wallets:  wallets,
		seq:      seq,
		now:      time.Now,
	}
}

// CartLine is one requested purchase line.
type CartLine struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest is the checkout input. CartCouponCodes is the coupon
// selection persisted against the shopper's cart; ClaimedCouponCodes is what
// the submit request claims. A mismatch rejects the checkout and tells the
// client to reload.
type PlaceOrderRequest struct {
	UserID             string
	Address            Address
	PaymentMethod      PaymentMethod
	Lines              []CartLine
	CartCouponCodes    []string
	ClaimedCouponCodes []string
}

// PlaceOrder validates the basket against the current catalog snapshot,
// enforces coupon eligibility wholesale, allocates discounts per item,
// materializes the order, and reserves stock. No partial order is ever
// created: every failure is a hard rejection before the first write.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	ids := make([]string, len(req.Lines))
	for i, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, &ZeroQuantityError{ProductID: line.ProductID}
		}
		ids[i] = line.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]BasketLine, len(req.Lines))
	for i, line := range req.Lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		if p.Blocked {
			return nil, &BlockedProductError{ProductID: p.ID}
		}
		if p.Quantity == 0 || line.Quantity > p.Quantity {
			return nil, &OutOfStockError{ProductID: p.ID}
		}
		lines[i] = BasketLine{Product: p, Quantity: line.Quantity}
	}

	coupons, err := s.resolveCoupons(ctx, req, lines)
	if err != nil {
		return nil, err
	}

	orderID, err := s.seq.NextOrderID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "next order id")
	}

	o := Build(BuildInput{
		OrderID:       orderID,
		UserID:        req.UserID,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		Lines:         lines,
		Coupons:       coupons,
		Now:           s.now(),
	})

	if req.PaymentMethod == CashOnDelivery &&
		s.cfg.CODLimit.IsPositive() && o.TotalAmount.GreaterThan(s.cfg.CODLimit) {
		return nil, &CODLimitError{Limit: s.cfg.CODLimit.StringFixed(0)}
	}

	// Online payments reserve stock at verification time instead, so a
	// never-paid order does not hold inventory. Every other method reserves
	// before the first write: a short reservation rejects the checkout with
	// nothing persisted.
	if req.PaymentMethod != OnlinePayment {
		if err := s.reserveStock(ctx, o); err != nil {
			return nil, err
		}
	}

	// Wallet payment charges the ledger up front; online payment settles
	// later through VerifyPayment.
	if req.PaymentMethod == WalletPayment {
		err := s.wallets.Debit(ctx, wallet.Entry{
			UserID:      req.UserID,
			Amount:      o.TotalAmount,
			Kind:        wallet.Debit,
			Description: fmt.Sprintf("Payment for order %s", o.OrderID),
		})
		if err != nil {
			s.releaseStock(ctx, o)
			return nil, errors.Wrap(err, "debit wallet")
		}
		o.PaymentStatus = PaymentPaid
	}

	if err := s.orders.Create(ctx, o); err != nil {
		if req.PaymentMethod != OnlinePayment {
			s.releaseStock(ctx, o)
		}
		if req.PaymentMethod == WalletPayment {
			// Reverse the upfront charge; the order was never persisted.
			_ = s.wallets.Credit(ctx, wallet.Entry{
				UserID:      req.UserID,
				Amount:      o.TotalAmount,
				Kind:        wallet.Credit,
				Description: fmt.Sprintf("Reversal for failed order %s", o.OrderID),
			})
		}
		return nil, errors.Wrap(err, "create order")
	}

	if req.PaymentMethod != OnlinePayment {
		if err := s.consumeReferralCoupons(ctx, coupons); err != nil {
			return nil, err
		}
	}

	return o, nil
}

func (s *Service) resolveCoupons(ctx context.Context, req PlaceOrderRequest, lines []BasketLine) ([]coupon.Coupon, error) {
	if len(req.CartCouponCodes) == 0 && len(req.ClaimedCouponCodes) == 0 {
		return nil, nil
	}
	if !sameIDSet(req.CartCouponCodes, req.ClaimedCouponCodes) {
		return nil, ErrCouponMismatch
	}

	now := s.now()
	coupons, err := s.coupons.FindValid(ctx, req.CartCouponCodes, now)
	if err != nil {
		return nil, errors.Wrap(err, "find coupons")
	}
	// The whole selection is rejected if any coupon fell out of validity.
	if len(coupons) != len(req.CartCouponCodes) {
		return nil, coupon.ErrInvalidCoupon
	}

	items := make([]coupon.Item, len(lines))
	basketTotal := decimal.Zero
	for i, line := range lines {
		items[i] = coupon.Item{
			ProductID:  line.Product.ID,
			CategoryID: line.Product.CategoryID,
			Quantity:   line.Quantity,
			SalePrice:  line.Product.SalePrice,
		}
		basketTotal = basketTotal.Add(items[i].LineTotal())
	}
	for i := range coupons {
		if err := coupon.CheckEligible(&coupons[i], items, basketTotal, now); err != nil {
			return nil, err
		}
	}
	return coupons, nil
}

func (s *Service) reserveStock(ctx context.Context, o *Order) error {
	deltas := make([]catalog.StockDelta, len(o.Items))
	for i := range o.Items {
		deltas[i] = catalog.StockDelta{ProductID: o.Items[i].ProductID, Delta: -o.Items[i].Quantity}
	}
	if err := s.products.ReserveStock(ctx, deltas); err != nil {
		return errors.Wrap(err, "reserve stock")
	}
	return nil
}

// releaseStock undoes a reservation. Positive deltas always pass the
// availability condition, so the call cannot fail the way a reservation can.
func (s *Service) releaseStock(ctx context.Context, o *Order) {
	deltas := make([]catalog.StockDelta, len(o.Items))
	for i := range o.Items {
		deltas[i] = catalog.StockDelta{ProductID: o.Items[i].ProductID, Delta: o.Items[i].Quantity}
	}
	_ = s.products.ReserveStock(ctx, deltas)
}

func (s *Service) consumeReferralCoupons(ctx context.Context, coupons []coupon.Coupon) error {
	var codes []string
	for i := range coupons {
		if coupons[i].Referral() {
			codes = append(codes, coupons[i].Code)
		}
	}
	if len(codes) == 0 {
		return nil
	}
	if err := s.coupons.Consume(ctx, codes); err != nil {
		return errors.Wrap(err, "consume referral coupons")
	}
	return nil
}

// VerifyPaymentRequest carries the gateway callback fields.
type VerifyPaymentRequest struct {
	UserID           string
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// VerifyPayment checks the gateway's HMAC-SHA256 signature, reserves stock
// inside a transaction that aborts entirely when any line is short, marks
// the order paid, and consumes referral coupons. Orders not awaiting online
// settlement are rejected, so a replayed callback cannot reserve twice.
func (s *Service) VerifyPayment(ctx context.Context, req VerifyPaymentRequest) (*Order, error) {
	o, err := s.loadUserOrder(ctx, req.OrderID, req.UserID)
	if err != nil {
		return nil, err
	}
	// Gateways retry success callbacks; only the first one may settle and
	// reserve stock.
	if o.PaymentMethod != OnlinePayment || o.PaymentStatus != PaymentPending {
		return nil, ErrPaymentNotPending
	}

	payload := req.GatewayOrderID + "|" + req.GatewayPaymentID
	if !verifySignature(s.cfg.GatewaySecret, payload, req.Signature) {
		return nil, ErrSignatureMismatch
	}

	if err := s.reserveStock(ctx, o); err != nil {
		return nil, err
	}

	o.PaymentStatus = PaymentPaid
	o.GatewayOrderID = req.GatewayOrderID
	o.GatewayPaymentID = req.GatewayPaymentID
	o.UpdatedAt = s.now()
	if err := s.orders.Save(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}

	// Referral coupons are single-use: consume them on first successful
	// payment.
	if len(o.AppliedCoupons) > 0 {
		codes := make([]string, 0, len(o.AppliedCoupons))
		for _, snap := range o.AppliedCoupons {
			codes = append(codes, snap.Code)
		}
		live, err := s.coupons.FindValid(ctx, codes, s.now())
		if err == nil {
			_ = s.consumeReferralCoupons(ctx, live)
		}
	}

	return o, nil
}

// verifySignature computes HMAC-SHA256 over payload and compares it to the
// hex-encoded signature in constant time.
func verifySignature(secret []byte, payload, signature string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// MarkPaymentFailed transitions every item to Payment Failed and the order
// to Cancelled. Only online orders still awaiting settlement qualify: for
// those nothing was charged and no stock was held, so no refund or restock
// is needed.
func (s *Service) MarkPaymentFailed(ctx context.Context, orderID, userID, reason string) (*Order, error) {
	o, err := s.loadUserOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if o.PaymentMethod != OnlinePayment || o.PaymentStatus != PaymentPending {
		return nil, ErrPaymentNotPending
	}

	for i := range o.Items {
		o.Items[i].Status = StatusPaymentFailed
		o.Items[i].CancelReason = reason
	}
	o.Status = StatusCancelled
	o.PaymentStatus = PaymentFailed
	o.UpdatedAt = s.now()

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

// UpdateItemStatus applies an admin delivery-status change to one item,
// derives the order-level status, and generates the invoice on the first
// transition of any item into Shipped or Delivered.
func (s *Service) UpdateItemStatus(ctx context.Context, orderID, itemID string, status Status) (*Order, error) {
	o, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	item := o.FindItem(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	if !CanTransition(item.Status, status) {
		return nil, &InvalidTransitionError{From: item.Status, To: status}
	}

	now := s.now()
	item.Status = status
	if status == StatusDelivered {
		t := now
		item.DeliveredOn = &t
	}

	o.applyRollUp(now)

	if !o.Invoice.Generated && (status == StatusShipped || status == StatusDelivered) {
		number, err := s.seq.NextInvoiceNumber(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "next invoice number")
		}
		o.Invoice = Invoice{Number: number, Date: now, Generated: true}
	}

	o.UpdatedAt = now
	if err := s.orders.Save(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

// CancelItem cancels a single Pending line, reconciles the remaining kept
// items, credits the wallet for prepaid orders, and restores stock. The
// order save, wallet credit, and stock restore are one transaction.
func (s *Service) CancelItem(ctx context.Context, orderID, userID, itemID, reason string) (*Order, error) {
	o, err := s.loadUserOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	item := o.FindItem(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	if item.Status != StatusPending {
		return nil, &InvalidTransitionError{From: item.Status, To: StatusCancelled}
	}

	rec, err := Reconcile(o, itemID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	item.Status = StatusCancelled
	item.CancelReason = reason

	refunded := o.PaymentMethod.Prepaid() && o.PaymentStatus == PaymentPaid
	o.applyReconciliation(rec, itemID, refunded, now)
	o.applyRollUp(now)

	var credit *wallet.Entry
	if refunded && rec.Refund.IsPositive() {
		credit = &wallet.Entry{
			UserID:      o.UserID,
			Amount:      rec.Refund,
			Kind:        wallet.Credit,
			Description: fmt.Sprintf("Refund for %s (Order %s)", item.ProductName, o.OrderID),
		}
	}
	// Online orders awaiting settlement never reserved stock, so there is
	// nothing to put back.
	var restock []catalog.StockDelta
	if o.stockHeld() {
		restock = []catalog.StockDelta{{ProductID: item.ProductID, Delta: item.Quantity}}
	}

	if err := s.refunds.ApplyRefund(ctx, o, credit, restock); err != nil {
		return nil, errors.Wrap(err, "apply refund")
	}
	return o, nil
}

// CancelOrder cancels every Pending item of the order. It is rejected
// outright when any item has already reached Shipped or Delivered. Prepaid
// orders are refunded the full remaining charge in one wallet credit.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID, reason string) (*Order, error) {
	o, err := s.loadUserOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	for i := range o.Items {
		switch o.Items[i].Status {
		case StatusShipped, StatusOutForDelivery, StatusDelivered:
			return nil, ErrCancelNotAllowed
		}
	}

	now := s.now()
	refunded := o.PaymentMethod.Prepaid() && o.PaymentStatus == PaymentPaid

	refund := decimal.Zero
	if refunded {
		refund = o.TotalAmount.Sub(o.RefundedAmount)
		if refund.IsNegative() {
			refund = decimal.Zero
		}
	}

	stockHeld := o.stockHeld()
	var restock []catalog.StockDelta
	for i := range o.Items {
		item := &o.Items[i]
		if item.Status != StatusPending {
			continue
		}
		item.Status = StatusCancelled
		item.CancelReason = reason
		if stockHeld {
			restock = append(restock, catalog.StockDelta{ProductID: item.ProductID, Delta: item.Quantity})
		}
		if refunded {
			item.RefundStatus = RefundedToWallet
			t := now
			item.RefundedOn = &t
		}
	}

	// Nothing is kept: the current totals collapse to zero.
	o.FinalTotalOfferDiscount = decimal.Zero
	o.FinalTotalCouponDiscount = decimal.Zero
	o.FinalTotalPrice = decimal.Zero
	o.FinalTotalAmount = decimal.Zero
	o.RefundedAmount = o.RefundedAmount.Add(refund)

	o.applyRollUp(now)
	o.rollUpRefundStatus()
	o.UpdatedAt = now

	var credit *wallet.Entry
	if refund.IsPositive() {
		credit = &wallet.Entry{
			UserID:      o.UserID,
			Amount:      refund,
			Kind:        wallet.Credit,
			Description: fmt.Sprintf("Refund for cancelled order %s", o.OrderID),
		}
	}

	if err := s.refunds.ApplyRefund(ctx, o, credit, restock); err != nil {
		return nil, errors.Wrap(err, "apply refund")
	}
	return o, nil
}

// RequestReturn opens a return request on a Delivered item.
func (s *Service) RequestReturn(ctx context.Context, orderID, userID, itemID, reason string) (*Order, error) {
	o, err := s.loadUserOrder(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	item := o.FindItem(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	if item.Status != StatusDelivered {
		return nil, ErrNotReturnable
	}

	now := s.now()
	item.ReturnStatus = ReturnRequested
	item.ReturnReason = reason
	item.ReturnRequestedAt = &now
	o.UpdatedAt = now

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

// ResolveReturn records the admin decision on a requested return.
func (s *Service) ResolveReturn(ctx context.Context, orderID, itemID string, approve bool, reason string) (*Order, error) {
	o, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	item := o.FindItem(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	if item.ReturnStatus != ReturnRequested {
		return nil, ErrNotReturnable
	}

	now := s.now()
	if approve {
		item.ReturnStatus = ReturnApproved
	} else {
		item.ReturnStatus = ReturnRejected
		if reason == "" {
			reason = "No reason provided"
		}
		item.RejectionReason = reason
	}
	item.ReturnResolvedAt = &now
	o.UpdatedAt = now

	if err := s.orders.Save(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

// RefundReturn executes the refund for an approved return: the returned
// quantity goes back to stock exactly once, the kept items are reconciled,
// and the wallet is credited. Delivered items were paid for under any
// payment method, so the credit is unconditional.
func (s *Service) RefundReturn(ctx context.Context, orderID, itemID string) (*Order, error) {
	o, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	item := o.FindItem(itemID)
	if item == nil {
		return nil, ErrItemNotFound
	}
	if item.RefundStatus == RefundedToWallet {
		return nil, ErrAlreadyRefunded
	}
	if item.ReturnStatus != ReturnApproved {
		return nil, ErrReturnNotApproved
	}

	rec, err := Reconcile(o, itemID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	item.ReturnStatus = ReturnRefunded
	o.applyReconciliation(rec, itemID, true, now)

	credit := &wallet.Entry{
		UserID:      o.UserID,
		Amount:      rec.Refund,
		Kind:        wallet.Credit,
		Description: fmt.Sprintf("Refund for %s (Order %s)", item.ProductName, o.OrderID),
	}
	restock := []catalog.StockDelta{{ProductID: item.ProductID, Delta: item.Quantity}}

	if err := s.refunds.ApplyRefund(ctx, o, credit, restock); err != nil {
		return nil, errors.Wrap(err, "apply refund")
	}
	return o, nil
}

// SalesSummary reports aggregate sales for the closed window [from, to].
func (s *Service) SalesSummary(ctx context.Context, from, to time.Time) (SalesReport, error) {
	report, err := s.orders.SalesSummary(ctx, from, to)
	if err != nil {
		return SalesReport{}, errors.Wrap(err, "sales summary")
	}
	return report, nil
}

// GetOrder loads an order for its owner.
func (s *Service) GetOrder(ctx context.Context, orderID, userID string) (*Order, error) {
	return s.loadUserOrder(ctx, orderID, userID)
}

func (s *Service) loadUserOrder(ctx context.Context, orderID, userID string) (*Order, error) {
	o, err := s.orders.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
