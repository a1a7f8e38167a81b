package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/teespace/storefront/internal/domain/coupon"
)

// PaymentMethod is how the shopper pays for an order.
type PaymentMethod string

const (
	CashOnDelivery PaymentMethod = "Cash on Delivery"
	OnlinePayment  PaymentMethod = "Online Payment"
	WalletPayment  PaymentMethod = "Wallet"
)

// Prepaid reports whether the method charges the shopper before fulfillment.
func (m PaymentMethod) Prepaid() bool {
	return m == OnlinePayment || m == WalletPayment
}

// PaymentStatus tracks the payment lifecycle of an order.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentFailed  PaymentStatus = "Failed"
)

// Status is a delivery state, used both per item and for the derived
// order-level status.
type Status string

const (
	StatusPending        Status = "Pending"
	StatusShipped        Status = "Shipped"
	StatusOutForDelivery Status = "Out for Delivery"
	StatusDelivered      Status = "Delivered"
	StatusCancelled      Status = "Cancelled"
	StatusPaymentFailed  Status = "Payment Failed"
)

// ReturnStatus tracks the return sub-flow of a delivered item.
type ReturnStatus string

const (
	ReturnNone      ReturnStatus = ""
	ReturnRequested ReturnStatus = "Requested"
	ReturnApproved  ReturnStatus = "Approved"
	ReturnRejected  ReturnStatus = "Rejected"
	ReturnRefunded  ReturnStatus = "Refunded"
)

// RefundStatus tracks wallet refunds, per item and rolled up per order.
type RefundStatus string

const (
	RefundNone              RefundStatus = ""
	RefundedToWallet        RefundStatus = "Refunded to your wallet"
	RefundPartiallyRefunded RefundStatus = "Partially Refunded"
	RefundRefunded          RefundStatus = "Refunded"
)

// Address is the delivery address snapshot copied onto the order so later
// address-book edits do not affect historical orders.
type Address struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone"`
}

// Item is one product line of an order. Lines are never removed;
// cancellation and return are status transitions, keeping history auditable.
//
// Each line carries two price views: the as-placed fields (CouponDiscount,
// Price) fixed at checkout, and the current fields (FinalCouponDiscount,
// FinalPaidAmount) rewritten by every reconciliation pass. After any pass
// FinalPaidAmount = TotalSalePrice - FinalCouponDiscount holds for kept items.
type Item struct {
	ID           string `json:"id"`
	ProductID    string `json:"productId"`
	CategoryID   string `json:"categoryId"`
	ProductName  string `json:"productName"`
	ProductImage string `json:"productImage"`
	Quantity     int    `json:"quantity"`

	MRP            decimal.Decimal `json:"mrp"`
	TotalMRP       decimal.Decimal `json:"totalMrp"`
	OfferDiscount  decimal.Decimal `json:"offerDiscount"`
	SalePrice      decimal.Decimal `json:"salePrice"`
	TotalSalePrice decimal.Decimal `json:"totalSalePrice"`
	CouponDiscount decimal.Decimal `json:"couponDiscount"`
	Price          decimal.Decimal `json:"price"`

	FinalPaidAmount     decimal.Decimal `json:"finalPaidAmount"`
	FinalCouponDiscount decimal.Decimal `json:"finalCouponDiscount"`

	Status       Status     `json:"itemStatus"`
	CancelReason string     `json:"cancelReason,omitempty"`
	DeliveredOn  *time.Time `json:"deliveredOn,omitempty"`

	ReturnReason      string       `json:"returnReason,omitempty"`
	ReturnStatus      ReturnStatus `json:"returnStatus,omitempty"`
	RejectionReason   string       `json:"rejectionReason,omitempty"`
	ReturnRequestedAt *time.Time   `json:"returnRequestedAt,omitempty"`
	ReturnResolvedAt  *time.Time   `json:"returnResolvedAt,omitempty"`

	RefundStatus RefundStatus `json:"refundStatus,omitempty"`
	RefundedOn   *time.Time   `json:"refundedOn,omitempty"`
}

// CouponItem converts the line for coupon allocation.
func (i *Item) CouponItem() coupon.Item {
	return coupon.Item{
		ProductID:  i.ProductID,
		CategoryID: i.CategoryID,
		Quantity:   i.Quantity,
		SalePrice:  i.SalePrice,
	}
}

// Invoice is generated once, on the first transition of any item into
// Shipped or Delivered, and never regenerated.
type Invoice struct {
	Number    string    `json:"number,omitempty"`
	Date      time.Time `json:"date,omitzero"`
	Generated bool      `json:"generated"`
}

// Order is one checkout attempt. A payment retry creates a new Order; an
// existing Order is mutated through fulfillment and returns but never
// deleted.
type Order struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`

	ShippingAddress Address       `json:"shippingAddress"`
	PaymentMethod   PaymentMethod `json:"paymentMethod"`
	PaymentStatus   PaymentStatus `json:"paymentStatus"`

	GatewayOrderID   string `json:"gatewayOrderId,omitempty"`
	GatewayPaymentID string `json:"gatewayPaymentId,omitempty"`

	Items          []Item           `json:"items"`
	AppliedCoupons []coupon.Applied `json:"appliedCoupons,omitempty"`

	Status       Status       `json:"orderStatus"`
	RefundStatus RefundStatus `json:"refundStatus,omitempty"`

	// As-placed totals: fixed at checkout, the historical record of what
	// was charged.
	TotalMRP            decimal.Decimal `json:"totalMrp"`
	TotalOfferDiscount  decimal.Decimal `json:"totalOfferDiscount"`
	TotalCouponDiscount decimal.Decimal `json:"totalCouponDiscount"`
	TotalPrice          decimal.Decimal `json:"totalPrice"`
	TotalAmount         decimal.Decimal `json:"totalAmount"`

	// Current totals: rewritten on every cancellation/return to reflect
	// kept items only.
	FinalTotalOfferDiscount  decimal.Decimal `json:"finalTotalOfferDiscount"`
	FinalTotalCouponDiscount decimal.Decimal `json:"finalTotalCouponDiscount"`
	FinalTotalPrice          decimal.Decimal `json:"finalTotalPrice"`
	FinalTotalAmount         decimal.Decimal `json:"finalTotalAmount"`

	// RefundedAmount is the monotonically increasing total of wallet
	// credits issued for this order. TotalAmount - RefundedAmount is the
	// amount still owed for kept items.
	RefundedAmount decimal.Decimal `json:"refundedAmount"`

	Invoice     Invoice    `json:"invoice,omitzero"`
	DeliveredOn *time.Time `json:"deliveredOn,omitempty"`

	// Version is the optimistic concurrency token; every save is a
	// compare-and-swap against it.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FindItem returns the line with the given id, or nil.
func (o *Order) FindItem(itemID string) *Item {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

// keptAfter reports whether the line remains in the kept set once the item
// with removeID is taken out: not the removed line, not already refunded to
// the wallet, and not already cancelled or payment-failed.
func (i *Item) keptAfter(removeID string) bool {
	if i.ID == removeID {
		return false
	}
	if i.RefundStatus == RefundedToWallet {
		return false
	}
	return i.Status != StatusCancelled && i.Status != StatusPaymentFailed
}

// KeptItems returns the lines still kept once removeID is taken out.
// Pass an empty removeID to get the currently kept set.
func (o *Order) KeptItems(removeID string) []*Item {
	kept := make([]*Item, 0, len(o.Items))
	for i := range o.Items {
		if o.Items[i].keptAfter(removeID) {
			kept = append(kept, &o.Items[i])
		}
	}
	return kept
}

// stockHeld reports whether inventory is reserved for this order. Online
// orders hold stock only once payment settles; everything else reserves at
// placement.
func (o *Order) stockHeld() bool {
	return o.PaymentMethod != OnlinePayment || o.PaymentStatus == PaymentPaid
}

// rollUpRefundStatus derives the order-level refund summary from the items.
func (o *Order) rollUpRefundStatus() {
	all, some := true, false
	for i := range o.Items {
		if o.Items[i].RefundStatus == RefundedToWallet {
			some = true
		} else {
			all = false
		}
	}
	switch {
	case all && len(o.Items) > 0:
		o.RefundStatus = RefundRefunded
	case some:
		o.RefundStatus = RefundPartiallyRefunded
	}
}
