package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/teespace/storefront/internal/domain/catalog"
	"github.com/teespace/storefront/internal/domain/coupon"
)

// BasketLine pairs a validated product snapshot with the purchased quantity.
type BasketLine struct {
	Product  catalog.Product
	Quantity int
}

// BuildInput carries everything needed to materialize an order. Lines must
// already be validated against the catalog; Coupons must already have passed
// eligibility.
type BuildInput struct {
	OrderID       string
	UserID        string
	Address       Address
	PaymentMethod PaymentMethod
	Lines         []BasketLine
	Coupons       []coupon.Coupon
	Now           time.Time
}

// Build turns a validated basket and its coupon set into an immutable order
// snapshot: product name, image, and category are copied at this moment so
// later catalog changes never alter historical orders. The as-placed and
// current (final) price fields are produced identically; they diverge only
// after reconciliation events.
func Build(in BuildInput) *Order {
	basketTotal := decimal.Zero
	couponItems := make([]coupon.Item, len(in.Lines))
	for i, line := range in.Lines {
		couponItems[i] = coupon.Item{
			ProductID:  line.Product.ID,
			CategoryID: line.Product.CategoryID,
			Quantity:   line.Quantity,
			SalePrice:  line.Product.SalePrice,
		}
		basketTotal = basketTotal.Add(couponItems[i].LineTotal())
	}

	rules := make([]coupon.Rule, len(in.Coupons))
	snapshots := make([]coupon.Applied, len(in.Coupons))
	for i := range in.Coupons {
		rules[i] = in.Coupons[i].AsRule()
		snapshots[i] = in.Coupons[i].Snapshot()
	}
	allocation := coupon.Allocate(couponItems, rules, basketTotal)

	o := &Order{
		OrderID:         in.OrderID,
		UserID:          in.UserID,
		ShippingAddress: in.Address,
		PaymentMethod:   in.PaymentMethod,
		PaymentStatus:   PaymentPending,
		Status:          StatusPending,
		AppliedCoupons:  snapshots,
		Items:           make([]Item, len(in.Lines)),
		CreatedAt:       in.Now,
		UpdatedAt:       in.Now,
		Version:         1,
	}

	totalMRP := decimal.Zero
	totalCouponDiscount := decimal.Zero
	totalAmount := decimal.Zero
	for i, line := range in.Lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		lineMRP := line.Product.RegularPrice.Mul(qty)
		lineSale := line.Product.SalePrice.Mul(qty)
		alloc := allocation[i]

		o.Items[i] = Item{
			ID:           uuid.New().String(),
			ProductID:    line.Product.ID,
			CategoryID:   line.Product.CategoryID,
			ProductName:  line.Product.Name,
			ProductImage: line.Product.ImageURL,
			Quantity:     line.Quantity,

			MRP:            line.Product.RegularPrice,
			TotalMRP:       lineMRP,
			OfferDiscount:  lineMRP.Sub(lineSale),
			SalePrice:      line.Product.SalePrice,
			TotalSalePrice: lineSale,
			CouponDiscount: alloc.Discount,
			Price:          alloc.Paid,

			FinalPaidAmount:     alloc.Paid,
			FinalCouponDiscount: alloc.Discount,

			Status: StatusPending,
		}

		totalMRP = totalMRP.Add(lineMRP)
		totalCouponDiscount = totalCouponDiscount.Add(alloc.Discount)
		totalAmount = totalAmount.Add(alloc.Paid)
	}

	o.TotalMRP = totalMRP
	o.TotalPrice = basketTotal
	o.TotalOfferDiscount = totalMRP.Sub(basketTotal)
	o.TotalCouponDiscount = totalCouponDiscount
	o.TotalAmount = totalAmount

	o.FinalTotalOfferDiscount = o.TotalOfferDiscount
	o.FinalTotalCouponDiscount = totalCouponDiscount
	o.FinalTotalPrice = basketTotal
	o.FinalTotalAmount = totalAmount

	return o
}
