package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/teespace/storefront/internal/domain/coupon"
)

// ItemFinal is the recomputed current price view of one kept item.
type ItemFinal struct {
	ItemID         string
	CouponDiscount decimal.Decimal
	PaidAmount     decimal.Decimal
}

// FinalTotals are the recomputed order-level current totals over kept items.
type FinalTotals struct {
	OfferDiscount  decimal.Decimal
	CouponDiscount decimal.Decimal
	Price          decimal.Decimal
	Amount         decimal.Decimal
}

// Reconciliation is the pure outcome of removing one item from an order's
// kept set. It is computed without I/O and applied in a single transactional
// write, so a partial update can never break the refunded-amount invariant.
type Reconciliation struct {
	// Finals holds the recomputed price view for every kept item.
	Finals []ItemFinal
	Totals FinalTotals

	// Refund is the wallet credit owed for the removed item:
	// TotalAmount - (new kept total + RefundedAmount). Sequential partial
	// cancellations each refund only the delta, never double-refunding.
	Refund decimal.Decimal

	// CouponsApplicable is false when the shrunk basket no longer meets any
	// applied coupon's thresholds, collapsing every kept discount to zero.
	CouponsApplicable bool
}

// Reconcile computes the effect of removing the item with removeItemID from
// the order's kept set. The same allocation algorithm that priced the order
// at checkout is re-run over the remaining kept items, against the coupon
// snapshots captured at purchase.
//
// It returns ErrItemNotFound for an unknown item and ErrAlreadyRefunded when
// the item has already been refunded to the wallet.
func Reconcile(o *Order, removeItemID string) (Reconciliation, error) {
	removed := o.FindItem(removeItemID)
	if removed == nil {
		return Reconciliation{}, ErrItemNotFound
	}
	if removed.RefundStatus == RefundedToWallet {
		return Reconciliation{}, ErrAlreadyRefunded
	}

	kept := o.KeptItems(removeItemID)

	// Without coupons the refund is simply the removed item's own price and
	// the kept items' views are untouched.
	if len(o.AppliedCoupons) == 0 {
		rec := Reconciliation{Refund: removed.Price}
		for _, it := range kept {
			rec.Finals = append(rec.Finals, ItemFinal{
				ItemID:         it.ID,
				CouponDiscount: decimal.Zero,
				PaidAmount:     it.TotalSalePrice,
			})
			rec.Totals.OfferDiscount = rec.Totals.OfferDiscount.Add(it.OfferDiscount)
			rec.Totals.Price = rec.Totals.Price.Add(it.TotalSalePrice)
		}
		rec.Totals.Amount = rec.Totals.Price
		return rec, nil
	}

	keptTotal := decimal.Zero
	couponItems := make([]coupon.Item, len(kept))
	for i, it := range kept {
		couponItems[i] = it.CouponItem()
		keptTotal = keptTotal.Add(it.TotalSalePrice)
	}

	applicable := coupon.Applicable(o.AppliedCoupons, couponItems, keptTotal)

	rec := Reconciliation{CouponsApplicable: len(applicable) > 0}

	if len(applicable) > 0 {
		allocation := coupon.Allocate(couponItems, coupon.Rules(applicable), keptTotal)
		for i, it := range kept {
			rec.Finals = append(rec.Finals, ItemFinal{
				ItemID:         it.ID,
				CouponDiscount: allocation[i].Discount,
				PaidAmount:     allocation[i].Paid,
			})
			rec.Totals.OfferDiscount = rec.Totals.OfferDiscount.Add(it.OfferDiscount)
			rec.Totals.CouponDiscount = rec.Totals.CouponDiscount.Add(allocation[i].Discount)
			rec.Totals.Price = rec.Totals.Price.Add(it.TotalSalePrice)
			rec.Totals.Amount = rec.Totals.Amount.Add(allocation[i].Paid)
		}
	} else {
		// The shrunk basket is below every coupon's threshold: the
		// originally-stacked discounts no longer apply, so kept items revert
		// to their plain sale price.
		for _, it := range kept {
			rec.Finals = append(rec.Finals, ItemFinal{
				ItemID:         it.ID,
				CouponDiscount: decimal.Zero,
				PaidAmount:     it.TotalSalePrice,
			})
			rec.Totals.OfferDiscount = rec.Totals.OfferDiscount.Add(it.OfferDiscount)
			rec.Totals.Price = rec.Totals.Price.Add(it.TotalSalePrice)
		}
		rec.Totals.Amount = rec.Totals.Price
	}

	// Original charge, minus what is still fairly owed for kept items, minus
	// what has already been refunded.
	refund := o.TotalAmount.Sub(rec.Totals.Amount).Sub(o.RefundedAmount)
	if refund.IsNegative() {
		refund = decimal.Zero
	}
	rec.Refund = refund.Round(2)

	return rec, nil
}

// applyReconciliation writes a reconciliation outcome into the order:
// kept-item final fields, order-level final totals, the removed item's
// refund markers when a wallet credit was issued, and the refund roll-up.
func (o *Order) applyReconciliation(rec Reconciliation, removedID string, refunded bool, now time.Time) {
	for _, f := range rec.Finals {
		if it := o.FindItem(f.ItemID); it != nil {
			it.FinalCouponDiscount = f.CouponDiscount
			it.FinalPaidAmount = f.PaidAmount
		}
	}

	o.FinalTotalOfferDiscount = rec.Totals.OfferDiscount
	o.FinalTotalCouponDiscount = rec.Totals.CouponDiscount
	o.FinalTotalPrice = rec.Totals.Price
	o.FinalTotalAmount = rec.Totals.Amount

	if refunded {
		if it := o.FindItem(removedID); it != nil {
			it.RefundStatus = RefundedToWallet
			t := now
			it.RefundedOn = &t
		}
		o.RefundedAmount = o.RefundedAmount.Add(rec.Refund)
	}

	o.rollUpRefundStatus()
	o.UpdatedAt = now
}
