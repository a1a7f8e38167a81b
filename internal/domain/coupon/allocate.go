package coupon

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ItemDiscount is the per-item outcome of an allocation pass.
type ItemDiscount struct {
	ProductID string
	// Discount is the item's accumulated coupon discount across all coupons.
	Discount decimal.Decimal
	// Paid is the item's line total minus Discount, floored at zero.
	Paid decimal.Decimal
}

// Rule is the subset of a coupon needed for allocation. Both live Coupons
// (checkout) and Applied snapshots (reconciliation) reduce to it, so the
// checkout path and the refund path share one algorithm.
type Rule struct {
	DiscountType         DiscountType
	Value                decimal.Decimal
	MinPurchase          decimal.Decimal
	MaxDiscount          decimal.Decimal
	CategoryBased        bool
	ApplicableCategories []string
}

// AsRule converts a live coupon for allocation.
func (c *Coupon) AsRule() Rule {
	return Rule{
		DiscountType:         c.DiscountType,
		Value:                c.Value,
		MinPurchase:          c.MinPurchase,
		MaxDiscount:          c.MaxDiscount,
		CategoryBased:        c.CategoryBased,
		ApplicableCategories: c.ApplicableCategories,
	}
}

// AsRule converts an order-embedded snapshot for allocation.
func (a Applied) AsRule() Rule {
	return Rule{
		DiscountType:         a.DiscountType,
		Value:                a.Value,
		MinPurchase:          a.MinPurchase,
		MaxDiscount:          a.MaxDiscount,
		CategoryBased:        a.CategoryBased,
		ApplicableCategories: a.ApplicableCategories,
	}
}

// coversCategory reports whether the rule applies to an item in the given
// category. Non-category rules cover everything.
func (r Rule) coversCategory(categoryID string) bool {
	if !r.CategoryBased {
		return true
	}
	for _, id := range r.ApplicableCategories {
		if id == categoryID {
			return true
		}
	}
	return false
}

// Allocate computes the per-item coupon discount for every item under all
// rules simultaneously. Discounts from multiple rules covering the same item
// are additive; there is no precedence or mutual exclusivity.
//
// Percentage rules discount value% of the item's line total. Fixed rules
// allocate the fixed amount across items proportionally to each item's share
// of basketTotal, so a later single-item refund returns exactly that item's
// fair share. Each rule's contribution is capped at its MaxDiscount when set.
//
// The result keeps item order. Amounts are rounded to 2 decimal places.
func Allocate(items []Item, rules []Rule, basketTotal decimal.Decimal) []ItemDiscount {
	out := make([]ItemDiscount, len(items))
	for i, item := range items {
		lineTotal := item.LineTotal()
		discount := decimal.Zero

		for _, rule := range rules {
			if !rule.coversCategory(item.CategoryID) {
				continue
			}

			var d decimal.Decimal
			switch rule.DiscountType {
			case DiscountPercentage:
				d = lineTotal.Mul(rule.Value).Div(hundred)
			case DiscountFixed:
				if basketTotal.IsZero() {
					continue
				}
				d = lineTotal.Div(basketTotal).Mul(rule.Value)
			default:
				continue
			}

			if rule.MaxDiscount.IsPositive() && d.GreaterThan(rule.MaxDiscount) {
				d = rule.MaxDiscount
			}
			discount = discount.Add(d)
		}

		discount = discount.Round(2)
		paid := lineTotal.Sub(discount)
		if paid.IsNegative() {
			paid = decimal.Zero
		}

		out[i] = ItemDiscount{
			ProductID: item.ProductID,
			Discount:  discount,
			Paid:      paid.Round(2),
		}
	}
	return out
}

// CheckEligible validates a live coupon against the basket at checkout time.
// All conditions must hold: active, unconsumed, inside [start, expiry),
// minimum purchase met, and (for category coupons) at least one basket item
// in an applicable category.
func CheckEligible(c *Coupon, items []Item, basketTotal decimal.Decimal, now time.Time) error {
	if !c.Active || c.Consumed {
		return ErrInvalidCoupon
	}
	if now.Before(c.StartDate) || !now.Before(c.ExpiryDate) {
		return ErrInvalidCoupon
	}
	if c.MinPurchase.GreaterThan(basketTotal) {
		return ErrBelowMinPurchase
	}
	if c.CategoryBased && !anyItemCovered(c.AsRule(), items) {
		return ErrNoApplicableItems
	}
	return nil
}

// Applicable re-filters order-embedded snapshots against a shrunk kept-item
// set during refund reconciliation: the minimum purchase and category
// applicability rules are the same ones checkout uses; the time window is
// not re-checked because the coupons were already honoured at purchase.
func Applicable(snapshots []Applied, kept []Item, keptTotal decimal.Decimal) []Applied {
	out := make([]Applied, 0, len(snapshots))
	for _, s := range snapshots {
		if s.MinPurchase.GreaterThan(keptTotal) {
			continue
		}
		if s.CategoryBased && !anyItemCovered(s.AsRule(), kept) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func anyItemCovered(r Rule, items []Item) bool {
	for _, item := range items {
		if r.coversCategory(item.CategoryID) {
			return true
		}
	}
	return false
}

// Rules converts a slice of snapshots for allocation.
func Rules(snapshots []Applied) []Rule {
	rules := make([]Rule, len(snapshots))
	for i, s := range snapshots {
		rules[i] = s.AsRule()
	}
	return rules
}
