package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage of each eligible item's line total.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed allocates a fixed monetary amount across eligible items,
	// weighted by each item's share of the basket total.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrInvalidCoupon is returned when a coupon is unknown, inactive,
	// consumed, or outside its validity window.
	ErrInvalidCoupon = errors.New("invalid coupon")
	// ErrBelowMinPurchase is returned when the basket total does not reach
	// the coupon's minimum purchase threshold.
	ErrBelowMinPurchase = errors.New("basket below coupon minimum purchase")
	// ErrNoApplicableItems is returned when a category-scoped coupon matches
	// no item in the basket.
	ErrNoApplicableItems = errors.New("no basket item in coupon categories")
)

// Coupon is the live, editable coupon definition.
type Coupon struct {
	ID           string
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
	MinPurchase  decimal.Decimal
	MaxDiscount  decimal.Decimal // zero means uncapped

	CategoryBased        bool
	ApplicableCategories []string
	// ExcludedCategories is carried for snapshot fidelity only; eligibility
	// and allocation filter on ApplicableCategories alone.
	ExcludedCategories   []string

	StartDate  time.Time
	ExpiryDate time.Time
	Active     bool

	// Referral coupons belong to one user and are single-use. Consumption
	// flips the flag; the row is never deleted.
	ReferralUserID string
	Consumed       bool
}

// Referral reports whether the coupon is a single-use referral coupon.
func (c *Coupon) Referral() bool {
	return c.ReferralUserID != ""
}

// Snapshot captures the discount rule as applied to an order. Stored on the
// order so later coupon edits never change historical pricing.
func (c *Coupon) Snapshot() Applied {
	return Applied{
		Code:                 c.Code,
		DiscountType:         c.DiscountType,
		Value:                c.Value,
		MinPurchase:          c.MinPurchase,
		MaxDiscount:          c.MaxDiscount,
		CategoryBased:        c.CategoryBased,
		ApplicableCategories: c.ApplicableCategories,
		ExcludedCategories:   c.ExcludedCategories,
	}
}

// Applied is the order-embedded coupon snapshot.
type Applied struct {
	Code                 string          `json:"code"`
	DiscountType         DiscountType    `json:"discountType"`
	Value                decimal.Decimal `json:"discountValue"`
	MinPurchase          decimal.Decimal `json:"minPurchase"`
	MaxDiscount          decimal.Decimal `json:"maxDiscountAmount"`
	CategoryBased        bool            `json:"isCategoryBased"`
	ApplicableCategories []string        `json:"applicableCategories,omitempty"`
	ExcludedCategories   []string        `json:"excludedCategories,omitempty"`
}

// Item is a basket line for discount calculation purposes.
type Item struct {
	ProductID  string
	CategoryID string
	Quantity   int
	SalePrice  decimal.Decimal
}

// LineTotal returns SalePrice * Quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.SalePrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Repository provides lookup and mutation of live coupons. Codes are unique
// and double as the customer-facing identifier, so lookups are code-keyed.
type Repository interface {
	// FindValid returns the coupons among codes that are active, unconsumed,
	// and inside their [start, expiry) window at now. Missing or invalid
	// coupons are simply absent from the result.
	FindValid(ctx context.Context, codes []string, now time.Time) ([]Coupon, error)

	// Consume marks single-use coupons as spent.
	Consume(ctx context.Context, codes []string) error
}
