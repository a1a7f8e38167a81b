package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teespace/storefront/internal/domain/coupon"
)

const (
	findValidCouponsSQL = `SELECT id, code, discount_type, discount_value, min_purchase, max_discount,
		category_based, applicable_categories, excluded_categories,
		start_date, expiry_date, active, COALESCE(referral_user_id, ''), consumed
		FROM coupons
		WHERE UPPER(code) = ANY($1) AND active = TRUE AND consumed = FALSE
		AND start_date <= $2 AND expiry_date > $2`

	consumeCouponsSQL = `UPDATE coupons SET consumed = TRUE WHERE UPPER(code) = ANY($1)`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindValid returns the coupons among codes that are active, unconsumed, and
// inside their validity window at now. Lookup is case-insensitive.
func (r *CouponRepository) FindValid(ctx context.Context, codes []string, now time.Time) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findValidCouponsSQL, upperAll(codes), now)
	if err != nil {
		return nil, fmt.Errorf("finding valid coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// Consume marks single-use coupons as spent.
func (r *CouponRepository) Consume(ctx context.Context, codes []string) error {
	_, err := r.pool.Exec(ctx, consumeCouponsSQL, upperAll(codes))
	if err != nil {
		return fmt.Errorf("consuming coupons: %w", err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.DiscountType, &c.Value, &c.MinPurchase, &c.MaxDiscount,
		&c.CategoryBased, &c.ApplicableCategories, &c.ExcludedCategories,
		&c.StartDate, &c.ExpiryDate, &c.Active, &c.ReferralUserID, &c.Consumed,
	)
	return c, err
}

func upperAll(codes []string) []string {
	out := make([]string, len(codes))
	for i, code := range codes {
		out[i] = strings.ToUpper(code)
	}
	return out
}
