package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teespace/storefront/internal/domain/catalog"
	"github.com/teespace/storefront/internal/domain/order"
	"github.com/teespace/storefront/internal/domain/wallet"
)

const (
	createOrderSQL = `INSERT INTO orders (
		order_id, user_id, shipping_address, payment_method, payment_status,
		gateway_order_id, gateway_payment_id, items, applied_coupons,
		order_status, refund_status,
		total_mrp, total_offer_discount, total_coupon_discount, total_price, total_amount,
		final_total_offer_discount, final_total_coupon_discount, final_total_price, final_total_amount,
		refunded_amount, invoice_number, invoice_date, invoice_generated,
		delivered_on, version, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		$12, $13, $14, $15, $16, $17, $18, $19, $20,
		$21, $22, $23, $24, $25, $26, $27, $28
	)`

	getOrderSQL = `SELECT order_id, user_id, shipping_address, payment_method, payment_status,
		gateway_order_id, gateway_payment_id, items, applied_coupons,
		order_status, refund_status,
		total_mrp, total_offer_discount, total_coupon_discount, total_price, total_amount,
		final_total_offer_discount, final_total_coupon_discount, final_total_price, final_total_amount,
		refunded_amount, invoice_number, invoice_date, invoice_generated,
		delivered_on, version, created_at, updated_at
		FROM orders WHERE order_id = $1`

	// The version predicate makes every save a compare-and-swap.
	saveOrderSQL = `UPDATE orders SET
		payment_status = $2, gateway_order_id = $3, gateway_payment_id = $4,
		items = $5, order_status = $6, refund_status = $7,
		final_total_offer_discount = $8, final_total_coupon_discount = $9,
		final_total_price = $10, final_total_amount = $11,
		refunded_amount = $12, invoice_number = $13, invoice_date = $14,
		invoice_generated = $15, delivered_on = $16,
		version = version + 1, updated_at = $17
		WHERE order_id = $1 AND version = $18`

	salesSummarySQL = `SELECT
		COUNT(*),
		COALESCE(SUM(jsonb_array_length(items)), 0),
		COALESCE(SUM(final_total_price), 0),
		COALESCE(SUM(final_total_offer_discount), 0),
		COALESCE(SUM(final_total_coupon_discount), 0),
		COALESCE(SUM(final_total_amount), 0),
		COALESCE(SUM(refunded_amount), 0)
		FROM orders
		WHERE created_at >= $1 AND created_at <= $2
		AND payment_status <> 'Failed'`

	creditWalletSQL = `INSERT INTO wallets (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance`

	insertWalletTxSQL = `INSERT INTO wallet_transactions (id, user_id, amount, kind, description)
		VALUES ($1, $2, $3, $4, $5)`

	restoreStockSQL = `UPDATE products SET quantity = quantity + $2 WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)
var _ order.RefundStore = (*OrderRepository)(nil)

// OrderRepository implements order.Repository and order.RefundStore backed
// by PostgreSQL. Items and coupon snapshots live in JSONB columns; the
// queried money totals are denormalized into NUMERIC columns.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a freshly built order.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	addr, items, coupons, err := marshalOrderDocs(o)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.OrderID, o.UserID, addr, o.PaymentMethod, o.PaymentStatus,
		o.GatewayOrderID, o.GatewayPaymentID, items, coupons,
		o.Status, o.RefundStatus,
		o.TotalMRP, o.TotalOfferDiscount, o.TotalCouponDiscount, o.TotalPrice, o.TotalAmount,
		o.FinalTotalOfferDiscount, o.FinalTotalCouponDiscount, o.FinalTotalPrice, o.FinalTotalAmount,
		o.RefundedAmount, o.Invoice.Number, nullableTime(o.Invoice.Date), o.Invoice.Generated,
		o.DeliveredOn, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.OrderID, err)
	}
	return nil
}

// GetByOrderID loads an order by its business identifier.
func (r *OrderRepository) GetByOrderID(ctx context.Context, orderID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", orderID, err)
	}
	return &o, nil
}

// Save writes the mutable order state with a compare-and-swap on version.
// Returns order.ErrVersionConflict when the row changed since it was read.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		return saveOrder(ctx, tx, o)
	})
}

// ApplyRefund persists a reconciliation outcome atomically: the CAS order
// save, the optional wallet credit with its ledger entry, and the stock
// restoration all commit or roll back together.
func (r *OrderRepository) ApplyRefund(ctx context.Context, o *order.Order, credit *wallet.Entry, restock []catalog.StockDelta) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := saveOrder(ctx, tx, o); err != nil {
			return err
		}

		if credit != nil {
			_, err := tx.Exec(ctx, creditWalletSQL, credit.UserID, credit.Amount)
			if err != nil {
				return fmt.Errorf("crediting wallet for %q: %w", credit.UserID, err)
			}
			_, err = tx.Exec(ctx, insertWalletTxSQL,
				uuid.New().String(), credit.UserID, credit.Amount, credit.Kind, credit.Description,
			)
			if err != nil {
				return fmt.Errorf("recording wallet transaction: %w", err)
			}
		}

		for _, d := range restock {
			if _, err := tx.Exec(ctx, restoreStockSQL, d.ProductID, d.Delta); err != nil {
				return fmt.Errorf("restoring stock for %q: %w", d.ProductID, err)
			}
		}
		return nil
	})
}

// SalesSummary aggregates sales over [from, to], excluding failed payments.
func (r *OrderRepository) SalesSummary(ctx context.Context, from, to time.Time) (order.SalesReport, error) {
	var rep order.SalesReport
	err := r.pool.QueryRow(ctx, salesSummarySQL, from, to).Scan(
		&rep.Orders, &rep.ItemsSold, &rep.GrossSales,
		&rep.OfferDiscount, &rep.CouponDiscount, &rep.NetSales, &rep.Refunded,
	)
	if err != nil {
		return order.SalesReport{}, fmt.Errorf("summarizing sales: %w", err)
	}
	return rep, nil
}

func saveOrder(ctx context.Context, tx pgx.Tx, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	tag, err := tx.Exec(ctx, saveOrderSQL,
		o.OrderID,
		o.PaymentStatus, o.GatewayOrderID, o.GatewayPaymentID,
		items, o.Status, o.RefundStatus,
		o.FinalTotalOfferDiscount, o.FinalTotalCouponDiscount,
		o.FinalTotalPrice, o.FinalTotalAmount,
		o.RefundedAmount, o.Invoice.Number, nullableTime(o.Invoice.Date),
		o.Invoice.Generated, o.DeliveredOn,
		o.UpdatedAt, o.Version,
	)
	if err != nil {
		return fmt.Errorf("saving order %q: %w", o.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrVersionConflict
	}
	o.Version++
	return nil
}

func marshalOrderDocs(o *order.Order) (addr, items, coupons []byte, err error) {
	if addr, err = json.Marshal(o.ShippingAddress); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling shipping address: %w", err)
	}
	if items, err = json.Marshal(o.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling order items: %w", err)
	}
	if coupons, err = json.Marshal(o.AppliedCoupons); err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling applied coupons: %w", err)
	}
	return addr, items, coupons, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		addr        []byte
		items       []byte
		coupons     []byte
		invoiceDate *time.Time
	)
	err := row.Scan(
		&o.OrderID, &o.UserID, &addr, &o.PaymentMethod, &o.PaymentStatus,
		&o.GatewayOrderID, &o.GatewayPaymentID, &items, &coupons,
		&o.Status, &o.RefundStatus,
		&o.TotalMRP, &o.TotalOfferDiscount, &o.TotalCouponDiscount, &o.TotalPrice, &o.TotalAmount,
		&o.FinalTotalOfferDiscount, &o.FinalTotalCouponDiscount, &o.FinalTotalPrice, &o.FinalTotalAmount,
		&o.RefundedAmount, &o.Invoice.Number, &invoiceDate, &o.Invoice.Generated,
		&o.DeliveredOn, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	if invoiceDate != nil {
		o.Invoice.Date = *invoiceDate
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(coupons, &o.AppliedCoupons); err != nil {
		return o, fmt.Errorf("unmarshaling applied coupons: %w", err)
	}
	return o, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
