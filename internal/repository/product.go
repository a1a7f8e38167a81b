package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teespace/storefront/internal/domain/catalog"
)

const (
	getProductsByIDsSQL = `SELECT id, name, image_url, category_id, regular_price, sale_price, quantity, blocked
		FROM products WHERE id = ANY($1)`

	reserveStockSQL = `UPDATE products SET quantity = quantity + $2
		WHERE id = $1 AND quantity + $2 >= 0`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByIDs returns product snapshots matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// ReserveStock decrements quantities inside one transaction. The conditional
// UPDATE touches no row when availability is short, which aborts the whole
// reservation with *catalog.InsufficientStockError.
func (r *ProductRepository) ReserveStock(ctx context.Context, deltas []catalog.StockDelta) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, d := range deltas {
			tag, err := tx.Exec(ctx, reserveStockSQL, d.ProductID, d.Delta)
			if err != nil {
				return fmt.Errorf("reserving stock for %q: %w", d.ProductID, err)
			}
			if tag.RowsAffected() == 0 {
				return &catalog.InsufficientStockError{ProductID: d.ProductID}
			}
		}
		return nil
	})
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.ImageURL, &p.CategoryID,
		&p.RegularPrice, &p.SalePrice, &p.Quantity, &p.Blocked,
	)
	return p, err
}
