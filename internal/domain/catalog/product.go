package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// InsufficientStockError indicates a stock reservation failed because the
// available quantity of a product is below the requested amount.
type InsufficientStockError struct {
	ProductID string
}

func (e *InsufficientStockError) Error() string {
	return "insufficient stock for product " + e.ProductID
}

// Product is a point-in-time snapshot of a catalog item. Order construction
// copies the fields it needs so later catalog edits never alter history.
type Product struct {
	ID           string
	Name         string
	ImageURL     string
	CategoryID   string
	RegularPrice decimal.Decimal
	SalePrice    decimal.Decimal
	Quantity     int
	Blocked      bool
}

// StockDelta adjusts a product's available quantity. Positive deltas restore
// stock for cancelled or returned items, negative deltas reserve it.
type StockDelta struct {
	ProductID string
	Delta     int
}

// Repository reads product snapshots and adjusts stock.
type Repository interface {
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)

	// ReserveStock decrements the available quantity of every line inside a
	// single transaction. If any line's available quantity is insufficient
	// the whole reservation aborts with *InsufficientStockError.
	ReserveStock(ctx context.Context, deltas []StockDelta) error
}
