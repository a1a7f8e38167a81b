package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teespace/storefront/internal/domain/order"
)

// nextCounterSQL atomically increments a named counter and returns the new
// value. The upsert seeds missing counters at 1.
const nextCounterSQL = `INSERT INTO counters (name, value) VALUES ($1, 1)
	ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
	RETURNING value`

var _ order.Sequences = (*SequenceRepository)(nil)

// SequenceRepository issues order and invoice numbers from per-year counters
// stored in PostgreSQL.
type SequenceRepository struct {
	pool *pgxpool.Pool
	year func() int
}

// NewSequenceRepository returns a SequenceRepository that uses the given pool.
func NewSequenceRepository(pool *pgxpool.Pool, year func() int) *SequenceRepository {
	return &SequenceRepository{pool: pool, year: year}
}

// NextOrderID returns the next identifier in the form ORD<year><6-digit seq>.
func (r *SequenceRepository) NextOrderID(ctx context.Context) (string, error) {
	year := r.year()
	seq, err := r.next(ctx, fmt.Sprintf("orders:%d", year))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ORD%d%06d", year, seq), nil
}

// NextInvoiceNumber returns the next identifier in the form INV-<year>-<seq>.
func (r *SequenceRepository) NextInvoiceNumber(ctx context.Context) (string, error) {
	year := r.year()
	seq, err := r.next(ctx, fmt.Sprintf("invoices:%d", year))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%d-%d", year, seq), nil
}

func (r *SequenceRepository) next(ctx context.Context, name string) (int64, error) {
	var value int64
	if err := r.pool.QueryRow(ctx, nextCounterSQL, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("incrementing counter %q: %w", name, err)
	}
	return value, nil
}
