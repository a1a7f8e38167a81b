package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teespace/storefront/internal/domain/wallet"
)

const (
	ensureWalletSQL = `INSERT INTO wallets (user_id, balance) VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING`

	getWalletSQL = `SELECT user_id, balance FROM wallets WHERE user_id = $1`

	listWalletTxSQL = `SELECT id, amount, kind, description, created_at
		FROM wallet_transactions WHERE user_id = $1 ORDER BY created_at DESC`

	debitWalletSQL = `UPDATE wallets SET balance = balance - $2
		WHERE user_id = $1 AND balance >= $2`
)

var _ wallet.Ledger = (*WalletRepository)(nil)

// WalletRepository implements wallet.Ledger backed by PostgreSQL. Balance
// moves are in-place increments so concurrent refunds never lose updates.
type WalletRepository struct {
	pool *pgxpool.Pool
}

// NewWalletRepository returns a WalletRepository that uses the given pool.
func NewWalletRepository(pool *pgxpool.Pool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// GetOrCreate loads the user's wallet with its transaction history, creating
// an empty wallet on first use.
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID string) (*wallet.Wallet, error) {
	if _, err := r.pool.Exec(ctx, ensureWalletSQL, userID); err != nil {
		return nil, fmt.Errorf("ensuring wallet for %q: %w", userID, err)
	}

	var w wallet.Wallet
	if err := r.pool.QueryRow(ctx, getWalletSQL, userID).Scan(&w.UserID, &w.Balance); err != nil {
		return nil, fmt.Errorf("getting wallet for %q: %w", userID, err)
	}

	rows, err := r.pool.Query(ctx, listWalletTxSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing wallet transactions for %q: %w", userID, err)
	}
	w.Transactions, err = pgx.CollectRows(rows, scanWalletTx)
	if err != nil {
		return nil, fmt.Errorf("listing wallet transactions for %q: %w", userID, err)
	}
	return &w, nil
}

// Credit increments the balance and appends the ledger entry in one
// transaction, creating the wallet if needed.
func (r *WalletRepository) Credit(ctx context.Context, e wallet.Entry) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, creditWalletSQL, e.UserID, e.Amount); err != nil {
			return fmt.Errorf("crediting wallet for %q: %w", e.UserID, err)
		}
		_, err := tx.Exec(ctx, insertWalletTxSQL,
			uuid.New().String(), e.UserID, e.Amount, wallet.Credit, e.Description,
		)
		if err != nil {
			return fmt.Errorf("recording wallet transaction: %w", err)
		}
		return nil
	})
}

// Debit decrements the balance and appends the ledger entry in one
// transaction. The conditional UPDATE touches no row when the balance cannot
// cover the amount, failing with wallet.ErrInsufficientBalance.
func (r *WalletRepository) Debit(ctx context.Context, e wallet.Entry) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, debitWalletSQL, e.UserID, e.Amount)
		if err != nil {
			return fmt.Errorf("debiting wallet for %q: %w", e.UserID, err)
		}
		if tag.RowsAffected() == 0 {
			return wallet.ErrInsufficientBalance
		}
		_, err = tx.Exec(ctx, insertWalletTxSQL,
			uuid.New().String(), e.UserID, e.Amount, wallet.Debit, e.Description,
		)
		if err != nil {
			return fmt.Errorf("recording wallet transaction: %w", err)
		}
		return nil
	})
}

func scanWalletTx(row pgx.CollectableRow) (wallet.Transaction, error) {
	var t wallet.Transaction
	err := row.Scan(&t.ID, &t.Amount, &t.Kind, &t.Description, &t.CreatedAt)
	return t, err
}
