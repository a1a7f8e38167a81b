package wallet

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned when a debit would take the balance
// below zero.
var ErrInsufficientBalance = errors.New("insufficient wallet balance")

// Kind distinguishes ledger entry directions.
type Kind string

const (
	Credit Kind = "credit"
	Debit  Kind = "debit"
)

// Wallet is a per-user store-credit account. Balance always equals the sum
// of credits minus debits in the transaction log; every mutation appends an
// entry in the same database transaction that moves the balance.
type Wallet struct {
	UserID       string
	Balance      decimal.Decimal
	Transactions []Transaction
}

// Transaction is one append-only ledger entry.
type Transaction struct {
	ID          string
	Amount      decimal.Decimal
	Kind        Kind
	Description string
	CreatedAt   time.Time
}

// Entry describes a balance movement to apply.
type Entry struct {
	UserID      string
	Amount      decimal.Decimal
	Kind        Kind
	Description string
}

// Ledger is the wallet persistence contract. Credit creates the wallet on
// first use. Both mutations move the balance with an in-place increment and
// append the log entry atomically, so concurrent refunds cannot lose updates.
type Ledger interface {
	GetOrCreate(ctx context.Context, userID string) (*Wallet, error)
	Credit(ctx context.Context, e Entry) error

	// Debit fails with ErrInsufficientBalance when the balance cannot cover
	// the amount; no entry is written in that case.
	Debit(ctx context.Context, e Entry) error
}
