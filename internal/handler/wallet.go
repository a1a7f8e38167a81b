package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

type walletResponse struct {
	Balance      decimal.Decimal     `json:"balance"`
	Transactions []walletTransaction `json:"transactions"`
}

type walletTransaction struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// GetWallet returns the shopper's store-credit balance and ledger history.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wal, err := h.wallets.GetOrCreate(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := walletResponse{
		Balance:      wal.Balance,
		Transactions: make([]walletTransaction, len(wal.Transactions)),
	}
	for i, t := range wal.Transactions {
		resp.Transactions[i] = walletTransaction{
			ID:          t.ID,
			Amount:      t.Amount,
			Kind:        string(t.Kind),
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
