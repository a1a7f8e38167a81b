package handler

import (
	"net/http"

	"github.com/teespace/storefront/internal/domain/auth"
	"github.com/teespace/storefront/internal/domain/order"
	"github.com/teespace/storefront/internal/domain/wallet"
)

// Handler exposes the store API over HTTP, delegating business logic to the
// order service and the wallet ledger.
type Handler struct {
	orders  *order.Service
	wallets wallet.Ledger
	guard   *APIKeyGuard
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders *order.Service, wallets wallet.Ledger, apikeys auth.Repository, pepper []byte) *Handler {
	return &Handler{
		orders:  orders,
		wallets: wallets,
		guard:   NewAPIKeyGuard(apikeys, pepper),
	}
}

// Register mounts all API routes on the mux. Admin routes require a valid
// API key.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("GET /api/orders/{orderID}", h.GetOrder)
	mux.HandleFunc("POST /api/orders/{orderID}/payment/verify", h.VerifyPayment)
	mux.HandleFunc("POST /api/orders/{orderID}/payment/failed", h.PaymentFailed)
	mux.HandleFunc("POST /api/orders/{orderID}/cancel", h.CancelOrder)
	mux.HandleFunc("POST /api/orders/{orderID}/items/{itemID}/cancel", h.CancelItem)
	mux.HandleFunc("POST /api/orders/{orderID}/items/{itemID}/return", h.RequestReturn)
	mux.HandleFunc("GET /api/wallet", h.GetWallet)

	mux.Handle("PUT /api/admin/orders/{orderID}/items/{itemID}/status",
		h.guard.Require(http.HandlerFunc(h.UpdateItemStatus)))
	mux.Handle("PUT /api/admin/orders/{orderID}/items/{itemID}/return",
		h.guard.Require(http.HandlerFunc(h.ResolveReturn)))
	mux.Handle("POST /api/admin/orders/{orderID}/items/{itemID}/refund",
		h.guard.Require(http.HandlerFunc(h.RefundReturn)))
	mux.Handle("GET /api/admin/reports/sales",
		h.guard.Require(http.HandlerFunc(h.SalesSummary)))
}

// userID extracts the authenticated shopper identity. Upstream auth
// terminates at the gateway, which forwards the subject in this header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}
