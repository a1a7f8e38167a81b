package handler

import (
	"net/http"
	"time"

	"github.com/teespace/storefront/internal/domain/order"
)

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateItemStatus applies an admin delivery-status change to one item.
func (h *Handler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	status := order.Status(req.Status)
	switch status {
	case order.StatusShipped, order.StatusOutForDelivery, order.StatusDelivered:
	default:
		badRequest(w, "unknown delivery status")
		return
	}

	o, err := h.orders.UpdateItemStatus(r.Context(),
		r.PathValue("orderID"), r.PathValue("itemID"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type resolveReturnRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
}

// ResolveReturn records the admin decision on a pending return request.
func (h *Handler) ResolveReturn(w http.ResponseWriter, r *http.Request) {
	var req resolveReturnRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	o, err := h.orders.ResolveReturn(r.Context(),
		r.PathValue("orderID"), r.PathValue("itemID"), req.Approve, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// RefundReturn executes the wallet refund for an approved return.
func (h *Handler) RefundReturn(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.RefundReturn(r.Context(), r.PathValue("orderID"), r.PathValue("itemID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// SalesSummary reports aggregate sales for a date window. from and to are
// YYYY-MM-DD query parameters; to is inclusive.
func (h *Handler) SalesSummary(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		badRequest(w, "from must be a YYYY-MM-DD date")
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil {
		badRequest(w, "to must be a YYYY-MM-DD date")
		return
	}
	to = to.Add(24*time.Hour - time.Nanosecond)

	report, err := h.orders.SalesSummary(r.Context(), from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
