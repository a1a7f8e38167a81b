package handler

import (
	"net/http"

	"github.com/teespace/storefront/internal/domain/order"
)

type placeOrderRequest struct {
	Address       order.Address `json:"address"`
	PaymentMethod string        `json:"paymentMethod"`
	Items         []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	CartCoupons    []string `json:"cartCoupons"`
	AppliedCoupons []string `json:"appliedCoupons"`
}

// PlaceOrder handles checkout submission.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	method := order.PaymentMethod(req.PaymentMethod)
	switch method {
	case order.CashOnDelivery, order.OnlinePayment, order.WalletPayment:
	default:
		badRequest(w, "unknown payment method")
		return
	}

	lines := make([]order.CartLine, len(req.Items))
	for i, item := range req.Items {
		lines[i] = order.CartLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:             userID(r),
		Address:            req.Address,
		PaymentMethod:      method,
		Lines:              lines,
		CartCouponCodes:    req.CartCoupons,
		ClaimedCouponCodes: req.AppliedCoupons,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// GetOrder returns one of the shopper's orders.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), r.PathValue("orderID"), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type verifyPaymentRequest struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

// VerifyPayment handles the payment gateway success callback.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	o, err := h.orders.VerifyPayment(r.Context(), order.VerifyPaymentRequest{
		UserID:           userID(r),
		OrderID:          r.PathValue("orderID"),
		GatewayOrderID:   req.GatewayOrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		Signature:        req.Signature,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// PaymentFailed records a failed online payment attempt.
func (h *Handler) PaymentFailed(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	o, err := h.orders.MarkPaymentFailed(r.Context(), r.PathValue("orderID"), userID(r), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// CancelOrder cancels a whole order.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	o, err := h.orders.CancelOrder(r.Context(), r.PathValue("orderID"), userID(r), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// CancelItem cancels a single pending order item.
func (h *Handler) CancelItem(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	o, err := h.orders.CancelItem(r.Context(),
		r.PathValue("orderID"), userID(r), r.PathValue("itemID"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// RequestReturn opens a return request on a delivered item.
func (h *Handler) RequestReturn(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	o, err := h.orders.RequestReturn(r.Context(),
		r.PathValue("orderID"), userID(r), r.PathValue("itemID"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
