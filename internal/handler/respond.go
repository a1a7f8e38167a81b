package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/teespace/storefront/internal/domain/catalog"
	"github.com/teespace/storefront/internal/domain/coupon"
	"github.com/teespace/storefront/internal/domain/order"
	"github.com/teespace/storefront/internal/domain/wallet"
)

// writeJSON encodes v and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"code":500,"message":"encoding response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError maps a domain error to the HTTP error envelope:
// {"code": <status>, "message": <text>, "reload": <bool, optional>}.
// The reload flag tells the client its cart or order view is stale.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		err = errors.New("internal error")
	}

	writeEnvelope(w, status, err.Error(), order.Reloadable(err))
}

// badRequest writes a 400 envelope with the given message.
func badRequest(w http.ResponseWriter, msg string) {
	writeEnvelope(w, http.StatusBadRequest, msg, false)
}

func writeEnvelope(w http.ResponseWriter, status int, msg string, reload bool) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	if reload {
		e.FieldStart("reload")
		e.Bool(true)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrItemNotFound):
		return http.StatusNotFound

	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrSignatureMismatch):
		return http.StatusBadRequest

	case errors.Is(err, order.ErrCouponMismatch),
		errors.Is(err, order.ErrVersionConflict),
		errors.Is(err, order.ErrPaymentNotPending),
		errors.Is(err, order.ErrCancelNotAllowed),
		errors.Is(err, order.ErrNotReturnable),
		errors.Is(err, order.ErrReturnNotApproved),
		errors.Is(err, order.ErrAlreadyRefunded):
		return http.StatusConflict

	case errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrBelowMinPurchase),
		errors.Is(err, coupon.ErrNoApplicableItems):
		return http.StatusUnprocessableEntity

	case errors.Is(err, wallet.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	}

	var (
		zeroQty    *order.ZeroQuantityError
		notFound   *order.ProductNotFoundError
		blocked    *order.BlockedProductError
		outOfStock *order.OutOfStockError
		codLimit   *order.CODLimitError
		transition *order.InvalidTransitionError
		stock      *catalog.InsufficientStockError
	)
	switch {
	case errors.As(err, &zeroQty):
		return http.StatusBadRequest
	case errors.As(err, &notFound),
		errors.As(err, &blocked),
		errors.As(err, &outOfStock),
		errors.As(err, &codLimit),
		errors.As(err, &stock):
		return http.StatusUnprocessableEntity
	case errors.As(err, &transition):
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}

// decodeBody reads the request body into dst, rejecting malformed JSON.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}
