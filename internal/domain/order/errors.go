package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors. Validation errors are recoverable and may instruct the
// client to reload its cart state (see Reloadable); consistency errors are
// no-op rejections with nothing persisted.
var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrCouponMismatch    = errors.New("applied coupons do not match cart")
	ErrNotFound          = errors.New("order not found")
	ErrItemNotFound      = errors.New("order item not found")
	ErrAlreadyRefunded   = errors.New("item already refunded")
	ErrCancelNotAllowed  = errors.New("order has shipped or delivered items and cannot be cancelled")
	ErrNotReturnable     = errors.New("only delivered items can be returned")
	ErrReturnNotApproved = errors.New("return has not been approved")
	ErrSignatureMismatch = errors.New("payment signature verification failed")
	ErrPaymentNotPending = errors.New("order payment is not awaiting settlement")
	ErrVersionConflict   = errors.New("order was modified concurrently")
)

// ZeroQuantityError indicates a cart line with a non-positive quantity.
type ZeroQuantityError struct {
	ProductID string
}

func (e *ZeroQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// OutOfStockError indicates a cart line exceeding available stock.
type OutOfStockError struct {
	ProductID string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s is out of stock", e.ProductID)
}

// BlockedProductError indicates a cart line referencing an unavailable product.
type BlockedProductError struct {
	ProductID string
}

func (e *BlockedProductError) Error() string {
	return fmt.Sprintf("product %s is unavailable", e.ProductID)
}

// ProductNotFoundError indicates a cart line referencing an unknown product.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidTransitionError indicates a delivery status change the state
// machine does not allow.
type InvalidTransitionError struct {
	From, To Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition item from %q to %q", e.From, e.To)
}

// CODLimitError indicates a Cash on Delivery order above the allowed ceiling.
type CODLimitError struct {
	Limit string
}

func (e *CODLimitError) Error() string {
	return fmt.Sprintf("Cash on Delivery is not available for orders above %s", e.Limit)
}

// Reloadable reports whether the error means the client's cart state is
// stale and should be reloaded before retrying.
func Reloadable(err error) bool {
	switch {
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrCouponMismatch):
		return true
	}
	var (
		oos     *OutOfStockError
		blocked *BlockedProductError
		missing *ProductNotFoundError
	)
	return errors.As(err, &oos) || errors.As(err, &blocked) || errors.As(err, &missing)
}
