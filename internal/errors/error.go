// Package errors defines the failures the cart and order operations report to their callers.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrCartItemNotFound  = errors.New("item not found in cart")
	ErrOrderNotFound     = errors.New("order not found")
	ErrEmptyCart         = errors.New("cannot place an order with an empty cart")
	ErrInsufficientStock = errors.New("not enough stock")
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrValidation        = errors.New("validation failed")
	ErrAccessDenied      = errors.New("access denied")

	ErrTransactionBegin    = errors.New("failed to begin transaction")
	ErrTransactionCommit   = errors.New("failed to commit transaction")
	ErrTransactionRollback = errors.New("failed to rollback transaction")
)

// InsufficientStockError names the product that cannot cover the requested quantity.
// It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int32
	Requested int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Not enough stock for %s. Available: %d", e.Name, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
