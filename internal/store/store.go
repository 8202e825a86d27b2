// Package store provides persistence for products, carts and orders.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/quickgrocery/grocery/internal/store/db"
)

// Queries are the operations available both on the store and inside a transaction.
type Queries interface {
	// FindProduct returns ErrProductNotFound if no product exists with the given ID.
	FindProduct(ctx context.Context, id int64) (*db.Product, error)

	// ListCart returns the user's cart lines joined with the live product price and stock.
	ListCart(ctx context.Context, userID uuid.UUID) ([]db.CartLineRow, error)

	// DeleteCartItem returns ErrCartItemNotFound if the line does not exist.
	DeleteCartItem(ctx context.Context, userID uuid.UUID, productID int64) error

	// ClearCart removes every line of the user's cart and reports how many were removed.
	ClearCart(ctx context.Context, userID uuid.UUID) (int64, error)
}

// Tx is a unit of work. Everything done through it commits or rolls back together.
type Tx interface {
	Queries

	// LockCart is ListCart with the product rows locked until the transaction ends.
	LockCart(ctx context.Context, userID uuid.UUID) ([]db.CartLineRow, error)

	// MergeCartItem adds quantity to the line, creating it if needed, and returns the new quantity.
	// Returns ErrInsufficientStock when the product is unknown or cannot cover the merged quantity.
	MergeCartItem(ctx context.Context, params db.MergeCartItemParams) (int32, error)

	// CartItemQuantity returns ErrCartItemNotFound if the line does not exist.
	CartItemQuantity(ctx context.Context, userID uuid.UUID, productID int64) (int32, error)

	// SetCartItemQuantity returns ErrCartItemNotFound if the line does not exist.
	SetCartItemQuantity(ctx context.Context, params db.SetCartItemQuantityParams) error

	// ClaimRequest records an idempotency key for the user and reports whether this transaction owns it.
	// A concurrent claim of the same key blocks until the owning transaction ends.
	ClaimRequest(ctx context.Context, userID, key uuid.UUID) (bool, error)

	// CompleteRequest stores the outcome of a claimed request.
	CompleteRequest(ctx context.Context, userID, key uuid.UUID, quantity int32) error

	// RequestResult returns the outcome stored for an already claimed key.
	RequestResult(ctx context.Context, userID, key uuid.UUID) (int32, error)

	CreateOrder(ctx context.Context, params db.CreateOrderParams) (*db.Order, error)
	CreateOrderItem(ctx context.Context, params db.CreateOrderItemParams) (*db.OrderItem, error)

	// DecrementStock returns ErrInsufficientStock when the product cannot cover quantity.
	// Stock never becomes negative.
	DecrementStock(ctx context.Context, productID int64, quantity int32) error
}

// Store abstracts the underlying data store, allowing for different implementations (e.g., in-memory, database).
type Store interface {
	Queries

	// WithinTx runs fn in a transaction. The transaction commits when fn returns nil and
	// rolls back when fn returns an error or ctx is cancelled.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// FindOrderByID returns ErrOrderNotFound if no order exists with the given ID.
	FindOrderByID(ctx context.Context, id uuid.UUID) (*db.Order, []db.OrderLineRow, error)

	// FindOrdersByUserID returns the user's orders, newest first.
	FindOrdersByUserID(ctx context.Context, params db.FindOrdersByUserIDParams) ([]db.Order, error)
}
