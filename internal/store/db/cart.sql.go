package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const listCartItems = `-- name: ListCartItems :many
SELECT ci.product_id, p.name, p.price, ci.quantity, p.stock_quantity
FROM cart_items ci
         JOIN products p ON p.id = ci.product_id
WHERE ci.user_id = $1
ORDER BY ci.added_at, ci.product_id
`

type CartLineRow struct {
	ProductID     int64
	Name          string
	Price         decimal.Decimal
	Quantity      int32
	StockQuantity int32
}

func (q *Queries) ListCartItems(ctx context.Context, userID uuid.UUID) ([]CartLineRow, error) {
	return q.queryCartLines(ctx, listCartItems, userID)
}

const lockCartItems = `-- name: LockCartItems :many
SELECT ci.product_id, p.name, p.price, ci.quantity, p.stock_quantity
FROM cart_items ci
         JOIN products p ON p.id = ci.product_id
WHERE ci.user_id = $1
ORDER BY p.id
FOR UPDATE OF p
`

// LockCartItems locks the product rows behind the cart in id order, so concurrent checkouts
// touching the same products queue instead of deadlocking.
func (q *Queries) LockCartItems(ctx context.Context, userID uuid.UUID) ([]CartLineRow, error) {
	return q.queryCartLines(ctx, lockCartItems, userID)
}

func (q *Queries) queryCartLines(ctx context.Context, query string, userID uuid.UUID) ([]CartLineRow, error) {
	rows, err := q.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []CartLineRow{}
	for rows.Next() {
		var i CartLineRow
		if err := rows.Scan(
			&i.ProductID,
			&i.Name,
			&i.Price,
			&i.Quantity,
			&i.StockQuantity,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const mergeCartItem = `-- name: MergeCartItem :one
INSERT INTO cart_items (user_id, product_id, quantity)
SELECT $1::uuid, p.id, $3::integer
FROM products p
WHERE p.id = $2
  AND p.stock_quantity >= $3::integer
ON CONFLICT (user_id, product_id) DO UPDATE
    SET quantity = cart_items.quantity + EXCLUDED.quantity
WHERE cart_items.quantity + EXCLUDED.quantity <=
      (SELECT stock_quantity FROM products WHERE id = EXCLUDED.product_id)
RETURNING quantity
`

type MergeCartItemParams struct {
	UserID    uuid.UUID
	ProductID int64
	Quantity  int32
}

// MergeCartItem adds Quantity to the caller's line, creating it when absent.
// It returns pgx.ErrNoRows when the product does not exist or the resulting quantity exceeds stock.
func (q *Queries) MergeCartItem(ctx context.Context, arg MergeCartItemParams) (int32, error) {
	row := q.db.QueryRow(ctx, mergeCartItem, arg.UserID, arg.ProductID, arg.Quantity)
	var quantity int32
	err := row.Scan(&quantity)
	return quantity, err
}

const getCartItemQuantity = `-- name: GetCartItemQuantity :one
SELECT quantity
FROM cart_items
WHERE user_id = $1
  AND product_id = $2
`

type CartItemKey struct {
	UserID    uuid.UUID
	ProductID int64
}

func (q *Queries) GetCartItemQuantity(ctx context.Context, arg CartItemKey) (int32, error) {
	row := q.db.QueryRow(ctx, getCartItemQuantity, arg.UserID, arg.ProductID)
	var quantity int32
	err := row.Scan(&quantity)
	return quantity, err
}

const setCartItemQuantity = `-- name: SetCartItemQuantity :execrows
UPDATE cart_items
SET quantity = $3
WHERE user_id = $1
  AND product_id = $2
`

type SetCartItemQuantityParams struct {
	UserID    uuid.UUID
	ProductID int64
	Quantity  int32
}

func (q *Queries) SetCartItemQuantity(ctx context.Context, arg SetCartItemQuantityParams) (int64, error) {
	result, err := q.db.Exec(ctx, setCartItemQuantity, arg.UserID, arg.ProductID, arg.Quantity)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteCartItem = `-- name: DeleteCartItem :execrows
DELETE
FROM cart_items
WHERE user_id = $1
  AND product_id = $2
`

func (q *Queries) DeleteCartItem(ctx context.Context, arg CartItemKey) (int64, error) {
	result, err := q.db.Exec(ctx, deleteCartItem, arg.UserID, arg.ProductID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const clearCart = `-- name: ClearCart :execrows
DELETE
FROM cart_items
WHERE user_id = $1
`

func (q *Queries) ClearCart(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := q.db.Exec(ctx, clearCart, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
