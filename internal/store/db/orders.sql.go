package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const createOrder = `-- name: CreateOrder :one
INSERT INTO orders (id, user_id, total_amount, status, shipping_address)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_id, total_amount, status, shipping_address, order_date
`

type CreateOrderParams struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	TotalAmount     decimal.Decimal
	Status          string
	ShippingAddress string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.ID,
		arg.UserID,
		arg.TotalAmount,
		arg.Status,
		arg.ShippingAddress,
	)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.TotalAmount,
		&i.Status,
		&i.ShippingAddress,
		&i.OrderDate,
	)
	return i, err
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (id, order_id, product_id, quantity, price)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, product_id, quantity, price
`

type CreateOrderItemParams struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID int64
	Quantity  int32
	Price     decimal.Decimal
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.ID,
		arg.OrderID,
		arg.ProductID,
		arg.Quantity,
		arg.Price,
	)
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.ProductID,
		&i.Quantity,
		&i.Price,
	)
	return i, err
}

const findOrderByID = `-- name: FindOrderByID :one
SELECT id, user_id, total_amount, status, shipping_address, order_date
FROM orders
WHERE id = $1
`

func (q *Queries) FindOrderByID(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, findOrderByID, id)
	var i Order
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.TotalAmount,
		&i.Status,
		&i.ShippingAddress,
		&i.OrderDate,
	)
	return i, err
}

const findOrderItemsByOrderID = `-- name: FindOrderItemsByOrderID :many
SELECT oi.id, oi.order_id, oi.product_id, p.name, oi.quantity, oi.price
FROM order_items oi
         JOIN products p ON p.id = oi.product_id
WHERE oi.order_id = $1
ORDER BY oi.product_id
`

type OrderLineRow struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID int64
	Name      string
	Quantity  int32
	Price     decimal.Decimal
}

func (q *Queries) FindOrderItemsByOrderID(ctx context.Context, orderID uuid.UUID) ([]OrderLineRow, error) {
	rows, err := q.db.Query(ctx, findOrderItemsByOrderID, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderLineRow{}
	for rows.Next() {
		var i OrderLineRow
		if err := rows.Scan(
			&i.ID,
			&i.OrderID,
			&i.ProductID,
			&i.Name,
			&i.Quantity,
			&i.Price,
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

const findOrdersByUserID = `-- name: FindOrdersByUserID :many
SELECT id, user_id, total_amount, status, shipping_address, order_date
FROM orders
WHERE user_id = $1
ORDER BY order_date DESC, id
OFFSET $2 LIMIT $3
`

type FindOrdersByUserIDParams struct {
	UserID uuid.UUID
	Offset int32
	Limit  int32
}

func (q *Queries) FindOrdersByUserID(ctx context.Context, arg FindOrdersByUserIDParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, findOrdersByUserID, arg.UserID, arg.Offset, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Order{}
	for rows.Next() {
		var i Order
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.TotalAmount,
			&i.Status,
			&i.ShippingAddress,
			&i.OrderDate,
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
