package db

import (
	"context"

	"github.com/shopspring/decimal"
)

const getProduct = `-- name: GetProduct :one
SELECT id, name, description, price, stock_quantity, category, image_url, created_at
FROM products
WHERE id = $1
`

func (q *Queries) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := q.db.QueryRow(ctx, getProduct, id)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.Price,
		&i.StockQuantity,
		&i.Category,
		&i.ImageUrl,
		&i.CreatedAt,
	)
	return i, err
}

const createProduct = `-- name: CreateProduct :one
INSERT INTO products (name, description, price, stock_quantity, category, image_url)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, name, description, price, stock_quantity, category, image_url, created_at
`

type CreateProductParams struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int32
	Category      string
	ImageUrl      string
}

func (q *Queries) CreateProduct(ctx context.Context, arg CreateProductParams) (Product, error) {
	row := q.db.QueryRow(ctx, createProduct,
		arg.Name,
		arg.Description,
		arg.Price,
		arg.StockQuantity,
		arg.Category,
		arg.ImageUrl,
	)
	var i Product
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.Price,
		&i.StockQuantity,
		&i.Category,
		&i.ImageUrl,
		&i.CreatedAt,
	)
	return i, err
}

const decrementStock = `-- name: DecrementStock :execrows
UPDATE products
SET stock_quantity = stock_quantity - $2
WHERE id = $1
  AND stock_quantity >= $2
`

type DecrementStockParams struct {
	ID       int64
	Quantity int32
}

// DecrementStock affects no row when the product cannot cover Quantity.
func (q *Queries) DecrementStock(ctx context.Context, arg DecrementStockParams) (int64, error) {
	result, err := q.db.Exec(ctx, decrementStock, arg.ID, arg.Quantity)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
