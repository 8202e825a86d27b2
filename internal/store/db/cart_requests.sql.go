package db

import (
	"context"

	"github.com/google/uuid"
)

const claimCartRequest = `-- name: ClaimCartRequest :execrows
INSERT INTO cart_requests (user_id, idempotency_key)
VALUES ($1, $2)
ON CONFLICT (user_id, idempotency_key) DO NOTHING
`

type CartRequestKey struct {
	UserID uuid.UUID
	Key    uuid.UUID
}

// ClaimCartRequest returns 0 rows when the key was already claimed by a committed or concurrent transaction.
func (q *Queries) ClaimCartRequest(ctx context.Context, arg CartRequestKey) (int64, error) {
	result, err := q.db.Exec(ctx, claimCartRequest, arg.UserID, arg.Key)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const completeCartRequest = `-- name: CompleteCartRequest :exec
UPDATE cart_requests
SET quantity = $3
WHERE user_id = $1
  AND idempotency_key = $2
`

type CompleteCartRequestParams struct {
	UserID   uuid.UUID
	Key      uuid.UUID
	Quantity int32
}

func (q *Queries) CompleteCartRequest(ctx context.Context, arg CompleteCartRequestParams) error {
	_, err := q.db.Exec(ctx, completeCartRequest, arg.UserID, arg.Key, arg.Quantity)
	return err
}

const getCartRequest = `-- name: GetCartRequest :one
SELECT quantity
FROM cart_requests
WHERE user_id = $1
  AND idempotency_key = $2
`

func (q *Queries) GetCartRequest(ctx context.Context, arg CartRequestKey) (int32, error) {
	row := q.db.QueryRow(ctx, getCartRequest, arg.UserID, arg.Key)
	var quantity int32
	err := row.Scan(&quantity)
	return quantity, err
}
