package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	ordererrors "github.com/quickgrocery/grocery/internal/errors"
	"github.com/quickgrocery/grocery/internal/store/db"
)

// DBPool is the subset of *pgxpool.Pool the store needs.
type DBPool interface {
	db.DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgStore struct {
	pool DBPool
	pgQueries
}

// NewPgStore creates a Store backed by PostgreSQL.
func NewPgStore(pool DBPool) *PgStore {
	return &PgStore{
		pool:      pool,
		pgQueries: pgQueries{q: db.New(pool)},
	}
}

var _ Store = (*PgStore)(nil)

func (p *PgStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	return p.withTransaction(ctx, func(qtx *db.Queries) error {
		return fn(&pgTx{pgQueries{q: qtx}})
	})
}

func (p *PgStore) withTransaction(ctx context.Context, fn func(qtx *db.Queries) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ordererrors.ErrTransactionBegin, err)
	}

	if err := fn(p.q.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("%w: %w", ordererrors.ErrTransactionRollback, rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %w", ordererrors.ErrTransactionCommit, err)
	}
	return nil
}

func (p *PgStore) FindOrderByID(ctx context.Context, id uuid.UUID) (*db.Order, []db.OrderLineRow, error) {
	var order *db.Order
	var lines []db.OrderLineRow

	// header and lines from one snapshot
	txErr := p.withTransaction(ctx, func(q *db.Queries) error {
		o, err := q.FindOrderByID(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ordererrors.ErrOrderNotFound
			}
			return fmt.Errorf("find order %s: %w", id, err)
		}
		l, err := q.FindOrderItemsByOrderID(ctx, id)
		if err != nil {
			return fmt.Errorf("find items of order %s: %w", id, err)
		}
		order = &o
		lines = l
		return nil
	})
	if txErr != nil {
		return nil, nil, txErr
	}
	return order, lines, nil
}

func (p *PgStore) FindOrdersByUserID(ctx context.Context, params db.FindOrdersByUserIDParams) ([]db.Order, error) {
	orders, err := p.q.FindOrdersByUserID(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("find orders of user %s: %w", params.UserID, err)
	}
	return orders, nil
}

type pgTx struct {
	pgQueries
}

var _ Tx = (*pgTx)(nil)

func (t *pgTx) LockCart(ctx context.Context, userID uuid.UUID) ([]db.CartLineRow, error) {
	lines, err := t.q.LockCartItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock cart of user %s: %w", userID, err)
	}
	return lines, nil
}

func (t *pgTx) MergeCartItem(ctx context.Context, params db.MergeCartItemParams) (int32, error) {
	quantity, err := t.q.MergeCartItem(ctx, params)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ordererrors.ErrInsufficientStock
		}
		return 0, fmt.Errorf("merge cart item %d: %w", params.ProductID, err)
	}
	return quantity, nil
}

func (t *pgTx) CartItemQuantity(ctx context.Context, userID uuid.UUID, productID int64) (int32, error) {
	quantity, err := t.q.GetCartItemQuantity(ctx, db.CartItemKey{UserID: userID, ProductID: productID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ordererrors.ErrCartItemNotFound
		}
		return 0, fmt.Errorf("get cart item %d: %w", productID, err)
	}
	return quantity, nil
}

func (t *pgTx) SetCartItemQuantity(ctx context.Context, params db.SetCartItemQuantityParams) error {
	n, err := t.q.SetCartItemQuantity(ctx, params)
	if err != nil {
		return fmt.Errorf("update cart item %d: %w", params.ProductID, err)
	}
	if n == 0 {
		return ordererrors.ErrCartItemNotFound
	}
	return nil
}

func (t *pgTx) ClaimRequest(ctx context.Context, userID, key uuid.UUID) (bool, error) {
	n, err := t.q.ClaimCartRequest(ctx, db.CartRequestKey{UserID: userID, Key: key})
	if err != nil {
		return false, fmt.Errorf("claim request %s: %w", key, err)
	}
	return n == 1, nil
}

func (t *pgTx) CompleteRequest(ctx context.Context, userID, key uuid.UUID, quantity int32) error {
	err := t.q.CompleteCartRequest(ctx, db.CompleteCartRequestParams{UserID: userID, Key: key, Quantity: quantity})
	if err != nil {
		return fmt.Errorf("complete request %s: %w", key, err)
	}
	return nil
}

func (t *pgTx) RequestResult(ctx context.Context, userID, key uuid.UUID) (int32, error) {
	quantity, err := t.q.GetCartRequest(ctx, db.CartRequestKey{UserID: userID, Key: key})
	if err != nil {
		return 0, fmt.Errorf("get request %s: %w", key, err)
	}
	return quantity, nil
}

func (t *pgTx) CreateOrder(ctx context.Context, params db.CreateOrderParams) (*db.Order, error) {
	order, err := t.q.CreateOrder(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &order, nil
}

func (t *pgTx) CreateOrderItem(ctx context.Context, params db.CreateOrderItemParams) (*db.OrderItem, error) {
	item, err := t.q.CreateOrderItem(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("create order item for product %d: %w", params.ProductID, err)
	}
	return &item, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID int64, quantity int32) error {
	n, err := t.q.DecrementStock(ctx, db.DecrementStockParams{ID: productID, Quantity: quantity})
	if err != nil {
		return fmt.Errorf("decrement stock of product %d: %w", productID, err)
	}
	if n == 0 {
		return ordererrors.ErrInsufficientStock
	}
	return nil
}

// pgQueries implements Queries on top of either the pool or a transaction.
type pgQueries struct {
	q *db.Queries
}

func (p pgQueries) FindProduct(ctx context.Context, id int64) (*db.Product, error) {
	product, err := p.q.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ordererrors.ErrProductNotFound
		}
		return nil, fmt.Errorf("find product %d: %w", id, err)
	}
	return &product, nil
}

func (p pgQueries) ListCart(ctx context.Context, userID uuid.UUID) ([]db.CartLineRow, error) {
	lines, err := p.q.ListCartItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart of user %s: %w", userID, err)
	}
	return lines, nil
}

func (p pgQueries) DeleteCartItem(ctx context.Context, userID uuid.UUID, productID int64) error {
	n, err := p.q.DeleteCartItem(ctx, db.CartItemKey{UserID: userID, ProductID: productID})
	if err != nil {
		return fmt.Errorf("delete cart item %d: %w", productID, err)
	}
	if n == 0 {
		return ordererrors.ErrCartItemNotFound
	}
	return nil
}

func (p pgQueries) ClearCart(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := p.q.ClearCart(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("clear cart of user %s: %w", userID, err)
	}
	return n, nil
}
