// Package service implements the cart and order operations on top of the store.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	ordererrors "github.com/quickgrocery/grocery/internal/errors"
	"github.com/quickgrocery/grocery/internal/store"
	"github.com/quickgrocery/grocery/internal/store/db"
)

// CartService manages the persisted per-user cart.
// Every mutation re-reads stock, so a cart line never asks for more than is on the shelf at the time it is written.
type CartService interface {
	// GetCart returns the user's lines with the current price and available stock.
	GetCart(ctx context.Context, userID uuid.UUID) ([]CartLineDto, error)

	// AddItem adds quantity to the product's line, creating it if needed, and returns the merged quantity.
	// Returns ErrProductNotFound for an unknown product and an *InsufficientStockError
	// when the merged quantity exceeds stock.
	// An add carrying a RequestKey that already succeeded is not applied again.
	AddItem(ctx context.Context, userID uuid.UUID, item AddToCartDto) (int32, error)

	// UpdateItem sets the quantity of an existing line.
	// Returns ErrInvalidQuantity for quantity <= 0, ErrProductNotFound, ErrCartItemNotFound or an *InsufficientStockError.
	UpdateItem(ctx context.Context, userID uuid.UUID, productID int64, quantity int32) error

	// RemoveItem returns ErrCartItemNotFound if the line does not exist.
	RemoveItem(ctx context.Context, userID uuid.UUID, productID int64) error

	// Clear removes every line of the user's cart.
	Clear(ctx context.Context, userID uuid.UUID) error
}

// CartManager implements CartService.
type CartManager struct {
	store store.Store
}

func NewCartManager(s store.Store) *CartManager {
	return &CartManager{store: s}
}

var _ CartService = (*CartManager)(nil)

func (m *CartManager) GetCart(ctx context.Context, userID uuid.UUID) ([]CartLineDto, error) {
	lines, err := m.store.ListCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toCartDto(lines), nil
}

func (m *CartManager) AddItem(ctx context.Context, userID uuid.UUID, item AddToCartDto) (int32, error) {
	if item.Quantity <= 0 {
		return 0, ordererrors.ErrInvalidQuantity
	}
	var merged int32
	err := m.store.WithinTx(ctx, func(tx store.Tx) error {
		keyed := item.RequestKey != uuid.Nil
		if keyed {
			claimed, err := tx.ClaimRequest(ctx, userID, item.RequestKey)
			if err != nil {
				return err
			}
			if !claimed {
				merged, err = tx.RequestResult(ctx, userID, item.RequestKey)
				return err
			}
		}
		var err error
		merged, err = tx.MergeCartItem(ctx, db.MergeCartItemParams{
			UserID:    userID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
		if err == nil {
			if keyed {
				return tx.CompleteRequest(ctx, userID, item.RequestKey, merged)
			}
			return nil
		}
		if !errors.Is(err, ordererrors.ErrInsufficientStock) {
			return err
		}
		// the upsert refuses both unknown products and short stock
		product, err := tx.FindProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		current, err := tx.CartItemQuantity(ctx, userID, item.ProductID)
		if err != nil && !errors.Is(err, ordererrors.ErrCartItemNotFound) {
			return err
		}
		return &ordererrors.InsufficientStockError{
			ProductID: product.ID,
			Name:      product.Name,
			Available: product.StockQuantity,
			Requested: current + item.Quantity,
		}
	})
	if err != nil {
		return 0, err
	}
	return merged, nil
}

func (m *CartManager) UpdateItem(ctx context.Context, userID uuid.UUID, productID int64, quantity int32) error {
	if quantity <= 0 {
		return ordererrors.ErrInvalidQuantity
	}
	return m.store.WithinTx(ctx, func(tx store.Tx) error {
		product, err := tx.FindProduct(ctx, productID)
		if err != nil {
			return err
		}
		if quantity > product.StockQuantity {
			return &ordererrors.InsufficientStockError{
				ProductID: product.ID,
				Name:      product.Name,
				Available: product.StockQuantity,
				Requested: quantity,
			}
		}
		return tx.SetCartItemQuantity(ctx, db.SetCartItemQuantityParams{
			UserID:    userID,
			ProductID: productID,
			Quantity:  quantity,
		})
	})
}

func (m *CartManager) RemoveItem(ctx context.Context, userID uuid.UUID, productID int64) error {
	return m.store.DeleteCartItem(ctx, userID, productID)
}

func (m *CartManager) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := m.store.ClearCart(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
