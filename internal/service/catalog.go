package service

import (
	"context"

	"github.com/quickgrocery/grocery/internal/store"
)

// CatalogService is the read-only product lookup the cart client uses to show a product it has not cached yet.
type CatalogService interface {
	// FindProduct returns ErrProductNotFound if no product exists with the given ID.
	FindProduct(ctx context.Context, id int64) (*ProductDto, error)
}

type Catalog struct {
	store store.Queries
}

func NewCatalog(s store.Queries) *Catalog {
	return &Catalog{store: s}
}

func (c *Catalog) FindProduct(ctx context.Context, id int64) (*ProductDto, error) {
	p, err := c.store.FindProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	return toProductDto(p), nil
}
