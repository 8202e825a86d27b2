package cartsync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Gateway is the client side of the cart API.
type Gateway interface {
	GetCart(ctx context.Context) ([]RemoteLine, error)
	// AddItem is deduplicated by key on the server, so the same add can be replayed safely.
	AddItem(ctx context.Context, key uuid.UUID, productID int64, qty int32) error
	UpdateItem(ctx context.Context, productID int64, qty int32) error
	RemoveItem(ctx context.Context, productID int64) error
	ClearCart(ctx context.Context) error
	PlaceOrder(ctx context.Context, shippingAddress string) (*Order, error)
	GetProduct(ctx context.Context, productID int64) (*Product, error)
}

// RemoteLine is a cart line as the server reports it, priced at the live product price.
type RemoteLine struct {
	ProductID      int64           `json:"product_id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int32           `json:"quantity"`
	AvailableStock int32           `json:"available_stock"`
}

func (r RemoteLine) line() Line {
	return Line{
		Product:        Product{ID: r.ProductID, Name: r.Name, Price: r.Price},
		Quantity:       r.Quantity,
		AvailableStock: r.AvailableStock,
	}
}

// Order is the header of a placed order.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	OrderDate       time.Time       `json:"order_date"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          string          `json:"status"`
	ShippingAddress string          `json:"shipping_address"`
}
