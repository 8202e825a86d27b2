package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quickgrocery/grocery/internal/store/db"
)

// CartLineDto is one line of the authoritative cart joined with the live product price and stock.
type CartLineDto struct {
	ProductID      int64  `json:"product_id"`
	Name           string `json:"name"`
	Price          string `json:"price"`
	Quantity       int32  `json:"quantity"`
	AvailableStock int32  `json:"available_stock"`
}

// AddToCartDto represents the request to put a product into the cart.
// A non-nil RequestKey makes the add idempotent: repeating it returns the first outcome.
type AddToCartDto struct {
	ProductID  int64     `json:"productId" validate:"required,gt=0"`
	Quantity   int32     `json:"quantity" validate:"required,gt=0"`
	RequestKey uuid.UUID `json:"-"`
}

// UpdateCartItemDto sets the quantity of an existing line.
type UpdateCartItemDto struct {
	Quantity int32 `json:"quantity" validate:"gt=0"`
}

// PlaceOrderDto represents the request to check out the cart.
type PlaceOrderDto struct {
	ShippingAddress string `json:"shippingAddress" validate:"required,notblank,max=1000"`
}

// OrderDto is an order header, with its lines when they were requested.
type OrderDto struct {
	ID              uuid.UUID      `json:"id"`
	OrderDate       time.Time      `json:"order_date"`
	TotalAmount     string         `json:"total_amount"`
	Status          string         `json:"status"`
	ShippingAddress string         `json:"shipping_address"`
	Items           []OrderLineDto `json:"items,omitempty"`
}

// OrderLineDto carries the price the product had when the order was placed.
type OrderLineDto struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int32  `json:"quantity"`
	Price     string `json:"price"`
}

type ProductDto struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         string `json:"price"`
	StockQuantity int32  `json:"stock_quantity"`
	Category      string `json:"category"`
	ImageUrl      string `json:"image_url"`
}

// money renders an amount the way NUMERIC(10,2) does.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func toCartDto(lines []db.CartLineRow) []CartLineDto {
	dtos := make([]CartLineDto, 0, len(lines))
	for _, l := range lines {
		dtos = append(dtos, CartLineDto{
			ProductID:      l.ProductID,
			Name:           l.Name,
			Price:          money(l.Price),
			Quantity:       l.Quantity,
			AvailableStock: l.StockQuantity,
		})
	}
	return dtos
}

func toOrderDto(order *db.Order, lines []db.OrderLineRow) *OrderDto {
	if order == nil {
		return nil
	}
	var items []OrderLineDto
	if lines != nil {
		items = make([]OrderLineDto, 0, len(lines))
		for _, l := range lines {
			items = append(items, OrderLineDto{
				ProductID: l.ProductID,
				Name:      l.Name,
				Quantity:  l.Quantity,
				Price:     money(l.Price),
			})
		}
	}
	return &OrderDto{
		ID:              order.ID,
		OrderDate:       order.OrderDate.UTC(),
		TotalAmount:     money(order.TotalAmount),
		Status:          order.Status,
		ShippingAddress: order.ShippingAddress,
		Items:           items,
	}
}

func toProductDto(p *db.Product) *ProductDto {
	return &ProductDto{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         money(p.Price),
		StockQuantity: p.StockQuantity,
		Category:      p.Category,
		ImageUrl:      p.ImageUrl,
	}
}
