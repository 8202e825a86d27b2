package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

type Product struct {
	ID            int64
	Name          string
	Description   string
	Price         decimal.Decimal
	StockQuantity int32
	Category      string
	ImageUrl      string
	CreatedAt     time.Time
}

type CartItem struct {
	UserID    uuid.UUID
	ProductID int64
	Quantity  int32
	AddedAt   time.Time
}

type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	TotalAmount     decimal.Decimal
	Status          string
	ShippingAddress string
	OrderDate       time.Time
}

type OrderItem struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID int64
	Quantity  int32
	Price     decimal.Decimal
}
