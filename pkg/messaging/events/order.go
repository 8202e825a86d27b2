package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/quickgrocery/grocery/pkg/messaging"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/propagation"
)

// OrderPlacedEvent is emitted once an order transaction has committed.
type OrderPlacedEvent struct {
	// Carrier propagates the trace of the request that placed the order.
	Carrier         propagation.MapCarrier `json:"carrier,omitempty"`
	OrderID         uuid.UUID              `json:"order_id"`
	UserID          uuid.UUID              `json:"user_id"`
	TotalAmount     decimal.Decimal        `json:"total_amount"`
	ShippingAddress string                 `json:"shipping_address"`
	Items           []OrderPlacedItem      `json:"items"`
	PlacedAt        time.Time              `json:"placed_at"`
}

type OrderPlacedItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (o OrderPlacedEvent) Subject() string {
	return messaging.OrdersPlacedSubject
}

func (o OrderPlacedEvent) Payload() ([]byte, error) {
	return json.Marshal(o)
}

// DeduplicationID is the order id: one order produces one event.
func (o OrderPlacedEvent) DeduplicationID() string {
	return o.OrderID.String()
}
