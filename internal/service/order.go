package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"

	ordererrors "github.com/quickgrocery/grocery/internal/errors"
	"github.com/quickgrocery/grocery/internal/store"
	"github.com/quickgrocery/grocery/internal/store/db"
	"github.com/quickgrocery/grocery/pkg/messaging"
	"github.com/quickgrocery/grocery/pkg/messaging/events"
)

// OrderService defines the methods for placing and reading orders.
type OrderService interface {
	// PlaceOrder converts the user's cart into an order in one transaction:
	// the order and its lines are written, stock is decremented and the cart is emptied, or nothing changes.
	// Returns ErrEmptyCart, an *InsufficientStockError, or a persistence error.
	PlaceOrder(ctx context.Context, userID uuid.UUID, req PlaceOrderDto) (*OrderDto, error)

	// FindByID retrieves a single order with its lines.
	// Returns ErrOrderNotFound if no order exists with the given ID and ErrAccessDenied if it belongs to another user.
	FindByID(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*OrderDto, error)

	// FindOrdersByUserID returns the user's order headers, newest first.
	// Returns an empty slice if no orders exist.
	FindOrdersByUserID(ctx context.Context, userID uuid.UUID, offset, limit int32) ([]OrderDto, error)
}

// OrderEngine implements OrderService.
type OrderEngine struct {
	store          store.Store
	publisher      messaging.Publisher
	logger         *slog.Logger
	ordersPlaced   metric.Int64Counter
	ordersRejected metric.Int64Counter
	newID          func() uuid.UUID
}

// NewOrderEngine creates an OrderEngine. Events are published after commit through publisher.
func NewOrderEngine(s store.Store, publisher messaging.Publisher, logger *slog.Logger) *OrderEngine {
	meter := otel.Meter("grocery-orders")
	ordersPlaced, err := meter.Int64Counter("orders_placed", metric.WithDescription("Total number of committed orders"))
	if err != nil {
		panic(fmt.Sprintf("failed to create orders_placed counter: %v", err))
	}
	ordersRejected, err := meter.Int64Counter("orders_rejected", metric.WithDescription("Order placements rolled back, by reason"))
	if err != nil {
		panic(fmt.Sprintf("failed to create orders_rejected counter: %v", err))
	}
	return &OrderEngine{
		store:          s,
		publisher:      publisher,
		logger:         logger.With("component", "order-engine"),
		ordersPlaced:   ordersPlaced,
		ordersRejected: ordersRejected,
		newID:          uuid.New,
	}
}

var _ OrderService = (*OrderEngine)(nil)

func (e *OrderEngine) PlaceOrder(ctx context.Context, userID uuid.UUID, req PlaceOrderDto) (*OrderDto, error) {
	address := strings.TrimSpace(req.ShippingAddress)
	if address == "" {
		return nil, fmt.Errorf("shipping address is required: %w", ordererrors.ErrValidation)
	}

	var order *db.Order
	var lines []db.OrderLineRow
	err := e.store.WithinTx(ctx, func(tx store.Tx) error {
		cart, err := tx.LockCart(ctx, userID)
		if err != nil {
			return err
		}
		if len(cart) == 0 {
			return ordererrors.ErrEmptyCart
		}

		total := decimal.Zero
		for _, line := range cart {
			if line.Quantity > line.StockQuantity {
				return insufficient(line)
			}
			total = total.Add(line.Price.Mul(decimal.NewFromInt32(line.Quantity)))
		}

		order, err = tx.CreateOrder(ctx, db.CreateOrderParams{
			ID:              e.newID(),
			UserID:          userID,
			TotalAmount:     total,
			Status:          db.OrderStatusPending,
			ShippingAddress: address,
		})
		if err != nil {
			return err
		}

		lines = make([]db.OrderLineRow, 0, len(cart))
		for _, line := range cart {
			item, err := tx.CreateOrderItem(ctx, db.CreateOrderItemParams{
				ID:        e.newID(),
				OrderID:   order.ID,
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				Price:     line.Price,
			})
			if err != nil {
				return err
			}
			if err := tx.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
				if errors.Is(err, ordererrors.ErrInsufficientStock) {
					return insufficient(line)
				}
				return err
			}
			lines = append(lines, db.OrderLineRow{
				ID:        item.ID,
				OrderID:   item.OrderID,
				ProductID: item.ProductID,
				Name:      line.Name,
				Quantity:  item.Quantity,
				Price:     item.Price,
			})
		}

		_, err = tx.ClearCart(ctx, userID)
		return err
	})
	if err != nil {
		e.ordersRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(err))))
		return nil, err
	}

	e.ordersPlaced.Add(ctx, 1)
	e.publishPlaced(ctx, order, lines)
	return toOrderDto(order, lines), nil
}

// publishPlaced runs after commit. A failed publish is logged; the order stands.
func (e *OrderEngine) publishPlaced(ctx context.Context, order *db.Order, lines []db.OrderLineRow) {
	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	items := make([]events.OrderPlacedItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, events.OrderPlacedItem{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.Price})
	}
	event := events.OrderPlacedEvent{
		Carrier:         carrier,
		OrderID:         order.ID,
		UserID:          order.UserID,
		TotalAmount:     order.TotalAmount,
		ShippingAddress: order.ShippingAddress,
		Items:           items,
		PlacedAt:        order.OrderDate,
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish OrderPlacedEvent", "order_id", order.ID, "error", err)
	}
}

func (e *OrderEngine) FindByID(ctx context.Context, userID uuid.UUID, id uuid.UUID) (*OrderDto, error) {
	order, lines, err := e.store.FindOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ordererrors.ErrAccessDenied
	}
	if lines == nil {
		lines = []db.OrderLineRow{}
	}
	return toOrderDto(order, lines), nil
}

func (e *OrderEngine) FindOrdersByUserID(ctx context.Context, userID uuid.UUID, offset, limit int32) ([]OrderDto, error) {
	orders, err := e.store.FindOrdersByUserID(ctx, db.FindOrdersByUserIDParams{UserID: userID, Offset: offset, Limit: limit})
	if err != nil {
		return nil, err
	}
	dtos := make([]OrderDto, 0, len(orders))
	for i := range orders {
		dtos = append(dtos, *toOrderDto(&orders[i], nil))
	}
	return dtos, nil
}

func insufficient(line db.CartLineRow) error {
	return &ordererrors.InsufficientStockError{
		ProductID: line.ProductID,
		Name:      line.Name,
		Available: line.StockQuantity,
		Requested: line.Quantity,
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ordererrors.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ordererrors.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
