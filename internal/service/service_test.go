package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/quickgrocery/grocery/internal/store"
	"github.com/quickgrocery/grocery/internal/store/db"
	"github.com/quickgrocery/grocery/pkg/messaging"
	"github.com/quickgrocery/grocery/pkg/messaging/events"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// recordingPublisher keeps every published event and optionally fails.
type recordingPublisher struct {
	mu     sync.Mutex
	events []messaging.Event
	error  error
}

func (p *recordingPublisher) Publish(_ context.Context, event messaging.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.error != nil {
		return p.error
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) placed() []events.OrderPlacedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.OrderPlacedEvent, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.(events.OrderPlacedEvent))
	}
	return out
}

type fixture struct {
	store     *store.InMemoryStore
	publisher *recordingPublisher
	cart      *CartManager
	orders    *OrderEngine
}

func newFixture() *fixture {
	s := store.NewInMemoryStore()
	p := &recordingPublisher{}
	return &fixture{
		store:     s,
		publisher: p,
		cart:      NewCartManager(s),
		orders:    NewOrderEngine(s, p, discardLogger),
	}
}

func (f *fixture) product(t *testing.T, price string, stock int32) db.Product {
	t.Helper()
	return f.store.AddProduct(db.CreateProductParams{
		Name:          gofakeit.ProductName(),
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		Category:      gofakeit.ProductCategory(),
	})
}

func (f *fixture) stock(t *testing.T, id int64) int32 {
	t.Helper()
	p, err := f.store.FindProduct(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func (f *fixture) addToCart(t *testing.T, userID uuid.UUID, productID int64, qty int32) {
	t.Helper()
	_, err := f.cart.AddItem(context.Background(), userID, AddToCartDto{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
}

var errBroker = errors.New("broker unavailable")
