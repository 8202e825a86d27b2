package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ordererrors "github.com/quickgrocery/grocery/internal/errors"
	"github.com/quickgrocery/grocery/internal/store/db"
)

// InMemoryStore implements Store using maps guarded by a single lock.
// Transactions hold the write lock for their whole duration and are rolled back by restoring a snapshot.
type InMemoryStore struct {
	mu    sync.RWMutex
	state *memState
	now   func() time.Time
}

type memState struct {
	products      map[int64]db.Product
	carts         map[uuid.UUID]map[int64]db.CartItem
	orders        map[uuid.UUID]db.Order
	orderItems    map[uuid.UUID][]db.OrderItem
	requests      map[requestKey]int32
	nextProductID int64
}

type requestKey struct {
	userID uuid.UUID
	key    uuid.UUID
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		state: &memState{
			products:      make(map[int64]db.Product),
			carts:         make(map[uuid.UUID]map[int64]db.CartItem),
			orders:        make(map[uuid.UUID]db.Order),
			orderItems:    make(map[uuid.UUID][]db.OrderItem),
			requests:      make(map[requestKey]int32),
			nextProductID: 1,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

var _ Store = (*InMemoryStore)(nil)

// AddProduct inserts a product and returns it with its assigned ID.
func (s *InMemoryStore) AddProduct(params db.CreateProductParams) db.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	product := db.Product{
		ID:            s.state.nextProductID,
		Name:          params.Name,
		Description:   params.Description,
		Price:         params.Price,
		StockQuantity: params.StockQuantity,
		Category:      params.Category,
		ImageUrl:      params.ImageUrl,
		CreatedAt:     s.now(),
	}
	s.state.nextProductID++
	s.state.products[product.ID] = product
	return product
}

// UpdateProductPrice changes the catalog price. Existing orders keep the price they were placed at.
func (s *InMemoryStore) UpdateProductPrice(id int64, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.state.products[id]
	if !ok {
		return ordererrors.ErrProductNotFound
	}
	p.Price = price
	s.state.products[id] = p
	return nil
}

func (s *InMemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	err := fn(&memTx{state: s.state, now: s.now})
	if err == nil {
		// a cancelled request never commits
		err = ctx.Err()
	}
	if err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *InMemoryStore) FindProduct(_ context.Context, id int64) (*db.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.findProduct(id)
}

func (s *InMemoryStore) ListCart(_ context.Context, userID uuid.UUID) ([]db.CartLineRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listCart(userID, false), nil
}

func (s *InMemoryStore) DeleteCartItem(_ context.Context, userID uuid.UUID, productID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.deleteCartItem(userID, productID)
}

func (s *InMemoryStore) ClearCart(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clearCart(userID), nil
}

func (s *InMemoryStore) FindOrderByID(_ context.Context, id uuid.UUID) (*db.Order, []db.OrderLineRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.state.orders[id]
	if !ok {
		return nil, nil, ordererrors.ErrOrderNotFound
	}
	items := s.state.orderItems[id]
	lines := make([]db.OrderLineRow, 0, len(items))
	for _, item := range items {
		lines = append(lines, db.OrderLineRow{
			ID:        item.ID,
			OrderID:   item.OrderID,
			ProductID: item.ProductID,
			Name:      s.state.products[item.ProductID].Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	slices.SortFunc(lines, func(a, b db.OrderLineRow) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return &order, lines, nil
}

func (s *InMemoryStore) FindOrdersByUserID(_ context.Context, params db.FindOrdersByUserIDParams) ([]db.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]db.Order, 0)
	for _, o := range s.state.orders {
		if o.UserID == params.UserID {
			orders = append(orders, o)
		}
	}
	slices.SortFunc(orders, func(a, b db.Order) int {
		if c := b.OrderDate.Compare(a.OrderDate); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	start := min(int(params.Offset), len(orders))
	end := min(start+int(params.Limit), len(orders))
	return orders[start:end], nil
}

// memTx runs against the live state while the store's write lock is held.
type memTx struct {
	state *memState
	now   func() time.Time
}

var _ Tx = (*memTx)(nil)

func (t *memTx) FindProduct(_ context.Context, id int64) (*db.Product, error) {
	return t.state.findProduct(id)
}

func (t *memTx) ListCart(_ context.Context, userID uuid.UUID) ([]db.CartLineRow, error) {
	return t.state.listCart(userID, false), nil
}

func (t *memTx) LockCart(_ context.Context, userID uuid.UUID) ([]db.CartLineRow, error) {
	return t.state.listCart(userID, true), nil
}

func (t *memTx) DeleteCartItem(_ context.Context, userID uuid.UUID, productID int64) error {
	return t.state.deleteCartItem(userID, productID)
}

func (t *memTx) ClearCart(_ context.Context, userID uuid.UUID) (int64, error) {
	return t.state.clearCart(userID), nil
}

func (t *memTx) MergeCartItem(_ context.Context, params db.MergeCartItemParams) (int32, error) {
	product, ok := t.state.products[params.ProductID]
	if !ok {
		return 0, ordererrors.ErrInsufficientStock
	}
	cart := t.state.carts[params.UserID]
	item, exists := cart[params.ProductID]
	merged := item.Quantity + params.Quantity
	if merged > product.StockQuantity {
		return 0, ordererrors.ErrInsufficientStock
	}
	if cart == nil {
		cart = make(map[int64]db.CartItem)
		t.state.carts[params.UserID] = cart
	}
	if !exists {
		item = db.CartItem{UserID: params.UserID, ProductID: params.ProductID, AddedAt: t.now()}
	}
	item.Quantity = merged
	cart[params.ProductID] = item
	return merged, nil
}

func (t *memTx) CartItemQuantity(_ context.Context, userID uuid.UUID, productID int64) (int32, error) {
	item, ok := t.state.carts[userID][productID]
	if !ok {
		return 0, ordererrors.ErrCartItemNotFound
	}
	return item.Quantity, nil
}

func (t *memTx) SetCartItemQuantity(_ context.Context, params db.SetCartItemQuantityParams) error {
	item, ok := t.state.carts[params.UserID][params.ProductID]
	if !ok {
		return ordererrors.ErrCartItemNotFound
	}
	item.Quantity = params.Quantity
	t.state.carts[params.UserID][params.ProductID] = item
	return nil
}

func (t *memTx) ClaimRequest(_ context.Context, userID, key uuid.UUID) (bool, error) {
	k := requestKey{userID: userID, key: key}
	if _, ok := t.state.requests[k]; ok {
		return false, nil
	}
	t.state.requests[k] = 0
	return true, nil
}

func (t *memTx) CompleteRequest(_ context.Context, userID, key uuid.UUID, quantity int32) error {
	t.state.requests[requestKey{userID: userID, key: key}] = quantity
	return nil
}

func (t *memTx) RequestResult(_ context.Context, userID, key uuid.UUID) (int32, error) {
	quantity, ok := t.state.requests[requestKey{userID: userID, key: key}]
	if !ok {
		return 0, fmt.Errorf("request %s was never claimed", key)
	}
	return quantity, nil
}

func (t *memTx) CreateOrder(_ context.Context, params db.CreateOrderParams) (*db.Order, error) {
	order := db.Order{
		ID:              params.ID,
		UserID:          params.UserID,
		TotalAmount:     params.TotalAmount,
		Status:          params.Status,
		ShippingAddress: params.ShippingAddress,
		OrderDate:       t.now(),
	}
	t.state.orders[order.ID] = order
	return &order, nil
}

func (t *memTx) CreateOrderItem(_ context.Context, params db.CreateOrderItemParams) (*db.OrderItem, error) {
	if _, ok := t.state.orders[params.OrderID]; !ok {
		return nil, ordererrors.ErrOrderNotFound
	}
	item := db.OrderItem(params)
	t.state.orderItems[params.OrderID] = append(t.state.orderItems[params.OrderID], item)
	return &item, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID int64, quantity int32) error {
	product, ok := t.state.products[productID]
	if !ok || product.StockQuantity < quantity {
		return ordererrors.ErrInsufficientStock
	}
	product.StockQuantity -= quantity
	t.state.products[productID] = product
	return nil
}

func (s *memState) findProduct(id int64) (*db.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, ordererrors.ErrProductNotFound
	}
	return &p, nil
}

func (s *memState) listCart(userID uuid.UUID, byProduct bool) []db.CartLineRow {
	items := slices.Collect(maps.Values(s.carts[userID]))
	slices.SortFunc(items, func(a, b db.CartItem) int {
		if !byProduct {
			if c := a.AddedAt.Compare(b.AddedAt); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	lines := make([]db.CartLineRow, 0, len(items))
	for _, item := range items {
		p := s.products[item.ProductID]
		lines = append(lines, db.CartLineRow{
			ProductID:     item.ProductID,
			Name:          p.Name,
			Price:         p.Price,
			Quantity:      item.Quantity,
			StockQuantity: p.StockQuantity,
		})
	}
	return lines
}

func (s *memState) deleteCartItem(userID uuid.UUID, productID int64) error {
	if _, ok := s.carts[userID][productID]; !ok {
		return ordererrors.ErrCartItemNotFound
	}
	delete(s.carts[userID], productID)
	return nil
}

func (s *memState) clearCart(userID uuid.UUID) int64 {
	n := int64(len(s.carts[userID]))
	delete(s.carts, userID)
	return n
}

func (s *memState) clone() *memState {
	c := &memState{
		products:      maps.Clone(s.products),
		carts:         make(map[uuid.UUID]map[int64]db.CartItem, len(s.carts)),
		orders:        maps.Clone(s.orders),
		orderItems:    make(map[uuid.UUID][]db.OrderItem, len(s.orderItems)),
		requests:      maps.Clone(s.requests),
		nextProductID: s.nextProductID,
	}
	for user, cart := range s.carts {
		c.carts[user] = maps.Clone(cart)
	}
	for id, items := range s.orderItems {
		c.orderItems[id] = slices.Clone(items)
	}
	return c
}
