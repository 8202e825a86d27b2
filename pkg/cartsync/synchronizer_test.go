package cartsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

var (
	errConnRefused = fmt.Errorf("%w: dial tcp: connection refused", ErrUnavailable)
	errTimeout     = fmt.Errorf("%w: context deadline exceeded (Client.Timeout exceeded while awaiting headers)", ErrUnavailable)
)

// fakeGateway is an in-process cart server.
type fakeGateway struct {
	mu       sync.Mutex
	products map[int64]Product
	stock    map[int64]int32
	lines    []RemoteLine
	calls    []string
	applied  map[uuid.UUID]bool

	down           bool  // every call fails with a transport error
	cartDown       bool  // only GetCart fails
	reject         error // every mutation is rejected with this error
	lostReply      bool  // adds are committed but the client times out waiting for the reply
	garbledReceipt bool  // orders are placed but the reply cannot be decoded
}

func newFakeGateway(products ...Product) *fakeGateway {
	g := &fakeGateway{products: map[int64]Product{}, stock: map[int64]int32{}, applied: map[uuid.UUID]bool{}}
	for _, p := range products {
		g.products[p.ID] = p
		g.stock[p.ID] = 10
	}
	return g
}

func (g *fakeGateway) call(name string) error {
	g.calls = append(g.calls, name)
	if g.down {
		return errConnRefused
	}
	return nil
}

func (g *fakeGateway) mutation(name string) error {
	if err := g.call(name); err != nil {
		return err
	}
	return g.reject
}

func (g *fakeGateway) indexOf(productID int64) int {
	return slices.IndexFunc(g.lines, func(l RemoteLine) bool { return l.ProductID == productID })
}

func (g *fakeGateway) GetCart(context.Context) ([]RemoteLine, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call("get"); err != nil {
		return nil, err
	}
	if g.cartDown {
		return nil, &APIError{Status: http.StatusBadGateway}
	}
	return slices.Clone(g.lines), nil
}

func (g *fakeGateway) AddItem(_ context.Context, key uuid.UUID, productID int64, qty int32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.mutation(fmt.Sprintf("add %d %d", productID, qty)); err != nil {
		return err
	}
	if err := g.merge(key, productID, qty); err != nil {
		return err
	}
	if g.lostReply {
		return errTimeout
	}
	return nil
}

func (g *fakeGateway) merge(key uuid.UUID, productID int64, qty int32) error {
	if key != uuid.Nil && g.applied[key] {
		return nil
	}
	p, ok := g.products[productID]
	if !ok {
		return &APIError{Status: http.StatusNotFound, Message: "Product not found."}
	}
	if key != uuid.Nil {
		g.applied[key] = true
	}
	if i := g.indexOf(productID); i >= 0 {
		g.lines[i].Quantity += qty
		return nil
	}
	g.lines = append(g.lines, RemoteLine{ProductID: p.ID, Name: p.Name, Price: p.Price, Quantity: qty, AvailableStock: g.stock[p.ID]})
	return nil
}

func (g *fakeGateway) UpdateItem(_ context.Context, productID int64, qty int32) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.mutation(fmt.Sprintf("update %d %d", productID, qty)); err != nil {
		return err
	}
	i := g.indexOf(productID)
	if i < 0 {
		return &APIError{Status: http.StatusNotFound, Message: "Item not found in cart."}
	}
	g.lines[i].Quantity = qty
	return nil
}

func (g *fakeGateway) RemoveItem(_ context.Context, productID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.mutation(fmt.Sprintf("remove %d", productID)); err != nil {
		return err
	}
	i := g.indexOf(productID)
	if i < 0 {
		return &APIError{Status: http.StatusNotFound, Message: "Item not found in cart."}
	}
	g.lines = slices.Delete(g.lines, i, i+1)
	return nil
}

func (g *fakeGateway) ClearCart(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.mutation("clear"); err != nil {
		return err
	}
	g.lines = nil
	return nil
}

func (g *fakeGateway) PlaceOrder(_ context.Context, address string) (*Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.mutation("order"); err != nil {
		return nil, err
	}
	if len(g.lines) == 0 {
		return nil, &APIError{Status: http.StatusBadRequest, Message: "Cannot place an order with an empty cart."}
	}
	total := decimal.Zero
	for _, l := range g.lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt32(l.Quantity)))
	}
	g.lines = nil
	if g.garbledReceipt {
		return nil, fmt.Errorf("%w: decode POST /api/orders: unexpected EOF", ErrMalformedResponse)
	}
	return &Order{ID: uuid.New(), OrderDate: time.Now(), TotalAmount: total, Status: "pending", ShippingAddress: address}, nil
}

func (g *fakeGateway) GetProduct(_ context.Context, productID int64) (*Product, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.call(fmt.Sprintf("product %d", productID)); err != nil {
		return nil, err
	}
	p, ok := g.products[productID]
	if !ok {
		return nil, &APIError{Status: http.StatusNotFound, Message: "Product not found."}
	}
	return &p, nil
}

func (g *fakeGateway) set(f func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	f(g)
}

func (g *fakeGateway) quantity(productID int64) int32 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i := g.indexOf(productID); i >= 0 {
		return g.lines[i].Quantity
	}
	return 0
}

func (g *fakeGateway) callLog() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

type syncFixture struct {
	cache   *Cache
	gateway *fakeGateway
	tokens  *MemoryTokenStore
	outbox  *MemoryOutbox
	sync    *Synchronizer
}

func newSyncFixture(token string) *syncFixture {
	f := &syncFixture{
		cache:   NewCache(),
		gateway: newFakeGateway(apples, bread, cheddar),
		tokens:  NewMemoryTokenStore(token),
		outbox:  NewMemoryOutbox(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.sync = NewSynchronizer(f.cache, f.gateway, f.tokens, f.outbox, logger)
	return f
}

func TestSynchronizer_Unauthenticated(t *testing.T) {
	// given
	ctx := context.Background()
	f := newSyncFixture("")

	// when
	require.NoError(t, f.sync.Add(ctx, apples, 1))
	require.NoError(t, f.sync.Add(ctx, apples, 1))
	require.NoError(t, f.sync.Add(ctx, bread, 3))
	f.sync.Update(ctx, bread.ID, 1)
	f.sync.Remove(ctx, cheddar.ID)

	// then
	assert.Equal(t, int32(2), f.cache.Quantity(apples.ID))
	assert.Equal(t, int32(1), f.cache.Quantity(bread.ID))
	assert.Empty(t, f.gateway.callLog(), "no request is sent without a token")
	assert.Zero(t, f.outbox.Len())
}

func TestSynchronizer_AuthenticatedReplacesCacheFromServer(t *testing.T) {
	// given
	ctx := context.Background()
	f := newSyncFixture("token")

	// when
	require.NoError(t, f.sync.Add(ctx, apples, 1))
	require.NoError(t, f.sync.Add(ctx, apples, 1))

	// then
	assert.Equal(t, int32(2), f.gateway.quantity(apples.ID))
	lines := f.cache.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, int32(2), lines[0].Quantity)
	assert.Equal(t, int32(10), lines[0].AvailableStock, "server lines carry stock")
	assert.Equal(t, []string{"add 1 1", "get", "add 1 1", "get"}, f.gateway.callLog())

	status := f.sync.Status()
	assert.True(t, status.Online)
	assert.False(t, status.Degraded)
	assert.False(t, status.LastSync.IsZero())
}

func TestSynchronizer_UpdateRemoveClear(t *testing.T) {
	tests := []struct {
		name      string
		act       func(ctx context.Context, s *Synchronizer)
		wantCalls []string
		wantLines []int64
	}{
		{
			name:      "update sets quantity",
			act:       func(ctx context.Context, s *Synchronizer) { s.Update(ctx, apples.ID, 4) },
			wantCalls: []string{"update 1 4", "get"},
			wantLines: []int64{1, 2},
		},
		{
			name:      "update to zero removes on the server",
			act:       func(ctx context.Context, s *Synchronizer) { s.Update(ctx, apples.ID, 0) },
			wantCalls: []string{"remove 1", "get"},
			wantLines: []int64{2},
		},
		{
			name:      "remove",
			act:       func(ctx context.Context, s *Synchronizer) { s.Remove(ctx, bread.ID) },
			wantCalls: []string{"remove 2", "get"},
			wantLines: []int64{1},
		},
		{
			name:      "clear",
			act:       func(ctx context.Context, s *Synchronizer) { s.Clear(ctx) },
			wantCalls: []string{"clear", "get"},
			wantLines: []int64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// given
			ctx := context.Background()
			f := newSyncFixture("token")
			require.NoError(t, f.sync.Add(ctx, apples, 2))
			require.NoError(t, f.sync.Add(ctx, bread, 1))
			f.gateway.set(func(g *fakeGateway) { g.calls = nil })

			// when
			tt.act(ctx, f.sync)

			// then
			assert.Equal(t, tt.wantCalls, f.gateway.callLog())
			assert.Equal(t, tt.wantLines, productIDs(f.cache.Lines()))
		})
	}
}

func TestSynchronizer_DegradedAddAppliesLocally(t *testing.T) {
	tests := []struct {
		name        string
		breakServer func(g *fakeGateway)
		wantPending int
		wantDegrade bool
		wantOnline  bool
	}{
		{
			name:        "server unreachable queues the change",
			breakServer: func(g *fakeGateway) { g.down = true },
			wantPending: 1,
			wantOnline:  false,
		},
		{
			name: "server rejection is not queued",
			breakServer: func(g *fakeGateway) {
				g.reject = &APIError{Status: http.StatusBadRequest, Message: "Not enough stock for Apples. Available: 0"}
			},
			wantPending: 0,
			wantDegrade: true,
			wantOnline:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// given
			ctx := context.Background()
			f := newSyncFixture("token")
			f.gateway.set(tt.breakServer)

			// when
			err := f.sync.Add(ctx, apples, 1)

			// then
			require.NoError(t, err, "cart mutation failures are not surfaced")
			assert.Equal(t, int32(1), f.cache.Quantity(apples.ID))
			assert.Equal(t, 1, f.cache.Len())

			status := f.sync.Status()
			assert.Equal(t, tt.wantPending, status.Pending)
			assert.Equal(t, tt.wantDegrade, status.Degraded)
			assert.Equal(t, tt.wantOnline, status.Online)
		})
	}
}

func TestSynchronizer_RefreshFailureMirrorsConfirmedChange(t *testing.T) {
	// given
	ctx := context.Background()
	f := newSyncFixture("token")
	f.gateway.set(func(g *fakeGateway) { g.cartDown = true })

	// when
	require.NoError(t, f.sync.Add(ctx, apples, 2))

	// then
	assert.Equal(t, int32(2), f.gateway.quantity(apples.ID))
	assert.Equal(t, int32(2), f.cache.Quantity(apples.ID))
	assert.Zero(t, f.outbox.Len(), "a confirmed change is not queued")
}

func TestSynchronizer_OutboxFlushesInOrderBeforeNextMutation(t *testing.T) {
	// given
	ctx := context.Background()
	f := newSyncFixture("token")
	f.gateway.set(func(g *fakeGateway) { g.down = true })
	require.NoError(t, f.sync.Add(ctx, apples, 2))
	f.sync.Update(ctx, apples.ID, 5)
	require.Equal(t, 2, f.outbox.Len())
	assert.Equal(t, int32(5), f.cache.Quantity(apples.ID))

	// when the server comes back
	f.gateway.set(func(g *fakeGateway) { g.down = false; g.calls = nil })
	require.NoError(t, f.sync.Add(ctx, bread, 1))

	// then
	assert.Equal(t, []string{"add 1 2", "update 1 5", "add 2 1", "get"}, f.gateway.callLog())
	assert.Equal(t, int32(5), f.gateway.quantity(apples.ID))
	assert.Equal(t, int32(1), f.gateway.quantity(bread.ID))
	assert.Equal(t, []int64{1, 2}, productIDs(f.cache.Lines()))
	assert.Zero(t, f.sync.Status().Pending)
	assert.True(t, f.sync.Status().Online)
}

func TestSynchronizer_OutboxKeepsOrderWhileStillOffline(t *testing.T) {
	// given
	ctx := context.Background()
	f := newSyncFixture("token")
	f.gateway.set(func(g *fakeGateway) { g.down = true })
	require.NoError(t, f.sync.Add(ctx, apples, 1))

	// when
	f.sync.Remove(ctx, apples.ID)

	// then
	pending, err := f.outbox.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, OpAdd, pending[0].Op)
	assert.Equal(t, OpRemove, pending[1].Op)
	assert.False(t, pending[1].QueuedAt.IsZero())
	assert.Zero(t, f.cache.Len())
}

func TestSynchronizer_ReplayedAddAfterLostReplyIsCountedOnce(t *testing.T) {
	// given the server commits the add but the reply never arrives
	ctx := context.Background()
	f := newSyncFixture("token")
	f.gateway.set(func(g *fakeGateway) { g.lostReply = true })
	require.NoError(t, f.sync.Add(ctx, bread, 1))
	require.Equal(t, 1, f.outbox.Len())
	require.Equal(t, int32(1), f.gateway.quantity(bread.ID))
	pending, err := f.outbox.Pending()
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, pending[0].Key)

	// when the connection recovers
	f.gateway.set(func(g *fakeGateway) { g.lostReply = false; g.calls = nil })
	err = f.sync.Reconcile(ctx)

	// then
	require.NoError(t, err)
	assert.Equal(t, []string{"add 2 1", "get"}, f.gateway.callLog())
	assert.Equal(t, int32(1), f.gateway.quantity(bread.ID), "server cart double-counted")
	assert.Equal(t, int32(1), f.cache.Quantity(bread.ID))
	assert.Zero(t, f.outbox.Len())
}

func TestSynchronizer_DistinctAddsGetDistinctKeys(t *testing.T) {
	// given
	ctx := context.Background()
	f := newSyncFixture("token")
	f.gateway.set(func(g *fakeGateway) { g.down = true })

	// when
	require.NoError(t, f.sync.Add(ctx, bread, 1))
	require.NoError(t, f.sync.Add(ctx, bread, 1))
	f.gateway.set(func(g *fakeGateway) { g.down = false })
	require.NoError(t, f.sync.Reconcile(ctx))

	// then
	assert.Equal(t, int32(2), f.gateway.quantity(bread.ID))
	assert.Equal(t, int32(2), f.cache.Quantity(bread.ID))
}

func TestSynchronizer_RunRejectsNonPositiveInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		t.Run(interval.String(), func(t *testing.T) {
			// given
			f := newSyncFixture("token")

			// when
			err := f.sync.Run(context.Background(), interval)

			// then
			assert.ErrorContains(t, err, "reconcile interval must be positive")
		})
	}
}

func TestSynchronizer_FlushDropsRejectedIntents(t *testing.T) {
	// given
	ctx := context.Background()
	f := newSyncFixture("token")
	require.NoError(t, f.outbox.Append(Intent{Op: OpRemove, ProductID: cheddar.ID}))
	require.NoError(t, f.outbox.Append(Intent{Op: OpAdd, ProductID: bread.ID, Quantity: 2}))

	// when
	err := f.sync.Reconcile(ctx)

	// then
	require.NoError(t, err)
	assert.Equal(t, []string{"remove 3", "add 2 2", "get"}, f.gateway.callLog())
	assert.Zero(t, f.outbox.Len())
	assert.Equal(t, []int64{2}, productIDs(f.cache.Lines()))
	assert.False(t, f.sync.Status().Degraded, "the refresh clears the degraded flag")
}

func TestSynchronizer_Reconcile(t *testing.T) {
	t.Run("replaces cache with server cart", func(t *testing.T) {
		// given
		ctx := context.Background()
		f := newSyncFixture("token")
		require.NoError(t, f.cache.AddLocal(cheddar, 9))
		f.gateway.set(func(g *fakeGateway) {
			g.lines = []RemoteLine{{ProductID: bread.ID, Name: bread.Name, Price: bread.Price, Quantity: 2, AvailableStock: 4}}
		})

		// when
		err := f.sync.Reconcile(ctx)

		// then
		require.NoError(t, err)
		want := []Line{{Product: Product{ID: bread.ID, Name: bread.Name, Price: bread.Price}, Quantity: 2, AvailableStock: 4}}
		if diff := cmp.Diff(want, f.cache.Lines(), decimalComparer); diff != "" {
			t.Errorf("cache mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("failure keeps cached state", func(t *testing.T) {
		// given
		ctx := context.Background()
		f := newSyncFixture("token")
		require.NoError(t, f.cache.AddLocal(cheddar, 9))
		f.gateway.set(func(g *fakeGateway) { g.down = true })

		// when
		err := f.sync.Reconcile(ctx)

		// then
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, int32(9), f.cache.Quantity(cheddar.ID))
		assert.False(t, f.sync.Status().Online)
	})

	t.Run("no token is a no-op", func(t *testing.T) {
		// given
		f := newSyncFixture("")
		require.NoError(t, f.cache.AddLocal(cheddar, 1))

		// when
		err := f.sync.Reconcile(context.Background())

		// then
		require.NoError(t, err)
		assert.Empty(t, f.gateway.callLog())
		assert.Equal(t, 1, f.cache.Len())
	})
}

func TestSynchronizer_PlaceOrder(t *testing.T) {
	t.Run("authenticated checkout empties the cart", func(t *testing.T) {
		// given
		ctx := context.Background()
		f := newSyncFixture("token")
		require.NoError(t, f.sync.Add(ctx, apples, 2))

		// when
		receipt, err := f.sync.PlaceOrder(ctx, "  1 Market St  ")

		// then
		require.NoError(t, err)
		require.NotNil(t, receipt.Order)
		assert.False(t, receipt.Local)
		assert.Equal(t, "4.98", receipt.Order.TotalAmount.StringFixed(2))
		assert.Equal(t, "1 Market St", receipt.Order.ShippingAddress)
		assert.Zero(t, f.cache.Len())
	})

	t.Run("unauthenticated checkout clears locally", func(t *testing.T) {
		// given
		ctx := context.Background()
		f := newSyncFixture("")
		require.NoError(t, f.sync.Add(ctx, apples, 2))

		// when
		receipt, err := f.sync.PlaceOrder(ctx, "1 Market St")

		// then
		require.NoError(t, err)
		assert.True(t, receipt.Local)
		assert.Nil(t, receipt.Order)
		assert.Zero(t, f.cache.Len())
		assert.Empty(t, f.gateway.callLog())
	})

	t.Run("missing address", func(t *testing.T) {
		f := newSyncFixture("token")
		_, err := f.sync.PlaceOrder(context.Background(), "   ")
		assert.ErrorIs(t, err, ErrMissingAddress)
		assert.Empty(t, f.gateway.callLog())
	})

	t.Run("rejection leaves the cart untouched", func(t *testing.T) {
		// given
		ctx := context.Background()
		f := newSyncFixture("token")
		require.NoError(t, f.sync.Add(ctx, apples, 2))
		f.gateway.set(func(g *fakeGateway) {
			g.reject = &APIError{Status: http.StatusBadRequest, Message: "Not enough stock for Apples. Available: 1"}
		})

		// when
		receipt, err := f.sync.PlaceOrder(ctx, "1 Market St")

		// then
		assert.Nil(t, receipt)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "Not enough stock for Apples. Available: 1", apiErr.Message)
		assert.ErrorIs(t, err, ErrRejected)
		assert.Equal(t, int32(2), f.cache.Quantity(apples.ID))
	})

	t.Run("unreachable server is reported", func(t *testing.T) {
		// given
		ctx := context.Background()
		f := newSyncFixture("token")
		require.NoError(t, f.sync.Add(ctx, apples, 1))
		f.gateway.set(func(g *fakeGateway) { g.down = true })

		// when
		_, err := f.sync.PlaceOrder(ctx, "1 Market St")

		// then
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 1, f.cache.Len())
	})

	t.Run("pending changes are sent first", func(t *testing.T) {
		// given
		ctx := context.Background()
		f := newSyncFixture("token")
		f.gateway.set(func(g *fakeGateway) { g.down = true })
		require.NoError(t, f.sync.Add(ctx, apples, 1))
		f.gateway.set(func(g *fakeGateway) { g.down = false; g.calls = nil })

		// when
		receipt, err := f.sync.PlaceOrder(ctx, "1 Market St")

		// then
		require.NoError(t, err)
		assert.Equal(t, "2.49", receipt.Order.TotalAmount.StringFixed(2))
		assert.Equal(t, []string{"add 1 1", "order", "get"}, f.gateway.callLog())
	})

	t.Run("unreadable reply refreshes the cart and is not unavailable", func(t *testing.T) {
		// given
		ctx := context.Background()
		f := newSyncFixture("token")
		require.NoError(t, f.sync.Add(ctx, apples, 2))
		f.gateway.set(func(g *fakeGateway) { g.garbledReceipt = true; g.calls = nil })

		// when
		receipt, err := f.sync.PlaceOrder(ctx, "1 Market St")

		// then
		assert.Nil(t, receipt)
		assert.ErrorIs(t, err, ErrMalformedResponse)
		assert.NotErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, []string{"order", "get"}, f.gateway.callLog())
		assert.Zero(t, f.cache.Len(), "the cache shows the cart the server emptied")
		assert.True(t, f.sync.Status().Online)
	})

	t.Run("refresh failure after checkout clears locally", func(t *testing.T) {
		// given
		ctx := context.Background()
		f := newSyncFixture("token")
		require.NoError(t, f.sync.Add(ctx, apples, 1))
		f.gateway.set(func(g *fakeGateway) { g.cartDown = true })

		// when
		receipt, err := f.sync.PlaceOrder(ctx, "1 Market St")

		// then
		require.NoError(t, err)
		assert.NotNil(t, receipt.Order)
		assert.Zero(t, f.cache.Len())
	})
}

func TestSynchronizer_GetProduct(t *testing.T) {
	tests := []struct {
		name      string
		productID int64
		down      bool
		cached    bool
		want      string
		err       error
	}{
		{name: "from server", productID: apples.ID, want: "Apples"},
		{name: "server down falls back to cart line", productID: apples.ID, down: true, cached: true, want: "Apples"},
		{name: "server down and not cached", productID: apples.ID, down: true, err: ErrUnavailable},
		{name: "unknown product", productID: 42, err: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// given
			f := newSyncFixture("token")
			if tt.cached {
				require.NoError(t, f.cache.AddLocal(apples, 1))
			}
			f.gateway.set(func(g *fakeGateway) { g.down = tt.down })

			// when
			product, err := f.sync.GetProduct(context.Background(), tt.productID)

			// then
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, product.Name)
		})
	}
}

func TestSynchronizer_ConcurrentAddsAreSerialized(t *testing.T) {
	// given
	ctx := context.Background()
	f := newSyncFixture("token")
	const workers = 20

	// when
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.sync.Add(ctx, apples, 1)
		}()
	}
	wg.Wait()

	// then
	assert.Equal(t, int32(workers), f.gateway.quantity(apples.ID))
	assert.Equal(t, int32(workers), f.cache.Quantity(apples.ID))
}

func TestSynchronizer_RunReconcilesUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	// given
	f := newSyncFixture("token")
	f.gateway.set(func(g *fakeGateway) { g.down = true })
	require.NoError(t, f.sync.Add(context.Background(), apples, 3))
	f.gateway.set(func(g *fakeGateway) { g.down = false })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	// when
	go func() { done <- f.sync.Run(ctx, 5*time.Millisecond) }()

	// then
	require.Eventually(t, func() bool {
		return f.gateway.quantity(apples.ID) == 3 && f.sync.Status().Pending == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
