package cartsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status describes how far the cache can be trusted.
type Status struct {
	// Online is false after the last call failed to reach the server.
	Online bool
	// Degraded is true after the server rejected a change that was then applied locally anyway.
	// It clears on the next successful refresh.
	Degraded bool
	// Pending is the number of intents waiting in the outbox.
	Pending  int
	LastSync time.Time
}

// Receipt is the outcome of a checkout. Local receipts carry no order: the cart was only cleared on this device.
type Receipt struct {
	Order *Order
	Local bool
}

// Synchronizer routes cart mutations either to the server or to the local cache.
//
// Without a token every change is local. With a token the change is sent to the server and the cache
// is replaced by the server's cart; if the server cannot be reached the change is applied locally and
// queued in the outbox, and if the server rejects it the change is applied locally and the cache is
// flagged as degraded. Mutation failures are never returned to the caller.
type Synchronizer struct {
	mu       sync.Mutex
	cache    *Cache
	gateway  Gateway
	tokens   TokenProvider
	outbox   Outbox
	logger   *slog.Logger
	online   bool
	degraded bool
	lastSync time.Time
}

func NewSynchronizer(cache *Cache, gateway Gateway, tokens TokenProvider, outbox Outbox, logger *slog.Logger) *Synchronizer {
	if outbox == nil {
		outbox = NewMemoryOutbox()
	}
	return &Synchronizer{
		cache:   cache,
		gateway: gateway,
		tokens:  tokens,
		outbox:  outbox,
		logger:  logger.With("component", "cartsync"),
		online:  true,
	}
}

// Add puts qty units of the product into the cart, merging with an existing line.
func (s *Synchronizer) Add(ctx context.Context, product Product, qty int32) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutate(ctx, Intent{Op: OpAdd, ProductID: product.ID, Quantity: qty}, func() {
		_ = s.cache.AddLocal(product, qty)
	})
	return nil
}

// Update sets the quantity of a line. A quantity of zero or less removes it.
func (s *Synchronizer) Update(ctx context.Context, productID int64, qty int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent := Intent{Op: OpUpdate, ProductID: productID, Quantity: qty}
	if qty <= 0 {
		intent = Intent{Op: OpRemove, ProductID: productID}
	}
	s.mutate(ctx, intent, func() {
		s.cache.UpdateLocal(productID, qty)
	})
}

func (s *Synchronizer) Remove(ctx context.Context, productID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutate(ctx, Intent{Op: OpRemove, ProductID: productID}, func() {
		s.cache.RemoveLocal(productID)
	})
}

func (s *Synchronizer) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mutate(ctx, Intent{Op: OpClear}, s.cache.ClearLocal)
}

// PlaceOrder checks out the cart. Without a token the cart is cleared locally and a Local receipt
// is returned. With a token every failure is returned and the cart is left as it was.
func (s *Synchronizer) PlaceOrder(ctx context.Context, shippingAddress string) (*Receipt, error) {
	shippingAddress = strings.TrimSpace(shippingAddress)
	if shippingAddress == "" {
		return nil, ErrMissingAddress
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens.Token() == "" {
		s.cache.ClearLocal()
		return &Receipt{Local: true}, nil
	}
	if err := s.flush(ctx); err != nil {
		return nil, fmt.Errorf("send pending cart changes: %w", err)
	}
	order, err := s.gateway.PlaceOrder(ctx, shippingAddress)
	if errors.Is(err, ErrMalformedResponse) {
		// the order was most likely placed, so show the cart the server now holds
		if refreshErr := s.refresh(ctx); refreshErr != nil {
			s.logger.WarnContext(ctx, "Failed to refresh cart after unreadable checkout reply", "error", refreshErr)
		}
		return nil, err
	}
	if err != nil {
		s.observe(err)
		return nil, err
	}
	s.online = true
	if err := s.refresh(ctx); err != nil {
		s.logger.WarnContext(ctx, "Failed to refresh cart after checkout", "order_id", order.ID, "error", err)
		s.cache.ClearLocal()
	}
	return &Receipt{Order: order}, nil
}

// GetProduct fetches a product from the server, falling back to the copy held by a cart line.
func (s *Synchronizer) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	product, err := s.gateway.GetProduct(ctx, productID)
	if err == nil {
		return product, nil
	}
	if cached, ok := s.cache.product(productID); ok {
		s.logger.DebugContext(ctx, "Serving product from cart cache", "product_id", productID, "error", err)
		return &cached, nil
	}
	return nil, err
}

// Reconcile sends queued intents and then replaces the cache with the server's cart.
// Without a token there is nothing to reconcile against.
func (s *Synchronizer) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens.Token() == "" {
		return nil
	}
	if err := s.flush(ctx); err != nil {
		return err
	}
	return s.refresh(ctx)
}

// Run reconciles every interval until ctx is done. The interval must be positive.
func (s *Synchronizer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("reconcile interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.logger.WarnContext(ctx, "Cart reconciliation failed", "pending", s.outbox.Len(), "error", err)
			}
		}
	}
}

func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Online:   s.online,
		Degraded: s.degraded,
		Pending:  s.outbox.Len(),
		LastSync: s.lastSync,
	}
}

// mutate takes exactly one of the paths described on Synchronizer. Callers hold s.mu.
func (s *Synchronizer) mutate(ctx context.Context, intent Intent, local func()) {
	if s.tokens.Token() == "" {
		local()
		return
	}
	if intent.Key == uuid.Nil {
		intent.Key = uuid.New()
	}
	if err := s.flush(ctx); err != nil {
		local()
		s.enqueue(ctx, intent)
		return
	}

	err := s.send(ctx, intent)
	switch {
	case err == nil:
		s.online = true
		if err := s.refresh(ctx); err != nil {
			s.logger.DebugContext(ctx, "Mirroring confirmed change locally", "intent", intent.String(), "error", err)
			local()
		}
	case errors.Is(err, ErrUnavailable):
		s.observe(err)
		local()
		s.enqueue(ctx, intent)
	default:
		s.logger.WarnContext(ctx, "Server rejected cart change, applying locally", "intent", intent.String(), "error", err)
		s.degraded = true
		local()
	}
}

// flush replays queued intents in order. It stops at the first transport failure and returns it;
// intents the server rejects are dropped.
func (s *Synchronizer) flush(ctx context.Context) error {
	pending, err := s.outbox.Pending()
	if err != nil {
		return fmt.Errorf("load outbox: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	sent := 0
	defer func() {
		if sent == 0 {
			return
		}
		if err := s.outbox.Ack(sent); err != nil {
			s.logger.ErrorContext(ctx, "Failed to acknowledge outbox intents", "count", sent, "error", err)
		}
	}()

	for _, intent := range pending {
		if err := s.send(ctx, intent); err != nil {
			if errors.Is(err, ErrUnavailable) {
				s.observe(err)
				return err
			}
			s.logger.WarnContext(ctx, "Dropping queued cart change rejected by server", "intent", intent.String(), "error", err)
			s.degraded = true
		}
		sent++
	}
	s.online = true
	s.logger.InfoContext(ctx, "Flushed queued cart changes", "count", sent)
	return nil
}

func (s *Synchronizer) send(ctx context.Context, intent Intent) error {
	switch intent.Op {
	case OpAdd:
		return s.gateway.AddItem(ctx, intent.Key, intent.ProductID, intent.Quantity)
	case OpUpdate:
		return s.gateway.UpdateItem(ctx, intent.ProductID, intent.Quantity)
	case OpRemove:
		return s.gateway.RemoveItem(ctx, intent.ProductID)
	case OpClear:
		return s.gateway.ClearCart(ctx)
	default:
		return fmt.Errorf("unknown cart operation %q", intent.Op)
	}
}

// refresh replaces the cache with the server's cart. On failure the cache is left as it was.
func (s *Synchronizer) refresh(ctx context.Context) error {
	remote, err := s.gateway.GetCart(ctx)
	if err != nil {
		s.observe(err)
		return err
	}
	lines := make([]Line, 0, len(remote))
	for _, r := range remote {
		lines = append(lines, r.line())
	}
	s.cache.ReplaceAll(lines)
	s.online = true
	s.degraded = false
	s.lastSync = time.Now()
	return nil
}

func (s *Synchronizer) enqueue(ctx context.Context, intent Intent) {
	intent.QueuedAt = time.Now()
	if err := s.outbox.Append(intent); err != nil {
		s.logger.ErrorContext(ctx, "Failed to queue cart change", "intent", intent.String(), "error", err)
		s.degraded = true
		return
	}
	s.logger.InfoContext(ctx, "Cart change queued until the server is reachable", "intent", intent.String(), "pending", s.outbox.Len())
}

func (s *Synchronizer) observe(err error) {
	if errors.Is(err, ErrUnavailable) {
		s.online = false
	}
}
