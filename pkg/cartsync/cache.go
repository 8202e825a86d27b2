// Package cartsync keeps a client-side copy of the shopping cart consistent with the cart API.
//
// A Cache holds what the user's cart looks like right now. A Synchronizer decides for every mutation
// whether it goes to the server, whose answer then replaces the cache, or is applied to the cache alone.
package cartsync

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"
)

// Product is the part of a catalog product the cart displays.
type Product struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
}

// Line is one product and its quantity. AvailableStock is only known for lines confirmed by the server.
type Line struct {
	Product        Product `json:"product"`
	Quantity       int32   `json:"quantity"`
	AvailableStock int32   `json:"available_stock,omitempty"`
}

// Cache is an in-memory projection of the cart. It never performs I/O.
// At most one line exists per product; lines keep the order they were first added in.
// The zero value is an empty cache ready to use.
type Cache struct {
	mu          sync.RWMutex
	lines       []Line
	subscribers map[chan []Line]struct{}
}

func NewCache() *Cache {
	return &Cache{subscribers: make(map[chan []Line]struct{})}
}

// AddLocal merges qty into the product's line or appends a new line.
func (c *Cache) AddLocal(product Product, qty int32) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if i := c.indexOf(product.ID); i >= 0 {
		c.lines[i].Quantity += qty
	} else {
		c.lines = append(c.lines, Line{Product: product, Quantity: qty})
	}
	c.publish()
	return nil
}

// UpdateLocal sets the quantity of an existing line; qty <= 0 removes it. An absent line is left alone.
func (c *Cache) UpdateLocal(productID int64, qty int32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(productID)
	if i < 0 {
		return
	}
	if qty <= 0 {
		c.lines = slices.Delete(c.lines, i, i+1)
	} else {
		c.lines[i].Quantity = qty
	}
	c.publish()
}

// RemoveLocal deletes the product's line if present.
func (c *Cache) RemoveLocal(productID int64) {
	c.UpdateLocal(productID, 0)
}

func (c *Cache) ClearLocal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
	c.publish()
}

// ReplaceAll overwrites the cache with an authoritative snapshot.
func (c *Cache) ReplaceAll(lines []Line) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = slices.Clone(lines)
	c.publish()
}

// Lines returns a copy of the current lines.
func (c *Cache) Lines() []Line {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.lines)
}

// Quantity returns the quantity of the product's line, or 0 when it is not in the cart.
func (c *Cache) Quantity(productID int64) int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(productID); i >= 0 {
		return c.lines[i].Quantity
	}
	return 0
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines)
}

// product returns the cached product of a line.
func (c *Cache) product(productID int64) (Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexOf(productID); i >= 0 {
		return c.lines[i].Product, true
	}
	return Product{}, false
}

// Subscribe returns a channel that receives a snapshot after every change, starting with the current one.
// A slow reader only ever sees the latest snapshot. Call the returned func to unsubscribe.
func (c *Cache) Subscribe() (<-chan []Line, func()) {
	ch := make(chan []Line, 1)
	c.mu.Lock()
	if c.subscribers == nil {
		c.subscribers = make(map[chan []Line]struct{})
	}
	c.subscribers[ch] = struct{}{}
	ch <- slices.Clone(c.lines)
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, ch)
			close(ch)
			c.mu.Unlock()
		})
	}
}

func (c *Cache) indexOf(productID int64) int {
	return slices.IndexFunc(c.lines, func(l Line) bool { return l.Product.ID == productID })
}

// publish must be called with the write lock held.
func (c *Cache) publish() {
	for ch := range c.subscribers {
		snapshot := slices.Clone(c.lines)
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
