package rest

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/quickgrocery/grocery/internal/service"
	"github.com/quickgrocery/grocery/pkg/web"
)

// IdempotencyKeyHeader carries the client-generated key that deduplicates a replayed add.
const IdempotencyKeyHeader = "Idempotency-Key"

// GetCart returns the caller's cart joined with live price and stock.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}
	lines, err := h.cart.GetCart(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, mLogger, err, "Failed to fetch cart")
		return
	}
	mLogger.DebugContext(r.Context(), "Cart retrieved", "lines", len(lines))
	web.RespondJSON(w, mLogger, http.StatusOK, lines)
}

// AddItem merges the requested quantity into the caller's cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}
	var req service.AddToCartDto
	if !h.decodeAndValidate(w, r, mLogger, &req, "Product ID and a positive quantity are required.") {
		return
	}
	if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
		parsed, err := uuid.Parse(key)
		if err != nil {
			mLogger.WarnContext(r.Context(), "Invalid idempotency key", "key", key)
			web.RespondError(w, mLogger, http.StatusBadRequest, "Idempotency-Key must be a UUID.")
			return
		}
		req.RequestKey = parsed
	}
	merged, err := h.cart.AddItem(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, r, mLogger, err, "Failed to add item to cart")
		return
	}
	mLogger.InfoContext(r.Context(), "Item added to cart", "product_id", req.ProductID, "quantity", merged)
	web.RespondMessage(w, mLogger, http.StatusOK, "Item added to cart successfully.")
}

// UpdateItem sets the quantity of a line already in the cart.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	productID, ok := web.ParseInt64(w, r, mLogger, "productId")
	if !ok {
		return
	}
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}
	var req service.UpdateCartItemDto
	if !h.decodeAndValidate(w, r, mLogger, &req, "A positive quantity is required.") {
		return
	}
	if err := h.cart.UpdateItem(r.Context(), userID, productID, req.Quantity); err != nil {
		respondServiceError(w, r, mLogger, err, "Failed to update cart item")
		return
	}
	mLogger.InfoContext(r.Context(), "Cart item updated", "product_id", productID, "quantity", req.Quantity)
	web.RespondMessage(w, mLogger, http.StatusOK, "Cart item quantity updated successfully.")
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	productID, ok := web.ParseInt64(w, r, mLogger, "productId")
	if !ok {
		return
	}
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}
	if err := h.cart.RemoveItem(r.Context(), userID, productID); err != nil {
		respondServiceError(w, r, mLogger, err, "Failed to remove cart item")
		return
	}
	web.RespondMessage(w, mLogger, http.StatusOK, "Item removed from cart successfully.")
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}
	if err := h.cart.Clear(r.Context(), userID); err != nil {
		respondServiceError(w, r, mLogger, err, "Failed to clear cart")
		return
	}
	web.RespondMessage(w, mLogger, http.StatusOK, "Cart cleared successfully.")
}
