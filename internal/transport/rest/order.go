package rest

import (
	"log/slog"
	"net/http"

	"github.com/quickgrocery/grocery/internal/service"
	"github.com/quickgrocery/grocery/pkg/web"
)

// PlaceOrderResponse is the body of a successful checkout.
type PlaceOrderResponse struct {
	Message string            `json:"message"`
	Order   *service.OrderDto `json:"order"`
}

// PlaceOrder converts the caller's cart into an order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}
	var req service.PlaceOrderDto
	if !h.decodeAndValidate(w, r, mLogger, &req, "Shipping address is required to place an order.") {
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, r, mLogger, err, "Failed to place order")
		return
	}
	// the checkout response carries the header only
	header := *order
	header.Items = nil
	mLogger.InfoContext(r.Context(), "Order placed", slog.String("order_id", order.ID.String()), "total", order.TotalAmount)
	web.RespondJSON(w, mLogger, http.StatusCreated, PlaceOrderResponse{Message: "Order placed successfully!", Order: &header})
}

// FindOrdersByUserID lists the caller's order headers, newest first.
func (h *Handler) FindOrdersByUserID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	offset, ok := web.ParseQueryInt32(r, w, mLogger, "offset", 0, web.Between(0, 1<<31-1))
	if !ok {
		return
	}
	limit, ok := web.ParseQueryInt32(r, w, mLogger, "limit", defaultOrdersLimit, web.Between(1, maxOrdersLimit))
	if !ok {
		return
	}
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}

	list, err := h.orders.FindOrdersByUserID(r.Context(), userID, offset, limit)
	if err != nil {
		respondServiceError(w, r, mLogger, err, "Failed to fetch orders")
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully retrieved order list", "count", len(list))
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// FindOrderByID returns one of the caller's orders with its lines.
func (h *Handler) FindOrderByID(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseUUID(w, r, mLogger, "id")
	if !ok {
		return
	}
	userID, ok := web.GetUserID(w, r, mLogger)
	if !ok {
		return
	}

	found, err := h.orders.FindByID(r.Context(), userID, id)
	if err != nil {
		respondServiceError(w, r, mLogger, err, "Failed to retrieve order")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}
