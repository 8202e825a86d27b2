// Package rest exposes the cart, order and product operations over HTTP.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	ordererrors "github.com/quickgrocery/grocery/internal/errors"
	"github.com/quickgrocery/grocery/internal/service"
	"github.com/quickgrocery/grocery/pkg/web"
)

const (
	defaultOrdersLimit = 50
	maxOrdersLimit     = 200
)

type Handler struct {
	cart     service.CartService
	orders   service.OrderService
	catalog  service.CatalogService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a Handler serving the given services.
func NewHandler(cart service.CartService, orders service.OrderService, catalog service.CatalogService, logger *slog.Logger) *Handler {
	validate := validator.New()
	if err := validate.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return &Handler{
		cart:     cart,
		orders:   orders,
		catalog:  catalog,
		validate: validate,
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes. Cart and order routes require the authenticated user set by auth.
func (h *Handler) RegisterRoutes(r *chi.Mux, auth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Route("/api/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/", h.AddItem)
			r.Delete("/", h.ClearCart)
			r.Put("/{productId}", h.UpdateItem)
			r.Delete("/{productId}", h.RemoveItem)
		})
		r.Route("/api/orders", func(r chi.Router) {
			r.Get("/", h.FindOrdersByUserID)
			r.Post("/", h.PlaceOrder)
			r.Get("/{id}", h.FindOrderByID)
		})
	})
	r.Get("/api/products/{productId}", h.FindProduct)
	r.Get("/healthz", h.HealthCheck)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// decodeAndValidate reads the JSON body into dst. On failure it writes 400 with invalidMsg and returns false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, logger *slog.Logger, dst any, invalidMsg string) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logger.WarnContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, logger, http.StatusBadRequest, invalidMsg)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			fields := make(map[string]string, len(validationErrors))
			for _, fieldErr := range validationErrors {
				fields[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
			}
			logger.WarnContext(r.Context(), "Validation errors occurred", "errors", fields)
		} else {
			logger.ErrorContext(r.Context(), "Error validating request body", "error", err)
		}
		web.RespondError(w, logger, http.StatusBadRequest, invalidMsg)
		return false
	}
	return true
}

// respondServiceError maps a service failure to its status code. Unknown failures are opaque 500s carrying fallback.
func respondServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, fallback string) {
	var stockErr *ordererrors.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		logger.InfoContext(r.Context(), "Insufficient stock", "product_id", stockErr.ProductID,
			"available", stockErr.Available, "requested", stockErr.Requested)
		web.RespondError(w, logger, http.StatusBadRequest, stockErr.Error())
	case errors.Is(err, ordererrors.ErrEmptyCart):
		web.RespondError(w, logger, http.StatusBadRequest, "Cannot place an order with an empty cart.")
	case errors.Is(err, ordererrors.ErrInvalidQuantity):
		web.RespondError(w, logger, http.StatusBadRequest, "A positive quantity is required.")
	case errors.Is(err, ordererrors.ErrValidation):
		web.RespondError(w, logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, ordererrors.ErrProductNotFound):
		web.RespondError(w, logger, http.StatusNotFound, "Product not found.")
	case errors.Is(err, ordererrors.ErrCartItemNotFound):
		web.RespondError(w, logger, http.StatusNotFound, "Item not found in cart.")
	case errors.Is(err, ordererrors.ErrOrderNotFound), errors.Is(err, ordererrors.ErrAccessDenied):
		// another user's order is reported as missing
		web.RespondError(w, logger, http.StatusNotFound, "Order not found or does not belong to user.")
	default:
		logger.ErrorContext(r.Context(), fallback, "error", err)
		web.RespondError(w, logger, http.StatusInternalServerError, fallback)
	}
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
