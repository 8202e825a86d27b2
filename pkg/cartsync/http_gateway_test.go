package cartsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickgrocery/grocery/pkg/config"
)

func testResilience() config.ResilienceConfig {
	return config.ResilienceConfig{
		Timeout: 2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
		},
		CircuitBreaker: config.CircuitBreakerConfig{
			ConsecutiveFailures: 3,
			ErrorRatePercent:    100,
			MinRequests:         100,
			OpenTimeout:         time.Minute,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestHTTPGateway_Requests(t *testing.T) {
	tests := []struct {
		name       string
		call       func(ctx context.Context, g *HTTPGateway) error
		wantMethod string
		wantPath   string
		wantBody   string
	}{
		{
			name:       "add item",
			call:       func(ctx context.Context, g *HTTPGateway) error { return g.AddItem(ctx, uuid.Nil, 7, 2) },
			wantMethod: http.MethodPost,
			wantPath:   "/api/cart",
			wantBody:   `{"productId":7,"quantity":2}`,
		},
		{
			name:       "update item",
			call:       func(ctx context.Context, g *HTTPGateway) error { return g.UpdateItem(ctx, 7, 5) },
			wantMethod: http.MethodPut,
			wantPath:   "/api/cart/7",
			wantBody:   `{"quantity":5}`,
		},
		{
			name:       "remove item",
			call:       func(ctx context.Context, g *HTTPGateway) error { return g.RemoveItem(ctx, 7) },
			wantMethod: http.MethodDelete,
			wantPath:   "/api/cart/7",
		},
		{
			name:       "clear cart",
			call:       func(ctx context.Context, g *HTTPGateway) error { return g.ClearCart(ctx) },
			wantMethod: http.MethodDelete,
			wantPath:   "/api/cart",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// given
			var gotMethod, gotPath, gotBody, gotToken string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotMethod, gotPath, gotToken = r.Method, r.URL.Path, r.Header.Get(TokenHeader)
				body, _ := io.ReadAll(r.Body)
				gotBody = string(body)
				writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
			}))
			defer srv.Close()
			g := NewHTTPGateway(srv.URL+"/", NewMemoryTokenStore("secret-token"), testResilience())

			// when
			err := tt.call(context.Background(), g)

			// then
			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, gotMethod)
			assert.Equal(t, tt.wantPath, gotPath)
			assert.Equal(t, "secret-token", gotToken)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, gotBody)
			} else {
				assert.Empty(t, gotBody)
			}
		})
	}
}

func TestHTTPGateway_AddItemSendsIdempotencyKey(t *testing.T) {
	// given
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get(IdempotencyKeyHeader))
		writeJSON(w, http.StatusOK, map[string]string{"message": "Item added to cart successfully."})
	}))
	defer srv.Close()
	g := NewHTTPGateway(srv.URL, NewMemoryTokenStore("t"), testResilience())
	key := uuid.New()

	// when
	require.NoError(t, g.AddItem(context.Background(), key, 1, 1))
	require.NoError(t, g.AddItem(context.Background(), key, 1, 1))
	require.NoError(t, g.AddItem(context.Background(), uuid.Nil, 1, 1))

	// then
	assert.Equal(t, []string{key.String(), key.String(), ""}, keys)
}

func TestHTTPGateway_MalformedSuccessIsNotUnavailable(t *testing.T) {
	// given
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"message":"Order placed successfully!","order":{"id":`)
	}))
	defer srv.Close()
	g := NewHTTPGateway(srv.URL, NewMemoryTokenStore("t"), testResilience())

	// when
	order, err := g.PlaceOrder(context.Background(), "1 Market St")

	// then
	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, gobreaker.StateClosed, g.breaker.State())
}

func TestHTTPGateway_GetCartAndPlaceOrder(t *testing.T) {
	// given
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cart", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"product_id": 1, "name": "Apples", "price": "2.49", "quantity": 2, "available_stock": 5},
		})
	})
	mux.HandleFunc("POST /api/orders", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "Order placed successfully!",
			"order": map[string]any{
				"id":               "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
				"order_date":       "2026-03-01T10:00:00Z",
				"total_amount":     "4.98",
				"status":           "pending",
				"shipping_address": req["shippingAddress"],
			},
		})
	})
	mux.HandleFunc("GET /api/products/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 1, "name": "Apples", "price": "2.49", "category": "Fruit", "stock_quantity": 5})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	g := NewHTTPGateway(srv.URL, NewMemoryTokenStore("t"), testResilience())
	ctx := context.Background()

	// when
	lines, err := g.GetCart(ctx)

	// then
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, RemoteLine{ProductID: 1, Name: "Apples", Price: lines[0].Price, Quantity: 2, AvailableStock: 5}, lines[0])
	assert.Equal(t, "2.49", lines[0].Price.StringFixed(2))

	// when
	order, err := g.PlaceOrder(ctx, "1 Market St")

	// then
	require.NoError(t, err)
	assert.Equal(t, "4.98", order.TotalAmount.StringFixed(2))
	assert.Equal(t, "pending", order.Status)
	assert.Equal(t, "1 Market St", order.ShippingAddress)
	assert.Equal(t, "1b4e28ba-2fa1-11d2-883f-0016d3cca427", order.ID.String())

	// when
	product, err := g.GetProduct(ctx, 1)

	// then
	require.NoError(t, err)
	assert.Equal(t, "Fruit", product.Category)
}

func TestHTTPGateway_NoTokenSendsNoHeader(t *testing.T) {
	// given
	var present atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header[http.CanonicalHeaderKey(TokenHeader)]
		present.Store(ok)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "No token, authorization denied."})
	}))
	defer srv.Close()
	g := NewHTTPGateway(srv.URL, NewMemoryTokenStore(""), testResilience())

	// when
	_, err := g.GetCart(context.Background())

	// then
	assert.False(t, present.Load())
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestHTTPGateway_ErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		message     string
		wantErr     error
		wantMessage string
	}{
		{name: "stock rejection", status: http.StatusBadRequest, message: "Not enough stock for Apples. Available: 1", wantErr: ErrRejected, wantMessage: "Not enough stock for Apples. Available: 1"},
		{name: "missing line", status: http.StatusNotFound, message: "Item not found in cart.", wantErr: ErrNotFound, wantMessage: "Item not found in cart."},
		{name: "expired token", status: http.StatusUnauthorized, message: "Token is not valid.", wantErr: ErrUnauthorized, wantMessage: "Token is not valid."},
		{name: "server error", status: http.StatusInternalServerError, message: "Failed to add item to cart", wantErr: ErrUnavailable, wantMessage: "Failed to add item to cart"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// given
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"message": tt.message})
			}))
			defer srv.Close()
			g := NewHTTPGateway(srv.URL, NewMemoryTokenStore("t"), testResilience())

			// when
			err := g.AddItem(context.Background(), uuid.New(), 1, 1)

			// then
			assert.ErrorIs(t, err, tt.wantErr)
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestHTTPGateway_Retry(t *testing.T) {
	t.Run("reads are retried on 503", func(t *testing.T) {
		// given
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "busy"})
				return
			}
			writeJSON(w, http.StatusOK, []any{})
		}))
		defer srv.Close()
		g := NewHTTPGateway(srv.URL, NewMemoryTokenStore("t"), testResilience())

		// when
		lines, err := g.GetCart(context.Background())

		// then
		require.NoError(t, err)
		assert.Empty(t, lines)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("reads give up after max attempts", func(t *testing.T) {
		// given
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "busy"})
		}))
		defer srv.Close()
		cfg := testResilience()
		cfg.CircuitBreaker.ConsecutiveFailures = 10
		g := NewHTTPGateway(srv.URL, NewMemoryTokenStore("t"), cfg)

		// when
		_, err := g.GetCart(context.Background())

		// then
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("writes are not retried", func(t *testing.T) {
		// given
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "busy"})
		}))
		defer srv.Close()
		g := NewHTTPGateway(srv.URL, NewMemoryTokenStore("t"), testResilience())

		// when
		_, err := g.PlaceOrder(context.Background(), "1 Market St")

		// then
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, int32(1), attempts.Load())
	})
}

func TestHTTPGateway_CircuitBreaker(t *testing.T) {
	t.Run("opens after consecutive server failures", func(t *testing.T) {
		// given
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "upstream"})
		}))
		defer srv.Close()
		g := NewHTTPGateway(srv.URL, NewMemoryTokenStore("t"), testResilience())
		ctx := context.Background()
		for range 3 {
			require.ErrorIs(t, g.ClearCart(ctx), ErrUnavailable)
		}

		// when
		err := g.ClearCart(ctx)

		// then
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		assert.Equal(t, int32(3), attempts.Load(), "open breaker short-circuits the request")
	})

	t.Run("rejections do not trip it", func(t *testing.T) {
		// given
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "A positive quantity is required."})
		}))
		defer srv.Close()
		g := NewHTTPGateway(srv.URL, NewMemoryTokenStore("t"), testResilience())

		// when
		for range 5 {
			assert.ErrorIs(t, g.UpdateItem(context.Background(), 1, 1), ErrRejected)
		}

		// then
		assert.Equal(t, int32(5), attempts.Load())
	})

	t.Run("unreachable server", func(t *testing.T) {
		// given
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		g := NewHTTPGateway(url, NewMemoryTokenStore("t"), testResilience())

		// when
		err := g.AddItem(context.Background(), uuid.New(), 1, 1)

		// then
		assert.ErrorIs(t, err, ErrUnavailable)
		var apiErr *APIError
		assert.False(t, errors.As(err, &apiErr))
	})
}
