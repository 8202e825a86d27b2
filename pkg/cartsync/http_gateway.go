package cartsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/quickgrocery/grocery/pkg/config"
)

// TokenHeader carries the API token on every request.
const TokenHeader = "x-auth-token"

// IdempotencyKeyHeader lets the server recognise a replayed add.
const IdempotencyKeyHeader = "Idempotency-Key"

// HTTPGateway calls the cart API over HTTP. Calls go through a circuit breaker that opens on
// transport failures and 5xx responses; reads are retried with exponential backoff.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	tokens  TokenProvider
	breaker *gobreaker.CircuitBreaker[struct{}]
	retry   config.RetryConfig
}

// NewHTTPGateway creates a gateway for the API rooted at baseURL, e.g. https://shop.example.com.
func NewHTTPGateway(baseURL string, tokens TokenProvider, cfg config.ResilienceConfig) *HTTPGateway {
	return &HTTPGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tokens:  tokens,
		breaker: newCircuitBreaker("cart-api", cfg.CircuitBreaker),
		retry:   cfg.Retry,
	}
}

// newCircuitBreaker trips on a run of consecutive failures, or once MinRequests calls have been seen
// and the failure rate exceeds ErrorRatePercent. Rejections (4xx) count as successes.
func newCircuitBreaker(name string, cfg config.CircuitBreakerConfig) *gobreaker.CircuitBreaker[struct{}] {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			total := counts.TotalSuccesses + counts.TotalFailures
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures ||
				(total >= cfg.MinRequests &&
					float64(counts.TotalFailures)/float64(total)*100 > float64(cfg.ErrorRatePercent))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
	}
	return gobreaker.NewCircuitBreaker[struct{}](st)
}

type addToCartRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int32 `json:"quantity"`
}

type updateCartRequest struct {
	Quantity int32 `json:"quantity"`
}

type placeOrderRequest struct {
	ShippingAddress string `json:"shippingAddress"`
}

type placeOrderResponse struct {
	Message string `json:"message"`
	Order   Order  `json:"order"`
}

func (g *HTTPGateway) GetCart(ctx context.Context) ([]RemoteLine, error) {
	var lines []RemoteLine
	if err := g.get(ctx, "/api/cart", &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (g *HTTPGateway) AddItem(ctx context.Context, key uuid.UUID, productID int64, qty int32) error {
	var header http.Header
	if key != uuid.Nil {
		header = http.Header{IdempotencyKeyHeader: []string{key.String()}}
	}
	return g.do(ctx, http.MethodPost, "/api/cart", header, addToCartRequest{ProductID: productID, Quantity: qty}, nil)
}

func (g *HTTPGateway) UpdateItem(ctx context.Context, productID int64, qty int32) error {
	return g.do(ctx, http.MethodPut, cartItemPath(productID), nil, updateCartRequest{Quantity: qty}, nil)
}

func (g *HTTPGateway) RemoveItem(ctx context.Context, productID int64) error {
	return g.do(ctx, http.MethodDelete, cartItemPath(productID), nil, nil, nil)
}

func (g *HTTPGateway) ClearCart(ctx context.Context) error {
	return g.do(ctx, http.MethodDelete, "/api/cart", nil, nil, nil)
}

// PlaceOrder is never retried: a lost response may still have committed an order.
// A committed order whose reply cannot be decoded fails with ErrMalformedResponse.
func (g *HTTPGateway) PlaceOrder(ctx context.Context, shippingAddress string) (*Order, error) {
	var resp placeOrderResponse
	if err := g.do(ctx, http.MethodPost, "/api/orders", nil, placeOrderRequest{ShippingAddress: shippingAddress}, &resp); err != nil {
		return nil, err
	}
	return &resp.Order, nil
}

func (g *HTTPGateway) GetProduct(ctx context.Context, productID int64) (*Product, error) {
	var p Product
	if err := g.get(ctx, "/api/products/"+strconv.FormatInt(productID, 10), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func cartItemPath(productID int64) string {
	return "/api/cart/" + strconv.FormatInt(productID, 10)
}

// get retries idempotent reads while the failure is ErrUnavailable.
func (g *HTTPGateway) get(ctx context.Context, path string, out any) error {
	attempts := max(g.retry.MaxAttempts, 1)
	backoff := g.retry.InitialBackoff
	var err error
	for attempt := uint(1); ; attempt++ {
		err = g.do(ctx, http.MethodGet, path, nil, nil, out)
		if err == nil || !errors.Is(err, ErrUnavailable) || attempt >= attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	_, err := g.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, g.roundTrip(ctx, method, path, header, body, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

func (g *HTTPGateway) roundTrip(ctx context.Context, method, path string, header http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	for name, values := range header {
		req.Header[name] = values
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := g.tokens.Token(); token != "" {
		req.Header.Set(TokenHeader, token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody struct {
			Message string `json:"message"`
		}
		if raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil {
			if json.Unmarshal(raw, &errBody) == nil {
				apiErr.Message = errBody.Message
			}
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s %s: %w", ErrMalformedResponse, method, path, err)
	}
	return nil
}
