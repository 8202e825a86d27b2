// Package notify sends order confirmations for committed orders.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/quickgrocery/grocery/pkg/messaging/events"
	"github.com/quickgrocery/grocery/pkg/nats"
)

// Notifier delivers a confirmation to the customer who placed an order.
type Notifier interface {
	OrderConfirmed(ctx context.Context, event events.OrderPlacedEvent) error
}

// LogNotifier writes confirmations to the log. It stands in until a mail or push channel exists.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) OrderConfirmed(ctx context.Context, event events.OrderPlacedEvent) error {
	n.logger.InfoContext(ctx, "order confirmation",
		slog.String("order_id", event.OrderID.String()),
		slog.String("user_id", event.UserID.String()),
		slog.String("total_amount", event.TotalAmount.StringFixed(2)),
		slog.Int("lines", len(event.Items)),
	)
	return nil
}

var tracer = otel.Tracer("grocery-notify")

// OrderPlacedHandler decodes OrderPlacedEvent payloads and hands them to notifier.
// The span continues the trace of the request that placed the order.
func OrderPlacedHandler(notifier Notifier, logger *slog.Logger) nats.Handler {
	return func(ctx context.Context, data []byte) error {
		var event events.OrderPlacedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return fmt.Errorf("%w: %w", nats.ErrMalformed, err)
		}
		if event.OrderID == uuid.Nil {
			return fmt.Errorf("%w: missing order_id", nats.ErrMalformed)
		}

		ctx = otel.GetTextMapPropagator().Extract(ctx, event.Carrier)
		ctx, span := tracer.Start(ctx, "notify.OrderPlaced", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()

		logger.DebugContext(ctx, "received order placed event", slog.String("order_id", event.OrderID.String()))
		if err := notifier.OrderConfirmed(ctx, event); err != nil {
			span.RecordError(err)
			return fmt.Errorf("confirm order %s: %w", event.OrderID, err)
		}
		return nil
	}
}
