package nats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/quickgrocery/grocery/pkg/config"
	"golang.org/x/sync/errgroup"
)

// ErrMalformed marks a message that can never be processed. Such messages are terminated instead of redelivered.
var ErrMalformed = errors.New("malformed message")

// Handler processes the payload of one message.
type Handler func(ctx context.Context, data []byte) error

// AckableMsg is the part of jetstream.Msg the workers need.
type AckableMsg interface {
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

// Subscribe creates a durable pull consumer on stream and runs cfg.Workers workers until ctx is done.
func Subscribe(ctx context.Context, js jetstream.JetStream, stream string, cfg config.SubscriberConfig, handler Handler, logger *slog.Logger) error {
	consumer, err := js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		FilterSubject: cfg.Subject,
		Durable:       cfg.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return err
	}
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			return runWorker(gCtx, consumer, cfg, handler, logger)
		})
	}
	return g.Wait()
}

func runWorker(ctx context.Context, consumer jetstream.Consumer, cfg config.SubscriberConfig, handler Handler, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		batch, err := consumer.Fetch(cfg.Batch, jetstream.FetchMaxWait(cfg.Timeout))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			logger.ErrorContext(ctx, "failed to fetch messages", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Interval):
			}
			continue
		}
		for msg := range batch.Messages() {
			handleMessage(ctx, msg, handler, logger)
		}
	}
}

// handleMessage acks on success, terminates malformed messages and naks everything else for redelivery.
func handleMessage(ctx context.Context, msg AckableMsg, handler Handler, logger *slog.Logger) {
	if msg == nil {
		logger.ErrorContext(ctx, "received nil message")
		return
	}
	err := handler(ctx, msg.Data())
	switch {
	case err == nil:
		if err := msg.Ack(); err != nil {
			logger.ErrorContext(ctx, "failed to ack message", "error", err)
		}
	case errors.Is(err, ErrMalformed):
		logger.ErrorContext(ctx, "dropping malformed message", "error", err)
		if err := msg.Term(); err != nil {
			logger.ErrorContext(ctx, "failed to terminate message", "error", err)
		}
	default:
		logger.WarnContext(ctx, "message handler failed, requesting redelivery", "error", err)
		if err := msg.Nak(); err != nil {
			logger.ErrorContext(ctx, "failed to nack message", "error", err)
		}
	}
}
