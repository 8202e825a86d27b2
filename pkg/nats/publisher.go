package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/quickgrocery/grocery/pkg/messaging"
)

// JetStreamPublisher stores events in JetStream and waits for the ack, so a nil error means the event is persisted.
type JetStreamPublisher struct {
	js jetstream.JetStream
}

func NewJetStreamPublisher(js jetstream.JetStream) *JetStreamPublisher {
	return &JetStreamPublisher{js: js}
}

// Publish sends the event as JSON. Events that carry a deduplication id are stored at most once
// within the stream's duplicate window.
func (p *JetStreamPublisher) Publish(ctx context.Context, event messaging.Event) error {
	data, err := event.Payload()
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.Subject(), err)
	}
	msg := nats.NewMsg(event.Subject())
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")

	var opts []jetstream.PublishOpt
	if d, ok := event.(messaging.Deduplicated); ok {
		opts = append(opts, jetstream.WithMsgID(d.DeduplicationID()))
	}
	if _, err := p.js.PublishMsg(ctx, msg, opts...); err != nil {
		return fmt.Errorf("publish %s event: %w", event.Subject(), err)
	}
	return nil
}
