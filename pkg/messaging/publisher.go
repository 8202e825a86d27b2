// Package messaging defines the domain events the service emits and the publisher abstraction they travel through.
package messaging

import (
	"context"
)

// Subjects of the ORDERS stream.
const (
	OrdersSubjects      = "orders.>"
	OrdersPlacedSubject = "orders.placed"
)

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

// Deduplicated is implemented by events that must not be stored twice, e.g. on a retried publish.
type Deduplicated interface {
	DeduplicationID() string
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
