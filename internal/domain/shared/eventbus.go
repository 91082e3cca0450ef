package shared

import "context"

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes a domain event
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes returns the event types this handler is interested in.
	// An empty slice means the handler receives all events.
	EventTypes() []string
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}

// EventBus combines publishing with handler subscription
type EventBus interface {
	EventPublisher
	Subscribe(handler EventHandler, eventTypes ...string)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// OutboxEventSaver saves domain events to the outbox within the caller's transaction.
// txProvider is the transaction handle of the persistence layer.
type OutboxEventSaver interface {
	SaveEvents(ctx context.Context, txProvider any, events ...DomainEvent) error
}
