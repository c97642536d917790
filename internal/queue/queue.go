package queue

import (
	"context"
	"fmt"
)

// Publisher publishes import events.
type Publisher interface {
	Publish(ctx context.Context, event ImportEvent) error
	Close() error
}

// MessageHandler handles a consumed import event.
type MessageHandler func(ctx context.Context, event ImportEvent) error

// Consumer consumes import events from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// EventsExchange is the topic exchange every fieldops event goes through.
	EventsExchange = "fieldops.events"
	// RoutingKeyImported routes ImportEvents.
	RoutingKeyImported = "workorders.imported"
	// CacheInvalidationQueue feeds the per-deployment cache invalidator.
	CacheInvalidationQueue = "fieldops.cache-invalidation"
)

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.fieldops.cache-invalidation.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", queue)
}

// WorkQueueNames returns the queues bound to EventsExchange.
func WorkQueueNames() []string {
	return []string{CacheInvalidationQueue}
}

// DLQNames returns the dead-letter queue of every work queue.
func DLQNames() []string {
	work := WorkQueueNames()
	queues := make([]string, 0, len(work))
	for _, name := range work {
		queues = append(queues, DLQName(name))
	}
	return queues
}

// NoopPublisher drops events. Used by the CLI and when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, ImportEvent) error { return nil }
func (NoopPublisher) Close() error                               { return nil }
