// Package bus provides in-process event routing between pipeline stages.
// Delivery is at-least-once per subscriber with no ordering guarantee across
// event types; stages depend on the record store's conditional updates, not
// the bus, for correctness under duplicates.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"docpipe/internal/logging"
)

const defaultBufferSize = 64

// Handler consumes a delivered event. A returned error is logged; the bus
// never retries on the subscriber's behalf.
type Handler func(ctx context.Context, e cloudevents.Event) error

type subscriber struct {
	name    string
	handler Handler
	events  chan cloudevents.Event
}

// Bus fans events out to subscribers registered by event type. Each
// subscriber has its own buffered channel and dispatch goroutine, so a slow
// consumer on one type never blocks another.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]*subscriber
	logger      *slog.Logger
	buffer      int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closed      bool
}

// New constructs a bus. A nil logger discards dispatch diagnostics.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subscribers: make(map[string][]*subscriber),
		logger:      logging.NewComponentLogger(logger, "bus"),
		buffer:      defaultBufferSize,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe registers a handler for an event type and starts its dispatch
// goroutine. Subscribing after Close is an error.
func (b *Bus) Subscribe(eventType, name string, handler Handler) error {
	if eventType == "" {
		return errors.New("event type is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("bus is closed")
	}

	sub := &subscriber{
		name:    name,
		handler: handler,
		events:  make(chan cloudevents.Event, b.buffer),
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)

	b.wg.Add(1)
	go b.dispatch(sub)
	return nil
}

// Publish delivers the event to every subscriber of its type. A full
// subscriber buffer applies backpressure instead of dropping; the call blocks
// until the event is enqueued everywhere or the context ends.
func (b *Bus) Publish(ctx context.Context, e cloudevents.Event) error {
	if e.Type() == "" {
		return errors.New("event type is required")
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("bus is closed")
	}
	subs := append([]*subscriber(nil), b.subscribers[e.Type()]...)
	b.mu.Unlock()

	if len(subs) == 0 {
		b.logger.Warn("event has no subscribers",
			logging.String(logging.FieldEventType, e.Type()),
			logging.String(logging.FieldDocumentID, e.Subject()))
		return nil
	}

	for _, sub := range subs {
		select {
		case sub.events <- e:
		case <-ctx.Done():
			return fmt.Errorf("publish %s to %s: %w", e.Type(), sub.name, ctx.Err())
		case <-b.ctx.Done():
			return errors.New("bus is closed")
		}
	}
	return nil
}

// Close stops dispatching and waits for in-flight handlers to return.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
}

func (b *Bus) dispatch(sub *subscriber) {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case e := <-sub.events:
			if err := sub.handler(b.ctx, e); err != nil {
				b.logger.Error("subscriber handler failed",
					logging.String("subscriber", sub.name),
					logging.String(logging.FieldEventType, e.Type()),
					logging.String(logging.FieldDocumentID, e.Subject()),
					logging.Error(err))
			}
		}
	}
}
