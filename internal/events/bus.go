// Package events carries lead domain events between the engine and its
// side-effect handlers, and relays them to external transports through a
// transactional outbox.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/accessmod/lead-marketplace/pkg/logging"
)

// AllEvents subscribes a handler to every published event.
const AllEvents = "*"

// Event is implemented by every domain event.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// Keyed events expose the aggregate they belong to.
type Keyed interface {
	AggregateID() string
}

// BaseEvent provides the timestamp shared by all events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now().UTC()}
}

// Handler processes a published event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribers.
type Bus interface {
	// Publish runs every handler asynchronously; failures are logged.
	Publish(ctx context.Context, event Event)
	// PublishSync runs every handler and joins their errors.
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}

// InMemoryBus dispatches events to handlers within the process.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *logging.Logger
	inflight sync.WaitGroup
}

var _ Bus = (*InMemoryBus)(nil)

func NewInMemoryBus(logger *logging.Logger) *InMemoryBus {
	if logger == nil {
		logger = logging.Default()
	}
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

func (b *InMemoryBus) handlersFor(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Handler, 0, len(b.handlers[name])+len(b.handlers[AllEvents]))
	out = append(out, b.handlers[name]...)
	out = append(out, b.handlers[AllEvents]...)
	return out
}

// Publish detaches handlers from the caller's cancellation so a finished
// request does not abort its side effects.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	if event == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, h := range b.handlersFor(event.EventName()) {
		b.inflight.Add(1)
		go func(h Handler) {
			defer b.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "event", event.EventName(), "panic", r)
				}
			}()
			if err := h.Handle(detached, event); err != nil {
				b.logger.Error("event handler failed", "event", event.EventName(), "error", err)
			}
		}(h)
	}
}

func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	if event == nil {
		return nil
	}
	var errs []error
	for _, h := range b.handlersFor(event.EventName()) {
		if err := h.Handle(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until every asynchronously published handler has returned.
func (b *InMemoryBus) Wait() {
	b.inflight.Wait()
}

// Drain waits for in-flight handlers or gives up when ctx is done.
func (b *InMemoryBus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
