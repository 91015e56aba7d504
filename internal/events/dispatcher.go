package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrQueueFull is returned when the queued dispatcher drops an event.
var ErrQueueFull = errors.New("event queue full")

// ErrDispatcherClosed is returned when publishing after Close.
var ErrDispatcherClosed = errors.New("event dispatcher closed")

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
	SubscribeAll(handler EventHandler)
}

// registry holds subscriptions shared by both dispatcher implementations.
type registry struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
	all       []EventHandler
}

func newRegistry() registry {
	return registry{listeners: make(map[EventType][]EventHandler)}
}

func (r *registry) Subscribe(eventType EventType, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[eventType] = append(r.listeners[eventType], handler)
}

func (r *registry) SubscribeAll(handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, handler)
}

func (r *registry) handlersFor(eventType EventType) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handlers := make([]EventHandler, 0, len(r.listeners[eventType])+len(r.all))
	handlers = append(handlers, r.listeners[eventType]...)
	return append(handlers, r.all...)
}

func (r *registry) deliver(ctx context.Context, event Event, logger *zap.Logger) {
	for _, handler := range r.handlersFor(event.Type) {
		if err := handler(ctx, event); err != nil {
			logger.Warn("event handler failed",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
		}
	}
}

func stamp(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	registry
	logger *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher that invokes handlers inline.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{registry: newRegistry(), logger: logger}
}

// Publish synchronously invokes handlers. Handler errors are logged, never returned.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	stamp(&event)
	d.deliver(ctx, event, d.logger)
	return nil
}

// QueuedDispatcher buffers events and delivers them on a single goroutine.
// Publish never blocks: a full buffer drops the event.
type QueuedDispatcher struct {
	registry
	logger *zap.Logger
	queue  chan Event

	closeOnce sync.Once
	stateMu   sync.RWMutex
	closed    bool
	done      chan struct{}
}

// NewQueuedDispatcher creates a dispatcher with the given buffer size.
func NewQueuedDispatcher(buffer int, logger *zap.Logger) *QueuedDispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueuedDispatcher{
		registry: newRegistry(),
		logger:   logger,
		queue:    make(chan Event, buffer),
		done:     make(chan struct{}),
	}
}

// Publish enqueues the event.
func (d *QueuedDispatcher) Publish(_ context.Context, event Event) error {
	stamp(&event)

	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- event:
		return nil
	default:
		d.logger.Warn("audit queue full; dropping event",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
		return ErrQueueFull
	}
}

// Healthy reports whether audit events are still being accepted.
func (d *QueuedDispatcher) Healthy(_ context.Context) error {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if len(d.queue) == cap(d.queue) {
		return ErrQueueFull
	}
	return nil
}

// Run drains the queue until Close is called and the buffer is empty.
func (d *QueuedDispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for event := range d.queue {
		d.deliver(ctx, event, d.logger)
	}
}

// Close stops accepting events and waits for Run to drain the buffer or ctx to expire.
func (d *QueuedDispatcher) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.stateMu.Lock()
		d.closed = true
		close(d.queue)
		d.stateMu.Unlock()
	})

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
